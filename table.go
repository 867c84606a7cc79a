package astrodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/astrodb/manifest"
	"github.com/hupe1980/astrodb/model"
	"github.com/hupe1980/astrodb/record"
	"github.com/hupe1980/astrodb/rowsource"
	"github.com/hupe1980/astrodb/schema"
	"github.com/hupe1980/astrodb/spatial"
	"github.com/hupe1980/astrodb/sphere"
)

// ImportState tracks a table through its import lifecycle.
type ImportState uint8

const (
	// StateCreated: the table exists with identity and import options
	// but no schema yet.
	StateCreated ImportState = iota
	// StateSchemaBound: the schema is compiled and locked; the record
	// store and spatial index are allocated.
	StateSchemaBound
	// StateRunning: an import run is streaming rows.
	StateRunning
	// StateComplete: records are materialized, flushed and indexed;
	// the table accepts queries.
	StateComplete
	// StateFailed: a fatal import error occurred; the table refuses
	// queries until reopened.
	StateFailed
)

func (s ImportState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSchemaBound:
		return "schema-bound"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ImportOrder selects the record materialization order over the
// brightness value. The order is a coarse pre-sort that keeps
// magnitude-banded queries touching contiguous record runs.
type ImportOrder uint8

const (
	// OrderAscending materializes brightest first (smallest magnitude
	// values lead).
	OrderAscending ImportOrder = iota
	// OrderDescending materializes faintest first.
	OrderDescending
)

func (o ImportOrder) String() string {
	if o == OrderDescending {
		return "descending"
	}
	return "ascending"
}

// ImportTableOptions fix a table's import behavior at creation time.
type ImportTableOptions struct {
	// BrightnessSymbol names the schema field whose converted value
	// gates and orders the import. Empty disables bounds filtering
	// and keeps arrival order.
	BrightnessSymbol string

	// BrightMin and BrightMax bound accepted brightness values,
	// inclusive. Rows outside the bounds are skipped and counted,
	// never an error. Defaults accept everything.
	BrightMin float64
	BrightMax float64

	// Order is the materialization order over the brightness value.
	Order ImportOrder

	// Compression writes the record file as one zstd frame.
	Compression bool

	// InitialCapacity preallocates the record store, in records.
	InitialCapacity int
}

func defaultImportTableOptions(compression bool) ImportTableOptions {
	return ImportTableOptions{
		BrightMin:   math.Inf(-1),
		BrightMax:   math.Inf(1),
		Order:       OrderAscending,
		Compression: compression,
	}
}

// ImportSummary reports what an import run did. Skipped rows and field
// failures are absorbed here rather than raised, so one bad input row
// never aborts a run.
type ImportSummary struct {
	RowsRead           uint64
	RecordsImported    uint64
	SkippedOutOfBounds uint64
	FieldFailures      uint64
	Elapsed            time.Duration
}

// schemaSidecar is the persisted schema layout, stored next to the
// record file in the codec the manifest entry names.
type schemaSidecar struct {
	Version    int            `json:"version" msgpack:"version"`
	RecordSize int            `json:"record_size" msgpack:"record_size"`
	Fields     []schema.Field `json:"fields" msgpack:"fields"`
}

const sidecarVersion = 1

// Table is one catalog table: a bound schema, a fixed-stride record
// store and a spatial index over the record positions.
//
// A table has a single writer, the goroutine driving its import.
// Queries are valid only in StateComplete.
type Table struct {
	db   *Database
	id   CatalogID
	opts ImportTableOptions

	mu       sync.Mutex
	schema   *schema.Schema
	rowCodec *schema.Codec
	store    *record.Store
	index    *spatial.Index
	state    ImportState
	summary  ImportSummary
}

// ID returns the table's catalog identity.
func (t *Table) ID() CatalogID { return t.id }

// State returns the current import state.
func (t *Table) State() ImportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Schema returns the bound schema, or nil before BindSchema.
func (t *Table) Schema() *schema.Schema {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schema
}

// Summary returns the summary of the last import run.
func (t *Table) Summary() ImportSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}

// Count returns the number of materialized records.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.store == nil {
		return 0
	}
	return t.store.Count()
}

// Record returns a read-only view of one record. ok is false for
// out-of-range references and for tables that are not queryable.
func (t *Table) Record(id model.RowID) (record.View, bool) {
	st, _, err := t.snapshot()
	if err != nil {
		return record.View{}, false
	}
	return st.Record(id)
}

// BindSchema compiles and locks the table's record layout, allocating
// the record store and the spatial index.
func (t *Table) BindSchema(fields []schema.Field, recordSize int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateCreated {
		return &ErrImportFailure{State: t.state, cause: errors.New("schema already bound")}
	}

	sch, err := schema.New(fields, recordSize)
	if err != nil {
		return translateError(err)
	}

	store, err := record.New(recordSize, func(o *record.Options) {
		o.Compression = t.opts.Compression
		o.InitialCapacity = t.opts.InitialCapacity
	})
	if err != nil {
		return translateError(err)
	}

	idx, err := spatial.New(t.db.depth)
	if err != nil {
		return err
	}

	t.schema = sch
	t.rowCodec = schema.NewCodec(sch)
	t.store = store
	t.index = idx
	t.state = StateSchemaBound
	return nil
}

// RunImport streams rows from src until io.EOF, converting each per
// the bound schema, then materializes, indexes and flushes the
// accepted records. Per-field conversion failures and out-of-bounds
// brightness rows are counted in the summary, never raised. Fatal
// errors (row source failure, allocation, flush) transition the table
// to StateFailed; its partial records remain in memory but the table
// refuses queries until reopened.
func (t *Table) RunImport(ctx context.Context, src rowsource.Source) (ImportSummary, error) {
	start := time.Now()

	t.mu.Lock()
	if t.state != StateSchemaBound {
		st := t.state
		t.mu.Unlock()
		return ImportSummary{}, &ErrImportFailure{State: st, cause: errors.New("import needs a bound schema")}
	}
	t.state = StateRunning
	t.mu.Unlock()

	sum, err := t.runImport(ctx, src, start)

	t.mu.Lock()
	if err != nil {
		t.state = StateFailed
	} else {
		t.state = StateComplete
	}
	t.summary = sum
	t.mu.Unlock()

	t.db.metrics.RecordImport(int(sum.RecordsImported), time.Since(start), err)
	t.db.logger.LogImport(ctx, t.id.String(), sum, err)

	if err != nil {
		return sum, &ErrImportFailure{State: StateFailed, cause: err}
	}
	return sum, nil
}

func (t *Table) runImport(ctx context.Context, src rowsource.Source, start time.Time) (ImportSummary, error) {
	var sum ImportSummary

	rc := t.db.lib.resources
	if err := rc.AcquireBackground(ctx); err != nil {
		return sum, err
	}
	defer rc.ReleaseBackground()

	var bright *schema.Field
	if t.opts.BrightnessSymbol != "" {
		f, ok := t.schema.FieldBySymbol(t.opts.BrightnessSymbol)
		if !ok {
			return sum, &ErrUnknownField{Symbol: t.opts.BrightnessSymbol}
		}
		if !f.Type.Numeric() && !f.Type.GroupComponent() {
			return sum, &ErrConstraint{Reason: fmt.Sprintf("brightness field %q is not numeric", t.opts.BrightnessSymbol)}
		}
		bright = f
	}

	type pending struct {
		rec    []byte
		bright float64
	}

	var (
		rows     []pending
		reserved int64
	)
	defer func() { rc.ReleaseMemory(reserved) }()

	buf := t.rowCodec.NewBuffer()

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("row source: %w", err)
		}
		sum.RowsRead++

		failures, cerr := t.rowCodec.ConvertRow(buf, row)
		sum.FieldFailures += uint64(failures)
		if cerr != nil && !errors.Is(cerr, schema.ErrConvert) {
			// A layout mismatch cannot self-heal on the next row.
			return sum, cerr
		}

		v := buf.View()

		b := math.NaN()
		if bright != nil {
			b = numericValue(v, bright)
			if math.IsNaN(b) || b < t.opts.BrightMin || b > t.opts.BrightMax {
				sum.SkippedOutOfBounds++
				continue
			}
		}

		// Schema conversion leaves head angles in degrees; the store
		// and the index work in radians.
		buf.SetRA(v.RA() * sphere.DegToRad)
		buf.SetDec(v.Dec() * sphere.DegToRad)

		if !rc.TryAcquireMemory(int64(len(buf.Bytes()))) {
			return sum, fmt.Errorf("memory limit reached after %d buffered rows", len(rows))
		}
		reserved += int64(len(buf.Bytes()))

		rec := make([]byte, len(buf.Bytes()))
		copy(rec, buf.Bytes())
		rows = append(rows, pending{rec: rec, bright: b})
	}

	if bright != nil {
		asc := t.opts.Order == OrderAscending
		sort.SliceStable(rows, func(i, j int) bool {
			if asc {
				return rows[i].bright < rows[j].bright
			}
			return rows[i].bright > rows[j].bright
		})
	}

	for _, p := range rows {
		if _, err := t.store.Append(p.rec); err != nil {
			return sum, err
		}
		sum.RecordsImported++
	}

	// Index in store order so magnitude ties break by row id. Records
	// with non-finite positions cannot be placed; they stay stored but
	// unindexed.
	t.store.Iterate(func(id model.RowID, v record.View) bool {
		_ = t.index.Insert(v.RA(), v.Dec(), v.Mag(), id)
		return true
	})

	sum.Elapsed = time.Since(start)

	if err := t.persist(ctx, sum); err != nil {
		return sum, err
	}
	return sum, nil
}

// persist flushes the record store to the library root, writes the
// schema sidecar and records the table in the manifest.
func (t *Table) persist(ctx context.Context, sum ImportSummary) error {
	lib := t.db.lib
	name := t.id.recordFile()

	w, err := lib.local.Create(ctx, name)
	if err != nil {
		return err
	}
	n, err := t.store.WriteTo(w)
	if err != nil {
		w.Close()
		_ = lib.local.Delete(ctx, name)
		t.db.logger.LogFlush(ctx, name, 0, err)
		return err
	}
	if err := w.Close(); err != nil {
		t.db.logger.LogFlush(ctx, name, 0, err)
		return err
	}
	t.db.logger.LogFlush(ctx, name, n, nil)

	sidecar := schemaSidecar{
		Version:    sidecarVersion,
		RecordSize: t.schema.RecordSize(),
		Fields:     t.schema.Fields(),
	}
	data, err := t.db.codec.Marshal(sidecar)
	if err != nil {
		return err
	}
	if err := lib.local.Put(ctx, t.id.schemaFile(), data); err != nil {
		return err
	}

	info := manifest.TableInfo{
		Class:        t.id.Class,
		CatalogID:    t.id.ID,
		Name:         t.id.Name,
		RecordCount:  uint64(t.store.Count()),
		RecordSize:   uint32(t.schema.RecordSize()),
		Compressed:   t.store.Compressed(),
		RecordFile:   name,
		SchemaFile:   t.id.schemaFile(),
		SchemaCodec:  t.db.codec.Name(),
		SchemaDigest: t.schema.Digest(),
		ImportedAt:   time.Now().UTC(),
		Summary: manifest.ImportSummary{
			RowsRead:           sum.RowsRead,
			RecordsImported:    sum.RecordsImported,
			SkippedOutOfBounds: sum.SkippedOutOfBounds,
			FieldFailures:      sum.FieldFailures,
			Elapsed:            sum.Elapsed,
		},
	}

	_, err = lib.manifests.Update(func(m *manifest.Manifest) error {
		m.Upsert(t.id.String(), info)
		return nil
	})
	return err
}

// Flush rewrites the table's persisted files and manifest entry. An
// import already flushes on completion; Flush re-publishes after
// external changes to the library root.
func (t *Table) Flush(ctx context.Context) error {
	start := time.Now()

	t.mu.Lock()
	if t.state != StateComplete {
		st := t.state
		t.mu.Unlock()
		err := &ErrImportFailure{State: st, cause: errNotQueryable}
		t.db.metrics.RecordFlush(time.Since(start), err)
		return err
	}
	sum := t.summary
	t.mu.Unlock()

	err := t.persist(ctx, sum)
	t.db.metrics.RecordFlush(time.Since(start), err)
	return err
}

// Close releases the table's record store and frees its database slot.
func (t *Table) Close() error {
	t.db.deregister(t.id)
	return t.closeStore()
}

func (t *Table) closeStore() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.store == nil {
		return nil
	}
	store := t.store
	t.store = nil
	t.index = nil
	return store.Close()
}

var errNotQueryable = errors.New("table is not queryable before a completed import")

// snapshot returns the store and index for query use. The returned
// handles are immutable once a table is complete.
func (t *Table) snapshot() (*record.Store, *spatial.Index, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateComplete {
		return nil, nil, &ErrImportFailure{State: t.state, cause: errNotQueryable}
	}
	if t.store == nil {
		return nil, nil, ErrClosed
	}
	return t.store, t.index, nil
}
