package astrodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/astrodb/blobstore"
	"github.com/hupe1980/astrodb/codec"
	"github.com/hupe1980/astrodb/manifest"
	"github.com/hupe1980/astrodb/model"
	"github.com/hupe1980/astrodb/record"
	"github.com/hupe1980/astrodb/schema"
	"github.com/hupe1980/astrodb/spatial"
)

const (
	// DefaultDepth is the spatial partition depth used when a
	// configuration leaves it unset. Depth 5 gives 32 declination
	// bands, fine enough for sub-degree cone queries on the large
	// survey catalogs without an outsized bucket directory.
	DefaultDepth = 5

	// DefaultTableCapacity caps concurrently open tables per database
	// when a configuration leaves it unset.
	DefaultTableCapacity = 16
)

// Database groups tables that share a spatial partition depth and a
// cap on concurrently open tables.
type Database struct {
	lib      *Library
	depth    int
	capacity int

	codec       codec.Codec
	logger      *Logger
	metrics     MetricsCollector
	compression bool

	mu     sync.Mutex
	tables map[string]*Table
	closed bool
}

// NewDatabase creates a database over lib. depth sets the spatial
// index resolution for every table (deeper means finer angular buckets
// at a memory cost); tableCapacity caps concurrently open tables.
//
// Logger, metrics, codec and compression options are inherited from
// the library and may be overridden per database.
func NewDatabase(lib *Library, depth, tableCapacity int, optFns ...Option) (*Database, error) {
	if lib == nil {
		return nil, &ErrOpenFailure{Path: "", cause: errors.New("nil library")}
	}
	if err := lib.ensureOpen(); err != nil {
		return nil, err
	}
	if depth < spatial.MinDepth || depth > spatial.MaxDepth {
		return nil, &ErrConstraint{
			Reason: fmt.Sprintf("depth %d outside [%d, %d]", depth, spatial.MinDepth, spatial.MaxDepth),
			cause:  spatial.ErrDepth,
		}
	}
	if tableCapacity < 1 {
		return nil, &ErrConstraint{Reason: fmt.Sprintf("table capacity %d is not positive", tableCapacity)}
	}

	o := options{
		codec:            lib.codec,
		logger:           lib.logger,
		metricsCollector: lib.metrics,
		compression:      lib.compression,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	return &Database{
		lib:         lib,
		depth:       depth,
		capacity:    tableCapacity,
		codec:       o.codec,
		logger:      o.logger,
		metrics:     o.metricsCollector,
		compression: o.compression,
		tables:      make(map[string]*Table),
	}, nil
}

// Library returns the library the database was opened over.
func (d *Database) Library() *Library { return d.lib }

// Depth returns the spatial partition depth shared by all tables.
func (d *Database) Depth() int { return d.depth }

// Capacity returns the maximum number of concurrently open tables.
func (d *Database) Capacity() int { return d.capacity }

// Len returns the number of currently open tables.
func (d *Database) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables)
}

// Table returns the open table with the given identity, if any.
func (d *Database) Table(id CatalogID) (*Table, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[id.String()]
	return t, ok
}

// Tables returns the identities of all open tables, sorted.
func (d *Database) Tables() []CatalogID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]CatalogID, 0, len(d.tables))
	for _, t := range d.tables {
		ids = append(ids, t.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// register reserves a capacity slot for id. The caller must deregister
// on any later failure.
func (d *Database) register(id CatalogID, t *Table) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	key := id.String()
	if _, ok := d.tables[key]; ok {
		return &ErrOpenFailure{Path: key, cause: errors.New("table already open")}
	}
	if len(d.tables) >= d.capacity {
		return &ErrCapacityExceeded{Capacity: d.capacity}
	}

	d.tables[key] = t
	return nil
}

func (d *Database) deregister(id CatalogID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tables, id.String())
}

// ImportTable creates a table in StateCreated, ready for BindSchema
// and RunImport. The options fix the brightness field, its accepted
// bounds and the materialization order for the whole import.
func (d *Database) ImportTable(id CatalogID, optFns ...func(o *ImportTableOptions)) (*Table, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}

	opts := defaultImportTableOptions(d.compression)
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	if opts.BrightMin > opts.BrightMax {
		return nil, &ErrConstraint{
			Reason: fmt.Sprintf("brightness bounds inverted: min %g > max %g", opts.BrightMin, opts.BrightMax),
		}
	}

	t := &Table{
		db:    d,
		id:    id,
		opts:  opts,
		state: StateCreated,
	}
	if err := d.register(id, t); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenTable reopens a previously imported table: it looks the identity
// up in the library manifest, loads and verifies the schema sidecar,
// maps the record file and rebuilds the spatial index. The table comes
// back in StateComplete, ready for queries.
func (d *Database) OpenTable(ctx context.Context, id CatalogID) (*Table, error) {
	start := time.Now()

	t, err := d.openTable(ctx, id)

	d.metrics.RecordOpen(time.Since(start), err)
	records := 0
	if t != nil {
		records = t.Count()
	}
	d.logger.LogOpen(ctx, id.String(), records, err)

	return t, err
}

func (d *Database) openTable(ctx context.Context, id CatalogID) (*Table, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}

	key := id.String()

	m, err := d.lib.Manifest()
	if err != nil {
		return nil, &ErrOpenFailure{Path: key, cause: err}
	}
	info, ok := m.Lookup(key)
	if !ok {
		return nil, &ErrOpenFailure{Path: key, cause: fmt.Errorf("%w: no manifest entry", ErrNotFound)}
	}

	sch, err := d.loadSchema(ctx, info)
	if err != nil {
		return nil, &ErrOpenFailure{Path: info.SchemaFile, cause: err}
	}

	store, err := d.loadRecords(ctx, info)
	if err != nil {
		return nil, &ErrOpenFailure{Path: info.RecordFile, cause: err}
	}

	idx, err := rebuildIndex(store, d.depth)
	if err != nil {
		store.Close()
		return nil, &ErrOpenFailure{Path: info.RecordFile, cause: err}
	}

	t := &Table{
		db:       d,
		id:       id,
		opts:     defaultImportTableOptions(info.Compressed),
		schema:   sch,
		rowCodec: schema.NewCodec(sch),
		store:    store,
		index:    idx,
		state:    StateComplete,
	}
	if err := d.register(id, t); err != nil {
		store.Close()
		return nil, err
	}
	return t, nil
}

// loadSchema reads the schema sidecar named by the manifest entry,
// decodes it with the codec recorded there and verifies the layout
// digest so a stale sidecar cannot silently misinterpret records.
func (d *Database) loadSchema(ctx context.Context, info manifest.TableInfo) (*schema.Schema, error) {
	c, ok := codec.ByName(info.SchemaCodec)
	if !ok {
		return nil, fmt.Errorf("unknown sidecar codec %q", info.SchemaCodec)
	}

	data, err := readAll(ctx, d.lib.local, info.SchemaFile)
	if err != nil {
		return nil, err
	}

	var sc schemaSidecar
	if err := c.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	if sc.Version != sidecarVersion {
		return nil, fmt.Errorf("unsupported sidecar version %d", sc.Version)
	}

	sch, err := schema.New(sc.Fields, sc.RecordSize)
	if err != nil {
		return nil, translateError(err)
	}
	if info.SchemaDigest != "" && sch.Digest() != info.SchemaDigest {
		return nil, fmt.Errorf("schema digest mismatch: manifest %s, sidecar %s", info.SchemaDigest, sch.Digest())
	}
	return sch, nil
}

// loadRecords opens the record file. Uncompressed files on mappable
// blobs load zero-copy; everything else streams onto the heap.
func (d *Database) loadRecords(ctx context.Context, info manifest.TableInfo) (*record.Store, error) {
	b, err := d.lib.local.Open(ctx, info.RecordFile)
	if err != nil {
		return nil, translateError(err)
	}

	if mb, ok := b.(blobstore.Mappable); ok {
		data, err := mb.Bytes()
		if err == nil {
			store, err := record.OpenBytes(data, b)
			if err != nil {
				b.Close()
				return nil, err
			}
			return store, nil
		}
	}

	store, err := record.New(int(info.RecordSize))
	if err != nil {
		b.Close()
		return nil, err
	}

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		b.Close()
		return nil, err
	}
	_, err = store.ReadFrom(rc)
	rc.Close()
	b.Close()
	if err != nil {
		return nil, err
	}
	return store, nil
}

// rebuildIndex reconstructs the spatial index with one pass over the
// stored records. Records with non-finite positions stay unindexed,
// exactly as they do during import.
func rebuildIndex(store *record.Store, depth int) (*spatial.Index, error) {
	idx, err := spatial.New(depth)
	if err != nil {
		return nil, err
	}
	store.Iterate(func(id model.RowID, v record.View) bool {
		_ = idx.Insert(v.RA(), v.Dec(), v.Mag(), id)
		return true
	})
	return idx, nil
}

// Close closes all open tables, then the database.
func (d *Database) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	tables := make([]*Table, 0, len(d.tables))
	for _, t := range d.tables {
		tables = append(tables, t)
	}
	d.tables = make(map[string]*Table)
	d.mu.Unlock()

	var firstErr error
	for _, t := range tables {
		if err := t.closeStore(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readAll reads a whole blob into memory.
func readAll(ctx context.Context, s blobstore.Store, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, translateError(err)
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
