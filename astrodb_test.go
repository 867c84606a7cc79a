package astrodb_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/astrodb"
	"github.com/hupe1980/astrodb/model"
	"github.com/hupe1980/astrodb/record"
	"github.com/hupe1980/astrodb/rowsource"
	"github.com/hupe1980/astrodb/schema"
)

const starRecordSize = record.HeadSize + 12

// starFields is the layout shared by most facade tests: the head
// carries identity, position and brightness; spectral type and B-V
// color trail it.
func starFields() []schema.Field {
	return []schema.Field{
		{Name: "Designation", Symbol: "name", Offset: record.OffsetDesignation, Type: schema.TypeDesignation},
		{Name: "Right ascension", Symbol: "ra", Offset: record.OffsetRA, Type: schema.TypeDegrees, Units: "deg"},
		{Name: "Declination", Symbol: "dec", Offset: record.OffsetDec, Type: schema.TypeDegrees, Units: "deg"},
		{Name: "Visual magnitude", Symbol: "vmag", Offset: record.OffsetMag, Type: schema.TypeFloat, Units: "mag"},
		{Name: "Spectral type", Symbol: "sptype", Offset: record.HeadSize, Width: 8, Type: schema.TypeString},
		{Name: "B-V color", Symbol: "bv", Offset: record.HeadSize + 8, Type: schema.TypeFloat, Units: "mag"},
	}
}

func starRows() []rowsource.Row {
	return []rowsource.Row{
		{"name": "Sirius", "ra": "101.2871", "dec": "-16.7161", "vmag": "-1.46", "sptype": "A1V", "bv": "0.00"},
		{"name": "Canopus", "ra": "95.9880", "dec": "-52.6957", "vmag": "-0.74", "sptype": "F0II", "bv": "0.15"},
		{"name": "Arcturus", "ra": "213.9154", "dec": "19.1824", "vmag": "-0.05", "sptype": "K1.5III", "bv": "1.23"},
		{"name": "Vega", "ra": "279.2347", "dec": "38.7837", "vmag": "0.03", "sptype": "A0V", "bv": "0.00"},
		{"name": "Rigel", "ra": "78.6345", "dec": "-8.2016", "vmag": "0.13", "sptype": "B8Ia", "bv": "-0.03"},
		{"name": "Betelgeuse", "ra": "88.7929", "dec": "7.4071", "vmag": "0.42", "sptype": "M1-2Ia", "bv": "1.85"},
		{"name": "Proxima", "ra": "217.4289", "dec": "-62.6795", "vmag": "11.13", "sptype": "M5.5Ve", "bv": "1.82"},
	}
}

func openTestDB(t *testing.T, optFns ...astrodb.Option) (*astrodb.Library, *astrodb.Database) {
	t.Helper()

	lib, err := astrodb.OpenLibrary("", "", t.TempDir(), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })

	db, err := astrodb.NewDatabase(lib, astrodb.DefaultDepth, 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return lib, db
}

func importStars(t *testing.T, db *astrodb.Database, id astrodb.CatalogID, optFns ...func(o *astrodb.ImportTableOptions)) *astrodb.Table {
	t.Helper()

	tbl, err := db.ImportTable(id, optFns...)
	require.NoError(t, err)
	require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

	_, err = tbl.RunImport(context.Background(), rowsource.NewSliceSource(starRows()...))
	require.NoError(t, err)

	return tbl
}

func TestImportLifecycle(t *testing.T) {
	id := astrodb.CatalogID{Class: "star", ID: "V50", Name: "bright"}

	t.Run("StateMachine", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id)
		require.NoError(t, err)
		assert.Equal(t, astrodb.StateCreated, tbl.State())

		// Import before a schema is bound must fail.
		_, err = tbl.RunImport(context.Background(), rowsource.NewSliceSource())
		var ife *astrodb.ErrImportFailure
		require.ErrorAs(t, err, &ife)
		assert.Equal(t, astrodb.StateCreated, ife.State)

		require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))
		assert.Equal(t, astrodb.StateSchemaBound, tbl.State())

		// The schema locks on bind.
		err = tbl.BindSchema(starFields(), starRecordSize)
		require.ErrorAs(t, err, &ife)

		sum, err := tbl.RunImport(context.Background(), rowsource.NewSliceSource(starRows()...))
		require.NoError(t, err)
		assert.Equal(t, astrodb.StateComplete, tbl.State())
		assert.Equal(t, uint64(7), sum.RowsRead)
		assert.Equal(t, uint64(7), sum.RecordsImported)
		assert.Equal(t, 7, tbl.Count())

		// A second run on a completed table must fail.
		_, err = tbl.RunImport(context.Background(), rowsource.NewSliceSource())
		require.ErrorAs(t, err, &ife)
		assert.Equal(t, astrodb.StateComplete, ife.State)
	})

	t.Run("BrightnessBounds", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id, func(o *astrodb.ImportTableOptions) {
			o.BrightnessSymbol = "vmag"
			o.BrightMin = 0
			o.BrightMax = 16
		})
		require.NoError(t, err)
		require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

		rows := []rowsource.Row{
			{"name": "inside", "ra": "10", "dec": "10", "vmag": "5.0"},
			{"name": "outside", "ra": "20", "dec": "20", "vmag": "20.0"},
		}
		sum, err := tbl.RunImport(context.Background(), rowsource.NewSliceSource(rows...))
		require.NoError(t, err)

		assert.Equal(t, uint64(2), sum.RowsRead)
		assert.Equal(t, uint64(1), sum.RecordsImported)
		assert.Equal(t, uint64(1), sum.SkippedOutOfBounds)
		assert.Equal(t, 1, tbl.Count())

		v, ok := tbl.Record(0)
		require.True(t, ok)
		name, _ := v.Key().Designation()
		assert.Equal(t, "inside", name)
	})

	t.Run("BrightnessOrdering", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id, func(o *astrodb.ImportTableOptions) {
			o.BrightnessSymbol = "vmag"
		})
		require.NoError(t, err)
		require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

		_, err = tbl.RunImport(context.Background(), rowsource.NewSliceSource(starRows()...))
		require.NoError(t, err)

		// Ascending magnitude: brightest first.
		last := float32(math.Inf(-1))
		for i := 0; i < tbl.Count(); i++ {
			v, ok := tbl.Record(model.RowID(i))
			require.True(t, ok)
			assert.GreaterOrEqual(t, v.Mag(), last)
			last = v.Mag()
		}

		first, _ := tbl.Record(0)
		name, _ := first.Key().Designation()
		assert.Equal(t, "Sirius", name)
	})

	t.Run("DescendingOrder", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id, func(o *astrodb.ImportTableOptions) {
			o.BrightnessSymbol = "vmag"
			o.Order = astrodb.OrderDescending
		})
		require.NoError(t, err)
		require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

		_, err = tbl.RunImport(context.Background(), rowsource.NewSliceSource(starRows()...))
		require.NoError(t, err)

		first, _ := tbl.Record(0)
		name, _ := first.Key().Designation()
		assert.Equal(t, "Proxima", name)
	})

	t.Run("FieldFailuresAbsorbed", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id)
		require.NoError(t, err)
		require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

		rows := []rowsource.Row{
			{"name": "good", "ra": "10", "dec": "10", "vmag": "1.0", "bv": "0.5"},
			{"name": "bad-color", "ra": "20", "dec": "20", "vmag": "2.0", "bv": "n/a"},
		}
		sum, err := tbl.RunImport(context.Background(), rowsource.NewSliceSource(rows...))
		require.NoError(t, err)

		// The malformed color costs the field, never the row.
		assert.Equal(t, uint64(2), sum.RecordsImported)
		assert.GreaterOrEqual(t, sum.FieldFailures, uint64(1))

		v, ok := tbl.Record(1)
		require.True(t, ok)
		assert.True(t, math.IsNaN(float64(v.Float32At(record.HeadSize+8))))
	})

	t.Run("UnknownBrightnessField", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id, func(o *astrodb.ImportTableOptions) {
			o.BrightnessSymbol = "nope"
		})
		require.NoError(t, err)
		require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

		_, err = tbl.RunImport(context.Background(), rowsource.NewSliceSource(starRows()...))
		var uf *astrodb.ErrUnknownField
		require.ErrorAs(t, err, &uf)
		assert.Equal(t, "nope", uf.Symbol)
		assert.Equal(t, astrodb.StateFailed, tbl.State())
	})

	t.Run("InvalidBounds", func(t *testing.T) {
		_, db := openTestDB(t)

		_, err := db.ImportTable(id, func(o *astrodb.ImportTableOptions) {
			o.BrightnessSymbol = "vmag"
			o.BrightMin = 10
			o.BrightMax = 0
		})
		var ce *astrodb.ErrConstraint
		require.ErrorAs(t, err, &ce)
	})

	t.Run("SexagesimalGroups", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id)
		require.NoError(t, err)

		fields := []schema.Field{
			{Name: "Designation", Symbol: "name", Offset: record.OffsetDesignation, Type: schema.TypeDesignation},
			{Name: "RA hours", Symbol: "rah", Type: schema.TypeHMSHours, GroupOffset: record.OffsetRA, GroupPosn: 1},
			{Name: "RA minutes", Symbol: "ram", Type: schema.TypeHMSMinutes, GroupOffset: record.OffsetRA, GroupPosn: 2},
			{Name: "RA seconds", Symbol: "ras", Type: schema.TypeHMSSeconds, GroupOffset: record.OffsetRA, GroupPosn: 3},
			{Name: "Dec sign", Symbol: "dec-", Type: schema.TypeSign, GroupOffset: record.OffsetDec, GroupPosn: 0},
			{Name: "Dec degrees", Symbol: "decd", Type: schema.TypeDMSDegrees, GroupOffset: record.OffsetDec, GroupPosn: 1},
			{Name: "Dec arcminutes", Symbol: "decm", Type: schema.TypeDMSMinutes, GroupOffset: record.OffsetDec, GroupPosn: 2},
			{Name: "Dec arcseconds", Symbol: "decs", Type: schema.TypeDMSSeconds, GroupOffset: record.OffsetDec, GroupPosn: 3},
			{Name: "Visual magnitude", Symbol: "vmag", Offset: record.OffsetMag, Type: schema.TypeFloat},
		}
		require.NoError(t, tbl.BindSchema(fields, record.HeadSize))

		row := rowsource.Row{
			"name": "Sirius",
			"rah":  "06", "ram": "45", "ras": "08.9",
			"dec-": "-", "decd": "16", "decm": "42", "decs": "58",
			"vmag": "-1.46",
		}
		_, err = tbl.RunImport(context.Background(), rowsource.NewSliceSource(row))
		require.NoError(t, err)

		v, ok := tbl.Record(0)
		require.True(t, ok)

		wantRA := (6 + 45.0/60 + 8.9/3600) * 15 * math.Pi / 180
		wantDec := -(16 + 42.0/60 + 58.0/3600) * math.Pi / 180
		assert.InDelta(t, wantRA, v.RA(), 1e-9)
		assert.InDelta(t, wantDec, v.Dec(), 1e-9)
	})

	t.Run("SchemaViolation", func(t *testing.T) {
		_, db := openTestDB(t)

		tbl, err := db.ImportTable(id)
		require.NoError(t, err)

		fields := []schema.Field{
			{Name: "A", Symbol: "a", Offset: record.HeadSize, Type: schema.TypeDouble},
			{Name: "B", Symbol: "b", Offset: record.HeadSize + 4, Type: schema.TypeDouble},
		}
		err = tbl.BindSchema(fields, record.HeadSize+16)
		require.ErrorIs(t, err, astrodb.ErrSchema)
	})
}

func TestReopenTable(t *testing.T) {
	root := t.TempDir()
	id := astrodb.CatalogID{Class: "star", ID: "V50", Name: "bright"}
	ctx := context.Background()

	lib, err := astrodb.OpenLibrary("", "", root)
	require.NoError(t, err)

	db, err := astrodb.NewDatabase(lib, astrodb.DefaultDepth, 8)
	require.NoError(t, err)

	tbl, err := db.ImportTable(id, func(o *astrodb.ImportTableOptions) {
		o.BrightnessSymbol = "vmag"
	})
	require.NoError(t, err)
	require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

	sum, err := tbl.RunImport(ctx, rowsource.NewSliceSource(starRows()...))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, lib.Close())

	// A fresh library over the same root reopens the persisted table.
	lib2, err := astrodb.OpenLibrary("", "", root)
	require.NoError(t, err)
	defer lib2.Close()

	db2, err := astrodb.NewDatabase(lib2, astrodb.DefaultDepth, 8)
	require.NoError(t, err)
	defer db2.Close()

	tbl2, err := db2.OpenTable(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, astrodb.StateComplete, tbl2.State())
	assert.Equal(t, int(sum.RecordsImported), tbl2.Count())

	first, ok := tbl2.Record(0)
	require.True(t, ok)
	name, _ := first.Key().Designation()
	assert.Equal(t, "Sirius", name)
	assert.InDelta(t, 101.2871*math.Pi/180, first.RA(), 1e-9)

	// The rebuilt index answers cone queries.
	set := astrodb.NewObjectSet(tbl2)
	require.NoError(t, set.ApplyConstraints(first.RA(), first.Dec(), 0.01, -99, 99))
	require.NoError(t, set.Populate(ctx))
	assert.Equal(t, 1, set.Count())

	t.Run("MissingTable", func(t *testing.T) {
		_, err := db2.OpenTable(ctx, astrodb.CatalogID{Class: "star", ID: "V50", Name: "nope"})
		var of *astrodb.ErrOpenFailure
		require.ErrorAs(t, err, &of)
		require.ErrorIs(t, err, astrodb.ErrNotFound)
	})
}

func TestCompressedRoundTrip(t *testing.T) {
	root := t.TempDir()
	id := astrodb.CatalogID{Class: "star", ID: "V50", Name: "packed"}
	ctx := context.Background()

	lib, err := astrodb.OpenLibrary("", "", root, astrodb.WithCompression(true))
	require.NoError(t, err)

	db, err := astrodb.NewDatabase(lib, astrodb.DefaultDepth, 8)
	require.NoError(t, err)

	importStars(t, db, id)
	require.NoError(t, db.Close())
	require.NoError(t, lib.Close())

	lib2, err := astrodb.OpenLibrary("", "", root)
	require.NoError(t, err)
	defer lib2.Close()

	db2, err := astrodb.NewDatabase(lib2, astrodb.DefaultDepth, 8)
	require.NoError(t, err)
	defer db2.Close()

	tbl, err := db2.OpenTable(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, tbl.Count())
}

func TestDatabase(t *testing.T) {
	t.Run("CapacityExceeded", func(t *testing.T) {
		lib, err := astrodb.OpenLibrary("", "", t.TempDir())
		require.NoError(t, err)
		defer lib.Close()

		db, err := astrodb.NewDatabase(lib, astrodb.DefaultDepth, 1)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.ImportTable(astrodb.CatalogID{Class: "star", ID: "a", Name: "one"})
		require.NoError(t, err)

		_, err = db.ImportTable(astrodb.CatalogID{Class: "star", ID: "a", Name: "two"})
		var ce *astrodb.ErrCapacityExceeded
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 1, ce.Capacity)
	})

	t.Run("DuplicateOpen", func(t *testing.T) {
		_, db := openTestDB(t)

		id := astrodb.CatalogID{Class: "star", ID: "a", Name: "one"}
		_, err := db.ImportTable(id)
		require.NoError(t, err)

		_, err = db.ImportTable(id)
		var of *astrodb.ErrOpenFailure
		require.ErrorAs(t, err, &of)
	})

	t.Run("CloseFreesSlot", func(t *testing.T) {
		_, db := openTestDB(t)

		id := astrodb.CatalogID{Class: "star", ID: "a", Name: "one"}
		tbl, err := db.ImportTable(id)
		require.NoError(t, err)
		assert.Equal(t, 1, db.Len())

		require.NoError(t, tbl.Close())
		assert.Equal(t, 0, db.Len())

		_, err = db.ImportTable(id)
		require.NoError(t, err)
	})

	t.Run("InvalidDepth", func(t *testing.T) {
		lib, err := astrodb.OpenLibrary("", "", t.TempDir())
		require.NoError(t, err)
		defer lib.Close()

		_, err = astrodb.NewDatabase(lib, 0, 8)
		var ce *astrodb.ErrConstraint
		require.ErrorAs(t, err, &ce)

		_, err = astrodb.NewDatabase(lib, 99, 8)
		require.ErrorAs(t, err, &ce)
	})

	t.Run("TablesSorted", func(t *testing.T) {
		_, db := openTestDB(t)

		for _, name := range []string{"zeta", "alpha", "mu"} {
			_, err := db.ImportTable(astrodb.CatalogID{Class: "star", ID: "a", Name: name})
			require.NoError(t, err)
		}

		ids := db.Tables()
		require.Len(t, ids, 3)
		assert.Equal(t, "alpha", ids[0].Name)
		assert.Equal(t, "mu", ids[1].Name)
		assert.Equal(t, "zeta", ids[2].Name)
	})

	t.Run("CloseClosesTables", func(t *testing.T) {
		lib, err := astrodb.OpenLibrary("", "", t.TempDir())
		require.NoError(t, err)
		defer lib.Close()

		db, err := astrodb.NewDatabase(lib, astrodb.DefaultDepth, 8)
		require.NoError(t, err)

		tbl := importStars(t, db, astrodb.CatalogID{Class: "star", ID: "a", Name: "one"})
		require.NoError(t, db.Close())

		_, ok := tbl.Record(0)
		assert.False(t, ok)

		_, err = db.ImportTable(astrodb.CatalogID{Class: "star", ID: "a", Name: "two"})
		require.ErrorIs(t, err, astrodb.ErrClosed)
	})
}

func TestLibrary(t *testing.T) {
	t.Run("EmptyRoot", func(t *testing.T) {
		_, err := astrodb.OpenLibrary("cdsarc.u-strasbg.fr", "pub/cats", "")
		var of *astrodb.ErrOpenFailure
		require.ErrorAs(t, err, &of)
	})

	t.Run("IdentityValidation", func(t *testing.T) {
		_, db := openTestDB(t)

		bad := []astrodb.CatalogID{
			{Class: "", ID: "a", Name: "b"},
			{Class: "star", ID: "a/b", Name: "c"},
			{Class: "star", ID: "..", Name: "c"},
			{Class: "star", ID: "a", Name: `b\c`},
		}
		for _, id := range bad {
			_, err := db.ImportTable(id)
			var ce *astrodb.ErrConstraint
			require.ErrorAs(t, err, &ce, "id %q", id.String())
		}
	})

	t.Run("CloseIdempotent", func(t *testing.T) {
		lib, err := astrodb.OpenLibrary("", "", t.TempDir())
		require.NoError(t, err)

		assert.NoError(t, lib.Close())
		assert.NoError(t, lib.Close())

		_, err = lib.Manifest()
		require.ErrorIs(t, err, astrodb.ErrClosed)
	})

	t.Run("NoRemoteConfigured", func(t *testing.T) {
		lib, err := astrodb.OpenLibrary("", "", t.TempDir())
		require.NoError(t, err)
		defer lib.Close()

		_, err = lib.Mirror(context.Background(), "")
		var ce *astrodb.ErrConstraint
		require.ErrorAs(t, err, &ce)
	})
}

func TestMetricsCollection(t *testing.T) {
	mc := &astrodb.BasicMetricsCollector{}

	lib, err := astrodb.OpenLibrary("", "", t.TempDir(), astrodb.WithMetricsCollector(mc))
	require.NoError(t, err)
	defer lib.Close()

	db, err := astrodb.NewDatabase(lib, astrodb.DefaultDepth, 8)
	require.NoError(t, err)
	defer db.Close()

	tbl := importStars(t, db, astrodb.CatalogID{Class: "star", ID: "V50", Name: "bright"})

	ctx := context.Background()
	set := astrodb.NewObjectSet(tbl)
	require.NoError(t, set.ApplyConstraints(0, 0, math.Pi, -99, 99))
	require.NoError(t, set.Populate(ctx))

	q := astrodb.NewSearch(tbl)
	require.NoError(t, q.AddComparator("vmag", astrodb.LT, "1"))
	_, err = q.Execute(ctx, set)
	require.NoError(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.ImportCount)
	assert.Equal(t, int64(7), stats.ImportRecords)
	assert.Equal(t, int64(0), stats.ImportErrors)
	assert.Equal(t, int64(1), stats.PopulateCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Positive(t, stats.ImportAvgNanos)
}

func TestRowSourceFailurePropagates(t *testing.T) {
	_, db := openTestDB(t)

	tbl, err := db.ImportTable(astrodb.CatalogID{Class: "star", ID: "V50", Name: "bright"})
	require.NoError(t, err)
	require.NoError(t, tbl.BindSchema(starFields(), starRecordSize))

	boom := errors.New("socket reset")
	_, err = tbl.RunImport(context.Background(), &failingSource{after: 2, err: boom})

	var ife *astrodb.ErrImportFailure
	require.ErrorAs(t, err, &ife)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, astrodb.StateFailed, tbl.State())

	// A failed table refuses queries.
	set := astrodb.NewObjectSet(tbl)
	require.NoError(t, set.ApplyConstraints(0, 0, 1, -99, 99))
	require.ErrorAs(t, set.Populate(context.Background()), &ife)
}

// failingSource yields a few rows, then a permanent error.
type failingSource struct {
	after int
	pos   int
	err   error
}

func (f *failingSource) Next() (rowsource.Row, error) {
	if f.pos >= f.after {
		return nil, f.err
	}
	f.pos++
	rows := starRows()
	return rows[f.pos-1], nil
}
