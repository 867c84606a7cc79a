// Package astrodb provides an embedded astronomical catalog store for Go.
//
// Astrodb imports column-described catalogs (stars, deep-sky objects,
// asteroids) into fixed-size binary records, indexes them on a sky grid
// of declination bands split into cosine-scaled right ascension sectors,
// and answers cone queries and field searches without a server process.
//
// # Quick Start
//
// Local mode:
//
//	ctx := context.Background()
//	lib, _ := astrodb.OpenLibrary("", "", "./data")
//	db, _ := astrodb.NewDatabase(lib, astrodb.DefaultDepth, 8)
//	tbl, _ := db.OpenTable(ctx, astrodb.CatalogID{Class: "star", ID: "V50", Name: "bsc5"})
//
// Cloud mode:
//
//	s3Store, _ := s3.NewStoreFromEnv(ctx, "my-bucket", "catalogs/")
//	lib, _ := astrodb.OpenLibrary("cdsarc.u-strasbg.fr", "pub/cats", "./cache",
//	    astrodb.WithRemoteStore(s3Store),
//	    astrodb.WithBlockCache(64<<20))
//
// A table missing locally is mirrored from the remote store on first
// open. Publish pushes a locally imported library back.
//
// # Importing a Catalog
//
// Imports bind a field schema, stream rows from a source, and persist
// the result in one pass:
//
//	tbl, _ := db.ImportTable(id, func(o *astrodb.ImportTableOptions) {
//	    o.BrightnessSymbol = "Vmag"
//	    o.BrightMax = 8.0
//	})
//	tbl.BindSchema(fields, recordSize)
//	summary, _ := tbl.RunImport(ctx, src)
//	fmt.Println(summary.RecordsImported, summary.SkippedOutOfBounds)
//
// Records are sorted by the brightness field and written once; the
// table is immutable afterwards.
//
// # Cone Queries and Searches
//
// An ObjectSet selects records inside a cone on the sky (angles in
// radians); a Search filters them further by arbitrary fields:
//
//	set := astrodb.NewObjectSet(tbl)
//	set.ApplyConstraints(ra, dec, fov, -2, 6.5)
//	set.Populate(ctx)
//
//	q := astrodb.NewSearch(tbl)
//	q.AddComparator("SpType", astrodb.EQ, "M*")
//	q.AddComparator("Vmag", astrodb.LT, "3")
//	q.AddOperator(astrodb.AND)
//	n, _ := q.Execute(ctx, set)
//
// # Key Features
//
//   - Fixed-size records with a uniform head (key, position, magnitude)
//   - Zenith equal-area tessellation index, magnitude-ordered cells
//   - Schema-driven column conversion (sexagesimal groups, MPC dates)
//   - Cloud-native storage (S3/MinIO via blobstore) with local mirror
//   - Optional compression, block cache, and IO/memory throttling
package astrodb
