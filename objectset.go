package astrodb

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/astrodb/model"
	"github.com/hupe1980/astrodb/record"
)

// ObjectSet selects the records of one table inside a spatial cone and
// a magnitude band. A fresh set is empty; ApplyConstraints stores the
// selection and Populate materializes it. Each populate recomputes the
// selection in full, so the refs always reflect exactly one constraint
// against one table state.
//
// An ObjectSet is not safe for concurrent use.
type ObjectSet struct {
	table *Table

	ra, dec, fov   float64
	magMin, magMax float64
	constrained    bool

	refs []model.RowID
}

// NewObjectSet binds an empty set to t.
func NewObjectSet(t *Table) *ObjectSet {
	return &ObjectSet{table: t}
}

// Table returns the table the set is bound to.
func (s *ObjectSet) Table() *Table { return s.table }

// ApplyConstraints stores the selection: a cone of radius fov around
// (ra, dec), all in radians, and the inclusive magnitude band
// [magMin, magMax]. It validates and stores only; the set stays as it
// was until the next Populate.
func (s *ObjectSet) ApplyConstraints(ra, dec, fov, magMin, magMax float64) error {
	switch {
	case !isFinite(ra) || !isFinite(dec) || !isFinite(fov):
		return &ErrConstraint{Reason: "non-finite cone center or radius"}
	case fov < 0:
		return &ErrConstraint{Reason: fmt.Sprintf("negative field of view: %g", fov)}
	case math.IsNaN(magMin) || math.IsNaN(magMax):
		return &ErrConstraint{Reason: "non-finite magnitude bound"}
	case magMin > magMax:
		return &ErrConstraint{Reason: fmt.Sprintf("magnitude bounds inverted: min %g > max %g", magMin, magMax)}
	}

	s.ra, s.dec, s.fov = ra, dec, fov
	s.magMin, s.magMax = magMin, magMax
	s.constrained = true
	s.refs = nil
	return nil
}

// Populate runs the spatial range query and replaces the set's refs
// with the result, ordered by ascending magnitude then insertion
// sequence. An empty result is not an error.
func (s *ObjectSet) Populate(ctx context.Context) error {
	start := time.Now()

	err := s.populate(ctx)

	s.table.db.metrics.RecordPopulate(len(s.refs), time.Since(start), err)
	s.table.db.logger.LogPopulate(ctx, s.table.id.String(), len(s.refs), err)
	return err
}

func (s *ObjectSet) populate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.constrained {
		return &ErrConstraint{Reason: "no constraints applied"}
	}

	_, idx, err := s.table.snapshot()
	if err != nil {
		return err
	}

	s.refs = idx.RangeQuery(s.ra, s.dec, s.fov, float32(s.magMin), float32(s.magMax))
	return nil
}

// Count returns the number of selected records. An empty or
// never-populated set counts zero.
func (s *ObjectSet) Count() int { return len(s.refs) }

// Refs returns a copy of the selected record references, in populate
// order.
func (s *ObjectSet) Refs() []model.RowID {
	out := make([]model.RowID, len(s.refs))
	copy(out, s.refs)
	return out
}

// At materializes a read-only view of the i-th selected record.
func (s *ObjectSet) At(i int) (record.View, bool) {
	if i < 0 || i >= len(s.refs) {
		return record.View{}, false
	}
	return s.table.Record(s.refs[i])
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
