// Package rowsource defines the row supply side of the import
// pipeline: a Source hands over one textual catalog row at a time as a
// mapping from column symbol to raw text.
//
// The engine never parses catalog-specific file formats itself; it
// pulls rows synchronously from a Source until io.EOF. SliceSource
// serves rows from memory, FixedWidth reads the fixed-width column
// files most published catalogs ship as, decompressing gzip
// transparently.
package rowsource

import "io"

// Row maps column symbols to their raw text values for one catalog
// row.
type Row map[string]string

// Source supplies catalog rows. Next returns io.EOF when the data is
// exhausted; any other error is a source failure and aborts the
// import that is consuming it.
type Source interface {
	Next() (Row, error)
}

// SliceSource serves rows from a slice.
type SliceSource struct {
	rows []Row
	pos  int
}

var _ Source = (*SliceSource)(nil)

// NewSliceSource returns a Source yielding rows in order.
func NewSliceSource(rows ...Row) *SliceSource {
	return &SliceSource{rows: rows}
}

// Next implements Source.
func (s *SliceSource) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}

	row := s.rows[s.pos]
	s.pos++

	return row, nil
}
