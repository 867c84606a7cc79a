package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/astrodb/record"
)

// ErrLayout is returned by New when a field layout is invalid:
// out-of-bounds ranges, overlapping fields, duplicate symbols, or
// inconsistent groups.
var ErrLayout = errors.New("schema: invalid layout")

// FieldType selects the conversion applied to a field during import.
//
// Values are wire-stable: they appear in persisted schema sidecars, so
// new types must only ever be appended.
type FieldType uint8

const (
	// TypeInvalid is the zero FieldType and never valid in a Schema.
	TypeInvalid FieldType = iota

	// TypeInt is a 32-bit signed integer.
	TypeInt

	// TypeShort is a 16-bit signed integer.
	TypeShort

	// TypeFloat is a single-precision float.
	TypeFloat

	// TypeDouble is a double-precision float.
	TypeDouble

	// TypeDegrees is a double-precision angle, stored in degrees
	// exactly as parsed. Any radian conversion happens above this
	// package, at the table layer.
	TypeDegrees

	// TypeString is fixed-width text, truncated to the declared width
	// and NUL-padded.
	TypeString

	// TypeDesignation writes the record's designation key arm.
	TypeDesignation

	// TypeSign flips the sign of its group's accumulated value when
	// the source text is negative. The flip is applied after all group
	// components have arrived, so column order never matters.
	TypeSign

	// TypeHMSHours, TypeHMSMinutes and TypeHMSSeconds are the
	// components of a right ascension given in hours, minutes and
	// seconds of time. Each accumulates its weighted contribution, in
	// degrees, into the group destination double.
	TypeHMSHours
	TypeHMSMinutes
	TypeHMSSeconds

	// TypeDMSDegrees, TypeDMSMinutes and TypeDMSSeconds are the
	// components of a declination given in degrees, arcminutes and
	// arcseconds. Each accumulates its weighted contribution, in
	// degrees, into the group destination double.
	TypeDMSDegrees
	TypeDMSMinutes
	TypeDMSSeconds

	// TypeDateMPC is an MPC-style packed epoch (century letter,
	// two-digit year, base-31 month and day), decoded to a decimal
	// year double.
	TypeDateMPC
)

var fieldTypeNames = map[FieldType]string{
	TypeInvalid:     "invalid",
	TypeInt:         "int",
	TypeShort:       "short",
	TypeFloat:       "float",
	TypeDouble:      "double",
	TypeDegrees:     "degrees",
	TypeString:      "string",
	TypeDesignation: "designation",
	TypeSign:        "sign",
	TypeHMSHours:    "hms-hours",
	TypeHMSMinutes:  "hms-minutes",
	TypeHMSSeconds:  "hms-seconds",
	TypeDMSDegrees:  "dms-degrees",
	TypeDMSMinutes:  "dms-minutes",
	TypeDMSSeconds:  "dms-seconds",
	TypeDateMPC:     "date-mpc",
}

// String returns a human-readable name for the field type.
func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}

	return fmt.Sprintf("fieldtype(%d)", uint8(t))
}

// Valid returns true for types that may appear in a Schema.
func (t FieldType) Valid() bool {
	return t > TypeInvalid && t <= TypeDateMPC
}

// GroupComponent returns true for types that write into a shared group
// destination rather than owning a range of their own.
func (t FieldType) GroupComponent() bool {
	switch t {
	case TypeSign,
		TypeHMSHours, TypeHMSMinutes, TypeHMSSeconds,
		TypeDMSDegrees, TypeDMSMinutes, TypeDMSSeconds:
		return true
	default:
		return false
	}
}

// Numeric returns true for types whose stored value compares
// numerically.
func (t FieldType) Numeric() bool {
	switch t {
	case TypeInt, TypeShort, TypeFloat, TypeDouble, TypeDegrees, TypeDateMPC:
		return true
	default:
		return false
	}
}

// NaturalWidth returns the storage width implied by the type, or 0
// when the caller must declare one (strings).
func (t FieldType) NaturalWidth() int {
	switch t {
	case TypeInt, TypeFloat:
		return 4
	case TypeShort:
		return 2
	case TypeDouble, TypeDegrees, TypeDateMPC:
		return 8
	case TypeSign, TypeHMSHours, TypeHMSMinutes, TypeHMSSeconds,
		TypeDMSDegrees, TypeDMSMinutes, TypeDMSSeconds:
		// Group components write the shared destination double.
		return 8
	case TypeDesignation:
		return record.DesignationSize
	default:
		return 0
	}
}

// Field maps one source column onto one destination byte range of the
// record.
//
// Offset and Width describe the destination. For group component types
// the destination is the shared double at GroupOffset (or Offset when
// GroupOffset is zero) and Width is ignored. AltSymbol optionally
// names a second source column tried when the primary column fails to
// parse; it is a row column name and need not be a schema field. A
// non-nil Converter replaces the built-in conversion for this field.
type Field struct {
	Name        string    `json:"name" msgpack:"name"`
	Symbol      string    `json:"symbol" msgpack:"symbol"`
	Offset      int       `json:"offset" msgpack:"offset"`
	Width       int       `json:"width" msgpack:"width"`
	Type        FieldType `json:"type" msgpack:"type"`
	Units       string    `json:"units,omitempty" msgpack:"units,omitempty"`
	GroupOffset int       `json:"group_offset,omitempty" msgpack:"group_offset,omitempty"`
	GroupPosn   int       `json:"group_posn,omitempty" msgpack:"group_posn,omitempty"`
	AltSymbol   string    `json:"alt_symbol,omitempty" msgpack:"alt_symbol,omitempty"`

	Converter Converter `json:"-" msgpack:"-"`
}

// DestOffset returns the byte offset the field's conversion writes to.
func (f *Field) DestOffset() int {
	if f.Type.GroupComponent() && f.GroupOffset > 0 {
		return f.GroupOffset
	}

	return f.Offset
}

// DestWidth returns the byte width of the field's destination range.
func (f *Field) DestWidth() int {
	if w := f.Type.NaturalWidth(); w > 0 {
		return w
	}

	return f.Width
}

// Schema is a validated, immutable record layout.
type Schema struct {
	fields     []Field
	bySymbol   map[string]int
	recordSize int
	digest     string
}

// New compiles and validates a record layout. Field order is
// preserved. Fields with a zero Width get their type's natural width;
// string fields must declare one. New fails with an error wrapping
// ErrLayout on duplicate symbols, out-of-bounds or overlapping
// destinations, and malformed groups.
func New(fields []Field, recordSize int) (*Schema, error) {
	if recordSize < record.HeadSize || recordSize > record.MaxRecordSize {
		return nil, fmt.Errorf("%w: record size %d outside [%d, %d]", ErrLayout, recordSize, record.HeadSize, record.MaxRecordSize)
	}

	s := &Schema{
		fields:     make([]Field, len(fields)),
		bySymbol:   make(map[string]int, len(fields)),
		recordSize: recordSize,
	}
	copy(s.fields, fields)

	for i := range s.fields {
		f := &s.fields[i]

		if err := normalizeField(f); err != nil {
			return nil, err
		}

		if _, dup := s.bySymbol[f.Symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %q", ErrLayout, f.Symbol)
		}

		s.bySymbol[f.Symbol] = i

		if f.DestOffset() < 0 || f.DestOffset()+f.DestWidth() > recordSize {
			return nil, fmt.Errorf("%w: field %q range [%d, %d) outside record of %d bytes",
				ErrLayout, f.Symbol, f.DestOffset(), f.DestOffset()+f.DestWidth(), recordSize)
		}
	}

	if err := checkOverlap(s.fields); err != nil {
		return nil, err
	}

	s.digest = computeDigest(s.fields, recordSize)

	return s, nil
}

func normalizeField(f *Field) error {
	if f.Symbol == "" {
		return fmt.Errorf("%w: field %q has no symbol", ErrLayout, f.Name)
	}

	if !f.Type.Valid() {
		return fmt.Errorf("%w: field %q has invalid type", ErrLayout, f.Symbol)
	}

	if f.GroupOffset < 0 || f.GroupPosn < 0 {
		return fmt.Errorf("%w: field %q has negative group offset or position", ErrLayout, f.Symbol)
	}

	if f.GroupOffset > 0 && !f.Type.GroupComponent() {
		return fmt.Errorf("%w: field %q has a group offset but type %s is not a group component", ErrLayout, f.Symbol, f.Type)
	}

	switch w := f.Type.NaturalWidth(); {
	case f.Type.GroupComponent():
		// The destination is the shared group double; a declared
		// width (often the source column width) is ignored.
		f.Width = w
	case w > 0 && f.Width == 0:
		f.Width = w
	case w > 0 && f.Width != w:
		return fmt.Errorf("%w: field %q width %d does not match type %s width %d", ErrLayout, f.Symbol, f.Width, f.Type, w)
	case w == 0 && f.Width <= 0:
		return fmt.Errorf("%w: field %q must declare a width", ErrLayout, f.Symbol)
	}

	if f.Type == TypeDesignation && f.Offset != record.OffsetDesignation {
		return fmt.Errorf("%w: field %q of type designation must target offset %d", ErrLayout, f.Symbol, record.OffsetDesignation)
	}

	return nil
}

// checkOverlap rejects layouts where two destination ranges intersect,
// unless both belong to the same group. Group members share one
// destination double, so same-destination components are the one
// sanctioned form of sharing.
func checkOverlap(fields []Field) error {
	type span struct {
		start, end int
		group      bool
		symbol     string
	}

	spans := make([]span, 0, len(fields))

	for i := range fields {
		f := &fields[i]
		spans = append(spans, span{
			start:  f.DestOffset(),
			end:    f.DestOffset() + f.DestWidth(),
			group:  f.Type.GroupComponent(),
			symbol: f.Symbol,
		})
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}

		return spans[i].end < spans[j].end
	})

	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]

		if cur.start >= prev.end {
			continue
		}

		if prev.group && cur.group && prev.start == cur.start {
			continue
		}

		return fmt.Errorf("%w: fields %q and %q overlap at byte %d", ErrLayout, prev.symbol, cur.symbol, cur.start)
	}

	return nil
}

// RecordSize returns the declared record size in bytes.
func (s *Schema) RecordSize() int { return s.recordSize }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns the fields in declaration order. The slice is shared;
// callers must treat it as read-only.
func (s *Schema) Fields() []Field { return s.fields }

// FieldBySymbol returns the field with the given symbol.
func (s *Schema) FieldBySymbol(symbol string) (*Field, bool) {
	i, ok := s.bySymbol[symbol]
	if !ok {
		return nil, false
	}

	return &s.fields[i], true
}

// Digest returns a stable hex digest of the compiled layout. Two
// schemas with the same fields and record size share a digest; it is
// used to verify persisted tables against the schema they were written
// with.
func (s *Schema) Digest() string { return s.digest }

func computeDigest(fields []Field, recordSize int) string {
	h := sha256.New()
	fmt.Fprintf(h, "record:%d\n", recordSize)

	for i := range fields {
		f := &fields[i]
		fmt.Fprintf(h, "%s|%s|%d|%d|%d|%s|%d|%d|%s\n",
			f.Name, f.Symbol, f.Offset, f.Width, f.Type, f.Units, f.GroupOffset, f.GroupPosn, f.AltSymbol)
	}

	return hex.EncodeToString(h.Sum(nil))
}
