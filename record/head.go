package record

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/astrodb/model"
)

// Head layout. Offsets are in bytes from the start of a record; the
// head occupies [0, HeadSize) and catalog fields start at HeadSize.
const (
	// OffsetKeyKind holds the model.KeyKind discriminator byte.
	// Bytes 1..7 are reserved padding.
	OffsetKeyKind = 0

	// OffsetKeyNumeric holds the numeric key as a uint64.
	OffsetKeyNumeric = 8

	// OffsetDesignation holds the designation key, NUL-padded to
	// DesignationSize bytes.
	OffsetDesignation = 16

	// OffsetRA and OffsetDec hold the position in radians as float64.
	OffsetRA  = 32
	OffsetDec = 40

	// OffsetMag holds the brightness as float32.
	OffsetMag = 48

	// OffsetSize holds the angular size as float32.
	OffsetSize = 52

	// HeadSize is the size of the record head. Record sizes passed to
	// New must be at least this large.
	HeadSize = 56

	// DesignationSize is the width of the designation slot.
	DesignationSize = model.MaxDesignationLen
)

// View is a read-only window over one record's bytes. The zero View is
// empty; all accessors on it return zero values.
//
// Accessors take byte offsets into the record. Offsets are expected to
// come from a validated schema and lie within the record; out-of-range
// reads return the zero value rather than panicking.
type View struct {
	b []byte
}

// NewView wraps b as a read-only record view. The caller must not
// mutate b while the view is in use.
func NewView(b []byte) View { return View{b: b} }

// Len returns the record size in bytes.
func (v View) Len() int { return len(v.b) }

// Bytes returns the underlying record bytes. Callers must treat the
// slice as read-only.
func (v View) Bytes() []byte { return v.b }

// Uint8At returns the byte at off.
func (v View) Uint8At(off int) uint8 {
	if off < 0 || off >= len(v.b) {
		return 0
	}

	return v.b[off]
}

// Int16At returns the little-endian int16 at off.
func (v View) Int16At(off int) int16 {
	if off < 0 || off+2 > len(v.b) {
		return 0
	}

	return int16(binary.LittleEndian.Uint16(v.b[off:]))
}

// Int32At returns the little-endian int32 at off.
func (v View) Int32At(off int) int32 {
	if off < 0 || off+4 > len(v.b) {
		return 0
	}

	return int32(binary.LittleEndian.Uint32(v.b[off:]))
}

// Uint64At returns the little-endian uint64 at off.
func (v View) Uint64At(off int) uint64 {
	if off < 0 || off+8 > len(v.b) {
		return 0
	}

	return binary.LittleEndian.Uint64(v.b[off:])
}

// Float32At returns the little-endian float32 at off.
func (v View) Float32At(off int) float32 {
	if off < 0 || off+4 > len(v.b) {
		return 0
	}

	return math.Float32frombits(binary.LittleEndian.Uint32(v.b[off:]))
}

// Float64At returns the little-endian float64 at off.
func (v View) Float64At(off int) float64 {
	if off < 0 || off+8 > len(v.b) {
		return 0
	}

	return math.Float64frombits(binary.LittleEndian.Uint64(v.b[off:]))
}

// StringAt returns the string stored at off with the given width. The
// result ends at the first NUL byte or after width bytes, whichever
// comes first.
func (v View) StringAt(off, width int) string {
	if off < 0 || width <= 0 || off+width > len(v.b) {
		return ""
	}

	s := v.b[off : off+width]
	for i, c := range s {
		if c == 0 {
			s = s[:i]

			break
		}
	}

	return string(s)
}

// Key returns the record's identity key.
func (v View) Key() model.Key {
	switch model.KeyKind(v.Uint8At(OffsetKeyKind)) {
	case model.KeyKindNumeric:
		return model.NumericKey(v.Uint64At(OffsetKeyNumeric))
	case model.KeyKindDesignation:
		return model.DesignationKey(v.StringAt(OffsetDesignation, DesignationSize))
	default:
		return model.Key{}
	}
}

// RA returns the right ascension in radians.
func (v View) RA() float64 { return v.Float64At(OffsetRA) }

// Dec returns the declination in radians.
func (v View) Dec() float64 { return v.Float64At(OffsetDec) }

// Mag returns the brightness.
func (v View) Mag() float32 { return v.Float32At(OffsetMag) }

// AngSize returns the angular size.
func (v View) AngSize() float32 { return v.Float32At(OffsetSize) }
