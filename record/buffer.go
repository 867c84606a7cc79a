package record

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/astrodb/model"
)

// Buffer is a single mutable record under construction. Conversion
// callbacks write field values through the typed Put and Add methods;
// the import pipeline calls Finalize once per row and then copies the
// bytes into a Store.
//
// Out-of-range writes are dropped silently, mirroring the read side:
// offsets come from a validated schema and cannot miss in practice.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	b   []byte
	neg map[int]struct{}
}

// NewBuffer returns a zeroed Buffer of the given record size.
func NewBuffer(recordSize int) *Buffer {
	return &Buffer{b: make([]byte, recordSize)}
}

// Len returns the record size in bytes.
func (b *Buffer) Len() int { return len(b.b) }

// Bytes returns the raw record bytes. The slice aliases the buffer and
// is invalidated by Reset.
func (b *Buffer) Bytes() []byte { return b.b }

// View returns a read-only view over the buffer's current contents.
func (b *Buffer) View() View { return View{b: b.b} }

// Reset zeroes the record bytes and clears pending negations, making
// the buffer ready for the next row.
func (b *Buffer) Reset() {
	clear(b.b)
	clear(b.neg)
}

// PutUint8 stores v at off.
func (b *Buffer) PutUint8(off int, v uint8) {
	if off < 0 || off >= len(b.b) {
		return
	}

	b.b[off] = v
}

// PutInt16 stores v at off in little-endian order.
func (b *Buffer) PutInt16(off int, v int16) {
	if off < 0 || off+2 > len(b.b) {
		return
	}

	binary.LittleEndian.PutUint16(b.b[off:], uint16(v))
}

// PutInt32 stores v at off in little-endian order.
func (b *Buffer) PutInt32(off int, v int32) {
	if off < 0 || off+4 > len(b.b) {
		return
	}

	binary.LittleEndian.PutUint32(b.b[off:], uint32(v))
}

// PutUint64 stores v at off in little-endian order.
func (b *Buffer) PutUint64(off int, v uint64) {
	if off < 0 || off+8 > len(b.b) {
		return
	}

	binary.LittleEndian.PutUint64(b.b[off:], v)
}

// PutFloat32 stores v at off in little-endian order.
func (b *Buffer) PutFloat32(off int, v float32) {
	if off < 0 || off+4 > len(b.b) {
		return
	}

	binary.LittleEndian.PutUint32(b.b[off:], math.Float32bits(v))
}

// PutFloat64 stores v at off in little-endian order.
func (b *Buffer) PutFloat64(off int, v float64) {
	if off < 0 || off+8 > len(b.b) {
		return
	}

	binary.LittleEndian.PutUint64(b.b[off:], math.Float64bits(v))
}

// AddFloat64 adds v to the float64 at off. Adding is commutative, so
// values assembled from several source columns come out the same
// regardless of column order; a NaN contribution poisons the slot for
// good.
func (b *Buffer) AddFloat64(off int, v float64) {
	if off < 0 || off+8 > len(b.b) {
		return
	}

	cur := math.Float64frombits(binary.LittleEndian.Uint64(b.b[off:]))
	binary.LittleEndian.PutUint64(b.b[off:], math.Float64bits(cur+v))
}

// PutString stores s at off, truncated to width bytes. Shorter strings
// are NUL-padded to the full width; a string of exactly width bytes is
// stored without a terminator and is capped by width on read.
func (b *Buffer) PutString(off, width int, s string) {
	if off < 0 || width <= 0 || off+width > len(b.b) {
		return
	}

	n := copy(b.b[off:off+width], s)
	clear(b.b[off+n : off+width])
}

// MarkNegate schedules the float64 at off for negation when Finalize
// runs. Marking the same offset more than once is equivalent to
// marking it once. Deferring the flip keeps assembled values
// independent of the order their source columns were converted in.
func (b *Buffer) MarkNegate(off int) {
	if off < 0 || off+8 > len(b.b) {
		return
	}

	if b.neg == nil {
		b.neg = make(map[int]struct{})
	}

	b.neg[off] = struct{}{}
}

// Finalize applies pending negations. The import pipeline calls it
// after all fields of a row have been converted.
func (b *Buffer) Finalize() {
	for off := range b.neg {
		b.PutFloat64(off, -b.View().Float64At(off))
	}

	clear(b.neg)
}

// SetKey stores k in the record head. Invalid keys clear the head key
// slots.
func (b *Buffer) SetKey(k model.Key) {
	b.PutUint8(OffsetKeyKind, uint8(k.Kind()))
	b.PutUint64(OffsetKeyNumeric, 0)
	b.PutString(OffsetDesignation, DesignationSize, "")

	if id, ok := k.Numeric(); ok {
		b.PutUint64(OffsetKeyNumeric, id)
	}

	if s, ok := k.Designation(); ok {
		b.PutString(OffsetDesignation, DesignationSize, s)
	}
}

// SetNumericKey stores a numeric identity key.
func (b *Buffer) SetNumericKey(id uint64) { b.SetKey(model.NumericKey(id)) }

// SetDesignation stores a designation identity key.
func (b *Buffer) SetDesignation(s string) { b.SetKey(model.DesignationKey(s)) }

// SetRA stores the right ascension in radians.
func (b *Buffer) SetRA(rad float64) { b.PutFloat64(OffsetRA, rad) }

// SetDec stores the declination in radians.
func (b *Buffer) SetDec(rad float64) { b.PutFloat64(OffsetDec, rad) }

// SetMag stores the brightness.
func (b *Buffer) SetMag(v float32) { b.PutFloat32(OffsetMag, v) }

// SetAngSize stores the angular size.
func (b *Buffer) SetAngSize(v float32) { b.PutFloat32(OffsetSize, v) }
