package model

import "fmt"

// RowID is a dense, table-local identifier for a record.
// It is assigned sequentially by the import pipeline and is stable for
// the lifetime of an open table.
type RowID uint32

// KeyKind discriminates the arms of a Key.
type KeyKind uint8

// Key kinds.
const (
	KeyKindInvalid KeyKind = iota
	KeyKindNumeric
	KeyKindDesignation
)

// MaxDesignationLen is the maximum byte length of a designation string.
const MaxDesignationLen = 16

// String returns a human readable kind name.
func (k KeyKind) String() string {
	switch k {
	case KeyKindNumeric:
		return "numeric"
	case KeyKindDesignation:
		return "designation"
	default:
		return "invalid"
	}
}

// Key identifies one celestial object within a catalog. It is a tagged
// sum: either a 64-bit numeric identifier or a short designation string,
// never both. The zero Key identifies nothing.
type Key struct {
	kind KeyKind
	num  uint64
	des  string
}

// NumericKey returns a Key holding a numeric catalog identifier.
func NumericKey(id uint64) Key {
	return Key{kind: KeyKindNumeric, num: id}
}

// DesignationKey returns a Key holding a designation string. Input longer
// than MaxDesignationLen bytes is truncated to that length.
func DesignationKey(s string) Key {
	if len(s) > MaxDesignationLen {
		s = s[:MaxDesignationLen]
	}
	return Key{kind: KeyKindDesignation, des: s}
}

// Kind reports which arm of the sum is populated.
func (k Key) Kind() KeyKind { return k.kind }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.kind == KeyKindInvalid }

// Numeric returns the numeric identifier. ok is false when the key does
// not hold a numeric arm.
func (k Key) Numeric() (id uint64, ok bool) {
	if k.kind != KeyKindNumeric {
		return 0, false
	}
	return k.num, true
}

// Designation returns the designation string. ok is false when the key
// does not hold a designation arm.
func (k Key) Designation() (s string, ok bool) {
	if k.kind != KeyKindDesignation {
		return "", false
	}
	return k.des, true
}

// String returns a printable form of the key.
func (k Key) String() string {
	switch k.kind {
	case KeyKindNumeric:
		return fmt.Sprintf("#%d", k.num)
	case KeyKindDesignation:
		return k.des
	default:
		return "<invalid>"
	}
}
