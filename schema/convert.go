package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/astrodb/record"
	"github.com/hupe1980/astrodb/sphere"
)

// ErrConvert is the sentinel wrapped by every ConversionError.
var ErrConvert = errors.New("schema: conversion failed")

// ConversionError reports a failed conversion of one field in one row.
// It is always scoped to that field: the surrounding row and batch
// continue.
type ConversionError struct {
	Symbol string
	Raw    string
	Cause  error // set when a custom converter failed
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("schema: convert field %q from %q: %v", e.Symbol, e.Raw, e.Cause)
	}

	return fmt.Sprintf("schema: convert field %q from %q", e.Symbol, e.Raw)
}

func (e *ConversionError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}

	return ErrConvert
}

func (e *ConversionError) Is(target error) bool { return target == ErrConvert }

// Converter turns one raw column value into the binary form of one
// field. Implementations must write only the destination described by
// f; on failure they should leave the field at its sentinel value (NaN
// for floating point, zero for integers) and return an error, which
// the codec counts without aborting the row.
type Converter interface {
	Convert(dst *record.Buffer, f *Field, raw string) error
}

var builtins = map[FieldType]Converter{
	TypeInt:         intConverter{},
	TypeShort:       shortConverter{},
	TypeFloat:       floatConverter{},
	TypeDouble:      doubleConverter{},
	TypeDegrees:     doubleConverter{},
	TypeString:      stringConverter{},
	TypeDesignation: designationConverter{},
	TypeSign:        signConverter{},
	TypeHMSHours:    sexagesimalConverter{weight: sphere.HoursToDeg},
	TypeHMSMinutes:  sexagesimalConverter{weight: sphere.HoursToDeg / 60},
	TypeHMSSeconds:  sexagesimalConverter{weight: sphere.HoursToDeg / 3600},
	TypeDMSDegrees:  sexagesimalConverter{weight: 1},
	TypeDMSMinutes:  sexagesimalConverter{weight: 1.0 / 60},
	TypeDMSSeconds:  sexagesimalConverter{weight: 1.0 / 3600},
	TypeDateMPC:     dateMPCConverter{},
}

// BuiltinConverter returns the stock converter for a field type.
func BuiltinConverter(t FieldType) (Converter, bool) {
	c, ok := builtins[t]

	return c, ok
}

// converterFor returns the field's custom converter when set, its
// type's builtin otherwise.
func converterFor(f *Field) (Converter, bool) {
	if f.Converter != nil {
		return f.Converter, true
	}

	return BuiltinConverter(f.Type)
}

func convErr(f *Field, raw string) error {
	return &ConversionError{Symbol: f.Symbol, Raw: raw}
}

type intConverter struct{}

func (intConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	v, ok := parseIntPrefix(raw)
	dst.PutInt32(f.Offset, int32(v)) //nolint:gosec // wraps like the usual C cast; catalogs stay well inside int32

	if !ok {
		return convErr(f, raw)
	}

	return nil
}

type shortConverter struct{}

func (shortConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	v, ok := parseIntPrefix(raw)
	dst.PutInt16(f.Offset, int16(v)) //nolint:gosec // wraps like the usual C cast

	if !ok {
		return convErr(f, raw)
	}

	return nil
}

type floatConverter struct{}

func (floatConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	v, ok := parseFloatPrefix(raw)
	if !ok {
		dst.PutFloat32(f.Offset, float32(math.NaN()))

		return convErr(f, raw)
	}

	dst.PutFloat32(f.Offset, float32(v))

	return nil
}

type doubleConverter struct{}

func (doubleConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	v, ok := parseFloatPrefix(raw)
	if !ok {
		dst.PutFloat64(f.Offset, math.NaN())

		return convErr(f, raw)
	}

	dst.PutFloat64(f.Offset, v)

	return nil
}

type stringConverter struct{}

func (stringConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	dst.PutString(f.Offset, f.Width, strings.TrimSpace(raw))

	return nil
}

type designationConverter struct{}

func (designationConverter) Convert(dst *record.Buffer, _ *Field, raw string) error {
	if s := strings.TrimSpace(raw); s != "" {
		dst.SetDesignation(s)
	}

	return nil
}

// signConverter flips the group destination for negative source text.
// The flip is deferred to Buffer.Finalize so that components arriving
// after the sign are still accumulated with their own sign.
type signConverter struct{}

func (signConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	if strings.HasPrefix(strings.TrimSpace(raw), "-") {
		dst.MarkNegate(f.DestOffset())
	}

	return nil
}

// sexagesimalConverter accumulates one weighted component, in degrees,
// into the group destination double. Accumulation commutes, so the
// assembled angle is independent of the order columns arrive in; a
// failed component poisons the destination with NaN.
type sexagesimalConverter struct {
	weight float64
}

func (c sexagesimalConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	v, ok := parseFloatPrefix(raw)
	if !ok {
		dst.AddFloat64(f.DestOffset(), math.NaN())

		return convErr(f, raw)
	}

	dst.AddFloat64(f.DestOffset(), v*c.weight)

	return nil
}

type dateMPCConverter struct{}

func (dateMPCConverter) Convert(dst *record.Buffer, f *Field, raw string) error {
	v, ok := decodeMPCDate(strings.TrimSpace(raw))
	if !ok {
		dst.PutFloat64(f.Offset, math.NaN())

		return convErr(f, raw)
	}

	dst.PutFloat64(f.Offset, v)

	return nil
}

// decodeMPCDate unpacks an MPC packed date ("K107N" for 2010 July 23)
// into a decimal year: a century letter (I, J, K for 18, 19, 20), a
// two-digit year, and base-31 month and day characters.
func decodeMPCDate(s string) (float64, bool) {
	if len(s) != 5 {
		return 0, false
	}

	var century int

	switch s[0] {
	case 'I':
		century = 18
	case 'J':
		century = 19
	case 'K':
		century = 20
	default:
		return 0, false
	}

	if s[1] < '0' || s[1] > '9' || s[2] < '0' || s[2] > '9' {
		return 0, false
	}

	year := century*100 + int(s[1]-'0')*10 + int(s[2]-'0')

	month := base31Digit(s[3])
	day := base31Digit(s[4])

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, false
	}

	return float64(year) + float64(month-1)/12 + float64(day-1)/372, true
}

// base31Digit decodes the MPC extended digit alphabet: 1-9 then A-V.
func base31Digit(c byte) int {
	switch {
	case c >= '1' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'V':
		return int(c-'A') + 10
	default:
		return 0
	}
}
