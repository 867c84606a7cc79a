// Package schema describes how textual catalog columns map onto the
// fields of a fixed-layout binary record, and converts row values
// accordingly.
//
// A Schema is an immutable, validated set of Fields compiled by New.
// Each Field names a source column symbol, a destination byte range
// inside the record, and a type tag that selects the conversion
// applied during import. Sexagesimal component fields (hours, minutes,
// seconds and their sign) accumulate into a shared destination double,
// so a right ascension split across three catalog columns lands as one
// angle.
//
// Conversion is performed by Codec, one row at a time, through the
// Converter interface. Built-in converters cover every type tag;
// callers may attach a custom Converter to a Field to take over that
// field's conversion. A converter must only write its own field.
//
// Failed conversions write a sentinel (NaN for floating point, zero
// for integers) and are counted, never fatal: one malformed column
// must not drop the record, and one malformed record must not abort an
// import run.
package schema
