// Package conv provides safe integer type conversion utilities.
//
// These functions perform bounds checking to prevent overflow when
// converting between Go's int (platform-dependent) and the fixed-width
// types used in record layouts and file headers.
//
// Use them when validating untrusted data from disk (headers, counts,
// offsets). For conversions that are provably safe by domain
// constraints, use direct casts instead.
package conv
