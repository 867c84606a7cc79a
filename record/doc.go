// Package record implements the fixed-layout binary object record and
// its append-only store.
//
// Every record begins with a canonical head (key, position, brightness,
// angular size) at the offsets exported by this package; catalog
// specific fields follow at schema-declared offsets. The head stores
// positions in radians. All multi-byte fields are little-endian.
//
// [Buffer] is the mutable view used by the import pipeline and by
// conversion callbacks; [View] is the read-only form handed out by
// queries. [Store] holds records contiguously at a fixed stride and is
// append-only: records never change once written.
//
// Store contents persist through WriteTo/ReadFrom in a checksummed file
// format with optional zstd compression; uncompressed files can be
// opened zero-copy from memory-mapped bytes via [OpenBytes].
package record
