// Package hash provides hashing utilities for data integrity.
//
// Remote uploads are validated with CRC32-Castagnoli (CRC32C), which is
// hardware-accelerated on x86 (SSE4.2) and ARM (CRC extension) and is the
// checksum S3-compatible stores validate server-side. Record file headers
// carry their own CRC32-IEEE, defined by the on-disk format in package
// record.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
