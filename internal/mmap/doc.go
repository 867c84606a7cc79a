// Package mmap provides read-only memory-mapped file access.
//
// Catalog record files are written once and then served read-only; mapping
// them lets the store hand out record views without copying the file through
// user-space buffers. A Mapping owns the mapped byte slice and is responsible
// for unmapping it on Close.
//
//	m, err := mmap.Open("catalog.adb")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // zero-copy access, valid until Close
//	m.Advise(mmap.AccessRandom)
//
// On Unix platforms the package uses mmap(2) with madvise(2) for access
// hints; on Windows it uses CreateFileMapping/MapViewOfFile and access hints
// are a no-op. Mapping is safe for concurrent reads. Close is idempotent, but
// callers must ensure no goroutine touches Bytes() after Close returns.
package mmap
