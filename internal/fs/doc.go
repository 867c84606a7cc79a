// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, ...)
//
// Production code uses fs.Default (a [LocalFS]); tests can inject a
// [FaultyFS] to simulate I/O errors on specific files:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("CURRENT", fs.Fault{FailOnSync: true})
//	// inject ffs into the component under test
//
// The interfaces intentionally do NOT take context.Context. Local filesystem
// operations are fast and non-interruptible at the syscall level; remote
// storage with real cancellation needs lives behind [blobstore.Store].
package fs
