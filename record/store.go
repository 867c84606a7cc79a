package record

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/hupe1980/astrodb/internal/conv"
	"github.com/hupe1980/astrodb/model"
)

// MaxRecordSize caps the per-record byte size. Catalog records are a
// head plus a handful of fixed-width fields; anything beyond this is a
// schema bug.
const MaxRecordSize = 1 << 16

// Options contains options for a record store.
type Options struct {
	// Compression enables zstd compression of the record payload when
	// the store is persisted with WriteTo. Compressed files cannot be
	// aliased by OpenBytes and are decompressed into memory instead.
	Compression bool

	// InitialCapacity is the number of records to pre-allocate space
	// for.
	InitialCapacity int
}

var DefaultOptions = Options{
	Compression:     false,
	InitialCapacity: 1024,
}

// Store holds fixed-size records contiguously in append order. Record
// IDs are assigned sequentially from zero and never change.
//
// A Store is either heap-backed or, after OpenBytes on an uncompressed
// file, backed by caller-provided (typically memory-mapped) bytes.
// Appending to a mapped store first copies the records onto the heap
// and releases the mapping.
//
// Thread safety: a single writer may append; any number of readers may
// access records once appending is quiescent.
type Store struct {
	recordSize int
	compress   bool

	data   []byte
	count  int
	closer io.Closer
}

// New creates an empty store for records of the given size.
func New(recordSize int, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if recordSize < HeadSize || recordSize > MaxRecordSize {
		return nil, ErrRecordSize
	}

	if opts.InitialCapacity < 0 {
		opts.InitialCapacity = 0
	}

	return &Store{
		recordSize: recordSize,
		compress:   opts.Compression,
		data:       make([]byte, 0, opts.InitialCapacity*recordSize),
	}, nil
}

// RecordSize returns the size of each record in bytes.
func (s *Store) RecordSize() int { return s.recordSize }

// Count returns the number of records in the store.
func (s *Store) Count() int { return s.count }

// Compressed returns true if WriteTo will compress the payload.
func (s *Store) Compressed() bool { return s.compress }

// Mapped returns true if the store aliases caller-provided bytes.
func (s *Store) Mapped() bool { return s.closer != nil }

// Append copies rec into the store and returns its ID. The record must
// be exactly RecordSize bytes.
func (s *Store) Append(rec []byte) (model.RowID, error) {
	if len(rec) != s.recordSize {
		return 0, ErrRecordSize
	}

	if err := s.materialize(); err != nil {
		return 0, err
	}

	idU32, err := conv.IntToUint32(s.count)
	if err != nil {
		return 0, err
	}

	s.data = append(s.data, rec...)
	s.count++

	return model.RowID(idU32), nil
}

// Record returns a read-only view of the record with the given ID.
func (s *Store) Record(id model.RowID) (View, bool) {
	i := int(id)
	if i >= s.count {
		return View{}, false
	}

	off := i * s.recordSize

	return View{b: s.data[off : off+s.recordSize]}, true
}

// Iterate calls fn for each record in append order until fn returns
// false.
func (s *Store) Iterate(fn func(id model.RowID, v View) bool) {
	for i := 0; i < s.count; i++ {
		off := i * s.recordSize
		if !fn(model.RowID(uint32(i)), View{b: s.data[off : off+s.recordSize]}) { //nolint:gosec // count fits uint32 by Append
			return
		}
	}
}

// materialize copies mapped bytes onto the heap and releases the
// mapping, so the store can grow.
func (s *Store) materialize() error {
	if s.closer == nil {
		return nil
	}

	heap := make([]byte, len(s.data), cap(s.data)+s.recordSize)
	copy(heap, s.data)

	closer := s.closer
	s.closer = nil
	s.data = heap

	return closer.Close()
}

// Close releases the store's memory and any underlying mapping. The
// store must not be used afterwards.
func (s *Store) Close() error {
	s.data = nil
	s.count = 0

	if s.closer != nil {
		closer := s.closer
		s.closer = nil

		return closer.Close()
	}

	return nil
}

// WriteTo writes the store to w in record file format.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	recU32, err := conv.IntToUint32(s.recordSize)
	if err != nil {
		return 0, err
	}

	payload := s.data[:s.count*s.recordSize]
	flags := uint32(0)

	if s.compress {
		compressed, err := compressPayload(payload)
		if err != nil {
			return 0, err
		}

		payload = compressed
		flags |= FlagZstd
	}

	header := FileHeader{
		Magic:      FormatMagic,
		Version:    FormatVersion,
		Flags:      flags,
		RecordSize: recU32,
		Count:      uint64(s.count), //nolint:gosec // count fits uint32 by Append
		DataOffset: HeaderSize,
		DataSize:   uint64(len(payload)),
	}

	var written int64

	n, err := header.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}

	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)

	n2, err := mw.Write(payload)
	written += int64(n2)
	if err != nil {
		return written, err
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum32())

	n3, err := w.Write(trailer[:])
	written += int64(n3)

	return written, err
}

// ReadFrom reads a record file from r, replacing the store's contents.
func (s *Store) ReadFrom(r io.Reader) (int64, error) {
	var header FileHeader

	read, err := header.ReadFrom(r)
	if err != nil {
		return read, err
	}

	payload := make([]byte, header.DataSize)

	n, err := io.ReadFull(r, payload)
	read += int64(n)
	if err != nil {
		return read, err
	}

	var trailer [4]byte

	n, err = io.ReadFull(r, trailer[:])
	read += int64(n)
	if err != nil {
		return read, err
	}

	if binary.LittleEndian.Uint32(trailer[:]) != crc32.ChecksumIEEE(payload) {
		return read, ErrCorrupted
	}

	data, count, err := unpackPayload(&header, payload)
	if err != nil {
		return read, err
	}

	if err := s.Close(); err != nil {
		return read, err
	}

	s.recordSize = int(header.RecordSize)
	s.compress = header.Compressed()
	s.data = data
	s.count = count

	return read, nil
}

// OpenBytes opens a record file held entirely in b, typically a
// memory-mapped file. Uncompressed payloads are aliased zero-copy and
// closer is retained until the store is closed or first appended to;
// compressed payloads are decompressed onto the heap and closer is
// released immediately.
func OpenBytes(b []byte, closer io.Closer) (*Store, error) {
	var header FileHeader

	if err := header.decode(b); err != nil {
		return nil, err
	}

	if int64(len(b)) < header.TotalSize() {
		return nil, ErrTruncated
	}

	payload := b[header.DataOffset : header.DataOffset+header.DataSize]
	trailer := b[header.DataOffset+header.DataSize:]

	if binary.LittleEndian.Uint32(trailer) != crc32.ChecksumIEEE(payload) {
		return nil, ErrCorrupted
	}

	s := &Store{
		recordSize: int(header.RecordSize),
		compress:   header.Compressed(),
	}

	if header.Compressed() {
		data, count, err := unpackPayload(&header, payload)
		if err != nil {
			return nil, err
		}

		s.data = data
		s.count = count

		if closer != nil {
			if err := closer.Close(); err != nil {
				return nil, err
			}
		}

		return s, nil
	}

	count, err := payloadCount(&header, len(payload))
	if err != nil {
		return nil, err
	}

	s.data = payload
	s.count = count
	s.closer = closer

	return s, nil
}

// unpackPayload yields heap-backed record bytes from a file payload,
// decompressing if needed, and validates the record count.
func unpackPayload(header *FileHeader, payload []byte) ([]byte, int, error) {
	data := payload

	if header.Compressed() {
		expected, err := conv.Uint64ToInt(header.Count * uint64(header.RecordSize))
		if err != nil {
			return nil, 0, err
		}

		data, err = decompressPayload(payload, expected)
		if err != nil {
			return nil, 0, err
		}
	}

	count, err := payloadCount(header, len(data))
	if err != nil {
		return nil, 0, err
	}

	return data, count, nil
}

// payloadCount validates that the raw payload length matches the
// declared record count and returns the count as an int.
func payloadCount(header *FileHeader, rawLen int) (int, error) {
	count, err := conv.Uint64ToInt(header.Count)
	if err != nil {
		return 0, err
	}

	if rawLen != count*int(header.RecordSize) {
		return 0, ErrCorrupted
	}

	return count, nil
}
