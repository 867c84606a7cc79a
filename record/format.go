package record

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	// FormatMagic identifies record store files (ASCII: "ASDB")
	FormatMagic = 0x41534442

	// FormatVersion is the current record file format version
	FormatVersion uint32 = 1

	// HeaderSize is the size of the file header in bytes
	HeaderSize = 64

	// FlagZstd indicates that the record payload is zstd-compressed.
	FlagZstd uint32 = 1 << 0
)

var (
	// ErrInvalidMagic is returned when a file has an invalid magic number.
	ErrInvalidMagic = errors.New("record: invalid magic number")

	// ErrInvalidVersion is returned when a file has an unsupported version.
	ErrInvalidVersion = errors.New("record: unsupported format version")

	// ErrCorrupted is returned when a file fails checksum validation or
	// its payload does not match the declared record count.
	ErrCorrupted = errors.New("record: file corrupted (checksum mismatch)")

	// ErrTruncated is returned when a mapped file is shorter than its
	// header declares.
	ErrTruncated = errors.New("record: file truncated")

	// ErrRecordSize is returned when a record size is out of range or a
	// record's length does not match the store's record size.
	ErrRecordSize = errors.New("record: invalid record size")
)

// FileHeader is the 64-byte header at the start of record store files.
//
// All multi-byte fields are little-endian. DataSize is the byte length
// of the payload that follows the header: Count*RecordSize for raw
// files, the compressed length when FlagZstd is set. A CRC32 (IEEE) of
// the payload trails the file.
type FileHeader struct {
	Magic      uint32   // 0x41534442 ("ASDB")
	Version    uint32   // Format version (currently 1)
	Flags      uint32   // Feature flags
	RecordSize uint32   // Bytes per record
	Count      uint64   // Number of records
	DataOffset uint64   // Offset to record payload
	DataSize   uint64   // Payload length in bytes
	Checksum   uint32   // CRC32 checksum of header (excluding this field)
	Reserved   [20]byte // Padding to 64 bytes
}

// Validate checks that the header is valid.
func (h *FileHeader) Validate() error {
	if h.Magic != FormatMagic {
		return ErrInvalidMagic
	}
	if h.Version > FormatVersion {
		return ErrInvalidVersion
	}
	if h.RecordSize < HeadSize || h.RecordSize > MaxRecordSize {
		return ErrRecordSize
	}
	if h.DataOffset != HeaderSize {
		return ErrCorrupted
	}

	return nil
}

// Compressed returns true if the payload is zstd-compressed.
func (h *FileHeader) Compressed() bool {
	return h.Flags&FlagZstd != 0
}

// TotalSize returns the total file size in bytes.
func (h *FileHeader) TotalSize() int64 {
	return int64(HeaderSize) + int64(h.DataSize) + 4 //nolint:gosec
}

// WriteTo writes the header to w.
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.RecordSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.Count)
	binary.LittleEndian.PutUint64(buf[24:32], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.DataSize)

	// Compute checksum over first 40 bytes (excludes checksum + reserved)
	h.Checksum = crc32.ChecksumIEEE(buf[:40])
	binary.LittleEndian.PutUint32(buf[40:44], h.Checksum)
	// Reserved bytes remain zero

	n, err := w.Write(buf)

	return int64(n), err
}

// ReadFrom reads the header from r.
func (h *FileHeader) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return int64(n), err
	}

	if err := h.decode(buf); err != nil {
		return int64(n), err
	}

	return int64(n), nil
}

func (h *FileHeader) decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrTruncated
	}

	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.Flags = binary.LittleEndian.Uint32(buf[8:12])
	h.RecordSize = binary.LittleEndian.Uint32(buf[12:16])
	h.Count = binary.LittleEndian.Uint64(buf[16:24])
	h.DataOffset = binary.LittleEndian.Uint64(buf[24:32])
	h.DataSize = binary.LittleEndian.Uint64(buf[32:40])
	h.Checksum = binary.LittleEndian.Uint32(buf[40:44])

	if expected := crc32.ChecksumIEEE(buf[:40]); h.Checksum != expected {
		return ErrCorrupted
	}

	return h.Validate()
}

func compressPayload(p []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}

	out := enc.EncodeAll(p, make([]byte, 0, len(p)/2))

	return out, enc.Close()
}

func decompressPayload(p []byte, expected int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	out, err := dec.DecodeAll(p, make([]byte, 0, expected))
	if err != nil {
		return nil, ErrCorrupted
	}

	return out, nil
}
