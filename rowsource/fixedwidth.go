package rowsource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrColumn is returned by NewFixedWidth for invalid column layouts.
var ErrColumn = errors.New("rowsource: invalid column")

// Column describes one fixed-width column as published in catalog
// descriptions: 1-based inclusive byte positions, the convention
// catalog readme files use ("bytes 9-13").
type Column struct {
	Symbol string
	Start  int
	End    int
}

// FixedWidthOptions contains options for a fixed-width source.
type FixedWidthOptions struct {
	// SkipLines is the number of leading lines to discard (headers,
	// column rulers).
	SkipLines int

	// Comment, when non-zero, discards lines starting with this byte.
	Comment byte

	// MaxLineBytes caps the length of a single line.
	MaxLineBytes int
}

var DefaultFixedWidthOptions = FixedWidthOptions{
	MaxLineBytes: 1 << 20,
}

// FixedWidth reads fixed-width column lines from r and slices each
// line into a Row per the declared columns. Gzip input is detected by
// magic bytes and decompressed transparently. Blank lines are
// skipped; lines shorter than a column yield what bytes exist.
type FixedWidth struct {
	scanner *bufio.Scanner
	cols    []Column
	opts    FixedWidthOptions
	gz      *gzip.Reader
	skipped bool
}

var _ Source = (*FixedWidth)(nil)

// NewFixedWidth returns a fixed-width Source over r.
func NewFixedWidth(r io.Reader, cols []Column, optFns ...func(o *FixedWidthOptions)) (*FixedWidth, error) {
	opts := DefaultFixedWidthOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrColumn)
	}

	seen := make(map[string]bool, len(cols))

	for _, c := range cols {
		if c.Symbol == "" {
			return nil, fmt.Errorf("%w: empty symbol", ErrColumn)
		}
		if seen[c.Symbol] {
			return nil, fmt.Errorf("%w: duplicate symbol %q", ErrColumn, c.Symbol)
		}
		if c.Start < 1 || c.End < c.Start {
			return nil, fmt.Errorf("%w: %q has byte range %d-%d", ErrColumn, c.Symbol, c.Start, c.End)
		}

		seen[c.Symbol] = true
	}

	if opts.SkipLines < 0 {
		opts.SkipLines = 0
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultFixedWidthOptions.MaxLineBytes
	}

	fw := &FixedWidth{
		cols: cols,
		opts: opts,
	}

	br := bufio.NewReader(r)

	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}

		fw.gz = gz
		fw.scanner = bufio.NewScanner(gz)
	} else {
		fw.scanner = bufio.NewScanner(br)
	}

	fw.scanner.Buffer(make([]byte, 0, 64*1024), opts.MaxLineBytes)

	return fw, nil
}

// Next implements Source.
func (fw *FixedWidth) Next() (Row, error) {
	for {
		line, err := fw.nextLine()
		if err != nil {
			return nil, err
		}

		if line == "" {
			continue
		}

		if fw.opts.Comment != 0 && line[0] == fw.opts.Comment {
			continue
		}

		row := make(Row, len(fw.cols))

		for _, c := range fw.cols {
			row[c.Symbol] = sliceColumn(line, c)
		}

		return row, nil
	}
}

func (fw *FixedWidth) nextLine() (string, error) {
	if !fw.skipped {
		fw.skipped = true

		for i := 0; i < fw.opts.SkipLines; i++ {
			if !fw.scanner.Scan() {
				return "", fw.scanErr()
			}
		}
	}

	if !fw.scanner.Scan() {
		return "", fw.scanErr()
	}

	return strings.TrimSuffix(fw.scanner.Text(), "\r"), nil
}

func (fw *FixedWidth) scanErr() error {
	if err := fw.scanner.Err(); err != nil {
		return err
	}

	return io.EOF
}

// Close releases the decompressor, if any. The underlying reader
// belongs to the caller.
func (fw *FixedWidth) Close() error {
	if fw.gz != nil {
		gz := fw.gz
		fw.gz = nil

		return gz.Close()
	}

	return nil
}

func sliceColumn(line string, c Column) string {
	if c.Start > len(line) {
		return ""
	}

	end := c.End
	if end > len(line) {
		end = len(line)
	}

	return line[c.Start-1 : end]
}
