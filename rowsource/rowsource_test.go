package rowsource

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(
		Row{"name": "Sirius", "mag": "-1.46"},
		Row{"name": "Vega", "mag": "0.03"},
	)

	row, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "Sirius", row["name"])

	row, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, "Vega", row["name"])

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)

	// Stays exhausted.
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

var testCols = []Column{
	{Symbol: "name", Start: 1, End: 8},
	{Symbol: "ra", Start: 10, End: 15},
	{Symbol: "mag", Start: 17, End: 21},
}

func TestFixedWidthValidation(t *testing.T) {
	_, err := NewFixedWidth(strings.NewReader(""), nil)
	assert.ErrorIs(t, err, ErrColumn)

	_, err = NewFixedWidth(strings.NewReader(""), []Column{{Symbol: "", Start: 1, End: 2}})
	assert.ErrorIs(t, err, ErrColumn)

	_, err = NewFixedWidth(strings.NewReader(""), []Column{
		{Symbol: "a", Start: 1, End: 2},
		{Symbol: "a", Start: 3, End: 4},
	})
	assert.ErrorIs(t, err, ErrColumn)

	_, err = NewFixedWidth(strings.NewReader(""), []Column{{Symbol: "a", Start: 0, End: 2}})
	assert.ErrorIs(t, err, ErrColumn)

	_, err = NewFixedWidth(strings.NewReader(""), []Column{{Symbol: "a", Start: 5, End: 4}})
	assert.ErrorIs(t, err, ErrColumn)
}

const fixedData = "" +
	"#name    ra     mag\n" +
	"Sirius   101.28 -1.46\n" +
	"\n" +
	"Vega     279.23 0.03\r\n" +
	"Short\n"

func TestFixedWidthRows(t *testing.T) {
	src, err := NewFixedWidth(strings.NewReader(fixedData), testCols, func(o *FixedWidthOptions) {
		o.Comment = '#'
	})
	require.NoError(t, err)

	row, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "Sirius  ", row["name"])
	assert.Equal(t, "101.28", row["ra"])
	assert.Equal(t, "-1.46", row["mag"])

	// CRLF endings and blank lines are absorbed.
	row, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, "279.23", row["ra"])
	assert.Equal(t, "0.03", row["mag"])

	// Short lines yield empty values past their end.
	row, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, "Short", row["name"])
	assert.Equal(t, "", row["ra"])
	assert.Equal(t, "", row["mag"])

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestFixedWidthSkipLines(t *testing.T) {
	data := "header one\nheader two\nVega     279.23 0.03\n"

	src, err := NewFixedWidth(strings.NewReader(data), testCols, func(o *FixedWidthOptions) {
		o.SkipLines = 2
	})
	require.NoError(t, err)

	row, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "279.23", row["ra"])

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFixedWidthGzip(t *testing.T) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("Sirius   101.28 -1.46\nVega     279.23 0.03\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	src, err := NewFixedWidth(&buf, testCols)
	require.NoError(t, err)

	var names []string

	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}

		require.NoError(t, err)
		names = append(names, strings.TrimSpace(row["name"]))
	}

	assert.Equal(t, []string{"Sirius", "Vega"}, names)
	assert.NoError(t, src.Close())
}
