package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "records.adb")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	return path
}

func TestMapping_OpenReadClose(t *testing.T) {
	content := []byte("NGC 7000 North America Nebula")
	path := writeTemp(t, content)

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())

	buf := make([]byte, 4)
	n, err := m.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "7000", string(buf))

	// Offset past the end.
	n, err = m.ReadAt(make([]byte, 8), int64(len(content))+10)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	// Partial read at the tail.
	tail := make([]byte, 16)
	n, err = m.ReadAt(tail, int64(len(content))-6)
	assert.Equal(t, 6, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "Nebula", string(tail[:n]))

	// Negative offset.
	_, err = m.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestMapping_CloseIdempotent(t *testing.T) {
	path := writeTemp(t, []byte("some catalog bytes"))

	m, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Nil(t, m.Bytes())

	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
}

func TestMapping_EmptyFile(t *testing.T) {
	path := writeTemp(t, nil)

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 0, m.Size())
	assert.Nil(t, m.Bytes())
	require.NoError(t, m.Advise(AccessSequential))
}

func TestMapping_OpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.adb"))
	assert.Error(t, err)
}

func TestMapping_Advise(t *testing.T) {
	path := writeTemp(t, make([]byte, 4096))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	for _, p := range []AccessPattern{AccessDefault, AccessSequential, AccessRandom, AccessWillNeed, AccessDontNeed} {
		assert.NoError(t, m.Advise(p))
	}
}
