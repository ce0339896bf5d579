package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello, mmap"), 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.Equal(t, 11, f.Len())
	assert.Equal(t, "hello, mmap", string(f.Bytes()))

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "mmap", string(buf))

	n, err = f.ReadAt(buf, 9)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
