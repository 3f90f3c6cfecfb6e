package wad

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, fs afero.Fs, path string, files []File) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, files, xxhash.Sum64))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func TestRoundTripAllTypes(t *testing.T) {
	fs := afero.NewMemMapFs()
	text := bytes.Repeat([]byte("assets/characters/annie/skins/base/annie.skn\n"), 20)
	files := []File{
		{Hash: 3, Data: []byte("raw bytes"), Type: TypeRaw},
		{Hash: 1, Data: text, Type: TypeZstd},
		{Hash: 2, Data: text[:100], Type: TypeGzip},
	}
	writeArchive(t, fs, "a.wad.client", files)

	a, err := Open(fs, "a.wad.client")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, uint8(3), a.Major)
	assert.Equal(t, []uint64{1, 2, 3}, a.Hashes())

	want := map[uint64][]byte{1: text, 2: text[:100], 3: []byte("raw bytes")}
	for _, e := range a.Entries {
		data, err := a.Read(e)
		require.NoError(t, err)
		assert.Equal(t, want[e.Hash], data)
		assert.Equal(t, xxhash.Sum64(want[e.Hash]), e.Checksum)
	}
}

func TestZstdMultiWithRawPrefix(t *testing.T) {
	payload, err := encode(File{Data: []byte("compressed tail"), Type: TypeZstd})
	require.NoError(t, err)
	data := append([]byte("HEAD"), payload...)

	out, err := decode(Entry{Type: TypeZstdMulti, Size: 19}, data)
	require.NoError(t, err)
	assert.Equal(t, "HEADcompressed tail", string(out))
}

func TestRedirectionHasNoContent(t *testing.T) {
	a := &Archive{}
	_, err := a.Read(Entry{Type: TypeRedirection})
	assert.True(t, errors.Is(err, ErrRedirection))
}

func TestOpenRejectsGarbage(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.wad", []byte("not a wad"), 0o644))
	_, err := Open(fs, "bad.wad")
	require.Error(t, err)

	header := make([]byte, headerSize)
	header[0], header[1], header[2] = 'R', 'W', 2
	require.NoError(t, afero.WriteFile(fs, "v2.wad", header, 0o644))
	_, err = Open(fs, "v2.wad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2.0")
}

func TestReadDetectsSizeMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArchive(t, fs, "a.wad", []File{{Hash: 9, Data: []byte("abc"), Type: TypeRaw}})
	a, err := Open(fs, "a.wad")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	e := a.Entries[0]
	e.Size = 4
	_, err = a.Read(e)
	require.Error(t, err)
}
