package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/casc/internal/casc"
	"github.com/jchantrell/casc/internal/layout"
	"github.com/jchantrell/casc/internal/storage"
	"github.com/jchantrell/casc/internal/testutil"
)

func TestSelectFiles(t *testing.T) {
	files := []storage.FileInfo{
		{Name: "readme.txt"},
		{Name: `data\a.bin`},
		{Name: `data\sub\b.bin`},
		{Name: `database\c.bin`},
	}

	names := func(fs []storage.FileInfo) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.Name)
		}
		return out
	}

	assert.Len(t, selectFiles(files, nil, true), 4)
	assert.Equal(t, []string{"readme.txt"}, names(selectFiles(files, []string{"readme.txt"}, false)))
	assert.Equal(t, []string{`data\a.bin`, `data\sub\b.bin`}, names(selectFiles(files, []string{"data/"}, false)))
	assert.Equal(t, []string{`data\sub\b.bin`, `database\c.bin`}, names(selectFiles(files, []string{`data\sub`, "database"}, false)))
	assert.Empty(t, selectFiles(files, []string{"missing"}, false))
}

func TestWalkRoot(t *testing.T) {
	assert.Equal(t, ".", walkRoot(""))
	assert.Equal(t, ".", walkRoot("/"))
	assert.Equal(t, "data/sub", walkRoot(`data\sub\`))
	assert.Equal(t, "data/sub", walkRoot("/data/sub/"))
}

func TestExtractFile(t *testing.T) {
	small := []byte("small file")
	large := testutil.Pattern(preloadLimit+4096, 7)

	ts := testutil.WriteStorage(t, t.TempDir(), []testutil.StorageFile{
		{Path: `dir\small.txt`, Spans: [][]byte{small}},
		{Path: `dir\large.bin`, Spans: [][]byte{large[:preloadLimit], large[preloadLimit:]}, Frame: 64 << 10},
		{Path: `diremote.bin`, Spans: [][]byte{[]byte("gone")}, Missing: []bool{true}},
	}, testutil.StorageOptions{Archives: 2})

	s, err := storage.Open(ts.Root, storage.DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	out := t.TempDir()
	for name, want := range map[string][]byte{`dir\small.txt`: small, `dir\large.bin`: large} {
		dst := layout.OutputPath(out, name)
		n, err := extractFile(context.Background(), s, name, dst)
		require.NoError(t, err, name)
		assert.Equal(t, int64(len(want)), n)

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got), name)
	}

	dst := filepath.Join(out, "remote.bin")
	_, err = extractFile(context.Background(), s, `dir\remote.bin`, dst)
	require.ErrorIs(t, err, casc.ErrNotLocal)
	assert.NoFileExists(t, dst)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst = filepath.Join(out, "canceled.bin")
	_, err = extractFile(ctx, s, `dir\large.bin`, dst)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, dst)
}
