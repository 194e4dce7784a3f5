package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/casc/internal/casc"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
}

func TestIndexFilesKeepsNewestPerBucket(t *testing.T) {
	l := New(t.TempDir())
	touch(t, l.DataDir(),
		"0000000001.idx", "0000000003.idx", "0000000002.idx",
		"0f00000010.IDX",
		"0100000005.idx",
		"shmem.idx", "notes.txt",
	)

	paths, err := l.IndexFiles()
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"0000000003.idx", "0100000005.idx", "0f00000010.IDX"}, names)
}

func TestIndexFilesMissingDir(t *testing.T) {
	_, err := New(t.TempDir()).IndexFiles()
	require.ErrorIs(t, err, casc.ErrConfig)
}

func TestParseIndexName(t *testing.T) {
	bucket, version, ok := ParseIndexName("0a0000001f.idx")
	require.True(t, ok)
	assert.Equal(t, uint64(10), bucket)
	assert.Equal(t, uint64(31), version)

	for _, bad := range []string{"0a000001f.idx", "zz0000001f.idx", "0a0000001g.idx"} {
		_, _, ok := ParseIndexName(bad)
		assert.False(t, ok, bad)
	}
}

func TestArchiveFilesOrdered(t *testing.T) {
	l := New(t.TempDir())
	touch(t, l.DataDir(), "data.010", "data.002", "data.000", "data.idx", "database")

	paths, err := l.ArchiveFiles()
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(l.DataDir(), "data.000"), paths[0])
	assert.Equal(t, filepath.Join(l.DataDir(), "data.002"), paths[1])
	assert.Equal(t, filepath.Join(l.DataDir(), "data.010"), paths[2])
}

func TestArchiveNumber(t *testing.T) {
	n, err := ArchiveNumber("/x/data.042")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), n)

	for _, bad := range []string{"data", "data.idx", "meta.001"} {
		_, err := ArchiveNumber(bad)
		require.ErrorIs(t, err, casc.ErrConfig, bad)
	}
}

func TestConfigPath(t *testing.T) {
	l := New("/games/wow")
	assert.Equal(t,
		filepath.Join("/games/wow", "Data", "config", "ab", "cd", "abcdef0123"),
		l.ConfigPath("ABCDEF0123"))
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "a", "b.txt"), OutputPath("out", `a\b.txt`))
	assert.Equal(t, filepath.Join("out", "etc", "passwd"), OutputPath("out", `..\..\etc\passwd`))
}
