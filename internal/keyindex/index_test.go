package keyindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/casc/internal/casc"
	"github.com/jchantrell/casc/internal/testutil"
)

func TestParseSingleEntry(t *testing.T) {
	key := testutil.Key("entry")
	data := testutil.BuildIndexTable(testutil.DefaultIndexHeader(), []testutil.IndexEntry{
		{Key: key, Archive: 2, Offset: 1024, Size: 512},
	})

	entries, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, key, entries[0].Key)
	assert.Equal(t, casc.Location{Archive: 2, Offset: 1024, Size: 512}, entries[0].Location)
}

func TestPackOffsetRoundTrip(t *testing.T) {
	cases := []struct {
		archive uint32
		offset  uint64
		bits    uint8
	}{
		{0, 0, 30},
		{2, 1024, 30},
		{255, 1<<30 - 1, 30},
		{1023, 12345, 30},
		{7, 1<<20 + 3, 24},
	}

	for _, tc := range cases {
		packed := PackOffset(tc.archive, tc.offset, tc.bits)
		archive, offset := UnpackOffset(packed, tc.bits)
		assert.Equal(t, tc.archive, archive)
		assert.Equal(t, tc.offset, offset)
		assert.Less(t, packed, uint64(1)<<40)
	}
}

func TestParseRejectsAnyWidthDeviation(t *testing.T) {
	mutations := map[string]func(*testutil.IndexHeader){
		"encoded size": func(h *testutil.IndexHeader) { h.EncodedSizeLength = 5 },
		"offset":       func(h *testutil.IndexHeader) { h.StorageOffsetLength = 4 },
		"key":          func(h *testutil.IndexHeader) { h.EKeyLength = 16 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			h := testutil.DefaultIndexHeader()
			mutate(&h)
			_, err := Parse(testutil.BuildIndexTable(h, nil))
			require.ErrorIs(t, err, casc.ErrFormat)
		})
	}
}

func TestParseRejectsTruncatedTable(t *testing.T) {
	data := testutil.BuildIndexTable(testutil.DefaultIndexHeader(), []testutil.IndexEntry{
		{Key: testutil.Key("a"), Archive: 0, Offset: 0, Size: 10},
		{Key: testutil.Key("b"), Archive: 1, Offset: 10, Size: 10},
	})

	for _, n := range []int{0, 7, 20, 36, len(data) - 1} {
		_, err := Parse(data[:n])
		require.ErrorIs(t, err, casc.ErrFormat, "truncated to %d bytes", n)
	}
}

func TestParseRejectsPartialEntry(t *testing.T) {
	data := testutil.BuildIndexTable(testutil.DefaultIndexHeader(), []testutil.IndexEntry{
		{Key: testutil.Key("a"), Size: 10},
	})
	// table size lives right after the 32 byte header
	data[32]++

	_, err := Parse(data)
	require.ErrorIs(t, err, casc.ErrFormat)
}

func TestIndexLoadFileMerges(t *testing.T) {
	dir := t.TempDir()
	k1, k2 := testutil.Key("one"), testutil.Key("two")

	p1 := filepath.Join(dir, "0000000001.idx")
	p2 := filepath.Join(dir, "0100000001.idx")
	require.NoError(t, os.WriteFile(p1, testutil.BuildIndexTable(testutil.DefaultIndexHeader(), []testutil.IndexEntry{
		{Key: k1, Archive: 0, Offset: 100, Size: 50},
	}), 0o644))
	require.NoError(t, os.WriteFile(p2, testutil.BuildIndexTable(testutil.DefaultIndexHeader(), []testutil.IndexEntry{
		{Key: k2, Archive: 3, Offset: 7, Size: 9},
		{Key: k1, Archive: 1, Offset: 200, Size: 60},
	}), 0o644))

	idx := New()
	require.NoError(t, idx.LoadFile(p1))
	require.NoError(t, idx.LoadFile(p2))
	assert.Equal(t, 2, idx.Len())

	loc, ok := idx.Lookup(k1)
	require.True(t, ok)
	assert.Equal(t, casc.Location{Archive: 1, Offset: 200, Size: 60}, loc)

	_, ok = idx.Lookup(testutil.Key("missing"))
	assert.False(t, ok)
}

func TestIndexLoadFileKeepsIndexOnFailure(t *testing.T) {
	dir := t.TempDir()
	h := testutil.DefaultIndexHeader()
	h.EncodedSizeLength = 2
	p := filepath.Join(dir, "bad.idx")
	require.NoError(t, os.WriteFile(p, testutil.BuildIndexTable(h, []testutil.IndexEntry{
		{Key: testutil.Key("x")},
	}), 0o644))

	idx := New()
	err := idx.LoadFile(p)
	require.ErrorIs(t, err, casc.ErrFormat)
	assert.Equal(t, 0, idx.Len())
}
