package blte

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/casc/internal/casc"
	"github.com/jchantrell/casc/internal/testutil"
)

type fixture struct {
	src   *bytes.Reader
	locs  []casc.Location
	plain []byte
}

// buildFixture writes one container per span into a single archive
func buildFixture(t *testing.T, spans ...[]testutil.Frame) *fixture {
	t.Helper()

	a := &testutil.Archive{}
	fx := &fixture{}
	for i, frames := range spans {
		e := a.Add(testutil.Key(string(rune('a'+i))), testutil.BuildBLTE(frames))
		fx.locs = append(fx.locs, casc.Location{Archive: e.Archive, Offset: e.Offset, Size: e.Size})
		for _, f := range frames {
			fx.plain = append(fx.plain, f.Data...)
		}
	}
	fx.src = bytes.NewReader(a.Bytes())
	return fx
}

func (fx *fixture) stream(t *testing.T) *Stream {
	t.Helper()

	var spans []*Span
	var next uint64
	for _, loc := range fx.locs {
		s, err := OpenSpan(fx.src, loc, next, true)
		require.NoError(t, err)
		spans = append(spans, s)
		next = s.VirtualEnd
	}

	st, err := NewStream(spans)
	require.NoError(t, err)
	return st
}

func TestOpenSpanFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, SpanHeaderSize))
	buf.WriteString(Magic)
	_ = binary.Write(&buf, binary.BigEndian, uint32(8+4+2*24))
	_ = binary.Write(&buf, binary.BigEndian, uint32(0x0F000002))
	for _, sizes := range [][2]uint32{{40, 100}, {60, 50}} {
		_ = binary.Write(&buf, binary.BigEndian, sizes[0])
		_ = binary.Write(&buf, binary.BigEndian, sizes[1])
		buf.Write(make([]byte, 16))
	}
	base := uint64(buf.Len())
	buf.Write(make([]byte, 100))

	span, err := OpenSpan(bytes.NewReader(buf.Bytes()), casc.Location{Size: uint32(buf.Len())}, 0, false)
	require.NoError(t, err)
	require.Len(t, span.Frames, 2)

	assert.Equal(t, uint32(2), span.Header.FrameCount)
	assert.Equal(t, uint64(0), span.Frames[0].VirtualStart)
	assert.Equal(t, uint64(100), span.Frames[0].VirtualEnd)
	assert.Equal(t, uint64(100), span.Frames[1].VirtualStart)
	assert.Equal(t, uint64(150), span.Frames[1].VirtualEnd)
	assert.Equal(t, base, span.Frames[0].ArchiveOffset)
	assert.Equal(t, base+40, span.Frames[1].ArchiveOffset)
	assert.Equal(t, uint64(150), span.VirtualEnd)
}

func TestOpenSpanCarriesVirtualOffset(t *testing.T) {
	fx := buildFixture(t, []testutil.Frame{{Codec: testutil.CodecRaw, Data: []byte("hello")}})

	span, err := OpenSpan(fx.src, fx.locs[0], 1000, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), span.VirtualStart)
	assert.Equal(t, uint64(1005), span.VirtualEnd)
	assert.Equal(t, uint64(1000), span.Frames[0].VirtualStart)
}

func TestOpenSpanBadSignature(t *testing.T) {
	a := &testutil.Archive{}
	container := testutil.BuildBLTE([]testutil.Frame{{Codec: testutil.CodecRaw, Data: []byte("data")}})
	copy(container, "BLTF")
	e := a.Add(testutil.Key("bad"), container)

	span, err := OpenSpan(bytes.NewReader(a.Bytes()), casc.Location{Offset: e.Offset, Size: e.Size}, 0, false)
	require.ErrorIs(t, err, casc.ErrFormat)
	assert.Nil(t, span)
}

func TestOpenSpanShortArchive(t *testing.T) {
	_, err := OpenSpan(bytes.NewReader(make([]byte, 10)), casc.Location{Size: 100}, 0, false)
	require.ErrorIs(t, err, casc.ErrIO)
}

func TestOpenSpanRejectsOversizedHeader(t *testing.T) {
	record := func(headerSize, countWord uint32) []byte {
		var buf bytes.Buffer
		buf.Write(make([]byte, SpanHeaderSize))
		buf.WriteString(Magic)
		_ = binary.Write(&buf, binary.BigEndian, headerSize)
		_ = binary.Write(&buf, binary.BigEndian, countWord)
		buf.Write(make([]byte, 64))
		return buf.Bytes()
	}

	data := record(0x7FFFFFF0, 0x0F000001)
	span, err := OpenSpan(bytes.NewReader(data), casc.Location{Size: uint32(len(data))}, 0, false)
	require.ErrorIs(t, err, casc.ErrFormat)
	assert.NotErrorIs(t, err, casc.ErrIO)
	assert.Nil(t, span)

	// record size unknown, the frame count still bounds the header
	_, err = OpenSpan(bytes.NewReader(data), casc.Location{}, 0, false)
	require.ErrorIs(t, err, casc.ErrFormat)
	assert.NotErrorIs(t, err, casc.ErrIO)

	// frame count word disagreeing with a plausible header size
	data = record(8+4+24, 0x0F000002)
	_, err = OpenSpan(bytes.NewReader(data), casc.Location{Size: uint32(len(data))}, 0, false)
	require.ErrorIs(t, err, casc.ErrFormat)
}

func TestDecodeFrameCodecs(t *testing.T) {
	plain := testutil.Pattern(3000, 1)
	fx := buildFixture(t, []testutil.Frame{
		{Codec: testutil.CodecZLib, Data: plain[:2000]},
		{Codec: testutil.CodecRaw, Data: plain[2000:]},
	})

	span, err := OpenSpan(fx.src, fx.locs[0], 0, true)
	require.NoError(t, err)

	got0, err := span.DecodeFrame(0)
	require.NoError(t, err)
	assert.Equal(t, plain[:2000], got0)

	got1, err := DecodeFrame(fx.src, span.Frames[1])
	require.NoError(t, err)
	assert.Equal(t, plain[2000:], got1)
}

func TestHeaderlessContainer(t *testing.T) {
	plain := testutil.Pattern(777, 9)
	a := &testutil.Archive{}
	e := a.Add(testutil.Key("single"), testutil.BuildSingleFrameBLTE(testutil.Frame{Codec: testutil.CodecZLib, Data: plain}))

	span, err := OpenSpan(bytes.NewReader(a.Bytes()), casc.Location{Offset: e.Offset, Size: e.Size}, 0, false)
	require.NoError(t, err)
	require.Len(t, span.Frames, 1)
	assert.Equal(t, uint32(len(plain)), span.Frames[0].ContentSize)

	st, err := NewStream([]*Span{span})
	require.NoError(t, err)
	got, err := io.ReadAll(st)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestStreamChunkedReadsMatch(t *testing.T) {
	plain := testutil.Pattern(5000, 3)
	fx := buildFixture(t,
		testutil.Chunk(plain[:3100], 512),
		testutil.Chunk(plain[3100:], 300),
	)
	require.Equal(t, plain, fx.plain)

	whole := make([]byte, len(plain))
	st := fx.stream(t)
	require.Equal(t, int64(len(plain)), st.Size())
	n, err := st.Read(whole)
	require.NoError(t, err)
	require.Equal(t, len(plain), n)
	require.Equal(t, plain, whole)

	var sum uint64
	for _, span := range st.Spans() {
		for _, f := range span.Frames {
			sum += uint64(f.ContentSize)
		}
	}
	assert.Equal(t, uint64(st.Size()), sum)

	for _, chunk := range []int{1, 7, 512} {
		st := fx.stream(t)
		var got []byte
		buf := make([]byte, chunk)
		for {
			n, err := st.Read(buf)
			got = append(got, buf[:n]...)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
		}
		assert.Equal(t, plain, got, "chunk size %d", chunk)
	}
}

func TestStreamSeekConsistency(t *testing.T) {
	plain := testutil.Pattern(4096, 5)
	fx := buildFixture(t, testutil.Chunk(plain[:1000], 128), testutil.Chunk(plain[1000:], 700))
	st := fx.stream(t)

	for _, off := range []int64{0, 1, 127, 128, 999, 1000, 1001, 2500, 4095} {
		pos, err := st.Seek(off, io.SeekStart)
		require.NoError(t, err)
		require.Equal(t, off, pos)

		buf := make([]byte, 300)
		n, err := io.ReadFull(st, buf)
		if err != nil {
			require.ErrorIs(t, err, io.ErrUnexpectedEOF)
		}
		assert.Equal(t, plain[off:off+int64(n)], buf[:n], "offset %d", off)
		assert.Equal(t, off+int64(n), st.Position())
	}
}

func TestStreamSeekWhence(t *testing.T) {
	fx := buildFixture(t, testutil.Chunk(testutil.Pattern(100, 2), 30))
	st := fx.stream(t)

	pos, err := st.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(90), pos)

	pos, err = st.Seek(5, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(95), pos)

	pos, err = st.Seek(500, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)

	_, err = st.Seek(-1, io.SeekStart)
	require.Error(t, err)
	assert.Equal(t, int64(100), st.Position())

	n, err := st.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestStreamShortReadAtEnd(t *testing.T) {
	plain := testutil.Pattern(50, 4)
	fx := buildFixture(t, testutil.Chunk(plain, 20))
	st := fx.stream(t)

	_, err := st.Seek(45, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 20)
	n, err := st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, plain[45:], buf[:n])

	n, err = st.ReadAt(buf, 40)
	assert.Equal(t, 10, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, plain[40:], buf[:n])
}

func TestStreamPreloadMatchesLazy(t *testing.T) {
	plain := testutil.Pattern(3333, 6)
	fx := buildFixture(t, testutil.Chunk(plain[:2000], 256), testutil.Chunk(plain[2000:], 1000))

	lazy, err := io.ReadAll(fx.stream(t))
	require.NoError(t, err)

	st := fx.stream(t)
	require.NoError(t, st.Preload())
	eager, err := io.ReadAll(st)
	require.NoError(t, err)

	assert.Equal(t, lazy, eager)
	assert.Equal(t, plain, eager)
}

func TestStreamUnsupportedCodecKeepsCache(t *testing.T) {
	good := testutil.Pattern(64, 7)
	tail := testutil.Pattern(32, 8)
	fx := buildFixture(t, []testutil.Frame{
		{Codec: testutil.CodecZLib, Data: good},
		{Codec: '4', Data: []byte("lz4 payload!")},
		{Codec: testutil.CodecRaw, Data: tail},
	})
	st := fx.stream(t)

	buf := make([]byte, 16)
	_, err := st.ReadAt(buf, 0)
	require.NoError(t, err)

	_, err = st.ReadAt(buf, 64)
	require.ErrorIs(t, err, casc.ErrUnsupportedCodec)

	n, err := st.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, good[10:10+n], buf[:n])

	n, err = st.ReadAt(buf, 64+12)
	require.NoError(t, err)
	assert.Equal(t, tail[:n], buf[:n])
}

func TestStreamChecksumVerification(t *testing.T) {
	plain := []byte("the quick brown fox jumps over the lazy dog")
	a := &testutil.Archive{}
	container := testutil.BuildBLTE([]testutil.Frame{{Codec: testutil.CodecRaw, Data: plain}})
	container[len(container)-1] ^= 0xFF
	e := a.Add(testutil.Key("corrupt"), container)
	src := bytes.NewReader(a.Bytes())
	loc := casc.Location{Offset: e.Offset, Size: e.Size}

	verified, err := OpenSpan(src, loc, 0, true)
	require.NoError(t, err)
	_, err = verified.DecodeFrame(0)
	require.ErrorIs(t, err, casc.ErrFormat)

	unverified, err := OpenSpan(src, loc, 0, false)
	require.NoError(t, err)
	data, err := unverified.DecodeFrame(0)
	require.NoError(t, err)
	assert.NotEqual(t, plain, data)
}

func TestStreamReadOnly(t *testing.T) {
	fx := buildFixture(t, testutil.Chunk([]byte("abc"), 8))
	st := fx.stream(t)

	_, err := st.Write([]byte("x"))
	require.ErrorIs(t, err, casc.ErrNotSupported)
	require.ErrorIs(t, st.Truncate(0), casc.ErrNotSupported)
	require.NoError(t, st.Close())
}

func TestNewStreamRejectsGap(t *testing.T) {
	fx := buildFixture(t, testutil.Chunk([]byte("abc"), 8), testutil.Chunk([]byte("def"), 8))

	s1, err := OpenSpan(fx.src, fx.locs[0], 0, false)
	require.NoError(t, err)
	s2, err := OpenSpan(fx.src, fx.locs[1], s1.VirtualEnd+1, false)
	require.NoError(t, err)

	_, err = NewStream([]*Span{s1, s2})
	require.ErrorIs(t, err, casc.ErrIO)
}

func TestEmptyStream(t *testing.T) {
	st, err := NewStream(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size())

	n, err := st.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}
