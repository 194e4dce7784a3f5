// Package testutil builds synthetic CASC structures for tests: index tables,
// BLTE containers, TVFS roots and complete storage directories.
package testutil

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"

	"github.com/jchantrell/casc/internal/casc"
)

// Codec tags understood by the BLTE reader
const (
	CodecRaw  byte = 'N'
	CodecZLib byte = 'Z'
)

// SpanHeaderSize is the local archive record header preceding each BLTE container
const SpanHeaderSize = 30

// IndexHeader holds the declared field widths of an index table
type IndexHeader struct {
	EncodedSizeLength   uint8
	StorageOffsetLength uint8
	EKeyLength          uint8
	FileOffsetBits      uint8
}

// DefaultIndexHeader returns the widths of a standard v7 index table
func DefaultIndexHeader() IndexHeader {
	return IndexHeader{
		EncodedSizeLength:   4,
		StorageOffsetLength: 5,
		EKeyLength:          casc.EKeySize,
		FileOffsetBits:      30,
	}
}

// IndexEntry is a single record written by BuildIndexTable
type IndexEntry struct {
	Key     casc.EKey
	Archive uint32
	Offset  uint64
	Size    uint32
}

// BuildIndexTable encodes an index table. Records always use the standard
// 9/5/4 layout regardless of what the header declares.
func BuildIndexTable(h IndexHeader, entries []IndexEntry) []byte {
	var buf bytes.Buffer

	le32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	le32(16) // header size
	le32(0)  // header hash

	var ver [2]byte
	binary.LittleEndian.PutUint16(ver[:], 7)
	buf.Write(ver[:])
	buf.WriteByte(0) // bucket
	buf.WriteByte(0) // extra bytes
	buf.WriteByte(h.EncodedSizeLength)
	buf.WriteByte(h.StorageOffsetLength)
	buf.WriteByte(h.EKeyLength)
	buf.WriteByte(h.FileOffsetBits)

	var total [8]byte
	binary.LittleEndian.PutUint64(total[:], 1<<30)
	buf.Write(total[:])

	for buf.Len()%16 != 0 {
		buf.WriteByte(0)
	}

	le32(uint32(len(entries) * 18))
	le32(0) // table hash

	for _, e := range entries {
		buf.Write(e.Key[:])
		packed := uint64(e.Archive)<<h.FileOffsetBits | e.Offset
		buf.Write([]byte{
			byte(packed >> 32),
			byte(packed >> 24),
			byte(packed >> 16),
			byte(packed >> 8),
			byte(packed),
		})
		le32(e.Size)
	}

	return buf.Bytes()
}

// Frame is the plaintext of one BLTE frame and the codec used to encode it
type Frame struct {
	Codec byte
	Data  []byte
}

// EncodeFrame returns the on-disk bytes of a frame: codec tag then payload.
// Unknown codecs carry the plaintext unchanged.
func EncodeFrame(f Frame) []byte {
	out := []byte{f.Codec}
	switch f.Codec {
	case CodecZLib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		_, _ = w.Write(f.Data)
		_ = w.Close()
		out = append(out, buf.Bytes()...)
	default:
		out = append(out, f.Data...)
	}
	return out
}

// BuildBLTE encodes a framed BLTE container with a frame table
func BuildBLTE(frames []Frame) []byte {
	encoded := make([][]byte, len(frames))
	for i, f := range frames {
		encoded[i] = EncodeFrame(f)
	}

	var buf bytes.Buffer
	buf.WriteString("BLTE")

	headerSize := uint32(8 + 4 + 24*len(frames))
	_ = binary.Write(&buf, binary.BigEndian, headerSize)
	_ = binary.Write(&buf, binary.BigEndian, uint32(0x0F)<<24|uint32(len(frames)))

	for i, f := range frames {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(encoded[i])))
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(f.Data)))
		sum := md5.Sum(encoded[i])
		buf.Write(sum[:])
	}

	for _, e := range encoded {
		buf.Write(e)
	}

	return buf.Bytes()
}

// BuildSingleFrameBLTE encodes a BLTE container without a frame table
func BuildSingleFrameBLTE(f Frame) []byte {
	var buf bytes.Buffer
	buf.WriteString("BLTE")
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.Write(EncodeFrame(f))
	return buf.Bytes()
}

// Archive accumulates records of one archive data file
type Archive struct {
	Number uint32
	buf    bytes.Buffer
}

// Add appends a span header and container, returning the index record for it
func (a *Archive) Add(key casc.EKey, container []byte) IndexEntry {
	offset := uint64(a.buf.Len())
	size := uint32(SpanHeaderSize + len(container))

	var hdr [SpanHeaderSize]byte
	for i := 0; i < casc.EKeySize; i++ {
		hdr[i] = key[casc.EKeySize-1-i]
	}
	binary.LittleEndian.PutUint32(hdr[16:], size)
	a.buf.Write(hdr[:])
	a.buf.Write(container)

	return IndexEntry{Key: key, Archive: a.Number, Offset: offset, Size: size}
}

// Bytes returns the archive contents
func (a *Archive) Bytes() []byte {
	return a.buf.Bytes()
}

// Key derives a deterministic encoding key from a label
func Key(label string) casc.EKey {
	sum := md5.Sum([]byte(label))
	var k casc.EKey
	copy(k[:], sum[:])
	return k
}

// Chunk splits data into frames of at most size bytes, alternating codecs
func Chunk(data []byte, size int) []Frame {
	var frames []Frame
	for i := 0; len(data) > 0; i++ {
		n := min(size, len(data))
		codec := CodecZLib
		if i%2 == 1 {
			codec = CodecRaw
		}
		frames = append(frames, Frame{Codec: codec, Data: data[:n]})
		data = data[n:]
	}
	if len(frames) == 0 {
		frames = append(frames, Frame{Codec: CodecRaw, Data: []byte{}})
	}
	return frames
}

// Pattern returns n deterministic, poorly compressible bytes
func Pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	x := uint32(seed) + 1
	for i := range out {
		x = x*1664525 + 1013904223
		out[i] = byte(x >> 24)
	}
	return out
}
