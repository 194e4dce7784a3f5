// Package blte decodes BLTE chunk containers stored in local archives and
// stitches them into seekable logical file streams.
package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/jchantrell/casc/internal/casc"
)

const (
	// SpanHeaderSize is the opaque per-record header preceding the container
	SpanHeaderSize = 30

	// Magic is the container signature
	Magic = "BLTE"

	// magic + header size
	preambleSize = 8
	// flags + 24 bit frame count
	frameTableHeaderSize = 4
	// encoded size + content size + md5
	frameDescriptorSize = 24
)

// Codec identifies how a frame payload is stored
type Codec byte

const (
	CodecRaw  Codec = 'N'
	CodecZLib Codec = 'Z'
)

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecZLib:
		return "zlib"
	}
	return fmt.Sprintf("0x%02x", byte(c))
}

// Header is the decoded container header
type Header struct {
	HeaderSize uint32
	Flags      uint8
	FrameCount uint32
}

// Frame describes one compressed region of a container and the virtual
// range its plaintext occupies in the logical file
type Frame struct {
	ArchiveOffset uint64
	EncodedSize   uint32
	ContentSize   uint32
	VirtualStart  uint64
	VirtualEnd    uint64
	Checksum      [md5.Size]byte

	hasChecksum bool
}

// Span is one archive location's decoded container
type Span struct {
	Location     casc.Location
	Header       Header
	Frames       []Frame
	VirtualStart uint64
	VirtualEnd   uint64

	src    io.ReaderAt
	verify bool
}

// OpenSpan reads the container header at loc and lays its frames out in
// virtual space starting at virtualStart. src must be the archive data file
// loc.Archive refers to.
func OpenSpan(src io.ReaderAt, loc casc.Location, virtualStart uint64, verify bool) (*Span, error) {
	var pre [SpanHeaderSize + preambleSize]byte
	if err := readFull(src, pre[:], loc.Offset); err != nil {
		return nil, fmt.Errorf("reading container preamble at %s: %w", loc, err)
	}

	if string(pre[SpanHeaderSize:SpanHeaderSize+4]) != Magic {
		return nil, fmt.Errorf("%w: bad container signature %q at %s", casc.ErrFormat, pre[SpanHeaderSize:SpanHeaderSize+4], loc)
	}

	s := &Span{
		Location:     loc,
		VirtualStart: virtualStart,
		src:          src,
		verify:       verify,
	}
	s.Header.HeaderSize = binary.BigEndian.Uint32(pre[SpanHeaderSize+4:])

	base := loc.Offset + SpanHeaderSize
	if s.Header.HeaderSize == 0 {
		if err := s.openSingleFrame(base + preambleSize); err != nil {
			return nil, err
		}
	} else {
		if err := s.openFrameTable(base); err != nil {
			return nil, err
		}
	}

	s.VirtualEnd = virtualStart
	if n := len(s.Frames); n > 0 {
		s.VirtualEnd = s.Frames[n-1].VirtualEnd
	}

	return s, nil
}

func (s *Span) openFrameTable(base uint64) error {
	hs := s.Header.HeaderSize
	if hs < preambleSize+frameTableHeaderSize {
		return fmt.Errorf("%w: container header size %d too small at %s", casc.ErrFormat, hs, s.Location)
	}
	if s.Location.Size > 0 && uint64(hs)+SpanHeaderSize > uint64(s.Location.Size) {
		return fmt.Errorf("%w: container header size %d exceeds record of %d bytes at %s", casc.ErrFormat, hs, s.Location.Size, s.Location)
	}

	var word [frameTableHeaderSize]byte
	if err := readFull(s.src, word[:], base+preambleSize); err != nil {
		return fmt.Errorf("reading frame count at %s: %w", s.Location, err)
	}
	s.Header.Flags = word[0]
	s.Header.FrameCount = uint32(word[1])<<16 | uint32(word[2])<<8 | uint32(word[3])

	if s.Header.FrameCount == 0 {
		return fmt.Errorf("%w: container without frames at %s", casc.ErrFormat, s.Location)
	}

	// the declared size must match the frame count before anything is allocated from it
	want := preambleSize + frameTableHeaderSize + frameDescriptorSize*uint64(s.Header.FrameCount)
	if uint64(hs) != want {
		return fmt.Errorf("%w: header size %d does not fit %d frames at %s", casc.ErrFormat, hs, s.Header.FrameCount, s.Location)
	}

	table := make([]byte, hs-preambleSize)
	if err := readFull(s.src, table, base+preambleSize); err != nil {
		return fmt.Errorf("reading frame table at %s: %w", s.Location, err)
	}

	p := table[frameTableHeaderSize:]
	archiveOffset := base + uint64(hs)
	virtualOffset := s.VirtualStart

	s.Frames = make([]Frame, s.Header.FrameCount)
	for i := range s.Frames {
		f := Frame{
			ArchiveOffset: archiveOffset,
			EncodedSize:   binary.BigEndian.Uint32(p[0:]),
			ContentSize:   binary.BigEndian.Uint32(p[4:]),
			VirtualStart:  virtualOffset,
			hasChecksum:   true,
		}
		copy(f.Checksum[:], p[8:24])
		p = p[frameDescriptorSize:]

		f.VirtualEnd = f.VirtualStart + uint64(f.ContentSize)
		archiveOffset += uint64(f.EncodedSize)
		virtualOffset = f.VirtualEnd
		s.Frames[i] = f
	}

	if s.Location.Size > 0 && archiveOffset > s.Location.Offset+uint64(s.Location.Size) {
		return fmt.Errorf("%w: frames overrun record bounds at %s", casc.ErrFormat, s.Location)
	}

	return nil
}

// a container without a frame table holds one frame filling the record; its
// plaintext size is only known after decoding it
func (s *Span) openSingleFrame(dataOffset uint64) error {
	overhead := uint32(SpanHeaderSize + preambleSize)
	if s.Location.Size <= overhead {
		return fmt.Errorf("%w: record too small for a headerless container at %s", casc.ErrFormat, s.Location)
	}

	f := Frame{
		ArchiveOffset: dataOffset,
		EncodedSize:   s.Location.Size - overhead,
		VirtualStart:  s.VirtualStart,
	}

	data, err := decode(s.src, f, -1, false)
	if err != nil {
		return fmt.Errorf("sizing headerless container at %s: %w", s.Location, err)
	}

	f.ContentSize = uint32(len(data))
	f.VirtualEnd = f.VirtualStart + uint64(f.ContentSize)
	s.Header.FrameCount = 1
	s.Frames = []Frame{f}

	return nil
}

// DecodeFrame returns the plaintext of frame i
func (s *Span) DecodeFrame(i int) ([]byte, error) {
	f := s.Frames[i]
	data, err := decode(s.src, f, int(f.ContentSize), s.verify)
	if err != nil {
		return nil, fmt.Errorf("frame %d of %s: %w", i, s.Location, err)
	}
	return data, nil
}

// DecodeFrame reads a frame from src and returns exactly f.ContentSize plaintext bytes
func DecodeFrame(src io.ReaderAt, f Frame) ([]byte, error) {
	return decode(src, f, int(f.ContentSize), false)
}

// want < 0 decodes the whole payload
func decode(src io.ReaderAt, f Frame, want int, verify bool) ([]byte, error) {
	if f.EncodedSize == 0 {
		return nil, fmt.Errorf("%w: empty frame", casc.ErrFormat)
	}

	raw := make([]byte, f.EncodedSize)
	if err := readFull(src, raw, f.ArchiveOffset); err != nil {
		return nil, err
	}

	if verify && f.hasChecksum && md5.Sum(raw) != f.Checksum {
		return nil, fmt.Errorf("%w: frame checksum mismatch at offset %d", casc.ErrFormat, f.ArchiveOffset)
	}

	payload := raw[1:]
	switch codec := Codec(raw[0]); codec {
	case CodecRaw:
		if want < 0 {
			return payload, nil
		}
		if len(payload) < want {
			return nil, fmt.Errorf("%w: raw frame holds %d bytes, want %d", casc.ErrFormat, len(payload), want)
		}
		return payload[:want:want], nil

	case CodecZLib:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib frame: %v", casc.ErrFormat, err)
		}
		defer zr.Close()

		if want < 0 {
			out, err := io.ReadAll(zr)
			if err != nil {
				return nil, fmt.Errorf("%w: inflating frame: %v", casc.ErrFormat, err)
			}
			return out, nil
		}

		out := make([]byte, want)
		if _, err := io.ReadFull(zr, out); err != nil {
			return nil, fmt.Errorf("%w: inflating frame to %d bytes: %v", casc.ErrFormat, want, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: codec %s", casc.ErrUnsupportedCodec, codec)
	}
}

func readFull(src io.ReaderAt, p []byte, off uint64) error {
	n, err := src.ReadAt(p, int64(off))
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: short read at offset %d (%d of %d bytes): %w", casc.ErrIO, off, n, len(p), err)
}
