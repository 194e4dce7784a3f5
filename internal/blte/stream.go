package blte

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/jchantrell/casc/internal/casc"
)

// Stream is a read-only, seekable view over the concatenated plaintext of
// one or more spans. It decodes lazily one frame at a time and keeps the most
// recently decoded frame cached.
//
// Archive data is accessed through positioned reads only, so any number of
// streams over the same archives may be used concurrently. A single Stream is
// safe for concurrent use as well; its cursor and cache are guarded.
type Stream struct {
	mu     sync.Mutex
	spans  []*Span
	length int64
	pos    int64
	cache  frameCache
}

type frameCache struct {
	start int64
	end   int64
	data  []byte
}

func (c *frameCache) contains(off int64) bool {
	return c.data != nil && off >= c.start && off < c.end
}

// NewStream composes spans into a stream. Spans must be ordered and their
// virtual ranges contiguous starting at zero.
func NewStream(spans []*Span) (*Stream, error) {
	var next uint64
	for i, s := range spans {
		if s.VirtualStart != next {
			return nil, fmt.Errorf("%w: span %d starts at %d, expected %d", casc.ErrIO, i, s.VirtualStart, next)
		}
		next = s.VirtualEnd
	}

	return &Stream{
		spans:  spans,
		length: int64(next),
	}, nil
}

// Size returns the total plaintext length
func (s *Stream) Size() int64 {
	return s.length
}

// Spans returns the spans backing the stream
func (s *Stream) Spans() []*Span {
	return s.spans
}

// Position returns the current read offset
func (s *Stream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Read implements io.Reader. A read that reaches the end of the stream
// returns the bytes copied so far; io.EOF is only reported once nothing is left.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= s.length {
		return 0, io.EOF
	}

	n, err := s.readAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt. It does not move the read offset.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("blte: negative offset %d", off)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.readAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Seek implements io.Seeker. It never performs I/O; the resulting offset is
// clamped to the end of the stream.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = s.length + offset
	default:
		return s.pos, fmt.Errorf("blte: invalid whence %d", whence)
	}

	if abs < 0 {
		return s.pos, fmt.Errorf("blte: negative position %d", abs)
	}
	s.pos = min(abs, s.length)

	return s.pos, nil
}

// Write always fails, streams are read-only
func (s *Stream) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("%w: write to read-only stream", casc.ErrNotSupported)
}

// Truncate always fails, the length of a stream is fixed
func (s *Stream) Truncate(size int64) error {
	return fmt.Errorf("%w: truncate read-only stream", casc.ErrNotSupported)
}

// Close drops the decode cache. The archives are owned by the storage and
// stay open.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = frameCache{}
	return nil
}

// Preload decodes every frame into a whole-file cache so later reads
// perform no archive I/O
func (s *Stream) Preload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.start == 0 && s.cache.end == s.length && s.cache.data != nil {
		return nil
	}

	buf := make([]byte, 0, s.length)
	for _, span := range s.spans {
		for i := range span.Frames {
			data, err := span.DecodeFrame(i)
			if err != nil {
				return err
			}
			buf = append(buf, data...)
		}
	}

	s.cache = frameCache{start: 0, end: s.length, data: buf}
	return nil
}

// readAt copies from off until p is full or the stream ends. The caller
// holds s.mu.
func (s *Stream) readAt(p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		if s.cache.contains(off) {
			c := copy(p[n:], s.cache.data[off-s.cache.start:])
			n += c
			off += int64(c)
			continue
		}

		if off >= s.length {
			break
		}

		if err := s.load(off); err != nil {
			return n, err
		}
	}
	return n, nil
}

// load replaces the cache with the frame covering off
func (s *Stream) load(off int64) error {
	span, frame := s.locate(uint64(off))
	if span == nil {
		slog.Error("Stream offset outside all spans", "offset", off, "length", s.length, "spans", len(s.spans))
		return fmt.Errorf("%w: offset %d not covered by any frame", casc.ErrIO, off)
	}

	data, err := span.DecodeFrame(frame)
	if err != nil {
		return err
	}

	f := span.Frames[frame]
	if len(data) != int(f.ContentSize) {
		return fmt.Errorf("%w: frame decoded to %d bytes, want %d", casc.ErrIO, len(data), f.ContentSize)
	}

	s.cache = frameCache{
		start: int64(f.VirtualStart),
		end:   int64(f.VirtualEnd),
		data:  data,
	}
	return nil
}

func (s *Stream) locate(off uint64) (*Span, int) {
	si := sort.Search(len(s.spans), func(i int) bool {
		return s.spans[i].VirtualEnd > off
	})
	if si == len(s.spans) || s.spans[si].VirtualStart > off {
		return nil, -1
	}

	span := s.spans[si]
	fi := sort.Search(len(span.Frames), func(i int) bool {
		return span.Frames[i].VirtualEnd > off
	})
	if fi == len(span.Frames) || span.Frames[fi].VirtualStart > off {
		return nil, -1
	}

	return span, fi
}
