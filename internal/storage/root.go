package storage

import (
	"fmt"
	"io"

	"github.com/jchantrell/casc/internal/casc"
	"github.com/jchantrell/casc/internal/tvfs"
)

// RootFormat identifies the decoder of a root file by its signature
type RootFormat int

const (
	RootUnknown RootFormat = iota
	RootTVFS
)

func (f RootFormat) String() string {
	switch f {
	case RootTVFS:
		return "tvfs"
	}
	return "unknown"
}

// DetectRootFormat selects a root format from the first bytes of a root file
func DetectRootFormat(magic []byte) RootFormat {
	if len(magic) >= len(tvfs.Magic) && string(magic[:len(tvfs.Magic)]) == tvfs.Magic {
		return RootTVFS
	}
	return RootUnknown
}

// RootHandler decodes root files of formats other than TVFS
type RootHandler interface {
	DecodeRoot(root io.ReaderAt, size int64) (map[string]tvfs.FileEntry, error)
}

// RootHandlerFunc adapts a function to RootHandler
type RootHandlerFunc func(root io.ReaderAt, size int64) (map[string]tvfs.FileEntry, error)

func (f RootHandlerFunc) DecodeRoot(root io.ReaderAt, size int64) (map[string]tvfs.FileEntry, error) {
	return f(root, size)
}

func decodeRoot(root io.ReaderAt, size int64, handler RootHandler) (map[string]tvfs.FileEntry, RootFormat, error) {
	var magic [4]byte
	if _, err := root.ReadAt(magic[:], 0); err != nil {
		return nil, RootUnknown, fmt.Errorf("reading root signature: %w", err)
	}

	format := DetectRootFormat(magic[:])
	switch format {
	case RootTVFS:
		data := make([]byte, size)
		if _, err := root.ReadAt(data, 0); err != nil {
			return nil, format, fmt.Errorf("reading tvfs root: %w", err)
		}
		files, err := tvfs.Parse(data)
		return files, format, err
	}

	if handler == nil {
		return nil, format, fmt.Errorf("%w: root signature %q", casc.ErrUnsupportedFormat, magic[:])
	}
	files, err := handler.DecodeRoot(root, size)
	return files, format, err
}
