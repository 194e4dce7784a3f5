// Package tvfs decodes TVFS root files: the path table trie, the VFS span
// table and the content file table that together map paths to encoding keys.
package tvfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jchantrell/casc/internal/casc"
)

const (
	// Magic is the signature of a TVFS root
	Magic = "TVFS"

	// HeaderSize is the smallest header a TVFS root may declare
	HeaderSize = 38
)

// Header is the fixed TVFS root header. All multi-byte fields are big-endian.
type Header struct {
	Magic           [4]byte
	Version         uint8
	HeaderSize      uint8
	EKeySize        uint8
	PatchKeySize    uint8
	Flags           uint32
	PathTableOffset uint32
	PathTableSize   uint32
	VFSTableOffset  uint32
	VFSTableSize    uint32
	CFTTableOffset  uint32
	CFTTableSize    uint32
	MaxDepth        uint16
}

// ParseHeader decodes and validates the header at the start of data. Table
// ranges are checked against len(data).
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: tvfs root of %d bytes is shorter than its header", casc.ErrFormat, len(data))
	}

	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.BigEndian, &h); err != nil {
		return h, fmt.Errorf("%w: reading tvfs header: %v", casc.ErrFormat, err)
	}

	if string(h.Magic[:]) != Magic {
		return h, fmt.Errorf("%w: bad tvfs signature %q", casc.ErrFormat, h.Magic[:])
	}
	if h.HeaderSize < HeaderSize {
		return h, fmt.Errorf("%w: tvfs header size %d", casc.ErrFormat, h.HeaderSize)
	}
	if h.EKeySize < casc.EKeySize {
		return h, fmt.Errorf("%w: tvfs encoding key size %d", casc.ErrFormat, h.EKeySize)
	}

	tables := []struct {
		name         string
		offset, size uint32
	}{
		{"path", h.PathTableOffset, h.PathTableSize},
		{"vfs", h.VFSTableOffset, h.VFSTableSize},
		{"cft", h.CFTTableOffset, h.CFTTableSize},
	}
	for _, t := range tables {
		if uint64(t.offset)+uint64(t.size) > uint64(len(data)) {
			return h, fmt.Errorf("%w: tvfs %s table [%d,+%d) exceeds root of %d bytes", casc.ErrFormat, t.name, t.offset, t.size, len(data))
		}
	}

	return h, nil
}

// Parse decodes a complete TVFS root into its file entries
func Parse(data []byte) (map[string]FileEntry, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	return Decode(
		section(data, h.PathTableOffset, h.PathTableSize),
		section(data, h.VFSTableOffset, h.VFSTableSize),
		section(data, h.CFTTableOffset, h.CFTTableSize),
		int(h.EKeySize),
		int(h.CFTTableSize),
	)
}

func section(data []byte, offset, size uint32) []byte {
	return data[offset : offset+size : offset+size]
}
