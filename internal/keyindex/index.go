// Package keyindex parses the local storage index tables (*.idx) that map
// truncated encoding keys onto archive data file locations.
package keyindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/jchantrell/casc/internal/casc"
)

// Field widths every supported index table must declare.
const (
	EncodedSizeLength   = 4
	StorageOffsetLength = 5
	EKeyLength          = casc.EKeySize

	entrySize = EKeyLength + StorageOffsetLength + EncodedSizeLength

	// header checksum pair + header body, padded to this boundary
	headerAlign = 16
)

type tableHeader struct {
	Version             uint16
	BucketIndex         uint8
	ExtraBytes          uint8
	EncodedSizeLength   uint8
	StorageOffsetLength uint8
	EKeyLength          uint8
	FileOffsetBits      uint8
	SegmentSize         uint64
}

// Entry is a single index table record
type Entry struct {
	Key      casc.EKey
	Location casc.Location
}

// Index is the aggregate of every loaded index table. It is built once and
// only read afterwards, so lookups need no locking.
type Index struct {
	entries map[casc.EKey]casc.Location
}

// New returns an empty index
func New() *Index {
	return &Index{entries: make(map[casc.EKey]casc.Location)}
}

// LoadFile parses the index table at path and merges it into idx
func (idx *Index) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading index table %s: %w", path, err)
	}

	entries, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parsing index table %s: %w", path, err)
	}

	idx.Add(entries)
	slog.Debug("Index table loaded", "path", path, "entries", len(entries))

	return nil
}

// Add inserts entries, overwriting existing keys
func (idx *Index) Add(entries []Entry) {
	for _, e := range entries {
		idx.entries[e.Key] = e.Location
	}
}

// Lookup returns the archive location of an encoding key
func (idx *Index) Lookup(key casc.EKey) (casc.Location, bool) {
	loc, ok := idx.entries[key]
	return loc, ok
}

// Len returns the number of distinct keys
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Parse decodes one index table. Nothing is returned unless the whole table
// parses, since a partial index cannot serve path resolution.
func Parse(data []byte) ([]Entry, error) {
	// header size and hash, not validated
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: index table too small (%d bytes)", casc.ErrFormat, len(data))
	}

	var hdr tableHeader
	if err := binary.Read(bytes.NewReader(data[8:]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading index header: %v", casc.ErrFormat, err)
	}

	if hdr.EncodedSizeLength != EncodedSizeLength ||
		hdr.StorageOffsetLength != StorageOffsetLength ||
		hdr.EKeyLength != EKeyLength {
		return nil, fmt.Errorf(
			"%w: unexpected index field widths (size=%d offset=%d key=%d)",
			casc.ErrFormat,
			hdr.EncodedSizeLength,
			hdr.StorageOffsetLength,
			hdr.EKeyLength,
		)
	}

	if hdr.FileOffsetBits == 0 || hdr.FileOffsetBits >= StorageOffsetLength*8 {
		return nil, fmt.Errorf("%w: file offset bits %d out of range", casc.ErrFormat, hdr.FileOffsetBits)
	}

	p := 8 + binary.Size(hdr)
	p = (p + headerAlign - 1) &^ (headerAlign - 1)

	if p+8 > len(data) {
		return nil, fmt.Errorf("%w: index table truncated before entry table", casc.ErrFormat)
	}

	tableSize := int(binary.LittleEndian.Uint32(data[p:]))
	p += 8 // size + hash

	if tableSize%entrySize != 0 {
		return nil, fmt.Errorf("%w: entry table size %d is not a multiple of %d", casc.ErrFormat, tableSize, entrySize)
	}

	if p+tableSize > len(data) {
		return nil, fmt.Errorf("%w: entry table needs %d bytes, have %d", casc.ErrFormat, tableSize, len(data)-p)
	}

	entries := make([]Entry, tableSize/entrySize)
	for i := range entries {
		rec := data[p : p+entrySize]
		p += entrySize

		var e Entry
		copy(e.Key[:], rec[:EKeyLength])

		packed := readUint40BE(rec[EKeyLength:])
		e.Location.Archive, e.Location.Offset = UnpackOffset(packed, hdr.FileOffsetBits)
		e.Location.Size = binary.LittleEndian.Uint32(rec[EKeyLength+StorageOffsetLength:])

		entries[i] = e
	}

	return entries, nil
}

// UnpackOffset splits a packed storage offset into archive number and byte offset
func UnpackOffset(packed uint64, fileOffsetBits uint8) (uint32, uint64) {
	mask := uint64(1)<<fileOffsetBits - 1
	return uint32(packed >> fileOffsetBits), packed & mask
}

// PackOffset is the inverse of UnpackOffset
func PackOffset(archive uint32, offset uint64, fileOffsetBits uint8) uint64 {
	mask := uint64(1)<<fileOffsetBits - 1
	return uint64(archive)<<fileOffsetBits | offset&mask
}

func readUint40BE(b []byte) uint64 {
	return uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])
}
