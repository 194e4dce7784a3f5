package tvfs

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jchantrell/casc/internal/casc"
)

// Separator joins path fragments
const Separator = '\\'

const (
	nodeValueMarker = 0xFF
	folderBit       = 0x80000000
	maxSpanCount    = 224
)

// Span is one encoding key a file is composed of
type Span struct {
	Key       casc.EKey
	RefOffset uint32
	Size      uint32
}

// FileEntry is a path and the ordered spans holding its content
type FileEntry struct {
	Name  string
	Spans []Span
}

// ContentSize is the sum of the span sizes recorded in the VFS table
func (e FileEntry) ContentSize() uint64 {
	var n uint64
	for _, s := range e.Spans {
		n += uint64(s.Size)
	}
	return n
}

type node struct {
	sepBefore bool
	sepAfter  bool
	hasValue  bool
	name      []byte
	value     uint32
}

type decoder struct {
	path     []byte
	vfs      []byte
	cft      []byte
	ekeySize int
	cftWidth int
	files    map[string]FileEntry
}

// Decode walks the path table trie and resolves every file node through the
// VFS and content file tables. A path appearing twice keeps its last entry.
func Decode(pathBytes, vfsBytes, cftBytes []byte, ekeySize, cftTableSize int) (map[string]FileEntry, error) {
	if ekeySize < casc.EKeySize {
		return nil, fmt.Errorf("%w: encoding key size %d", casc.ErrFormat, ekeySize)
	}

	d := &decoder{
		path:     pathBytes,
		vfs:      vfsBytes,
		cft:      cftBytes,
		ekeySize: ekeySize,
		cftWidth: offsetWidth(cftTableSize),
		files:    make(map[string]FileEntry),
	}

	if err := d.walk("", 0, len(pathBytes)); err != nil {
		return nil, err
	}
	return d.files, nil
}

// walk decodes the nodes in [pos, end). Fragments without a value extend the
// current name; every value node resets it to prefix afterwards.
func (d *decoder) walk(prefix string, pos, end int) error {
	name := prefix

	for pos < end {
		n, next, err := d.readNode(pos, end)
		if err != nil {
			return err
		}
		pos = next

		if n.sepBefore {
			name = appendSeparator(name)
		}
		name += string(n.name)
		if n.sepAfter {
			name = appendSeparator(name)
		}

		if !n.hasValue {
			continue
		}

		if n.value&folderBit != 0 {
			length := int(n.value &^ folderBit)
			if length < 4 || pos+length-4 > end {
				return fmt.Errorf("%w: folder %q of %d bytes at offset %d overruns its parent ending at %d", casc.ErrFormat, name, length, pos, end)
			}
			if err := d.walk(name, pos, pos+length-4); err != nil {
				return err
			}
			pos += length - 4
		} else {
			entry, err := d.resolve(strings.TrimRight(name, string(Separator)), int(n.value))
			if err != nil {
				return err
			}
			d.files[entry.Name] = entry
		}

		name = prefix
	}

	return nil
}

func (d *decoder) readNode(pos, end int) (node, int, error) {
	var n node
	start := pos
	b := d.path

	if b[pos] == 0 {
		n.sepBefore = true
		pos++
		if pos >= end {
			return n, pos, truncated(start, end)
		}
	}

	if b[pos] != nodeValueMarker {
		length := int(b[pos])
		pos++
		if pos+length > end {
			return n, pos, truncated(start, end)
		}
		n.name = b[pos : pos+length]
		pos += length
	}

	if pos < end && b[pos] == 0 {
		n.sepAfter = true
		pos++
	}

	if pos < end {
		if b[pos] == nodeValueMarker {
			if pos+5 > end {
				return n, pos, truncated(start, end)
			}
			n.hasValue = true
			n.value = binary.BigEndian.Uint32(b[pos+1:])
			pos += 5
		} else {
			n.sepAfter = true
		}
	}

	return n, pos, nil
}

// resolve reads the VFS span descriptors at offset and the encoding key of
// each span from the content file table
func (d *decoder) resolve(name string, offset int) (FileEntry, error) {
	entry := FileEntry{Name: name}

	if offset >= len(d.vfs) {
		return entry, fmt.Errorf("%w: vfs offset %d of %q outside table of %d bytes", casc.ErrFormat, offset, name, len(d.vfs))
	}

	count := int(d.vfs[offset])
	if count == 0 || count > maxSpanCount {
		return entry, fmt.Errorf("%w: %q has %d spans", casc.ErrFormat, name, count)
	}

	recordSize := 8 + d.cftWidth
	p := offset + 1
	if p+count*recordSize > len(d.vfs) {
		return entry, fmt.Errorf("%w: vfs record of %q truncated", casc.ErrFormat, name)
	}

	entry.Spans = make([]Span, count)
	for i := range entry.Spans {
		rec := d.vfs[p : p+recordSize]
		p += recordSize

		var cftOffset int
		for _, c := range rec[8:] {
			cftOffset = cftOffset<<8 | int(c)
		}
		if cftOffset+d.ekeySize > len(d.cft) {
			return entry, fmt.Errorf("%w: cft offset %d of %q outside table of %d bytes", casc.ErrFormat, cftOffset, name, len(d.cft))
		}

		key, err := casc.EKeyFromBytes(d.cft[cftOffset : cftOffset+d.ekeySize])
		if err != nil {
			return entry, err
		}

		entry.Spans[i] = Span{
			Key:       key,
			RefOffset: binary.BigEndian.Uint32(rec[0:]),
			Size:      binary.BigEndian.Uint32(rec[4:]),
		}
	}

	return entry, nil
}

func appendSeparator(name string) string {
	if name == "" || name[len(name)-1] == Separator {
		return name
	}
	return name + string(Separator)
}

// offsetWidth is the number of bytes needed to address a table of size bytes
func offsetWidth(size int) int {
	switch {
	case size > 0xFFFFFF:
		return 4
	case size > 0xFFFF:
		return 3
	case size > 0xFF:
		return 2
	default:
		return 1
	}
}

func truncated(start, end int) error {
	return fmt.Errorf("%w: path table node at offset %d runs past %d", casc.ErrFormat, start, end)
}
