package testutil

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"
)

// TVFSFile is a file entry of a synthetic TVFS root. Paths use '\' separators.
type TVFSFile struct {
	Path  string
	EKeys [][]byte
	Sizes []uint32
}

type tvfsNode struct {
	name     string
	children map[string]*tvfsNode
	file     *TVFSFile
}

// BuildTVFS encodes a TVFS root with the given encoding key size
func BuildTVFS(files []TVFSFile, ekeySize int) []byte {
	// content file table, one record per distinct key
	var cft bytes.Buffer
	cftOffsets := make(map[string]int)
	for _, f := range files {
		for i, k := range f.EKeys {
			if _, ok := cftOffsets[string(k)]; ok {
				continue
			}
			cftOffsets[string(k)] = cft.Len()
			key := make([]byte, ekeySize)
			copy(key, k)
			cft.Write(key)
			var size uint32
			if i < len(f.Sizes) {
				size = f.Sizes[i]
			}
			_ = binary.Write(&cft, binary.BigEndian, size)
		}
	}
	offsetWidth := CFTOffsetWidth(cft.Len())

	// vfs table, one record per file
	var vfs bytes.Buffer
	vfsOffsets := make(map[string]int)
	for _, f := range files {
		vfsOffsets[f.Path] = vfs.Len()
		vfs.WriteByte(byte(len(f.EKeys)))
		for i, k := range f.EKeys {
			_ = binary.Write(&vfs, binary.BigEndian, uint32(0))
			var size uint32
			if i < len(f.Sizes) {
				size = f.Sizes[i]
			}
			_ = binary.Write(&vfs, binary.BigEndian, size)
			off := cftOffsets[string(k)]
			for b := offsetWidth - 1; b >= 0; b-- {
				vfs.WriteByte(byte(off >> (8 * b)))
			}
		}
	}

	root := &tvfsNode{children: map[string]*tvfsNode{}}
	for i := range files {
		parts := strings.Split(files[i].Path, `\`)
		n := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := n.children[part]
			if !ok {
				child = &tvfsNode{name: part, children: map[string]*tvfsNode{}}
				n.children[part] = child
			}
			n = child
		}
		leaf := parts[len(parts)-1]
		n.children[leaf] = &tvfsNode{name: leaf, file: &files[i]}
	}

	path := encodeChildren(root, false, vfsOffsets)

	const headerSize = 38
	var buf bytes.Buffer
	buf.WriteString("TVFS")
	buf.WriteByte(1)
	buf.WriteByte(headerSize)
	buf.WriteByte(byte(ekeySize))
	buf.WriteByte(byte(ekeySize))
	be32 := func(v int) { _ = binary.Write(&buf, binary.BigEndian, uint32(v)) }
	be32(0) // flags
	be32(headerSize)
	be32(len(path))
	be32(headerSize + len(path))
	be32(vfs.Len())
	be32(headerSize + len(path) + vfs.Len())
	be32(cft.Len())
	_ = binary.Write(&buf, binary.BigEndian, uint16(8))

	buf.Write(path)
	buf.Write(vfs.Bytes())
	buf.Write(cft.Bytes())
	return buf.Bytes()
}

func encodeChildren(n *tvfsNode, nested bool, vfsOffsets map[string]int) []byte {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []byte
	for _, name := range names {
		child := n.children[name]
		if nested {
			out = append(out, 0x00)
		}
		out = append(out, byte(len(name)))
		out = append(out, name...)
		out = append(out, 0xFF)

		if child.file != nil {
			out = binary.BigEndian.AppendUint32(out, uint32(vfsOffsets[child.file.Path]))
			continue
		}

		body := encodeChildren(child, true, vfsOffsets)
		out = binary.BigEndian.AppendUint32(out, 0x80000000|uint32(len(body)+4))
		out = append(out, body...)
	}
	return out
}

// CFTOffsetWidth mirrors the byte width chosen for content file table offsets
func CFTOffsetWidth(tableSize int) int {
	switch {
	case tableSize > 0xFFFFFF:
		return 4
	case tableSize > 0xFFFF:
		return 3
	case tableSize > 0xFF:
		return 2
	default:
		return 1
	}
}
