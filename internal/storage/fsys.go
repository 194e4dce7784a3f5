package storage

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jchantrell/casc/internal/blte"
)

// storageFS exposes the root namespace as an fs.FS with '/' separated names
type storageFS struct {
	s     *Storage
	files []fsEntry
}

type fsEntry struct {
	path string
	name string
}

// FS returns a read-only file system view of the storage. Names that are not
// valid fs paths are left out.
func (s *Storage) FS() fs.FS {
	fsys := &storageFS{s: s}
	for _, name := range s.names {
		p := strings.ReplaceAll(name, `\`, "/")
		if !fs.ValidPath(p) || p == "." {
			slog.Debug("Skipping file not representable as fs path", "name", name)
			continue
		}
		fsys.files = append(fsys.files, fsEntry{path: p, name: name})
	}
	sort.Slice(fsys.files, func(i, j int) bool { return fsys.files[i].path < fsys.files[j].path })
	return fsys
}

func (sf *storageFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	files := sf.files

	if name == "." {
		return &storageDir{fs: sf, prefix: "", offset: 0}, nil
	}

	idx := sort.Search(len(files), func(i int) bool {
		return files[i].path >= name
	})

	if idx < len(files) && files[idx].path == name {
		return &storageFile{fs: sf, entry: &files[idx]}, nil
	}

	dirName := name + "/"
	idx += sort.Search(len(files)-idx, func(i int) bool {
		return files[idx+i].path >= dirName
	})

	if idx < len(files) && strings.HasPrefix(files[idx].path, dirName) {
		return &storageDir{fs: sf, prefix: dirName, offset: idx}, nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// storageFile implements fs.File, io.Seeker and io.ReaderAt. The stream is
// opened on first use.
type storageFile struct {
	fs     *storageFS
	entry  *fsEntry
	stream *blte.Stream
}

func (f *storageFile) init() error {
	if f.stream != nil {
		return nil
	}

	st, err := f.fs.s.OpenFile(f.entry.name)
	if err != nil {
		return &fs.PathError{Op: "read", Path: f.entry.path, Err: err}
	}
	f.stream = st
	return nil
}

func (f *storageFile) Read(p []byte) (int, error) {
	if err := f.init(); err != nil {
		return 0, err
	}
	return f.stream.Read(p)
}

func (f *storageFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.init(); err != nil {
		return 0, err
	}
	return f.stream.ReadAt(p, off)
}

func (f *storageFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.init(); err != nil {
		return 0, err
	}
	return f.stream.Seek(offset, whence)
}

func (f *storageFile) Close() error {
	if f.stream == nil {
		return nil
	}
	return f.stream.Close()
}

func (f *storageFile) Stat() (fs.FileInfo, error) {
	return &storageFileInfo{f}, nil
}

type storageFileInfo struct {
	*storageFile
}

func (fi storageFileInfo) Name() string {
	return path.Base(fi.entry.path)
}

func (fi storageFileInfo) Size() int64 {
	return int64(fi.fs.s.files[fi.entry.name].entry.ContentSize())
}

func (fi storageFileInfo) Mode() fs.FileMode {
	return 0o444
}

func (fi storageFileInfo) ModTime() time.Time {
	return time.Unix(0, 0)
}

func (fi storageFileInfo) IsDir() bool {
	return false
}

// Sys returns the storage FileInfo of the file
func (fi storageFileInfo) Sys() any {
	info, _ := fi.fs.s.Stat(fi.entry.name)
	return info
}

// storageDir implements fs.ReadDirFile for directories
type storageDir struct {
	fs     *storageFS
	prefix string
	offset int
}

func (d *storageDir) Read(p []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.prefix, Err: fmt.Errorf("is a directory")}
}

func (d *storageDir) Close() error {
	return nil
}

func (d *storageDir) Stat() (fs.FileInfo, error) {
	return &storageDirInfo{d}, nil
}

func (d *storageDir) ReadDir(n int) ([]fs.DirEntry, error) {
	files := d.fs.files
	prefixLen := len(d.prefix)

	dirents := []fs.DirEntry{}

	for d.offset < len(files) {
		fe := &files[d.offset]
		if !strings.HasPrefix(fe.path, d.prefix) {
			break
		}

		slashIdx := strings.Index(fe.path[prefixLen:], "/")
		if slashIdx != -1 {
			dir := fe.path[:prefixLen+slashIdx]
			dirents = append(dirents, &storageDirEnt{fs: d.fs, path: dir})
			d.offset += sort.Search(len(files)-d.offset, func(i int) bool {
				return files[d.offset+i].path >= dir+"/\xff"
			})
		} else {
			dirents = append(dirents, &storageDirEnt{
				fs:   d.fs,
				path: fe.path,
				file: &storageFile{fs: d.fs, entry: fe},
			})
			d.offset++
		}

		if n > 0 && len(dirents) >= n {
			return dirents, nil
		}
	}

	if n > 0 && len(dirents) == 0 {
		return dirents, io.EOF
	}

	return dirents, nil
}

type storageDirInfo struct {
	*storageDir
}

func (di storageDirInfo) Name() string {
	if di.prefix == "" {
		return "."
	}
	return path.Base(di.prefix)
}

func (di storageDirInfo) Size() int64 {
	return 0
}

func (di storageDirInfo) Mode() fs.FileMode {
	return 0o555 | fs.ModeDir
}

func (di storageDirInfo) ModTime() time.Time {
	return time.Unix(0, 0)
}

func (di storageDirInfo) IsDir() bool {
	return true
}

func (di storageDirInfo) Sys() any {
	return nil
}

// storageDirEnt implements fs.DirEntry
type storageDirEnt struct {
	fs   *storageFS
	path string
	file *storageFile
}

func (de *storageDirEnt) Name() string {
	return path.Base(de.path)
}

func (de *storageDirEnt) IsDir() bool {
	return de.file == nil
}

func (de *storageDirEnt) Type() fs.FileMode {
	if de.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (de *storageDirEnt) Info() (fs.FileInfo, error) {
	if de.IsDir() {
		return &storageDirInfo{&storageDir{fs: de.fs, prefix: de.path, offset: -1}}, nil
	}
	return &storageFileInfo{de.file}, nil
}
