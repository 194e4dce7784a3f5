// Package storage opens a local CASC installation and serves its files as
// seekable streams.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jchantrell/casc/internal/blte"
	"github.com/jchantrell/casc/internal/buildinfo"
	"github.com/jchantrell/casc/internal/casc"
	"github.com/jchantrell/casc/internal/keyindex"
	"github.com/jchantrell/casc/internal/layout"
	"github.com/jchantrell/casc/internal/tvfs"
)

// Options configures how a storage is opened
type Options struct {
	// VerifyChecksums checks every frame against the MD5 of its container header
	VerifyChecksums bool

	// RootHandler decodes root files that are not TVFS
	RootHandler RootHandler
}

// DefaultOptions returns the default storage options
func DefaultOptions() Options {
	return Options{
		VerifyChecksums: false,
	}
}

// Build describes the active build of an installation
type Build struct {
	Branch  string
	Version string
	// Number is the build number, the last component of Version; 0 when
	// the version does not parse
	Number int
	Key    string
	Name   string
}

// FileInfo describes a file of the root namespace
type FileInfo struct {
	Name string
	// Size is the plaintext size recorded by the root
	Size int64
	// StoredSize is the sum of the archive record sizes, -1 when not local
	StoredSize int64
	Local      bool
	Spans      int
}

type file struct {
	entry      tvfs.FileEntry
	storedSize int64
	local      bool
}

// Storage is an opened installation. All state is built once by Open and
// read-only afterwards, so a Storage may be shared between goroutines.
type Storage struct {
	opts     Options
	index    *keyindex.Index
	archives []*os.File
	files    map[string]*file
	names    []string
	root     RootFormat
	build    Build
}

// Open opens the installation rooted at dir: the active build of its build
// info selects the build config, whose vfs-root names the root file
func Open(dir string, opts Options) (*Storage, error) {
	l := layout.New(dir)

	info, err := buildinfo.Load(l.BuildInfoPath())
	if err != nil {
		return nil, fmt.Errorf("loading build info: %w", err)
	}
	active, err := info.Active()
	if err != nil {
		return nil, err
	}
	buildKey, err := active.BuildKey()
	if err != nil {
		return nil, err
	}

	cfg, err := buildinfo.LoadConfig(l.ConfigPath(buildKey))
	if err != nil {
		return nil, fmt.Errorf("loading build config: %w", err)
	}
	rootKey, err := cfg.RootKey()
	if err != nil {
		return nil, err
	}

	indexPaths, err := l.IndexFiles()
	if err != nil {
		return nil, err
	}
	archivePaths, err := l.ArchiveFiles()
	if err != nil {
		return nil, err
	}

	s, err := OpenFiles(indexPaths, archivePaths, rootKey, opts)
	if err != nil {
		return nil, err
	}

	s.build = Build{
		Branch:  active["Branch"],
		Version: active["Version"],
		Key:     buildKey,
		Name:    cfg.Get("build-name"),
	}
	if v, err := active.Version(); err == nil {
		s.build.Number = v.Build
	} else {
		slog.Debug("Build version not parsed", "version", active["Version"], "error", err)
	}

	return s, nil
}

// OpenFiles opens a storage from explicit index tables and archive data files.
// Archives are placed by the numeric suffix of their names and must be
// numbered without gaps from zero.
func OpenFiles(indexPaths, archivePaths []string, rootKey casc.EKey, opts Options) (*Storage, error) {
	s := &Storage{
		opts:  opts,
		index: keyindex.New(),
	}

	for _, p := range indexPaths {
		if err := s.index.LoadFile(p); err != nil {
			return nil, err
		}
	}

	if err := s.openArchives(archivePaths); err != nil {
		return nil, err
	}

	root, err := s.OpenEncodingKey(rootKey)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening root %s: %w", rootKey, err)
	}

	entries, format, err := decodeRoot(root, root.Size(), opts.RootHandler)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("decoding %s root: %w", format, err)
	}
	s.root = format
	s.resolve(entries)

	slog.Debug("Storage opened",
		"index_entries", s.index.Len(),
		"archives", len(s.archives),
		"files", len(s.names),
		"root", format.String(),
	)

	return s, nil
}

func (s *Storage) openArchives(paths []string) error {
	byNumber := make(map[uint32]string, len(paths))
	for _, p := range paths {
		n, err := layout.ArchiveNumber(p)
		if err != nil {
			return err
		}
		if prev, dup := byNumber[n]; dup {
			return fmt.Errorf("%w: archive %d given twice (%s, %s)", casc.ErrConfig, n, prev, p)
		}
		byNumber[n] = p
	}

	s.archives = make([]*os.File, len(paths))
	for n := range s.archives {
		p, ok := byNumber[uint32(n)]
		if !ok {
			s.Close()
			return fmt.Errorf("%w: archive data.%03d missing from %d archives", casc.ErrConfig, n, len(paths))
		}

		f, err := os.Open(p)
		if err != nil {
			s.Close()
			return fmt.Errorf("%w: opening archive: %w", casc.ErrConfig, err)
		}
		s.archives[n] = f
	}

	return nil
}

// resolve records the stored size and locality of every root entry
func (s *Storage) resolve(entries map[string]tvfs.FileEntry) {
	s.files = make(map[string]*file, len(entries))
	s.names = make([]string, 0, len(entries))

	nonLocal := 0
	for name, e := range entries {
		f := &file{entry: e, local: true}
		for _, span := range e.Spans {
			loc, ok := s.index.Lookup(span.Key)
			if !ok {
				f.local = false
				break
			}
			f.storedSize += int64(loc.Size)
		}
		if !f.local {
			f.storedSize = -1
			nonLocal++
		}

		s.files[name] = f
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	if nonLocal > 0 {
		slog.Info("Root lists files without local data", "non_local", nonLocal, "files", len(s.names))
	}
}

// Build returns the active build. It is empty for storages opened with OpenFiles.
func (s *Storage) Build() Build {
	return s.build
}

// RootFormat returns the format of the root file
func (s *Storage) RootFormat() RootFormat {
	return s.root
}

// ArchiveCount returns the number of archive data files
func (s *Storage) ArchiveCount() int {
	return len(s.archives)
}

// IndexEntries returns the number of encoding keys with a local location
func (s *Storage) IndexEntries() int {
	return s.index.Len()
}

// Files lists every file of the root ordered by name
func (s *Storage) Files() []FileInfo {
	infos := make([]FileInfo, len(s.names))
	for i, name := range s.names {
		infos[i] = s.files[name].info(name)
	}
	return infos
}

// Stat describes a single file
func (s *Storage) Stat(name string) (FileInfo, error) {
	name = normalize(name)
	f, ok := s.files[name]
	if !ok {
		return FileInfo{}, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return f.info(name), nil
}

// SpanInfo describes one span of a file and where its data is stored
type SpanInfo struct {
	Key      casc.EKey
	Size     uint32
	Local    bool
	Location casc.Location
}

// Spans lists the spans of a file in order
func (s *Storage) Spans(name string) ([]SpanInfo, error) {
	name = normalize(name)
	f, ok := s.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}

	spans := make([]SpanInfo, len(f.entry.Spans))
	for i, span := range f.entry.Spans {
		loc, ok := s.index.Lookup(span.Key)
		spans[i] = SpanInfo{Key: span.Key, Size: span.Size, Local: ok, Location: loc}
	}
	return spans, nil
}

func (f *file) info(name string) FileInfo {
	return FileInfo{
		Name:       name,
		Size:       int64(f.entry.ContentSize()),
		StoredSize: f.storedSize,
		Local:      f.local,
		Spans:      len(f.entry.Spans),
	}
}

// OpenFile opens a file of the root by path. Both '\' and '/' separate path
// components. A path absent from the root yields fs.ErrNotExist; a file whose
// data is not in the local archives yields casc.ErrNotLocal.
func (s *Storage) OpenFile(name string) (*blte.Stream, error) {
	name = normalize(name)
	f, ok := s.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	keys := make([]casc.EKey, len(f.entry.Spans))
	for i, span := range f.entry.Spans {
		keys[i] = span.Key
	}

	st, err := s.openKeys(keys)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return st, nil
}

// OpenEncodingKey opens the content stored under a single encoding key
func (s *Storage) OpenEncodingKey(key casc.EKey) (*blte.Stream, error) {
	return s.openKeys([]casc.EKey{key})
}

func (s *Storage) openKeys(keys []casc.EKey) (*blte.Stream, error) {
	spans := make([]*blte.Span, 0, len(keys))

	var next uint64
	for _, key := range keys {
		loc, ok := s.index.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("%w: encoding key %s", casc.ErrNotLocal, key)
		}
		if int(loc.Archive) >= len(s.archives) || s.archives[loc.Archive] == nil {
			return nil, fmt.Errorf("%w: %s refers to archive %d of %d", casc.ErrConfig, key, loc.Archive, len(s.archives))
		}

		span, err := blte.OpenSpan(s.archives[loc.Archive], loc, next, s.opts.VerifyChecksums)
		if err != nil {
			if errors.Is(err, casc.ErrFormat) {
				// a located key whose container is malformed means a corrupt archive
				return nil, fmt.Errorf("%w: %w", casc.ErrIO, err)
			}
			return nil, err
		}

		spans = append(spans, span)
		next = span.VirtualEnd
	}

	return blte.NewStream(spans)
}

// Close closes the archive data files. Streams opened from the storage fail
// once it is closed.
func (s *Storage) Close() error {
	var errs []error
	for _, f := range s.archives {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	s.archives = nil
	return errors.Join(errs...)
}

func normalize(name string) string {
	return strings.ReplaceAll(name, "/", `\`)
}
