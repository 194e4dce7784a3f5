// Package layout knows where a local CASC installation keeps its files
package layout

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jchantrell/casc/internal/casc"
)

const (
	buildInfoName = ".build.info"
	indexExt      = ".idx"
	archivePrefix = "data."
)

// Layout resolves the paths of a storage root
type Layout struct {
	root string
}

// New returns the layout of the installation rooted at root
func New(root string) *Layout {
	return &Layout{root: root}
}

// BuildInfoPath returns the path of the build info table
func (l *Layout) BuildInfoPath() string {
	return filepath.Join(l.root, buildInfoName)
}

// DataDir returns the directory holding index tables and archives
func (l *Layout) DataDir() string {
	return filepath.Join(l.root, "Data", "data")
}

// ConfigPath returns the path of a configuration file stored under its hex key
func (l *Layout) ConfigPath(key string) string {
	key = strings.ToLower(key)
	if len(key) < 4 {
		return filepath.Join(l.root, "Data", "config", key)
	}
	return filepath.Join(l.root, "Data", "config", key[0:2], key[2:4], key)
}

// IndexFiles lists the index tables of the data directory. Tables are named
// after their bucket and version; only the newest version of each bucket is
// returned, ordered by bucket.
func (l *Layout) IndexFiles() ([]string, error) {
	entries, err := os.ReadDir(l.DataDir())
	if err != nil {
		return nil, fmt.Errorf("%w: reading data directory: %w", casc.ErrConfig, err)
	}

	type candidate struct {
		version uint64
		path    string
	}
	newest := make(map[uint64]candidate)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), indexExt) {
			continue
		}

		bucket, version, ok := ParseIndexName(name)
		if !ok {
			slog.Debug("Skipping index file with unexpected name", "file", name)
			continue
		}

		if c, seen := newest[bucket]; !seen || version > c.version {
			newest[bucket] = candidate{version: version, path: filepath.Join(l.DataDir(), name)}
		}
	}

	if len(newest) == 0 {
		return nil, fmt.Errorf("%w: no index files in %s", casc.ErrConfig, l.DataDir())
	}

	buckets := make([]uint64, 0, len(newest))
	for b := range newest {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	paths := make([]string, len(buckets))
	for i, b := range buckets {
		paths[i] = newest[b].path
	}
	return paths, nil
}

// ParseIndexName splits an index table name of the form BBVVVVVVVV.idx into
// its bucket and version
func ParseIndexName(name string) (bucket, version uint64, ok bool) {
	stem := strings.TrimSuffix(strings.ToLower(filepath.Base(name)), indexExt)
	if len(stem) != 10 {
		return 0, 0, false
	}

	bucket, err := strconv.ParseUint(stem[:2], 16, 8)
	if err != nil {
		return 0, 0, false
	}
	version, err = strconv.ParseUint(stem[2:], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return bucket, version, true
}

// ArchiveFiles lists the archive data files of the data directory in archive
// number order
func (l *Layout) ArchiveFiles() ([]string, error) {
	entries, err := os.ReadDir(l.DataDir())
	if err != nil {
		return nil, fmt.Errorf("%w: reading data directory: %w", casc.ErrConfig, err)
	}

	type archive struct {
		n    uint32
		path string
	}
	var archives []archive
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), archivePrefix) {
			continue
		}
		n, err := ArchiveNumber(e.Name())
		if err != nil {
			continue
		}
		archives = append(archives, archive{n: n, path: filepath.Join(l.DataDir(), e.Name())})
	}

	if len(archives) == 0 {
		return nil, fmt.Errorf("%w: no archives in %s", casc.ErrConfig, l.DataDir())
	}

	sort.Slice(archives, func(i, j int) bool { return archives[i].n < archives[j].n })

	paths := make([]string, len(archives))
	for i, a := range archives {
		paths[i] = a.path
	}
	return paths, nil
}

// ArchiveNumber returns the numeric suffix of an archive data file name
func ArchiveNumber(path string) (uint32, error) {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	if ext == "" || strings.TrimSuffix(name, ext) != "data" {
		return 0, fmt.Errorf("%w: %q is not an archive name", casc.ErrConfig, name)
	}

	n, err := strconv.ParseUint(ext[1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: archive %q has no numeric suffix", casc.ErrConfig, name)
	}
	return uint32(n), nil
}

// OutputPath maps a storage path onto a file below dir. Parent references
// cannot climb above dir.
func OutputPath(dir, name string) string {
	name = path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	return filepath.Join(dir, filepath.FromSlash(name[1:]))
}
