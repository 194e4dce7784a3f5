package testutil

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jchantrell/casc/internal/casc"
)

// StorageFile describes a file of a synthetic storage. Each span is encoded as
// its own BLTE container; Missing spans are referenced by the root but never
// written to an archive.
type StorageFile struct {
	Path    string
	Spans   [][]byte
	Frame   int
	Missing []bool
}

// Storage is the result of WriteStorage
type Storage struct {
	Root         string
	DataDir      string
	RootKey      casc.EKey
	BuildKey     string
	IndexPaths   []string
	ArchivePaths []string
	Keys         map[string][]casc.EKey
}

// StorageOptions tunes the layout written by WriteStorage
type StorageOptions struct {
	Archives  int
	RootFrame int
}

// WriteStorage lays out a complete local storage under dir: .build.info,
// build config, index tables (with a stale bucket version) and archives.
func WriteStorage(t testing.TB, dir string, files []StorageFile, opts StorageOptions) *Storage {
	t.Helper()

	if opts.Archives < 1 {
		opts.Archives = 1
	}
	if opts.RootFrame < 1 {
		opts.RootFrame = 64
	}

	archives := make([]*Archive, opts.Archives)
	for i := range archives {
		archives[i] = &Archive{Number: uint32(i)}
	}

	s := &Storage{
		Root:    dir,
		DataDir: filepath.Join(dir, "Data", "data"),
		Keys:    make(map[string][]casc.EKey),
	}

	var entries []IndexEntry
	var tvfsFiles []TVFSFile
	n := 0
	for _, f := range files {
		tf := TVFSFile{Path: f.Path}
		for i, span := range f.Spans {
			key := Key(fmt.Sprintf("%s#%d", f.Path, i))
			s.Keys[f.Path] = append(s.Keys[f.Path], key)
			tf.EKeys = append(tf.EKeys, key[:])
			tf.Sizes = append(tf.Sizes, uint32(len(span)))

			if i < len(f.Missing) && f.Missing[i] {
				continue
			}

			frame := f.Frame
			if frame < 1 {
				frame = 1 << 10
			}
			a := archives[n%len(archives)]
			n++
			entries = append(entries, a.Add(key, BuildBLTE(Chunk(span, frame))))
		}
		tvfsFiles = append(tvfsFiles, tf)
	}

	rootData := BuildTVFS(tvfsFiles, casc.EKeySize)
	s.RootKey = Key("vfs-root")
	entries = append(entries, archives[0].Add(s.RootKey, BuildBLTE(Chunk(rootData, opts.RootFrame))))

	mkdir(t, s.DataDir)

	for _, a := range archives {
		p := filepath.Join(s.DataDir, fmt.Sprintf("data.%03d", a.Number))
		write(t, p, a.Bytes())
		s.ArchivePaths = append(s.ArchivePaths, p)
	}

	// two buckets split by key, plus a stale bucket-00 version that must be ignored
	var buckets [2][]IndexEntry
	for _, e := range entries {
		b := e.Key[0] % 2
		buckets[b] = append(buckets[b], e)
	}
	for b, bucketEntries := range buckets {
		p := filepath.Join(s.DataDir, fmt.Sprintf("%02x%08x.idx", b, 2))
		write(t, p, BuildIndexTable(DefaultIndexHeader(), bucketEntries))
		s.IndexPaths = append(s.IndexPaths, p)
	}
	stale := DefaultIndexHeader()
	stale.EKeyLength = 16
	write(t, filepath.Join(s.DataDir, fmt.Sprintf("%02x%08x.idx", 0, 1)), BuildIndexTable(stale, nil))

	buildKey := Key("build-config")
	s.BuildKey = hex.EncodeToString(buildKey[:]) + strings.Repeat("0", 32-2*casc.EKeySize)
	rootKeyHex := hex.EncodeToString(s.RootKey[:]) + strings.Repeat("0", 32-2*casc.EKeySize)

	cfgDir := filepath.Join(dir, "Data", "config", s.BuildKey[0:2], s.BuildKey[2:4])
	mkdir(t, cfgDir)
	write(t, filepath.Join(cfgDir, s.BuildKey), []byte(strings.Join([]string{
		"# Build Configuration",
		"",
		"root = " + strings.Repeat("ab", 16),
		"vfs-root = " + strings.Repeat("cd", 16) + " " + rootKeyHex,
		"build-name = test-build",
		"",
	}, "\n")))

	write(t, filepath.Join(dir, ".build.info"), []byte(strings.Join([]string{
		"Branch!STRING:0|Active!DEC:1|Build Key!HEX:16|CDN Key!HEX:16|Version!STRING:0|Product!STRING:0",
		"eu|0|" + strings.Repeat("ee", 16) + "|" + strings.Repeat("00", 16) + "|0.9.0.1|test",
		"us|1|" + s.BuildKey + "|" + strings.Repeat("00", 16) + "|1.2.3.4|test",
		"",
	}, "\n")))

	return s
}

func mkdir(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func write(t testing.TB, p string, data []byte) {
	t.Helper()
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}
