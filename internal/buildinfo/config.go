package buildinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jchantrell/casc/internal/casc"
)

// Config is a build configuration: whitespace separated values per key
type Config map[string][]string

// LoadConfig reads a build configuration file
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", casc.ErrConfig, err)
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig reads "key = value [value...]" lines. Blank lines and lines
// starting with '#' are ignored.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := make(Config)

	s := bufio.NewScanner(r)
	for line := 1; s.Scan(); line++ {
		text := strings.TrimSpace(s.Text())
		if text == "" || text[0] == '#' {
			continue
		}

		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing '='", casc.ErrConfig, line)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%w: line %d: empty key", casc.ErrConfig, line)
		}
		cfg[key] = strings.Fields(value)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", casc.ErrIO, err)
	}

	return cfg, nil
}

// Get returns the first value of key
func (c Config) Get(key string) string {
	if v := c[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// RootKey returns the encoding key of the TVFS root, the second value of
// vfs-root
func (c Config) RootKey() (casc.EKey, error) {
	v := c["vfs-root"]
	if len(v) < 2 {
		return casc.EKey{}, fmt.Errorf("%w: build config has no vfs-root encoding key", casc.ErrConfig)
	}
	return casc.ParseEKey(v[1])
}
