// Package buildinfo reads the build info table at the root of an installation
// and the build configuration it points to.
package buildinfo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jchantrell/casc/internal/casc"
	"github.com/jchantrell/casc/internal/utils"
)

// Record is one row of the build info table keyed by column name
type Record map[string]string

// Info is the parsed build info table
type Info struct {
	Columns []string
	Records []Record
}

// Load reads the build info table at path
func Load(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", casc.ErrConfig, err)
	}
	defer f.Close()

	info, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return info, nil
}

// Parse reads a '|' separated table whose header cells carry a type suffix,
// for example "Build Key!HEX:16"
func Parse(r io.Reader) (*Info, error) {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty build info", casc.ErrConfig)
		}
		return nil, fmt.Errorf("%w: %v", casc.ErrConfig, err)
	}

	info := &Info{Columns: make([]string, len(header))}
	for i, h := range header {
		name, _, _ := strings.Cut(h, "!")
		info.Columns[i] = strings.TrimSpace(name)
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", casc.ErrConfig, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) != len(info.Columns) {
			return nil, fmt.Errorf("%w: build info row has %d fields, header has %d", casc.ErrConfig, len(row), len(info.Columns))
		}

		rec := make(Record, len(row))
		for i, v := range row {
			rec[info.Columns[i]] = strings.TrimSpace(v)
		}
		info.Records = append(info.Records, rec)
	}

	return info, nil
}

// Active returns the active record. When several records are active the
// one with the highest version wins; a table without an Active column yields
// its only record.
func (i *Info) Active() (Record, error) {
	var active Record
	for _, r := range i.Records {
		if r["Active"] != "1" {
			continue
		}
		if active == nil {
			active = r
			continue
		}
		if cmp, err := utils.CompareVersions(r["Version"], active["Version"]); err == nil && cmp > 0 {
			active = r
		}
	}
	if active != nil {
		return active, nil
	}

	if len(i.Records) == 1 {
		if _, ok := i.Records[0]["Active"]; !ok {
			return i.Records[0], nil
		}
	}
	return nil, fmt.Errorf("%w: no active build", casc.ErrConfig)
}

// BuildKey returns the hex key of the build configuration
func (r Record) BuildKey() (string, error) {
	key := strings.ToLower(r["Build Key"])
	if key == "" {
		return "", fmt.Errorf("%w: build info record without build key", casc.ErrConfig)
	}
	return key, nil
}

// Version returns the parsed version column
func (r Record) Version() (*utils.VersionInfo, error) {
	return utils.ParseVersionInfo(r["Version"])
}
