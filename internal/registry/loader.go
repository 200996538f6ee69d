// Package registry discovers file data sources in a directory.
package registry

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zmapd/internal/common/fsutil"
	"zmapd/pkg/types"
)

// Scanner finds annotation and alignment files by extension.
type Scanner struct {
	// Exts maps a lower case extension to the format recorded on the source.
	Exts map[string]string
}

// NewScanner returns a scanner for GFF, SAM, BAM and CRAM files.
func NewScanner() *Scanner {
	return &Scanner{Exts: map[string]string{
		".gff":  "gff",
		".gff3": "gff",
		".gff2": "gff",
		".sam":  "sam",
		".bam":  "bam",
		".cram": "cram",
	}}
}

// Scan lists dir (not recursively) and returns one file source per
// recognised file, sorted by name. The source name is the file name without
// its extension; a leading '~' in dir is expanded.
func (s *Scanner) Scan(dir string) ([]types.Source, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []types.Source
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		format, ok := s.Exts[ext]
		if !ok {
			continue
		}
		p := filepath.Join(abs, name)
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
		out = append(out, types.Source{
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			URL:    u.String(),
			Format: format,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadDir scans dir with the default scanner.
func LoadDir(dir string) ([]types.Source, error) {
	return NewScanner().Scan(dir)
}

// Merge appends discovered sources whose name is not configured already.
func Merge(configured, discovered []types.Source) []types.Source {
	out := append([]types.Source(nil), configured...)
	seen := map[string]bool{}
	for _, s := range configured {
		seen[s.Name] = true
	}
	for _, s := range discovered {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, s)
	}
	return out
}
