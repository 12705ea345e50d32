// file: pkg/vdisk/housekeeping.go

package vdisk

import (
	"strings"
)

// DefaultJunkExtensions lists the extensions flagged as junk
var DefaultJunkExtensions = []string{".tmp", ".log", ".bak", ".cache"}

// JunkSet is a set of lower-cased extensions, each with a leading dot
type JunkSet map[string]struct{}

// NewJunkSet builds a set from extensions such as ".tmp" or "TMP"
func NewJunkSet(extensions []string) JunkSet {
	set := make(JunkSet, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// IsJunk reports whether a filename carries a junk extension
func (s JunkSet) IsJunk(filename string) bool {
	ext := extension(filename)
	if ext == "" {
		return false
	}
	_, ok := s[ext]
	return ok
}

// Duplicate pairs a file with the earlier file whose name it repeats
type Duplicate struct {
	File      FileView `json:"file"`
	Canonical FileView `json:"canonical"`
}

// HousekeepingReport lists duplicate and junk files
type HousekeepingReport struct {
	Duplicates []Duplicate `json:"duplicates"`
	Junk       []FileView  `json:"junk"`
}

// Scan walks files in ascending ID order. The first file with a given name
// is canonical and every later one is a duplicate of it. Junk status is
// tested independently and may overlap with duplicate status.
func Scan(files []*File, junk JunkSet) HousekeepingReport {
	report := HousekeepingReport{
		Duplicates: []Duplicate{},
		Junk:       []FileView{},
	}
	canonical := make(map[string]*File)

	for _, f := range files {
		if first, seen := canonical[f.Filename]; seen {
			report.Duplicates = append(report.Duplicates, Duplicate{
				File:      f.View(),
				Canonical: first.View(),
			})
		} else {
			canonical[f.Filename] = f
		}

		if junk.IsJunk(f.Filename) {
			report.Junk = append(report.Junk, f.View())
		}
	}
	return report
}
