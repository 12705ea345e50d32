// file: pkg/vdisk/optimize.go

package vdisk

import (
	"fmt"
)

// DuplicatePair is a duplicate found during optimization. File1 is the
// earlier upload.
type DuplicatePair struct {
	File1      string  `json:"file1"`
	File2      string  `json:"file2"`
	File1ID    FileID  `json:"file1_id"`
	File2ID    FileID  `json:"file2_id"`
	Similarity float64 `json:"similarity"`
}

// OptimizeReport is the outcome of an optimization pass
type OptimizeReport struct {
	Duplicates          []DuplicatePair `json:"duplicates"`
	Junk                []FileView      `json:"junk"`
	BeforeFragmentation float64         `json:"before_fragmentation"`
	AfterFragmentation  float64         `json:"after_fragmentation"`
	OrphanBlocks        int             `json:"orphan_blocks"`
	Defrag              DefragReport    `json:"defrag"`
}

// exactNameSimilarity is the score of two files sharing a filename
const exactNameSimilarity = 100.0

// optimize runs the staged pipeline on s in place. The caller passes a
// private copy and discards it on error.
func optimize(s *state, junk JunkSet) (OptimizeReport, error) {
	var report OptimizeReport

	// Stage 1: analyze disk structure
	report.BeforeFragmentation = Fragmentation(s.table)
	report.OrphanBlocks = len(orphanBlocks(s.table, s.files))

	// Stage 2: scan for duplicates
	scan := Scan(s.files.All(), junk)
	report.Junk = scan.Junk
	report.Duplicates = make([]DuplicatePair, 0, len(scan.Duplicates))
	for _, dup := range scan.Duplicates {
		report.Duplicates = append(report.Duplicates, DuplicatePair{
			File1:      dup.Canonical.Filename,
			File2:      dup.File.Filename,
			File1ID:    dup.Canonical.ID,
			File2ID:    dup.File.ID,
			Similarity: exactNameSimilarity,
		})
	}

	// Stage 3: defragment blocks
	defrag, err := compact(s.table, s.files)
	if err != nil {
		return OptimizeReport{}, fmt.Errorf("optimize: defragment: %w", err)
	}
	report.Defrag = defrag

	// Stage 4: remove orphaned blocks. Compaction rebuilt the table from the
	// registry and already dropped them, so this only acts on an empty registry.
	reclaimOrphans(s.table, s.files)

	// Stage 5: finalize
	report.AfterFragmentation = Fragmentation(s.table)
	if err := checkState(s); err != nil {
		return OptimizeReport{}, fmt.Errorf("optimize: %w", err)
	}
	return report, nil
}
