// file: pkg/vdisk/queries.go

package vdisk

import (
	"fmt"
)

// DiskStats summarises the state of the disk
type DiskStats struct {
	Geometry       Geometry `json:"geometry"`
	Files          int      `json:"files"`
	UsedBlocks     int      `json:"used_blocks"`
	FreeBlocks     int      `json:"free_blocks"`
	OrphanBlocks   int      `json:"orphan_blocks"`
	FreeRuns       int      `json:"free_runs"`
	LargestFreeRun int      `json:"largest_free_run"`
	Fragmentation  float64  `json:"fragmentation"`
}

// read runs fn against the live state under the read lock
func (e *Engine) read(fn func(s *state)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.st)
}

// ListFiles returns every file in ascending ID order
func (e *Engine) ListFiles() []FileView {
	var views []FileView
	e.read(func(s *state) {
		views = make([]FileView, 0, s.files.Len())
		for _, f := range s.files.All() {
			views = append(views, f.View())
		}
	})
	return views
}

// ListBlocks returns one entry per block, ordered by block index
func (e *Engine) ListBlocks() []BlockView {
	var views []BlockView
	e.read(func(s *state) {
		views = blockViews(s.table, s.files)
	})
	return views
}

// File returns the full allocation record of one file
func (e *Engine) File(id FileID) (FileDetail, error) {
	var (
		detail FileDetail
		found  bool
	)
	e.read(func(s *state) {
		if f, ok := s.files.Get(id); ok {
			detail, found = f.Detail(), true
		}
	})
	if !found {
		return FileDetail{}, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	return detail, nil
}

// Fragmentation returns the fragmentation percentage of the free space
func (e *Engine) Fragmentation() float64 {
	var frag float64
	e.read(func(s *state) {
		frag = Fragmentation(s.table)
	})
	return frag
}

// FreeRuns returns the free runs of the disk in ascending order
func (e *Engine) FreeRuns() []Run {
	var runs []Run
	e.read(func(s *state) {
		runs = FreeRuns(s.table)
	})
	return runs
}

// Scan reports duplicate and junk files without changing anything
func (e *Engine) Scan() HousekeepingReport {
	var report HousekeepingReport
	e.read(func(s *state) {
		report = Scan(s.files.All(), e.junk)
	})
	return report
}

// Recommendations returns housekeeping suggestions, at most one per file
func (e *Engine) Recommendations() []Recommendation {
	var recs []Recommendation
	e.read(func(s *state) {
		recs = recommend(s.files.All(), e.junk, e.compressThresholdKB)
	})
	return recs
}

// Orphans lists blocks owned by files that no longer exist
func (e *Engine) Orphans() []int {
	var orphans []int
	e.read(func(s *state) {
		orphans = orphanBlocks(s.table, s.files)
	})
	return orphans
}

// Stats returns usage and fragmentation figures for the disk
func (e *Engine) Stats() DiskStats {
	var stats DiskStats
	e.read(func(s *state) {
		runs := FreeRuns(s.table)
		largest := 0
		for _, r := range runs {
			largest = max(largest, r.Length)
		}
		free := s.table.FreeCount()
		stats = DiskStats{
			Geometry:       e.geom,
			Files:          s.files.Len(),
			UsedBlocks:     s.table.Len() - free,
			FreeBlocks:     free,
			OrphanBlocks:   len(orphanBlocks(s.table, s.files)),
			FreeRuns:       len(runs),
			LargestFreeRun: largest,
			Fragmentation:  Fragmentation(s.table),
		}
	})
	return stats
}

// Check verifies that the block table and the registry agree. Orphaned
// blocks are not an error; Optimize reclaims them.
func (e *Engine) Check() error {
	var err error
	e.read(func(s *state) {
		err = checkState(s)
		if err == nil {
			orphans := len(orphanBlocks(s.table, s.files))
			if used := s.files.UsedBlocks(); used+orphans+s.table.FreeCount() != s.table.Len() {
				err = fmt.Errorf("%d used + %d orphaned + %d free blocks on a %d block disk: %w",
					used, orphans, s.table.FreeCount(), s.table.Len(), ErrInconsistent)
			}
		}
	})
	return err
}
