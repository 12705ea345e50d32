// file: pkg/vdisk/defrag.go

package vdisk

import (
	"fmt"
)

// DefragReport summarises a compaction
type DefragReport struct {
	NoOp           bool `json:"no_op"`
	FilesRelocated int  `json:"files_relocated"`
	BlocksMoved    int  `json:"blocks_moved"`
}

// compact packs every file into one run starting at block 0, in ascending
// ID order. Position i of a file's old block list maps to position i of its
// new run, so linked chains keep their order and an index block keeps
// addressing the same logical data. Everything past the last run is freed,
// including blocks owned by files that no longer exist.
func compact(bt *BlockTable, reg *FileRegistry) (DefragReport, error) {
	if reg.Len() == 0 {
		return DefragReport{NoOp: true}, nil
	}

	files := reg.All()
	plan := make([][]int, len(files))
	next := NewBlockTable(bt.Len())
	cursor := 0

	for i, f := range files {
		if cursor+f.BlocksCount() > next.Len() {
			return DefragReport{}, fmt.Errorf("compact file %d: %d blocks past end of disk: %w",
				f.ID, cursor+f.BlocksCount()-next.Len(), ErrInconsistent)
		}

		newBlocks := make([]int, f.BlocksCount())
		for pos := range newBlocks {
			newBlocks[pos] = cursor + pos
		}
		if err := next.assign(newBlocks, f.ID); err != nil {
			return DefragReport{}, fmt.Errorf("compact file %d: %w", f.ID, err)
		}
		plan[i] = newBlocks
		cursor += len(newBlocks)
	}

	// Apply the plan only once it is known to fit
	var report DefragReport
	for i, f := range files {
		moved := 0
		for pos, block := range f.Blocks {
			if block != plan[i][pos] {
				moved++
			}
		}
		if moved > 0 {
			report.FilesRelocated++
			report.BlocksMoved += moved
		}
		f.Blocks = plan[i]
	}
	bt.owners = next.owners

	return report, nil
}
