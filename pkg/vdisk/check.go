// file: pkg/vdisk/check.go

package vdisk

import (
	"fmt"
)

// checkState performs a consistency check of the block table against the
// registry. Orphaned blocks are tolerated; they are repaired by Optimize.
func checkState(s *state) error {
	if err := checkFileRecords(s); err != nil {
		return fmt.Errorf("file records check failed: %w", err)
	}
	if err := checkBlockOwnership(s); err != nil {
		return fmt.Errorf("block ownership check failed: %w", err)
	}
	return nil
}

// checkFileRecords validates each record on its own
func checkFileRecords(s *state) error {
	for _, f := range s.files.All() {
		if f.ID >= s.nextID {
			return fmt.Errorf("file %d not below next id %d: %w", f.ID, s.nextID, ErrInconsistent)
		}
		if f.Filename == "" {
			return fmt.Errorf("file %d has no name: %w", f.ID, ErrInconsistent)
		}
		if len(f.Blocks) == 0 {
			return fmt.Errorf("file %d has no blocks: %w", f.ID, ErrInconsistent)
		}
		if f.AllocationType == Indexed && len(f.Blocks) < 2 {
			return fmt.Errorf("indexed file %d has no data blocks: %w", f.ID, ErrInconsistent)
		}
		if f.AllocationType == Contiguous {
			for i := 1; i < len(f.Blocks); i++ {
				if f.Blocks[i] != f.Blocks[i-1]+1 {
					return fmt.Errorf("contiguous file %d breaks its run at block %d: %w",
						f.ID, f.Blocks[i], ErrInconsistent)
				}
			}
		}
	}
	return nil
}

// checkBlockOwnership ensures no block is claimed twice and the table agrees
// with every record
func checkBlockOwnership(s *state) error {
	claimed := make([]bool, s.table.Len())

	for _, f := range s.files.All() {
		for _, block := range f.Blocks {
			if block < 0 || block >= len(claimed) {
				return fmt.Errorf("file %d: invalid block %d: %w", f.ID, block, ErrInconsistent)
			}
			if claimed[block] {
				return fmt.Errorf("block %d allocated multiple times: %w", block, ErrInconsistent)
			}
			claimed[block] = true

			if owner := s.table.owners[block]; owner != f.ID {
				return fmt.Errorf("block %d listed by file %d but owned by %d: %w",
					block, f.ID, owner, ErrInconsistent)
			}
		}
	}

	// Any owned block not claimed by its owner's record must be an orphan
	for block, owner := range s.table.owners {
		if owner == NoFile || claimed[block] {
			continue
		}
		if _, exists := s.files.Get(owner); exists {
			return fmt.Errorf("block %d owned by file %d but missing from its record: %w",
				block, owner, ErrInconsistent)
		}
	}
	return nil
}

// orphanBlocks lists blocks owned by files that are not in the registry
func orphanBlocks(bt *BlockTable, reg *FileRegistry) []int {
	var orphans []int
	for block, owner := range bt.owners {
		if owner == NoFile {
			continue
		}
		if _, exists := reg.Get(owner); !exists {
			orphans = append(orphans, block)
		}
	}
	return orphans
}

// reclaimOrphans forces every orphaned block free and returns how many
func reclaimOrphans(bt *BlockTable, reg *FileRegistry) int {
	orphans := orphanBlocks(bt, reg)
	for _, block := range orphans {
		bt.owners[block] = NoFile
	}
	return len(orphans)
}
