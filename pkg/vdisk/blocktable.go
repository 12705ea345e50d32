// file: pkg/vdisk/blocktable.go

package vdisk

import (
	"fmt"
)

// FileID identifies a file on the disk. IDs start at 1.
type FileID int64

// NoFile marks a free block.
const NoFile FileID = 0

// BlockTable tracks which file owns each block of the disk. It is the
// ground truth of disk occupancy and is not safe for concurrent use; the
// Engine serializes access to it.
type BlockTable struct {
	owners []FileID // owning file per block, NoFile when free
}

// NewBlockTable creates a table with every block free
func NewBlockTable(totalBlocks int) *BlockTable {
	return &BlockTable{
		owners: make([]FileID, totalBlocks),
	}
}

// Len returns the number of blocks on the disk
func (bt *BlockTable) Len() int {
	return len(bt.owners)
}

// AllocateRun finds the lowest-indexed run of length free blocks, marks
// them as owned and returns them in ascending order. It fails when no run
// is long enough, even if enough blocks are free in total.
func (bt *BlockTable) AllocateRun(length int, owner FileID) ([]int, bool) {
	if length <= 0 || owner == NoFile {
		return nil, false
	}

	start := bt.findRun(length)
	if start < 0 {
		return nil, false
	}

	blocks := make([]int, length)
	for i := range blocks {
		blocks[i] = start + i
		bt.owners[start+i] = owner
	}
	return blocks, true
}

// AllocateScattered marks the length lowest-indexed free blocks as owned and
// returns them in ascending order. It fails only when fewer than length
// blocks are free.
func (bt *BlockTable) AllocateScattered(length int, owner FileID) ([]int, bool) {
	if length <= 0 || owner == NoFile || bt.FreeCount() < length {
		return nil, false
	}

	blocks := make([]int, 0, length)
	for i := 0; i < len(bt.owners) && len(blocks) < length; i++ {
		if bt.owners[i] == NoFile {
			bt.owners[i] = owner
			blocks = append(blocks, i)
		}
	}
	return blocks, true
}

// Free releases the given blocks. Freeing a block that is out of range or
// already free is a caller bug; the whole call is rejected and nothing
// changes.
func (bt *BlockTable) Free(blocks []int) error {
	seen := make(map[int]bool, len(blocks))
	for _, block := range blocks {
		if block < 0 || block >= len(bt.owners) {
			return fmt.Errorf("free block %d: %w", block, ErrBlockOutOfRange)
		}
		if bt.owners[block] == NoFile || seen[block] {
			return fmt.Errorf("free block %d: %w", block, ErrBlockAlreadyFree)
		}
		seen[block] = true
	}

	for _, block := range blocks {
		bt.owners[block] = NoFile
	}
	return nil
}

// assign marks specific blocks as owned. Used when rebuilding a table from
// a snapshot or a compaction plan.
func (bt *BlockTable) assign(blocks []int, owner FileID) error {
	for _, block := range blocks {
		if block < 0 || block >= len(bt.owners) {
			return fmt.Errorf("assign block %d: %w", block, ErrBlockOutOfRange)
		}
		if bt.owners[block] != NoFile {
			return fmt.Errorf("assign block %d to file %d (owned by %d): %w",
				block, owner, bt.owners[block], ErrBlockInUse)
		}
	}

	for _, block := range blocks {
		bt.owners[block] = owner
	}
	return nil
}

// IsFree reports whether a block is unowned. Out of range blocks are never free.
func (bt *BlockTable) IsFree(block int) bool {
	if block < 0 || block >= len(bt.owners) {
		return false
	}
	return bt.owners[block] == NoFile
}

// Owner returns the file owning a block, or NoFile
func (bt *BlockTable) Owner(block int) (FileID, error) {
	if block < 0 || block >= len(bt.owners) {
		return NoFile, fmt.Errorf("block %d: %w", block, ErrBlockOutOfRange)
	}
	return bt.owners[block], nil
}

// FreeCount returns the number of free blocks
func (bt *BlockTable) FreeCount() int {
	free := 0
	for _, owner := range bt.owners {
		if owner == NoFile {
			free++
		}
	}
	return free
}

// Owners returns a copy of the owner of every block, indexed by block number
func (bt *BlockTable) Owners() []FileID {
	owners := make([]FileID, len(bt.owners))
	copy(owners, bt.owners)
	return owners
}

// findRun looks for a sequence of free blocks, first fit
func (bt *BlockTable) findRun(count int) int {
	consecutive := 0
	start := -1

	for i, owner := range bt.owners {
		if owner == NoFile {
			if consecutive == 0 {
				start = i
			}
			consecutive++
			if consecutive == count {
				return start
			}
		} else {
			consecutive = 0
			start = -1
		}
	}
	return -1
}

func (bt *BlockTable) clone() *BlockTable {
	return &BlockTable{owners: bt.Owners()}
}

func (bt *BlockTable) reset() {
	for i := range bt.owners {
		bt.owners[i] = NoFile
	}
}
