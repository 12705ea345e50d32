// file: pkg/vdisk/views.go

package vdisk

import (
	"slices"
	"time"
)

// FileView is the listing representation of a file
type FileView struct {
	ID             FileID         `json:"id"`
	Filename       string         `json:"filename"`
	AllocationType AllocationType `json:"allocation_type"`
	SizeKB         int            `json:"size_kb"`
	BlocksCount    int            `json:"blocks_count"`
	IsCompressed   bool           `json:"is_compressed"`
	UploadedAt     time.Time      `json:"uploaded_at"`
}

// View returns the listing representation of the record
func (f *File) View() FileView {
	return FileView{
		ID:             f.ID,
		Filename:       f.Filename,
		AllocationType: f.AllocationType,
		SizeKB:         f.SizeKB,
		BlocksCount:    f.BlocksCount(),
		IsCompressed:   f.IsCompressed,
		UploadedAt:     f.CreatedAt,
	}
}

// BlockView describes one block of the disk. FileID and NextBlock are nil
// for free blocks; NextBlock is only set inside linked chains.
type BlockView struct {
	Index     int     `json:"block_index"`
	FileID    *FileID `json:"file_id"`
	NextBlock *int    `json:"next_block"`
}

// ChainLink is one hop of a linked file
type ChainLink struct {
	Block int  `json:"block"`
	Next  *int `json:"next"`
}

// FileDetail is the full allocation record of a file
type FileDetail struct {
	FileView
	SizeBytes    int64       `json:"size_bytes"`
	SHA256       string      `json:"sha256"`
	Blocks       []int       `json:"blocks"`
	IndexBlock   *int        `json:"index_block,omitempty"`
	IndexPayload []int       `json:"index_payload,omitempty"`
	Chain        []ChainLink `json:"chain,omitempty"`
}

// Detail returns the full allocation record of the file
func (f *File) Detail() FileDetail {
	d := FileDetail{
		FileView:  f.View(),
		SizeBytes: f.SizeBytes,
		SHA256:    f.SHA256,
		Blocks:    slices.Clone(f.Blocks),
	}

	switch f.AllocationType {
	case Indexed:
		if idx, ok := f.IndexBlock(); ok {
			d.IndexBlock = &idx
			d.IndexPayload = f.DataBlocks()
		}
	case Linked:
		d.Chain = make([]ChainLink, len(f.Blocks))
		for i, block := range f.Blocks {
			d.Chain[i] = ChainLink{Block: block}
			if i+1 < len(f.Blocks) {
				next := f.Blocks[i+1]
				d.Chain[i].Next = &next
			}
		}
	}
	return d
}

func blockViews(bt *BlockTable, reg *FileRegistry) []BlockView {
	next := make(map[int]int)
	for _, f := range reg.All() {
		if f.AllocationType != Linked {
			continue
		}
		for i := 0; i+1 < len(f.Blocks); i++ {
			next[f.Blocks[i]] = f.Blocks[i+1]
		}
	}

	views := make([]BlockView, bt.Len())
	for i, owner := range bt.owners {
		views[i].Index = i
		if owner == NoFile {
			continue
		}
		id := owner
		views[i].FileID = &id
		if n, ok := next[i]; ok {
			views[i].NextBlock = &n
		}
	}
	return views
}
