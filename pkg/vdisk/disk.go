// file: pkg/vdisk/disk.go

package vdisk

const (
	DefaultTotalBlocks = 1000
	DefaultBlockSize   = 4096 // bytes
	KiB                = 1024
)

// Geometry describes the fixed shape of a virtual disk
type Geometry struct {
	TotalBlocks int `json:"total_blocks"`
	BlockSize   int `json:"block_size"` // bytes, multiple of 1024
}

// DefaultGeometry returns a 1000 block disk of 4K blocks
func DefaultGeometry() Geometry {
	return Geometry{
		TotalBlocks: DefaultTotalBlocks,
		BlockSize:   DefaultBlockSize,
	}
}

// BlockSizeKB returns the block size in kilobytes
func (g Geometry) BlockSizeKB() int {
	return g.BlockSize / KiB
}

// CapacityBytes returns the total size of the disk
func (g Geometry) CapacityBytes() int64 {
	return int64(g.TotalBlocks) * int64(g.BlockSize)
}

// IsZero reports whether no geometry was given
func (g Geometry) IsZero() bool {
	return g.TotalBlocks == 0 && g.BlockSize == 0
}
