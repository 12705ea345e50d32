// file: pkg/vdisk/strategy.go

package vdisk

import (
	"fmt"
	"strings"
)

// AllocationType selects how a file's blocks are laid out on the disk
type AllocationType int

const (
	// Contiguous places the file in one ascending run of blocks
	Contiguous AllocationType = iota
	// Linked chains scattered blocks in allocation order
	Linked
	// Indexed stores the data block addresses in a dedicated index block
	Indexed
)

var allocationTypeNames = map[AllocationType]string{
	Contiguous: "contiguous",
	Linked:     "linked",
	Indexed:    "indexed",
}

func (t AllocationType) String() string {
	if name, ok := allocationTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("AllocationType(%d)", int(t))
}

// ParseAllocationType accepts "contiguous", "linked" or "indexed" in any case
func ParseAllocationType(s string) (AllocationType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range allocationTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, &ValidationError{
		Field:   "allocation_type",
		Message: fmt.Sprintf("unknown allocation type %q", s),
	}
}

// MarshalText encodes the type by name
func (t AllocationType) MarshalText() ([]byte, error) {
	if _, ok := allocationTypeNames[t]; !ok {
		return nil, fmt.Errorf("marshal %s: %w", t, ErrInvalidInput)
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name
func (t *AllocationType) UnmarshalText(text []byte) error {
	parsed, err := ParseAllocationType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Strategy claims blocks for a file of length blocks. The returned slice is
// the file's logical block order. On failure the table is left unchanged.
type Strategy interface {
	Allocate(bt *BlockTable, length int, owner FileID) ([]int, error)
}

// StrategyFor returns the strategy implementing an allocation type
func StrategyFor(t AllocationType) (Strategy, error) {
	switch t {
	case Contiguous:
		return contiguousStrategy{}, nil
	case Linked:
		return linkedStrategy{}, nil
	case Indexed:
		return indexedStrategy{}, nil
	default:
		return nil, &ValidationError{
			Field:   "allocation_type",
			Message: fmt.Sprintf("unsupported allocation type %d", int(t)),
		}
	}
}

type contiguousStrategy struct{}

func (contiguousStrategy) Allocate(bt *BlockTable, length int, owner FileID) ([]int, error) {
	blocks, ok := bt.AllocateRun(length, owner)
	if !ok {
		return nil, fmt.Errorf("contiguous allocation of %d blocks (%d free): %w",
			length, bt.FreeCount(), ErrInsufficientContiguousSpace)
	}
	return blocks, nil
}

type linkedStrategy struct{}

func (linkedStrategy) Allocate(bt *BlockTable, length int, owner FileID) ([]int, error) {
	blocks, ok := bt.AllocateScattered(length, owner)
	if !ok {
		return nil, fmt.Errorf("linked allocation of %d blocks (%d free): %w",
			length, bt.FreeCount(), ErrInsufficientSpace)
	}
	return blocks, nil
}

// indexedStrategy takes one extra block for the index. AllocateScattered
// returns ascending indices, so blocks[0] is the lowest and becomes the
// index block; blocks[1:] is its payload.
type indexedStrategy struct{}

func (indexedStrategy) Allocate(bt *BlockTable, length int, owner FileID) ([]int, error) {
	blocks, ok := bt.AllocateScattered(length+1, owner)
	if !ok {
		return nil, fmt.Errorf("indexed allocation of %d data blocks plus index (%d free): %w",
			length, bt.FreeCount(), ErrInsufficientSpace)
	}
	return blocks, nil
}
