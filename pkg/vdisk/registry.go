// file: pkg/vdisk/registry.go

package vdisk

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// File is the registry record for one uploaded file
type File struct {
	ID             FileID
	Filename       string
	SizeBytes      int64
	SizeKB         int
	AllocationType AllocationType
	Blocks         []int // logical order; for indexed files Blocks[0] is the index block
	IsCompressed   bool
	CreatedAt      time.Time
	SHA256         string
}

// BlocksCount returns the number of blocks the file occupies, index block included
func (f *File) BlocksCount() int {
	return len(f.Blocks)
}

// IndexBlock returns the index block of an indexed file
func (f *File) IndexBlock() (int, bool) {
	if f.AllocationType != Indexed || len(f.Blocks) == 0 {
		return 0, false
	}
	return f.Blocks[0], true
}

// DataBlocks returns the blocks holding file content in logical order.
// For indexed files this is the index block payload.
func (f *File) DataBlocks() []int {
	if f.AllocationType == Indexed && len(f.Blocks) > 0 {
		return slices.Clone(f.Blocks[1:])
	}
	return slices.Clone(f.Blocks)
}

// Extension returns the lower-cased suffix from the last dot, dot included
func (f *File) Extension() string {
	return extension(f.Filename)
}

func extension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx:])
}

func (f *File) clone() *File {
	c := *f
	c.Blocks = slices.Clone(f.Blocks)
	return &c
}

// FileRegistry maps file IDs to their records, kept in ascending ID order
type FileRegistry struct {
	files []*File
	byID  map[FileID]*File
}

// NewFileRegistry creates an empty registry
func NewFileRegistry() *FileRegistry {
	return &FileRegistry{
		byID: make(map[FileID]*File),
	}
}

// Insert adds a record. IDs must be unique.
func (r *FileRegistry) Insert(f *File) error {
	if f.ID == NoFile {
		return &ValidationError{Field: "File.ID", Message: "file id must be non-zero"}
	}
	if _, exists := r.byID[f.ID]; exists {
		return fmt.Errorf("insert file %d: %w", f.ID, ErrInconsistent)
	}

	pos, _ := slices.BinarySearchFunc(r.files, f.ID, func(e *File, id FileID) int {
		switch {
		case e.ID < id:
			return -1
		case e.ID > id:
			return 1
		}
		return 0
	})
	r.files = slices.Insert(r.files, pos, f)
	r.byID[f.ID] = f
	return nil
}

// Remove deletes a record and returns it
func (r *FileRegistry) Remove(id FileID) (*File, error) {
	f, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}

	delete(r.byID, id)
	r.files = slices.DeleteFunc(r.files, func(e *File) bool { return e.ID == id })
	return f, nil
}

// Get looks up a record by ID
func (r *FileRegistry) Get(id FileID) (*File, bool) {
	f, exists := r.byID[id]
	return f, exists
}

// All returns the records in ascending ID order
func (r *FileRegistry) All() []*File {
	return slices.Clone(r.files)
}

// Len returns the number of files
func (r *FileRegistry) Len() int {
	return len(r.files)
}

// UsedBlocks sums the block counts of all files
func (r *FileRegistry) UsedBlocks() int {
	total := 0
	for _, f := range r.files {
		total += f.BlocksCount()
	}
	return total
}

func (r *FileRegistry) clone() *FileRegistry {
	c := &FileRegistry{
		files: make([]*File, len(r.files)),
		byID:  make(map[FileID]*File, len(r.files)),
	}
	for i, f := range r.files {
		fc := f.clone()
		c.files[i] = fc
		c.byID[fc.ID] = fc
	}
	return c
}
