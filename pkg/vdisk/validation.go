// file: pkg/vdisk/validation.go

package vdisk

import (
	"fmt"
	"path"
	"strings"
)

// ValidationError reports a rejected argument before the disk is touched
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error - %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation failure with ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// CleanFilename strips directories and surrounding whitespace the way an
// upload form would, leaving only the base name
func CleanFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", &ValidationError{Field: "filename", Message: "filename cannot be empty"}
	}

	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return "", &ValidationError{
			Field:   "filename",
			Message: fmt.Sprintf("%q does not name a file", name),
		}
	}
	return base, nil
}

// validateContent rejects uploads with nothing to allocate
func validateContent(content []byte) error {
	if len(content) == 0 {
		return &ValidationError{Field: "content", Message: "file is empty"}
	}
	return nil
}

// Validate checks that a geometry can back a disk
func (g Geometry) Validate() error {
	if g.TotalBlocks <= 0 {
		return &ValidationError{
			Field:   "Geometry.TotalBlocks",
			Message: fmt.Sprintf("total blocks must be positive, got %d", g.TotalBlocks),
		}
	}
	if g.BlockSize <= 0 || g.BlockSize%1024 != 0 {
		return &ValidationError{
			Field:   "Geometry.BlockSize",
			Message: fmt.Sprintf("block size must be a positive multiple of 1024 bytes, got %d", g.BlockSize),
		}
	}
	return nil
}
