// file: cmd/add/add.go

package add

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ha1tch/blockalloc/pkg/bytesize"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// AddOptions configures the Add operation
type AddOptions struct {
	AllocationType vdisk.AllocationType
	Name           string    // Store under this name instead of the host file's
	Force          bool      // Allow a second file with the same name
	Quiet          bool      // Suppress non-error output
	Out            io.Writer // Defaults to stdout
}

// DefaultAddOptions returns default options for Add
func DefaultAddOptions() *AddOptions {
	return &AddOptions{
		AllocationType: vdisk.Contiguous,
		Force:          false,
		Quiet:          false,
	}
}

// Add uploads a host file onto the disk
func Add(engine *vdisk.Engine, filePath string, opts *AddOptions) error {
	if opts == nil {
		opts = DefaultAddOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %w", err)
	}
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input is a directory: %s", filePath)
	}
	if capacity := engine.Geometry().CapacityBytes(); info.Size() > capacity {
		return fmt.Errorf("file too large for disk (max %s)", bytesize.Format(capacity))
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(filePath)
	}
	// Compare against the name the disk will actually store
	name, err = vdisk.CleanFilename(name)
	if err != nil {
		return err
	}

	if !opts.Force {
		for _, f := range engine.ListFiles() {
			if f.Filename == name {
				return fmt.Errorf("file already exists: %s (use force to add a duplicate)", name)
			}
		}
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	view, err := engine.Upload(name, content, opts.AllocationType)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	if !opts.Quiet {
		fmt.Fprintf(out, "Added %s as file %d (%s, %d KB, %d blocks)\n",
			view.Filename, view.ID, view.AllocationType, view.SizeKB, view.BlocksCount)
	}

	return nil
}
