// file: cmd/create/create.go

package create

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ha1tch/blockalloc/internal/storage"
	"github.com/ha1tch/blockalloc/pkg/bytesize"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// CreateOptions configures the disk creation
type CreateOptions struct {
	TotalBlocks int       // Number of blocks on the new disk
	BlockSize   int       // Block size in bytes
	Force       bool      // Replace an existing disk
	Quiet       bool      // Suppress non-error output
	Out         io.Writer // Defaults to stdout
	Logger      *zerolog.Logger
}

// DefaultCreateOptions returns default options for Create
func DefaultCreateOptions() *CreateOptions {
	return &CreateOptions{
		TotalBlocks: vdisk.DefaultTotalBlocks,
		BlockSize:   vdisk.DefaultBlockSize,
		Force:       false,
		Quiet:       false,
	}
}

// Create initialises a new disk in the store at dbPath
func Create(dbPath string, opts *CreateOptions) error {
	if opts == nil {
		opts = DefaultCreateOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	geom := vdisk.Geometry{TotalBlocks: opts.TotalBlocks, BlockSize: opts.BlockSize}
	if err := geom.Validate(); err != nil {
		return err
	}

	dbPath = filepath.Clean(dbPath)
	store, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	existing, err := store.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}
	if existing != nil {
		if !opts.Force {
			return fmt.Errorf("disk already exists: %s (use force to overwrite)", dbPath)
		}
		if err := store.Wipe(); err != nil {
			return fmt.Errorf("failed to wipe existing disk: %w", err)
		}
	}

	engine, err := vdisk.Open(vdisk.Options{
		Geometry: geom,
		Store:    store,
		Logger:   opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create disk: %w", err)
	}

	if err := engine.Check(); err != nil {
		return fmt.Errorf("disk verification failed: %w", err)
	}

	if !opts.Quiet {
		g := engine.Geometry()
		fmt.Fprintf(out, "Created disk: %s\n", dbPath)
		fmt.Fprintf(out, "%d blocks of %s (%s total)\n",
			g.TotalBlocks, bytesize.Format(int64(g.BlockSize)), bytesize.Format(g.CapacityBytes()))
		if existing != nil {
			fmt.Fprintln(out, "Previous disk and log replaced")
		}
	}

	return nil
}
