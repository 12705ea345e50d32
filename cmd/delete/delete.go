// file: cmd/delete/delete.go

package delete

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// DeleteOptions configures the deletion operation
type DeleteOptions struct {
	Force bool      // Skip confirmation
	Quiet bool      // Suppress non-error output
	In    io.Reader // Confirmation input, defaults to stdin
	Out   io.Writer // Defaults to stdout
}

// DefaultDeleteOptions returns default options for Delete
func DefaultDeleteOptions() *DeleteOptions {
	return &DeleteOptions{
		Force: false,
		Quiet: false,
	}
}

// Delete removes a file from the disk and frees its blocks
func Delete(engine *vdisk.Engine, id vdisk.FileID, opts *DeleteOptions) error {
	if opts == nil {
		opts = DefaultDeleteOptions()
	}
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	detail, err := engine.File(id)
	if err != nil {
		return err
	}

	if !opts.Force {
		fmt.Fprintf(out, "Delete %s (file %d, %d blocks)? (y/N) ", detail.Filename, id, detail.BlocksCount)
		response, _ := bufio.NewReader(in).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(response)), "y") {
			if !opts.Quiet {
				fmt.Fprintln(out, "Deletion cancelled")
			}
			return nil
		}
	}

	if err := engine.Delete(id); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if !opts.Quiet {
		fmt.Fprintf(out, "Deleted %s\n", detail.Filename)
	}

	return nil
}
