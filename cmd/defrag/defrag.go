// file: cmd/defrag/defrag.go

package defrag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// DefragOptions configures the defragmentation run
type DefragOptions struct {
	JSON  bool      // Output the report in JSON format
	Quiet bool      // Suppress non-error output
	Out   io.Writer // Defaults to stdout
}

// DefaultDefragOptions returns default options for Defrag
func DefaultDefragOptions() *DefragOptions {
	return &DefragOptions{}
}

// Result is the JSON form of a defragmentation run
type Result struct {
	vdisk.DefragReport
	BeforeFragmentation float64 `json:"before_fragmentation"`
	AfterFragmentation  float64 `json:"after_fragmentation"`
}

// Defrag compacts every file to the start of the disk
func Defrag(engine *vdisk.Engine, opts *DefragOptions) error {
	if opts == nil {
		opts = DefaultDefragOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	before := engine.Fragmentation()
	report, err := engine.Defragment()
	if err != nil {
		return fmt.Errorf("failed to defragment: %w", err)
	}
	res := Result{
		DefragReport:        report,
		BeforeFragmentation: before,
		AfterFragmentation:  engine.Fragmentation(),
	}

	if opts.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(res)
	}
	if opts.Quiet {
		return nil
	}

	if report.NoOp {
		fmt.Fprintln(out, "No files to defragment")
		return nil
	}
	fmt.Fprintf(out, "Relocated %d files, moved %d blocks\n", report.FilesRelocated, report.BlocksMoved)
	fmt.Fprintf(out, "Fragmentation: %.2f%% -> %.2f%%\n", res.BeforeFragmentation, res.AfterFragmentation)
	return nil
}
