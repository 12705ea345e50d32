// file: cmd/info/info.go

package info

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ha1tch/blockalloc/pkg/bytesize"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// DiskInfo represents disk information in a structured format
type DiskInfo struct {
	Path       string          `json:"path,omitempty"`
	Stats      vdisk.DiskStats `json:"stats"`
	FreeRuns   []vdisk.Run     `json:"free_runs,omitempty"`
	Orphans    []int           `json:"orphan_blocks,omitempty"`
	Validation []string        `json:"validation_issues,omitempty"`
}

// InfoOptions configures the information display
type InfoOptions struct {
	Path     string    // Store path shown in the header
	JSON     bool      // Output in JSON format
	Verbose  bool      // Show free runs and orphaned blocks
	Validate bool      // Check table and registry consistency
	Quiet    bool      // Suppress non-error output
	Out      io.Writer // Defaults to stdout
}

// DefaultInfoOptions returns default options for Info
func DefaultInfoOptions() *InfoOptions {
	return &InfoOptions{
		JSON:     false,
		Verbose:  false,
		Validate: true,
		Quiet:    false,
	}
}

// Info displays usage, fragmentation and consistency of the disk
func Info(engine *vdisk.Engine, opts *InfoOptions) error {
	if opts == nil {
		opts = DefaultInfoOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	info := &DiskInfo{
		Path:  opts.Path,
		Stats: engine.Stats(),
	}
	if opts.Verbose {
		info.FreeRuns = engine.FreeRuns()
		info.Orphans = engine.Orphans()
	}
	if opts.Validate {
		if err := engine.Check(); err != nil {
			info.Validation = append(info.Validation, err.Error())
		}
	}

	if opts.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}
	return outputText(out, info, opts)
}

func outputText(w io.Writer, info *DiskInfo, opts *InfoOptions) error {
	if opts.Quiet && len(info.Validation) == 0 {
		return nil
	}

	s := info.Stats
	blockSize := int64(s.Geometry.BlockSize)
	if info.Path != "" {
		fmt.Fprintf(w, "Disk:          %s\n\n", info.Path)
	}
	fmt.Fprintf(w, "Blocks:        %d x %s\n", s.Geometry.TotalBlocks, bytesize.Format(blockSize))
	fmt.Fprintf(w, "Files:         %d\n", s.Files)
	fmt.Fprintf(w, "Used:          %d blocks (%s)\n", s.UsedBlocks, bytesize.Format(int64(s.UsedBlocks)*blockSize))
	fmt.Fprintf(w, "Free:          %d blocks (%s)\n", s.FreeBlocks, bytesize.Format(int64(s.FreeBlocks)*blockSize))
	fmt.Fprintf(w, "Free runs:     %d, largest %d blocks\n", s.FreeRuns, s.LargestFreeRun)
	fmt.Fprintf(w, "Fragmentation: %.2f%%\n", s.Fragmentation)
	if s.OrphanBlocks > 0 {
		fmt.Fprintf(w, "Orphaned:      %d blocks\n", s.OrphanBlocks)
	}

	if opts.Verbose {
		fmt.Fprintf(w, "\nFree Runs:\n")
		for _, r := range info.FreeRuns {
			fmt.Fprintf(w, "  %d-%d (%d)\n", r.Start, r.Start+r.Length-1, r.Length)
		}
		if len(info.Orphans) > 0 {
			fmt.Fprintf(w, "\nOrphaned Blocks: %v\n", info.Orphans)
		}
	}

	if len(info.Validation) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, warning := range info.Validation {
			fmt.Fprintf(w, "- %s\n", warning)
		}
	}

	return nil
}
