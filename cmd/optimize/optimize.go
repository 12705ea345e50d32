// file: cmd/optimize/optimize.go

package optimize

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// OptimizeOptions configures the optimization run
type OptimizeOptions struct {
	DryRun bool      // Only report duplicates, junk and suggestions
	JSON   bool      // Output in JSON format
	Out    io.Writer // Defaults to stdout
}

// DefaultOptimizeOptions returns default options for Optimize
func DefaultOptimizeOptions() *OptimizeOptions {
	return &OptimizeOptions{}
}

// Preview is what a dry run reports
type Preview struct {
	Housekeeping    vdisk.HousekeepingReport `json:"housekeeping"`
	Recommendations []vdisk.Recommendation   `json:"recommendations"`
	Fragmentation   float64                  `json:"fragmentation"`
	OrphanBlocks    int                      `json:"orphan_blocks"`
}

// Optimize runs the housekeeping and compaction pipeline. Files are never
// deleted; duplicates and junk are only reported.
func Optimize(engine *vdisk.Engine, opts *OptimizeOptions) error {
	if opts == nil {
		opts = DefaultOptimizeOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if opts.DryRun {
		preview := Preview{
			Housekeeping:    engine.Scan(),
			Recommendations: engine.Recommendations(),
			Fragmentation:   engine.Fragmentation(),
			OrphanBlocks:    len(engine.Orphans()),
		}
		if opts.JSON {
			return encode(out, preview)
		}
		return outputPreview(out, preview)
	}

	report, err := engine.Optimize()
	if err != nil {
		return fmt.Errorf("failed to optimize: %w", err)
	}
	if opts.JSON {
		return encode(out, report)
	}

	for _, d := range report.Duplicates {
		fmt.Fprintf(out, "Duplicate: %s (id %d) repeats id %d\n", d.File2, d.File2ID, d.File1ID)
	}
	for _, j := range report.Junk {
		fmt.Fprintf(out, "Junk:      %s (id %d)\n", j.Filename, j.ID)
	}
	if report.OrphanBlocks > 0 {
		fmt.Fprintf(out, "Reclaimed %d orphaned blocks\n", report.OrphanBlocks)
	}
	if !report.Defrag.NoOp {
		fmt.Fprintf(out, "Relocated %d files, moved %d blocks\n", report.Defrag.FilesRelocated, report.Defrag.BlocksMoved)
	}
	fmt.Fprintf(out, "Fragmentation: %.2f%% -> %.2f%%\n", report.BeforeFragmentation, report.AfterFragmentation)
	return nil
}

func encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputPreview(w io.Writer, p Preview) error {
	fmt.Fprintf(w, "Fragmentation: %.2f%%\n", p.Fragmentation)
	if p.OrphanBlocks > 0 {
		fmt.Fprintf(w, "Orphaned:      %d blocks\n", p.OrphanBlocks)
	}
	if len(p.Recommendations) == 0 {
		fmt.Fprintln(w, "No recommendations")
		return nil
	}

	fmt.Fprintln(w, "\nRecommendations:")
	for _, r := range p.Recommendations {
		fmt.Fprintf(w, "  %4d  %-30s %-28s %.0f%%\n", r.FileID, r.Filename, r.Suggestion, r.Confidence*100)
	}
	return nil
}
