// file: cmd/show/show.go

package show

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// ShowOptions configures the file detail display
type ShowOptions struct {
	JSON bool      // Output in JSON format
	Out  io.Writer // Defaults to stdout
}

// DefaultShowOptions returns default options for Show
func DefaultShowOptions() *ShowOptions {
	return &ShowOptions{JSON: false}
}

// Show prints the allocation record of one file: its blocks, and the
// chain or index layout for linked and indexed files
func Show(engine *vdisk.Engine, id vdisk.FileID, opts *ShowOptions) error {
	if opts == nil {
		opts = DefaultShowOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	detail, err := engine.File(id)
	if err != nil {
		return err
	}

	if opts.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(detail)
	}

	fmt.Fprintf(out, "File:        %s (id %d)\n", detail.Filename, detail.ID)
	fmt.Fprintf(out, "Allocation:  %s\n", detail.AllocationType)
	fmt.Fprintf(out, "Size:        %d bytes (%d KB)\n", detail.SizeBytes, detail.SizeKB)
	fmt.Fprintf(out, "Compressed:  %t\n", detail.IsCompressed)
	fmt.Fprintf(out, "Uploaded:    %s\n", detail.UploadedAt.Format(time.RFC1123))
	if detail.SHA256 != "" {
		fmt.Fprintf(out, "SHA-256:     %s\n", detail.SHA256)
	}
	fmt.Fprintf(out, "Blocks:      %s\n", joinInts(detail.Blocks))

	switch detail.AllocationType {
	case vdisk.Linked:
		links := make([]string, 0, len(detail.Chain)+1)
		for _, link := range detail.Chain {
			links = append(links, fmt.Sprint(link.Block))
		}
		links = append(links, "end")
		fmt.Fprintf(out, "Chain:       %s\n", strings.Join(links, " -> "))
	case vdisk.Indexed:
		if detail.IndexBlock != nil {
			fmt.Fprintf(out, "Index block: %d\n", *detail.IndexBlock)
			fmt.Fprintf(out, "Data blocks: %s\n", joinInts(detail.IndexPayload))
		}
	}

	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
