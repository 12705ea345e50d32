// file: cmd/blocks/blocks.go

package blocks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

const symbols = "123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// BlocksOptions configures the block map display
type BlocksOptions struct {
	JSON  bool      // Output every block in JSON format
	Width int       // Blocks per row of the map
	Out   io.Writer // Defaults to stdout
}

// DefaultBlocksOptions returns default options for Blocks
func DefaultBlocksOptions() *BlocksOptions {
	return &BlocksOptions{
		JSON:  false,
		Width: 50,
	}
}

// Blocks prints the block map of the disk. Free blocks are shown as '.',
// owned blocks by a symbol assigned to their file in listing order, and
// orphaned blocks as '?'.
func Blocks(engine *vdisk.Engine, opts *BlocksOptions) error {
	if opts == nil {
		opts = DefaultBlocksOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Width <= 0 {
		opts.Width = DefaultBlocksOptions().Width
	}

	views := engine.ListBlocks()
	if opts.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(views)
	}

	files := engine.ListFiles()
	symbolOf := make(map[vdisk.FileID]byte, len(files))
	for i, f := range files {
		// wraps past 61 files; the legend stays exact
		symbolOf[f.ID] = symbols[i%len(symbols)]
	}

	var row strings.Builder
	for i, b := range views {
		if i%opts.Width == 0 {
			if i > 0 {
				fmt.Fprintln(out, row.String())
				row.Reset()
			}
			fmt.Fprintf(&row, "%6d  ", i)
		}
		switch {
		case b.FileID == nil:
			row.WriteByte('.')
		default:
			sym, ok := symbolOf[*b.FileID]
			if !ok {
				sym = '?'
			}
			row.WriteByte(sym)
		}
	}
	if row.Len() > 0 {
		fmt.Fprintln(out, row.String())
	}

	if len(files) > 0 {
		fmt.Fprintln(out)
		for _, f := range files {
			fmt.Fprintf(out, "  %c  %s (id %d, %s)\n", symbolOf[f.ID], f.Filename, f.ID, f.AllocationType)
		}
	}

	return nil
}
