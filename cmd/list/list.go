// file: cmd/list/list.go

package list

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ha1tch/blockalloc/pkg/bytesize"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// Format defines the listing output format
type Format int

const (
	FormatLS  Format = iota // Unix ls-style format
	FormatDOS               // DOS dir-style format
)

// ListOptions configures the file listing
type ListOptions struct {
	Label   string    // Disk name shown in the DOS header
	Format  Format    // Output format style
	JSON    bool      // Output in JSON format
	Sort    string    // Sort order: id, name, size, type
	Reverse bool      // Reverse sort order
	Pattern string    // Filter by filename pattern
	Quiet   bool      // Suppress non-error output
	Human   bool      // Human-readable sizes
	Out     io.Writer // Defaults to stdout
}

// DefaultListOptions returns default options for List
func DefaultListOptions() *ListOptions {
	return &ListOptions{
		Format:  FormatDOS,
		JSON:    false,
		Sort:    "id",
		Reverse: false,
		Pattern: "*",
		Quiet:   false,
		Human:   true,
	}
}

// List displays the files stored on the disk
func List(engine *vdisk.Engine, opts *ListOptions) error {
	if opts == nil {
		opts = DefaultListOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var files []vdisk.FileView
	for _, f := range engine.ListFiles() {
		if matchesPattern(f.Filename, opts.Pattern) {
			files = append(files, f)
		}
	}

	sortFiles(files, opts)

	if opts.JSON {
		if files == nil {
			files = []vdisk.FileView{}
		}
		return outputJSON(out, files)
	}

	switch opts.Format {
	case FormatLS:
		return outputLS(out, files, opts)
	case FormatDOS:
		return outputDOS(out, files, engine.Stats(), opts)
	default:
		return fmt.Errorf("unknown format specified")
	}
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	matched, err := filepath.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && matched
}

func sortFiles(files []vdisk.FileView, opts *ListOptions) {
	less := func(i, j int) bool {
		if opts.Reverse {
			i, j = j, i
		}
		switch strings.ToLower(opts.Sort) {
		case "name":
			return files[i].Filename < files[j].Filename
		case "size":
			return files[i].SizeKB < files[j].SizeKB
		case "type":
			return files[i].AllocationType < files[j].AllocationType
		default: // "id"
			return files[i].ID < files[j].ID
		}
	}
	sort.SliceStable(files, less)
}

func outputJSON(w io.Writer, files []vdisk.FileView) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(files)
}

func formatSize(sizeKB int, human bool) string {
	if human {
		return bytesize.Format(int64(sizeKB) * bytesize.KB)
	}
	return fmt.Sprintf("%dK", sizeKB)
}

func outputLS(w io.Writer, files []vdisk.FileView, opts *ListOptions) error {
	if len(files) == 0 {
		if !opts.Quiet {
			fmt.Fprintln(w, "No files found")
		}
		return nil
	}

	fmt.Fprintln(w, "  ID  Type        Size       Blocks  C  Name")
	for _, f := range files {
		compressed := "-"
		if f.IsCompressed {
			compressed = "c"
		}
		fmt.Fprintf(w, "%4d  %-10s  %-10s %6d  %s  %s\n",
			f.ID, f.AllocationType, formatSize(f.SizeKB, opts.Human), f.BlocksCount, compressed, f.Filename)
	}

	return nil
}

func outputDOS(w io.Writer, files []vdisk.FileView, stats vdisk.DiskStats, opts *ListOptions) error {
	label := opts.Label
	if label == "" {
		label = "disk"
	}
	blockSize := stats.Geometry.BlockSize
	freeBytes := stats.FreeBlocks * blockSize

	if len(files) == 0 {
		if !opts.Quiet {
			fmt.Fprintf(w, " Directory of %s\n\n", label)
			fmt.Fprintln(w, "File Not Found")
			fmt.Fprintf(w, "\n    0 File(s)              0 bytes\n")
			fmt.Fprintf(w, "                %14s bytes free\n", formatWithCommas(freeBytes))
		}
		return nil
	}

	fmt.Fprintf(w, "\n Directory of %s\n\n", label)

	var totalBytes int
	for _, f := range files {
		timeStr := f.UploadedAt.Format("02/01/2006  15:04")
		if f.UploadedAt.IsZero() {
			timeStr = "                 "
		}
		fmt.Fprintf(w, "%s  %-10s %14s %s\n",
			timeStr, strings.ToUpper(f.AllocationType.String()), formatWithCommas(f.SizeKB*1024), f.Filename)
		totalBytes += f.SizeKB * 1024
	}

	fmt.Fprintf(w, "\n    %d File(s)    %14s bytes\n",
		len(files), formatWithCommas(totalBytes))
	fmt.Fprintf(w, "                %14s bytes free\n",
		formatWithCommas(freeBytes))

	return nil
}

func formatWithCommas(n int) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return sign + str
	}

	var result []byte
	for i, c := range []byte(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, c)
	}

	return sign + string(result)
}
