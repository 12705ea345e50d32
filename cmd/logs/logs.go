// file: cmd/logs/logs.go

package logs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

// LogsOptions configures the audit log display
type LogsOptions struct {
	Limit int       // Newest events to show; 0 shows all
	JSON  bool      // Output in JSON format
	Out   io.Writer // Defaults to stdout
}

// DefaultLogsOptions returns default options for Logs
func DefaultLogsOptions() *LogsOptions {
	return &LogsOptions{Limit: 50}
}

// Logs prints the audit log of the disk, newest first
func Logs(engine *vdisk.Engine, opts *LogsOptions) error {
	if opts == nil {
		opts = DefaultLogsOptions()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	events := engine.AuditLog(opts.Limit)
	if opts.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(events)
	}

	for _, e := range events {
		fmt.Fprintf(out, "%s  %s\n", e.Timestamp.Local().Format(time.DateTime), e.Action)
	}
	return nil
}
