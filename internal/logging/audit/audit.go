package audit

import (
	"github.com/rs/zerolog"
)

// Result values for LogDiskOp.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Logger provides structured audit logging of disk operations requested
// over the API. The disk's own journal lives in the engine; this is the
// operator-facing trail with request context.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger from a zerolog.Logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogDiskOp logs a mutating disk operation.
// operation: e.g. "upload", "delete", "defragment", "optimize"
// fileID: the file affected, 0 when the operation is disk-wide
// result: ResultOK or ResultFailed
// details: additional context (e.g. the error message)
// sourceIP: remote address of the request
func (l *Logger) LogDiskOp(operation string, fileID int64, result, details, sourceIP string) {
	level := zerolog.InfoLevel
	if result != ResultOK {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "disk_operation").
		Str("operation", operation).
		Str("result", result).
		Str("source_ip", sourceIP)

	if fileID != 0 {
		event = event.Int64("file_id", fileID)
	}
	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Disk operation")
}
