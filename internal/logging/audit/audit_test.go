package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDiskOp(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		fileID     int64
		result     string
		details    string
		wantLevel  string
		wantFileID bool
	}{
		{
			name:       "upload",
			operation:  "upload",
			fileID:     7,
			result:     ResultOK,
			wantLevel:  "info",
			wantFileID: true,
		},
		{
			name:      "failed defragment",
			operation: "defragment",
			result:    ResultFailed,
			details:   "busy",
			wantLevel: "warn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewLogger(zerolog.New(&buf)).LogDiskOp(tt.operation, tt.fileID, tt.result, tt.details, "10.0.0.1")

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "disk_operation", entry["event_type"])
			assert.Equal(t, tt.operation, entry["operation"])
			assert.Equal(t, tt.result, entry["result"])
			assert.Equal(t, "10.0.0.1", entry["source_ip"])

			_, hasFileID := entry["file_id"]
			assert.Equal(t, tt.wantFileID, hasFileID)
			_, hasDetails := entry["details"]
			assert.Equal(t, tt.details != "", hasDetails)
		})
	}
}
