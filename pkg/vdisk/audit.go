// file: pkg/vdisk/audit.go

package vdisk

import (
	"time"
)

// AuditEvent is one entry of the disk journal
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
}

// AuditLoader is implemented by stores that can replay earlier events,
// oldest first, when an engine is reopened
type AuditLoader interface {
	LoadLog() ([]AuditEvent, error)
}
