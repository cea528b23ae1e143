// Package responses defines the JSON response types used by the
// artifactstore HTTP handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/artifactstore/internal/storage"
)

// StatusResponse represents the service status endpoint payload.
type StatusResponse struct {
	Status    string    `json:"status"`
	Backend   string    `json:"backend"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	StartTime time.Time `json:"start_time"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsResponse reports per-segment cache counters.
type StatsResponse struct {
	Status    string                   `json:"status"`
	Backend   string                   `json:"backend"`
	Segments  map[string]storage.Stats `json:"segments"`
	Timestamp time.Time                `json:"timestamp"`
}

// AuditEntry is one mutation record in the audit listing.
type AuditEntry struct {
	Operation string    `json:"operation"`
	Segment   string    `json:"segment"`
	Key       string    `json:"key"`
	Caller    string    `json:"caller,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditResponse lists recent mutating operations.
type AuditResponse struct {
	Status  string       `json:"status"`
	Entries []AuditEntry `json:"entries"`
}
