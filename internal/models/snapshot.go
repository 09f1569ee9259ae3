package models

import "time"

// CompletedSchemaVersion is bumped whenever the signature format or the
// snapshot layout changes. Loaders discard snapshots with any other version.
const CompletedSchemaVersion = 2

// CompletedSnapshot is the coordinator's persisted record of which task
// signatures have already been executed.
type CompletedSnapshot struct {
	SchemaVersion int       `json:"schema_version"`
	SessionID     string    `json:"session_id"`
	SavedAt       time.Time `json:"saved_at"`
	Signatures    []string  `json:"completed_tasks"`
}

// ProgressMeta is the human-readable progress summary saved next to the
// completed-task snapshot.
type ProgressMeta struct {
	SessionID      string    `json:"session_id"`
	SavedAt        time.Time `json:"saved_at"`
	CompletedTasks int       `json:"completed_tasks"`
	TotalResults   int       `json:"total_results"`
	TotalTasks     int       `json:"total_tasks,omitempty"`
}
