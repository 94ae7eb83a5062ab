package models

import "time"

// Checkpoint statuses
const (
	CheckpointRunning   = "running"
	CheckpointStopped   = "stopped"
	CheckpointCompleted = "completed"
	CheckpointError     = "error"
)

// Checkpoint is the single durable marker of the last processed position.
// It is overwritten at every page boundary and flushed before a job leaves
// the running state, so a restart resumes from the last committed page.
type Checkpoint struct {
	LastPage        int       `json:"last_page" db:"last_page"`
	LastURL         string    `json:"last_url" db:"last_url"`
	LastProcessedID string    `json:"last_processed_id" db:"last_processed_id"`
	TotalProcessed  int       `json:"total_processed" db:"total_processed"`
	LastRun         time.Time `json:"last_run" db:"last_run"`
	Status          string    `json:"status" db:"status"`
}
