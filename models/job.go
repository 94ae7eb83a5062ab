package models

import "time"

type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// JobConfig is the caller-supplied configuration for one scrape job.
type JobConfig struct {
	ListingType string `json:"listing_type"`
	MaxPages    int    `json:"max_pages"`
	DelayMS     int    `json:"delay_ms"`
	Headful     bool   `json:"headful"`
}

// Job is the normalized state of the (single) scrape job. At most one job
// has Status == running at any time.
type Job struct {
	ID                   string     `json:"id"`
	Status               JobStatus  `json:"status"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	Config               JobConfig  `json:"config"`
	CurrentPage          int        `json:"current_page"`
	TotalPages           int        `json:"total_pages"`
	CurrentItems         int        `json:"current_items"`
	TotalItems           int        `json:"total_items"`
	ProgressPercent      int        `json:"progress_percent"`
	EstimatedTimeLeftSec int        `json:"estimated_time_left_sec"`
	Message              string     `json:"message,omitempty"`
	Error                string     `json:"error,omitempty"`
	LastUpdate           *time.Time `json:"last_update,omitempty"`
}
