package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventError    EventType = "error"
)

// BroadcastEvent is what observers receive on the live stream. Ephemeral;
// the Job snapshot and the activity log are the durable sources of truth.
type BroadcastEvent struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// WorkerProgress is the structured progress line the worker prints to
// stdout. One line per parsed page plus a final line at 100%.
type WorkerProgress struct {
	CurrentPage          int    `json:"current_page"`
	TotalPages           int    `json:"total_pages"`
	PageItems            int    `json:"page_items"`
	CurrentItems         int    `json:"current_items"`
	TotalItems           int    `json:"total_items"`
	ProgressPercent      int    `json:"progress_percent"`
	Message              string `json:"message"`
	EstimatedTimeLeftSec int    `json:"estimated_time_left"`
	PageCompleted        bool   `json:"page_completed"`
	PageURL              string `json:"page_url,omitempty"`
}
