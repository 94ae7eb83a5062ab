package scraper

import (
	"encoding/json"
	"strings"

	"glownest/models"
)

// The worker writes one event per stdout line. Structured lines are JSON
// objects tagged with "type"; anything else is a plain diagnostic line.
type lineKind int

const (
	lineEmpty lineKind = iota
	lineProgress
	lineItem
	lineLog
	lineMalformed
)

type workerLine struct {
	kind     lineKind
	progress *models.WorkerProgress
	property *models.Property
	text     string
}

// parseLine classifies one raw stdout line. A line that looks structured
// but does not parse comes back as malformed; the caller logs and moves on.
func parseLine(raw string) workerLine {
	line := strings.TrimSpace(raw)
	if line == "" {
		return workerLine{kind: lineEmpty}
	}
	if !strings.HasPrefix(line, "{") {
		return workerLine{kind: lineLog, text: line}
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(line), &envelope); err != nil {
		return workerLine{kind: lineMalformed, text: line}
	}

	switch envelope.Type {
	case "progress":
		var p models.WorkerProgress
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return workerLine{kind: lineMalformed, text: line}
		}
		return workerLine{kind: lineProgress, progress: &p}

	case "item":
		var wrapper struct {
			Property *models.Property `json:"property"`
		}
		if err := json.Unmarshal([]byte(line), &wrapper); err != nil || wrapper.Property == nil {
			return workerLine{kind: lineMalformed, text: line}
		}
		return workerLine{kind: lineItem, property: wrapper.Property}

	case "log":
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return workerLine{kind: lineMalformed, text: line}
		}
		return workerLine{kind: lineLog, text: msg.Message}

	default:
		return workerLine{kind: lineMalformed, text: line}
	}
}
