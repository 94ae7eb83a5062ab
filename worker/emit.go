package worker

import (
	"encoding/json"
	"io"
	"sync"

	"glownest/models"
)

// Emitter writes the worker's event stream: one JSON object per line,
// tagged with a type, so the consuming side can classify lines cheaply.
type Emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{enc: json.NewEncoder(w)}
}

func (e *Emitter) Progress(p *models.WorkerProgress) {
	e.emit(struct {
		Type string `json:"type"`
		*models.WorkerProgress
	}{"progress", p})
}

func (e *Emitter) Item(p *models.Property) {
	e.emit(struct {
		Type     string           `json:"type"`
		Property *models.Property `json:"property"`
	}{"item", p})
}

func (e *Emitter) Log(message string) {
	e.emit(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{"log", message})
}

func (e *Emitter) emit(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enc.Encode(v)
}
