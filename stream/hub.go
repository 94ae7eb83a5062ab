// Package stream fans job events out to live observers. Delivery is
// best-effort: each subscriber gets a bounded mailbox, and one that stops
// draining is dropped rather than allowed to stall the publisher.
package stream

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"glownest/models"
)

const mailboxSize = 64

type Subscriber struct {
	hub *Hub
	ch  chan models.BroadcastEvent
}

// Events is the subscriber's mailbox. The channel closes when the
// subscriber is pruned or the hub shuts down.
func (s *Subscriber) Events() <-chan models.BroadcastEvent {
	return s.ch
}

func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{hub: h, ch: make(chan models.BroadcastEvent, mailboxSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers the event to every subscriber that still has mailbox
// room. A full mailbox means the consumer fell too far behind; it gets
// pruned so the rest keep receiving in order.
func (h *Hub) Publish(event models.BroadcastEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			delete(h.subs, sub)
			close(sub.ch)
			log.Printf("stream: dropped slow subscriber (%d buffered)", mailboxSize)
		}
	}
}

// PublishProgress publishes a typed event with a JSON payload. Marshal
// failures are a programming error and are logged, not propagated.
func (h *Hub) PublishProgress(p *models.WorkerProgress) {
	h.publishPayload(models.EventProgress, p)
}

func (h *Hub) PublishLog(level models.LogLevel, message string) {
	h.publishPayload(models.EventLog, map[string]string{
		"level":   string(level),
		"message": message,
	})
}

func (h *Hub) PublishError(message string) {
	h.publishPayload(models.EventError, map[string]string{"message": message})
}

func (h *Hub) publishPayload(eventType models.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("stream: marshal %s payload: %v", eventType, err)
		return
	}
	h.Publish(models.BroadcastEvent{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops all subscribers and rejects future ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
