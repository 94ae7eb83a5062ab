// Package activity keeps a bounded in-memory window of recent operational
// messages, mirrored durably through the store so the window survives
// restarts.
package activity

import (
	"context"
	"log"
	"sync"
	"time"

	"glownest/models"
	"glownest/storage"
)

const DefaultCacheSize = 200

type Log struct {
	mu      sync.Mutex
	store   storage.Store
	entries []models.ActivityEntry
	max     int
}

func New(store storage.Store, cacheSize int) *Log {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Log{store: store, max: cacheSize}
}

// Rehydrate fills the cache from the durable log, newest entries last.
// Called once on startup before any writes.
func (l *Log) Rehydrate(ctx context.Context) error {
	entries, err := l.store.RecentActivity(ctx, l.max)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Record appends to the cache and writes through to the store. A store
// failure is logged and swallowed: activity logging never fails a caller.
func (l *Log) Record(ctx context.Context, level models.LogLevel, message string) {
	entry := models.ActivityEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}

	if err := l.store.AppendActivity(ctx, &entry); err != nil {
		log.Printf("activity: write-through failed: %v", err)
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()
}

func (l *Log) Info(ctx context.Context, message string) {
	l.Record(ctx, models.LogLevelInfo, message)
}

func (l *Log) Warn(ctx context.Context, message string) {
	l.Record(ctx, models.LogLevelWarn, message)
}

func (l *Log) Error(ctx context.Context, message string) {
	l.Record(ctx, models.LogLevelError, message)
}

// Recent returns up to limit cached entries, oldest first.
func (l *Log) Recent(limit int) []models.ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]models.ActivityEntry, limit)
	copy(out, l.entries[len(l.entries)-limit:])
	return out
}
