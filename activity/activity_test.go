package activity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"glownest/models"
	"glownest/storage"
)

func newLog(t *testing.T, cacheSize int) (*Log, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "activity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, cacheSize), store
}

func TestRecordBoundsCache(t *testing.T) {
	l, _ := newLog(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.Info(ctx, fmt.Sprintf("event %d", i))
	}

	recent := l.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("cache holds %d entries, want 3", len(recent))
	}
	if recent[0].Message != "event 2" || recent[2].Message != "event 4" {
		t.Fatalf("cache window = %q..%q, want event 2..event 4", recent[0].Message, recent[2].Message)
	}
}

func TestRehydrateRestoresWindow(t *testing.T) {
	l, store := newLog(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.Warn(ctx, fmt.Sprintf("event %d", i))
	}

	// Fresh log over the same store, as after a restart.
	restarted := New(store, 3)
	if err := restarted.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	recent := restarted.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("rehydrated %d entries, want 3", len(recent))
	}
	if recent[2].Message != "event 4" {
		t.Fatalf("newest rehydrated entry = %q, want event 4", recent[2].Message)
	}
	if recent[2].Level != models.LogLevelWarn {
		t.Fatalf("level = %s, want warn", recent[2].Level)
	}
}

type failingStore struct {
	storage.Store
}

func (f *failingStore) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	return errors.New("disk full")
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	_, real := newLog(t, 10)
	l := New(&failingStore{Store: real}, 10)
	ctx := context.Background()

	l.Error(ctx, "still cached")

	recent := l.Recent(0)
	if len(recent) != 1 || recent[0].Message != "still cached" {
		t.Fatalf("recent = %+v, want the entry cached despite the store failure", recent)
	}
}
