package storage

import (
	"context"
	"errors"
	"time"

	"glownest/models"
)

// UpsertOutcome is the per-item result of an upsert, so page-level item
// counts reported to observers stay accurate.
type UpsertOutcome string

const (
	OutcomeInserted         UpsertOutcome = "inserted"
	OutcomeUpdated          UpsertOutcome = "updated"
	OutcomeDuplicateSkipped UpsertOutcome = "duplicate-skipped"
	OutcomeError            UpsertOutcome = "error"
)

// ErrStreetMapped is returned by AddStreetMapping when the street already
// maps to a different district. The wrapped message names that district.
var ErrStreetMapped = errors.New("street already mapped")

// Store is the persistence boundary: properties with price history,
// the single scrape checkpoint, street reference data, and the durable
// activity log.
type Store interface {
	UpsertProperty(ctx context.Context, p *models.Property) (UpsertOutcome, error)
	GetPropertyByOlxID(ctx context.Context, olxID string) (*models.Property, error)
	GetRecentProperties(ctx context.Context, limit int, district string) ([]models.Property, error)
	GetPriceHistory(ctx context.Context, olxID string) ([]models.PricePoint, error)
	MarkInactiveExcept(ctx context.Context, seenOlxIDs []string, at time.Time) (int64, error)
	Stats(ctx context.Context) (*models.PropertyStats, error)

	SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error
	GetCheckpoint(ctx context.Context) (*models.Checkpoint, error)

	GetStreetMappings(ctx context.Context) ([]models.StreetMapping, error)
	AddStreetMapping(ctx context.Context, street, district string) error
	SeedStreetMappings(ctx context.Context, mappings []models.StreetMapping) (int, error)

	AppendActivity(ctx context.Context, entry *models.ActivityEntry) error
	RecentActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error)

	Close() error
}
