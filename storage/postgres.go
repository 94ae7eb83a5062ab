package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"glownest/models"
)

// PostgresStore is the pgx-backed Store, selected when DATABASE_URL is set.
// Behavior matches SQLiteStore; only the SQL dialect differs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id BIGSERIAL PRIMARY KEY,
		olx_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		price_usd DOUBLE PRECISION,
		currency TEXT DEFAULT 'USD',
		area DOUBLE PRECISION,
		rooms INTEGER,
		floor INTEGER,
		total_floors INTEGER,
		district TEXT,
		street TEXT,
		full_location TEXT,
		description TEXT,
		seller_type TEXT DEFAULT 'unknown',
		listing_type TEXT,
		listing_url TEXT,
		image_url TEXT,
		district_source TEXT DEFAULT 'unknown',
		is_promoted BOOLEAN DEFAULT FALSE,
		is_active BOOLEAN DEFAULT TRUE,
		first_seen_at TIMESTAMPTZ,
		last_seen_at TIMESTAMPTZ,
		scraped_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		property_id BIGINT NOT NULL REFERENCES properties(id),
		olx_id TEXT NOT NULL,
		price_usd DOUBLE PRECISION,
		recorded_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS scraping_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_page INTEGER DEFAULT 0,
		last_url TEXT,
		last_processed_id TEXT,
		total_processed INTEGER DEFAULT 0,
		last_run TIMESTAMPTZ,
		status TEXT DEFAULT 'idle'
	);

	CREATE TABLE IF NOT EXISTS street_district_map (
		id BIGSERIAL PRIMARY KEY,
		street TEXT UNIQUE NOT NULL,
		district TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS activity_log (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ,
		level TEXT,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_properties_active ON properties(is_active);
	CREATE INDEX IF NOT EXISTS idx_properties_district ON properties(district);
	CREATE INDEX IF NOT EXISTS idx_properties_dedup ON properties(title, area, street, price_usd);
	CREATE INDEX IF NOT EXISTS idx_price_history_olx ON price_history(olx_id, recorded_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) UpsertProperty(ctx context.Context, p *models.Property) (UpsertOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OutcomeError, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	var id int64
	var oldPrice float64
	var firstSeen time.Time
	err = tx.QueryRow(ctx,
		`SELECT id, COALESCE(price_usd, 0), first_seen_at FROM properties WHERE olx_id = $1`,
		p.OlxID).Scan(&id, &oldPrice, &firstSeen)

	switch {
	case err == nil:
		p.ID = id
		p.FirstSeenAt = firstSeen
		p.LastSeenAt = now
		_, err = tx.Exec(ctx, `
			UPDATE properties SET
				title = $1, price_usd = $2, currency = $3, area = $4, rooms = $5,
				floor = $6, total_floors = $7, district = $8, street = $9,
				full_location = $10, description = $11, seller_type = $12,
				listing_type = $13, listing_url = $14, image_url = $15,
				district_source = $16, is_promoted = $17, is_active = TRUE,
				last_seen_at = $18, scraped_at = $19
			WHERE id = $20`,
			p.Title, p.PriceUSD, p.Currency, p.Area, p.Rooms,
			p.Floor, p.TotalFloors, p.District, p.Street,
			p.FullLocation, p.Description, p.SellerType,
			p.ListingType, p.ListingURL, p.ImageURL,
			p.DistrictSource, p.IsPromoted,
			now, now, id)
		if err != nil {
			return OutcomeError, fmt.Errorf("update property %s: %w", p.OlxID, err)
		}

		if math.Abs(p.PriceUSD-oldPrice) > priceEpsilon {
			_, err = tx.Exec(ctx, `
				INSERT INTO price_history (property_id, olx_id, price_usd, recorded_at)
				VALUES ($1, $2, $3, $4)`, id, p.OlxID, p.PriceUSD, now)
			if err != nil {
				return OutcomeError, fmt.Errorf("insert price point %s: %w", p.OlxID, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return OutcomeError, err
		}
		return OutcomeUpdated, nil

	case err == pgx.ErrNoRows:
		var dupID int64
		err = tx.QueryRow(ctx, `
			SELECT id FROM properties
			WHERE title = $1 AND area = $2 AND street = $3 AND price_usd = $4
			LIMIT 1`,
			p.Title, p.Area, p.Street, p.PriceUSD).Scan(&dupID)
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return OutcomeError, err
			}
			return OutcomeDuplicateSkipped, nil
		}
		if err != pgx.ErrNoRows {
			return OutcomeError, fmt.Errorf("dedup check %s: %w", p.OlxID, err)
		}

		p.FirstSeenAt = now
		p.LastSeenAt = now
		err = tx.QueryRow(ctx, `
			INSERT INTO properties (
				olx_id, title, price_usd, currency, area, rooms, floor,
				total_floors, district, street, full_location, description,
				seller_type, listing_type, listing_url, image_url,
				district_source, is_promoted, is_active,
				first_seen_at, last_seen_at, scraped_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, TRUE, $19, $20, $21)
			RETURNING id`,
			p.OlxID, p.Title, p.PriceUSD, p.Currency, p.Area, p.Rooms, p.Floor,
			p.TotalFloors, p.District, p.Street, p.FullLocation, p.Description,
			p.SellerType, p.ListingType, p.ListingURL, p.ImageURL,
			p.DistrictSource, p.IsPromoted,
			now, now, now).Scan(&p.ID)
		if err != nil {
			return OutcomeError, fmt.Errorf("insert property %s: %w", p.OlxID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO price_history (property_id, olx_id, price_usd, recorded_at)
			VALUES ($1, $2, $3, $4)`, p.ID, p.OlxID, p.PriceUSD, now)
		if err != nil {
			return OutcomeError, fmt.Errorf("insert price point %s: %w", p.OlxID, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return OutcomeError, err
		}
		return OutcomeInserted, nil

	default:
		return OutcomeError, fmt.Errorf("lookup property %s: %w", p.OlxID, err)
	}
}

const pgPropertyColumns = `id, olx_id, title, COALESCE(price_usd, 0), currency, COALESCE(area, 0),
	COALESCE(rooms, 0), COALESCE(floor, 0), COALESCE(total_floors, 0),
	COALESCE(district, ''), COALESCE(street, ''), COALESCE(full_location, ''),
	COALESCE(description, ''), seller_type, COALESCE(listing_type, ''),
	COALESCE(listing_url, ''), COALESCE(image_url, ''), district_source,
	is_promoted, is_active, first_seen_at, last_seen_at, scraped_at`

func (s *PostgresStore) GetPropertyByOlxID(ctx context.Context, olxID string) (*models.Property, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgPropertyColumns+` FROM properties WHERE olx_id = $1`, olxID)
	p, err := scanProperty(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) GetRecentProperties(ctx context.Context, limit int, district string) ([]models.Property, error) {
	query := `SELECT ` + pgPropertyColumns + ` FROM properties WHERE is_active = TRUE`
	args := []any{}
	if district != "" {
		query += ` AND district = $1 ORDER BY scraped_at DESC LIMIT $2`
		args = append(args, district, limit)
	} else {
		query += ` ORDER BY scraped_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, *p)
	}
	return props, rows.Err()
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, olxID string) ([]models.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, property_id, olx_id, COALESCE(price_usd, 0), recorded_at
		FROM price_history WHERE olx_id = $1 ORDER BY recorded_at`, olxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var pt models.PricePoint
		if err := rows.Scan(&pt.ID, &pt.PropertyID, &pt.OlxID, &pt.PriceUSD, &pt.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

func (s *PostgresStore) MarkInactiveExcept(ctx context.Context, seenOlxIDs []string, at time.Time) (int64, error) {
	if len(seenOlxIDs) == 0 {
		tag, err := s.pool.Exec(ctx,
			`UPDATE properties SET is_active = FALSE, last_seen_at = $1 WHERE is_active = TRUE`, at)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE properties SET is_active = FALSE, last_seen_at = $1
		WHERE is_active = TRUE AND olx_id != ALL($2)`, at, seenOlxIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*models.PropertyStats, error) {
	stats := &models.PropertyStats{}
	var lastUpdate *time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN seller_type = 'owner' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN seller_type = 'agency' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(price_usd), 0),
			MAX(scraped_at)
		FROM properties WHERE is_active = TRUE`).Scan(
		&stats.TotalActive, &stats.OwnerCount, &stats.AgencyCount,
		&stats.AvgPriceUSD, &lastUpdate)
	if err != nil {
		return nil, err
	}
	if lastUpdate != nil {
		stats.LastUpdate = lastUpdate.Format(time.RFC3339)
	}
	return stats, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scraping_state (id, last_page, last_url, last_processed_id, total_processed, last_run, status)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			last_page = EXCLUDED.last_page,
			last_url = EXCLUDED.last_url,
			last_processed_id = EXCLUDED.last_processed_id,
			total_processed = EXCLUDED.total_processed,
			last_run = EXCLUDED.last_run,
			status = EXCLUDED.status`,
		cp.LastPage, cp.LastURL, cp.LastProcessedID, cp.TotalProcessed, cp.LastRun, cp.Status)
	return err
}

func (s *PostgresStore) GetCheckpoint(ctx context.Context) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var lastURL, lastID *string
	err := s.pool.QueryRow(ctx, `
		SELECT last_page, last_url, last_processed_id, total_processed, last_run, status
		FROM scraping_state WHERE id = 1`).Scan(
		&cp.LastPage, &lastURL, &lastID, &cp.TotalProcessed, &cp.LastRun, &cp.Status)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastURL != nil {
		cp.LastURL = *lastURL
	}
	if lastID != nil {
		cp.LastProcessedID = *lastID
	}
	return &cp, nil
}

func (s *PostgresStore) GetStreetMappings(ctx context.Context) ([]models.StreetMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT street, district FROM street_district_map ORDER BY street`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []models.StreetMapping
	for rows.Next() {
		var m models.StreetMapping
		if err := rows.Scan(&m.Street, &m.District); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (s *PostgresStore) AddStreetMapping(ctx context.Context, street, district string) error {
	var existing string
	err := s.pool.QueryRow(ctx,
		`SELECT district FROM street_district_map WHERE street = $1`, street).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: %q is already in district %q", ErrStreetMapped, street, existing)
	}
	if err != pgx.ErrNoRows {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO street_district_map (street, district) VALUES ($1, $2)`, street, district)
	return err
}

func (s *PostgresStore) SeedStreetMappings(ctx context.Context, mappings []models.StreetMapping) (int, error) {
	inserted := 0
	for _, m := range mappings {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO street_district_map (street, district) VALUES ($1, $2)
			ON CONFLICT (street) DO NOTHING`, m.Street, m.District)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO activity_log (timestamp, level, message)
		VALUES ($1, $2, $3) RETURNING id`,
		entry.Timestamp, entry.Level, entry.Message).Scan(&entry.ID)
}

func (s *PostgresStore) RecentActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, level, message FROM (
			SELECT id, timestamp, level, message FROM activity_log
			ORDER BY id DESC LIMIT $1
		) recent ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Message); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
