package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"glownest/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// The store is shared by the aggregator goroutine and HTTP handlers;
	// a single connection sidesteps SQLITE_BUSY on overlapping writes.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY,
		olx_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		price_usd REAL,
		currency TEXT DEFAULT 'USD',
		area REAL,
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
		first_seen_at DATETIME,
		last_seen_at DATETIME,
		scraped_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY,
		property_id INTEGER NOT NULL,
		olx_id TEXT NOT NULL,
		price_usd REAL,
		recorded_at DATETIME,
		FOREIGN KEY (property_id) REFERENCES properties(id)
	);

	CREATE TABLE IF NOT EXISTS scraping_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_page INTEGER DEFAULT 0,
		last_url TEXT,
		last_processed_id TEXT,
		total_processed INTEGER DEFAULT 0,
		last_run DATETIME,
		status TEXT DEFAULT 'idle'
	);

	CREATE TABLE IF NOT EXISTS street_district_map (
		id INTEGER PRIMARY KEY,
		street TEXT UNIQUE NOT NULL,
		district TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY,
		timestamp DATETIME,
		level TEXT,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_properties_active ON properties(is_active);
	CREATE INDEX IF NOT EXISTS idx_properties_district ON properties(district);
	CREATE INDEX IF NOT EXISTS idx_properties_dedup ON properties(title, area, street, price_usd);
	CREATE INDEX IF NOT EXISTS idx_price_history_olx ON price_history(olx_id, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_activity_ts ON activity_log(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// priceEpsilon keeps float jitter from producing phantom price changes.
const priceEpsilon = 0.005

// UpsertProperty runs the dedup check, insert/update, and price-history
// append as one transaction so a crash cannot leave orphaned history rows.
func (s *SQLiteStore) UpsertProperty(ctx context.Context, p *models.Property) (UpsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeError, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var id int64
	var oldPrice float64
	var firstSeen time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT id, COALESCE(price_usd, 0), first_seen_at FROM properties WHERE olx_id = ?`,
		p.OlxID).Scan(&id, &oldPrice, &firstSeen)

	switch {
	case err == nil:
		p.ID = id
		p.FirstSeenAt = firstSeen
		p.LastSeenAt = now
		_, err = tx.ExecContext(ctx, `
			UPDATE properties SET
				title = ?, price_usd = ?, currency = ?, area = ?, rooms = ?,
				floor = ?, total_floors = ?, district = ?, street = ?,
				full_location = ?, description = ?, seller_type = ?,
				listing_type = ?, listing_url = ?, image_url = ?,
				district_source = ?, is_promoted = ?, is_active = TRUE,
				last_seen_at = ?, scraped_at = ?
			WHERE id = ?`,
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
			if err := insertPricePoint(ctx, tx, id, p.OlxID, p.PriceUSD, now); err != nil {
				return OutcomeError, err
			}
		}

		if err := tx.Commit(); err != nil {
			return OutcomeError, err
		}
		return OutcomeUpdated, nil

	case err == sql.ErrNoRows:
		// Fall back to the near-duplicate tuple: the same physical listing
		// can resurface under a fresh olx_id across runs.
		var dupID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM properties
			WHERE title = ? AND area = ? AND street = ? AND price_usd = ?
			LIMIT 1`,
			p.Title, p.Area, p.Street, p.PriceUSD).Scan(&dupID)
		if err == nil {
			if err := tx.Commit(); err != nil {
				return OutcomeError, err
			}
			return OutcomeDuplicateSkipped, nil
		}
		if err != sql.ErrNoRows {
			return OutcomeError, fmt.Errorf("dedup check %s: %w", p.OlxID, err)
		}

		p.FirstSeenAt = now
		p.LastSeenAt = now
		res, err := tx.ExecContext(ctx, `
			INSERT INTO properties (
				olx_id, title, price_usd, currency, area, rooms, floor,
				total_floors, district, street, full_location, description,
				seller_type, listing_type, listing_url, image_url,
				district_source, is_promoted, is_active,
				first_seen_at, last_seen_at, scraped_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?, ?)`,
			p.OlxID, p.Title, p.PriceUSD, p.Currency, p.Area, p.Rooms, p.Floor,
			p.TotalFloors, p.District, p.Street, p.FullLocation, p.Description,
			p.SellerType, p.ListingType, p.ListingURL, p.ImageURL,
			p.DistrictSource, p.IsPromoted,
			now, now, now)
		if err != nil {
			return OutcomeError, fmt.Errorf("insert property %s: %w", p.OlxID, err)
		}

		newID, err := res.LastInsertId()
		if err != nil {
			return OutcomeError, err
		}
		p.ID = newID

		if err := insertPricePoint(ctx, tx, newID, p.OlxID, p.PriceUSD, now); err != nil {
			return OutcomeError, err
		}

		if err := tx.Commit(); err != nil {
			return OutcomeError, err
		}
		return OutcomeInserted, nil

	default:
		return OutcomeError, fmt.Errorf("lookup property %s: %w", p.OlxID, err)
	}
}

func insertPricePoint(ctx context.Context, tx *sql.Tx, propertyID int64, olxID string, price float64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO price_history (property_id, olx_id, price_usd, recorded_at)
		VALUES (?, ?, ?, ?)`,
		propertyID, olxID, price, at)
	if err != nil {
		return fmt.Errorf("insert price point %s: %w", olxID, err)
	}
	return nil
}

const propertyColumns = `id, olx_id, title, COALESCE(price_usd, 0), currency, COALESCE(area, 0),
	COALESCE(rooms, 0), COALESCE(floor, 0), COALESCE(total_floors, 0),
	COALESCE(district, ''), COALESCE(street, ''), COALESCE(full_location, ''),
	COALESCE(description, ''), seller_type, COALESCE(listing_type, ''),
	COALESCE(listing_url, ''), COALESCE(image_url, ''), district_source,
	is_promoted, is_active, first_seen_at, last_seen_at, scraped_at`

func scanProperty(row interface{ Scan(...any) error }) (*models.Property, error) {
	var p models.Property
	err := row.Scan(&p.ID, &p.OlxID, &p.Title, &p.PriceUSD, &p.Currency, &p.Area,
		&p.Rooms, &p.Floor, &p.TotalFloors,
		&p.District, &p.Street, &p.FullLocation,
		&p.Description, &p.SellerType, &p.ListingType,
		&p.ListingURL, &p.ImageURL, &p.DistrictSource,
		&p.IsPromoted, &p.IsActive, &p.FirstSeenAt, &p.LastSeenAt, &p.ScrapedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) GetPropertyByOlxID(ctx context.Context, olxID string) (*models.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE olx_id = ?`, olxID)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) GetRecentProperties(ctx context.Context, limit int, district string) ([]models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE is_active = TRUE`
	args := []any{}
	if district != "" {
		query += ` AND district = ?`
		args = append(args, district)
	}
	query += ` ORDER BY scraped_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) GetPriceHistory(ctx context.Context, olxID string) ([]models.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, property_id, olx_id, COALESCE(price_usd, 0), recorded_at
		FROM price_history WHERE olx_id = ? ORDER BY recorded_at`, olxID)
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

// MarkInactiveExcept soft-deletes active properties that were not seen in
// the given session. Properties never get hard-deleted.
func (s *SQLiteStore) MarkInactiveExcept(ctx context.Context, seenOlxIDs []string, at time.Time) (int64, error) {
	if len(seenOlxIDs) == 0 {
		res, err := s.db.ExecContext(ctx,
			`UPDATE properties SET is_active = FALSE, last_seen_at = ? WHERE is_active = TRUE`, at)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	placeholders := strings.Repeat("?,", len(seenOlxIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{at}
	for _, id := range seenOlxIDs {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE properties SET is_active = FALSE, last_seen_at = ?
		WHERE is_active = TRUE AND olx_id NOT IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Stats(ctx context.Context) (*models.PropertyStats, error) {
	stats := &models.PropertyStats{}
	var lastUpdate sql.NullString

	err := s.db.QueryRowContext(ctx, `
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
	stats.LastUpdate = lastUpdate.String
	return stats, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraping_state (id, last_page, last_url, last_processed_id, total_processed, last_run, status)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_page = excluded.last_page,
			last_url = excluded.last_url,
			last_processed_id = excluded.last_processed_id,
			total_processed = excluded.total_processed,
			last_run = excluded.last_run,
			status = excluded.status`,
		cp.LastPage, cp.LastURL, cp.LastProcessedID, cp.TotalProcessed, cp.LastRun, cp.Status)
	return err
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var lastURL, lastID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT last_page, last_url, last_processed_id, total_processed, last_run, status
		FROM scraping_state WHERE id = 1`).Scan(
		&cp.LastPage, &lastURL, &lastID, &cp.TotalProcessed, &cp.LastRun, &cp.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp.LastURL = lastURL.String
	cp.LastProcessedID = lastID.String
	return &cp, nil
}

func (s *SQLiteStore) GetStreetMappings(ctx context.Context) ([]models.StreetMapping, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *SQLiteStore) AddStreetMapping(ctx context.Context, street, district string) error {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT district FROM street_district_map WHERE street = ?`, street).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: %q is already in district %q", ErrStreetMapped, street, existing)
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO street_district_map (street, district) VALUES (?, ?)`, street, district)
	return err
}

// SeedStreetMappings inserts reference mappings that are not present yet,
// never overwriting rows added through the API.
func (s *SQLiteStore) SeedStreetMappings(ctx context.Context, mappings []models.StreetMapping) (int, error) {
	inserted := 0
	for _, m := range mappings {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO street_district_map (street, district) VALUES (?, ?)`,
			m.Street, m.District)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

func (s *SQLiteStore) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (timestamp, level, message) VALUES (?, ?, ?)`,
		entry.Timestamp, entry.Level, entry.Message)
	if err != nil {
		return err
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) RecentActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, level, message FROM (
			SELECT id, timestamp, level, message FROM activity_log
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
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
