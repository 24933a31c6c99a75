package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brich-labs/marketwatch/internal/model"
)

// ErrSnapshotFinalized is returned when observations are appended to a
// snapshot that has already been published.
var ErrSnapshotFinalized = eris.New("store: snapshot already finalized")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS categories (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL UNIQUE,
	external_code TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	category_id  INTEGER NOT NULL REFERENCES categories(id),
	captured_at  DATETIME NOT NULL,
	source_ref   TEXT,
	finalized_at DATETIME,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (category_id, captured_at)
);

CREATE TABLE IF NOT EXISTS product_observations (
	snapshot_id    TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	vendor_item_id TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	rank_position  INTEGER,
	current_price  INTEGER,
	original_price INTEGER,
	discount_rate  REAL,
	rating         REAL,
	review_count   INTEGER,
	in_stock       INTEGER,
	url            TEXT,
	PRIMARY KEY (snapshot_id, vendor_item_id)
);

CREATE TABLE IF NOT EXISTS matching_reference (
	vendor_item_id    TEXT PRIMARY KEY,
	first_category    TEXT NOT NULL DEFAULT '',
	first_name        TEXT NOT NULL DEFAULT '',
	first_seen_at     DATETIME NOT NULL,
	barcode           TEXT,
	part_number       TEXT,
	tier              TEXT NOT NULL DEFAULT 'unverified',
	manually_verified INTEGER NOT NULL DEFAULT 0,
	notes             TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS change_events (
	id             TEXT PRIMARY KEY,
	category_id    INTEGER NOT NULL REFERENCES categories(id),
	vendor_item_id TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	old_value      INTEGER,
	new_value      INTEGER,
	magnitude      INTEGER NOT NULL DEFAULT 0,
	occurred_at    DATETIME NOT NULL,
	description    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS catalog_items (
	vendor_item_id TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	barcode        TEXT,
	part_number    TEXT,
	price          INTEGER NOT NULL DEFAULT 0,
	stock          INTEGER NOT NULL DEFAULT 0,
	stock_status   TEXT NOT NULL DEFAULT 'sold_out',
	sales_quantity INTEGER NOT NULL DEFAULT 0,
	revenue        INTEGER NOT NULL DEFAULT 0,
	refreshed_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	stage          TEXT NOT NULL,
	category       TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	started_at     DATETIME NOT NULL,
	completed_at   DATETIME,
	rows_processed INTEGER NOT NULL DEFAULT 0,
	error          TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_category_captured ON snapshots(category_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_observations_vendor ON product_observations(vendor_item_id);
CREATE INDEX IF NOT EXISTS idx_events_category_time ON change_events(category_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_vendor ON change_events(vendor_item_id);
CREATE INDEX IF NOT EXISTS idx_catalog_barcode ON catalog_items(barcode);
CREATE INDEX IF NOT EXISTS idx_ingest_log_stage ON ingest_log(stage, category, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Categories

func (s *SQLiteStore) EnsureCategory(ctx context.Context, name, externalCode string) (*model.Category, error) {
	// Concurrent workers may race on the same new name; the insert tolerates
	// an existing row and the read below is authoritative.
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, external_code, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, nullString(externalCode), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert category %s", name)
	}
	return s.GetCategory(ctx, name)
}

func (s *SQLiteStore) GetCategory(ctx context.Context, name string) (*model.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, external_code, created_at FROM categories WHERE name = ? OR external_code = ?`,
		name, name,
	)
	var c model.Category
	var code sql.NullString
	err := row.Scan(&c.ID, &c.Name, &code, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrCategoryNotFound, "%s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get category")
	}
	c.ExternalCode = code.String
	return &c, nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, external_code, created_at FROM categories ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list categories")
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		var code sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &code, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		c.ExternalCode = code.String
		cats = append(cats, c)
	}
	return cats, eris.Wrap(rows.Err(), "sqlite: list categories iterate")
}

// Snapshots

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, categoryID int64, capturedAt time.Time, sourceRef string, overwrite bool) (*model.Snapshot, error) {
	capturedAt = capturedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create snapshot")
	}
	defer tx.Rollback()

	var catExists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE id = ?`, categoryID,
	).Scan(&catExists); err != nil {
		return nil, eris.Wrap(err, "sqlite: check category")
	}
	if catExists == 0 {
		return nil, eris.Wrapf(ErrCategoryNotFound, "id %d", categoryID)
	}

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM snapshots WHERE category_id = ? AND captured_at = ?`,
		categoryID, capturedAt,
	).Scan(&existingID)
	switch {
	case err == nil:
		if !overwrite {
			return nil, eris.Wrapf(ErrDuplicateSnapshot, "category %d at %s", categoryID, capturedAt.Format(time.RFC3339))
		}
		// Observations go with the snapshot (ON DELETE CASCADE).
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, existingID); err != nil {
			return nil, eris.Wrap(err, "sqlite: delete overwritten snapshot")
		}
	case err != sql.ErrNoRows:
		return nil, eris.Wrap(err, "sqlite: check duplicate snapshot")
	}

	snap := &model.Snapshot{
		ID:         uuid.New().String(),
		CategoryID: categoryID,
		CapturedAt: capturedAt,
		SourceRef:  sourceRef,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, category_id, captured_at, source_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.CategoryID, snap.CapturedAt, nullString(snap.SourceRef), snap.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit create snapshot")
	}
	return snap, nil
}

func (s *SQLiteStore) AppendObservations(ctx context.Context, snapshotID string, obs []model.ProductObservation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append observations")
	}
	defer tx.Rollback()

	var finalized sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT finalized_at FROM snapshots WHERE id = ?`, snapshotID,
	).Scan(&finalized)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrSnapshotNotFound, "%s", snapshotID)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: check snapshot")
	}
	if finalized.Valid {
		return eris.Wrapf(ErrSnapshotFinalized, "%s", snapshotID)
	}

	for _, o := range obs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_observations
				(snapshot_id, vendor_item_id, name, rank_position, current_price,
				 original_price, discount_rate, rating, review_count, in_stock, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (snapshot_id, vendor_item_id) DO UPDATE SET
				name = excluded.name,
				rank_position = excluded.rank_position,
				current_price = excluded.current_price,
				original_price = excluded.original_price,
				discount_rate = excluded.discount_rate,
				rating = excluded.rating,
				review_count = excluded.review_count,
				in_stock = excluded.in_stock,
				url = excluded.url`,
			snapshotID, o.VendorItemID, o.Name,
			nullIntPtr(o.Rank), nullInt64Ptr(o.CurrentPrice), nullInt64Ptr(o.OriginalPrice),
			nullFloatPtr(o.DiscountRate), nullFloatPtr(o.Rating), nullIntPtr(o.ReviewCount),
			nullBoolPtr(o.InStock), nullString(o.URL),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert observation %s/%s", snapshotID, o.VendorItemID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append observations")
}

func (s *SQLiteStore) FinalizeSnapshot(ctx context.Context, snapshotID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET finalized_at = ? WHERE id = ? AND finalized_at IS NULL`,
		time.Now().UTC(), snapshotID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize snapshot %s", snapshotID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: finalize rows affected")
	}
	if n == 0 {
		// Either missing or already finalized; the latter is a no-op.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM snapshots WHERE id = ?`, snapshotID,
		).Scan(&exists); err != nil {
			return eris.Wrap(err, "sqlite: finalize check")
		}
		if exists == 0 {
			return eris.Wrapf(ErrSnapshotNotFound, "%s", snapshotID)
		}
	}
	return nil
}

func (s *SQLiteStore) LatestSnapshots(ctx context.Context, categoryID int64, n int) ([]model.Snapshot, error) {
	if n <= 0 {
		n = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, captured_at, source_ref, finalized_at, created_at
		FROM snapshots
		WHERE category_id = ? AND finalized_at IS NOT NULL
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`,
		categoryID, n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshots")
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *SQLiteStore) SnapshotsByDate(ctx context.Context, categoryID int64, day time.Time) ([]model.Snapshot, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, captured_at, source_ref, finalized_at, created_at
		FROM snapshots
		WHERE category_id = ? AND finalized_at IS NOT NULL
		  AND captured_at >= ? AND captured_at < ?
		ORDER BY captured_at ASC, id ASC`,
		categoryID, start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshots by date")
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *SQLiteStore) Observations(ctx context.Context, snapshotID string) ([]model.ProductObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, vendor_item_id, name, rank_position, current_price,
		       original_price, discount_rate, rating, review_count, in_stock, url
		FROM product_observations
		WHERE snapshot_id = ?
		ORDER BY rank_position IS NULL, rank_position ASC`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: observations")
	}
	defer rows.Close()

	var obs []model.ProductObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		obs = append(obs, *o)
	}
	return obs, eris.Wrap(rows.Err(), "sqlite: observations iterate")
}

// Matching references

func (s *SQLiteStore) GetReference(ctx context.Context, vendorItemID string) (*model.MatchingReference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT vendor_item_id, first_category, first_name, first_seen_at,
		       barcode, part_number, tier, manually_verified, notes,
		       created_at, updated_at
		FROM matching_reference WHERE vendor_item_id = ?`,
		vendorItemID,
	)
	var r model.MatchingReference
	var barcode, partNumber sql.NullString
	err := row.Scan(
		&r.VendorItemID, &r.FirstCategory, &r.FirstName, &r.FirstSeenAt,
		&barcode, &partNumber, &r.Tier, &r.ManuallyVerified, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrReferenceNotFound, "%s", vendorItemID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get reference")
	}
	r.Barcode = ptrString(barcode)
	r.PartNumber = ptrString(partNumber)
	return &r, nil
}

func (s *SQLiteStore) PutReference(ctx context.Context, ref *model.MatchingReference) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matching_reference
			(vendor_item_id, first_category, first_name, first_seen_at,
			 barcode, part_number, tier, manually_verified, notes,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (vendor_item_id) DO UPDATE SET
			barcode = excluded.barcode,
			part_number = excluded.part_number,
			tier = excluded.tier,
			manually_verified = excluded.manually_verified,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		ref.VendorItemID, ref.FirstCategory, ref.FirstName, ref.FirstSeenAt,
		nullStringPtr(ref.Barcode), nullStringPtr(ref.PartNumber), string(ref.Tier),
		ref.ManuallyVerified, ref.Notes, ref.CreatedAt, ref.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: put reference %s", ref.VendorItemID)
}

func (s *SQLiteStore) ListReferences(ctx context.Context, onlyMatched bool) ([]model.MatchingReference, error) {
	query := `
		SELECT vendor_item_id, first_category, first_name, first_seen_at,
		       barcode, part_number, tier, manually_verified, notes,
		       created_at, updated_at
		FROM matching_reference`
	if onlyMatched {
		query += ` WHERE barcode IS NOT NULL OR part_number IS NOT NULL`
	}
	query += ` ORDER BY vendor_item_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list references")
	}
	defer rows.Close()

	var refs []model.MatchingReference
	for rows.Next() {
		var r model.MatchingReference
		var barcode, partNumber sql.NullString
		err := rows.Scan(
			&r.VendorItemID, &r.FirstCategory, &r.FirstName, &r.FirstSeenAt,
			&barcode, &partNumber, &r.Tier, &r.ManuallyVerified, &r.Notes,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reference")
		}
		r.Barcode = ptrString(barcode)
		r.PartNumber = ptrString(partNumber)
		refs = append(refs, r)
	}
	return refs, eris.Wrap(rows.Err(), "sqlite: list references iterate")
}

// Change events

func (s *SQLiteStore) InsertEvents(ctx context.Context, events []model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert events")
	}
	defer tx.Rollback()

	for _, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO change_events
				(id, category_id, vendor_item_id, event_type, old_value, new_value,
				 magnitude, occurred_at, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, e.CategoryID, e.VendorItemID, string(e.Type),
			nullInt64Ptr(e.OldValue), nullInt64Ptr(e.NewValue),
			e.Magnitude, e.OccurredAt.UTC(), e.Description,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert event %s/%s", e.VendorItemID, e.Type)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert events")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.ChangeEvent, error) {
	query := `
		SELECT id, category_id, vendor_item_id, event_type, old_value, new_value,
		       magnitude, occurred_at, description
		FROM change_events WHERE 1=1`
	var args []any

	if filter.CategoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if filter.VendorItemID != "" {
		query += ` AND vendor_item_id = ?`
		args = append(args, filter.VendorItemID)
	}
	if filter.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY occurred_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.ChangeEvent
	for rows.Next() {
		var e model.ChangeEvent
		var oldVal, newVal sql.NullInt64
		err := rows.Scan(
			&e.ID, &e.CategoryID, &e.VendorItemID, &e.Type,
			&oldVal, &newVal, &e.Magnitude, &e.OccurredAt, &e.Description,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		e.OldValue = ptrInt64(oldVal)
		e.NewValue = ptrInt64(newVal)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

// Partner catalog

func (s *SQLiteStore) ReplaceCatalog(ctx context.Context, items []model.CatalogItem) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace catalog")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_items`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear catalog")
	}

	var n int64
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_items
				(vendor_item_id, name, barcode, part_number, price, stock,
				 stock_status, sales_quantity, revenue, refreshed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.VendorItemID, item.Name,
			nullStringPtr(item.Barcode), nullStringPtr(item.PartNumber),
			item.Price, item.Stock, string(item.StockStatus),
			item.SalesQuantity, item.Revenue, item.RefreshedAt.UTC(),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert catalog item %s", item.VendorItemID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace catalog")
	}
	return n, nil
}

func (s *SQLiteStore) ListCatalog(ctx context.Context) ([]model.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vendor_item_id, name, barcode, part_number, price, stock,
		       stock_status, sales_quantity, revenue, refreshed_at
		FROM catalog_items
		ORDER BY sales_quantity DESC, vendor_item_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catalog")
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		var item model.CatalogItem
		var barcode, partNumber sql.NullString
		err := rows.Scan(
			&item.VendorItemID, &item.Name, &barcode, &partNumber,
			&item.Price, &item.Stock, &item.StockStatus,
			&item.SalesQuantity, &item.Revenue, &item.RefreshedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog item")
		}
		item.Barcode = ptrString(barcode)
		item.PartNumber = ptrString(partNumber)
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list catalog iterate")
}

// Ingest checkpointing

func (s *SQLiteStore) StartIngest(ctx context.Context, stage, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_log (stage, category, status, started_at) VALUES (?, ?, ?, ?)`,
		stage, category, string(IngestStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start ingest %s/%s", stage, category)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: ingest last insert id")
}

func (s *SQLiteStore) CompleteIngest(ctx context.Context, id int64, rows int64, ingestErr error) error {
	status := IngestStatusComplete
	var errMsg sql.NullString
	if ingestErr != nil {
		status = IngestStatusFailed
		errMsg = sql.NullString{String: ingestErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_log SET status = ?, completed_at = ?, rows_processed = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), rows, errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete ingest %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: complete ingest rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: ingest log entry not found: %d", id)
	}
	return nil
}

func (s *SQLiteStore) LastIngestSuccess(ctx context.Context, stage, category string) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at FROM ingest_log
		WHERE stage = ? AND category = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`,
		stage, category, string(IngestStatusComplete),
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last ingest success %s/%s", stage, category)
	}
	return &t, nil
}

// Audit

// StaleSnapshots returns snapshots that were never finalized and are older
// than cutoff. They usually mean an ingest run died mid-write.
func (s *SQLiteStore) StaleSnapshots(ctx context.Context, cutoff time.Time) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, captured_at, source_ref, finalized_at, created_at
		FROM snapshots
		WHERE finalized_at IS NULL AND created_at < ?
		ORDER BY created_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stale snapshots")
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *SQLiteStore) OrphanObservationCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM product_observations o
		LEFT JOIN snapshots s ON s.id = o.snapshot_id
		WHERE s.id IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: orphan observations")
	}
	return n, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshots(rows *sql.Rows) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	for rows.Next() {
		var s model.Snapshot
		var sourceRef sql.NullString
		var finalized sql.NullTime
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.CapturedAt, &sourceRef, &finalized, &s.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		s.SourceRef = sourceRef.String
		if finalized.Valid {
			t := finalized.Time
			s.FinalizedAt = &t
		}
		snaps = append(snaps, s)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: snapshots iterate")
}

func scanObservation(row scannable) (*model.ProductObservation, error) {
	var o model.ProductObservation
	var rank, reviewCount sql.NullInt64
	var currentPrice, originalPrice sql.NullInt64
	var discountRate, rating sql.NullFloat64
	var inStock sql.NullBool
	var url sql.NullString

	err := row.Scan(
		&o.SnapshotID, &o.VendorItemID, &o.Name, &rank, &currentPrice,
		&originalPrice, &discountRate, &rating, &reviewCount, &inStock, &url,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan observation")
	}
	o.Rank = ptrIntFromInt64(rank)
	o.CurrentPrice = ptrInt64(currentPrice)
	o.OriginalPrice = ptrInt64(originalPrice)
	o.DiscountRate = ptrFloat(discountRate)
	o.Rating = ptrFloat(rating)
	o.ReviewCount = ptrIntFromInt64(reviewCount)
	o.InStock = ptrBool(inStock)
	o.URL = url.String
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIntPtr(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloatPtr(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBoolPtr(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func ptrIntFromInt64(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func ptrFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func ptrBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
