package store

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/brich-labs/marketwatch/internal/db"
	"github.com/brich-labs/marketwatch/internal/model"
)

// PostgresStore implements Store using pgx against PostgreSQL.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres opens a pgx pool against the given database URL.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS categories (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	external_code TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	category_id  BIGINT NOT NULL REFERENCES categories(id),
	captured_at  TIMESTAMPTZ NOT NULL,
	source_ref   TEXT,
	finalized_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (category_id, captured_at)
);

CREATE TABLE IF NOT EXISTS product_observations (
	snapshot_id    TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	vendor_item_id TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	rank_position  INT,
	current_price  BIGINT,
	original_price BIGINT,
	discount_rate  DOUBLE PRECISION,
	rating         DOUBLE PRECISION,
	review_count   INT,
	in_stock       BOOLEAN,
	url            TEXT,
	PRIMARY KEY (snapshot_id, vendor_item_id)
);

CREATE TABLE IF NOT EXISTS matching_reference (
	vendor_item_id    TEXT PRIMARY KEY,
	first_category    TEXT NOT NULL DEFAULT '',
	first_name        TEXT NOT NULL DEFAULT '',
	first_seen_at     TIMESTAMPTZ NOT NULL,
	barcode           TEXT,
	part_number       TEXT,
	tier              TEXT NOT NULL DEFAULT 'unverified',
	manually_verified BOOLEAN NOT NULL DEFAULT FALSE,
	notes             TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS change_events (
	id             TEXT PRIMARY KEY,
	category_id    BIGINT NOT NULL REFERENCES categories(id),
	vendor_item_id TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	old_value      BIGINT,
	new_value      BIGINT,
	magnitude      BIGINT NOT NULL DEFAULT 0,
	occurred_at    TIMESTAMPTZ NOT NULL,
	description    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS catalog_items (
	vendor_item_id TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	barcode        TEXT,
	part_number    TEXT,
	price          BIGINT NOT NULL DEFAULT 0,
	stock          INT NOT NULL DEFAULT 0,
	stock_status   TEXT NOT NULL DEFAULT 'sold_out',
	sales_quantity BIGINT NOT NULL DEFAULT 0,
	revenue        BIGINT NOT NULL DEFAULT 0,
	refreshed_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_log (
	id             BIGSERIAL PRIMARY KEY,
	stage          TEXT NOT NULL,
	category       TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ,
	rows_processed BIGINT NOT NULL DEFAULT 0,
	error          TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_category_captured ON snapshots(category_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_observations_vendor ON product_observations(vendor_item_id);
CREATE INDEX IF NOT EXISTS idx_events_category_time ON change_events(category_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_vendor ON change_events(vendor_item_id);
CREATE INDEX IF NOT EXISTS idx_catalog_barcode ON catalog_items(barcode);
CREATE INDEX IF NOT EXISTS idx_ingest_log_stage ON ingest_log(stage, category, started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Categories

func (s *PostgresStore) EnsureCategory(ctx context.Context, name, externalCode string) (*model.Category, error) {
	// Concurrent workers may race on the same new name; the insert tolerates
	// an existing row and the read below is authoritative.
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (name, external_code, created_at) VALUES ($1, NULLIF($2, ''), $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, externalCode, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert category %s", name)
	}
	return s.GetCategory(ctx, name)
}

func (s *PostgresStore) GetCategory(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	var code *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, external_code, created_at FROM categories WHERE name = $1 OR external_code = $1`,
		name,
	).Scan(&c.ID, &c.Name, &code, &c.CreatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrCategoryNotFound, "%s", name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get category")
	}
	if code != nil {
		c.ExternalCode = *code
	}
	return &c, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, external_code, created_at FROM categories ORDER BY name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list categories")
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		var code *string
		if err := rows.Scan(&c.ID, &c.Name, &code, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		if code != nil {
			c.ExternalCode = *code
		}
		cats = append(cats, c)
	}
	return cats, eris.Wrap(rows.Err(), "postgres: list categories iterate")
}

// Snapshots

func (s *PostgresStore) CreateSnapshot(ctx context.Context, categoryID int64, capturedAt time.Time, sourceRef string, overwrite bool) (*model.Snapshot, error) {
	capturedAt = capturedAt.UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create snapshot")
	}
	defer tx.Rollback(ctx)

	var catExists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, categoryID,
	).Scan(&catExists); err != nil {
		return nil, eris.Wrap(err, "postgres: check category")
	}
	if !catExists {
		return nil, eris.Wrapf(ErrCategoryNotFound, "id %d", categoryID)
	}

	var existingID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM snapshots WHERE category_id = $1 AND captured_at = $2`,
		categoryID, capturedAt,
	).Scan(&existingID)
	switch {
	case err == nil:
		if !overwrite {
			return nil, eris.Wrapf(ErrDuplicateSnapshot, "category %d at %s", categoryID, capturedAt.Format(time.RFC3339))
		}
		if _, err := tx.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, existingID); err != nil {
			return nil, eris.Wrap(err, "postgres: delete overwritten snapshot")
		}
	case !eris.Is(err, pgx.ErrNoRows):
		return nil, eris.Wrap(err, "postgres: check duplicate snapshot")
	}

	snap := &model.Snapshot{
		ID:         uuid.New().String(),
		CategoryID: categoryID,
		CapturedAt: capturedAt,
		SourceRef:  sourceRef,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO snapshots (id, category_id, captured_at, source_ref, created_at) VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		snap.ID, snap.CategoryID, snap.CapturedAt, snap.SourceRef, snap.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert snapshot")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit create snapshot")
	}
	return snap, nil
}

var observationColumns = []string{
	"snapshot_id", "vendor_item_id", "name", "rank_position", "current_price",
	"original_price", "discount_rate", "rating", "review_count", "in_stock", "url",
}

func (s *PostgresStore) AppendObservations(ctx context.Context, snapshotID string, obs []model.ProductObservation) error {
	var finalized *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT finalized_at FROM snapshots WHERE id = $1`, snapshotID,
	).Scan(&finalized)
	if eris.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrSnapshotNotFound, "%s", snapshotID)
	}
	if err != nil {
		return eris.Wrap(err, "postgres: check snapshot")
	}
	if finalized != nil {
		return eris.Wrapf(ErrSnapshotFinalized, "%s", snapshotID)
	}

	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, []any{
			snapshotID, o.VendorItemID, o.Name, o.Rank, o.CurrentPrice,
			o.OriginalPrice, o.DiscountRate, o.Rating, o.ReviewCount, o.InStock,
			nilIfEmpty(o.URL),
		})
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "product_observations",
		Columns:      observationColumns,
		ConflictKeys: []string{"snapshot_id", "vendor_item_id"},
	}, rows)
	return eris.Wrapf(err, "postgres: append observations %s", snapshotID)
}

func (s *PostgresStore) FinalizeSnapshot(ctx context.Context, snapshotID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE snapshots SET finalized_at = $1 WHERE id = $2 AND finalized_at IS NULL`,
		time.Now().UTC(), snapshotID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize snapshot %s", snapshotID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM snapshots WHERE id = $1)`, snapshotID,
		).Scan(&exists); err != nil {
			return eris.Wrap(err, "postgres: finalize check")
		}
		if !exists {
			return eris.Wrapf(ErrSnapshotNotFound, "%s", snapshotID)
		}
	}
	return nil
}

func (s *PostgresStore) LatestSnapshots(ctx context.Context, categoryID int64, n int) ([]model.Snapshot, error) {
	if n <= 0 {
		n = 1
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, category_id, captured_at, source_ref, finalized_at, created_at
		FROM snapshots
		WHERE category_id = $1 AND finalized_at IS NOT NULL
		ORDER BY captured_at DESC, id DESC
		LIMIT $2`,
		categoryID, n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshots")
	}
	defer rows.Close()
	return scanPgSnapshots(rows)
}

func (s *PostgresStore) SnapshotsByDate(ctx context.Context, categoryID int64, day time.Time) ([]model.Snapshot, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows, err := s.pool.Query(ctx, `
		SELECT id, category_id, captured_at, source_ref, finalized_at, created_at
		FROM snapshots
		WHERE category_id = $1 AND finalized_at IS NOT NULL
		  AND captured_at >= $2 AND captured_at < $3
		ORDER BY captured_at ASC, id ASC`,
		categoryID, start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: snapshots by date")
	}
	defer rows.Close()
	return scanPgSnapshots(rows)
}

func (s *PostgresStore) Observations(ctx context.Context, snapshotID string) ([]model.ProductObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT snapshot_id, vendor_item_id, name, rank_position, current_price,
		       original_price, discount_rate, rating, review_count, in_stock, url
		FROM product_observations
		WHERE snapshot_id = $1
		ORDER BY rank_position ASC NULLS LAST`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: observations")
	}
	defer rows.Close()

	var obs []model.ProductObservation
	for rows.Next() {
		var o model.ProductObservation
		var url *string
		err := rows.Scan(
			&o.SnapshotID, &o.VendorItemID, &o.Name, &o.Rank, &o.CurrentPrice,
			&o.OriginalPrice, &o.DiscountRate, &o.Rating, &o.ReviewCount, &o.InStock, &url,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if url != nil {
			o.URL = *url
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "postgres: observations iterate")
}

// Matching references

func (s *PostgresStore) GetReference(ctx context.Context, vendorItemID string) (*model.MatchingReference, error) {
	var r model.MatchingReference
	err := s.pool.QueryRow(ctx, `
		SELECT vendor_item_id, first_category, first_name, first_seen_at,
		       barcode, part_number, tier, manually_verified, notes,
		       created_at, updated_at
		FROM matching_reference WHERE vendor_item_id = $1`,
		vendorItemID,
	).Scan(
		&r.VendorItemID, &r.FirstCategory, &r.FirstName, &r.FirstSeenAt,
		&r.Barcode, &r.PartNumber, &r.Tier, &r.ManuallyVerified, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrReferenceNotFound, "%s", vendorItemID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get reference")
	}
	return &r, nil
}

func (s *PostgresStore) PutReference(ctx context.Context, ref *model.MatchingReference) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matching_reference
			(vendor_item_id, first_category, first_name, first_seen_at,
			 barcode, part_number, tier, manually_verified, notes,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (vendor_item_id) DO UPDATE SET
			barcode = EXCLUDED.barcode,
			part_number = EXCLUDED.part_number,
			tier = EXCLUDED.tier,
			manually_verified = EXCLUDED.manually_verified,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`,
		ref.VendorItemID, ref.FirstCategory, ref.FirstName, ref.FirstSeenAt,
		ref.Barcode, ref.PartNumber, string(ref.Tier),
		ref.ManuallyVerified, ref.Notes, ref.CreatedAt, ref.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: put reference %s", ref.VendorItemID)
}

func (s *PostgresStore) ListReferences(ctx context.Context, onlyMatched bool) ([]model.MatchingReference, error) {
	query := `
		SELECT vendor_item_id, first_category, first_name, first_seen_at,
		       barcode, part_number, tier, manually_verified, notes,
		       created_at, updated_at
		FROM matching_reference`
	if onlyMatched {
		query += ` WHERE barcode IS NOT NULL OR part_number IS NOT NULL`
	}
	query += ` ORDER BY vendor_item_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list references")
	}
	defer rows.Close()

	var refs []model.MatchingReference
	for rows.Next() {
		var r model.MatchingReference
		err := rows.Scan(
			&r.VendorItemID, &r.FirstCategory, &r.FirstName, &r.FirstSeenAt,
			&r.Barcode, &r.PartNumber, &r.Tier, &r.ManuallyVerified, &r.Notes,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan reference")
		}
		refs = append(refs, r)
	}
	return refs, eris.Wrap(rows.Err(), "postgres: list references iterate")
}

// Change events

func (s *PostgresStore) InsertEvents(ctx context.Context, events []model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(events))
	for _, e := range events {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, e.CategoryID, e.VendorItemID, string(e.Type),
			e.OldValue, e.NewValue, e.Magnitude, e.OccurredAt.UTC(), e.Description,
		})
	}

	_, err := db.CopyInto(ctx, s.pool, "change_events", []string{
		"id", "category_id", "vendor_item_id", "event_type", "old_value",
		"new_value", "magnitude", "occurred_at", "description",
	}, rows)
	return eris.Wrap(err, "postgres: insert events")
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.ChangeEvent, error) {
	query := `
		SELECT id, category_id, vendor_item_id, event_type, old_value, new_value,
		       magnitude, occurred_at, description
		FROM change_events WHERE 1=1`
	var args []any

	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		query += ` AND category_id = ` + placeholder(len(args))
	}
	if filter.VendorItemID != "" {
		args = append(args, filter.VendorItemID)
		query += ` AND vendor_item_id = ` + placeholder(len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += ` AND event_type = ` + placeholder(len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += ` AND occurred_at >= ` + placeholder(len(args))
	}
	query += ` ORDER BY occurred_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += ` LIMIT ` + placeholder(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.ChangeEvent
	for rows.Next() {
		var e model.ChangeEvent
		err := rows.Scan(
			&e.ID, &e.CategoryID, &e.VendorItemID, &e.Type,
			&e.OldValue, &e.NewValue, &e.Magnitude, &e.OccurredAt, &e.Description,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

// Partner catalog

var catalogColumns = []string{
	"vendor_item_id", "name", "barcode", "part_number", "price", "stock",
	"stock_status", "sales_quantity", "revenue", "refreshed_at",
}

func (s *PostgresStore) ReplaceCatalog(ctx context.Context, items []model.CatalogItem) (int64, error) {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE catalog_items`); err != nil {
		return 0, eris.Wrap(err, "postgres: truncate catalog")
	}

	rows := make([][]any, 0, len(items))
	for _, item := range items {
		rows = append(rows, []any{
			item.VendorItemID, item.Name, item.Barcode, item.PartNumber,
			item.Price, item.Stock, string(item.StockStatus),
			item.SalesQuantity, item.Revenue, item.RefreshedAt.UTC(),
		})
	}

	n, err := db.CopyInto(ctx, s.pool, "catalog_items", catalogColumns, rows)
	return n, eris.Wrap(err, "postgres: replace catalog")
}

func (s *PostgresStore) ListCatalog(ctx context.Context) ([]model.CatalogItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vendor_item_id, name, barcode, part_number, price, stock,
		       stock_status, sales_quantity, revenue, refreshed_at
		FROM catalog_items
		ORDER BY sales_quantity DESC, vendor_item_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catalog")
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		var item model.CatalogItem
		err := rows.Scan(
			&item.VendorItemID, &item.Name, &item.Barcode, &item.PartNumber,
			&item.Price, &item.Stock, &item.StockStatus,
			&item.SalesQuantity, &item.Revenue, &item.RefreshedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list catalog iterate")
}

// Ingest checkpointing

func (s *PostgresStore) StartIngest(ctx context.Context, stage, category string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ingest_log (stage, category, status, started_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		stage, category, string(IngestStatusRunning), time.Now().UTC(),
	).Scan(&id)
	return id, eris.Wrapf(err, "postgres: start ingest %s/%s", stage, category)
}

func (s *PostgresStore) CompleteIngest(ctx context.Context, id int64, rows int64, ingestErr error) error {
	status := IngestStatusComplete
	var errMsg *string
	if ingestErr != nil {
		status = IngestStatusFailed
		msg := ingestErr.Error()
		errMsg = &msg
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_log SET status = $1, completed_at = $2, rows_processed = $3, error = $4 WHERE id = $5`,
		string(status), time.Now().UTC(), rows, errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete ingest %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: ingest log entry not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) LastIngestSuccess(ctx context.Context, stage, category string) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT started_at FROM ingest_log
		WHERE stage = $1 AND category = $2 AND status = $3
		ORDER BY started_at DESC LIMIT 1`,
		stage, category, string(IngestStatusComplete),
	).Scan(&t)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last ingest success %s/%s", stage, category)
	}
	return &t, nil
}

// Audit

func (s *PostgresStore) StaleSnapshots(ctx context.Context, cutoff time.Time) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category_id, captured_at, source_ref, finalized_at, created_at
		FROM snapshots
		WHERE finalized_at IS NULL AND created_at < $1
		ORDER BY created_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stale snapshots")
	}
	defer rows.Close()
	return scanPgSnapshots(rows)
}

func (s *PostgresStore) OrphanObservationCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM product_observations o
		LEFT JOIN snapshots s ON s.id = o.snapshot_id
		WHERE s.id IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: orphan observations")
	}
	return n, nil
}

// helpers

func scanPgSnapshots(rows pgx.Rows) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	for rows.Next() {
		var s model.Snapshot
		var sourceRef *string
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.CapturedAt, &sourceRef, &s.FinalizedAt, &s.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		if sourceRef != nil {
			s.SourceRef = *sourceRef
		}
		snaps = append(snaps, s)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: snapshots iterate")
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
