package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brich-labs/marketwatch/internal/model"
)

// Integrity violations are typed so callers can retry with corrected intent.
// Everything else in the store degrades to "no new information".
var (
	// ErrDuplicateSnapshot is returned when a snapshot for the same
	// (category, capture time) already exists and overwrite was not requested.
	ErrDuplicateSnapshot = eris.New("store: duplicate snapshot")

	// ErrSnapshotNotFound is returned for writes or reads against an unknown
	// snapshot id.
	ErrSnapshotNotFound = eris.New("store: snapshot not found")

	// ErrCategoryNotFound is returned when a category lookup misses.
	ErrCategoryNotFound = eris.New("store: category not found")

	// ErrReferenceNotFound is returned when a vendor item id has never been
	// seen. Distinct from a reference whose identifiers normalized to null.
	ErrReferenceNotFound = eris.New("store: matching reference not found")
)

// EventFilter narrows a change-event listing.
type EventFilter struct {
	CategoryID   int64                 `json:"category_id,omitempty"`
	VendorItemID string                `json:"vendor_item_id,omitempty"`
	Type         model.ChangeEventType `json:"type,omitempty"`
	Since        time.Time             `json:"since,omitempty"`
	Limit        int                   `json:"limit,omitempty"`
}

// IngestStatus is the lifecycle state of an ingest_log entry.
type IngestStatus string

const (
	IngestStatusRunning  IngestStatus = "running"
	IngestStatusComplete IngestStatus = "complete"
	IngestStatusFailed   IngestStatus = "failed"
)

// Store defines the persistence interface for the tracking pipeline. Both the
// SQLite and Postgres implementations serialize writes per snapshot; readers
// only ever see finalized snapshots.
type Store interface {
	// Categories
	EnsureCategory(ctx context.Context, name, externalCode string) (*model.Category, error)
	GetCategory(ctx context.Context, name string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)

	// Snapshots
	CreateSnapshot(ctx context.Context, categoryID int64, capturedAt time.Time, sourceRef string, overwrite bool) (*model.Snapshot, error)
	AppendObservations(ctx context.Context, snapshotID string, obs []model.ProductObservation) error
	FinalizeSnapshot(ctx context.Context, snapshotID string) error
	LatestSnapshots(ctx context.Context, categoryID int64, n int) ([]model.Snapshot, error)
	SnapshotsByDate(ctx context.Context, categoryID int64, day time.Time) ([]model.Snapshot, error)
	Observations(ctx context.Context, snapshotID string) ([]model.ProductObservation, error)

	// Matching references
	GetReference(ctx context.Context, vendorItemID string) (*model.MatchingReference, error)
	PutReference(ctx context.Context, ref *model.MatchingReference) error
	ListReferences(ctx context.Context, onlyMatched bool) ([]model.MatchingReference, error)

	// Change events
	InsertEvents(ctx context.Context, events []model.ChangeEvent) error
	ListEvents(ctx context.Context, filter EventFilter) ([]model.ChangeEvent, error)

	// Partner catalog
	ReplaceCatalog(ctx context.Context, items []model.CatalogItem) (int64, error)
	ListCatalog(ctx context.Context) ([]model.CatalogItem, error)

	// Ingest checkpointing
	StartIngest(ctx context.Context, stage, category string) (int64, error)
	CompleteIngest(ctx context.Context, id int64, rows int64, ingestErr error) error
	LastIngestSuccess(ctx context.Context, stage, category string) (*time.Time, error)

	// Audit queries, read-only, used by the quality checker.
	StaleSnapshots(ctx context.Context, cutoff time.Time) ([]model.Snapshot, error)
	OrphanObservationCount(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
