// Package ingest turns scraped listing batches into finalized snapshots and
// imports the partner catalog feed.
package ingest

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/resolve"
	"github.com/brich-labs/marketwatch/internal/store"
)

// CategoryListing is one scraped capture of one category, as delivered by the
// scraping collaborator.
type CategoryListing struct {
	Category     string                `yaml:"category" json:"category"`
	ExternalCode string                `yaml:"external_code,omitempty" json:"external_code,omitempty"`
	CapturedAt   time.Time             `yaml:"captured_at" json:"captured_at"`
	SourceRef    string                `yaml:"source_ref,omitempty" json:"source_ref,omitempty"`
	Records      []model.ListingRecord `yaml:"records" json:"records"`
}

// ListingFile is the on-disk shape of a scrape delivery: one or more category
// captures from a single run.
type ListingFile struct {
	Listings []CategoryListing `yaml:"listings" json:"listings"`
}

// LoadListings parses a scrape delivery file.
func LoadListings(path string) ([]CategoryListing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	var file ListingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	if len(file.Listings) == 0 {
		return nil, eris.Errorf("ingest: %s contains no listings", path)
	}
	return file.Listings, nil
}

// Options configures the ingestion service.
type Options struct {
	Concurrency int
	Overwrite   bool
}

// Service persists category listings as snapshots. Each listing becomes one
// snapshot, finalized only after every observation is committed, so readers
// never see a partial capture.
type Service struct {
	store    store.Store
	resolver *resolve.Resolver
	opts     Options
	log      *zap.Logger
}

func NewService(st store.Store, resolver *resolve.Resolver, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Service{
		store:    st,
		resolver: resolver,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "ingest")),
	}
}

// IngestAll processes every listing, categories in parallel. A duplicate
// snapshot in one category never halts ingestion of the others; it is counted
// and reported at the end.
func (s *Service) IngestAll(ctx context.Context, listings []CategoryListing) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	ingested := make([]int, len(listings))
	for i, listing := range listings {
		g.Go(func() error {
			n, err := s.IngestListing(ctx, listing)
			if eris.Is(err, store.ErrDuplicateSnapshot) {
				s.log.Warn("duplicate snapshot skipped",
					zap.String("category", listing.Category),
					zap.Time("captured_at", listing.CapturedAt),
				)
				return nil
			}
			if err != nil {
				return err
			}
			ingested[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range ingested {
		total += n
	}
	return total, nil
}

// IngestListing persists one category capture and returns the number of
// observations written.
func (s *Service) IngestListing(ctx context.Context, listing CategoryListing) (int, error) {
	if listing.Category == "" {
		return 0, eris.New("ingest: listing has no category")
	}
	if listing.CapturedAt.IsZero() {
		return 0, eris.Errorf("ingest: listing for %s has no capture time", listing.Category)
	}

	logID, err := s.store.StartIngest(ctx, "listing", listing.Category)
	if err != nil {
		return 0, err
	}

	n, err := s.ingestOne(ctx, listing)
	if cerr := s.store.CompleteIngest(ctx, logID, int64(n), err); cerr != nil {
		s.log.Warn("checkpoint update failed", zap.Error(cerr))
	}
	return n, err
}

func (s *Service) ingestOne(ctx context.Context, listing CategoryListing) (int, error) {
	cat, err := s.store.EnsureCategory(ctx, listing.Category, listing.ExternalCode)
	if err != nil {
		return 0, err
	}

	snap, err := s.store.CreateSnapshot(ctx, cat.ID, listing.CapturedAt, listing.SourceRef, s.opts.Overwrite)
	if err != nil {
		return 0, err
	}

	obs := make([]model.ProductObservation, 0, len(listing.Records))
	for _, rec := range listing.Records {
		if rec.VendorItemID == "" {
			continue
		}
		obs = append(obs, rec.Observation(snap.ID))
	}
	if err := s.store.AppendObservations(ctx, snap.ID, obs); err != nil {
		return 0, err
	}
	if err := s.store.FinalizeSnapshot(ctx, snap.ID); err != nil {
		return 0, err
	}

	// Register first sightings after the snapshot is visible; an existing
	// reference is left untouched.
	for _, o := range obs {
		if err := s.resolver.RecordFirstSight(ctx, o.VendorItemID, cat.Name, o.Name, listing.CapturedAt); err != nil {
			return 0, eris.Wrapf(err, "ingest: first sight %s", o.VendorItemID)
		}
	}

	s.log.Info("listing ingested",
		zap.String("category", cat.Name),
		zap.String("snapshot_id", snap.ID),
		zap.Int("observations", len(obs)),
	)
	return len(obs), nil
}
