package detect

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/store"
)

const defaultConcurrency = 4

// Service runs change detection across categories. Categories are independent
// and processed in parallel; detection for one category only ever reads
// finalized snapshots, so it is safe to run alongside ingestion of others.
type Service struct {
	store       store.Store
	log         *zap.Logger
	concurrency int
}

func NewService(st store.Store) *Service {
	return &Service{
		store:       st,
		log:         zap.L().With(zap.String("component", "detector")),
		concurrency: defaultConcurrency,
	}
}

// Run detects changes for every category and persists the resulting events.
// Returns the total number of events emitted. A category with fewer than two
// finalized snapshots contributes nothing; that is not an error.
func (s *Service) Run(ctx context.Context) (int, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return 0, err
	}

	results := make([]int, len(cats))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, cat := range cats {
		g.Go(func() error {
			events, err := s.RunCategory(ctx, cat)
			if err != nil {
				return eris.Wrapf(err, "detect: category %s", cat.Name)
			}
			results[i] = len(events)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range results {
		total += n
	}
	s.log.Info("change detection complete",
		zap.Int("categories", len(cats)),
		zap.Int("events", total),
	)
	return total, nil
}

// RunCategory diffs the two most recent finalized snapshots of one category
// and persists the events. Each run advances the detect checkpoint in the
// ingest log so status can report when detection last succeeded.
func (s *Service) RunCategory(ctx context.Context, cat model.Category) ([]model.ChangeEvent, error) {
	logID, err := s.store.StartIngest(ctx, "detect", cat.Name)
	if err != nil {
		return nil, err
	}
	events, err := s.runCategory(ctx, cat)
	if cerr := s.store.CompleteIngest(ctx, logID, int64(len(events)), err); cerr != nil && err == nil {
		return nil, cerr
	}
	return events, err
}

func (s *Service) runCategory(ctx context.Context, cat model.Category) ([]model.ChangeEvent, error) {
	snaps, err := s.store.LatestSnapshots(ctx, cat.ID, 2)
	if err != nil {
		return nil, err
	}
	if len(snaps) < 2 {
		s.log.Debug("not enough history",
			zap.String("category", cat.Name),
			zap.Int("snapshots", len(snaps)),
		)
		return nil, nil
	}
	curr, prev := snaps[0], snaps[1]

	prevObs, err := s.store.Observations(ctx, prev.ID)
	if err != nil {
		return nil, err
	}
	currObs, err := s.store.Observations(ctx, curr.ID)
	if err != nil {
		return nil, err
	}

	events := Diff(cat.ID, prevObs, currObs, curr.CapturedAt)
	if len(events) == 0 {
		return nil, nil
	}
	if err := s.store.InsertEvents(ctx, events); err != nil {
		return nil, err
	}

	s.log.Info("category diffed",
		zap.String("category", cat.Name),
		zap.Int("events", len(events)),
	)
	return events, nil
}
