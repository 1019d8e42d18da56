package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/vitalsync/internal/model"
)

// Backfill seeds an empty local cache from the backend's daily aggregate
// series so week and month views have history before the first device sync.
// It runs non-interactively on daemon startup and is a no-op once the cache
// holds anything.
type Backfill struct {
	store  VitalStore
	remote RemoteService
	log    *slog.Logger

	now func() time.Time
}

// NewBackfill creates a Backfill wired to the store and backend client.
func NewBackfill(store VitalStore, remote RemoteService, logger *slog.Logger) *Backfill {
	return &Backfill{
		store:  store,
		remote: remote,
		log:    logger,
		now:    time.Now,
	}
}

// Run checks whether the cache is empty and, if so, pulls the daily series
// for every configured vital. Returns true if backfill executed, false if it
// was skipped.
func (b *Backfill) Run(ctx context.Context, vitals []model.VitalType) (bool, error) {
	empty, err := b.store.IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("checking cache: %w", err)
	}
	if !empty {
		b.log.Debug("cache is not empty, skipping backfill")
		return false, nil
	}

	b.log.Info("empty cache detected, backfilling daily history from backend")

	now := b.now().Unix()
	total := 0
	for _, vital := range vitals {
		series, err := b.remote.FetchDailySeries(ctx, vital)
		if err != nil {
			return false, fmt.Errorf("fetching %s history: %w", vital, err)
		}
		if len(series) == 0 {
			continue
		}

		for i := range series {
			series[i].LastUpdated = now
		}
		if err := b.store.UpsertAggregates(ctx, series); err != nil {
			return false, fmt.Errorf("seeding %s history: %w", vital, err)
		}
		b.log.Debug("seeded daily history", "vital", vital, "days", len(series))
		total += len(series)
	}

	b.log.Info("backfill complete", "days", total)
	return true, nil
}
