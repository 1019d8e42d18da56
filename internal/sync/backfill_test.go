package sync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/njoerd114/vitalsync/internal/model"
)

func newTestBackfill(store *mockStore, remote *mockRemote) *Backfill {
	b := NewBackfill(store, remote, slog.Default())
	b.now = func() time.Time { return testNow }
	return b
}

func TestBackfill_SeedsEmptyCache(t *testing.T) {
	store := newMockStore()
	remote := newMockRemote()
	remote.series[model.VitalSteps] = []model.DailyAggregate{
		agg("2025-12-30", 6000),
		agg("2025-12-31", 7000),
	}

	ran, err := newTestBackfill(store, remote).Run(context.Background(), []model.VitalType{model.VitalSteps, model.VitalHeartRate})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ran {
		t.Fatal("backfill did not run on an empty cache")
	}

	seeded, err := store.GetAggregateRange(context.Background(), model.VitalSteps, "2025-12-01", "2026-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(seeded) != 2 {
		t.Fatalf("seeded days = %d, want 2", len(seeded))
	}
	if seeded[0].LastUpdated != testNow.Unix() {
		t.Errorf("LastUpdated = %d, want %d", seeded[0].LastUpdated, testNow.Unix())
	}
}

func TestBackfill_SkipsNonEmptyCache(t *testing.T) {
	store := newMockStore()
	if err := store.UpsertAggregates(context.Background(), []model.DailyAggregate{agg("2026-01-01", 7000)}); err != nil {
		t.Fatal(err)
	}
	remote := newMockRemote()
	remote.series[model.VitalSteps] = []model.DailyAggregate{agg("2025-12-31", 9999)}

	ran, err := newTestBackfill(store, remote).Run(context.Background(), []model.VitalType{model.VitalSteps})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran {
		t.Error("backfill ran on a non-empty cache")
	}
}

func TestBackfill_FetchErrorAborts(t *testing.T) {
	store := newMockStore()
	remote := newMockRemote()
	remote.fetchErr = errBoom

	if _, err := newTestBackfill(store, remote).Run(context.Background(), []model.VitalType{model.VitalSteps}); err == nil {
		t.Fatal("expected error when the backend is unreachable")
	}
}
