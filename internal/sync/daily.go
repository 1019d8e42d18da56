package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/njoerd114/vitalsync/internal/model"
)

// DailyReconciler serves historical day-level series in two phases: the
// cached window is delivered immediately so views render without waiting on
// the network, then the backend's series is diffed against the cache and the
// listener is notified a second time only when the diff changed something.
type DailyReconciler struct {
	store    VitalStore
	remote   RemoteService
	dispatch *Dispatcher
	log      *slog.Logger

	now func() time.Time
	wg  stdsync.WaitGroup
}

// NewDailyReconciler creates a DailyReconciler.
func NewDailyReconciler(store VitalStore, remote RemoteService, dispatch *Dispatcher, logger *slog.Logger) *DailyReconciler {
	return &DailyReconciler{
		store:    store,
		remote:   remote,
		dispatch: dispatch,
		log:      logger,
		now:      time.Now,
	}
}

// Load delivers the cached daily series for [from, to] and kicks off the
// remote reconciliation in the background. A cache read error is logged and
// delivered as an empty series; the view is never blocked.
func (d *DailyReconciler) Load(ctx context.Context, vital model.VitalType, from, to string, listener SeriesListener) {
	cached, err := d.store.GetAggregateRange(ctx, vital, from, to)
	if err != nil {
		d.log.Error("reading cached daily series", "vital", vital, "error", err)
		cached = nil
	}
	d.dispatch.Post(func() { listener.OnSeriesReady(vital, cached) })

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reconcile(ctx, vital, from, to, cached, listener)
	}()
}

// Wait blocks until all in-flight background reconciliations have finished.
// Used on shutdown.
func (d *DailyReconciler) Wait() {
	d.wg.Wait()
}

// reconcile diffs the backend's series against the cached window and upserts
// only the days that are new or changed. Zero diff means zero writes and no
// second notification.
func (d *DailyReconciler) reconcile(ctx context.Context, vital model.VitalType, from, to string, cached []model.DailyAggregate, listener SeriesListener) {
	series, err := d.remote.FetchDailySeries(ctx, vital)
	if err != nil {
		d.log.Warn("daily series reconciliation failed", "vital", vital, "error", err)
		return
	}

	changed := diffSeries(cached, series, from, to)
	if len(changed) == 0 {
		d.log.Debug("daily series up to date", "vital", vital)
		return
	}

	now := d.now().Unix()
	for i := range changed {
		changed[i].LastUpdated = now
	}
	if err := d.store.UpsertAggregates(ctx, changed); err != nil {
		d.log.Error("upserting daily series diff", "vital", vital, "error", err)
		return
	}

	refreshed, err := d.store.GetAggregateRange(ctx, vital, from, to)
	if err != nil {
		d.log.Error("re-reading daily series", "vital", vital, "error", err)
		return
	}
	d.log.Info("daily series reconciled", "vital", vital, "changed", len(changed))
	d.dispatch.Post(func() { listener.OnSeriesReady(vital, refreshed) })
}

// diffSeries returns the remote rows within [from, to] that are new or carry
// a different value than the cached copy.
func diffSeries(cached, remote []model.DailyAggregate, from, to string) []model.DailyAggregate {
	byDate := make(map[string]model.DailyAggregate, len(cached))
	for _, agg := range cached {
		byDate[agg.Date] = agg
	}

	var changed []model.DailyAggregate
	for _, agg := range remote {
		if agg.Date < from || agg.Date > to {
			continue
		}
		local, ok := byDate[agg.Date]
		if ok && local.Value == agg.Value && local.Value2 == agg.Value2 {
			continue
		}
		changed = append(changed, agg)
	}
	return changed
}
