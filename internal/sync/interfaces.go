// Package sync implements the vitals synchronization engine. One
// [Coordinator] per vital type drives device → local cache → listener, then
// reconciles the cached day against the backend and uploads on mismatch. The
// [DailyReconciler] serves historical day-level series in two phases, and the
// [Engine] owns the coordinators, the polling loop, and reconnect triggers.
package sync

import (
	"context"

	"github.com/njoerd114/vitalsync/internal/device"
	"github.com/njoerd114/vitalsync/internal/model"
)

// DeviceSource queries the wearable gateway for raw records of one vital
// type. Single attempt, no retry; the four outcomes in [device.QueryResult]
// must never be collapsed into one another.
// Implemented by [device.Adapter].
type DeviceSource interface {
	Query(ctx context.Context, vital model.VitalType) device.QueryResult
}

// ConnectionStatusSource reports whether a wearable is currently linked.
// Injected explicitly so coordinators never reach into ambient global state.
// Implemented by [device.Adapter].
type ConnectionStatusSource interface {
	Connected(ctx context.Context) (bool, error)
	WatchConnection(ctx context.Context, callback func(connected bool)) error
}

// RemoteService provides access to the vitals backend.
// Implemented by [remote.Client].
type RemoteService interface {
	FetchDay(ctx context.Context, vital model.VitalType, date string) ([]model.Reading, error)
	FetchDailySeries(ctx context.Context, vital model.VitalType) ([]model.DailyAggregate, error)
	Upload(ctx context.Context, vital model.VitalType, readings []model.Reading) error
}

// VitalStore provides access to the local reading cache.
// Implemented by [store.Store].
type VitalStore interface {
	SaveNewBatch(ctx context.Context, readings []model.Reading) (int, error)
	GetDay(ctx context.Context, vital model.VitalType, date string) ([]model.Reading, error)
	RollupDay(ctx context.Context, profile model.Profile, date string, now int64) error
	GetAggregateRange(ctx context.Context, vital model.VitalType, from, to string) ([]model.DailyAggregate, error)
	UpsertAggregates(ctx context.Context, aggs []model.DailyAggregate) error
	IsEmpty(ctx context.Context) (bool, error)
}

// Listener receives the results of sync passes. Per pass, exactly one of
// OnLocalDataReady / OnSyncFailed fires; OnRemoteReconciled fires at most
// once more, strictly after OnLocalDataReady, and only when reconciliation
// actually changed something. All callbacks are delivered in order on the
// engine's single dispatcher goroutine.
type Listener interface {
	OnLocalDataReady(vital model.VitalType, readings []model.Reading)
	OnRemoteReconciled(vital model.VitalType, readings []model.Reading)
	OnSyncFailed(vital model.VitalType, reason string)
}

// SeriesListener receives historical daily series from the
// [DailyReconciler]. It is notified once with the cached window immediately
// and possibly a second time after the remote diff applied changes.
type SeriesListener interface {
	OnSeriesReady(vital model.VitalType, series []model.DailyAggregate)
}
