package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/vitalsync/internal/model"
)

const (
	otelScope      = "vitalsync/sync"
	spanSyncAll    = "sync.all"
	metricSaved    = "vitalsync.sync.readings.saved"
	metricUploads  = "vitalsync.sync.uploads"
	metricEmpty    = "vitalsync.sync.empty"
	metricFailures = "vitalsync.sync.failures"
	metricDropped  = "vitalsync.sync.dropped"
)

// Stats aggregates the results of one full pass over all vitals.
type Stats struct {
	Synced  int
	Empty   int
	Failed  int
	Dropped int
	Saved   int
	Uploads int
}

// Engine orchestrates the sync lifecycle for all configured vitals: the
// polling loop, the device reconnect trigger, and the shared listener
// dispatcher. Create one with [NewEngine] and start it with [Engine.Run].
type Engine struct {
	coordinators []*Coordinator
	conn         ConnectionStatusSource
	pollInterval time.Duration
	dispatch     *Dispatcher
	log          *slog.Logger

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer      trace.Tracer
	cntSaved    metric.Int64Counter
	cntUploads  metric.Int64Counter
	cntEmpty    metric.Int64Counter
	cntFailures metric.Int64Counter
	cntDropped  metric.Int64Counter
}

// NewEngine creates an Engine over per-vital coordinators. The caller builds
// the coordinators with the same dispatcher so listener delivery stays
// single-threaded.
func NewEngine(coordinators []*Coordinator, conn ConnectionStatusSource, pollInterval time.Duration, dispatch *Dispatcher, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		coordinators: coordinators,
		conn:         conn,
		pollInterval: pollInterval,
		dispatch:     dispatch,
		log:          logger,

		tracer:      tracer,
		cntSaved:    mustCounter(metricSaved, "Number of readings newly persisted"),
		cntUploads:  mustCounter(metricUploads, "Number of reconciliation uploads"),
		cntEmpty:    mustCounter(metricEmpty, "Number of passes where the device had no record"),
		cntFailures: mustCounter(metricFailures, "Number of failed sync passes"),
		cntDropped:  mustCounter(metricDropped, "Number of dropped sync triggers"),
	}
}

// SyncAll runs one pass over every coordinator sequentially, recording a
// trace span and metrics. Failures of individual vitals do not abort the
// pass.
func (e *Engine) SyncAll(ctx context.Context) Stats {
	runID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, spanSyncAll, trace.WithAttributes(
		attribute.String("sync.run_id", runID),
	))
	defer span.End()

	log := e.log.With("run_id", runID)
	log.Debug("sync pass starting", "vitals", len(e.coordinators))

	var stats Stats
	for _, c := range e.coordinators {
		res := c.SyncNow(ctx)
		attrs := metric.WithAttributes(attribute.String("vital", string(c.Vital())))

		switch res.Status {
		case StatusSynced:
			stats.Synced++
			stats.Saved += res.Saved
			if res.Saved > 0 {
				e.cntSaved.Add(ctx, int64(res.Saved), attrs)
			}
			if res.Uploaded {
				stats.Uploads++
				e.cntUploads.Add(ctx, 1, attrs)
			}
		case StatusEmpty:
			stats.Empty++
			e.cntEmpty.Add(ctx, 1, attrs)
		case StatusFailed:
			stats.Failed++
			e.cntFailures.Add(ctx, 1, attrs)
		case StatusDropped:
			stats.Dropped++
			e.cntDropped.Add(ctx, 1, attrs)
		}
	}

	span.SetAttributes(
		attribute.Int("sync.synced", stats.Synced),
		attribute.Int("sync.empty", stats.Empty),
		attribute.Int("sync.failed", stats.Failed),
		attribute.Int("sync.saved", stats.Saved),
		attribute.Int("sync.uploads", stats.Uploads),
	)

	log.Info("sync pass finished",
		"synced", stats.Synced,
		"empty", stats.Empty,
		"failed", stats.Failed,
		"saved", stats.Saved,
		"uploads", stats.Uploads,
	)
	return stats
}

// SyncVital runs one synchronous pass for a single vital type. ok is false
// when the vital is not configured.
func (e *Engine) SyncVital(ctx context.Context, vital model.VitalType) (res SyncResult, ok bool) {
	for _, c := range e.coordinators {
		if c.Vital() == vital {
			return c.SyncNow(ctx), true
		}
	}
	e.log.Warn("sync requested for unconfigured vital", "vital", vital)
	return SyncResult{}, false
}

// Run starts the polling loop and the device connection watcher. It blocks
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	// Reconnect trigger: when the wearable comes back, sync immediately
	// instead of waiting out the poll interval. The watcher owns its own
	// reconnect backoff; a dead event stream degrades to polling-only.
	go func() {
		err := e.conn.WatchConnection(ctx, func(connected bool) {
			if !connected {
				e.log.Info("device disconnected")
				return
			}
			e.log.Info("device connected, triggering sync")
			// Fire every coordinator asynchronously so the event reader is
			// never blocked; in-flight passes drop their trigger.
			for _, c := range e.coordinators {
				c.StartSync(ctx)
			}
		})
		if err != nil && ctx.Err() == nil {
			e.log.Error("connection watcher ended unexpectedly", "error", err)
		}
	}()

	// Immediate first pass, then the polling loop.
	e.SyncAll(ctx)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.SyncAll(ctx)
		}
	}
}
