package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/njoerd114/vitalsync/internal/device"
	"github.com/njoerd114/vitalsync/internal/model"
)

// SyncStatus is the terminal state of one sync pass.
type SyncStatus int

const (
	// StatusSynced: the device returned data, the cache was updated and
	// delivered, and reconciliation ran.
	StatusSynced SyncStatus = iota
	// StatusEmpty: the device had no record; the cached day was delivered.
	StatusEmpty
	// StatusFailed: the pass ended in OnSyncFailed.
	StatusFailed
	// StatusDropped: a pass was already in flight and this trigger was
	// discarded.
	StatusDropped
)

func (s SyncStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	case StatusDropped:
		return "dropped"
	}
	return "unknown"
}

// SyncResult summarizes one sync pass for the engine's stats and metrics.
type SyncResult struct {
	Status SyncStatus

	// Saved is the number of readings newly persisted by this pass.
	Saved int

	// Uploaded is true when reconciliation pushed the local day to the
	// backend.
	Uploaded bool

	// Reason is set for StatusFailed.
	Reason string
}

// Coordinator drives the sync pipeline for a single vital type:
// query the device, persist new readings, deliver the merged day to the
// listener, then reconcile against the backend and upload on mismatch.
//
// At most one pass runs at a time; overlapping triggers are dropped, not
// queued. Create one with [NewCoordinator].
type Coordinator struct {
	profile  model.Profile
	dev      DeviceSource
	conn     ConnectionStatusSource
	store    VitalStore
	remote   RemoteService
	listener Listener
	dispatch *Dispatcher
	log      *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	syncing atomic.Bool

	// mu guards lastUploadedDate: the most recent day already pushed to the
	// backend. While set, a mismatch on that day does not trigger another
	// upload; any newly accepted reading clears it.
	mu               stdsync.Mutex
	lastUploadedDate string
}

// NewCoordinator creates a Coordinator for one vital profile. All callbacks
// to listener are delivered via dispatch.
func NewCoordinator(profile model.Profile, dev DeviceSource, conn ConnectionStatusSource, store VitalStore, remote RemoteService, listener Listener, dispatch *Dispatcher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		profile:  profile,
		dev:      dev,
		conn:     conn,
		store:    store,
		remote:   remote,
		listener: listener,
		dispatch: dispatch,
		log:      logger.With("vital", profile.Type),
		now:      time.Now,
	}
}

// Vital returns the vital type this coordinator owns.
func (c *Coordinator) Vital() model.VitalType {
	return c.profile.Type
}

// StartSync triggers a sync pass on a new goroutine. Returns false if a pass
// was already in flight and the trigger was dropped.
func (c *Coordinator) StartSync(ctx context.Context) bool {
	if !c.syncing.CompareAndSwap(false, true) {
		c.log.Debug("sync already in flight, dropping trigger")
		return false
	}
	go func() {
		defer c.syncing.Store(false)
		c.runPass(ctx)
	}()
	return true
}

// SyncNow runs one pass synchronously and returns its result. Used by the
// engine's polling loop and the sync-once command.
func (c *Coordinator) SyncNow(ctx context.Context) SyncResult {
	if !c.syncing.CompareAndSwap(false, true) {
		c.log.Debug("sync already in flight, dropping trigger")
		return SyncResult{Status: StatusDropped}
	}
	defer c.syncing.Store(false)
	return c.runPass(ctx)
}

// runPass is the single-flight pipeline body. The caller holds the syncing
// flag.
func (c *Coordinator) runPass(ctx context.Context) SyncResult {
	connected, err := c.conn.Connected(ctx)
	if err != nil {
		return c.fail("device status check failed: " + err.Error())
	}
	if !connected {
		return c.fail("no device connected")
	}

	res := c.dev.Query(ctx, c.profile.Type)
	switch res.Outcome {
	case device.OutcomeSucceeded:
		return c.ingest(ctx, res.Readings)

	case device.OutcomeNoRecord:
		// The device had nothing new; the cached day is still the best
		// answer for the listener.
		day, err := c.store.GetDay(ctx, c.profile.Type, c.today())
		if err != nil {
			return c.fail("reading cached day: " + err.Error())
		}
		c.notifyLocal(day)
		return SyncResult{Status: StatusEmpty}

	case device.OutcomeUnavailable:
		return c.fail("device unavailable: " + res.Reason)

	default:
		return c.fail(res.Reason)
	}
}

// ingest persists a successful device batch, delivers the merged day, and
// reconciles it against the backend.
func (c *Coordinator) ingest(ctx context.Context, readings []model.Reading) SyncResult {
	saved, err := c.store.SaveNewBatch(ctx, readings)
	if err != nil {
		// Persistence failures surface as a failed pass; the listener never
		// sees data the store did not accept.
		return c.fail("persisting readings: " + err.Error())
	}

	date := c.today()
	if saved > 0 {
		c.clearUploadMark()
		if err := c.store.RollupDay(ctx, c.profile, date, c.now().Unix()); err != nil {
			c.log.Error("day rollup failed", "date", date, "error", err)
		}
	}
	c.log.Debug("device batch persisted", "received", len(readings), "saved", saved)

	day, err := c.store.GetDay(ctx, c.profile.Type, date)
	if err != nil {
		return c.fail("reading merged day: " + err.Error())
	}
	c.notifyLocal(day)

	uploaded := c.reconcile(ctx, date, day)
	return SyncResult{Status: StatusSynced, Saved: saved, Uploaded: uploaded}
}

// reconcile compares the local day against the backend and uploads when the
// backend is behind. Network failures only log: the listener already has its
// local data, and the next pass will retry naturally. Reports whether an
// upload happened.
func (c *Coordinator) reconcile(ctx context.Context, date string, local []model.Reading) bool {
	remoteDay, err := c.remote.FetchDay(ctx, c.profile.Type, date)
	if err != nil {
		c.log.Warn("reconciliation fetch failed", "date", date, "error", err)
		return false
	}

	if Compare(local, remoteDay) == Match {
		c.log.Debug("local and remote agree", "date", date)
		return false
	}
	if len(local) == 0 {
		// Remote is ahead of an empty local day; nothing to upload.
		return false
	}
	if c.uploadedAlready(date) {
		c.log.Debug("upload suppressed, day already pushed", "date", date)
		return false
	}

	if err := c.remote.Upload(ctx, c.profile.Type, local); err != nil {
		c.log.Warn("reconciliation upload failed", "date", date, "error", err)
		return false
	}
	c.markUploaded(date)
	c.notifyReconciled(local)
	return true
}

func (c *Coordinator) today() string {
	return model.DateOf(c.now().Unix())
}

func (c *Coordinator) fail(reason string) SyncResult {
	c.log.Warn("sync pass failed", "reason", reason)
	c.dispatch.Post(func() { c.listener.OnSyncFailed(c.profile.Type, reason) })
	return SyncResult{Status: StatusFailed, Reason: reason}
}

func (c *Coordinator) notifyLocal(readings []model.Reading) {
	c.dispatch.Post(func() { c.listener.OnLocalDataReady(c.profile.Type, readings) })
}

func (c *Coordinator) notifyReconciled(readings []model.Reading) {
	c.dispatch.Post(func() { c.listener.OnRemoteReconciled(c.profile.Type, readings) })
}

func (c *Coordinator) uploadedAlready(date string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUploadedDate == date
}

func (c *Coordinator) markUploaded(date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUploadedDate = date
}

func (c *Coordinator) clearUploadMark() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUploadedDate = ""
}
