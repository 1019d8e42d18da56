package sync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/njoerd114/vitalsync/internal/device"
	"github.com/njoerd114/vitalsync/internal/model"
)

// Fixed clock: 2026-01-01 12:00:00 UTC.
var testNow = time.Unix(1767268800, 0).UTC()

const testDate = "2026-01-01"

type coordinatorFixture struct {
	dev      *mockDevice
	store    *mockStore
	remote   *mockRemote
	listener *recordingListener
	dispatch *Dispatcher
	coord    *Coordinator
}

func newCoordinatorFixture(t *testing.T, vital model.VitalType) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		dev:      newMockDevice(),
		store:    newMockStore(),
		remote:   newMockRemote(),
		listener: &recordingListener{},
		dispatch: NewDispatcher(),
	}
	t.Cleanup(f.dispatch.Close)

	f.coord = NewCoordinator(model.ProfileFor(vital), f.dev, f.dev, f.store, f.remote, f.listener, f.dispatch, slog.Default())
	f.coord.now = func() time.Time { return testNow }
	return f
}

// events flushes the dispatcher and returns the callbacks delivered so far.
func (f *coordinatorFixture) events() []event {
	f.dispatch.Flush()
	return f.listener.all()
}

func succeeded(readings ...model.Reading) device.QueryResult {
	return device.QueryResult{Outcome: device.OutcomeSucceeded, Readings: readings}
}

func TestSync_EndToEnd(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	batch := []model.Reading{
		hr(testNow.Unix()+100, 60),
		hr(testNow.Unix()+200, 62),
		hr(testNow.Unix()+300, 61),
	}
	f.dev.setResult(model.VitalHeartRate, succeeded(batch...))
	f.remote.setDay(model.VitalHeartRate, testDate, batch)

	res := f.coord.SyncNow(context.Background())

	if res.Status != StatusSynced {
		t.Fatalf("status = %v, want synced", res.Status)
	}
	if res.Saved != 3 {
		t.Errorf("saved = %d, want 3", res.Saved)
	}
	if res.Uploaded {
		t.Error("upload happened although local and remote agree")
	}
	if got := f.remote.uploadCount(); got != 0 {
		t.Errorf("uploads = %d, want 0", got)
	}

	events := f.events()
	if len(events) != 1 || events[0].kind != "local" {
		t.Fatalf("events = %+v, want one local delivery", events)
	}
	if len(events[0].readings) != 3 {
		t.Fatalf("delivered readings = %d, want 3", len(events[0].readings))
	}
	for i := 1; i < len(events[0].readings); i++ {
		if events[0].readings[i].Timestamp < events[0].readings[i-1].Timestamp {
			t.Error("delivered readings are not sorted by timestamp")
		}
	}
}

func TestSync_SecondPassSavesNothingNew(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	batch := []model.Reading{hr(testNow.Unix()+100, 60), hr(testNow.Unix()+200, 62)}
	f.dev.setResult(model.VitalHeartRate, succeeded(batch...))
	f.remote.setDay(model.VitalHeartRate, testDate, batch)

	f.coord.SyncNow(context.Background())
	res := f.coord.SyncNow(context.Background())

	if res.Saved != 0 {
		t.Errorf("second pass saved = %d, want 0", res.Saved)
	}
	if got := f.store.readingCount(); got != 2 {
		t.Errorf("stored readings = %d, want 2", got)
	}
}

func TestSync_NoDeviceConnected(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	f.dev.connected = false

	res := f.coord.SyncNow(context.Background())

	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
	if res.Reason != "no device connected" {
		t.Errorf("reason = %q", res.Reason)
	}

	events := f.events()
	if len(events) != 1 || events[0].kind != "failed" {
		t.Fatalf("events = %+v, want one failure", events)
	}
	if f.dev.queries != 0 {
		t.Error("device was queried despite no connection")
	}
}

func TestSync_StatusCheckError(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	f.dev.connErr = errBoom

	res := f.coord.SyncNow(context.Background())
	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
}

func TestSync_NoRecordDeliversCachedDay(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	cached := []model.Reading{hr(testNow.Unix()+100, 58)}
	if _, err := f.store.SaveNewBatch(context.Background(), cached); err != nil {
		t.Fatal(err)
	}
	// mockDevice defaults to OutcomeNoRecord.

	res := f.coord.SyncNow(context.Background())

	if res.Status != StatusEmpty {
		t.Fatalf("status = %v, want empty", res.Status)
	}
	events := f.events()
	if len(events) != 1 || events[0].kind != "local" {
		t.Fatalf("events = %+v, want one local delivery", events)
	}
	if len(events[0].readings) != 1 {
		t.Errorf("delivered readings = %d, want the cached day", len(events[0].readings))
	}
	if got := f.remote.uploadCount(); got != 0 {
		t.Errorf("uploads = %d, want 0 for an empty device result", got)
	}
}

func TestSync_UnavailableAndFailedStayDistinct(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)

	f.dev.setResult(model.VitalHeartRate, device.QueryResult{Outcome: device.OutcomeUnavailable, Reason: "gateway restarting"})
	res := f.coord.SyncNow(context.Background())
	if res.Status != StatusFailed || res.Reason != "device unavailable: gateway restarting" {
		t.Errorf("unavailable pass = %+v", res)
	}

	f.dev.setResult(model.VitalHeartRate, device.QueryResult{Outcome: device.OutcomeFailed, Reason: "query timed out"})
	res = f.coord.SyncNow(context.Background())
	if res.Status != StatusFailed || res.Reason != "query timed out" {
		t.Errorf("failed pass = %+v", res)
	}
}

func TestSync_PersistenceFailureSuppressesLocalDelivery(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	f.store.saveErr = errBoom
	f.dev.setResult(model.VitalHeartRate, succeeded(hr(testNow.Unix()+100, 60)))

	res := f.coord.SyncNow(context.Background())

	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
	for _, ev := range f.events() {
		if ev.kind == "local" {
			t.Error("local data delivered although persistence failed")
		}
	}
}

func TestSync_MismatchUploadsAndNotifies(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	f.dev.setResult(model.VitalHeartRate, succeeded(hr(testNow.Unix()+100, 60)))
	// Backend has nothing for today.

	res := f.coord.SyncNow(context.Background())

	if !res.Uploaded {
		t.Fatal("expected an upload for a backend that is behind")
	}
	if got := f.remote.uploadCount(); got != 1 {
		t.Fatalf("uploads = %d, want 1", got)
	}

	events := f.events()
	if len(events) != 2 {
		t.Fatalf("events = %+v, want local then reconciled", events)
	}
	if events[0].kind != "local" || events[1].kind != "reconciled" {
		t.Errorf("event order = [%s, %s], want [local, reconciled]", events[0].kind, events[1].kind)
	}
}

func TestSync_UploadSuppressedUntilNewData(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	batch := []model.Reading{hr(testNow.Unix()+100, 60)}
	f.dev.setResult(model.VitalHeartRate, succeeded(batch...))

	// First pass: backend behind → upload.
	f.coord.SyncNow(context.Background())
	if got := f.remote.uploadCount(); got != 1 {
		t.Fatalf("uploads after first pass = %d, want 1", got)
	}

	// Second pass: same batch, nothing newly saved, backend still behind.
	// The day was already pushed, so no second upload.
	res := f.coord.SyncNow(context.Background())
	if res.Uploaded {
		t.Error("re-uploaded an already-pushed day with no new data")
	}
	if got := f.remote.uploadCount(); got != 1 {
		t.Fatalf("uploads after second pass = %d, want 1", got)
	}

	// Third pass: a new reading arrives → the suppression resets.
	f.dev.setResult(model.VitalHeartRate, succeeded(hr(testNow.Unix()+200, 62)))
	res = f.coord.SyncNow(context.Background())
	if !res.Uploaded {
		t.Error("new data did not reset the upload suppression")
	}
	if got := f.remote.uploadCount(); got != 2 {
		t.Errorf("uploads after third pass = %d, want 2", got)
	}
}

func TestSync_NetworkFailureKeepsLocalDelivery(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	f.dev.setResult(model.VitalHeartRate, succeeded(hr(testNow.Unix()+100, 60)))
	f.remote.fetchErr = errBoom

	res := f.coord.SyncNow(context.Background())

	// Reconciliation trouble is not a sync failure: the listener already has
	// its local data.
	if res.Status != StatusSynced {
		t.Fatalf("status = %v, want synced", res.Status)
	}
	events := f.events()
	if len(events) != 1 || events[0].kind != "local" {
		t.Fatalf("events = %+v, want exactly one local delivery", events)
	}
}

func TestSync_RemoteAheadOfEmptyLocalDayNoUpload(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalSteps)
	f.dev.setResult(model.VitalSteps, device.QueryResult{Outcome: device.OutcomeSucceeded})
	f.remote.setDay(model.VitalSteps, testDate, []model.Reading{
		{VitalType: model.VitalSteps, Timestamp: testNow.Unix(), Value: 7000},
	})

	res := f.coord.SyncNow(context.Background())

	if res.Uploaded || f.remote.uploadCount() != 0 {
		t.Error("uploaded an empty local day")
	}
}

func TestSync_OverlappingTriggerDropped(t *testing.T) {
	f := newCoordinatorFixture(t, model.VitalHeartRate)
	f.coord.syncing.Store(true)

	res := f.coord.SyncNow(context.Background())
	if res.Status != StatusDropped {
		t.Errorf("status = %v, want dropped", res.Status)
	}
	if f.dev.queries != 0 {
		t.Error("dropped trigger still queried the device")
	}
}
