package sync

import (
	"context"
	"errors"
	"sort"
	"strconv"
	stdsync "sync"

	"github.com/njoerd114/vitalsync/internal/device"
	"github.com/njoerd114/vitalsync/internal/model"
)

// --- Mock Device Source ------------------------------------------------------

type mockDevice struct {
	mu        stdsync.Mutex
	connected bool
	connErr   error
	results   map[model.VitalType]device.QueryResult
	queries   int

	// blockConn, when set, stalls Connected until it is closed.
	blockConn chan struct{}
	// watchCh feeds connection events to WatchConnection callbacks.
	watchCh chan bool
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		connected: true,
		results:   make(map[model.VitalType]device.QueryResult),
		watchCh:   make(chan bool),
	}
}

func (m *mockDevice) setResult(vital model.VitalType, res device.QueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[vital] = res
}

func (m *mockDevice) Connected(_ context.Context) (bool, error) {
	m.mu.Lock()
	connected, connErr, block := m.connected, m.connErr, m.blockConn
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	return connected, connErr
}

func (m *mockDevice) WatchConnection(ctx context.Context, callback func(bool)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case connected := <-m.watchCh:
			callback(connected)
		}
	}
}

func (m *mockDevice) Query(_ context.Context, vital model.VitalType) device.QueryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if res, ok := m.results[vital]; ok {
		return res
	}
	return device.QueryResult{Outcome: device.OutcomeNoRecord}
}

func (m *mockDevice) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

// --- Mock Remote Service -----------------------------------------------------

type mockRemote struct {
	mu       stdsync.Mutex
	days     map[string][]model.Reading // vital/date → readings
	series   map[model.VitalType][]model.DailyAggregate
	fetchErr error
	upErr    error
	uploads  [][]model.Reading
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		days:   make(map[string][]model.Reading),
		series: make(map[model.VitalType][]model.DailyAggregate),
	}
}

func dayKey(vital model.VitalType, date string) string {
	return string(vital) + "/" + date
}

func (m *mockRemote) setDay(vital model.VitalType, date string, readings []model.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[dayKey(vital, date)] = readings
}

func (m *mockRemote) FetchDay(_ context.Context, vital model.VitalType, date string) ([]model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.days[dayKey(vital, date)], nil
}

func (m *mockRemote) FetchDailySeries(_ context.Context, vital model.VitalType) ([]model.DailyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.series[vital], nil
}

func (m *mockRemote) Upload(_ context.Context, _ model.VitalType, readings []model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upErr != nil {
		return m.upErr
	}
	m.uploads = append(m.uploads, readings)
	return nil
}

func (m *mockRemote) uploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

// --- Mock Vital Store --------------------------------------------------------

type mockStore struct {
	mu       stdsync.Mutex
	readings map[string]model.Reading // vital/ts → reading
	aggs     map[string]model.DailyAggregate
	saveErr  error
	readErr  error
	upserts  int
}

func newMockStore() *mockStore {
	return &mockStore{
		readings: make(map[string]model.Reading),
		aggs:     make(map[string]model.DailyAggregate),
	}
}

func (m *mockStore) SaveNewBatch(_ context.Context, readings []model.Reading) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	saved := 0
	for _, r := range readings {
		key := readingKey(r.VitalType, r.Timestamp)
		if _, ok := m.readings[key]; ok {
			continue
		}
		m.readings[key] = r
		saved++
	}
	return saved, nil
}

func readingKey(vital model.VitalType, ts int64) string {
	return string(vital) + "@" + strconv.FormatInt(ts, 10)
}

func sortReadings(readings []model.Reading) {
	sort.Slice(readings, func(i, j int) bool { return readings[i].Timestamp < readings[j].Timestamp })
}

func sortAggregates(aggs []model.DailyAggregate) {
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Date < aggs[j].Date })
}

func (m *mockStore) GetDay(_ context.Context, vital model.VitalType, date string) ([]model.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	start, end, err := model.DayBounds(date)
	if err != nil {
		return nil, err
	}
	var out []model.Reading
	for _, r := range m.readings {
		if r.VitalType == vital && r.Timestamp >= start && r.Timestamp < end {
			out = append(out, r)
		}
	}
	sortReadings(out)
	return out, nil
}

func (m *mockStore) RollupDay(_ context.Context, _ model.Profile, _ string, _ int64) error {
	return nil
}

func (m *mockStore) GetAggregateRange(_ context.Context, vital model.VitalType, from, to string) ([]model.DailyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []model.DailyAggregate
	for _, agg := range m.aggs {
		if agg.VitalType == vital && agg.Date >= from && agg.Date <= to {
			out = append(out, agg)
		}
	}
	sortAggregates(out)
	return out, nil
}

func (m *mockStore) UpsertAggregates(_ context.Context, aggs []model.DailyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, agg := range aggs {
		m.aggs[dayKey(agg.VitalType, agg.Date)] = agg
	}
	m.upserts += len(aggs)
	return nil
}

func (m *mockStore) IsEmpty(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings) == 0 && len(m.aggs) == 0, nil
}

func (m *mockStore) readingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}

func (m *mockStore) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// --- Recording Listener ------------------------------------------------------

// event is one listener callback in delivery order.
type event struct {
	kind     string // "local", "reconciled", "failed"
	vital    model.VitalType
	readings []model.Reading
	reason   string
}

type recordingListener struct {
	mu     stdsync.Mutex
	events []event
}

func (l *recordingListener) OnLocalDataReady(vital model.VitalType, readings []model.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event{kind: "local", vital: vital, readings: readings})
}

func (l *recordingListener) OnRemoteReconciled(vital model.VitalType, readings []model.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event{kind: "reconciled", vital: vital, readings: readings})
}

func (l *recordingListener) OnSyncFailed(vital model.VitalType, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event{kind: "failed", vital: vital, reason: reason})
}

func (l *recordingListener) all() []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event, len(l.events))
	copy(out, l.events)
	return out
}

type recordingSeriesListener struct {
	mu         stdsync.Mutex
	deliveries [][]model.DailyAggregate
}

func (l *recordingSeriesListener) OnSeriesReady(_ model.VitalType, series []model.DailyAggregate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries = append(l.deliveries, series)
}

func (l *recordingSeriesListener) all() [][]model.DailyAggregate {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]model.DailyAggregate, len(l.deliveries))
	copy(out, l.deliveries)
	return out
}

var errBoom = errors.New("boom")
