package pull

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vesaa/webexsync/internal/models"
	"github.com/vesaa/webexsync/internal/store"
	"github.com/vesaa/webexsync/internal/webex"
)

// fakeAPI is an in-memory RemoteAPI.
type fakeAPI struct {
	mu          sync.Mutex
	workspaces  []webex.Workspace
	series      map[string]map[string]*webex.MetricSeries // workspace id → metric
	caps        map[string]map[string]webex.Capability
	authErr     error
	metricCalls []string
}

func newFakeAPI(ws ...webex.Workspace) *fakeAPI {
	return &fakeAPI{
		workspaces: ws,
		series:     make(map[string]map[string]*webex.MetricSeries),
		caps:       make(map[string]map[string]webex.Capability),
	}
}

func (f *fakeAPI) setSeries(wsID, metric, unit string, items ...webex.MetricSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.series[wsID] == nil {
		f.series[wsID] = make(map[string]*webex.MetricSeries)
	}
	f.series[wsID][metric] = &webex.MetricSeries{
		WorkspaceID: wsID,
		MetricName:  metric,
		Aggregation: "none",
		Unit:        unit,
		Items:       items,
	}
}

func (f *fakeAPI) Workspaces(context.Context) ([]webex.Workspace, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.workspaces, nil
}

func (f *fakeAPI) Capabilities(_ context.Context, id string) (map[string]webex.Capability, error) {
	return f.caps[id], nil
}

func (f *fakeAPI) WorkspaceMetrics(_ context.Context, id, metric, aggregation string) (*webex.MetricSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metricCalls = append(f.metricCalls, id+"/"+metric+"/"+aggregation)
	if s, ok := f.series[id][metric]; ok {
		return s, nil
	}
	return &webex.MetricSeries{WorkspaceID: id, MetricName: metric, Items: []webex.MetricSample{}}, nil
}

func openStore(t *testing.T) (*store.Store, models.Node) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	network, err := s.CreateContext(context.Background(), "Webex Network")
	require.NoError(t, err)
	return s, network
}

var errStoreDown = errors.New("store down")

// failingSeries fails every InsertSample.
type failingSeries struct{ calls int }

func (f *failingSeries) InsertSample(context.Context, string, float64, int64) error {
	f.calls++
	return errStoreDown
}

// manualClock advances only when slept on or told to.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *manualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// scriptedPass is a Pass whose calls take a set duration and may fail.
type scriptedPass struct {
	clock    *manualClock
	duration time.Duration
	errs     []error // per call; missing entries succeed
	calls    int
	onCall   func(call int)
}

func (p *scriptedPass) Reconcile(context.Context, models.Node) (CycleStats, error) {
	p.calls++
	p.clock.Advance(p.duration)
	if p.onCall != nil {
		p.onCall(p.calls)
	}
	if i := p.calls - 1; i < len(p.errs) && p.errs[i] != nil {
		return CycleStats{}, p.errs[i]
	}
	return CycleStats{Workspaces: 1}, nil
}

// syncLog records RecordSync calls.
type syncLog struct {
	mu  sync.Mutex
	ats []time.Time
}

func (s *syncLog) RecordSync(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ats = append(s.ats, at)
	return nil
}

func (s *syncLog) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ats)
}
