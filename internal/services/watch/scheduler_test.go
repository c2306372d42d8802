package watch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/pipeline"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every due timer
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		if !t.at.After(c.now) {
			t.stopped = true
			due = append(due, t)
			continue
		}
		remaining = append(remaining, t)
	}
	c.timers = remaining
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeTabs struct {
	mu        sync.Mutex
	reloads   []string
	batches   []models.BatchCommand
	badges    []string
	notices   []string
	reloadErr error
	batchErr  error
}

func (f *fakeTabs) Reload(ctx context.Context, tabID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads = append(f.reloads, tabID)
	return f.reloadErr
}

func (f *fakeTabs) RunBatch(ctx context.Context, tabID string, cmd models.BatchCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, cmd)
	return f.batchErr
}

func (f *fakeTabs) SetBadge(ctx context.Context, tabID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.badges = append(f.badges, text)
	return nil
}

func (f *fakeTabs) Notify(ctx context.Context, tabID string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
	return nil
}

func (f *fakeTabs) counts() (reloads, batches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reloads), len(f.batches)
}

type memorySessions struct {
	mu   sync.Mutex
	data map[string]models.Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{data: make(map[string]models.Session)}
}

func (m *memorySessions) SaveSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[session.TabID] = *session
	return nil
}

func (m *memorySessions) GetSession(ctx context.Context, tabID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[tabID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &s, nil
}

func (m *memorySessions) ListSessions(ctx context.Context) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Session, 0, len(m.data))
	for _, s := range m.data {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out, nil
}

func (m *memorySessions) DeleteSession(ctx context.Context, tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, tabID)
	return nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	batches []pipeline.Batch
	report  *pipeline.Report
}

func (p *fakeProcessor) Process(ctx context.Context, batch pipeline.Batch) (*pipeline.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, batch)
	if p.report != nil {
		return p.report, nil
	}
	return &pipeline.Report{Outcome: pipeline.OutcomeNoMatches}, nil
}

type harness struct {
	scheduler *Scheduler
	clock     *fakeClock
	tabs      *fakeTabs
	storage   *memorySessions
	processor *fakeProcessor
}

func newHarness() *harness {
	h := &harness{
		clock:     newFakeClock(),
		tabs:      &fakeTabs{},
		storage:   newMemorySessions(),
		processor: &fakeProcessor{},
	}
	h.scheduler = NewScheduler(DefaultConfig(), h.storage, h.processor, h.tabs, h.clock, arbor.NewLogger())
	return h
}

func startRequest(tabID string) StartRequest {
	return StartRequest{
		TabID:      tabID,
		ProfileID:  "alice",
		WebhookURL: "https://hooks.example.com/leads",
		SheetName:  "Leads",
		Keywords:   []string{"hiring"},
	}
}

func TestStart_PersistsSessionAndReloads(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	session, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	assert.True(t, session.Active)
	assert.Equal(t, 3, session.ScrollCount)
	assert.Equal(t, 50, session.MaxBatches)
	assert.Equal(t, time.Hour, session.RefreshInterval())
	assert.Equal(t, 0, session.CurrentBatchCount)

	stored, err := h.storage.GetSession(ctx, "7")
	require.NoError(t, err)
	assert.True(t, stored.Active)

	assert.Equal(t, []string{"7"}, h.tabs.reloads)
	assert.Equal(t, []string{models.BadgeActive}, h.tabs.badges)
}

func TestStart_RejectsInvalidRequest(t *testing.T) {
	h := newHarness()

	req := startRequest("7")
	req.WebhookURL = "not a url"
	_, err := h.scheduler.Start(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	req = startRequest("")
	_, err = h.scheduler.Start(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	req = startRequest("7")
	req.MaxBatches = -1
	_, err = h.scheduler.Start(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	reloads, _ := h.tabs.counts()
	assert.Equal(t, 0, reloads)
}

func TestStart_ReloadFailureStopsSession(t *testing.T) {
	h := newHarness()
	h.tabs.reloadErr = interfaces.ErrTabGone

	_, err := h.scheduler.Start(context.Background(), startRequest("7"))
	require.Error(t, err)

	_, ok := h.scheduler.Status("7")
	assert.False(t, ok)
	assert.Empty(t, h.storage.data)
}

func TestPageLoaded_ResetsCycleAndDispatches(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	require.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.example.com/"))
	_, batches := h.tabs.counts()
	assert.Equal(t, 0, batches, "other domains are ignored")

	require.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.linkedin.com/feed/"))
	require.Len(t, h.tabs.batches, 1)
	cmd := h.tabs.batches[0]
	assert.Equal(t, "7", cmd.TabID)
	assert.NotEmpty(t, cmd.BatchID)
	assert.Equal(t, 3, cmd.ScrollCount)
	assert.Equal(t, []string{"hiring"}, cmd.Filters.Keywords)
}

func TestPageLoaded_UnwatchedTabIgnored(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.scheduler.PageLoaded(context.Background(), "9", "https://www.linkedin.com/feed/"))
	_, batches := h.tabs.counts()
	assert.Equal(t, 0, batches)
}

func TestBatchCycle_ReloadsAfterMaxBatches(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	req := startRequest("7")
	req.MaxBatches = 3
	_, err := h.scheduler.Start(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.linkedin.com/feed/"))

	for i := 1; i <= 3; i++ {
		ack, err := h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{TotalScanned: 10})
		require.NoError(t, err)
		assert.True(t, ack.Success)

		session, ok := h.scheduler.Status("7")
		require.True(t, ok)
		assert.Equal(t, i, session.CurrentBatchCount)

		if i < 3 {
			assert.Equal(t, 1, h.clock.Pending(), "a continuation is scheduled after batch %d", i)
			h.clock.Advance(5 * time.Second)
		}
	}

	reloads, batches := h.tabs.counts()
	assert.Equal(t, 2, reloads, "initial reload plus one at the batch limit")
	assert.Equal(t, 3, batches)
	assert.Equal(t, 0, h.clock.Pending())

	// The reload's page load starts a fresh cycle
	require.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.linkedin.com/feed/"))
	session, _ := h.scheduler.Status("7")
	assert.Equal(t, 0, session.CurrentBatchCount)
}

func TestBatchCycle_ReloadsAfterRefreshInterval(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	req := startRequest("7")
	req.RefreshInterval = 1
	_, err := h.scheduler.Start(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.linkedin.com/feed/"))

	h.clock.Advance(61 * time.Second)
	_, err = h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{})
	require.NoError(t, err)

	reloads, _ := h.tabs.counts()
	assert.Equal(t, 2, reloads)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestBatchCycle_DeliveryFeedsPipeline(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.processor.report = &pipeline.Report{Outcome: pipeline.OutcomeDelivered, Delivered: 2}

	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	leads := []models.Lead{{Name: "A", Email: "a@x.com"}, {Name: "B", Email: "b@x.com"}}
	ack, err := h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{Leads: leads, TotalScanned: 12})
	require.NoError(t, err)
	assert.Equal(t, 2, ack.NewLeadsCount)
	assert.Equal(t, pipeline.OutcomeDelivered, ack.Outcome)

	require.Len(t, h.processor.batches, 1)
	batch := h.processor.batches[0]
	assert.Equal(t, "alice", batch.Identity)
	assert.Equal(t, "https://hooks.example.com/leads", batch.WebhookURL)
	assert.Equal(t, "Leads", batch.SheetName)
	assert.Equal(t, []string{"hiring"}, batch.Keywords)
	assert.Equal(t, "WATCH_MODE_AUTOPILOT", batch.Source)
	assert.Equal(t, 12, batch.TotalScanned)

	assert.Contains(t, h.tabs.badges, models.BadgeNewLeads)
}

func TestBatchCycle_SendFailureStillSchedulesNext(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.processor.report = &pipeline.Report{Outcome: pipeline.OutcomeSendFailed, Error: "HTTP 500"}

	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	ack, err := h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{Leads: []models.Lead{{Email: "a@x.com"}}})
	require.NoError(t, err)
	assert.Equal(t, "HTTP 500", ack.Error)

	session, _ := h.scheduler.Status("7")
	assert.Equal(t, 1, session.CurrentBatchCount)
	assert.Equal(t, 1, h.clock.Pending())
}

func TestHandleBatchResult_UnknownSession(t *testing.T) {
	h := newHarness()

	ack, err := h.scheduler.HandleBatchResult(context.Background(), "42", &models.BatchResult{})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, 0, ack.NewLeadsCount)
	assert.Equal(t, "Session not found", ack.Warning)
	assert.Empty(t, h.processor.batches)
}

func TestHandleBatchResult_ContextInvalidatedStops(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	_, err = h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{Fatal: true, ErrorKind: models.ErrorKindContextInvalidated})
	require.NoError(t, err)

	_, ok := h.scheduler.Status("7")
	assert.False(t, ok)
	assert.Equal(t, []string{ReloadNotice}, h.tabs.notices)
	assert.Equal(t, 0, h.clock.Pending())
	assert.Empty(t, h.processor.batches)
}

func TestStop_CancelsPendingBatch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	_, err = h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{})
	require.NoError(t, err)
	require.Equal(t, 1, h.clock.Pending())

	require.NoError(t, h.scheduler.Stop(ctx, "7"))
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Minute)
	_, batches := h.tabs.counts()
	assert.Equal(t, 0, batches, "no batch may run after stop")

	_, err = h.storage.GetSession(ctx, "7")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.Equal(t, models.BadgeCleared, h.tabs.badges[len(h.tabs.badges)-1])
}

func TestStop_DuringInFlightBatchSchedulesNothing(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)
	require.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.linkedin.com/feed/"))

	require.NoError(t, h.scheduler.Stop(ctx, "7"))

	ack, err := h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{})
	require.NoError(t, err)
	assert.Equal(t, "Session not found", ack.Warning)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestDispatchFailureStopsSession(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	_, err = h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{})
	require.NoError(t, err)

	h.tabs.batchErr = interfaces.ErrTabGone
	h.clock.Advance(5 * time.Second)

	_, ok := h.scheduler.Status("7")
	assert.False(t, ok)
}

func TestTabsAreIndependent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("1"))
	require.NoError(t, err)
	_, err = h.scheduler.Start(ctx, startRequest("2"))
	require.NoError(t, err)

	_, err = h.scheduler.HandleBatchResult(ctx, "1", &models.BatchResult{})
	require.NoError(t, err)
	require.NoError(t, h.scheduler.Stop(ctx, "2"))

	first, ok := h.scheduler.Status("1")
	require.True(t, ok)
	assert.Equal(t, 1, first.CurrentBatchCount)
	assert.Len(t, h.scheduler.List(), 1)
}

func TestLoad_RestoresActiveSessions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	now := h.clock.Now()

	require.NoError(t, h.storage.SaveSession(ctx, &models.Session{TabID: "1", Active: true, MaxBatches: 5, RefreshIntervalMs: 60000, CreatedAt: now}))
	require.NoError(t, h.storage.SaveSession(ctx, &models.Session{TabID: "2", Active: false, CreatedAt: now}))

	require.NoError(t, h.scheduler.Load(ctx))

	_, ok := h.scheduler.Status("1")
	assert.True(t, ok)
	_, ok = h.scheduler.Status("2")
	assert.False(t, ok)
	_, err := h.storage.GetSession(ctx, "2")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestSweep_ReloadsStalledSessions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	req := startRequest("7")
	req.RefreshInterval = 1
	_, err := h.scheduler.Start(ctx, req)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, 0, h.scheduler.Sweep(ctx))

	h.clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, h.scheduler.Sweep(ctx))

	reloads, _ := h.tabs.counts()
	assert.Equal(t, 2, reloads)
	assert.Equal(t, 0, h.scheduler.Sweep(ctx), "a swept session restarts its cycle")
}

func TestShutdown_CancelsTimers(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)
	_, err = h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{})
	require.NoError(t, err)

	require.NoError(t, h.scheduler.StartWatchdog("@every 1h"))
	h.scheduler.Shutdown()

	assert.Equal(t, 0, h.clock.Pending())
	_, ok := h.scheduler.Status("7")
	assert.True(t, ok, "sessions survive shutdown for the next load")
}

func TestStatusSnapshotIsDetached(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.scheduler.Start(ctx, startRequest("7"))
	require.NoError(t, err)

	before, ok := h.scheduler.Status("7")
	require.True(t, ok)
	listed := h.scheduler.List()
	require.Len(t, listed, 1)

	_, err = h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{})
	require.NoError(t, err)
	require.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.linkedin.com/feed/"))
	_, err = h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{})
	require.NoError(t, err)

	assert.Equal(t, 0, before.CurrentBatchCount)
	assert.True(t, before.LastResultAt.IsZero())
	assert.Equal(t, 0, listed[0].CurrentBatchCount)

	after, ok := h.scheduler.Status("7")
	require.True(t, ok)
	assert.Equal(t, 1, after.CurrentBatchCount)
}

// Run with -race: readers copy sessions while batches update them
func TestConcurrentReadsDuringBatches(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	req := startRequest("7")
	req.MaxBatches = 100000
	_, err := h.scheduler.Start(ctx, req)
	require.NoError(t, err)

	const iterations = 2000
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < iterations; i++ {
			_, err := h.scheduler.HandleBatchResult(ctx, "7", &models.BatchResult{TotalScanned: i})
			assert.NoError(t, err)
			if i%500 == 0 {
				assert.NoError(t, h.scheduler.PageLoaded(ctx, "7", "https://www.linkedin.com/feed/"))
			}
		}
	}()

	readers := []func(){
		func() {
			if session, ok := h.scheduler.Status("7"); ok {
				_ = session.CurrentBatchCount
				_ = session.Filters.Keywords
			}
		},
		func() {
			for _, session := range h.scheduler.List() {
				_ = session.LastResultAt
			}
		},
		func() { h.scheduler.Sweep(ctx) },
	}
	for _, read := range readers {
		wg.Add(1)
		go func(read func()) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					read()
				}
			}
		}(read)
	}
	wg.Wait()

	session, ok := h.scheduler.Status("7")
	require.True(t, ok)
	assert.True(t, session.Active)
	assert.Equal(t, 499, session.CurrentBatchCount, "batches since the last page load")
}
