// Package watch runs watch mode: repeated extraction batches per browser tab,
// reloading the tab whenever a cycle hits its time or batch limit.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/pipeline"
)

// ReloadNotice is shown in a tab whose agent lost its host context
const ReloadNotice = "Extension was reloaded. Please refresh the page to resume watch mode."

// Config holds scheduler defaults and timing
type Config struct {
	TargetDomain           string
	BatchDelay             time.Duration
	DefaultScrollCount     int
	DefaultRefreshInterval int // minutes
	DefaultMaxBatches      int
	WatchdogGrace          time.Duration
	Source                 string
}

// DefaultConfig mirrors the shipped configuration defaults
func DefaultConfig() Config {
	return Config{
		TargetDomain:           "linkedin.com",
		BatchDelay:             5 * time.Second,
		DefaultScrollCount:     3,
		DefaultRefreshInterval: 60,
		DefaultMaxBatches:      50,
		WatchdogGrace:          10 * time.Minute,
		Source:                 "WATCH_MODE_AUTOPILOT",
	}
}

// BatchProcessor runs dedup and delivery for one batch
type BatchProcessor interface {
	Process(ctx context.Context, batch pipeline.Batch) (*pipeline.Report, error)
}

type pendingBatch struct {
	timer Timer
}

// Scheduler owns every watch session. A per-tab lock keeps one session's batches
// strictly sequential; different tabs never block each other.
type Scheduler struct {
	cfg       Config
	storage   interfaces.SessionStorage
	processor BatchProcessor
	tabs      interfaces.TabController
	clock     Clock
	logger    arbor.ILogger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*models.Session
	tabLocks map[string]*sync.Mutex
	pending  map[string]*pendingBatch
	cron     *cron.Cron
}

// NewScheduler creates a new watch scheduler
func NewScheduler(cfg Config, storage interfaces.SessionStorage, processor BatchProcessor, tabs interfaces.TabController, clock Clock, logger arbor.ILogger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	defaults := DefaultConfig()
	if cfg.DefaultScrollCount <= 0 {
		cfg.DefaultScrollCount = defaults.DefaultScrollCount
	}
	if cfg.DefaultRefreshInterval <= 0 {
		cfg.DefaultRefreshInterval = defaults.DefaultRefreshInterval
	}
	if cfg.DefaultMaxBatches <= 0 {
		cfg.DefaultMaxBatches = defaults.DefaultMaxBatches
	}
	if cfg.Source == "" {
		cfg.Source = defaults.Source
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg,
		storage:   storage,
		processor: processor,
		tabs:      tabs,
		clock:     clock,
		logger:    logger,
		baseCtx:   ctx,
		cancel:    cancel,
		sessions:  make(map[string]*models.Session),
		tabLocks:  make(map[string]*sync.Mutex),
		pending:   make(map[string]*pendingBatch),
	}
}

func (s *Scheduler) lockTab(tabID string) func() {
	s.mu.Lock()
	l, ok := s.tabLocks[tabID]
	if !ok {
		l = &sync.Mutex{}
		s.tabLocks[tabID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Scheduler) session(tabID string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[tabID]
}

// update publishes a modified copy of the tab's session. Published sessions are
// never written in place, so Status and List can copy them under s.mu alone.
// The caller holds the tab lock.
func (s *Scheduler) update(tabID string, fn func(session *models.Session)) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[tabID]
	if !ok {
		return nil
	}
	next := cloneSession(current)
	fn(next)
	s.sessions[tabID] = next
	return next
}

func (s *Scheduler) cancelPending(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[tabID]; ok {
		p.timer.Stop()
		delete(s.pending, tabID)
	}
}

// Load restores persisted sessions. Inactive leftovers are purged.
func (s *Scheduler) Load(ctx context.Context) error {
	stored, err := s.storage.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watch sessions: %w", err)
	}

	restored := 0
	for _, session := range stored {
		if !session.Active {
			if err := s.storage.DeleteSession(ctx, session.TabID); err != nil {
				s.logger.Warn().Err(err).Str("tab_id", session.TabID).Msg("Failed to purge inactive session")
			}
			continue
		}
		s.mu.Lock()
		s.sessions[session.TabID] = session
		s.mu.Unlock()
		restored++
	}

	s.logger.Info().Int("sessions", restored).Msg("Watch sessions loaded")
	return nil
}

// Start creates an active session for the tab and reloads it so the first batch
// runs against a clean page. A reload failure stops the session again.
func (s *Scheduler) Start(ctx context.Context, req StartRequest) (*models.Session, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	unlock := s.lockTab(req.TabID)
	defer unlock()

	s.cancelPending(req.TabID)

	now := s.clock.Now()
	session := &models.Session{
		TabID:             req.TabID,
		Active:            true,
		ProfileID:         req.ProfileID,
		WebhookURL:        req.WebhookURL,
		SheetName:         req.SheetName,
		Filters:           req.Filters(),
		ScrollCount:       firstPositive(req.ScrollCount, s.cfg.DefaultScrollCount),
		RefreshIntervalMs: int64(firstPositive(req.RefreshInterval, s.cfg.DefaultRefreshInterval)) * time.Minute.Milliseconds(),
		MaxBatches:        firstPositive(req.MaxBatches, s.cfg.DefaultMaxBatches),
		CurrentBatchCount: 0,
		CycleStartTime:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if session.ProfileID == "" {
		session.ProfileID = models.DefaultProfileID
	}

	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist watch session: %w", err)
	}
	s.mu.Lock()
	s.sessions[session.TabID] = session
	s.mu.Unlock()

	s.setBadge(ctx, session.TabID, models.BadgeActive)

	s.logger.Info().
		Str("tab_id", session.TabID).
		Str("profile_id", session.ProfileID).
		Int("scroll_count", session.ScrollCount).
		Int("max_batches", session.MaxBatches).
		Dur("refresh_interval", session.RefreshInterval()).
		Msg("Watch mode started")

	if err := s.tabs.Reload(ctx, session.TabID); err != nil {
		s.stopLocked(ctx, session.TabID, "initial reload failed")
		return nil, fmt.Errorf("failed to reload tab %s: %w", session.TabID, err)
	}

	return cloneSession(session), nil
}

// Stop ends watch mode for the tab. A pending batch is cancelled; a batch already
// in flight finishes but schedules nothing further.
func (s *Scheduler) Stop(ctx context.Context, tabID string) error {
	unlock := s.lockTab(tabID)
	defer unlock()

	if s.session(tabID) == nil {
		s.cancelPending(tabID)
		return nil
	}
	return s.stopLocked(ctx, tabID, "stopped by user")
}

// stopLocked removes the session; the caller holds the tab lock
func (s *Scheduler) stopLocked(ctx context.Context, tabID string, reason string) error {
	s.cancelPending(tabID)

	s.mu.Lock()
	delete(s.sessions, tabID)
	s.mu.Unlock()

	err := s.storage.DeleteSession(ctx, tabID)
	if err != nil {
		s.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Failed to delete watch session")
	}

	s.setBadge(ctx, tabID, models.BadgeCleared)
	s.logger.Info().Str("tab_id", tabID).Str("reason", reason).Msg("Watch mode stopped")

	if err != nil {
		return fmt.Errorf("failed to delete watch session: %w", err)
	}
	return nil
}

// PageLoaded restarts the cycle for a watched tab and dispatches its first batch.
// Loads outside the target domain are ignored.
func (s *Scheduler) PageLoaded(ctx context.Context, tabID string, url string) error {
	unlock := s.lockTab(tabID)
	defer unlock()

	session := s.session(tabID)
	if session == nil || !session.Active {
		return nil
	}
	if s.cfg.TargetDomain != "" && !strings.Contains(strings.ToLower(url), strings.ToLower(s.cfg.TargetDomain)) {
		s.logger.Debug().Str("tab_id", tabID).Str("url", url).Msg("Page load outside target domain ignored")
		return nil
	}

	s.cancelPending(tabID)

	now := s.clock.Now()
	session = s.update(tabID, func(session *models.Session) { session.ResetCycle(now) })
	if err := s.storage.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to persist watch session: %w", err)
	}

	s.logger.Info().Str("tab_id", tabID).Msg("Watch page loaded, starting cycle")
	return s.dispatchLocked(ctx, session)
}

// HandleBatchResult processes one agent result and decides between reload and
// another batch. Bookkeeping always proceeds, whatever the delivery outcome.
func (s *Scheduler) HandleBatchResult(ctx context.Context, tabID string, result *models.BatchResult) (*models.BatchAck, error) {
	unlock := s.lockTab(tabID)
	defer unlock()

	session := s.session(tabID)
	if session == nil {
		s.logger.Warn().Str("tab_id", tabID).Msg("Batch result for unknown session")
		return &models.BatchAck{Success: true, Warning: "Session not found"}, nil
	}
	if !session.Active {
		return &models.BatchAck{Success: true, Warning: "Session inactive"}, nil
	}
	if result == nil {
		result = &models.BatchResult{}
	}

	now := s.clock.Now()
	session = s.update(tabID, func(session *models.Session) {
		session.CurrentBatchCount++
		session.LastResultAt = now
		session.UpdatedAt = now
	})
	if err := s.storage.SaveSession(ctx, session); err != nil {
		s.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Failed to persist batch count")
	}

	if result.ContextInvalidated() {
		s.logger.Warn().Str("tab_id", tabID).Msg("Agent context invalidated, stopping watch mode")
		_ = s.stopLocked(ctx, tabID, "context invalidated")
		if err := s.tabs.Notify(ctx, tabID, ReloadNotice); err != nil {
			s.logger.Debug().Err(err).Str("tab_id", tabID).Msg("Failed to show reload notice")
		}
		return &models.BatchAck{Success: true, Warning: "Context invalidated"}, nil
	}

	ack := &models.BatchAck{Success: true}
	report, err := s.processor.Process(ctx, pipeline.Batch{
		Identity:     session.ProfileID,
		WebhookURL:   session.WebhookURL,
		SheetName:    session.SheetName,
		Keywords:     session.Filters.Keywords,
		Source:       s.cfg.Source,
		Leads:        result.Leads,
		TotalScanned: result.TotalScanned,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("tab_id", tabID).Msg("Batch pipeline failed")
		ack.Error = err.Error()
	}
	if report != nil {
		ack.Outcome = report.Outcome
		ack.NewLeadsCount = report.Delivered
		if report.Outcome == pipeline.OutcomeSendFailed {
			ack.Error = report.Error
		}
	}
	if ack.NewLeadsCount > 0 {
		s.setBadge(ctx, tabID, models.BadgeNewLeads)
	}

	s.logger.Info().
		Str("tab_id", tabID).
		Int("batch", session.CurrentBatchCount).
		Int("max_batches", session.MaxBatches).
		Dur("elapsed", now.Sub(session.CycleStartTime)).
		Int("new_leads", ack.NewLeadsCount).
		Msg("Watch batch processed")

	if session.ShouldReload(now) {
		s.logger.Info().Str("tab_id", tabID).Msg("Cycle limits reached, reloading")
		if err := s.tabs.Reload(ctx, tabID); err != nil {
			s.logger.Warn().Err(err).Str("tab_id", tabID).Msg("Reload failed, stopping watch mode")
			_ = s.stopLocked(ctx, tabID, "reload failed")
		}
		return ack, nil
	}

	s.scheduleLocked(tabID)
	return ack, nil
}

// scheduleLocked arms the safety delay before the next batch
func (s *Scheduler) scheduleLocked(tabID string) {
	s.cancelPending(tabID)

	p := &pendingBatch{}
	s.mu.Lock()
	p.timer = s.clock.AfterFunc(s.cfg.BatchDelay, func() { s.fire(tabID, p) })
	s.pending[tabID] = p
	s.mu.Unlock()
}

// fire runs when the inter-batch delay elapses. The active flag is checked here,
// not only when the delay was armed, so a Stop in between always wins.
func (s *Scheduler) fire(tabID string, p *pendingBatch) {
	unlock := s.lockTab(tabID)
	defer unlock()

	s.mu.Lock()
	current, ok := s.pending[tabID]
	if !ok || current != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, tabID)
	session := s.sessions[tabID]
	s.mu.Unlock()

	if session == nil || !session.Active || s.baseCtx.Err() != nil {
		return
	}
	_ = s.dispatchLocked(s.baseCtx, session)
}

// dispatchLocked sends RUN_BATCH; an unreachable tab ends the session
func (s *Scheduler) dispatchLocked(ctx context.Context, session *models.Session) error {
	cmd := session.BatchCommand(uuid.New().String())
	if err := s.tabs.RunBatch(ctx, session.TabID, cmd); err != nil {
		s.logger.Warn().Err(err).Str("tab_id", session.TabID).Msg("Failed to dispatch batch, stopping watch mode")
		_ = s.stopLocked(ctx, session.TabID, "tab unreachable")
		if errors.Is(err, interfaces.ErrTabGone) {
			return nil
		}
		return fmt.Errorf("failed to dispatch batch: %w", err)
	}
	return nil
}

func (s *Scheduler) setBadge(ctx context.Context, tabID, text string) {
	if err := s.tabs.SetBadge(ctx, tabID, text); err != nil {
		s.logger.Debug().Err(err).Str("tab_id", tabID).Str("badge", text).Msg("Failed to set badge")
	}
}

// Status returns a copy of the tab's session
func (s *Scheduler) Status(tabID string) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tabID]
	if !ok {
		return nil, false
	}
	return cloneSession(session), true
}

// List returns copies of all sessions, oldest first
func (s *Scheduler) List() []*models.Session {
	s.mu.Lock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, cloneSession(session))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sweep reloads sessions whose agent has gone quiet for longer than a full cycle
// plus the grace period. It returns how many tabs were reloaded.
func (s *Scheduler) Sweep(ctx context.Context) int {
	now := s.clock.Now()
	reloaded := 0

	for _, snapshot := range s.List() {
		last := snapshot.CycleStartTime
		if snapshot.LastResultAt.After(last) {
			last = snapshot.LastResultAt
		}
		if now.Sub(last) <= snapshot.RefreshInterval()+s.cfg.WatchdogGrace {
			continue
		}

		func() {
			unlock := s.lockTab(snapshot.TabID)
			defer unlock()

			session := s.session(snapshot.TabID)
			if session == nil || !session.Active {
				return
			}
			s.logger.Warn().Str("tab_id", session.TabID).Dur("silent_for", now.Sub(last)).Msg("Watch session stalled, reloading")

			s.cancelPending(session.TabID)
			if err := s.tabs.Reload(ctx, session.TabID); err != nil {
				_ = s.stopLocked(ctx, session.TabID, "watchdog reload failed")
				return
			}
			// Restart the clock so a slow reload is not swept again immediately
			session = s.update(session.TabID, func(session *models.Session) { session.ResetCycle(now) })
			if err := s.storage.SaveSession(ctx, session); err != nil {
				s.logger.Warn().Err(err).Str("tab_id", session.TabID).Msg("Failed to persist watch session")
			}
			reloaded++
		}()
	}
	return reloaded
}

// StartWatchdog runs Sweep on a cron schedule. An empty schedule disables it.
func (s *Scheduler) StartWatchdog(schedule string) error {
	if schedule == "" {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.Sweep(s.baseCtx) }); err != nil {
		return fmt.Errorf("failed to schedule watchdog: %w", err)
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	s.logger.Info().Str("schedule", schedule).Msg("Watch watchdog started")
	return nil
}

// Shutdown cancels pending batches and the watchdog. Sessions stay persisted and are
// restored by Load on the next start.
func (s *Scheduler) Shutdown() {
	s.cancel()

	s.mu.Lock()
	for tabID, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, tabID)
	}
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.logger.Info().Msg("Watch scheduler stopped")
}

func cloneSession(session *models.Session) *models.Session {
	clone := *session
	clone.Filters = models.FilterConfig{
		Keywords:          append([]string(nil), session.Filters.Keywords...),
		MandatoryKeywords: append([]string(nil), session.Filters.MandatoryKeywords...),
		TargetTitles:      append([]string(nil), session.Filters.TargetTitles...),
		ExcludeKeywords:   append([]string(nil), session.Filters.ExcludeKeywords...),
		ScrollCount:       session.Filters.ScrollCount,
	}
	return &clone
}

func firstPositive(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
