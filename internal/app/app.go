package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/handlers"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/services/agents"
	"github.com/ternarybob/leadwatch/internal/services/backend"
	"github.com/ternarybob/leadwatch/internal/services/dedup"
	"github.com/ternarybob/leadwatch/internal/services/delivery"
	"github.com/ternarybob/leadwatch/internal/services/extractor"
	"github.com/ternarybob/leadwatch/internal/services/manual"
	"github.com/ternarybob/leadwatch/internal/services/pacing"
	"github.com/ternarybob/leadwatch/internal/services/pipeline"
	"github.com/ternarybob/leadwatch/internal/services/profiles"
	"github.com/ternarybob/leadwatch/internal/services/watch"
	"github.com/ternarybob/leadwatch/internal/storage/badger"
)

const (
	AgentModeExtension = "extension"
	AgentModeBrowser   = "browser"
)

// Agent is the in-page agent transport selected by [agent] mode
type Agent interface {
	interfaces.TabController
	interfaces.Snapshotter
	SetHandler(handler interfaces.BatchHandler)
	Tabs() []string
	Close()
}

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	InstanceID     string
	StorageManager interfaces.StorageManager

	// Lead processing
	Extractor *extractor.Extractor
	History   *dedup.Store
	Sink      *delivery.Sink
	Pipeline  *pipeline.Pipeline

	// Agents: Bridge in extension mode, Browser in browser mode
	Agent   Agent
	Bridge  *agents.Bridge
	Browser *agents.Browser

	// Watch mode
	Scheduler *watch.Scheduler

	// Backend and account services
	BackendClient  *backend.Client
	ProfileService *profiles.Service
	ManualService  *manual.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	WatchHandler    *handlers.WatchHandler
	AgentHandler    *handlers.AgentHandler
	TabsHandler     *handlers.TabsHandler
	ExtractHandler  *handlers.ExtractHandler
	HistoryHandler  *handlers.HistoryHandler
	UsersHandler    *handlers.UsersHandler
	ProfilesHandler *handlers.ProfilesHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:     cfg,
		Logger:     logger,
		InstanceID: uuid.New().String(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("instance_id", app.InstanceID).
		Str("agent_mode", cfg.Agent.Mode).
		Str("target_domain", cfg.Watch.TargetDomain).
		Int("history_capacity", cfg.History.Capacity).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices builds services bottom-up: extraction, history, delivery, agents, watch mode, accounts
func (a *App) initServices() error {
	ctx := context.Background()
	cfg := a.Config

	a.Extractor = extractor.NewExtractor(a.Logger)
	a.History = dedup.NewStore(a.StorageManager.HistoryStorage(), cfg.History.Capacity, a.Logger)

	transport := delivery.NewHTTPTransport(common.ParseDurationOr(cfg.Delivery.Timeout, delivery.DefaultTimeout))
	a.Sink = delivery.NewSink(transport, common.ParseDurationOr(cfg.Delivery.MinInterval, 0), a.Logger)
	a.Pipeline = pipeline.NewPipeline(a.History, a.Sink, a.Logger)

	if err := a.initAgent(ctx); err != nil {
		return err
	}

	watchCfg := watch.DefaultConfig()
	watchCfg.TargetDomain = cfg.Watch.TargetDomain
	watchCfg.BatchDelay = common.ParseDurationOr(cfg.Watch.BatchDelay, watchCfg.BatchDelay)
	watchCfg.WatchdogGrace = common.ParseDurationOr(cfg.Watch.WatchdogGrace, watchCfg.WatchdogGrace)
	watchCfg.DefaultScrollCount = cfg.Watch.DefaultScrollCount
	watchCfg.DefaultRefreshInterval = cfg.Watch.DefaultRefreshInterval
	watchCfg.DefaultMaxBatches = cfg.Watch.DefaultMaxBatches
	if cfg.Watch.Source != "" {
		watchCfg.Source = cfg.Watch.Source
	}

	a.Scheduler = watch.NewScheduler(watchCfg, a.StorageManager.SessionStorage(), a.Pipeline, a.Agent, nil, a.Logger)
	a.Agent.SetHandler(a.Scheduler)

	if err := a.Scheduler.Load(ctx); err != nil {
		return fmt.Errorf("failed to restore watch sessions: %w", err)
	}
	if err := a.Scheduler.StartWatchdog(cfg.Watch.WatchdogSchedule); err != nil {
		return fmt.Errorf("failed to start watchdog: %w", err)
	}

	a.BackendClient = backend.NewClient(
		backend.WithBaseURL(cfg.Backend.BaseURL),
		backend.WithTimeout(common.ParseDurationOr(cfg.Backend.Timeout, backend.DefaultTimeout)),
		backend.WithRetryPolicy(backend.NewRetryPolicy(cfg.Backend.MaxAttempts)),
		backend.WithLogger(a.Logger),
	)

	a.ProfileService = profiles.NewService(
		a.StorageManager.KeyValueStorage(),
		a.StorageManager.ProfileStorage(),
		a.History,
		a.BackendClient,
		watchCfg.DefaultScrollCount,
		a.Logger,
	)
	if cfg.Profiles.Dir != "" {
		loaded, err := a.ProfileService.LoadFromDir(ctx, cfg.Profiles.Dir)
		if err != nil {
			// Seed files are optional; a bad directory should not block startup
			a.Logger.Warn().Err(err).Str("dir", cfg.Profiles.Dir).Msg("Failed to load profiles from files")
		} else {
			a.Logger.Info().Int("count", loaded).Str("dir", cfg.Profiles.Dir).Msg("Profiles loaded from files")
		}
	}

	a.ManualService = manual.NewService(a.Extractor, a.Agent, a.History, a.ProfileService, a.BackendClient, a.Logger)
	return nil
}

// initAgent creates the agent transport for the configured mode
func (a *App) initAgent(ctx context.Context) error {
	switch a.Config.Agent.Mode {
	case AgentModeBrowser:
		bc := a.Config.Browser
		pacer := pacing.NewHuman(
			common.ParseDurationOr(a.Config.Pacing.MinDelay, 1500*time.Millisecond),
			common.ParseDurationOr(a.Config.Pacing.MaxDelay, 4*time.Second),
		)
		a.Browser = agents.NewBrowser(agents.BrowserConfig{
			Headless:         bc.Headless,
			UserAgent:        bc.UserAgent,
			SessionCookie:    bc.SessionCookie,
			CookieDomain:     bc.CookieDomain,
			StartURL:         bc.StartURL,
			LoadMoreSelector: bc.LoadMoreSelector,
			RenderWait:       common.ParseDurationOr(bc.RenderWait, 3*time.Second),
		}, a.Extractor, pacer, a.Logger)
		if err := a.Browser.Start(ctx); err != nil {
			a.Browser.Close()
			return fmt.Errorf("failed to start browser agent: %w", err)
		}
		a.Agent = a.Browser
	default:
		a.Bridge = agents.NewBridge(a.Logger)
		a.Agent = a.Bridge
	}

	a.Logger.Debug().Str("mode", a.Config.Agent.Mode).Msg("Agent transport initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a, a.Logger)
	a.WatchHandler = handlers.NewWatchHandler(a.Scheduler, a.ProfileService, a.ProfileService, a.Logger)
	a.AgentHandler = handlers.NewAgentHandler(a.Scheduler, a.Logger)
	a.ExtractHandler = handlers.NewExtractHandler(a.ManualService, a.Logger)
	a.HistoryHandler = handlers.NewHistoryHandler(a.History, a.ProfileService, a.Logger)
	a.UsersHandler = handlers.NewUsersHandler(a.ProfileService, a.BackendClient, a.Logger)
	a.ProfilesHandler = handlers.NewProfilesHandler(a.ProfileService, a.Logger)

	if a.Browser != nil {
		a.TabsHandler = handlers.NewTabsHandler(a.Browser, a.Browser, a.Logger)
	} else {
		a.TabsHandler = handlers.NewTabsHandler(a.Agent, nil, a.Logger)
	}

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// ActiveSessions reports the number of active watch sessions
func (a *App) ActiveSessions() int {
	if a.Scheduler == nil {
		return 0
	}
	active := 0
	for _, session := range a.Scheduler.List() {
		if session.Active {
			active++
		}
	}
	return active
}

// ConnectedAgents reports the number of tabs the agent transport can reach
func (a *App) ConnectedAgents() int {
	if a.Agent == nil {
		return 0
	}
	return len(a.Agent.Tabs())
}

// Close stops background work and closes storage
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
		a.Logger.Info().Msg("Watch scheduler stopped")
	}

	if a.Agent != nil {
		a.Agent.Close()
		a.Logger.Info().Msg("Agent transport closed")
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
