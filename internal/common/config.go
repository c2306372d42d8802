package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Watch       WatchConfig    `toml:"watch"`
	History     HistoryConfig  `toml:"history"`
	Delivery    DeliveryConfig `toml:"delivery"`
	Backend     BackendConfig  `toml:"backend"`
	Agent       AgentConfig    `toml:"agent"`
	Browser     BrowserConfig  `toml:"browser"`
	Pacing      PacingConfig   `toml:"pacing"`
	Profiles    ProfilesConfig `toml:"profiles"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	InMemory       bool   `toml:"in_memory"`        // Keep everything in memory; nothing survives a restart
	GCInterval     string `toml:"gc_interval"`      // Value log GC period, empty disables it (default: "10m")
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for log lines (default: "15:04:05")
}

// WatchConfig controls the per-tab watch-mode batch cycle
type WatchConfig struct {
	TargetDomain           string `toml:"target_domain"`            // Page-load notifications outside this domain are ignored
	BatchDelay             string `toml:"batch_delay"`              // Safety delay between batches of one session (default: "5s")
	DefaultScrollCount     int    `toml:"default_scroll_count"`     // Scroll iterations per batch when a start request omits it
	DefaultRefreshInterval int    `toml:"default_refresh_interval"` // Minutes per cycle before a reload when omitted
	DefaultMaxBatches      int    `toml:"default_max_batches"`      // Batches per cycle before a reload when omitted
	WatchdogSchedule       string `toml:"watchdog_schedule"`        // Cron spec for the stalled-session sweep, empty disables it
	WatchdogGrace          string `toml:"watchdog_grace"`           // Extra silence tolerated beyond the refresh interval
	Source                 string `toml:"source"`                   // meta.source on watch-mode webhook payloads
}

// HistoryConfig bounds the per-identity dedup history
type HistoryConfig struct {
	Capacity int `toml:"capacity"`
}

// DeliveryConfig configures the webhook sink
type DeliveryConfig struct {
	Timeout     string `toml:"timeout"`      // Request timeout (default: "30s")
	MinInterval string `toml:"min_interval"` // Minimum spacing between posts to the same endpoint, empty disables pacing
}

// BackendConfig configures the contact backend client
type BackendConfig struct {
	BaseURL     string `toml:"base_url"`
	Timeout     string `toml:"timeout"`
	MaxAttempts int    `toml:"max_attempts"`
}

// AgentConfig selects how the coordinator reaches in-page agents
type AgentConfig struct {
	Mode string `toml:"mode"` // "extension" (websocket bridge) or "browser" (chromedp)
}

// BrowserConfig configures the chromedp-backed agent
type BrowserConfig struct {
	Headless         bool   `toml:"headless"`
	UserAgent        string `toml:"user_agent"`
	SessionCookie    string `toml:"session_cookie"`     // li_at cookie value, injected before the first navigation
	CookieDomain     string `toml:"cookie_domain"`      // Domain the session cookie is scoped to
	StartURL         string `toml:"start_url"`          // Default URL opened for a new tab
	LoadMoreSelector string `toml:"load_more_selector"` // Button clicked after each scroll when present
	RenderWait       string `toml:"render_wait"`        // Wait after navigation before snapshots
}

// PacingConfig bounds the randomized human-like delays used by agents
type PacingConfig struct {
	MinDelay string `toml:"min_delay"`
	MaxDelay string `toml:"max_delay"`
}

// ProfilesConfig points at seed files for filter profiles
type ProfilesConfig struct {
	Dir string `toml:"dir"` // Directory of *.toml / *.yaml profile files, empty disables seeding
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8686,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:       "./data",
				GCInterval: "10m",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Watch: WatchConfig{
			TargetDomain:           "linkedin.com",
			BatchDelay:             "5s",
			DefaultScrollCount:     3,
			DefaultRefreshInterval: 60,
			DefaultMaxBatches:      50,
			WatchdogSchedule:       "@every 1m",
			WatchdogGrace:          "10m",
			Source:                 "WATCH_MODE_AUTOPILOT",
		},
		History: HistoryConfig{
			Capacity: 5000,
		},
		Delivery: DeliveryConfig{
			Timeout:     "30s",
			MinInterval: "",
		},
		Backend: BackendConfig{
			BaseURL:     "https://jobseekers-for-linkedin-production.up.railway.app",
			Timeout:     "30s",
			MaxAttempts: 3,
		},
		Agent: AgentConfig{
			Mode: "extension",
		},
		Browser: BrowserConfig{
			Headless:         true,
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			CookieDomain:     ".linkedin.com",
			StartURL:         "https://www.linkedin.com/feed/",
			LoadMoreSelector: "button.scaffold-finite-scroll__load-button",
			RenderWait:       "3s",
		},
		Pacing: PacingConfig{
			MinDelay: "1.5s",
			MaxDelay: "4s",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied by the caller afterwards.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies LEADWATCH_* environment variables on top of file config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LEADWATCH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("LEADWATCH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LEADWATCH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage
	if badgerPath := os.Getenv("LEADWATCH_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("LEADWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("LEADWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Watch
	if domain := os.Getenv("LEADWATCH_WATCH_TARGET_DOMAIN"); domain != "" {
		config.Watch.TargetDomain = domain
	}
	if delay := os.Getenv("LEADWATCH_WATCH_BATCH_DELAY"); delay != "" {
		config.Watch.BatchDelay = delay
	}
	if schedule, ok := os.LookupEnv("LEADWATCH_WATCH_WATCHDOG_SCHEDULE"); ok {
		config.Watch.WatchdogSchedule = schedule
	}

	// History
	if capacity := os.Getenv("LEADWATCH_HISTORY_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			config.History.Capacity = c
		}
	}

	// Delivery
	if timeout := os.Getenv("LEADWATCH_DELIVERY_TIMEOUT"); timeout != "" {
		config.Delivery.Timeout = timeout
	}
	if interval := os.Getenv("LEADWATCH_DELIVERY_MIN_INTERVAL"); interval != "" {
		config.Delivery.MinInterval = interval
	}

	// Backend
	if baseURL := os.Getenv("LEADWATCH_BACKEND_BASE_URL"); baseURL != "" {
		config.Backend.BaseURL = baseURL
	}

	// Agent / browser
	if mode := os.Getenv("LEADWATCH_AGENT_MODE"); mode != "" {
		config.Agent.Mode = mode
	}
	if headless := os.Getenv("LEADWATCH_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if cookie := os.Getenv("LEADWATCH_BROWSER_SESSION_COOKIE"); cookie != "" {
		config.Browser.SessionCookie = cookie
	}

	// Profiles
	if dir := os.Getenv("LEADWATCH_PROFILES_DIR"); dir != "" {
		config.Profiles.Dir = dir
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate rejects configuration values that would otherwise be silently misused
func (c *Config) Validate() error {
	durations := map[string]string{
		"storage.badger.gc_interval": c.Storage.Badger.GCInterval,
		"watch.batch_delay":          c.Watch.BatchDelay,
		"watch.watchdog_grace":       c.Watch.WatchdogGrace,
		"delivery.timeout":           c.Delivery.Timeout,
		"delivery.min_interval":      c.Delivery.MinInterval,
		"backend.timeout":            c.Backend.Timeout,
		"browser.render_wait":        c.Browser.RenderWait,
		"pacing.min_delay":           c.Pacing.MinDelay,
		"pacing.max_delay":           c.Pacing.MaxDelay,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field, err)
		}
	}

	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be greater than 0, got: %d", c.History.Capacity)
	}

	switch c.Agent.Mode {
	case "extension", "browser":
	default:
		return fmt.Errorf("agent.mode must be \"extension\" or \"browser\", got: %q", c.Agent.Mode)
	}

	if c.Watch.WatchdogSchedule != "" {
		if _, err := cron.ParseStandard(c.Watch.WatchdogSchedule); err != nil {
			return fmt.Errorf("invalid watch.watchdog_schedule: %w", err)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
