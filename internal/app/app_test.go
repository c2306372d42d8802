package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/watch"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Watch.WatchdogSchedule = ""
	cfg.Logging.Output = []string{"stdout"}
	return cfg
}

func TestNew_ExtensionMode(t *testing.T) {
	cfg := testConfig(t)

	application, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	assert.NotEmpty(t, application.InstanceID)
	require.NotNil(t, application.Bridge)
	assert.Nil(t, application.Browser)
	assert.NotNil(t, application.Scheduler)
	assert.NotNil(t, application.WatchHandler)
	assert.NotNil(t, application.TabsHandler)
	assert.Equal(t, 0, application.ActiveSessions())
	assert.Equal(t, 0, application.ConnectedAgents())
}

func TestNew_SeedsProfiles(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Profiles.Dir = dir
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.toml"), []byte(`
name = "Sales"
webhook_url = "https://hooks.example.com/sales"

[filters]
keywords = ["hiring"]
`), 0644))

	application, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	profile, err := application.ProfileService.GetProfile(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/sales", profile.WebhookURL)
}

func TestNew_StartWithoutAgentStopsSession(t *testing.T) {
	cfg := testConfig(t)

	application, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	// No extension is connected, so the initial reload cannot reach the tab
	_, err = application.Scheduler.Start(context.Background(), watch.StartRequest{
		TabID:      "tab-1",
		WebhookURL: "https://hooks.example.com/leads",
	})
	require.Error(t, err)
	assert.Equal(t, 0, application.ActiveSessions())
}

func TestNew_SessionsSurviveRestart(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, first.StorageManager.SessionStorage().SaveSession(context.Background(), sessionFixture("tab-9")))
	require.NoError(t, first.Close())

	second, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	assert.Equal(t, 1, second.ActiveSessions())
}

func sessionFixture(tabID string) *models.Session {
	now := time.Now()
	return &models.Session{
		TabID:             tabID,
		Active:            true,
		ProfileID:         "alice",
		WebhookURL:        "https://hooks.example.com/leads",
		ScrollCount:       3,
		RefreshIntervalMs: time.Hour.Milliseconds(),
		MaxBatches:        50,
		CycleStartTime:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
