package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/leadwatch/internal/models"
)

// ErrTabGone is returned when a command targets a tab whose agent is no longer reachable
var ErrTabGone = errors.New("tab gone")

// TabController is the coordinator's handle on in-page agents.
// Every call crosses an execution context and may fail if the tab closed or navigated away.
type TabController interface {
	// Reload reloads the tab; the agent later reports PAGE_LOADED
	Reload(ctx context.Context, tabID string) error

	// RunBatch dispatches one extraction batch; the result arrives asynchronously as BATCH_RESULT
	RunBatch(ctx context.Context, tabID string, cmd models.BatchCommand) error

	// SetBadge updates the badge text shown for the tab
	SetBadge(ctx context.Context, tabID string, text string) error

	// Notify surfaces a user-visible message in the tab
	Notify(ctx context.Context, tabID string, message string) error
}

// Snapshotter captures a single extraction from a tab without watch-mode bookkeeping
type Snapshotter interface {
	Snapshot(ctx context.Context, tabID string, filters models.FilterConfig) (*models.BatchResult, error)
}

// BatchHandler receives agent notifications; implemented by the watch scheduler
type BatchHandler interface {
	PageLoaded(ctx context.Context, tabID string, url string) error
	HandleBatchResult(ctx context.Context, tabID string, result *models.BatchResult) (*models.BatchAck, error)
}
