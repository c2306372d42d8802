package handlers

import (
	"context"

	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/backend"
	"github.com/ternarybob/leadwatch/internal/services/manual"
	"github.com/ternarybob/leadwatch/internal/services/profiles"
	"github.com/ternarybob/leadwatch/internal/services/watch"
)

// WatchService is the watch-mode surface used by HTTP handlers
type WatchService interface {
	Start(ctx context.Context, req watch.StartRequest) (*models.Session, error)
	Stop(ctx context.Context, tabID string) error
	Status(tabID string) (*models.Session, bool)
	List() []*models.Session
}

// Extractor runs manual extractions
type Extractor interface {
	Extract(ctx context.Context, req manual.Request) (*manual.Result, error)
}

// HistoryService exposes per-identity dedup history
type HistoryService interface {
	Count(ctx context.Context, identity string) (int, error)
	Reset(ctx context.Context, identity string) error
}

// AccountService manages the registered user and settings
type AccountService interface {
	Account(ctx context.Context) (*profiles.Account, error)
	Identity(ctx context.Context, requested string) string
	UserID(ctx context.Context) string
	Register(ctx context.Context, username string) (*profiles.Account, error)
	ChangeUsername(ctx context.Context, username string) (*profiles.Account, error)
	UploadResume(ctx context.Context, filename, contentType string, data []byte) (*backend.ResumeUpload, error)
	ScrollCount(ctx context.Context) (int, error)
	SetScrollCount(ctx context.Context, count int) error
}

// ProfileService manages filter profiles
type ProfileService interface {
	SaveProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	ResolveProfile(ctx context.Context, id string) (*models.Profile, bool)
}

// ContactFetcher reads the backend contact list
type ContactFetcher interface {
	FetchContacts(ctx context.Context, userID string, page, pageSize int) (*backend.ContactsPage, error)
}

// TabLister reports the tabs an agent currently reaches
type TabLister interface {
	Tabs() []string
}

// TabOpener opens and closes agent-owned tabs; only the browser agent has them
type TabOpener interface {
	Open(ctx context.Context, tabID string, url string) error
	CloseTab(tabID string)
}
