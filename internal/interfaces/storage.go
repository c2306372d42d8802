package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/leadwatch/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// ErrNotFound is returned when a session or profile does not exist
var ErrNotFound = errors.New("not found")

// SessionStorage persists watch sessions keyed by tab id
type SessionStorage interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, tabID string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	DeleteSession(ctx context.Context, tabID string) error
}

// HistoryStorage persists per-identity dedup key arrays in insertion order
type HistoryStorage interface {
	// LoadHistory returns the stored keys, or an empty slice when the identity has none
	LoadHistory(ctx context.Context, profileID string) ([]string, error)
	SaveHistory(ctx context.Context, profileID string, keys []string) error
	DeleteHistory(ctx context.Context, profileID string) error
}

// ProfileStorage persists filter profiles
type ProfileStorage interface {
	SaveProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]*models.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// KeyValuePair represents a single key/value pair with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage holds scalar settings. Keys are case-insensitive.
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if absent
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or updates a key/value pair with optional description
	Set(ctx context.Context, key string, value string, description string) error

	// Delete removes a key/value pair, returns ErrKeyNotFound if absent
	Delete(ctx context.Context, key string) error

	// ListByPrefix returns all key/value pairs with keys starting with the given prefix
	ListByPrefix(ctx context.Context, prefix string) ([]KeyValuePair, error)
}

// StorageManager aggregates the stores backing one database
type StorageManager interface {
	SessionStorage() SessionStorage
	HistoryStorage() HistoryStorage
	ProfileStorage() ProfileStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
