// Package profiles manages the user's identity: backend registration, username
// changes, resume upload, per-user settings and filter profiles.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/backend"
	"github.com/ternarybob/leadwatch/internal/services/dedup"
)

const (
	// MinUsernameLength is the shortest accepted username
	MinUsernameLength = 3

	// MaxScrollCount caps the per-user scroll count setting
	MaxScrollCount = 100

	keyUsername = "current_username"
	keyUserID   = "backend_user_id"
)

var (
	ErrInvalidUsername = errors.New("Please enter a valid username (min 3 chars).")
	ErrSameUsername    = errors.New("This is already your current username.")
	ErrNotRegistered   = errors.New("User ID not found. Please log in again.")
	ErrInvalidSetting  = errors.New("invalid setting")
)

// Backend is the subset of the backend API the service needs
type Backend interface {
	Register(ctx context.Context, username string) (string, error)
	UploadResume(ctx context.Context, userID, filename string, data []byte) (*backend.ResumeUpload, error)
}

// Account is the registered user
type Account struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// Service manages accounts, settings and filter profiles
type Service struct {
	kv                 interfaces.KeyValueStorage
	profiles           interfaces.ProfileStorage
	history            *dedup.Store
	backend            Backend
	defaultScrollCount int
	validate           *validator.Validate
	logger             arbor.ILogger
}

// NewService creates a new profile service
func NewService(kv interfaces.KeyValueStorage, profiles interfaces.ProfileStorage, history *dedup.Store, backend Backend, defaultScrollCount int, logger arbor.ILogger) *Service {
	if defaultScrollCount <= 0 {
		defaultScrollCount = 3
	}
	return &Service{
		kv:                 kv,
		profiles:           profiles,
		history:            history,
		backend:            backend,
		defaultScrollCount: defaultScrollCount,
		validate:           validator.New(),
		logger:             logger,
	}
}

func scrollCountKey(username string) string {
	return fmt.Sprintf("user_%s_scrollCount", username)
}

func (s *Service) get(ctx context.Context, key string) (string, error) {
	value, err := s.kv.Get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return "", nil
	}
	return value, err
}

// Account returns the registered user, or ErrNotRegistered
func (s *Service) Account(ctx context.Context) (*Account, error) {
	username, err := s.get(ctx, keyUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to read username: %w", err)
	}
	if username == "" {
		return nil, ErrNotRegistered
	}
	userID, err := s.get(ctx, keyUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return &Account{Username: username, UserID: userID}, nil
}

// Identity resolves the dedup identity for a request: the requested profile,
// else the registered username, else the default profile
func (s *Service) Identity(ctx context.Context, requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	if account, err := s.Account(ctx); err == nil {
		return account.Username
	}
	return models.DefaultProfileID
}

// UserID returns the backend user id, or "" when not registered
func (s *Service) UserID(ctx context.Context) string {
	userID, err := s.get(ctx, keyUserID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read backend user id")
		return ""
	}
	return userID
}

// Register registers username with the backend and makes it the current user
func (s *Service) Register(ctx context.Context, username string) (*Account, error) {
	username = strings.TrimSpace(username)
	if len(username) < MinUsernameLength {
		return nil, ErrInvalidUsername
	}

	userID, err := s.backend.Register(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := s.storeAccount(ctx, username, userID); err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", username).Msg("User registered")
	return &Account{Username: username, UserID: userID}, nil
}

// ChangeUsername registers a new username and migrates the old user's history and
// settings to it. Nothing is migrated if the backend rejects the new name.
func (s *Service) ChangeUsername(ctx context.Context, username string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) < MinUsernameLength {
		return nil, ErrInvalidUsername
	}

	current, err := s.Account(ctx)
	if err != nil && !errors.Is(err, ErrNotRegistered) {
		return nil, err
	}
	if current != nil && current.Username == username {
		return nil, ErrSameUsername
	}

	userID, err := s.backend.Register(ctx, username)
	if err != nil {
		return nil, err
	}

	if current != nil {
		if err := s.history.Rename(ctx, current.Username, username); err != nil {
			return nil, fmt.Errorf("failed to migrate history: %w", err)
		}
		if err := s.migrateSetting(ctx, scrollCountKey(current.Username), scrollCountKey(username)); err != nil {
			return nil, err
		}
	}

	if err := s.storeAccount(ctx, username, userID); err != nil {
		return nil, err
	}

	from := ""
	if current != nil {
		from = current.Username
	}
	s.logger.Info().Str("from", from).Str("to", username).Msg("Username changed")
	return &Account{Username: username, UserID: userID}, nil
}

func (s *Service) storeAccount(ctx context.Context, username, userID string) error {
	if err := s.kv.Set(ctx, keyUsername, username, "Current username"); err != nil {
		return fmt.Errorf("failed to store username: %w", err)
	}
	if err := s.kv.Set(ctx, keyUserID, userID, "Backend user id"); err != nil {
		return fmt.Errorf("failed to store user id: %w", err)
	}
	return nil
}

func (s *Service) migrateSetting(ctx context.Context, from, to string) error {
	value, err := s.get(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", from, err)
	}
	if value == "" {
		return nil
	}
	if err := s.kv.Set(ctx, to, value, "Scroll count"); err != nil {
		return fmt.Errorf("failed to write %s: %w", to, err)
	}
	if err := s.kv.Delete(ctx, from); err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove %s: %w", from, err)
	}
	return nil
}

// ScrollCount returns the current user's scroll count setting
func (s *Service) ScrollCount(ctx context.Context) (int, error) {
	account, err := s.Account(ctx)
	if errors.Is(err, ErrNotRegistered) {
		return s.defaultScrollCount, nil
	}
	if err != nil {
		return 0, err
	}

	raw, err := s.get(ctx, scrollCountKey(account.Username))
	if err != nil {
		return 0, fmt.Errorf("failed to read scroll count: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return s.defaultScrollCount, nil
	}
	return n, nil
}

// SetScrollCount stores the current user's scroll count setting
func (s *Service) SetScrollCount(ctx context.Context, count int) error {
	if count < 1 || count > MaxScrollCount {
		return fmt.Errorf("%w: scroll count must be between 1 and %d", ErrInvalidSetting, MaxScrollCount)
	}
	account, err := s.Account(ctx)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, scrollCountKey(account.Username), strconv.Itoa(count), "Scroll count"); err != nil {
		return fmt.Errorf("failed to store scroll count: %w", err)
	}
	return nil
}
