package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SessionStorage persists watch sessions keyed by tab id
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SessionStorage) SaveSession(ctx context.Context, session *models.Session) error {
	if session.TabID == "" {
		return fmt.Errorf("session tab id is required")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	if err := s.db.Store().Upsert(session.TabID, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStorage) GetSession(ctx context.Context, tabID string) (*models.Session, error) {
	var session models.Session
	err := s.db.Store().Get(tabID, &session)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// ListSessions returns every stored session, oldest first
func (s *SessionStorage) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []models.Session
	if err := s.db.Store().Find(&sessions, nil); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	result := make([]*models.Session, 0, len(sessions))
	for i := range sessions {
		result = append(result, &sessions[i])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// DeleteSession removes a session; deleting an unknown tab is not an error
func (s *SessionStorage) DeleteSession(ctx context.Context, tabID string) error {
	err := s.db.Store().Delete(tabID, &models.Session{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
