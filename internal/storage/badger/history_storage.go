package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// HistoryStorage persists per-identity dedup key arrays
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *HistoryStorage) LoadHistory(ctx context.Context, profileID string) ([]string, error) {
	var record models.HistoryRecord
	err := s.db.Store().Get(profileID, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", profileID, err)
	}
	if record.Keys == nil {
		return []string{}, nil
	}
	return record.Keys, nil
}

func (s *HistoryStorage) SaveHistory(ctx context.Context, profileID string, keys []string) error {
	record := &models.HistoryRecord{
		ProfileID: profileID,
		Keys:      keys,
		UpdatedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(profileID, record); err != nil {
		return fmt.Errorf("failed to save history for %s: %w", profileID, err)
	}
	s.logger.Debug().Str("profile_id", profileID).Int("keys", len(keys)).Msg("History saved")
	return nil
}

func (s *HistoryStorage) DeleteHistory(ctx context.Context, profileID string) error {
	err := s.db.Store().Delete(profileID, &models.HistoryRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete history for %s: %w", profileID, err)
	}
	return nil
}
