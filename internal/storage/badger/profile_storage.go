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

// ProfileStorage persists filter profiles
type ProfileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProfileStorage creates a new ProfileStorage instance
func NewProfileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProfileStorage {
	return &ProfileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProfileStorage) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile id is required")
	}

	now := time.Now()
	var existing models.Profile
	if err := s.db.Store().Get(profile.ID, &existing); err == nil {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	if err := s.db.Store().Upsert(profile.ID, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *ProfileStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.Store().Get(id, &profile)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// ListProfiles returns all profiles ordered by id
func (s *ProfileStorage) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	var profiles []models.Profile
	if err := s.db.Store().Find(&profiles, nil); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	result := make([]*models.Profile, 0, len(profiles))
	for i := range profiles {
		result = append(result, &profiles[i])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *ProfileStorage) DeleteProfile(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.Profile{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
