package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

// ErrInvalidProfile wraps profile validation failures
var ErrInvalidProfile = errors.New("invalid profile")

// SaveProfile validates and stores a filter profile
func (s *Service) SaveProfile(ctx context.Context, profile *models.Profile) error {
	profile.ID = strings.TrimSpace(profile.ID)
	profile.WebhookURL = strings.TrimSpace(profile.WebhookURL)
	if profile.Name == "" {
		profile.Name = profile.ID
	}
	profile.Filters = profile.Filters.Normalized()

	if err := s.validate.Struct(profile); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(problems, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	if err := s.profiles.SaveProfile(ctx, profile); err != nil {
		return err
	}
	s.logger.Info().Str("profile_id", profile.ID).Msg("Profile saved")
	return nil
}

// GetProfile returns a profile, or interfaces.ErrNotFound
func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return s.profiles.GetProfile(ctx, id)
}

// ListProfiles returns all profiles
func (s *Service) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	return s.profiles.ListProfiles(ctx)
}

// DeleteProfile removes a profile together with its dedup history
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.profiles.GetProfile(ctx, id); err != nil {
		return err
	}
	if err := s.profiles.DeleteProfile(ctx, id); err != nil {
		return err
	}
	if err := s.history.Reset(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("profile_id", id).Msg("Failed to clear history of deleted profile")
	}
	s.logger.Info().Str("profile_id", id).Msg("Profile deleted")
	return nil
}

// ResolveProfile loads a profile when id names one; a missing profile is not an error
func (s *Service) ResolveProfile(ctx context.Context, id string) (*models.Profile, bool) {
	if id == "" {
		return nil, false
	}
	profile, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Str("profile_id", id).Msg("Failed to load profile")
		}
		return nil, false
	}
	return profile, true
}
