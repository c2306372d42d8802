package profiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/leadwatch/internal/models"
	"gopkg.in/yaml.v3"
)

// LoadFromDir seeds filter profiles from TOML and YAML files in dir. A missing
// directory is not an error; unreadable or invalid files are skipped.
func (s *Service) LoadFromDir(ctx context.Context, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		s.logger.Debug().Str("path", dir).Msg("Profiles directory not found, skipping")
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	loaded, skipped := 0, 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		profile, err := readProfileFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to load profile file")
			skipped++
			continue
		}
		if profile == nil {
			skipped++
			continue
		}
		if profile.ID == "" {
			profile.ID = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}

		if err := s.SaveProfile(ctx, profile); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Profile file rejected")
			skipped++
			continue
		}
		loaded++
	}

	s.logger.Info().Int("loaded", loaded).Int("skipped", skipped).Str("path", dir).Msg("Finished loading profiles")
	return loaded, nil
}

// readProfileFile decodes a profile; unsupported extensions return nil
func readProfileFile(path string) (*models.Profile, error) {
	var unmarshal func([]byte, interface{}) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		unmarshal = toml.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var profile models.Profile
	if err := unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return &profile, nil
}
