package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	sessions interfaces.SessionStorage
	history  interfaces.HistoryStorage
	profiles interfaces.ProfileStorage
	kv       interfaces.KeyValueStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		sessions: NewSessionStorage(db, logger),
		history:  NewHistoryStorage(db, logger),
		profiles: NewProfileStorage(db, logger),
		kv:       NewKVStorage(db, logger),
		logger:   logger,
	}
}

// SessionStorage returns the Session storage interface
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.sessions
}

// HistoryStorage returns the History storage interface
func (m *Manager) HistoryStorage() interfaces.HistoryStorage {
	return m.history
}

// ProfileStorage returns the Profile storage interface
func (m *Manager) ProfileStorage() interfaces.ProfileStorage {
	return m.profiles
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
