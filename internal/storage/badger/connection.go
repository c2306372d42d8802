package badger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// gcDiscardRatio is the share of stale data a value log file needs before it is rewritten
const gcDiscardRatio = 0.5

// BadgerDB owns the badgerhold store and its value-log garbage collection.
// History records are rewritten on every delivered batch, so stale values pile up quickly.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig

	stopGC chan struct{}
	gcDone sync.WaitGroup
	once   sync.Once
}

// NewBadgerDB opens the database at config.Path (or in memory) and starts value-log GC
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil // arbor covers storage events

	if config.InMemory {
		options.InMemory = true
		options.Dir = ""
		options.ValueDir = ""
	} else {
		if err := prepareDir(logger, config); err != nil {
			return nil, err
		}
		options.Dir = config.Path
		options.ValueDir = config.Path
	}

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	db := &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
		stopGC: make(chan struct{}),
	}

	if interval := common.ParseDurationOr(config.GCInterval, 0); interval > 0 && !config.InMemory {
		db.gcDone.Add(1)
		common.SafeGo(logger, "badger-value-log-gc", func() {
			defer db.gcDone.Done()
			db.runGC(interval)
		})
	}

	logger.Debug().
		Str("path", config.Path).
		Bool("in_memory", config.InMemory).
		Str("gc_interval", config.GCInterval).
		Msg("Badger database opened")
	return db, nil
}

func prepareDir(logger arbor.ILogger, config *common.BadgerConfig) error {
	if config.ResetOnStartup {
		logger.Warn().Str("path", config.Path).Msg("Resetting database (reset_on_startup=true)")
		if err := os.RemoveAll(config.Path); err != nil {
			return fmt.Errorf("failed to reset database directory: %w", err)
		}
	}
	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// runGC rewrites value log files until badger reports nothing left to collect
func (b *BadgerDB) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			rewritten := 0
			for b.store.Badger().RunValueLogGC(gcDiscardRatio) == nil {
				rewritten++
			}
			if rewritten > 0 {
				b.logger.Debug().Int("files", rewritten).Msg("Badger value log collected")
			}
		}
	}
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close stops GC and closes the store. Safe to call more than once.
func (b *BadgerDB) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stopGC)
		b.gcDone.Wait()
		if b.store != nil {
			err = b.store.Close()
		}
	})
	return err
}
