package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
)

// Partition is the split of one batch against an identity's history
type Partition struct {
	Fresh      []models.Lead
	Keys       []string // dedup keys of Fresh, same order
	Duplicates int      // seen earlier in the batch or already in history
	Keyless    int      // no email and no job link, never deliverable
}

// Store owns every identity's History. Load-modify-persist sequences for one
// identity run under that identity's lock, so concurrent tabs sharing an
// identity never drop each other's keys.
type Store struct {
	storage  interfaces.HistoryStorage
	capacity int
	logger   arbor.ILogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a new dedup store
func NewStore(storage interfaces.HistoryStorage, capacity int, logger arbor.ILogger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		storage:  storage,
		capacity: capacity,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func normalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return models.DefaultProfileID
	}
	return identity
}

func (s *Store) lock(identity string) func() {
	s.mu.Lock()
	l, ok := s.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		s.locks[identity] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) load(ctx context.Context, identity string) (*History, error) {
	keys, err := s.storage.LoadHistory(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return NewHistory(s.capacity, keys), nil
}

// History returns a snapshot of the identity's history
func (s *Store) History(ctx context.Context, identity string) (*History, error) {
	identity = normalizeIdentity(identity)
	unlock := s.lock(identity)
	defer unlock()
	return s.load(ctx, identity)
}

// IsDuplicate reports whether key was already delivered for identity
func (s *Store) IsDuplicate(ctx context.Context, identity string, key string) (bool, error) {
	history, err := s.History(ctx, identity)
	if err != nil {
		return false, err
	}
	return history.Contains(strings.ToLower(key)), nil
}

// Merge commits keys into the identity's history and persists it
func (s *Store) Merge(ctx context.Context, identity string, keys []string) (*History, error) {
	var merged *History
	err := s.Update(ctx, identity, func(h *History) ([]string, error) {
		merged = h
		return keys, nil
	})
	return merged, err
}

// Update runs fn inside the identity's critical section. fn receives the current
// history and returns the keys to commit; they are merged and persisted before
// the lock is released. Returning an error or no keys commits nothing.
func (s *Store) Update(ctx context.Context, identity string, fn func(h *History) ([]string, error)) error {
	identity = normalizeIdentity(identity)
	unlock := s.lock(identity)
	defer unlock()

	history, err := s.load(ctx, identity)
	if err != nil {
		return err
	}

	commit, err := fn(history)
	if err != nil {
		return err
	}
	if len(commit) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(commit))
	for _, key := range commit {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(key)))
	}
	added := history.Merge(normalized)

	if err := s.storage.SaveHistory(ctx, identity, history.Keys()); err != nil {
		return fmt.Errorf("failed to persist history: %w", err)
	}

	s.logger.Debug().
		Str("identity", identity).
		Int("added", added).
		Int("size", history.Len()).
		Msg("History updated")
	return nil
}

// Count returns the number of keys held for identity
func (s *Store) Count(ctx context.Context, identity string) (int, error) {
	history, err := s.History(ctx, identity)
	if err != nil {
		return 0, err
	}
	return history.Len(), nil
}

// Reset clears the identity's history
func (s *Store) Reset(ctx context.Context, identity string) error {
	identity = normalizeIdentity(identity)
	unlock := s.lock(identity)
	defer unlock()

	if err := s.storage.DeleteHistory(ctx, identity); err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}
	s.logger.Info().Str("identity", identity).Msg("History cleared")
	return nil
}

// Rename moves one identity's history to another, merging into any existing target keys
func (s *Store) Rename(ctx context.Context, from, to string) error {
	from, to = normalizeIdentity(from), normalizeIdentity(to)
	if from == to {
		return nil
	}

	// Lock in a stable order so two opposing renames cannot deadlock
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	unlockFirst := s.lock(first)
	defer unlockFirst()
	unlockSecond := s.lock(second)
	defer unlockSecond()

	source, err := s.load(ctx, from)
	if err != nil {
		return err
	}
	if source.Len() == 0 {
		return nil
	}

	target, err := s.load(ctx, to)
	if err != nil {
		return err
	}
	target.Merge(source.Keys())

	if err := s.storage.SaveHistory(ctx, to, target.Keys()); err != nil {
		return fmt.Errorf("failed to persist renamed history: %w", err)
	}
	if err := s.storage.DeleteHistory(ctx, from); err != nil {
		return fmt.Errorf("failed to remove old history: %w", err)
	}

	s.logger.Info().Str("from", from).Str("to", to).Int("keys", source.Len()).Msg("History migrated")
	return nil
}

// Split filters a batch against history: keyless leads are dropped, repeats within
// the batch are dropped, then anything already in history is dropped.
func Split(history *History, leads []models.Lead) Partition {
	p := Partition{Fresh: []models.Lead{}, Keys: []string{}}
	seen := make(map[string]struct{}, len(leads))

	for _, lead := range leads {
		key := lead.DedupKey()
		if key == "" {
			p.Keyless++
			continue
		}
		if _, dup := seen[key]; dup {
			p.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if history != nil && history.Contains(key) {
			p.Duplicates++
			continue
		}
		p.Fresh = append(p.Fresh, lead)
		p.Keys = append(p.Keys, key)
	}
	return p
}
