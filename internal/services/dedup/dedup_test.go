package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
)

type memoryHistory struct {
	mu   sync.Mutex
	data map[string][]string
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{data: make(map[string][]string)}
}

func (m *memoryHistory) LoadHistory(ctx context.Context, profileID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.data[profileID]...), nil
}

func (m *memoryHistory) SaveHistory(ctx context.Context, profileID string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[profileID] = append([]string{}, keys...)
	return nil
}

func (m *memoryHistory) DeleteHistory(ctx context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, profileID)
	return nil
}

func TestHistory_CapacityKeepsMostRecent(t *testing.T) {
	h := NewHistory(3, nil)

	h.Merge([]string{"a", "b"})
	h.Merge([]string{"c", "d"})
	assert.Equal(t, []string{"b", "c", "d"}, h.Keys())
	assert.False(t, h.Contains("a"))

	// Existing keys keep their position and are not refreshed
	h.Merge([]string{"b", "e"})
	assert.Equal(t, []string{"c", "d", "e"}, h.Keys())
	assert.Equal(t, 3, h.Len())
}

func TestHistory_CapacityNeverExceeded(t *testing.T) {
	h := NewHistory(DefaultCapacity, nil)
	var inserted []string

	for batch := 0; batch < 30; batch++ {
		keys := make([]string, 0, 400)
		for i := 0; i < 400; i++ {
			// every third batch repeats keys from the previous one
			n := batch*400 + i
			if batch%3 == 2 {
				n -= 400
			}
			keys = append(keys, fmt.Sprintf("lead-%d@example.com", n))
		}
		for _, key := range keys {
			if !contains(inserted, key) {
				inserted = append(inserted, key)
			}
		}
		h.Merge(keys)
		require.LessOrEqual(t, h.Len(), DefaultCapacity)
	}

	want := inserted
	if len(want) > DefaultCapacity {
		want = want[len(want)-DefaultCapacity:]
	}
	assert.Equal(t, want, h.Keys())
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func TestSplit_WithinBatchThenHistory(t *testing.T) {
	history := NewHistory(10, []string{"old@acme.co"})
	leads := []models.Lead{
		{Name: "A", Email: "New@Acme.co"},
		{Name: "A again", Email: "new@acme.co"},
		{Name: "Old", Email: "old@acme.co"},
		{Name: "Job only", JobLink: "https://www.linkedin.com/jobs/view/1/"},
		{Name: "Nothing"},
	}

	p := Split(history, leads)
	require.Len(t, p.Fresh, 2)
	assert.Equal(t, "A", p.Fresh[0].Name)
	assert.Equal(t, []string{"new@acme.co", "https://www.linkedin.com/jobs/view/1/"}, p.Keys)
	assert.Equal(t, 2, p.Duplicates)
	assert.Equal(t, 1, p.Keyless)
}

func TestStore_IdentitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemoryHistory(), 100, arbor.NewLogger())

	_, err := store.Merge(ctx, "alice", []string{"Jane@Acme.co"})
	require.NoError(t, err)

	dup, err := store.IsDuplicate(ctx, "alice", "jane@acme.co")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = store.IsDuplicate(ctx, "bob", "jane@acme.co")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestStore_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemoryHistory(), 100, arbor.NewLogger())

	first, err := store.Merge(ctx, "", []string{"a@x.io", "b@x.io"})
	require.NoError(t, err)
	second, err := store.Merge(ctx, models.DefaultProfileID, []string{"a@x.io", "b@x.io"})
	require.NoError(t, err)

	assert.Equal(t, first.Keys(), second.Keys())
}

func TestStore_UpdateErrorCommitsNothing(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemoryHistory(), 100, arbor.NewLogger())

	err := store.Update(ctx, "alice", func(h *History) ([]string, error) {
		return []string{"a@x.io"}, fmt.Errorf("send failed")
	})
	require.Error(t, err)

	count, err := store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_ConcurrentUpdatesDoNotLoseKeys(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemoryHistory(), DefaultCapacity, arbor.NewLogger())

	var wg sync.WaitGroup
	for tab := 0; tab < 8; tab++ {
		wg.Add(1)
		go func(tab int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				key := fmt.Sprintf("tab%d-%d@x.io", tab, i)
				err := store.Update(ctx, "shared", func(h *History) ([]string, error) {
					return []string{key}, nil
				})
				assert.NoError(t, err)
			}
		}(tab)
	}
	wg.Wait()

	count, err := store.Count(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 200, count)
}

func TestStore_RenameAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemoryHistory(), 100, arbor.NewLogger())

	_, err := store.Merge(ctx, "old-name", []string{"a@x.io"})
	require.NoError(t, err)
	_, err = store.Merge(ctx, "new-name", []string{"b@x.io"})
	require.NoError(t, err)

	require.NoError(t, store.Rename(ctx, "old-name", "new-name"))

	h, err := store.History(ctx, "new-name")
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.io", "a@x.io"}, h.Keys())

	count, err := store.Count(ctx, "old-name")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.Reset(ctx, "new-name"))
	count, err = store.Count(ctx, "new-name")
	require.NoError(t, err)
	assert.Zero(t, count)
}
