// Package dedup tracks which leads each identity has already delivered.
package dedup

// DefaultCapacity is the number of keys retained per identity
const DefaultCapacity = 5000

// History is an insertion-ordered bounded set of dedup keys.
// Re-inserting a present key keeps its original position; once the set
// grows past capacity the oldest keys are evicted first.
type History struct {
	capacity int
	order    []string
	index    map[string]struct{}
}

// NewHistory builds a history from persisted keys, oldest first
func NewHistory(capacity int, keys []string) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &History{
		capacity: capacity,
		order:    make([]string, 0, len(keys)),
		index:    make(map[string]struct{}, len(keys)),
	}
	h.Merge(keys)
	return h
}

// Contains reports whether key is present
func (h *History) Contains(key string) bool {
	if key == "" {
		return false
	}
	_, ok := h.index[key]
	return ok
}

// Merge appends unseen keys and evicts from the front past capacity.
// It returns the number of keys that were new.
func (h *History) Merge(keys []string) int {
	added := 0
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := h.index[key]; ok {
			continue
		}
		h.index[key] = struct{}{}
		h.order = append(h.order, key)
		added++
	}

	if overflow := len(h.order) - h.capacity; overflow > 0 {
		for _, evicted := range h.order[:overflow] {
			delete(h.index, evicted)
		}
		h.order = append([]string(nil), h.order[overflow:]...)
	}
	return added
}

// Keys returns a copy of the keys, oldest first
func (h *History) Keys() []string {
	return append([]string(nil), h.order...)
}

// Len returns the number of keys held
func (h *History) Len() int {
	return len(h.order)
}

// Capacity returns the configured bound
func (h *History) Capacity() int {
	return h.capacity
}
