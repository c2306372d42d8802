// Package pacing provides the human-like delays agents insert between page actions.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer waits between page actions. Implementations must honour ctx cancellation.
type Pacer interface {
	Pause(ctx context.Context) error
}

// Human waits a uniformly random duration in [min, max]
type Human struct {
	min time.Duration
	max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewHuman creates a randomized pacer. max below min is raised to min.
func NewHuman(min, max time.Duration) *Human {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &Human{
		min: min,
		max: max,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay without waiting
func (h *Human) Next() time.Duration {
	if h.max == h.min {
		return h.min
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.min + time.Duration(h.rnd.Int63n(int64(h.max-h.min)+1))
}

func (h *Human) Pause(ctx context.Context) error {
	return Sleep(ctx, h.Next())
}

// None never waits
type None struct{}

func (None) Pause(ctx context.Context) error {
	return ctx.Err()
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
