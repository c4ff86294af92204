package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// UsageRecorder is a mutex-guarded in-memory implementation of
// pipeline.UsageRecorder, used by tests and the no-database dev mode.
type UsageRecorder struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
}

// NewUsageRecorder creates an empty in-memory usage recorder.
func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{counts: make(map[uuid.UUID]int64)}
}

// IncrementUsage adds one completed transformation to the owner's tally.
func (r *UsageRecorder) IncrementUsage(_ context.Context, ownerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[ownerID]++
	return nil
}

// Usage returns the owner's current tally.
func (r *UsageRecorder) Usage(ownerID uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[ownerID]
}
