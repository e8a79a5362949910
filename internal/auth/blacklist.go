package auth

import (
	"context"
	"sync"
	"time"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
)

// MemoryBlacklist keeps revoked token ids in process memory
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryBlacklist creates an empty in-memory blacklist
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add records jti as revoked for ttl
func (b *MemoryBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[jti] = b.now().Add(ttl)
	b.pruneLocked()
	return nil
}

// Contains reports whether jti is revoked and not yet expired
func (b *MemoryBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.entries[jti]
	if !ok {
		return false, nil
	}
	if !b.now().Before(until) {
		delete(b.entries, jti)
		return false, nil
	}
	return true, nil
}

func (b *MemoryBlacklist) pruneLocked() {
	now := b.now()
	for jti, until := range b.entries {
		if !now.Before(until) {
			delete(b.entries, jti)
		}
	}
}

var _ port.TokenBlacklist = (*MemoryBlacklist)(nil)
