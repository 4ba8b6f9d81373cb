package memory

import (
	"context"
	"sync"
	"time"

	"quiz-gateway/internal/domain"
)

// LeaderboardCache keeps top-N snapshots in process with a short TTL.
type LeaderboardCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu          sync.RWMutex
	snapshots   map[string]snapshot
	generations map[string]int64
}

type snapshot struct {
	entries   []domain.LeaderboardEntry
	expiresAt time.Time
}

func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		ttl:         ttl,
		clock:       time.Now,
		snapshots:   make(map[string]snapshot),
		generations: make(map[string]int64),
	}
}

func (c *LeaderboardCache) Get(_ context.Context, quizID string) ([]domain.LeaderboardEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snapshots[quizID]
	if !ok || !s.expiresAt.After(c.clock()) {
		return nil, false, nil
	}
	return append([]domain.LeaderboardEntry(nil), s.entries...), true, nil
}

func (c *LeaderboardCache) Generation(_ context.Context, quizID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[quizID], nil
}

// Set drops the snapshot when quizID was invalidated after generation was read.
func (c *LeaderboardCache) Set(_ context.Context, quizID string, generation int64, entries []domain.LeaderboardEntry) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[quizID] != generation {
		return nil
	}
	c.snapshots[quizID] = snapshot{
		entries:   append([]domain.LeaderboardEntry(nil), entries...),
		expiresAt: c.clock().Add(c.ttl),
	}
	return nil
}

func (c *LeaderboardCache) Invalidate(_ context.Context, quizID string) error {
	c.mu.Lock()
	c.generations[quizID]++
	delete(c.snapshots, quizID)
	c.mu.Unlock()
	return nil
}
