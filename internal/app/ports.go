package app

import (
	"context"
	"time"

	"quiz-gateway/internal/domain"
)

// Catalog loads immutable quiz content (from cache/backing store).
type Catalog interface {
	Quiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Question(ctx context.Context, quizID, questionID string) (domain.Question, error)
}

// LeaderboardCache holds an advisory top-N snapshot per quiz. Losing it must never affect scoring.
//
// Invalidate bumps a per-quiz generation. Set stores a snapshot only while the generation it was computed
// under is still current, so a refresh that raced an invalidation is discarded instead of served.
type LeaderboardCache interface {
	Get(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, bool, error)
	Generation(ctx context.Context, quizID string) (int64, error)
	Set(ctx context.Context, quizID string, generation int64, entries []domain.LeaderboardEntry) error
	Invalidate(ctx context.Context, quizID string) error
}

// ExportSink delivers keyed, serialized records to the analytics log. Implementations must not block on
// delivery; failures are reported but callers are free to ignore them.
type ExportSink interface {
	Export(ctx context.Context, key string, value []byte) error
}

// KVStore is the shared key/value store holding session ids.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
