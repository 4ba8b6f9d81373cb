package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-gateway/internal/domain"
)

// setIfGeneration stores the snapshot only while the generation counter still holds the caller's value.
// A missing counter reads as 0.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// LeaderboardCache stores the advisory top-N snapshot per quiz as JSON under quiz:{quizID}:leaderboard,
// next to a generation counter under quiz:{quizID}:leaderboard:gen that Invalidate increments.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Get(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, bool, error) {
	raw, err := c.client.Get(ctx, leaderboardKey(quizID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		// a corrupt snapshot is just a miss
		return nil, false, nil
	}
	return entries, true, nil
}

func (c *LeaderboardCache) Generation(ctx context.Context, quizID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(quizID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *LeaderboardCache) Set(ctx context.Context, quizID string, generation int64, entries []domain.LeaderboardEntry) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return setIfGeneration.Run(ctx, c.client,
		[]string{generationKey(quizID), leaderboardKey(quizID)},
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds(),
	).Err()
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, quizID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(quizID))
		pipe.Del(ctx, leaderboardKey(quizID))
		return nil
	})
	return err
}

func leaderboardKey(quizID string) string {
	return "quiz:" + quizID + ":leaderboard"
}

func generationKey(quizID string) string {
	return leaderboardKey(quizID) + ":gen"
}
