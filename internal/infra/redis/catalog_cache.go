package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quiz-gateway/internal/app"
	"quiz-gateway/internal/domain"
)

// CatalogCache caches quiz content in Redis and falls back to a loader on cache miss.
// Quizzes are stored as:   SET  quiz:{quizID}:meta {json}
// Questions are stored as: HSET quiz:{quizID}:questions {questionID} {json}
type CatalogCache struct {
	client *redis.Client
	loader app.Catalog
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// cachedQuiz keeps the duration that domain.Quiz leaves out of its JSON form.
type cachedQuiz struct {
	domain.Quiz
	TotalTimeSeconds int64 `json:"total_time_seconds"`
}

func NewCatalogCache(client *redis.Client, loader app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) Quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := metaKey(quizID)
	if quiz, ok := c.cachedQuiz(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.cachedQuiz(ctx, key); ok {
			return quiz, nil
		}
		quiz, err := c.loader.Quiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		data, err := json.Marshal(cachedQuiz{Quiz: quiz, TotalTimeSeconds: int64(quiz.TotalDuration / time.Second)})
		if err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *CatalogCache) Question(ctx context.Context, quizID, questionID string) (domain.Question, error) {
	key := questionsKey(quizID)
	if q, ok := c.cachedQuestion(ctx, key, questionID); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(key+"\x00"+questionID, func() (interface{}, error) {
		if q, ok := c.cachedQuestion(ctx, key, questionID); ok {
			return q, nil
		}
		q, err := c.loader.Question(ctx, quizID, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		data, err := json.Marshal(q)
		if err == nil {
			pipe := c.client.Pipeline()
			pipe.HSet(ctx, key, questionID, data)
			if ttl := c.ttlWithJitter(); ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			_, _ = pipe.Exec(ctx)
		}
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *CatalogCache) cachedQuiz(ctx context.Context, key string) (domain.Quiz, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var cached cachedQuiz
	if err := json.Unmarshal(raw, &cached); err != nil {
		return domain.Quiz{}, false
	}
	quiz := cached.Quiz
	quiz.TotalDuration = time.Duration(cached.TotalTimeSeconds) * time.Second
	return quiz, true
}

func (c *CatalogCache) cachedQuestion(ctx context.Context, key, questionID string) (domain.Question, bool) {
	raw, err := c.client.HGet(ctx, key, questionID).Bytes()
	if err != nil {
		return domain.Question{}, false
	}
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, false
	}
	return q, true
}

func metaKey(quizID string) string {
	return "quiz:" + quizID + ":meta"
}

func questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
