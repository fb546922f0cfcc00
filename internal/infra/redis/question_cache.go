package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

const (
	questionsKey  = "quiz:questions"
	generationKey = "quiz:questions:gen"
)

// QuestionCache keeps the ordered question bank as one JSON value in Redis and falls
// back to the backing repository on a miss. Writes go to the backing repository and
// drop the cached value. Every invalidation bumps a generation counter, and a fill
// only stores its result if the counter has not moved since the load started.
type QuestionCache struct {
	app.QuestionRepository
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	mu     sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, backing app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionRepository: backing,
		client:             client,
		ttl:                ttl,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) List(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.cached(ctx); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(questionsKey, func() (interface{}, error) {
		// another caller may have filled it while we waited
		if qs, ok := c.cached(ctx); ok {
			return qs, nil
		}

		gen, err := generation(ctx, c.client)
		if err != nil {
			return c.QuestionRepository.List(ctx)
		}
		qs, err := c.QuestionRepository.List(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		_ = c.store(ctx, gen, data)
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	added, err := c.QuestionRepository.Add(ctx, q)
	c.invalidate(ctx)
	return added, err
}

func (c *QuestionCache) Delete(ctx context.Context, id string) error {
	err := c.QuestionRepository.Delete(ctx, id)
	c.invalidate(ctx)
	return err
}

func (c *QuestionCache) cached(ctx context.Context) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, questionsKey).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

// Watch drops the cached bank on every change the backing repository reports. It
// returns when ctx is done.
func (c *QuestionCache) Watch(ctx context.Context) error {
	ch, cancel, err := c.QuestionRepository.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("watch question bank: %w", err)
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			c.invalidate(ctx)
		}
	}
}

// store writes data unless an invalidation happened after gen was read.
func (c *QuestionCache) store(ctx context.Context, gen int64, data []byte) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, questionsKey, data, c.ttlWithJitter())
			return nil
		})
		return err
	}, generationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// invalidate is best effort; a value that survives a failed DEL expires with its ttl.
func (c *QuestionCache) invalidate(ctx context.Context) {
	_, _ = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey)
		p.Del(ctx, questionsKey)
		return nil
	})
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, g getter) (int64, error) {
	n, err := g.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
