package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

const bankKey = "bank"

// QuestionCache caches the ordered bank with TTL to avoid repeated store hits on
// every login. Writes go through to the backing repository and drop the cache.
type QuestionCache struct {
	app.QuestionRepository

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu        sync.RWMutex
	cached    []domain.Question
	expiresAt time.Time
	gen       uint64
}

func NewQuestionCache(backing app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionRepository: backing,
		ttl:                ttl,
		clock:              time.Now,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) List(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.lookup(c.clock()); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(bankKey, func() (interface{}, error) {
		now := c.clock()
		if qs, ok := c.lookup(now); ok {
			return qs, nil
		}

		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		qs, err := c.QuestionRepository.List(ctx)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlWithJitter()
		c.mu.Lock()
		// a write since the load started makes this result stale
		if c.gen == gen {
			c.cached = qs
			c.expiresAt = now.Add(ttl)
		}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneQuestions(result.([]domain.Question)), nil
}

func (c *QuestionCache) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	defer c.invalidate()
	return c.QuestionRepository.Add(ctx, q)
}

func (c *QuestionCache) Delete(ctx context.Context, id string) error {
	defer c.invalidate()
	return c.QuestionRepository.Delete(ctx, id)
}

// Watch drops the cached bank on every change the backing repository reports, so
// writes from other processes are not served stale. It returns when ctx is done.
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
			c.invalidate()
		}
	}
}

func (c *QuestionCache) lookup(now time.Time) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached != nil && c.expiresAt.After(now) {
		return cloneQuestions(c.cached), true
	}
	return nil, false
}

func (c *QuestionCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.gen++
}

// ttlWithJitter is only called inside the singleflight fill, which serializes rnd.
func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cloneQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}
