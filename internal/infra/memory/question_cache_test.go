package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"team-quiz-service/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	backing := &countingRepository{QuestionRepository: NewQuestionRepository(sampleQuestion())}
	cache := NewQuestionCache(backing, time.Minute)

	if _, err := cache.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if backing.count() != 1 {
		t.Fatalf("expected backing list once, got %d", backing.count())
	}

	if _, err := cache.List(context.Background()); err != nil {
		t.Fatalf("list 2: %v", err)
	}
	if backing.count() != 1 {
		t.Fatalf("expected cache hit, backing calls %d", backing.count())
	}
}

func TestQuestionCacheInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	backing := &countingRepository{QuestionRepository: NewQuestionRepository(sampleQuestion())}
	cache := NewQuestionCache(backing, time.Minute)

	_, _ = cache.List(ctx)
	if _, err := cache.Add(ctx, domain.Question{Question: "new", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("add: %v", err)
	}
	qs, err := cache.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(qs) != 2 || backing.count() != 2 {
		t.Fatalf("expected reload after write, got %d questions and %d loads", len(qs), backing.count())
	}

	if err := cache.Delete(ctx, "q1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	qs, _ = cache.List(ctx)
	if len(qs) != 1 {
		t.Fatalf("expected deleted question gone, got %d", len(qs))
	}
}

func TestQuestionCacheReturnsCopies(t *testing.T) {
	cache := NewQuestionCache(NewQuestionRepository(sampleQuestion()), time.Minute)
	qs, _ := cache.List(context.Background())
	qs[0].Options[0] = "tampered"

	again, _ := cache.List(context.Background())
	if again[0].Options[0] != "3" {
		t.Fatalf("expected cached bank isolated from caller mutation")
	}
}

type countingRepository struct {
	*QuestionRepository
	mu    sync.Mutex
	calls int
}

func (r *countingRepository) List(ctx context.Context) ([]domain.Question, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.QuestionRepository.List(ctx)
}

func (r *countingRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func sampleQuestion() domain.Question {
	return domain.Question{
		ID:            "q1",
		Question:      "What is 2 + 2?",
		Options:       []string{"3", "4", "5", "22"},
		CorrectAnswer: 1,
		CreatedAt:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestQuestionCacheFollowsBackingChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backing := NewQuestionRepository(sampleQuestion())
	cache := NewQuestionCache(backing, time.Hour)
	done := make(chan error, 1)
	go func() { done <- cache.Watch(ctx) }()

	if qs, _ := cache.List(ctx); len(qs) != 1 {
		t.Fatalf("expected one question, got %d", len(qs))
	}

	// another process writes straight to the shared store
	if _, err := backing.Add(ctx, domain.Question{Question: "new", Options: []string{"a", "b", "c", "d"}, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := backing.Delete(ctx, "q1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		qs, err := cache.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(qs) == 1 && qs[0].Question == "new" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache never picked up backing changes, still %+v", qs)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
