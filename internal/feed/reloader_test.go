package feed

import (
	"context"
	"errors"
	"testing"
)

func TestReloaderLoadsOnFirstSubscribe(t *testing.T) {
	calls := 0
	value := 1
	r := NewReloader(func(context.Context) (int, error) {
		calls++
		return value, nil
	})

	if err := r.Refresh(context.Background()); err != nil || calls != 0 {
		t.Fatalf("expected refresh without subscribers to skip loading, calls=%d", calls)
	}

	ch, cancel, err := r.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if got := <-ch; got != 1 || calls != 1 {
		t.Fatalf("expected initial load, got %d after %d calls", got, calls)
	}

	value = 2
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := <-ch; got != 2 {
		t.Fatalf("expected refreshed value, got %d", got)
	}
}

func TestReloaderSubscribeFailsWhenLoadFails(t *testing.T) {
	boom := errors.New("boom")
	r := NewReloader(func(context.Context) (string, error) { return "", boom })
	if _, _, err := r.Subscribe(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
}
