// Package feed fans full-state snapshots out to subscribers.
package feed

import "sync"

const bufferSize = 8

// Feed broadcasts values to every subscriber. Each publish is a full replacement of
// the previous value, so a slow subscriber only ever needs the newest one.
type Feed[T any] struct {
	mu      sync.Mutex
	subs    map[chan T]struct{}
	last    T
	hasLast bool
	closed  bool
}

func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[chan T]struct{})}
}

// Subscribe returns a channel that first receives the latest value (if any) and then
// every subsequent publish. The caller must invoke the returned cancel function.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, bufferSize)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	if f.hasLast {
		ch <- f.last
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish records v as the latest value and delivers it without blocking.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.last = v
	f.hasLast = true
	for ch := range f.subs {
		select {
		case ch <- v:
		default:
			// drop the oldest pending value so the newest always lands
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// Last returns the most recent value and whether anything was published yet.
func (f *Feed[T]) Last() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// Len reports the number of live subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}
