package feed

import "context"

// Reloader mirrors a queryable source into a Feed. Stores that learn about changes
// out of band (a trigger, a change stream) call Refresh and every subscriber gets a
// fresh full snapshot.
type Reloader[T any] struct {
	feed *Feed[T]
	load func(context.Context) (T, error)
}

func NewReloader[T any](load func(context.Context) (T, error)) *Reloader[T] {
	return &Reloader[T]{feed: New[T](), load: load}
}

// Subscribe loads a snapshot when nobody is subscribed yet, since the cached value
// may be stale, and then subscribes.
func (r *Reloader[T]) Subscribe(ctx context.Context) (<-chan T, func(), error) {
	if r.feed.Len() == 0 {
		if err := r.Reload(ctx); err != nil {
			return nil, nil, err
		}
	}
	ch, cancel := r.feed.Subscribe()
	return ch, cancel, nil
}

// Reload queries the source and publishes the result.
func (r *Reloader[T]) Reload(ctx context.Context) error {
	v, err := r.load(ctx)
	if err != nil {
		return err
	}
	r.feed.Publish(v)
	return nil
}

// Refresh reloads only when someone is listening and reports the error, if any.
func (r *Reloader[T]) Refresh(ctx context.Context) error {
	if r.feed.Len() == 0 {
		return nil
	}
	return r.Reload(ctx)
}

// Close ends every subscription.
func (r *Reloader[T]) Close() {
	r.feed.Close()
}
