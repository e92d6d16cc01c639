package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader fronts an LRUCache so concurrent misses for one key run load once.
type Loader[T any] struct {
	cache *LRUCache[T]
	group singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

func NewLoader[T any](c *LRUCache[T]) *Loader[T] {
	return &Loader[T]{cache: c, gen: make(map[string]uint64)}
}

func (l *Loader[T]) generation(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen[key]
}

// Get returns the cached value for key or stores what load returns.
// Errors are not cached.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		gen := l.generation(key)
		// shared by every waiter on key, so one caller going away must not fail the rest
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		l.mu.Lock()
		if l.gen[key] == gen {
			l.cache.Set(key, v)
		}
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate forgets key. A load already in flight still answers its
// waiters but no longer fills the cache.
func (l *Loader[T]) Invalidate(key string) {
	l.mu.Lock()
	l.gen[key]++
	l.cache.Delete(key)
	l.mu.Unlock()
	l.group.Forget(key)
}

func (l *Loader[T]) Stats() Stats {
	return l.cache.Stats()
}
