package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if st := c.Stats(); st.Evictions != 1 || st.Size != 2 || st.Hits != 2 || st.Misses != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("j", "w")
	now = now.Add(2 * time.Minute)
	c.Set("fresh", "x")

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d", c.Size())
	}
}

func TestManager_Sweep(t *testing.T) {
	c := NewLRUCache[int](10, -time.Second)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestLoader(t *testing.T) {
	l := NewLoader(NewLRUCache[int](10, time.Minute))
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := l.Get(ctx, "u1", load); err != nil || v != 42 {
				t.Errorf("Get() = %v, %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("load ran %d times, want 1", calls.Load())
	}

	l.Invalidate("u1")
	if _, err := l.Get(ctx, "u1", func(context.Context) (int, error) { return 0, errors.New("db down") }); err == nil {
		t.Error("expected load error")
	}
	if _, ok := l.cache.Get("u1"); ok {
		t.Error("errors must not be cached")
	}
}

func TestLoader_InvalidateDuringLoad(t *testing.T) {
	l := NewLoader(NewLRUCache[int](10, time.Minute))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int)
	go func() {
		v, _ := l.Get(ctx, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()

	<-started
	l.Invalidate("k")
	close(release)
	if v := <-done; v != 1 {
		t.Errorf("in-flight Get() = %d, want 1", v)
	}

	if _, ok := l.cache.Get("k"); ok {
		t.Fatal("load started before Invalidate must not fill the cache")
	}
	v, err := l.Get(ctx, "k", func(context.Context) (int, error) { return 2, nil })
	if err != nil || v != 2 {
		t.Errorf("Get() after invalidation = %v, %v, want 2", v, err)
	}
	if v, ok := l.cache.Get("k"); !ok || v != 2 {
		t.Errorf("cached = %v, %v, want 2", v, ok)
	}
}

func TestLoader_CallerCancelDoesNotFailLoad(t *testing.T) {
	l := NewLoader(NewLRUCache[int](10, time.Minute))
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := l.Get(ctx, "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 7, ctx.Err()
		})
		done <- err
	}()

	<-started
	cancel()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if v, ok := l.cache.Get("k"); !ok || v != 7 {
		t.Errorf("cached = %v, %v, want 7", v, ok)
	}
}
