// Package cache memoizes slow-changing lookups for a fixed TTL with
// single-flight refresh.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchError wraps a failed fetch. Failures are never cached.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "cache fetch: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Option configures a cache.
type Option func(*options)

type options struct {
	now    func() time.Time
	lookup func(hit bool)
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLookupHook calls fn once per GetOrUpdate with whether the caller found
// a fresh entry. Callers that wait on another caller's fetch count as misses.
func WithLookupHook(fn func(hit bool)) Option {
	return func(o *options) {
		o.lookup = fn
	}
}

type slot[T any] struct {
	flight    string
	value     T
	expiresAt time.Time
	valid     bool
	fetching  bool
}

// Keyed is a TTL cache with one entry per key. At most one fetch per key is
// in flight; concurrent callers share its result.
type Keyed[K comparable, T any] struct {
	ttl   time.Duration
	now   func() time.Time
	hook  func(hit bool)
	group singleflight.Group

	mu     sync.Mutex
	slots  map[K]*slot[T]
	nextID uint64
}

// NewKeyed creates a keyed cache whose entries live for ttl.
func NewKeyed[K comparable, T any](ttl time.Duration, opts ...Option) *Keyed[K, T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Keyed[K, T]{
		ttl:   ttl,
		now:   o.now,
		hook:  o.lookup,
		slots: make(map[K]*slot[T]),
	}
}

// lookup returns the fresh value for key, or the flight name to use for a refresh.
func (c *Keyed[K, T]) lookup(key K) (T, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		c.nextID++
		s = &slot[T]{flight: strconv.FormatUint(c.nextID, 36)}
		c.slots[key] = s
	}
	if s.valid && c.now().Before(s.expiresAt) {
		return s.value, s.flight, true
	}
	var zero T
	return zero, s.flight, false
}

// begin marks key as fetching under flight, recreating a slot dropped since
// lookup.
func (c *Keyed[K, T]) begin(key K, flight string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot[T]{flight: flight}
		c.slots[key] = s
	}
	s.fetching = true
}

// finish records the fetch result. A failed fetch leaves nothing behind for
// a key without a value; a successful one also drops other expired entries.
func (c *Keyed[K, T]) finish(key K, v T, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return
	}
	s.fetching = false
	if err != nil {
		if !s.valid {
			delete(c.slots, key)
		}
		return
	}
	now := c.now()
	s.value = v
	s.expiresAt = now.Add(c.ttl)
	s.valid = true
	for k, other := range c.slots {
		if other.valid && !other.fetching && !now.Before(other.expiresAt) {
			delete(c.slots, k)
		}
	}
}

// Len returns the number of entries held, fresh or not.
func (c *Keyed[K, T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// GetOrUpdate returns the cached value for key, calling fetch when the entry is
// absent or expired. The fetch is detached from ctx cancellation so other
// waiters still receive its result; ctx only bounds this caller's wait.
func (c *Keyed[K, T]) GetOrUpdate(ctx context.Context, key K, fetch func(context.Context, K) (T, error)) (T, error) {
	var zero T
	v, flight, ok := c.lookup(key)
	if c.hook != nil {
		c.hook(ok)
	}
	if ok {
		return v, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flight, func() (any, error) {
		// a flight may have just finished between lookup and DoChan
		if v, _, ok := c.lookup(key); ok {
			return v, nil
		}
		c.begin(key, flight)
		v, err := fetch(fetchCtx, key)
		c.finish(key, v, err)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, &FetchError{Err: res.Err}
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Invalidate drops the entry for key. An in-flight fetch still completes.
func (c *Keyed[K, T]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[key]; ok {
		s.valid = false
	}
}

// Cache is a single-entry TTL cache.
type Cache[T any] struct {
	inner *Keyed[struct{}, T]
}

// New creates a cache whose value lives for ttl.
func New[T any](ttl time.Duration, opts ...Option) *Cache[T] {
	return &Cache[T]{inner: NewKeyed[struct{}, T](ttl, opts...)}
}

// GetOrUpdate returns the cached value, calling fetch when absent or expired.
func (c *Cache[T]) GetOrUpdate(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	return c.inner.GetOrUpdate(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (T, error) {
		return fetch(ctx)
	})
}

// Invalidate drops the cached value.
func (c *Cache[T]) Invalidate() {
	c.inner.Invalidate(struct{}{})
}
