package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCache_HitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[[]string](30*time.Minute, WithClock(clock.Now))

	var calls int
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"HSBC", "JPM"}, nil
	}

	v, err := c.GetOrUpdate(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"HSBC", "JPM"}, v)

	clock.Advance(29 * time.Minute)
	_, err = c.GetOrUpdate(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCache_RefetchAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[int](2*time.Hour, WithClock(clock.Now))

	var calls int
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := c.GetOrUpdate(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// exactly at expiry the value is stale
	clock.Advance(2 * time.Hour)
	v, err = c.GetOrUpdate(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New[string](time.Minute)
	boom := errors.New("boom")

	_, err := c.GetOrUpdate(context.Background(), func(context.Context) (string, error) {
		return "", boom
	})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrUpdate(context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCache_Invalidate(t *testing.T) {
	c := New[int](time.Hour)
	var calls int
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, _ = c.GetOrUpdate(context.Background(), fetch)
	c.Invalidate()
	v, err := c.GetOrUpdate(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCache_ConcurrentColdCallersShareOneFetch(t *testing.T) {
	c := New[[]int](30 * time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]int, error) {
		calls.Add(1)
		<-release
		return []int{1, 2, 3}, nil
	}

	const callers = 2
	var wg sync.WaitGroup
	results := make([][]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrUpdate(context.Background(), fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, results[0], results[1])
}

func TestCache_ConcurrentCallersShareFailure(t *testing.T) {
	c := New[int](time.Minute)
	boom := errors.New("unavailable")

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 0, boom
	}

	errs := make(chan error, 2)
	go func() {
		_, err := c.GetOrUpdate(context.Background(), fetch)
		errs <- err
	}()
	<-started
	go func() {
		_, err := c.GetOrUpdate(context.Background(), fetch)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errs, boom)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_CallerContextOnlyBoundsItsWait(t *testing.T) {
	c := New[string](time.Minute)
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		<-release
		// the fetch context is not cancelled with the first caller
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "value", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrUpdate(ctx, fetch)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	waiter := make(chan string, 1)
	go func() {
		v, _ := c.GetOrUpdate(context.Background(), fetch)
		waiter <- v
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.Equal(t, "value", <-waiter)
}

func TestKeyed_IndependentKeys(t *testing.T) {
	type strikeKey struct {
		symbol string
		date   string
	}
	c := NewKeyed[strikeKey, string](30 * time.Minute)

	var calls atomic.Int32
	fetch := func(_ context.Context, k strikeKey) (string, error) {
		calls.Add(1)
		return k.symbol + "@" + k.date, nil
	}

	a, err := c.GetOrUpdate(context.Background(), strikeKey{"AAPL.US", "20240119"}, fetch)
	require.NoError(t, err)
	b, err := c.GetOrUpdate(context.Background(), strikeKey{"AAPL.US", "20240126"}, fetch)
	require.NoError(t, err)
	again, err := c.GetOrUpdate(context.Background(), strikeKey{"AAPL.US", "20240119"}, fetch)
	require.NoError(t, err)

	assert.Equal(t, "AAPL.US@20240119", a)
	assert.Equal(t, "AAPL.US@20240126", b)
	assert.Equal(t, a, again)
	assert.Equal(t, int32(2), calls.Load())
}

// Any interleaving of concurrent lookups over a small key space fetches each
// key exactly once while the entries are fresh.
func TestKeyed_SingleFlightProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfN(rapid.SampledFrom([]string{"700.HK", "AAPL.US", "TSLA.US", "9988.HK"}), 1, 40).Draw(t, "keys")

		c := NewKeyed[string, string](time.Hour)
		var mu sync.Mutex
		calls := make(map[string]int)
		fetch := func(_ context.Context, k string) (string, error) {
			mu.Lock()
			calls[k]++
			mu.Unlock()
			time.Sleep(time.Millisecond)
			return fmt.Sprintf("v:%s", k), nil
		}

		var wg sync.WaitGroup
		bad := make(chan string, len(keys))
		for _, k := range keys {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				v, err := c.GetOrUpdate(context.Background(), k, fetch)
				if err != nil || v != "v:"+k {
					bad <- k
				}
			}(k)
		}
		wg.Wait()
		close(bad)

		for k := range bad {
			t.Fatalf("key %s returned a wrong value", k)
		}

		for k, n := range calls {
			if n != 1 {
				t.Fatalf("key %s fetched %d times", k, n)
			}
		}
	})
}

func TestKeyed_FailedFetchLeavesNoEntry(t *testing.T) {
	c := NewKeyed[string, []string](30 * time.Minute)
	boom := errors.New("unknown symbol")

	for _, symbol := range []string{"NOPE1.US", "NOPE2.US", "NOPE3.US"} {
		_, err := c.GetOrUpdate(context.Background(), symbol, func(context.Context, string) ([]string, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
	}
	assert.Zero(t, c.Len())

	_, err := c.GetOrUpdate(context.Background(), "AAPL.US", func(context.Context, string) ([]string, error) {
		return []string{"20240119"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestKeyed_FailedRefreshKeepsOldValue(t *testing.T) {
	clock := newFakeClock()
	c := NewKeyed[string, string](time.Minute, WithClock(clock.Now))

	_, err := c.GetOrUpdate(context.Background(), "AAPL.US", func(context.Context, string) (string, error) {
		return "v1", nil
	})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = c.GetOrUpdate(context.Background(), "AAPL.US", func(context.Context, string) (string, error) {
		return "", errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestKeyed_StoreDropsExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	c := NewKeyed[string, string](time.Minute, WithClock(clock.Now))
	fetch := func(_ context.Context, k string) (string, error) { return "v:" + k, nil }

	for _, k := range []string{"A.US", "B.US", "C.US"} {
		_, err := c.GetOrUpdate(context.Background(), k, fetch)
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	clock.Advance(2 * time.Minute)
	_, err := c.GetOrUpdate(context.Background(), "D.US", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestKeyed_LookupHookCountsWaitersAsMisses(t *testing.T) {
	var hits, misses atomic.Int32
	c := NewKeyed[string, string](time.Hour, WithLookupHook(func(hit bool) {
		if hit {
			hits.Add(1)
		} else {
			misses.Add(1)
		}
	}))

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.GetOrUpdate(context.Background(), "700.HK", fetch)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.GetOrUpdate(context.Background(), "700.HK", fetch)
	}()
	require.Eventually(t, func() bool { return misses.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	_, err := c.GetOrUpdate(context.Background(), "700.HK", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(2), misses.Load())
	assert.Equal(t, int32(1), hits.Load())
}
