package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Len())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := q.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushAfterClose(t *testing.T) {
	q := New[string]()
	require.True(t, q.Push("a"))
	q.Close()

	assert.False(t, q.Push("b"))
	assert.True(t, q.Closed())

	// queued items survive the close
	v, err := q.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = q.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_RecvHonoursContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseWakesAllWaiters(t *testing.T) {
	q := New[int]()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Recv(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestQueue_DrainAfterReady(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready did not fire")
	}
	assert.Equal(t, []int{1, 2}, q.Drain())
	assert.Empty(t, q.Drain())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}
