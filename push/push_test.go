package push

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"
	"weak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/longportwhale/openapi-go/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSlot_ReplaceDiscardsPrevious(t *testing.T) {
	var s Slot[int]
	assert.False(t, s.Deliver(1), "empty slot delivers nothing")

	var first, second []int
	s.Set(ListenerFunc[int](func(v int) { first = append(first, v) }))
	s.Deliver(1)
	s.Set(ListenerFunc[int](func(v int) { second = append(second, v) }))
	s.Deliver(2)

	assert.Equal(t, []int{1}, first)
	assert.Equal(t, []int{2}, second)

	s.Set(nil)
	assert.False(t, s.Deliver(3))
}

func TestReceiver_SendRecvOrder(t *testing.T) {
	rx, sink := NewReceiver[string]()
	defer rx.Close()

	for _, v := range []string{"a", "b", "c"} {
		require.True(t, sink.Send(v))
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := rx.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReceiver_CloseSignalsGone(t *testing.T) {
	rx, sink := NewReceiver[int]()
	rx.Close()

	select {
	case <-sink.Gone():
	case <-time.After(time.Second):
		t.Fatal("gone not signalled")
	}
	assert.False(t, sink.Send(1))
}

func TestSink_CloseEndsStream(t *testing.T) {
	rx, sink := NewReceiver[int]()
	sink.Send(7)
	sink.Close()

	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestSink_ReceiverCollected(t *testing.T) {
	_, sink := NewReceiver[int]()

	assert.Eventually(t, func() bool {
		runtime.GC()
		select {
		case <-sink.Gone():
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, sink.Send(1))
}

type owner struct {
	mu  sync.Mutex
	got []int
}

func deliverToOwner(o *owner, v int) {
	o.mu.Lock()
	o.got = append(o.got, v)
	o.mu.Unlock()
}

func TestForward_DeliversUntilReceiverClosed(t *testing.T) {
	rx, sink := NewReceiver[int]()
	o := &owner{}

	done := make(chan struct{})
	go func() {
		Forward(context.Background(), rx, weak.Make(o), deliverToOwner)
		close(done)
	}()

	for i := 1; i <= 3; i++ {
		sink.Send(i)
	}
	assert.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return len(o.got) == 3
	}, time.Second, 5*time.Millisecond)

	sink.Close()
	<-done
	assert.Equal(t, []int{1, 2, 3}, o.got)
}

func TestForward_ExitsWhenOwnerCollected(t *testing.T) {
	rx, sink := NewReceiver[int]()
	wp := weak.Make(&owner{})

	done := make(chan struct{})
	go func() {
		Forward(context.Background(), rx, wp, deliverToOwner)
		close(done)
	}()

	// the owner is unreachable; the next event finds the weak pointer empty
	assert.Eventually(t, func() bool {
		runtime.GC()
		sink.Send(1)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	// Forward closes the receiver on exit
	<-sink.Gone()
}

func TestForward_StopsOnContext(t *testing.T) {
	rx, _ := NewReceiver[int]()
	o := &owner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Forward(ctx, rx, weak.Make(o), deliverToOwner)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not stop")
	}
	runtime.KeepAlive(o)
}
