// Package push delivers decoded push events from a session core to listeners.
//
// The core writes into a Sink, which holds only a weak reference to the
// Receiver handed to the user. Once the receiver is closed or collected the
// core sees Gone fire and stops forwarding.
package push

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/longportwhale/openapi-go/queue"
)

// Listener receives push events of one kind.
type Listener[E any] interface {
	OnEvent(E)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc[E any] func(E)

// OnEvent calls f(e).
func (f ListenerFunc[E]) OnEvent(e E) { f(e) }

type listenerBox[E any] struct {
	l Listener[E]
}

// Slot holds at most one listener. Set replaces the previous listener.
type Slot[E any] struct {
	p atomic.Pointer[listenerBox[E]]
}

// Set installs l, discarding any previous listener. A nil l clears the slot.
func (s *Slot[E]) Set(l Listener[E]) {
	if l == nil {
		s.p.Store(nil)
		return
	}
	s.p.Store(&listenerBox[E]{l: l})
}

// Deliver hands e to the current listener. It reports whether one was set.
func (s *Slot[E]) Deliver(e E) bool {
	b := s.p.Load()
	if b == nil {
		return false
	}
	b.l.OnEvent(e)
	return true
}

type signal struct {
	once sync.Once
	ch   chan struct{}
}

func (s *signal) fire() {
	s.once.Do(func() { close(s.ch) })
}

// Receiver is the consumer end of a push stream. It buffers without bound.
type Receiver[E any] struct {
	q    *queue.Queue[E]
	gone *signal
}

// Sink is the producer end held by a session core.
type Sink[E any] struct {
	r    weak.Pointer[Receiver[E]]
	gone *signal
}

// NewReceiver creates a connected receiver and sink.
func NewReceiver[E any]() (*Receiver[E], *Sink[E]) {
	g := &signal{ch: make(chan struct{})}
	r := &Receiver[E]{q: queue.New[E](), gone: g}
	runtime.AddCleanup(r, func(g *signal) { g.fire() }, g)
	return r, &Sink[E]{r: weak.Make(r), gone: g}
}

// Recv returns the next event. It fails with queue.ErrClosed after Close once
// buffered events are consumed.
func (r *Receiver[E]) Recv(ctx context.Context) (E, error) {
	return r.q.Recv(ctx)
}

// Len returns the number of buffered events.
func (r *Receiver[E]) Len() int {
	return r.q.Len()
}

// Close detaches the receiver from its sink.
func (r *Receiver[E]) Close() {
	r.gone.fire()
	r.q.Close()
}

// Send queues e on the receiver. It reports false if the receiver is gone.
func (s *Sink[E]) Send(e E) bool {
	r := s.r.Value()
	if r == nil {
		s.gone.fire()
		return false
	}
	return r.q.Push(e)
}

// Gone is closed once the receiver has been closed or collected.
func (s *Sink[E]) Gone() <-chan struct{} {
	return s.gone.ch
}

// Close ends the stream. Buffered events stay readable.
func (s *Sink[E]) Close() {
	if r := s.r.Value(); r != nil {
		r.q.Close()
	}
}

// Forward relays events from rx to deliver until rx is closed, ctx ends, or
// owner can no longer be upgraded. rx is closed on return.
func Forward[S, E any](ctx context.Context, rx *Receiver[E], owner weak.Pointer[S], deliver func(*S, E)) {
	defer rx.Close()
	for {
		ev, err := rx.Recv(ctx)
		if err != nil {
			return
		}
		s := owner.Value()
		if s == nil {
			return
		}
		deliver(s, ev)
	}
}
