package trade

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/longportwhale/openapi-go/config"
	"github.com/longportwhale/openapi-go/push"
	"github.com/longportwhale/openapi-go/queue"
	"github.com/longportwhale/openapi-go/wsclient"
)

type shared struct {
	mailbox *queue.Queue[command]
	state   *wsclient.StateVar
	refs    atomic.Int64
	done    <-chan struct{}
}

type handleRef struct {
	s        *shared
	once     sync.Once
	released atomic.Bool
}

func (r *handleRef) release() {
	r.once.Do(func() {
		r.released.Store(true)
		if r.s.refs.Add(-1) == 0 {
			r.s.mailbox.Close()
		}
	})
}

// TradeContext is a handle on a trade session. See quote.QuoteContext for
// the lifetime rules; they are the same.
type TradeContext struct {
	s       *shared
	ref     *handleRef
	cleanup runtime.Cleanup
}

func newHandle(s *shared) *TradeContext {
	s.refs.Add(1)
	ref := &handleRef{s: s}
	h := &TradeContext{s: s, ref: ref}
	h.cleanup = runtime.AddCleanup(h, (*handleRef).release, ref)
	return h
}

// TryNew opens a trade session.
func TryNew(ctx context.Context, cfg *config.Config) (*TradeContext, *push.Receiver[PushEvent], error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := wsclient.ConfigOptions(cfg, "trade", cfg.TradeWSURL)
	client, err := wsclient.Open(ctx, opts.Options)
	if err != nil {
		return nil, nil, err
	}

	rx, sink := push.NewReceiver[PushEvent]()
	s := &shared{mailbox: queue.New[command](), state: new(wsclient.StateVar)}
	c := newCore(client, opts, cfg.Reconnect, s.mailbox, sink, s.state)
	s.done = c.Done()
	go c.Run()

	cfg.Log().Info("Trade session opened", "session_id", client.Session().SessionID)
	return newHandle(s), rx, nil
}

func (h *TradeContext) Clone() *TradeContext {
	return newHandle(h.s)
}

func (h *TradeContext) Close() error {
	h.cleanup.Stop()
	h.ref.release()
	return nil
}

func (h *TradeContext) State() wsclient.State {
	return h.s.state.Load()
}

// Subscribe subscribes to topics. Topics the server refuses are reported in
// a *SubscribeError; the others stay subscribed.
func (h *TradeContext) Subscribe(ctx context.Context, topics []TopicType) error {
	if len(topics) == 0 {
		return errors.New("subscribe: no topics")
	}
	return h.submit(ctx, func(reply chan error) command {
		return &subscribeCmd{ctx: ctx, topics: topics, reply: reply}
	})
}

func (h *TradeContext) Unsubscribe(ctx context.Context, topics []TopicType) error {
	if len(topics) == 0 {
		return nil
	}
	return h.submit(ctx, func(reply chan error) command {
		return &unsubscribeCmd{ctx: ctx, topics: topics, reply: reply}
	})
}

func (h *TradeContext) submit(ctx context.Context, build func(chan error) command) error {
	if h.ref.released.Load() {
		return wsclient.ErrSessionClosed
	}
	reply := make(chan error, 1)
	if !h.s.mailbox.Push(build(reply)) {
		return wsclient.ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
