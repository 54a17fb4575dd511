package wsclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/longportwhale/openapi-go/queue"
)

// Hooks are the channel specific parts of a SessionCore.
type Hooks[C any] struct {
	// Handle runs one mailbox command on the core goroutine.
	Handle func(C)
	// Fail answers a command that will never run.
	Fail func(C, error)
	// Push handles one push frame on the core goroutine.
	Push func(Event)
	// Replay snapshots what a new connection must restore. It is called on
	// the core goroutine; the returned func runs on the redial goroutine.
	Replay func() func(context.Context, *Client) error
	// Gone fires once the push receiver has been dropped.
	Gone <-chan struct{}
	// Closed runs last, after every command has been answered.
	Closed func()
}

// SessionCore owns the connection of one channel session. Commands arrive on
// a mailbox, I/O runs off the core goroutine through Exec, and lost
// connections are redialed with the state returned by Hooks.Replay. Every
// field is touched only by the Run goroutine.
type SessionCore[C any] struct {
	logger    *slog.Logger
	redial    RedialOptions
	reconnect bool

	mailbox     *queue.Queue[C]
	completions *queue.Queue[func()]
	state       *StateVar
	hooks       Hooks[C]

	client    *Client
	sessionID string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
	closing bool
	done    chan struct{}
}

// NewSessionCore adopts an open client. Run must be started by the caller.
func NewSessionCore[C any](client *Client, redial RedialOptions, reconnect bool, mailbox *queue.Queue[C], state *StateVar, hooks Hooks[C]) *SessionCore[C] {
	ctx, cancel := context.WithCancel(context.Background())
	logger := redial.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCore[C]{
		logger:      logger.With("channel", redial.Channel),
		redial:      redial,
		reconnect:   reconnect,
		mailbox:     mailbox,
		completions: queue.New[func()](),
		state:       state,
		hooks:       hooks,
		client:      client,
		sessionID:   client.Session().SessionID,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Logger is tagged with the channel name.
func (c *SessionCore[C]) Logger() *slog.Logger {
	return c.logger
}

// Done is closed once the session has shut down.
func (c *SessionCore[C]) Done() <-chan struct{} {
	return c.done
}

// Current reports whether cl is still the live connection. A reply from a
// replaced connection was not part of the replayed state.
func (c *SessionCore[C]) Current(cl *Client) bool {
	return cl != nil && cl == c.client
}

// Run is the core goroutine. It returns after the session has shut down,
// which happens when the connection is lost for good or when both the
// handles and the push receiver are gone.
func (c *SessionCore[C]) Run() {
	defer c.shutdown()
	c.state.Store(StateConnected)

	var handlesGone, receiverGone bool
	gone := c.hooks.Gone
	for !c.stopped && !(handlesGone && receiverGone) {
		var events <-chan struct{}
		if c.client != nil {
			events = c.client.Events().Ready()
		}

		select {
		case <-c.mailbox.Ready():
			closed := c.mailbox.Closed()
			for _, cmd := range c.mailbox.Drain() {
				c.hooks.Handle(cmd)
			}
			handlesGone = closed

		case <-c.completions.Ready():
			for _, fn := range c.completions.Drain() {
				fn()
			}

		case <-events:
			cl := c.client
			closed := cl.Events().Closed()
			for _, ev := range cl.Events().Drain() {
				c.hooks.Push(ev)
			}
			if closed {
				c.disconnected(cl.Err())
			}

		case <-gone:
			gone = nil
			receiverGone = true
			c.logger.Debug("Push receiver gone")
		}
	}
}

func (c *SessionCore[C]) shutdown() {
	c.closing = true
	c.state.Store(StateClosed)
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
	c.cancel()
	c.wg.Wait()

	for _, fn := range c.completions.Drain() {
		fn()
	}
	c.completions.Close()

	c.mailbox.Close()
	for _, cmd := range c.mailbox.Drain() {
		c.hooks.Fail(cmd, ErrSessionClosed)
	}
	if c.hooks.Closed != nil {
		c.hooks.Closed()
	}
	c.logger.Info("Channel session closed")
	close(c.done)
}

// Exec runs io against the current connection off the core goroutine. The
// continuation io returns, if any, runs back on the core goroutine. Exec
// reports false while there is no connection.
func (c *SessionCore[C]) Exec(io func(cl *Client) func()) bool {
	cl := c.client
	if cl == nil {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if next := io(cl); next != nil {
			c.completions.Push(next)
		}
	}()
	return true
}

func (c *SessionCore[C]) disconnected(cause error) {
	c.client = nil
	if !c.reconnect {
		c.logger.Warn("Connection lost", "error", cause)
		c.stopped = true
		return
	}
	c.logger.Warn("Connection lost, reconnecting", "error", cause)
	c.state.Store(StateReconnecting)

	opts := c.redial
	opts.SessionID = c.sessionID
	var replay func(context.Context, *Client) error
	if c.hooks.Replay != nil {
		replay = c.hooks.Replay()
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		cl, err := Redial(c.ctx, opts, replay)
		c.completions.Push(func() { c.reconnected(cl, err) })
	}()
}

func (c *SessionCore[C]) reconnected(cl *Client, err error) {
	if c.closing {
		if cl != nil {
			_ = cl.Close()
		}
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Error("Reconnect failed, closing session", "error", err)
		}
		c.stopped = true
		return
	}
	c.client = cl
	c.sessionID = cl.Session().SessionID
	c.state.Store(StateConnected)
}
