// Package wsclient speaks the binary request/response/push protocol over a
// websocket. A Client is an actor: one goroutine owns the connection writer and
// the table of in-flight requests, a second goroutine only reads frames.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/longportwhale/openapi-go/metrics"
	"github.com/longportwhale/openapi-go/queue"
)

const (
	writeTimeout      = 10 * time.Second
	maxSweepInterval  = 250 * time.Millisecond
	defaultReqTimeout = 30 * time.Second
)

// Options configures Open.
type Options struct {
	URL     string
	Channel string // "quote" or "trade", used in logs and metrics

	AppKey   string
	Token    string
	Language string
	// SessionID resumes a previous session; auth is used if resuming fails.
	SessionID string

	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration

	Dialer  *websocket.Dialer
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Event is a push frame delivered to the owner of a Client.
type Event struct {
	Cmd  uint8
	Body []byte
}

type result struct {
	body []byte
	err  error
}

type call struct {
	cmd       uint8
	body      []byte
	reply     chan result
	heartbeat bool

	sent     time.Time
	deadline time.Time
}

func (c *call) resolve(body []byte, err error) {
	// buffered(1) and resolved once, so this never blocks
	c.reply <- result{body: body, err: err}
}

// Client is one authenticated connection.
type Client struct {
	opts    Options
	conn    *websocket.Conn
	logger  *slog.Logger
	metrics *metrics.Metrics
	session AuthInfo

	calls   chan *call
	inbound chan Frame
	readErr chan error
	events  *queue.Queue[Event]

	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	readerDone chan struct{}
	err        error
}

// Open dials opts.URL, starts the actor and authenticates. The returned error
// is a *SessionError.
func Open(ctx context.Context, opts Options) (*Client, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultReqTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("channel", opts.Channel)

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, &SessionError{Err: fmt.Errorf("parse url: %w", err)}
	}
	q := u.Query()
	q.Set("version", "1")
	q.Set("codec", "1")
	q.Set("platform", "9")
	u.RawQuery = q.Encode()

	header := http.Header{}
	if opts.Language != "" {
		header.Set("Accept-Language", opts.Language)
	}
	if opts.AppKey != "" {
		header.Set("X-Api-Key", opts.AppKey)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, &SessionError{Err: fmt.Errorf("dial %s: %w", opts.URL, err)}
	}

	c := &Client{
		opts:       opts,
		conn:       conn,
		logger:     logger,
		metrics:    opts.Metrics,
		calls:      make(chan *call),
		inbound:    make(chan Frame),
		readErr:    make(chan error, 1),
		events:     queue.New[Event](),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	go c.loop()

	info, err := c.authenticate(ctx)
	if err != nil {
		_ = c.Close()
		return nil, &SessionError{Err: err}
	}
	c.session = info
	logger.Info("Session established", "session_id", info.SessionID)
	return c, nil
}

func (c *Client) authenticate(ctx context.Context) (AuthInfo, error) {
	if c.opts.SessionID != "" {
		body, err := c.Request(ctx, CmdReconnect, EncodeReconnect(c.opts.SessionID, nil))
		if err == nil {
			return DecodeAuthInfo(body)
		}
		var se *ServerError
		if !errors.As(err, &se) {
			return AuthInfo{}, fmt.Errorf("reconnect: %w", err)
		}
		c.logger.Info("Session resume rejected, authenticating", "code", se.Code)
	}

	body, err := c.Request(ctx, CmdAuth, EncodeAuth(c.opts.Token, nil))
	if err != nil {
		return AuthInfo{}, fmt.Errorf("auth: %w", err)
	}
	return DecodeAuthInfo(body)
}

// Session returns the server session established by Open.
func (c *Client) Session() AuthInfo {
	return c.session
}

// Events is the unbounded queue of push frames. The actor never waits on it,
// so frames pile up until the owner drains them. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Events() *queue.Queue[Event] {
	return c.events
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, or nil while it is alive.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return connectionClosed(c.err)
	default:
		return nil
	}
}

// Request sends body under cmd and waits for the reply. Pending requests are
// resolved with ErrTimeout or ErrConnectionClosed; a non-success status
// yields a *ServerError.
func (c *Client) Request(ctx context.Context, cmd uint8, body []byte) ([]byte, error) {
	cl := &call{cmd: cmd, body: body, reply: make(chan result, 1)}
	select {
	case c.calls <- cl:
	case <-c.done:
		return nil, connectionClosed(c.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-cl.reply:
		return r.body, r.err
	case <-ctx.Done():
		// the actor still resolves the entry into the buffered channel
		return nil, ctx.Err()
	}
}

// Close ends the connection and waits for both goroutines to exit.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	<-c.readerDone
	return nil
}

func (c *Client) readLoop() {
	defer close(c.readerDone)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case c.readErr <- err:
			case <-c.done:
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		f, err := ParseFrame(data)
		if err != nil {
			c.logger.Warn("Discarding undecodable frame", "error", err)
			c.metrics.DecodeError(c.opts.Channel)
			continue
		}
		select {
		case c.inbound <- f:
		case <-c.done:
			return
		}
	}
}

func (c *Client) write(f Frame) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

func sweepInterval(timeout time.Duration) time.Duration {
	d := timeout / 4
	if d <= 0 || d > maxSweepInterval {
		d = maxSweepInterval
	}
	return d
}

func timeoutMS(d time.Duration) uint16 {
	ms := d.Milliseconds()
	if ms > 0xffff {
		return 0xffff
	}
	return uint16(ms)
}

func (c *Client) loop() {
	var (
		pending   = make(map[uint32]*call)
		nextID    uint32
		lastWrite = time.Now()
		cause     error
		timeout   = c.opts.RequestTimeout
		channel   = c.opts.Channel
	)

	sweep := time.NewTicker(sweepInterval(timeout))
	defer sweep.Stop()

	var heartbeatC <-chan time.Time
	if c.opts.HeartbeatInterval > 0 {
		hb := time.NewTicker(c.opts.HeartbeatInterval)
		defer hb.Stop()
		heartbeatC = hb.C
	}

	send := func(cl *call) error {
		nextID++
		if nextID == 0 {
			nextID = 1
		}
		f := Frame{Kind: KindRequest, Cmd: cl.cmd, RequestID: nextID, TimeoutMS: timeoutMS(timeout), Body: cl.body}
		if err := c.write(f); err != nil {
			return err
		}
		now := time.Now()
		lastWrite = now
		cl.sent, cl.deadline = now, now.Add(timeout)
		pending[nextID] = cl
		c.metrics.SetPending(channel, len(pending))
		return nil
	}

	observe := func(cl *call, outcome string) {
		if !cl.heartbeat {
			c.metrics.ObserveRequest(channel, strconv.Itoa(int(cl.cmd)), outcome, time.Since(cl.sent))
		}
	}

loop:
	for {
		select {
		case cl := <-c.calls:
			if err := send(cl); err != nil {
				cl.resolve(nil, connectionClosed(err))
				cause = err
				break loop
			}

		case f := <-c.inbound:
			switch f.Kind {
			case KindResponse:
				cl, ok := pending[f.RequestID]
				if !ok {
					c.logger.Debug("Reply for unknown request", "request_id", f.RequestID, "cmd", f.Cmd)
					continue
				}
				delete(pending, f.RequestID)
				c.metrics.SetPending(channel, len(pending))
				if f.Status != StatusSuccess {
					observe(cl, "server_error")
					cl.resolve(nil, decodeError(f.Body))
					continue
				}
				observe(cl, "ok")
				cl.resolve(f.Body, nil)

			case KindPush:
				if f.Cmd == CmdClose {
					cause = decodeClose(f.Body)
					break loop
				}
				c.metrics.PushFrame(channel, strconv.Itoa(int(f.Cmd)))
				c.events.Push(Event{Cmd: f.Cmd, Body: f.Body})

			default:
				c.logger.Debug("Ignoring frame", "kind", f.Kind, "cmd", f.Cmd)
			}

		case err := <-c.readErr:
			cause = err
			break loop

		case now := <-sweep.C:
			var heartbeatLost bool
			for id, cl := range pending {
				if now.Before(cl.deadline) {
					continue
				}
				delete(pending, id)
				observe(cl, "timeout")
				cl.resolve(nil, ErrTimeout)
				if cl.heartbeat {
					heartbeatLost = true
				}
			}
			c.metrics.SetPending(channel, len(pending))
			if heartbeatLost {
				cause = fmt.Errorf("heartbeat: %w", ErrTimeout)
				break loop
			}

		case <-heartbeatC:
			if time.Since(lastWrite) < c.opts.HeartbeatInterval {
				continue
			}
			hb := &call{cmd: CmdHeartbeat, body: encodeHeartbeat(time.Now().Unix()), reply: make(chan result, 1), heartbeat: true}
			if err := send(hb); err != nil {
				cause = err
				break loop
			}

		case <-c.stop:
			cause = errors.New("client closed")
			break loop
		}
	}

	_ = c.conn.Close()
	closed := connectionClosed(cause)
	for id, cl := range pending {
		delete(pending, id)
		observe(cl, "closed")
		cl.resolve(nil, closed)
	}
	c.metrics.SetPending(channel, 0)
	c.err = cause
	close(c.done)
	c.events.Close()

	c.logger.Info("Session ended", "reason", cause)
}
