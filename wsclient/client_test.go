package wsclient_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/longportwhale/openapi-go/queue"
	"github.com/longportwhale/openapi-go/wsclient"
	"github.com/longportwhale/openapi-go/wsclient/wstest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func open(t *testing.T, srv *wstest.Server, mutate ...func(*wsclient.Options)) *wsclient.Client {
	t.Helper()
	opts := wsclient.Options{
		URL:            srv.URL(),
		Channel:        "quote",
		AppKey:         "app-key",
		Token:          "token",
		Language:       "en",
		RequestTimeout: 2 * time.Second,
		Logger:         testLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := wsclient.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpen_SendsHeadersAndAuthenticates(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := open(t, srv)
	assert.Equal(t, "sess-1", c.Session().SessionID)
	assert.Equal(t, "en", srv.Header().Get("Accept-Language"))
	assert.Equal(t, "app-key", srv.Header().Get("X-Api-Key"))
	assert.Equal(t, 1, srv.Count(wsclient.CmdAuth))
}

func TestOpen_AuthRejected(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.FailAuth(&wsclient.ServerError{Code: 401, Message: "bad token"})

	_, err := wsclient.Open(context.Background(), wsclient.Options{URL: srv.URL(), Logger: testLogger()})
	var sessErr *wsclient.SessionError
	require.ErrorAs(t, err, &sessErr)
	var se *wsclient.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(401), se.Code)
}

func TestOpen_DialRefused(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Refuse(true)

	_, err := wsclient.Open(context.Background(), wsclient.Options{URL: srv.URL(), Logger: testLogger()})
	var sessErr *wsclient.SessionError
	assert.ErrorAs(t, err, &sessErr)
}

func TestOpen_ResumesSession(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	first := open(t, srv)
	id := first.Session().SessionID
	require.NoError(t, first.Close())

	second := open(t, srv, func(o *wsclient.Options) { o.SessionID = id })
	assert.Equal(t, id, second.Session().SessionID)
	assert.Equal(t, 1, srv.Count(wsclient.CmdReconnect))
	assert.Equal(t, 1, srv.Count(wsclient.CmdAuth))
}

func TestOpen_ResumeRejectedFallsBackToAuth(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.RejectReconnect(true)

	c := open(t, srv, func(o *wsclient.Options) { o.SessionID = "stale" })
	assert.Equal(t, "sess-1", c.Session().SessionID)
	assert.Equal(t, 1, srv.Count(wsclient.CmdReconnect))
	assert.Equal(t, 1, srv.Count(wsclient.CmdAuth))
}

func TestRequest_Reply(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(11, func(body []byte) ([]byte, error) {
		return append([]byte("echo:"), body...), nil
	})

	c := open(t, srv)
	got, err := c.Request(context.Background(), 11, []byte("700.HK"))
	require.NoError(t, err)
	assert.Equal(t, "echo:700.HK", string(got))
}

func TestRequest_ServerError(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(11, func([]byte) ([]byte, error) {
		return nil, &wsclient.ServerError{Code: 301604, Message: "no quote access"}
	})

	c := open(t, srv)
	_, err := c.Request(context.Background(), 11, nil)
	var se *wsclient.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(301604), se.Code)
	assert.Equal(t, "no quote access", se.Message)
}

func TestRequest_Timeout(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(14, func([]byte) ([]byte, error) { return nil, wstest.ErrNoReply })

	c := open(t, srv, func(o *wsclient.Options) { o.RequestTimeout = 100 * time.Millisecond })
	start := time.Now()
	_, err := c.Request(context.Background(), 14, nil)
	assert.ErrorIs(t, err, wsclient.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Nil(t, c.Err(), "a timed out request does not end the connection")
}

func TestRequest_ContextCancel(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(14, func([]byte) ([]byte, error) { return nil, wstest.ErrNoReply })

	c := open(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, 14, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequest_PendingResolvedOnDrop(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	arrived := make(chan struct{})
	srv.Handle(14, func([]byte) ([]byte, error) {
		close(arrived)
		return nil, wstest.ErrNoReply
	})

	c := open(t, srv)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), 14, nil)
		errCh <- err
	}()

	<-arrived
	srv.DropConnections()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, wsclient.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not resolved")
	}

	<-c.Done()
	assert.ErrorIs(t, c.Err(), wsclient.ErrConnectionClosed)
	_, err := c.Request(context.Background(), 14, nil)
	assert.ErrorIs(t, err, wsclient.ErrConnectionClosed)

	_, err = c.Events().Recv(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed, "events closed after teardown")
}

func TestPush_Delivered(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := open(t, srv)
	srv.Push(101, []byte("quote"))

	ev := nextEvent(t, c)
	assert.Equal(t, uint8(101), ev.Cmd)
	assert.Equal(t, []byte("quote"), ev.Body)
}

func TestPush_UndecodableFrameSkipped(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := open(t, srv)
	srv.PushRaw([]byte{0x03, 101, 0, 0, 50})
	srv.Push(102, []byte("depth"))

	assert.Equal(t, uint8(102), nextEvent(t, c).Cmd)
	assert.Nil(t, c.Err())
}

func TestServerClosePush(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := open(t, srv)
	srv.Push(wsclient.CmdClose, wsclient.EncodeClose(1, "kicked"))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed")
	}
	err := c.Err()
	assert.ErrorIs(t, err, wsclient.ErrConnectionClosed)
	assert.Contains(t, err.Error(), "kicked")
}

func TestHeartbeat(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := open(t, srv, func(o *wsclient.Options) { o.HeartbeatInterval = 20 * time.Millisecond })
	assert.Eventually(t, func() bool {
		return srv.Count(wsclient.CmdHeartbeat) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, c.Err())
}

func TestClose_Idempotent(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := open(t, srv)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err := c.Request(context.Background(), 11, nil)
	assert.True(t, errors.Is(err, wsclient.ErrConnectionClosed))
}

func nextEvent(t *testing.T, c *wsclient.Client) wsclient.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := c.Events().Recv(ctx)
	require.NoError(t, err, "push not delivered")
	return ev
}

func TestPush_UndrainedEventsDoNotStallRequests(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(14, func([]byte) ([]byte, error) {
		for range 1000 {
			srv.Push(101, []byte("quote"))
		}
		return []byte("pong"), nil
	})

	c := open(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	body, err := c.Request(ctx, 14, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), body)
	assert.Equal(t, 1000, c.Events().Len())
}
