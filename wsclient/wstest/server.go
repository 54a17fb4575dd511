// Package wstest runs an in-process websocket server that speaks the frame
// protocol, for tests of the quote and trade channels.
package wstest

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/longportwhale/openapi-go/wsclient"
)

// ErrNoReply makes a handler swallow the request.
var ErrNoReply = errors.New("no reply")

// HandlerFunc answers one request. Returning a *wsclient.ServerError sends a
// failed response.
type HandlerFunc func(body []byte) ([]byte, error)

// Server is a fake endpoint. Auth and reconnect are answered automatically.
type Server struct {
	ts       *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[uint8]HandlerFunc
	conns    map[*conn]struct{}
	sessions map[string]bool
	header   http.Header

	refuse          atomic.Bool
	rejectReconnect atomic.Bool
	authErr         atomic.Pointer[wsclient.ServerError]

	nextSession atomic.Int64
	counts      sync.Map // uint8 -> *atomic.Int64
	wg          sync.WaitGroup
}

type conn struct {
	ws *websocket.Conn
	wm sync.Mutex
}

func (c *conn) write(f wsclient.Frame) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	c.wm.Lock()
	defer c.wm.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// NewServer starts a server.
func NewServer() *Server {
	s := &Server{
		handlers: make(map[uint8]HandlerFunc),
		conns:    make(map[*conn]struct{}),
		sessions: make(map[string]bool),
	}
	s.ts = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URL is the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http")
}

// Handle registers h for cmd.
func (s *Server) Handle(cmd uint8, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[cmd] = h
	s.mu.Unlock()
}

// Count reports how many requests arrived for cmd.
func (s *Server) Count(cmd uint8) int {
	v, ok := s.counts.Load(cmd)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}

// Header returns the headers of the most recent upgrade.
func (s *Server) Header() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Clone()
}

// Conns reports the number of live connections.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Refuse makes new upgrades fail with 503.
func (s *Server) Refuse(v bool) { s.refuse.Store(v) }

// RejectReconnect makes session resumption fail so clients fall back to auth.
func (s *Server) RejectReconnect(v bool) { s.rejectReconnect.Store(v) }

// FailAuth makes auth fail with err; nil restores success.
func (s *Server) FailAuth(err *wsclient.ServerError) { s.authErr.Store(err) }

// Push sends a push frame to every live connection.
func (s *Server) Push(cmd uint8, body []byte) {
	for _, c := range s.snapshot() {
		_ = c.write(wsclient.Frame{Kind: wsclient.KindPush, Cmd: cmd, Body: body})
	}
}

// PushRaw writes b verbatim to every live connection.
func (s *Server) PushRaw(b []byte) {
	for _, c := range s.snapshot() {
		c.wm.Lock()
		_ = c.ws.WriteMessage(websocket.BinaryMessage, b)
		c.wm.Unlock()
	}
}

// DropConnections closes every live connection without a close frame.
func (s *Server) DropConnections() {
	for _, c := range s.snapshot() {
		_ = c.ws.Close()
	}
}

// Close drops all connections and stops the server.
func (s *Server) Close() {
	s.Refuse(true)
	s.DropConnections()
	s.wg.Wait()
	s.ts.Close()
}

func (s *Server) snapshot() []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) count(cmd uint8) {
	v, _ := s.counts.LoadOrStore(cmd, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.refuse.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}

	s.mu.Lock()
	s.header = r.Header.Clone()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.wg.Add(1)

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = ws.Close()
		s.wg.Done()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := wsclient.ParseFrame(data)
		if err != nil || f.Kind != wsclient.KindRequest {
			continue
		}
		s.count(f.Cmd)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.answer(c, f)
		}()
	}
}

func (s *Server) answer(c *conn, f wsclient.Frame) {
	var (
		body []byte
		err  error
	)
	switch f.Cmd {
	case wsclient.CmdAuth:
		body, err = s.auth()
	case wsclient.CmdReconnect:
		body, err = s.reconnect(f.Body)
	case wsclient.CmdHeartbeat:
		body = f.Body
	default:
		s.mu.Lock()
		h := s.handlers[f.Cmd]
		s.mu.Unlock()
		if h == nil {
			err = &wsclient.ServerError{Code: 404, Message: fmt.Sprintf("no handler for cmd %d", f.Cmd)}
		} else {
			body, err = h(f.Body)
		}
	}
	if errors.Is(err, ErrNoReply) {
		return
	}

	reply := wsclient.Frame{Kind: wsclient.KindResponse, Cmd: f.Cmd, RequestID: f.RequestID, Body: body}
	if err != nil {
		var se *wsclient.ServerError
		if !errors.As(err, &se) {
			se = &wsclient.ServerError{Code: 500, Message: err.Error()}
		}
		reply.Status = 1
		reply.Body = wsclient.EncodeError(se.Code, se.Message)
	}
	_ = c.write(reply)
}

func (s *Server) auth() ([]byte, error) {
	if se := s.authErr.Load(); se != nil {
		return nil, se
	}
	id := fmt.Sprintf("sess-%d", s.nextSession.Add(1))
	s.mu.Lock()
	s.sessions[id] = true
	s.mu.Unlock()
	return wsclient.EncodeAuthInfo(wsclient.AuthInfo{SessionID: id, ExpiresAt: 1 << 40}), nil
}

func (s *Server) reconnect(body []byte) ([]byte, error) {
	if s.rejectReconnect.Load() {
		return nil, &wsclient.ServerError{Code: 401, Message: "session expired"}
	}
	info, err := wsclient.DecodeAuthInfo(body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	known := s.sessions[info.SessionID]
	s.mu.Unlock()
	if !known {
		return nil, &wsclient.ServerError{Code: 401, Message: "unknown session"}
	}
	return wsclient.EncodeAuthInfo(wsclient.AuthInfo{SessionID: info.SessionID, ExpiresAt: 1 << 40}), nil
}
