package wsclient

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned for commands submitted after the session ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrConnectionClosed resolves requests whose connection dropped before a reply.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrTimeout resolves requests that got no reply within the request timeout.
	ErrTimeout = errors.New("request timeout")
)

// ProtocolError reports a frame or payload that could not be decoded.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ServerError is an application-level failure reported by the server.
type ServerError struct {
	Code    int64
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// SessionError reports a failed initial handshake.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return "open session: " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func connectionClosed(cause error) error {
	if cause == nil || errors.Is(cause, ErrConnectionClosed) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
}
