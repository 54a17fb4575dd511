package wsclient

import (
	"fmt"

	"github.com/longportwhale/openapi-go/pbwire"
)

// Control command codes shared by every channel.
const (
	CmdClose     uint8 = 0
	CmdHeartbeat uint8 = 1
	CmdAuth      uint8 = 2
	CmdReconnect uint8 = 3
)

// AuthInfo is returned by auth and reconnect.
type AuthInfo struct {
	SessionID string
	ExpiresAt int64
}

func encodeMetadata(e *pbwire.Encoder, metadata map[string]string) {
	for k, v := range metadata {
		e.Message(2, func(m *pbwire.Encoder) {
			m.String(1, k)
			m.String(2, v)
		})
	}
}

// EncodeAuth builds an auth request body.
func EncodeAuth(token string, metadata map[string]string) []byte {
	var e pbwire.Encoder
	e.String(1, token)
	encodeMetadata(&e, metadata)
	return e.Bytes()
}

// EncodeReconnect builds a reconnect request body.
func EncodeReconnect(sessionID string, metadata map[string]string) []byte {
	var e pbwire.Encoder
	e.String(1, sessionID)
	encodeMetadata(&e, metadata)
	return e.Bytes()
}

// DecodeAuthInfo parses the reply to auth or reconnect.
func DecodeAuthInfo(b []byte) (AuthInfo, error) {
	var info AuthInfo
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			info.SessionID = f.Text()
		case 2:
			info.ExpiresAt = f.Int64()
		}
		return nil
	})
	if err != nil {
		return AuthInfo{}, &ProtocolError{Op: "decode auth reply", Err: err}
	}
	return info, nil
}

// EncodeAuthInfo builds the reply to auth or reconnect.
func EncodeAuthInfo(info AuthInfo) []byte {
	var e pbwire.Encoder
	e.String(1, info.SessionID)
	e.Int64(2, info.ExpiresAt)
	return e.Bytes()
}

func encodeHeartbeat(ts int64) []byte {
	var e pbwire.Encoder
	e.Int64(1, ts)
	return e.Bytes()
}

// EncodeError builds the body of a failed response.
func EncodeError(code int64, msg string) []byte {
	var e pbwire.Encoder
	e.Int64(1, code)
	e.String(2, msg)
	return e.Bytes()
}

func decodeError(b []byte) error {
	var se ServerError
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			se.Code = f.Int64()
		case 2:
			se.Message = f.Text()
		}
		return nil
	})
	if err != nil {
		return &ProtocolError{Op: "decode error body", Err: err}
	}
	return &se
}

// EncodeClose builds the body of a close push.
func EncodeClose(code int64, reason string) []byte {
	var e pbwire.Encoder
	e.Int64(1, code)
	e.String(2, reason)
	return e.Bytes()
}

func decodeClose(b []byte) error {
	var code int64
	var reason string
	_ = pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			code = f.Int64()
		case 2:
			reason = f.Text()
		}
		return nil
	})
	return fmt.Errorf("server closed session: code=%d reason=%q", code, reason)
}
