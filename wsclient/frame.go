package wsclient

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Kind discriminates request, response and push frames.
type Kind uint8

const (
	KindRequest  Kind = 1
	KindResponse Kind = 2
	KindPush     Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindPush:
		return "push"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	kindMask   = 0x0f
	flagVerify = 1 << 4
	flagGzip   = 1 << 5

	// MaxBodyLen is the largest body the 24-bit length field can carry.
	MaxBodyLen = 1<<24 - 1

	requestHeaderLen  = 11
	responseHeaderLen = 10
	pushHeaderLen     = 5
)

// StatusSuccess marks a successful response.
const StatusSuccess uint8 = 0

// Frame is one binary websocket message.
//
//	request:  hdr | cmd | request_id u32 | timeout_ms u16 | body_len u24 | body
//	response: hdr | cmd | request_id u32 | status u8      | body_len u24 | body
//	push:     hdr | cmd | body_len u24   | body
//
// hdr carries the kind in its low nibble plus the verify and gzip flags.
// Multi-byte integers are big-endian.
type Frame struct {
	Kind      Kind
	Cmd       uint8
	RequestID uint32
	TimeoutMS uint16
	Status    uint8
	Gzip      bool
	Body      []byte
}

// MarshalBinary encodes f, compressing the body when Gzip is set.
func (f Frame) MarshalBinary() ([]byte, error) {
	body := f.Body
	hdr := byte(f.Kind) & kindMask
	if f.Gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		body = buf.Bytes()
		hdr |= flagGzip
	}
	if len(body) > MaxBodyLen {
		return nil, fmt.Errorf("body of %d bytes exceeds %d", len(body), MaxBodyLen)
	}

	var out []byte
	switch f.Kind {
	case KindRequest:
		out = make([]byte, requestHeaderLen, requestHeaderLen+len(body))
		out[0], out[1] = hdr, f.Cmd
		binary.BigEndian.PutUint32(out[2:6], f.RequestID)
		binary.BigEndian.PutUint16(out[6:8], f.TimeoutMS)
		putUint24(out[8:11], uint32(len(body)))
	case KindResponse:
		out = make([]byte, responseHeaderLen, responseHeaderLen+len(body))
		out[0], out[1] = hdr, f.Cmd
		binary.BigEndian.PutUint32(out[2:6], f.RequestID)
		out[6] = f.Status
		putUint24(out[7:10], uint32(len(body)))
	case KindPush:
		out = make([]byte, pushHeaderLen, pushHeaderLen+len(body))
		out[0], out[1] = hdr, f.Cmd
		putUint24(out[2:5], uint32(len(body)))
	default:
		return nil, fmt.Errorf("unknown frame kind %d", f.Kind)
	}
	return append(out, body...), nil
}

var errShortFrame = errors.New("short frame")

// ParseFrame decodes one message. Gzip bodies are inflated.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < 2 {
		return Frame{}, &ProtocolError{Op: "parse frame", Err: errShortFrame}
	}
	f := Frame{Kind: Kind(b[0] & kindMask), Cmd: b[1], Gzip: b[0]&flagGzip != 0}

	var rest []byte
	switch f.Kind {
	case KindRequest:
		if len(b) < requestHeaderLen {
			return Frame{}, &ProtocolError{Op: "parse request", Err: errShortFrame}
		}
		f.RequestID = binary.BigEndian.Uint32(b[2:6])
		f.TimeoutMS = binary.BigEndian.Uint16(b[6:8])
		n := uint24(b[8:11])
		rest = b[requestHeaderLen:]
		if uint32(len(rest)) < n {
			return Frame{}, &ProtocolError{Op: "parse request", Err: io.ErrUnexpectedEOF}
		}
		f.Body = rest[:n]
	case KindResponse:
		if len(b) < responseHeaderLen {
			return Frame{}, &ProtocolError{Op: "parse response", Err: errShortFrame}
		}
		f.RequestID = binary.BigEndian.Uint32(b[2:6])
		f.Status = b[6]
		n := uint24(b[7:10])
		rest = b[responseHeaderLen:]
		if uint32(len(rest)) < n {
			return Frame{}, &ProtocolError{Op: "parse response", Err: io.ErrUnexpectedEOF}
		}
		f.Body = rest[:n]
	case KindPush:
		if len(b) < pushHeaderLen {
			return Frame{}, &ProtocolError{Op: "parse push", Err: errShortFrame}
		}
		n := uint24(b[2:5])
		rest = b[pushHeaderLen:]
		if uint32(len(rest)) < n {
			return Frame{}, &ProtocolError{Op: "parse push", Err: io.ErrUnexpectedEOF}
		}
		f.Body = rest[:n]
	default:
		return Frame{}, &ProtocolError{Op: "parse frame", Err: fmt.Errorf("unknown kind %d", f.Kind)}
	}

	if f.Gzip && len(f.Body) > 0 {
		zr, err := gzip.NewReader(bytes.NewReader(f.Body))
		if err != nil {
			return Frame{}, &ProtocolError{Op: "gunzip body", Err: err}
		}
		body, err := io.ReadAll(io.LimitReader(zr, MaxBodyLen+1))
		if err != nil {
			return Frame{}, &ProtocolError{Op: "gunzip body", Err: err}
		}
		if len(body) > MaxBodyLen {
			return Frame{}, &ProtocolError{Op: "gunzip body", Err: errors.New("inflated body too large")}
		}
		f.Body = body
	}
	return f, nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
