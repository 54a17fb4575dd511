package wsclient

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RequestLayout(t *testing.T) {
	b, err := Frame{Kind: KindRequest, Cmd: 11, RequestID: 0x01020304, TimeoutMS: 0x0506, Body: []byte{0xaa, 0xbb}}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 11, 1, 2, 3, 4, 5, 6, 0, 0, 2, 0xaa, 0xbb}, b)

	f, err := ParseFrame(b)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, f.Kind)
	assert.Equal(t, uint8(11), f.Cmd)
	assert.Equal(t, uint32(0x01020304), f.RequestID)
	assert.Equal(t, uint16(0x0506), f.TimeoutMS)
	assert.Equal(t, []byte{0xaa, 0xbb}, f.Body)
}

func TestFrame_ResponseAndPush(t *testing.T) {
	b, err := Frame{Kind: KindResponse, Cmd: 2, RequestID: 7, Status: 3, Body: []byte("x")}.MarshalBinary()
	require.NoError(t, err)
	f, err := ParseFrame(b)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, f.Kind)
	assert.Equal(t, uint32(7), f.RequestID)
	assert.Equal(t, uint8(3), f.Status)

	b, err = Frame{Kind: KindPush, Cmd: 101, Body: []byte("push")}.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, pushHeaderLen+4)
	f, err = ParseFrame(b)
	require.NoError(t, err)
	assert.Equal(t, KindPush, f.Kind)
	assert.Equal(t, uint8(101), f.Cmd)
	assert.Equal(t, []byte("push"), f.Body)
}

func TestFrame_Gzip(t *testing.T) {
	body := bytes.Repeat([]byte("700.HK "), 200)
	b, err := Frame{Kind: KindPush, Cmd: 101, Gzip: true, Body: body}.MarshalBinary()
	require.NoError(t, err)
	assert.Less(t, len(b), len(body))
	assert.NotZero(t, b[0]&flagGzip)

	f, err := ParseFrame(b)
	require.NoError(t, err)
	assert.True(t, f.Gzip)
	assert.Equal(t, body, f.Body)
}

func TestParseFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short request", []byte{0x01, 1, 0, 0}},
		{"short response", []byte{0x02, 1, 0, 0, 0, 1, 0}},
		{"short push", []byte{0x03, 1, 0}},
		{"truncated body", []byte{0x03, 1, 0, 0, 9, 1, 2}},
		{"unknown kind", []byte{0x07, 1, 0, 0, 0}},
		{"bad gzip", []byte{0x03 | flagGzip, 1, 0, 0, 2, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.in)
			var pe *ProtocolError
			assert.True(t, errors.As(err, &pe), "got %v", err)
		})
	}
}

func TestDecodeError(t *testing.T) {
	err := decodeError(EncodeError(301600, "invalid symbol"))
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(301600), se.Code)
	assert.Equal(t, "invalid symbol", se.Message)
}

func TestAuthInfoRoundTrip(t *testing.T) {
	info, err := DecodeAuthInfo(EncodeAuthInfo(AuthInfo{SessionID: "abc", ExpiresAt: 1700000000}))
	require.NoError(t, err)
	assert.Equal(t, AuthInfo{SessionID: "abc", ExpiresAt: 1700000000}, info)
}

func TestConnectionClosedWrapsCause(t *testing.T) {
	assert.Same(t, ErrConnectionClosed, connectionClosed(nil))
	err := connectionClosed(errors.New("eof"))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Contains(t, err.Error(), "eof")
}

func TestBackoff_Grows(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 10 * time.Second, Factor: 2}
	assert.Equal(t, time.Second, b.Next(0))
	assert.Equal(t, time.Second, b.Next(1))
	assert.Equal(t, 2*time.Second, b.Next(2))
	assert.Equal(t, 8*time.Second, b.Next(4))
	assert.Equal(t, 10*time.Second, b.Next(5))
	assert.Equal(t, 10*time.Second, b.Next(50))
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := Backoff{Min: time.Second, Max: time.Second, Factor: 2, Jitter: 0.1}
	for i := 0; i < 100; i++ {
		d := b.Next(3)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestBackoff_ZeroValueUsesDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, DefaultBackoff.Min, b.Next(1))
	assert.Equal(t, 2*DefaultBackoff.Min, b.Next(2))
}
