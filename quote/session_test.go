package quote

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longportwhale/openapi-go/push"
)

func TestSession_DispatchesByKind(t *testing.T) {
	srv := newFakeQuote(t)
	s, err := NewSession(context.Background(), testConfig(srv.Server))
	require.NoError(t, err)
	done := s.s.done

	quotes := make(chan PushEvent, 4)
	depths := make(chan PushEvent, 4)
	s.OnQuote(push.ListenerFunc[PushEvent](func(ev PushEvent) { quotes <- ev }))
	s.OnDepth(push.ListenerFunc[PushEvent](func(ev PushEvent) { depths <- ev }))

	ctx := context.Background()
	require.NoError(t, s.Subscribe(ctx, []string{"700.HK"}, SubQuote|SubDepth|SubTrade, false))

	// trades have no listener and are dropped
	sendPush(t, srv.Server, PushEvent{Symbol: "700.HK", Sequence: 1, Detail: PushTrades{Trades: []Trade{{Price: decimal.NewFromInt(1)}}}})
	sendPush(t, srv.Server, PushEvent{Symbol: "700.HK", Sequence: 2, Detail: PushDepth{Bids: []Depth{{Position: 1, Price: decimal.NewFromInt(385)}}}})
	sendPush(t, srv.Server, PushEvent{Symbol: "700.HK", Sequence: 3, Detail: PushQuote{LastDone: decimal.NewFromInt(386)}})

	select {
	case ev := <-quotes:
		assert.Equal(t, int64(3), ev.Sequence)
	case <-time.After(2 * time.Second):
		t.Fatal("quote listener not called")
	}
	select {
	case ev := <-depths:
		assert.Equal(t, int64(2), ev.Sequence)
	case <-time.After(2 * time.Second):
		t.Fatal("depth listener not called")
	}

	// replacing a listener takes effect for later pushes
	replaced := make(chan PushEvent, 1)
	s.OnQuote(push.ListenerFunc[PushEvent](func(ev PushEvent) { replaced <- ev }))
	sendPush(t, srv.Server, PushEvent{Symbol: "700.HK", Sequence: 4, Detail: PushQuote{LastDone: decimal.NewFromInt(387)}})
	select {
	case ev := <-replaced:
		assert.Equal(t, int64(4), ev.Sequence)
	case <-time.After(2 * time.Second):
		t.Fatal("replacement listener not called")
	}
	assert.Empty(t, quotes)

	require.NoError(t, s.Close())
	waitClosed(t, done)
}
