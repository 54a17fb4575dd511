// Package binding exposes quote and trade sessions through integer handles
// and plain callbacks, for hosts that embed the SDK through a foreign
// function interface.
package binding

import (
	"context"

	"github.com/longportwhale/openapi-go/config"
	"github.com/longportwhale/openapi-go/handle"
	"github.com/longportwhale/openapi-go/push"
	"github.com/longportwhale/openapi-go/quote"
	"github.com/longportwhale/openapi-go/trade"
)

// QuoteCallback receives pushes together with the handle they arrived on.
type QuoteCallback func(id handle.ID, ev quote.PushEvent)

type OrderChangedCallback func(id handle.ID, ev trade.PushOrderChanged)

// Host owns the sessions created through it.
type Host struct {
	quotes *handle.Registry[*quote.Session]
	trades *handle.Registry[*trade.Session]
}

func NewHost() *Host {
	return &Host{
		quotes: handle.NewRegistry[*quote.Session](),
		trades: handle.NewRegistry[*trade.Session](),
	}
}

// NewQuoteContext opens a quote session and returns its handle with one
// reference.
func (h *Host) NewQuoteContext(ctx context.Context, cfg *config.Config) (handle.ID, error) {
	s, err := quote.NewSession(ctx, cfg)
	if err != nil {
		return 0, err
	}
	return h.quotes.Register(s), nil
}

func (h *Host) QuoteContextRetain(id handle.ID) error  { return h.quotes.Retain(id) }
func (h *Host) QuoteContextRelease(id handle.ID) error { return h.quotes.Release(id) }

func quoteListener(id handle.ID, fn QuoteCallback) push.Listener[quote.PushEvent] {
	if fn == nil {
		return nil
	}
	return push.ListenerFunc[quote.PushEvent](func(ev quote.PushEvent) { fn(id, ev) })
}

// QuoteSetOnQuote replaces the quote callback; nil removes it.
func (h *Host) QuoteSetOnQuote(id handle.ID, fn QuoteCallback) error {
	s, err := h.quotes.Get(id)
	if err != nil {
		return err
	}
	s.OnQuote(quoteListener(id, fn))
	return nil
}

func (h *Host) QuoteSetOnDepth(id handle.ID, fn QuoteCallback) error {
	s, err := h.quotes.Get(id)
	if err != nil {
		return err
	}
	s.OnDepth(quoteListener(id, fn))
	return nil
}

func (h *Host) QuoteSetOnBrokers(id handle.ID, fn QuoteCallback) error {
	s, err := h.quotes.Get(id)
	if err != nil {
		return err
	}
	s.OnBrokers(quoteListener(id, fn))
	return nil
}

func (h *Host) QuoteSetOnTrades(id handle.ID, fn QuoteCallback) error {
	s, err := h.quotes.Get(id)
	if err != nil {
		return err
	}
	s.OnTrades(quoteListener(id, fn))
	return nil
}

func (h *Host) QuoteSetOnCandlestick(id handle.ID, fn QuoteCallback) error {
	s, err := h.quotes.Get(id)
	if err != nil {
		return err
	}
	s.OnCandlestick(quoteListener(id, fn))
	return nil
}

func (h *Host) QuoteSubscribe(ctx context.Context, id handle.ID, symbols []string, flags quote.SubFlags, isFirstPush bool) error {
	s, err := h.quotes.Get(id)
	if err != nil {
		return err
	}
	return s.Subscribe(ctx, symbols, flags, isFirstPush)
}

func (h *Host) QuoteUnsubscribe(ctx context.Context, id handle.ID, symbols []string, flags quote.SubFlags) error {
	s, err := h.quotes.Get(id)
	if err != nil {
		return err
	}
	return s.Unsubscribe(ctx, symbols, flags)
}

func (h *Host) Quote(ctx context.Context, id handle.ID, symbols []string) ([]quote.SecurityQuote, error) {
	s, err := h.quotes.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Quote(ctx, symbols)
}

// NewTradeContext opens a trade session and returns its handle with one
// reference.
func (h *Host) NewTradeContext(ctx context.Context, cfg *config.Config) (handle.ID, error) {
	s, err := trade.NewSession(ctx, cfg)
	if err != nil {
		return 0, err
	}
	return h.trades.Register(s), nil
}

func (h *Host) TradeContextRetain(id handle.ID) error  { return h.trades.Retain(id) }
func (h *Host) TradeContextRelease(id handle.ID) error { return h.trades.Release(id) }

// TradeSetOnOrderChanged replaces the order change callback; nil removes it.
func (h *Host) TradeSetOnOrderChanged(id handle.ID, fn OrderChangedCallback) error {
	s, err := h.trades.Get(id)
	if err != nil {
		return err
	}
	if fn == nil {
		s.OnOrderChanged(nil)
		return nil
	}
	s.OnOrderChanged(push.ListenerFunc[trade.PushOrderChanged](func(ev trade.PushOrderChanged) { fn(id, ev) }))
	return nil
}

func (h *Host) TradeSubscribe(ctx context.Context, id handle.ID, topics []trade.TopicType) error {
	s, err := h.trades.Get(id)
	if err != nil {
		return err
	}
	return s.Subscribe(ctx, topics)
}

func (h *Host) TradeUnsubscribe(ctx context.Context, id handle.ID, topics []trade.TopicType) error {
	s, err := h.trades.Get(id)
	if err != nil {
		return err
	}
	return s.Unsubscribe(ctx, topics)
}

// Len reports the number of live quote and trade handles.
func (h *Host) Len() (quotes, trades int) {
	return h.quotes.Len(), h.trades.Len()
}
