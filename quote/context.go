// Package quote is the market data channel: request/reply reads, cached
// reference data, subscriptions and a local mirror of pushed data.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/longportwhale/openapi-go/cache"
	"github.com/longportwhale/openapi-go/config"
	"github.com/longportwhale/openapi-go/metrics"
	"github.com/longportwhale/openapi-go/pbwire"
	"github.com/longportwhale/openapi-go/push"
	"github.com/longportwhale/openapi-go/queue"
	"github.com/longportwhale/openapi-go/wsclient"
)

// Reference data lifetimes.
const (
	participantsTTL   = 30 * time.Minute
	issuersTTL        = 30 * time.Minute
	optionChainTTL    = 30 * time.Minute
	tradingSessionTTL = 2 * time.Hour
)

type strikesKey struct {
	symbol string
	date   string
}

// shared is the state common to every handle of one session.
type shared struct {
	mailbox *queue.Queue[command]
	state   *wsclient.StateVar
	refs    atomic.Int64
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
	done    <-chan struct{}

	participants  *cache.Cache[[]ParticipantInfo]
	issuers       *cache.Cache[[]IssuerInfo]
	sessions      *cache.Cache[[]MarketTradingSession]
	optionDates   *cache.Keyed[string, []time.Time]
	optionStrikes *cache.Keyed[strikesKey, []StrikePriceInfo]
}

func (s *shared) release() {
	if s.refs.Add(-1) == 0 {
		s.mailbox.Close()
	}
}

// handleRef is released once, by Close or by the cleanup of a collected handle.
type handleRef struct {
	s        *shared
	once     sync.Once
	released atomic.Bool
}

func (r *handleRef) release() {
	r.once.Do(func() {
		r.released.Store(true)
		r.s.release()
	})
}

// QuoteContext is a handle on a quote session. Handles made by Clone share
// the session, which ends once every handle is closed or collected and the
// push receiver is gone.
type QuoteContext struct {
	s       *shared
	ref     *handleRef
	cleanup runtime.Cleanup
}

func newHandle(s *shared) *QuoteContext {
	s.refs.Add(1)
	ref := &handleRef{s: s}
	h := &QuoteContext{s: s, ref: ref}
	h.cleanup = runtime.AddCleanup(h, (*handleRef).release, ref)
	return h
}

// TryNew opens a quote session.
func TryNew(ctx context.Context, cfg *config.Config) (*QuoteContext, *push.Receiver[PushEvent], error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := wsclient.ConfigOptions(cfg, "quote", cfg.QuoteWSURL)
	client, err := wsclient.Open(ctx, opts.Options)
	if err != nil {
		return nil, nil, err
	}

	rx, sink := push.NewReceiver[PushEvent]()
	s := &shared{
		mailbox:       queue.New[command](),
		state:         new(wsclient.StateVar),
		logger:        cfg.Log(),
		metrics:       cfg.Metrics,
		participants:  cache.New[[]ParticipantInfo](participantsTTL, lookupHook(cfg.Metrics, "participants")),
		issuers:       cache.New[[]IssuerInfo](issuersTTL, lookupHook(cfg.Metrics, "warrant_issuers")),
		sessions:      cache.New[[]MarketTradingSession](tradingSessionTTL, lookupHook(cfg.Metrics, "trading_session")),
		optionDates:   cache.NewKeyed[string, []time.Time](optionChainTTL, lookupHook(cfg.Metrics, "option_chain_dates")),
		optionStrikes: cache.NewKeyed[strikesKey, []StrikePriceInfo](optionChainTTL, lookupHook(cfg.Metrics, "option_chain_strikes")),
	}
	if cfg.QuoteRate > 0 {
		burst := max(cfg.QuoteBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.QuoteRate), burst)
	}

	c := newCore(client, opts, cfg.Reconnect, s.mailbox, sink, s.state)
	s.done = c.Done()
	go c.Run()

	cfg.Log().Info("Quote session opened", "session_id", client.Session().SessionID)
	return newHandle(s), rx, nil
}

// Clone returns another handle on the same session.
func (h *QuoteContext) Clone() *QuoteContext {
	return newHandle(h.s)
}

// Close releases this handle. Requests already issued through other handles
// are unaffected.
func (h *QuoteContext) Close() error {
	h.cleanup.Stop()
	h.ref.release()
	return nil
}

// State reports the session state.
func (h *QuoteContext) State() wsclient.State {
	return h.s.state.Load()
}

func (h *QuoteContext) usable() error {
	if h.ref.released.Load() {
		return wsclient.ErrSessionClosed
	}
	return nil
}

func submit[T any](ctx context.Context, s *shared, cmd command, reply chan outcome[T]) (T, error) {
	var zero T
	if !s.mailbox.Push(cmd) {
		return zero, wsclient.ErrSessionClosed
	}
	select {
	case o := <-reply:
		return o.v, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func submitErr(ctx context.Context, s *shared, cmd command, reply chan error) error {
	if !s.mailbox.Push(cmd) {
		return wsclient.ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *shared) request(ctx context.Context, cmd uint8, body []byte) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	reply := make(chan outcome[[]byte], 1)
	return submit(ctx, s, &requestCmd{ctx: ctx, cmd: cmd, body: body, reply: reply}, reply)
}

func lookupHook(m *metrics.Metrics, name string) cache.Option {
	return cache.WithLookupHook(func(hit bool) { m.CacheLookup(name, hit) })
}

// Subscribe starts pushes of flags for symbols. isFirstPush asks the server
// for an immediate snapshot.
func (h *QuoteContext) Subscribe(ctx context.Context, symbols []string, flags SubFlags, isFirstPush bool) error {
	if err := h.usable(); err != nil {
		return err
	}
	if len(symbols) == 0 || flags == 0 {
		return errors.New("subscribe: symbols and flags are required")
	}
	reply := make(chan error, 1)
	return submitErr(ctx, h.s, &subscribeCmd{ctx: ctx, symbols: symbols, flags: flags, isFirstPush: isFirstPush, reply: reply}, reply)
}

// Unsubscribe stops pushes of flags for symbols. Flags that are not held
// are ignored and nothing is sent when none remain.
func (h *QuoteContext) Unsubscribe(ctx context.Context, symbols []string, flags SubFlags) error {
	if err := h.usable(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	return submitErr(ctx, h.s, &unsubscribeCmd{ctx: ctx, symbols: symbols, flags: flags, reply: reply}, reply)
}

// SubscribeCandlesticks starts candlestick pushes for symbol and returns the
// bars the server seeded the subscription with.
func (h *QuoteContext) SubscribeCandlesticks(ctx context.Context, symbol string, period Period) ([]Candlestick, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	reply := make(chan outcome[[]Candlestick], 1)
	return submit(ctx, h.s, &subscribeCandlesticksCmd{ctx: ctx, symbol: symbol, period: period, reply: reply}, reply)
}

func (h *QuoteContext) UnsubscribeCandlesticks(ctx context.Context, symbol string, period Period) error {
	if err := h.usable(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	return submitErr(ctx, h.s, &unsubscribeCandlesticksCmd{ctx: ctx, symbol: symbol, period: period, reply: reply}, reply)
}

// Subscriptions asks the server which symbols this session is subscribed to.
func (h *QuoteContext) Subscriptions(ctx context.Context) ([]Subscription, error) {
	body, err := h.request(ctx, cmdSubscription, nil)
	if err != nil {
		return nil, err
	}
	return decodeSubscriptions(body)
}

func (h *QuoteContext) request(ctx context.Context, cmd uint8, body []byte) ([]byte, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	return h.s.request(ctx, cmd, body)
}

func (h *QuoteContext) StaticInfo(ctx context.Context, symbols []string) ([]SecurityStaticInfo, error) {
	body, err := h.request(ctx, cmdStaticInfo, encodeSymbols(symbols))
	if err != nil {
		return nil, err
	}
	return decodeStaticInfos(body)
}

// Quote returns snapshot quotes. Symbols the server does not know are
// missing from the result.
func (h *QuoteContext) Quote(ctx context.Context, symbols []string) ([]SecurityQuote, error) {
	body, err := h.request(ctx, cmdQuote, encodeSymbols(symbols))
	if err != nil {
		return nil, err
	}
	return decodeQuotes(body)
}

func (h *QuoteContext) OptionQuote(ctx context.Context, symbols []string) ([]OptionQuote, error) {
	body, err := h.request(ctx, cmdOptionQuote, encodeSymbols(symbols))
	if err != nil {
		return nil, err
	}
	return decodeOptionQuotes(body)
}

func (h *QuoteContext) WarrantQuote(ctx context.Context, symbols []string) ([]WarrantQuote, error) {
	body, err := h.request(ctx, cmdWarrantQuote, encodeSymbols(symbols))
	if err != nil {
		return nil, err
	}
	return decodeWarrantQuotes(body)
}

func (h *QuoteContext) Depth(ctx context.Context, symbol string) (SecurityDepth, error) {
	body, err := h.request(ctx, cmdDepth, encodeSymbol(symbol))
	if err != nil {
		return SecurityDepth{}, err
	}
	return decodeDepthResponse(body)
}

func (h *QuoteContext) Brokers(ctx context.Context, symbol string) (SecurityBrokers, error) {
	body, err := h.request(ctx, cmdBrokers, encodeSymbol(symbol))
	if err != nil {
		return SecurityBrokers{}, err
	}
	return decodeBrokersResponse(body)
}

// Trades returns the count most recent trades.
func (h *QuoteContext) Trades(ctx context.Context, symbol string, count int) ([]Trade, error) {
	body, err := h.request(ctx, cmdTrades, encodeTradesRequest(symbol, count))
	if err != nil {
		return nil, err
	}
	return decodeTradesResponse(body)
}

func (h *QuoteContext) Intraday(ctx context.Context, symbol string) ([]IntradayLine, error) {
	body, err := h.request(ctx, cmdIntraday, encodeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	return decodeIntradayResponse(body)
}

func (h *QuoteContext) Candlesticks(ctx context.Context, symbol string, period Period, count int, adjust AdjustType) ([]Candlestick, error) {
	body, err := h.request(ctx, cmdCandlesticks, encodeCandlesticksRequest(symbol, period, count, adjust))
	if err != nil {
		return nil, err
	}
	return decodeCandlesticksResponse(body)
}

// TradingDays lists the trading days of market between begin and end.
func (h *QuoteContext) TradingDays(ctx context.Context, market string, begin, end time.Time) (MarketTradingDays, error) {
	body, err := h.request(ctx, cmdTradingDays, encodeTradingDaysRequest(market, begin, end))
	if err != nil {
		return MarketTradingDays{}, err
	}
	return decodeTradingDays(body)
}

// Participants is cached for 30 minutes.
func (h *QuoteContext) Participants(ctx context.Context) ([]ParticipantInfo, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	s := h.s
	return s.participants.GetOrUpdate(ctx, func(ctx context.Context) ([]ParticipantInfo, error) {
		body, err := s.request(ctx, cmdParticipants, nil)
		if err != nil {
			return nil, err
		}
		return decodeParticipants(body)
	})
}

// WarrantIssuers is cached for 30 minutes.
func (h *QuoteContext) WarrantIssuers(ctx context.Context) ([]IssuerInfo, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	s := h.s
	return s.issuers.GetOrUpdate(ctx, func(ctx context.Context) ([]IssuerInfo, error) {
		body, err := s.request(ctx, cmdWarrantIssuers, nil)
		if err != nil {
			return nil, err
		}
		return decodeIssuers(body)
	})
}

// TradingSession is cached for 2 hours.
func (h *QuoteContext) TradingSession(ctx context.Context) ([]MarketTradingSession, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	s := h.s
	return s.sessions.GetOrUpdate(ctx, func(ctx context.Context) ([]MarketTradingSession, error) {
		body, err := s.request(ctx, cmdTradingSession, nil)
		if err != nil {
			return nil, err
		}
		return decodeTradingSessions(body)
	})
}

// OptionChainExpiryDateList is cached per symbol for 30 minutes.
func (h *QuoteContext) OptionChainExpiryDateList(ctx context.Context, symbol string) ([]time.Time, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	s := h.s
	return s.optionDates.GetOrUpdate(ctx, symbol, func(ctx context.Context, symbol string) ([]time.Time, error) {
		body, err := s.request(ctx, cmdOptionChainDates, encodeSymbol(symbol))
		if err != nil {
			return nil, err
		}
		return decodeExpiryDates(body)
	})
}

// OptionChainInfoByDate is cached per symbol and expiry date for 30 minutes.
func (h *QuoteContext) OptionChainInfoByDate(ctx context.Context, symbol string, expiry time.Time) ([]StrikePriceInfo, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	s := h.s
	key := strikesKey{symbol: symbol, date: pbwire.FormatDate(expiry)}
	return s.optionStrikes.GetOrUpdate(ctx, key, func(ctx context.Context, _ strikesKey) ([]StrikePriceInfo, error) {
		body, err := s.request(ctx, cmdOptionChainStrikes, encodeOptionChainStrikesRequest(symbol, expiry))
		if err != nil {
			return nil, err
		}
		return decodeStrikes(body)
	})
}

// RealtimeQuote returns mirrored quotes. Every symbol must hold SubQuote.
func (h *QuoteContext) RealtimeQuote(ctx context.Context, symbols []string) ([]RealtimeQuote, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	reply := make(chan outcome[[]RealtimeQuote], 1)
	return submit(ctx, h.s, &realtimeQuoteCmd{symbols: symbols, reply: reply}, reply)
}

// RealtimeDepth requires SubDepth.
func (h *QuoteContext) RealtimeDepth(ctx context.Context, symbol string) (SecurityDepth, error) {
	if err := h.usable(); err != nil {
		return SecurityDepth{}, err
	}
	reply := make(chan outcome[SecurityDepth], 1)
	return submit(ctx, h.s, &realtimeDepthCmd{symbol: symbol, reply: reply}, reply)
}

// RealtimeBrokers requires SubBrokers.
func (h *QuoteContext) RealtimeBrokers(ctx context.Context, symbol string) (SecurityBrokers, error) {
	if err := h.usable(); err != nil {
		return SecurityBrokers{}, err
	}
	reply := make(chan outcome[SecurityBrokers], 1)
	return submit(ctx, h.s, &realtimeBrokersCmd{symbol: symbol, reply: reply}, reply)
}

// RealtimeTrades returns up to count mirrored trades, oldest first. It
// requires SubTrade.
func (h *QuoteContext) RealtimeTrades(ctx context.Context, symbol string, count int) ([]Trade, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	reply := make(chan outcome[[]Trade], 1)
	return submit(ctx, h.s, &realtimeTradesCmd{symbol: symbol, count: count, reply: reply}, reply)
}

// RealtimeCandlesticks requires a candlestick subscription for period.
func (h *QuoteContext) RealtimeCandlesticks(ctx context.Context, symbol string, period Period, count int) ([]Candlestick, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	reply := make(chan outcome[[]Candlestick], 1)
	return submit(ctx, h.s, &realtimeCandlesticksCmd{symbol: symbol, period: period, count: count, reply: reply}, reply)
}
