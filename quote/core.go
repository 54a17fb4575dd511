package quote

import (
	"context"
	"fmt"
	"slices"

	"github.com/longportwhale/openapi-go/metrics"
	"github.com/longportwhale/openapi-go/push"
	"github.com/longportwhale/openapi-go/queue"
	"github.com/longportwhale/openapi-go/wsclient"
)

type outcome[T any] struct {
	v   T
	err error
}

// command is a request to the core. fail answers it without running it.
type command interface {
	fail(err error)
}

type requestCmd struct {
	ctx   context.Context
	cmd   uint8
	body  []byte
	reply chan outcome[[]byte]
}

type subscribeCmd struct {
	ctx         context.Context
	symbols     []string
	flags       SubFlags
	isFirstPush bool
	reply       chan error
}

type unsubscribeCmd struct {
	ctx     context.Context
	symbols []string
	flags   SubFlags
	reply   chan error
}

type subscribeCandlesticksCmd struct {
	ctx    context.Context
	symbol string
	period Period
	reply  chan outcome[[]Candlestick]
}

type unsubscribeCandlesticksCmd struct {
	ctx    context.Context
	symbol string
	period Period
	reply  chan error
}

type realtimeQuoteCmd struct {
	symbols []string
	reply   chan outcome[[]RealtimeQuote]
}

type realtimeDepthCmd struct {
	symbol string
	reply  chan outcome[SecurityDepth]
}

type realtimeBrokersCmd struct {
	symbol string
	reply  chan outcome[SecurityBrokers]
}

type realtimeTradesCmd struct {
	symbol string
	count  int
	reply  chan outcome[[]Trade]
}

type realtimeCandlesticksCmd struct {
	symbol string
	period Period
	count  int
	reply  chan outcome[[]Candlestick]
}

func (c *requestCmd) fail(err error)                 { c.reply <- outcome[[]byte]{err: err} }
func (c *subscribeCmd) fail(err error)               { c.reply <- err }
func (c *unsubscribeCmd) fail(err error)             { c.reply <- err }
func (c *subscribeCandlesticksCmd) fail(err error)   { c.reply <- outcome[[]Candlestick]{err: err} }
func (c *unsubscribeCandlesticksCmd) fail(err error) { c.reply <- err }
func (c *realtimeQuoteCmd) fail(err error)           { c.reply <- outcome[[]RealtimeQuote]{err: err} }
func (c *realtimeDepthCmd) fail(err error)           { c.reply <- outcome[SecurityDepth]{err: err} }
func (c *realtimeBrokersCmd) fail(err error)         { c.reply <- outcome[SecurityBrokers]{err: err} }
func (c *realtimeTradesCmd) fail(err error)          { c.reply <- outcome[[]Trade]{err: err} }
func (c *realtimeCandlesticksCmd) fail(err error)    { c.reply <- outcome[[]Candlestick]{err: err} }

// NotSubscribedError is returned by realtime reads for data that is not
// subscribed.
type NotSubscribedError struct {
	Symbol string
	Need   string
}

func (e *NotSubscribedError) Error() string {
	return fmt.Sprintf("%s is not subscribed to %s", e.Symbol, e.Need)
}

// core is the quote session: the shared connection skeleton plus the
// subscription table and the realtime mirror. Its fields are touched only by
// the core goroutine.
type core struct {
	*wsclient.SessionCore[command]

	metrics *metrics.Metrics
	sink    *push.Sink[PushEvent]
	subs    map[string]SubFlags
	candles map[candleKey]struct{}
	store   *store
}

func newCore(
	client *wsclient.Client,
	redial wsclient.RedialOptions,
	reconnect bool,
	mailbox *queue.Queue[command],
	sink *push.Sink[PushEvent],
	state *wsclient.StateVar,
) *core {
	c := &core{
		metrics: redial.Metrics,
		sink:    sink,
		subs:    make(map[string]SubFlags),
		candles: make(map[candleKey]struct{}),
		store:   newStore(),
	}
	c.SessionCore = wsclient.NewSessionCore(client, redial, reconnect, mailbox, state, wsclient.Hooks[command]{
		Handle: c.handle,
		Fail:   command.fail,
		Push:   c.onPush,
		Replay: c.replay,
		Gone:   sink.Gone(),
		Closed: sink.Close,
	})
	return c
}

func (c *core) handle(cmd command) {
	switch cmd := cmd.(type) {
	case *requestCmd:
		ok := c.Exec(func(cl *wsclient.Client) func() {
			body, err := cl.Request(cmd.ctx, cmd.cmd, cmd.body)
			cmd.reply <- outcome[[]byte]{body, err}
			return nil
		})
		if !ok {
			cmd.fail(wsclient.ErrConnectionClosed)
		}

	case *subscribeCmd:
		c.subscribe(cmd)
	case *unsubscribeCmd:
		c.unsubscribe(cmd)
	case *subscribeCandlesticksCmd:
		c.subscribeCandlesticks(cmd)
	case *unsubscribeCandlesticksCmd:
		c.unsubscribeCandlesticks(cmd)

	case *realtimeQuoteCmd:
		out := make([]RealtimeQuote, 0, len(cmd.symbols))
		for _, s := range cmd.symbols {
			if !c.subs[s].Contains(SubQuote) {
				cmd.fail(&NotSubscribedError{Symbol: s, Need: SubQuote.String()})
				return
			}
			out = append(out, c.store.quote(s))
		}
		cmd.reply <- outcome[[]RealtimeQuote]{v: out}

	case *realtimeDepthCmd:
		if !c.subs[cmd.symbol].Contains(SubDepth) {
			cmd.fail(&NotSubscribedError{Symbol: cmd.symbol, Need: SubDepth.String()})
			return
		}
		cmd.reply <- outcome[SecurityDepth]{v: c.store.depth(cmd.symbol)}

	case *realtimeBrokersCmd:
		if !c.subs[cmd.symbol].Contains(SubBrokers) {
			cmd.fail(&NotSubscribedError{Symbol: cmd.symbol, Need: SubBrokers.String()})
			return
		}
		cmd.reply <- outcome[SecurityBrokers]{v: c.store.brokers(cmd.symbol)}

	case *realtimeTradesCmd:
		if !c.subs[cmd.symbol].Contains(SubTrade) {
			cmd.fail(&NotSubscribedError{Symbol: cmd.symbol, Need: SubTrade.String()})
			return
		}
		cmd.reply <- outcome[[]Trade]{v: c.store.trades(cmd.symbol, cmd.count)}

	case *realtimeCandlesticksCmd:
		key := candleKey{cmd.symbol, cmd.period}
		if _, ok := c.candles[key]; !ok {
			cmd.fail(&NotSubscribedError{Symbol: cmd.symbol, Need: "candlesticks " + cmd.period.String()})
			return
		}
		cmd.reply <- outcome[[]Candlestick]{v: c.store.candlesticks(key, cmd.count)}

	default:
		panic(fmt.Sprintf("quote: unhandled command %T", cmd))
	}
}

func (c *core) subscribe(cmd *subscribeCmd) {
	body := encodeSubscribe(cmd.symbols, cmd.flags, cmd.isFirstPush)
	ok := c.Exec(func(cl *wsclient.Client) func() {
		_, err := cl.Request(cmd.ctx, cmdSubscribe, body)
		return func() {
			if err == nil && !c.Current(cl) {
				err = wsclient.ErrConnectionClosed
			}
			if err == nil {
				for _, s := range cmd.symbols {
					c.subs[s] |= cmd.flags
				}
			}
			cmd.reply <- err
		}
	})
	if !ok {
		cmd.fail(wsclient.ErrConnectionClosed)
	}
}

func (c *core) unsubscribe(cmd *unsubscribeCmd) {
	// only flags actually held are sent, grouped so each frame carries one flag set
	groups := make(map[SubFlags][]string)
	for _, s := range cmd.symbols {
		if held := c.subs[s] & cmd.flags; held != 0 && !slices.Contains(groups[held], s) {
			groups[held] = append(groups[held], s)
		}
	}
	if len(groups) == 0 {
		cmd.reply <- nil
		return
	}

	ok := c.Exec(func(cl *wsclient.Client) func() {
		done := make(map[SubFlags][]string, len(groups))
		var firstErr error
		for flags, symbols := range groups {
			if _, err := cl.Request(cmd.ctx, cmdUnsubscribe, encodeUnsubscribe(symbols, flags)); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			done[flags] = symbols
		}
		return func() {
			if !c.Current(cl) {
				cmd.reply <- wsclient.ErrConnectionClosed
				return
			}
			for flags, symbols := range done {
				for _, s := range symbols {
					left := c.subs[s] &^ flags
					if left == 0 {
						delete(c.subs, s)
					} else {
						c.subs[s] = left
					}
					c.store.forget(s, left)
				}
			}
			cmd.reply <- firstErr
		}
	})
	if !ok {
		cmd.fail(wsclient.ErrConnectionClosed)
	}
}

func (c *core) subscribeCandlesticks(cmd *subscribeCandlesticksCmd) {
	key := candleKey{cmd.symbol, cmd.period}
	ok := c.Exec(func(cl *wsclient.Client) func() {
		body, err := cl.Request(cmd.ctx, cmdSubscribeCandlestick, encodeSymbolPeriod(cmd.symbol, cmd.period))
		var bars []Candlestick
		if err == nil {
			bars, err = decodeCandlesticksResponse(body)
		}
		return func() {
			if err == nil && !c.Current(cl) {
				err = wsclient.ErrConnectionClosed
			}
			if err != nil {
				cmd.fail(err)
				return
			}
			c.candles[key] = struct{}{}
			c.store.seedCandlesticks(key, bars)
			cmd.reply <- outcome[[]Candlestick]{v: bars}
		}
	})
	if !ok {
		cmd.fail(wsclient.ErrConnectionClosed)
	}
}

func (c *core) unsubscribeCandlesticks(cmd *unsubscribeCandlesticksCmd) {
	key := candleKey{cmd.symbol, cmd.period}
	if _, held := c.candles[key]; !held {
		cmd.reply <- nil
		return
	}
	ok := c.Exec(func(cl *wsclient.Client) func() {
		_, err := cl.Request(cmd.ctx, cmdUnsubscribeCandlestick, encodeSymbolPeriod(cmd.symbol, cmd.period))
		return func() {
			if err == nil && !c.Current(cl) {
				err = wsclient.ErrConnectionClosed
			}
			if err == nil {
				delete(c.candles, key)
				c.store.dropCandlesticks(key)
			}
			cmd.reply <- err
		}
	})
	if !ok {
		cmd.fail(wsclient.ErrConnectionClosed)
	}
}

func (c *core) onPush(ev wsclient.Event) {
	pe, err := decodePush(ev.Cmd, ev.Body)
	if err != nil {
		c.Logger().Warn("Dropping undecodable push", "cmd", ev.Cmd, "error", err)
		c.metrics.DecodeError("quote")
		return
	}
	c.store.apply(pe)
	c.sink.Send(pe)
}

// replay captures the subscription table for resubscribing on a new
// connection.
func (c *core) replay() func(context.Context, *wsclient.Client) error {
	groups := make(map[SubFlags][]string)
	for s, flags := range c.subs {
		groups[flags] = append(groups[flags], s)
	}
	candles := make([]candleKey, 0, len(c.candles))
	for k := range c.candles {
		candles = append(candles, k)
	}

	return func(ctx context.Context, cl *wsclient.Client) error {
		for flags, symbols := range groups {
			if _, err := cl.Request(ctx, cmdSubscribe, encodeSubscribe(symbols, flags, false)); err != nil {
				return fmt.Errorf("subscribe %s: %w", flags, err)
			}
		}
		for _, k := range candles {
			if _, err := cl.Request(ctx, cmdSubscribeCandlestick, encodeSymbolPeriod(k.symbol, k.period)); err != nil {
				return fmt.Errorf("subscribe candlesticks %s %s: %w", k.symbol, k.period, err)
			}
		}
		return nil
	}
}
