package quote

import "slices"

const (
	maxTrades       = 500
	maxCandlesticks = 1000
)

type candleKey struct {
	symbol string
	period Period
}

type securityData struct {
	quote   RealtimeQuote
	depth   SecurityDepth
	brokers SecurityBrokers
	trades  []Trade
}

// store mirrors pushed market data. It is owned by the core goroutine.
type store struct {
	securities map[string]*securityData
	candles    map[candleKey][]Candlestick
}

func newStore() *store {
	return &store{
		securities: make(map[string]*securityData),
		candles:    make(map[candleKey][]Candlestick),
	}
}

func (s *store) security(symbol string) *securityData {
	d, ok := s.securities[symbol]
	if !ok {
		d = &securityData{quote: RealtimeQuote{Symbol: symbol}}
		s.securities[symbol] = d
	}
	return d
}

func (s *store) apply(ev PushEvent) {
	switch d := ev.Detail.(type) {
	case PushQuote:
		sec := s.security(ev.Symbol)
		sec.quote = RealtimeQuote{
			Symbol:      ev.Symbol,
			LastDone:    d.LastDone,
			Open:        d.Open,
			High:        d.High,
			Low:         d.Low,
			Timestamp:   d.Timestamp,
			Volume:      d.Volume,
			Turnover:    d.Turnover,
			TradeStatus: d.TradeStatus,
		}
	case PushDepth:
		s.security(ev.Symbol).depth = SecurityDepth{Asks: slices.Clone(d.Asks), Bids: slices.Clone(d.Bids)}
	case PushBrokers:
		s.security(ev.Symbol).brokers = SecurityBrokers{AskBrokers: slices.Clone(d.AskBrokers), BidBrokers: slices.Clone(d.BidBrokers)}
	case PushTrades:
		sec := s.security(ev.Symbol)
		sec.trades = append(sec.trades, d.Trades...)
		if n := len(sec.trades); n > maxTrades {
			sec.trades = slices.Clone(sec.trades[n-maxTrades:])
		}
	case PushCandlestick:
		s.mergeCandlestick(candleKey{ev.Symbol, d.Period}, d.Candlestick)
	}
}

// mergeCandlestick replaces the last bar when the timestamps match and
// appends otherwise. Only periods seeded by a subscription are tracked.
func (s *store) mergeCandlestick(key candleKey, c Candlestick) {
	bars, ok := s.candles[key]
	if !ok {
		return
	}
	switch n := len(bars); {
	case n > 0 && bars[n-1].Timestamp.Equal(c.Timestamp):
		bars[n-1] = c
	case n > 0 && c.Timestamp.Before(bars[n-1].Timestamp):
		// stale
	default:
		bars = append(bars, c)
		if len(bars) > maxCandlesticks {
			bars = slices.Clone(bars[len(bars)-maxCandlesticks:])
		}
	}
	s.candles[key] = bars
}

func (s *store) seedCandlesticks(key candleKey, bars []Candlestick) {
	if len(bars) > maxCandlesticks {
		bars = bars[len(bars)-maxCandlesticks:]
	}
	s.candles[key] = append([]Candlestick{}, bars...)
}

func (s *store) dropCandlesticks(key candleKey) {
	delete(s.candles, key)
}

// forget drops mirrored data for flags no longer subscribed.
func (s *store) forget(symbol string, remaining SubFlags) {
	sec, ok := s.securities[symbol]
	if !ok {
		return
	}
	if remaining == 0 {
		delete(s.securities, symbol)
		return
	}
	if !remaining.Contains(SubQuote) {
		sec.quote = RealtimeQuote{Symbol: symbol}
	}
	if !remaining.Contains(SubDepth) {
		sec.depth = SecurityDepth{}
	}
	if !remaining.Contains(SubBrokers) {
		sec.brokers = SecurityBrokers{}
	}
	if !remaining.Contains(SubTrade) {
		sec.trades = nil
	}
}

func (s *store) quote(symbol string) RealtimeQuote {
	if sec, ok := s.securities[symbol]; ok {
		return sec.quote
	}
	return RealtimeQuote{Symbol: symbol}
}

func (s *store) depth(symbol string) SecurityDepth {
	if sec, ok := s.securities[symbol]; ok {
		return SecurityDepth{Asks: slices.Clone(sec.depth.Asks), Bids: slices.Clone(sec.depth.Bids)}
	}
	return SecurityDepth{}
}

func (s *store) brokers(symbol string) SecurityBrokers {
	if sec, ok := s.securities[symbol]; ok {
		return SecurityBrokers{AskBrokers: slices.Clone(sec.brokers.AskBrokers), BidBrokers: slices.Clone(sec.brokers.BidBrokers)}
	}
	return SecurityBrokers{}
}

// trades returns up to count of the most recent trades, oldest first.
func (s *store) trades(symbol string, count int) []Trade {
	sec, ok := s.securities[symbol]
	if !ok {
		return nil
	}
	return tail(sec.trades, count)
}

func (s *store) candlesticks(key candleKey, count int) []Candlestick {
	return tail(s.candles[key], count)
}

func tail[T any](vs []T, count int) []T {
	if count > 0 && len(vs) > count {
		vs = vs[len(vs)-count:]
	}
	return slices.Clone(vs)
}
