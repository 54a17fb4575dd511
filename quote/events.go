package quote

import (
	"time"

	"github.com/shopspring/decimal"
)

// PushEvent is a market data push for one symbol.
type PushEvent struct {
	Symbol   string
	Sequence int64
	Detail   PushDetail
}

// PushDetail is one of PushQuote, PushDepth, PushBrokers, PushTrades or
// PushCandlestick.
type PushDetail interface {
	isPushDetail()
}

// PushQuote is a full snapshot of a security's quote and replaces the
// mirrored one. LastDone is zero until the security has traded.
type PushQuote struct {
	LastDone     decimal.Decimal
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Timestamp    time.Time
	Volume       int64
	Turnover     decimal.Decimal
	TradeStatus  TradeStatus
	TradeSession TradeSession
}

// PushDepth replaces the order book.
type PushDepth struct {
	Asks []Depth
	Bids []Depth
}

// PushBrokers replaces the broker queue.
type PushBrokers struct {
	AskBrokers []Brokers
	BidBrokers []Brokers
}

// PushTrades carries new ticks.
type PushTrades struct {
	Trades []Trade
}

// PushCandlestick updates the latest bar of a subscribed period.
type PushCandlestick struct {
	Period      Period
	Candlestick Candlestick
	IsConfirmed bool
}

func (PushQuote) isPushDetail()       {}
func (PushDepth) isPushDetail()       {}
func (PushBrokers) isPushDetail()     {}
func (PushTrades) isPushDetail()      {}
func (PushCandlestick) isPushDetail() {}
