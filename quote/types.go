package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the trading state of a security.
type TradeStatus int32

const (
	TradeStatusNormal TradeStatus = iota
	TradeStatusHalted
	TradeStatusDelisted
	TradeStatusFuse
	TradeStatusPrepareList
	TradeStatusCodeMoved
	TradeStatusToBeOpened
	TradeStatusSplitStockHalts
	TradeStatusExpired
	TradeStatusWarrantPrepareList
	TradeStatusSuspendTrade
)

var tradeStatusNames = [...]string{
	"Normal", "Halted", "Delisted", "Fuse", "PrepareList", "CodeMoved",
	"ToBeOpened", "SplitStockHalts", "Expired", "WarrantPrepareList", "SuspendTrade",
}

func (s TradeStatus) String() string {
	if s >= 0 && int(s) < len(tradeStatusNames) {
		return tradeStatusNames[s]
	}
	return fmt.Sprintf("TradeStatus(%d)", int32(s))
}

// TradeSession distinguishes regular and extended hours.
type TradeSession int32

const (
	TradeSessionNormal TradeSession = iota
	TradeSessionPre
	TradeSessionPost
)

func (s TradeSession) String() string {
	switch s {
	case TradeSessionNormal:
		return "Normal"
	case TradeSessionPre:
		return "Pre"
	case TradeSessionPost:
		return "Post"
	default:
		return fmt.Sprintf("TradeSession(%d)", int32(s))
	}
}

// Period is a candlestick interval.
type Period int32

const (
	PeriodUnknown       Period = 0
	PeriodOneMinute     Period = 1
	PeriodFiveMinute    Period = 5
	PeriodFifteenMinute Period = 15
	PeriodThirtyMinute  Period = 30
	PeriodSixtyMinute   Period = 60
	PeriodDay           Period = 1000
	PeriodWeek          Period = 2000
	PeriodMonth         Period = 3000
	PeriodYear          Period = 4000
)

var periodNames = map[Period]string{
	PeriodOneMinute:     "1m",
	PeriodFiveMinute:    "5m",
	PeriodFifteenMinute: "15m",
	PeriodThirtyMinute:  "30m",
	PeriodSixtyMinute:   "60m",
	PeriodDay:           "day",
	PeriodWeek:          "week",
	PeriodMonth:         "month",
	PeriodYear:          "year",
}

func (p Period) String() string {
	if s, ok := periodNames[p]; ok {
		return s
	}
	return "unknown"
}

// ParsePeriod accepts the names printed by Period.String.
func ParsePeriod(s string) (Period, error) {
	for p, name := range periodNames {
		if name == s {
			return p, nil
		}
	}
	return PeriodUnknown, fmt.Errorf("unknown period %q", s)
}

// AdjustType selects price adjustment for candlesticks.
type AdjustType int32

const (
	AdjustNone    AdjustType = 0
	AdjustForward AdjustType = 1
)

// TradeDirection is the aggressor side of a trade.
type TradeDirection int32

const (
	TradeDirectionNeutral TradeDirection = iota
	TradeDirectionDown
	TradeDirectionUp
)

// SecurityStaticInfo is reference data for a security.
type SecurityStaticInfo struct {
	Symbol            string
	NameCN            string
	NameEN            string
	NameHK            string
	Exchange          string
	Currency          string
	LotSize           int32
	TotalShares       int64
	CirculatingShares int64
	HKShares          int64
	EPS               decimal.Decimal
	EPSTTM            decimal.Decimal
	BPS               decimal.Decimal
	DividendYield     decimal.Decimal
	StockDerivatives  []int32
}

// PrePostQuote is an extended-hours quote.
type PrePostQuote struct {
	LastDone  decimal.Decimal
	Timestamp time.Time
	Volume    int64
	Turnover  decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	PrevClose decimal.Decimal
}

// SecurityQuote is a snapshot quote.
type SecurityQuote struct {
	Symbol          string
	LastDone        decimal.Decimal
	PrevClose       decimal.Decimal
	Open            decimal.Decimal
	High            decimal.Decimal
	Low             decimal.Decimal
	Timestamp       time.Time
	Volume          int64
	Turnover        decimal.Decimal
	TradeStatus     TradeStatus
	PreMarketQuote  *PrePostQuote
	PostMarketQuote *PrePostQuote
}

// OptionQuote is a snapshot quote of an option contract.
type OptionQuote struct {
	Symbol               string
	LastDone             decimal.Decimal
	PrevClose            decimal.Decimal
	Open                 decimal.Decimal
	High                 decimal.Decimal
	Low                  decimal.Decimal
	Timestamp            time.Time
	Volume               int64
	Turnover             decimal.Decimal
	TradeStatus          TradeStatus
	ImpliedVolatility    decimal.Decimal
	OpenInterest         int64
	ExpiryDate           time.Time
	StrikePrice          decimal.Decimal
	ContractMultiplier   decimal.Decimal
	ContractType         string
	ContractSize         decimal.Decimal
	Direction            string
	HistoricalVolatility decimal.Decimal
	UnderlyingSymbol     string
}

// WarrantQuote is a snapshot quote of a warrant.
type WarrantQuote struct {
	Symbol              string
	LastDone            decimal.Decimal
	PrevClose           decimal.Decimal
	Open                decimal.Decimal
	High                decimal.Decimal
	Low                 decimal.Decimal
	Timestamp           time.Time
	Volume              int64
	Turnover            decimal.Decimal
	TradeStatus         TradeStatus
	ImpliedVolatility   decimal.Decimal
	ExpiryDate          time.Time
	LastTradeDate       time.Time
	OutstandingRatio    decimal.Decimal
	OutstandingQuantity int64
	ConversionRatio     decimal.Decimal
	Category            string
	StrikePrice         decimal.Decimal
	UpperStrikePrice    decimal.Decimal
	LowerStrikePrice    decimal.Decimal
	CallPrice           decimal.Decimal
	UnderlyingSymbol    string
}

// Depth is one price level.
type Depth struct {
	Position int32
	Price    decimal.Decimal
	Volume   int64
	OrderNum int64
}

// SecurityDepth is an order book.
type SecurityDepth struct {
	Asks []Depth
	Bids []Depth
}

// Brokers lists the brokers queued at one position.
type Brokers struct {
	Position  int32
	BrokerIDs []int32
}

// SecurityBrokers is the broker queue of a security.
type SecurityBrokers struct {
	AskBrokers []Brokers
	BidBrokers []Brokers
}

// ParticipantInfo maps broker ids to a participant.
type ParticipantInfo struct {
	BrokerIDs []int32
	NameCN    string
	NameEN    string
	NameHK    string
}

// Trade is one tick.
type Trade struct {
	Price        decimal.Decimal
	Volume       int64
	Timestamp    time.Time
	TradeType    string
	Direction    TradeDirection
	TradeSession TradeSession
}

// IntradayLine is one minute of the intraday chart.
type IntradayLine struct {
	Price     decimal.Decimal
	Timestamp time.Time
	Volume    int64
	Turnover  decimal.Decimal
	AvgPrice  decimal.Decimal
}

// Candlestick is one bar.
type Candlestick struct {
	Close     decimal.Decimal
	Open      decimal.Decimal
	Low       decimal.Decimal
	High      decimal.Decimal
	Volume    int64
	Turnover  decimal.Decimal
	Timestamp time.Time
}

// StrikePriceInfo is one row of an option chain.
type StrikePriceInfo struct {
	Price      decimal.Decimal
	CallSymbol string
	PutSymbol  string
	Standard   bool
}

// IssuerInfo describes a warrant issuer.
type IssuerInfo struct {
	IssuerID int32
	NameCN   string
	NameEN   string
	NameHK   string
}

// TimeOfDay is a wall-clock time in the market's time zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// hhmm encoding used on the wire, e.g. 930 for 09:30.
func timeOfDay(v int32) TimeOfDay {
	return TimeOfDay{Hour: int(v / 100), Minute: int(v % 100)}
}

func (t TimeOfDay) hhmm() int32 {
	return int32(t.Hour*100 + t.Minute)
}

// TradingSessionInfo is one session of a trading day.
type TradingSessionInfo struct {
	BeginTime    TimeOfDay
	EndTime      TimeOfDay
	TradeSession TradeSession
}

// MarketTradingSession lists the sessions of one market.
type MarketTradingSession struct {
	Market        string
	TradeSessions []TradingSessionInfo
}

// MarketTradingDays lists full and half trading days.
type MarketTradingDays struct {
	TradingDays     []time.Time
	HalfTradingDays []time.Time
}

// RealtimeQuote is the locally mirrored quote of a subscribed symbol.
type RealtimeQuote struct {
	Symbol      string
	LastDone    decimal.Decimal
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Timestamp   time.Time
	Volume      int64
	Turnover    decimal.Decimal
	TradeStatus TradeStatus
}

// Subscription is the server's view of one subscribed symbol.
type Subscription struct {
	Symbol       string
	SubTypes     SubFlags
	Candlesticks []Period
}
