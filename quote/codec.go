package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/longportwhale/openapi-go/pbwire"
	"github.com/longportwhale/openapi-go/wsclient"
)

func setDecimal(dst *decimal.Decimal, f pbwire.Field) error {
	d, err := f.Decimal()
	*dst = d
	return err
}

func setDate(dst *time.Time, f pbwire.Field) error {
	d, err := f.Date()
	*dst = d
	return err
}

func appendInt32s(dst *[]int32, f pbwire.Field) error {
	if f.Type == protowire.VarintType {
		*dst = append(*dst, f.Int32())
		return nil
	}
	vs, err := f.Int32s()
	*dst = append(*dst, vs...)
	return err
}

func decodeErr(what string, err error) error {
	return &wsclient.ProtocolError{Op: "decode " + what, Err: err}
}

// decodeList decodes every nested message under num with fn.
func decodeList[T any](b []byte, num protowire.Number, decode func(*T, []byte) error) ([]T, error) {
	var out []T
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		if f.Num != num {
			return nil
		}
		var v T
		if err := decode(&v, f.Bytes()); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func encodeList[T any](e *pbwire.Encoder, num protowire.Number, vs []T, encode func(*T, *pbwire.Encoder)) {
	for i := range vs {
		e.Message(num, func(m *pbwire.Encoder) { encode(&vs[i], m) })
	}
}

// requests

func encodeSymbols(symbols []string) []byte {
	var e pbwire.Encoder
	e.Strings(1, symbols)
	return e.Bytes()
}

func encodeSymbol(symbol string) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	return e.Bytes()
}

func encodeSubscribe(symbols []string, flags SubFlags, isFirstPush bool) []byte {
	var e pbwire.Encoder
	e.Strings(1, symbols)
	e.Int32s(2, flags.wire())
	e.Bool(3, isFirstPush)
	return e.Bytes()
}

func encodeUnsubscribe(symbols []string, flags SubFlags) []byte {
	var e pbwire.Encoder
	e.Strings(1, symbols)
	e.Int32s(2, flags.wire())
	return e.Bytes()
}

func encodeSymbolPeriod(symbol string, period Period) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	e.Int32(2, int32(period))
	return e.Bytes()
}

func encodeTradesRequest(symbol string, count int) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	e.Int64(2, int64(count))
	return e.Bytes()
}

func encodeCandlesticksRequest(symbol string, period Period, count int, adjust AdjustType) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	e.Int32(2, int32(period))
	e.Int64(3, int64(count))
	e.Int32(4, int32(adjust))
	return e.Bytes()
}

func encodeOptionChainStrikesRequest(symbol string, expiry time.Time) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	e.Date(2, expiry)
	return e.Bytes()
}

func encodeTradingDaysRequest(market string, begin, end time.Time) []byte {
	var e pbwire.Encoder
	e.String(1, market)
	e.Date(2, begin)
	e.Date(3, end)
	return e.Bytes()
}

// static info

func (s *SecurityStaticInfo) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			s.Symbol = f.Text()
		case 2:
			s.NameCN = f.Text()
		case 3:
			s.NameEN = f.Text()
		case 4:
			s.NameHK = f.Text()
		case 5:
			s.Exchange = f.Text()
		case 6:
			s.Currency = f.Text()
		case 7:
			s.LotSize = f.Int32()
		case 8:
			s.TotalShares = f.Int64()
		case 9:
			s.CirculatingShares = f.Int64()
		case 10:
			s.HKShares = f.Int64()
		case 11:
			return setDecimal(&s.EPS, f)
		case 12:
			return setDecimal(&s.EPSTTM, f)
		case 13:
			return setDecimal(&s.BPS, f)
		case 14:
			return setDecimal(&s.DividendYield, f)
		case 15:
			return appendInt32s(&s.StockDerivatives, f)
		}
		return nil
	})
}

func (s *SecurityStaticInfo) encode(e *pbwire.Encoder) {
	e.String(1, s.Symbol)
	e.String(2, s.NameCN)
	e.String(3, s.NameEN)
	e.String(4, s.NameHK)
	e.String(5, s.Exchange)
	e.String(6, s.Currency)
	e.Int32(7, s.LotSize)
	e.Int64(8, s.TotalShares)
	e.Int64(9, s.CirculatingShares)
	e.Int64(10, s.HKShares)
	e.Decimal(11, s.EPS)
	e.Decimal(12, s.EPSTTM)
	e.Decimal(13, s.BPS)
	e.Decimal(14, s.DividendYield)
	e.Int32s(15, s.StockDerivatives)
}

// quotes

func (q *PrePostQuote) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			return setDecimal(&q.LastDone, f)
		case 2:
			q.Timestamp = f.Time()
		case 3:
			q.Volume = f.Int64()
		case 4:
			return setDecimal(&q.Turnover, f)
		case 5:
			return setDecimal(&q.High, f)
		case 6:
			return setDecimal(&q.Low, f)
		case 7:
			return setDecimal(&q.PrevClose, f)
		}
		return nil
	})
}

func (q *PrePostQuote) encode(e *pbwire.Encoder) {
	e.Decimal(1, q.LastDone)
	e.Time(2, q.Timestamp)
	e.Int64(3, q.Volume)
	e.Decimal(4, q.Turnover)
	e.Decimal(5, q.High)
	e.Decimal(6, q.Low)
	e.Decimal(7, q.PrevClose)
}

func (q *SecurityQuote) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			q.Symbol = f.Text()
		case 2:
			return setDecimal(&q.LastDone, f)
		case 3:
			return setDecimal(&q.PrevClose, f)
		case 4:
			return setDecimal(&q.Open, f)
		case 5:
			return setDecimal(&q.High, f)
		case 6:
			return setDecimal(&q.Low, f)
		case 7:
			q.Timestamp = f.Time()
		case 8:
			q.Volume = f.Int64()
		case 9:
			return setDecimal(&q.Turnover, f)
		case 10:
			q.TradeStatus = TradeStatus(f.Int32())
		case 11:
			q.PreMarketQuote = new(PrePostQuote)
			return q.PreMarketQuote.decode(f.Bytes())
		case 12:
			q.PostMarketQuote = new(PrePostQuote)
			return q.PostMarketQuote.decode(f.Bytes())
		}
		return nil
	})
}

func (q *SecurityQuote) encode(e *pbwire.Encoder) {
	e.String(1, q.Symbol)
	e.Decimal(2, q.LastDone)
	e.Decimal(3, q.PrevClose)
	e.Decimal(4, q.Open)
	e.Decimal(5, q.High)
	e.Decimal(6, q.Low)
	e.Time(7, q.Timestamp)
	e.Int64(8, q.Volume)
	e.Decimal(9, q.Turnover)
	e.Int32(10, int32(q.TradeStatus))
	if q.PreMarketQuote != nil {
		e.Message(11, q.PreMarketQuote.encode)
	}
	if q.PostMarketQuote != nil {
		e.Message(12, q.PostMarketQuote.encode)
	}
}

func (q *OptionQuote) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			q.Symbol = f.Text()
		case 2:
			return setDecimal(&q.LastDone, f)
		case 3:
			return setDecimal(&q.PrevClose, f)
		case 4:
			return setDecimal(&q.Open, f)
		case 5:
			return setDecimal(&q.High, f)
		case 6:
			return setDecimal(&q.Low, f)
		case 7:
			q.Timestamp = f.Time()
		case 8:
			q.Volume = f.Int64()
		case 9:
			return setDecimal(&q.Turnover, f)
		case 10:
			q.TradeStatus = TradeStatus(f.Int32())
		case 11:
			return setDecimal(&q.ImpliedVolatility, f)
		case 12:
			q.OpenInterest = f.Int64()
		case 13:
			return setDate(&q.ExpiryDate, f)
		case 14:
			return setDecimal(&q.StrikePrice, f)
		case 15:
			return setDecimal(&q.ContractMultiplier, f)
		case 16:
			q.ContractType = f.Text()
		case 17:
			return setDecimal(&q.ContractSize, f)
		case 18:
			q.Direction = f.Text()
		case 19:
			return setDecimal(&q.HistoricalVolatility, f)
		case 20:
			q.UnderlyingSymbol = f.Text()
		}
		return nil
	})
}

func (q *OptionQuote) encode(e *pbwire.Encoder) {
	e.String(1, q.Symbol)
	e.Decimal(2, q.LastDone)
	e.Decimal(3, q.PrevClose)
	e.Decimal(4, q.Open)
	e.Decimal(5, q.High)
	e.Decimal(6, q.Low)
	e.Time(7, q.Timestamp)
	e.Int64(8, q.Volume)
	e.Decimal(9, q.Turnover)
	e.Int32(10, int32(q.TradeStatus))
	e.Decimal(11, q.ImpliedVolatility)
	e.Int64(12, q.OpenInterest)
	e.Date(13, q.ExpiryDate)
	e.Decimal(14, q.StrikePrice)
	e.Decimal(15, q.ContractMultiplier)
	e.String(16, q.ContractType)
	e.Decimal(17, q.ContractSize)
	e.String(18, q.Direction)
	e.Decimal(19, q.HistoricalVolatility)
	e.String(20, q.UnderlyingSymbol)
}

func (q *WarrantQuote) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			q.Symbol = f.Text()
		case 2:
			return setDecimal(&q.LastDone, f)
		case 3:
			return setDecimal(&q.PrevClose, f)
		case 4:
			return setDecimal(&q.Open, f)
		case 5:
			return setDecimal(&q.High, f)
		case 6:
			return setDecimal(&q.Low, f)
		case 7:
			q.Timestamp = f.Time()
		case 8:
			q.Volume = f.Int64()
		case 9:
			return setDecimal(&q.Turnover, f)
		case 10:
			q.TradeStatus = TradeStatus(f.Int32())
		case 11:
			return setDecimal(&q.ImpliedVolatility, f)
		case 12:
			return setDate(&q.ExpiryDate, f)
		case 13:
			return setDate(&q.LastTradeDate, f)
		case 14:
			return setDecimal(&q.OutstandingRatio, f)
		case 15:
			q.OutstandingQuantity = f.Int64()
		case 16:
			return setDecimal(&q.ConversionRatio, f)
		case 17:
			q.Category = f.Text()
		case 18:
			return setDecimal(&q.StrikePrice, f)
		case 19:
			return setDecimal(&q.UpperStrikePrice, f)
		case 20:
			return setDecimal(&q.LowerStrikePrice, f)
		case 21:
			return setDecimal(&q.CallPrice, f)
		case 22:
			q.UnderlyingSymbol = f.Text()
		}
		return nil
	})
}

func (q *WarrantQuote) encode(e *pbwire.Encoder) {
	e.String(1, q.Symbol)
	e.Decimal(2, q.LastDone)
	e.Decimal(3, q.PrevClose)
	e.Decimal(4, q.Open)
	e.Decimal(5, q.High)
	e.Decimal(6, q.Low)
	e.Time(7, q.Timestamp)
	e.Int64(8, q.Volume)
	e.Decimal(9, q.Turnover)
	e.Int32(10, int32(q.TradeStatus))
	e.Decimal(11, q.ImpliedVolatility)
	e.Date(12, q.ExpiryDate)
	e.Date(13, q.LastTradeDate)
	e.Decimal(14, q.OutstandingRatio)
	e.Int64(15, q.OutstandingQuantity)
	e.Decimal(16, q.ConversionRatio)
	e.String(17, q.Category)
	e.Decimal(18, q.StrikePrice)
	e.Decimal(19, q.UpperStrikePrice)
	e.Decimal(20, q.LowerStrikePrice)
	e.Decimal(21, q.CallPrice)
	e.String(22, q.UnderlyingSymbol)
}

// depth and brokers

func (d *Depth) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			d.Position = f.Int32()
		case 2:
			return setDecimal(&d.Price, f)
		case 3:
			d.Volume = f.Int64()
		case 4:
			d.OrderNum = f.Int64()
		}
		return nil
	})
}

func (d *Depth) encode(e *pbwire.Encoder) {
	e.Int32(1, d.Position)
	e.Decimal(2, d.Price)
	e.Int64(3, d.Volume)
	e.Int64(4, d.OrderNum)
}

func (b *Brokers) decode(raw []byte) error {
	return pbwire.Walk(raw, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			b.Position = f.Int32()
		case 2:
			return appendInt32s(&b.BrokerIDs, f)
		}
		return nil
	})
}

func (b *Brokers) encode(e *pbwire.Encoder) {
	e.Int32(1, b.Position)
	e.Int32s(2, b.BrokerIDs)
}

// decodeBook reads asks and bids from fields askNum and askNum+1.
func decodeBook[T any](b []byte, askNum protowire.Number, decode func(*T, []byte) error) (asks, bids []T, err error) {
	err = pbwire.Walk(b, func(f pbwire.Field) error {
		if f.Num != askNum && f.Num != askNum+1 {
			return nil
		}
		var v T
		if err := decode(&v, f.Bytes()); err != nil {
			return err
		}
		if f.Num == askNum {
			asks = append(asks, v)
		} else {
			bids = append(bids, v)
		}
		return nil
	})
	return asks, bids, err
}

// participants, trades, lines, candlesticks

func (p *ParticipantInfo) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			return appendInt32s(&p.BrokerIDs, f)
		case 2:
			p.NameCN = f.Text()
		case 3:
			p.NameEN = f.Text()
		case 4:
			p.NameHK = f.Text()
		}
		return nil
	})
}

func (p *ParticipantInfo) encode(e *pbwire.Encoder) {
	e.Int32s(1, p.BrokerIDs)
	e.String(2, p.NameCN)
	e.String(3, p.NameEN)
	e.String(4, p.NameHK)
}

func (t *Trade) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			return setDecimal(&t.Price, f)
		case 2:
			t.Volume = f.Int64()
		case 3:
			t.Timestamp = f.Time()
		case 4:
			t.TradeType = f.Text()
		case 5:
			t.Direction = TradeDirection(f.Int32())
		case 6:
			t.TradeSession = TradeSession(f.Int32())
		}
		return nil
	})
}

func (t *Trade) encode(e *pbwire.Encoder) {
	e.Decimal(1, t.Price)
	e.Int64(2, t.Volume)
	e.Time(3, t.Timestamp)
	e.String(4, t.TradeType)
	e.Int32(5, int32(t.Direction))
	e.Int32(6, int32(t.TradeSession))
}

func (l *IntradayLine) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			return setDecimal(&l.Price, f)
		case 2:
			l.Timestamp = f.Time()
		case 3:
			l.Volume = f.Int64()
		case 4:
			return setDecimal(&l.Turnover, f)
		case 5:
			return setDecimal(&l.AvgPrice, f)
		}
		return nil
	})
}

func (l *IntradayLine) encode(e *pbwire.Encoder) {
	e.Decimal(1, l.Price)
	e.Time(2, l.Timestamp)
	e.Int64(3, l.Volume)
	e.Decimal(4, l.Turnover)
	e.Decimal(5, l.AvgPrice)
}

func (c *Candlestick) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			return setDecimal(&c.Close, f)
		case 2:
			return setDecimal(&c.Open, f)
		case 3:
			return setDecimal(&c.Low, f)
		case 4:
			return setDecimal(&c.High, f)
		case 5:
			c.Volume = f.Int64()
		case 6:
			return setDecimal(&c.Turnover, f)
		case 7:
			c.Timestamp = f.Time()
		}
		return nil
	})
}

func (c *Candlestick) encode(e *pbwire.Encoder) {
	e.Decimal(1, c.Close)
	e.Decimal(2, c.Open)
	e.Decimal(3, c.Low)
	e.Decimal(4, c.High)
	e.Int64(5, c.Volume)
	e.Decimal(6, c.Turnover)
	e.Time(7, c.Timestamp)
}

// option chain, issuers, sessions

func (s *StrikePriceInfo) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			return setDecimal(&s.Price, f)
		case 2:
			s.CallSymbol = f.Text()
		case 3:
			s.PutSymbol = f.Text()
		case 4:
			s.Standard = f.Bool()
		}
		return nil
	})
}

func (s *StrikePriceInfo) encode(e *pbwire.Encoder) {
	e.Decimal(1, s.Price)
	e.String(2, s.CallSymbol)
	e.String(3, s.PutSymbol)
	e.Bool(4, s.Standard)
}

func (i *IssuerInfo) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			i.IssuerID = f.Int32()
		case 2:
			i.NameCN = f.Text()
		case 3:
			i.NameEN = f.Text()
		case 4:
			i.NameHK = f.Text()
		}
		return nil
	})
}

func (i *IssuerInfo) encode(e *pbwire.Encoder) {
	e.Int32(1, i.IssuerID)
	e.String(2, i.NameCN)
	e.String(3, i.NameEN)
	e.String(4, i.NameHK)
}

func (t *TradingSessionInfo) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			t.BeginTime = timeOfDay(f.Int32())
		case 2:
			t.EndTime = timeOfDay(f.Int32())
		case 3:
			t.TradeSession = TradeSession(f.Int32())
		}
		return nil
	})
}

func (t *TradingSessionInfo) encode(e *pbwire.Encoder) {
	e.Int32(1, t.BeginTime.hhmm())
	e.Int32(2, t.EndTime.hhmm())
	e.Int32(3, int32(t.TradeSession))
}

func (m *MarketTradingSession) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			m.Market = f.Text()
		case 2:
			var s TradingSessionInfo
			if err := s.decode(f.Bytes()); err != nil {
				return err
			}
			m.TradeSessions = append(m.TradeSessions, s)
		}
		return nil
	})
}

func (m *MarketTradingSession) encode(e *pbwire.Encoder) {
	e.String(1, m.Market)
	encodeList(e, 2, m.TradeSessions, (*TradingSessionInfo).encode)
}

func (s *Subscription) decode(b []byte) error {
	return pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			s.Symbol = f.Text()
		case 2:
			var vs []int32
			if err := appendInt32s(&vs, f); err != nil {
				return err
			}
			s.SubTypes |= subFlagsFromWire(vs)
		case 3:
			var vs []int32
			if err := appendInt32s(&vs, f); err != nil {
				return err
			}
			for _, v := range vs {
				s.Candlesticks = append(s.Candlesticks, Period(v))
			}
		}
		return nil
	})
}

func (s *Subscription) encode(e *pbwire.Encoder) {
	e.String(1, s.Symbol)
	e.Int32s(2, s.SubTypes.wire())
	periods := make([]int32, len(s.Candlesticks))
	for i, p := range s.Candlesticks {
		periods[i] = int32(p)
	}
	e.Int32s(3, periods)
}

// responses

func decodeStaticInfos(b []byte) ([]SecurityStaticInfo, error) {
	out, err := decodeList(b, 1, (*SecurityStaticInfo).decode)
	if err != nil {
		return nil, decodeErr("static info", err)
	}
	return out, nil
}

func decodeQuotes(b []byte) ([]SecurityQuote, error) {
	out, err := decodeList(b, 1, (*SecurityQuote).decode)
	if err != nil {
		return nil, decodeErr("quote", err)
	}
	return out, nil
}

func decodeOptionQuotes(b []byte) ([]OptionQuote, error) {
	out, err := decodeList(b, 1, (*OptionQuote).decode)
	if err != nil {
		return nil, decodeErr("option quote", err)
	}
	return out, nil
}

func decodeWarrantQuotes(b []byte) ([]WarrantQuote, error) {
	out, err := decodeList(b, 1, (*WarrantQuote).decode)
	if err != nil {
		return nil, decodeErr("warrant quote", err)
	}
	return out, nil
}

// depth response: 1 symbol, 2 asks, 3 bids
func decodeDepthResponse(b []byte) (SecurityDepth, error) {
	asks, bids, err := decodeBook(b, 2, (*Depth).decode)
	if err != nil {
		return SecurityDepth{}, decodeErr("depth", err)
	}
	return SecurityDepth{Asks: asks, Bids: bids}, nil
}

func encodeDepthResponse(symbol string, d SecurityDepth) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	encodeList(&e, 2, d.Asks, (*Depth).encode)
	encodeList(&e, 3, d.Bids, (*Depth).encode)
	return e.Bytes()
}

func decodeBrokersResponse(b []byte) (SecurityBrokers, error) {
	asks, bids, err := decodeBook(b, 2, (*Brokers).decode)
	if err != nil {
		return SecurityBrokers{}, decodeErr("brokers", err)
	}
	return SecurityBrokers{AskBrokers: asks, BidBrokers: bids}, nil
}

func encodeBrokersResponse(symbol string, b SecurityBrokers) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	encodeList(&e, 2, b.AskBrokers, (*Brokers).encode)
	encodeList(&e, 3, b.BidBrokers, (*Brokers).encode)
	return e.Bytes()
}

func decodeParticipants(b []byte) ([]ParticipantInfo, error) {
	out, err := decodeList(b, 1, (*ParticipantInfo).decode)
	if err != nil {
		return nil, decodeErr("participants", err)
	}
	return out, nil
}

// trades, intraday and candlesticks responses: 1 symbol, 2 items
func decodeTradesResponse(b []byte) ([]Trade, error) {
	out, err := decodeList(b, 2, (*Trade).decode)
	if err != nil {
		return nil, decodeErr("trades", err)
	}
	return out, nil
}

func decodeIntradayResponse(b []byte) ([]IntradayLine, error) {
	out, err := decodeList(b, 2, (*IntradayLine).decode)
	if err != nil {
		return nil, decodeErr("intraday", err)
	}
	return out, nil
}

func decodeCandlesticksResponse(b []byte) ([]Candlestick, error) {
	out, err := decodeList(b, 2, (*Candlestick).decode)
	if err != nil {
		return nil, decodeErr("candlesticks", err)
	}
	return out, nil
}

func encodeSymbolItems[T any](symbol string, items []T, encode func(*T, *pbwire.Encoder)) []byte {
	var e pbwire.Encoder
	e.String(1, symbol)
	encodeList(&e, 2, items, encode)
	return e.Bytes()
}

func encodeItems[T any](items []T, encode func(*T, *pbwire.Encoder)) []byte {
	var e pbwire.Encoder
	encodeList(&e, 1, items, encode)
	return e.Bytes()
}

func decodeExpiryDates(b []byte) ([]time.Time, error) {
	var out []time.Time
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		if f.Num != 1 {
			return nil
		}
		d, err := f.Date()
		if err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, decodeErr("option chain dates", err)
	}
	return out, nil
}

func encodeDates(num protowire.Number, e *pbwire.Encoder, dates []time.Time) {
	for _, d := range dates {
		e.String(num, pbwire.FormatDate(d))
	}
}

func decodeStrikes(b []byte) ([]StrikePriceInfo, error) {
	out, err := decodeList(b, 1, (*StrikePriceInfo).decode)
	if err != nil {
		return nil, decodeErr("option chain strikes", err)
	}
	return out, nil
}

func decodeIssuers(b []byte) ([]IssuerInfo, error) {
	out, err := decodeList(b, 1, (*IssuerInfo).decode)
	if err != nil {
		return nil, decodeErr("warrant issuers", err)
	}
	return out, nil
}

func decodeTradingSessions(b []byte) ([]MarketTradingSession, error) {
	out, err := decodeList(b, 1, (*MarketTradingSession).decode)
	if err != nil {
		return nil, decodeErr("trading session", err)
	}
	return out, nil
}

func decodeTradingDays(b []byte) (MarketTradingDays, error) {
	var out MarketTradingDays
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		d, err := f.Date()
		if err != nil {
			return err
		}
		if f.Num == 1 {
			out.TradingDays = append(out.TradingDays, d)
		} else {
			out.HalfTradingDays = append(out.HalfTradingDays, d)
		}
		return nil
	})
	if err != nil {
		return MarketTradingDays{}, decodeErr("trading days", err)
	}
	return out, nil
}

func encodeTradingDays(d MarketTradingDays) []byte {
	var e pbwire.Encoder
	encodeDates(1, &e, d.TradingDays)
	encodeDates(2, &e, d.HalfTradingDays)
	return e.Bytes()
}

func decodeSubscriptions(b []byte) ([]Subscription, error) {
	out, err := decodeList(b, 1, (*Subscription).decode)
	if err != nil {
		return nil, decodeErr("subscriptions", err)
	}
	return out, nil
}

// pushes

func decodePush(cmd uint8, b []byte) (PushEvent, error) {
	var ev PushEvent
	header := func(f pbwire.Field) bool {
		switch f.Num {
		case 1:
			ev.Symbol = f.Text()
		case 2:
			ev.Sequence = f.Int64()
		default:
			return false
		}
		return true
	}

	var err error
	switch cmd {
	case pushCmdQuote:
		var q PushQuote
		err = pbwire.Walk(b, func(f pbwire.Field) error {
			if header(f) {
				return nil
			}
			switch f.Num {
			case 3:
				return setDecimal(&q.LastDone, f)
			case 4:
				return setDecimal(&q.Open, f)
			case 5:
				return setDecimal(&q.High, f)
			case 6:
				return setDecimal(&q.Low, f)
			case 7:
				q.Timestamp = f.Time()
			case 8:
				q.Volume = f.Int64()
			case 9:
				return setDecimal(&q.Turnover, f)
			case 10:
				q.TradeStatus = TradeStatus(f.Int32())
			case 11:
				q.TradeSession = TradeSession(f.Int32())
			}
			return nil
		})
		ev.Detail = q

	case pushCmdDepth:
		var d PushDepth
		err = pbwire.Walk(b, func(f pbwire.Field) error {
			if header(f) {
				return nil
			}
			var lvl Depth
			switch f.Num {
			case 3:
				if err := lvl.decode(f.Bytes()); err != nil {
					return err
				}
				d.Asks = append(d.Asks, lvl)
			case 4:
				if err := lvl.decode(f.Bytes()); err != nil {
					return err
				}
				d.Bids = append(d.Bids, lvl)
			}
			return nil
		})
		ev.Detail = d

	case pushCmdBrokers:
		var br PushBrokers
		err = pbwire.Walk(b, func(f pbwire.Field) error {
			if header(f) {
				return nil
			}
			var pos Brokers
			switch f.Num {
			case 3:
				if err := pos.decode(f.Bytes()); err != nil {
					return err
				}
				br.AskBrokers = append(br.AskBrokers, pos)
			case 4:
				if err := pos.decode(f.Bytes()); err != nil {
					return err
				}
				br.BidBrokers = append(br.BidBrokers, pos)
			}
			return nil
		})
		ev.Detail = br

	case pushCmdTrade:
		var t PushTrades
		err = pbwire.Walk(b, func(f pbwire.Field) error {
			if header(f) || f.Num != 3 {
				return nil
			}
			var tr Trade
			if err := tr.decode(f.Bytes()); err != nil {
				return err
			}
			t.Trades = append(t.Trades, tr)
			return nil
		})
		ev.Detail = t

	case pushCmdCandlestick:
		var c PushCandlestick
		err = pbwire.Walk(b, func(f pbwire.Field) error {
			if header(f) {
				return nil
			}
			switch f.Num {
			case 3:
				c.Period = Period(f.Int32())
			case 4:
				return c.Candlestick.decode(f.Bytes())
			case 5:
				c.IsConfirmed = f.Bool()
			}
			return nil
		})
		ev.Detail = c

	default:
		return PushEvent{}, decodeErr("push", fmt.Errorf("unknown push command %d", cmd))
	}

	if err != nil {
		return PushEvent{}, decodeErr(fmt.Sprintf("push %d", cmd), err)
	}
	return ev, nil
}

// MarshalPush encodes ev as the body of a push frame and returns its command
// code. It is the inverse of the decoding applied to incoming pushes.
func MarshalPush(ev PushEvent) (uint8, []byte, error) {
	var e pbwire.Encoder
	e.String(1, ev.Symbol)
	e.Int64(2, ev.Sequence)

	var cmd uint8
	switch d := ev.Detail.(type) {
	case PushQuote:
		cmd = pushCmdQuote
		e.Decimal(3, d.LastDone)
		e.Decimal(4, d.Open)
		e.Decimal(5, d.High)
		e.Decimal(6, d.Low)
		e.Time(7, d.Timestamp)
		e.Int64(8, d.Volume)
		e.Decimal(9, d.Turnover)
		e.Int32(10, int32(d.TradeStatus))
		e.Int32(11, int32(d.TradeSession))
	case PushDepth:
		cmd = pushCmdDepth
		encodeList(&e, 3, d.Asks, (*Depth).encode)
		encodeList(&e, 4, d.Bids, (*Depth).encode)
	case PushBrokers:
		cmd = pushCmdBrokers
		encodeList(&e, 3, d.AskBrokers, (*Brokers).encode)
		encodeList(&e, 4, d.BidBrokers, (*Brokers).encode)
	case PushTrades:
		cmd = pushCmdTrade
		encodeList(&e, 3, d.Trades, (*Trade).encode)
	case PushCandlestick:
		cmd = pushCmdCandlestick
		e.Int32(3, int32(d.Period))
		e.Message(4, d.Candlestick.encode)
		e.Bool(5, d.IsConfirmed)
	default:
		return 0, nil, fmt.Errorf("unsupported push detail %T", ev.Detail)
	}
	return cmd, e.Bytes(), nil
}
