package quote

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TradesCapped(t *testing.T) {
	s := newStore()
	for i := range maxTrades + 20 {
		s.apply(PushEvent{Symbol: "700.HK", Detail: PushTrades{Trades: []Trade{{Volume: int64(i)}}}})
	}
	all := s.trades("700.HK", 0)
	require.Len(t, all, maxTrades)
	assert.Equal(t, int64(20), all[0].Volume)
	assert.Equal(t, int64(maxTrades+19), all[len(all)-1].Volume)
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := newStore()
	s.apply(PushEvent{Symbol: "700.HK", Detail: PushDepth{Asks: []Depth{{Position: 1, Volume: 10}}}})

	d := s.depth("700.HK")
	d.Asks[0].Volume = 99
	assert.Equal(t, int64(10), s.depth("700.HK").Asks[0].Volume)
}

func TestStore_CandlesticksOnlyForSeededKeys(t *testing.T) {
	s := newStore()
	key := candleKey{"700.HK", PeriodDay}
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	s.apply(PushEvent{Symbol: "700.HK", Detail: PushCandlestick{Period: PeriodDay, Candlestick: Candlestick{Timestamp: ts}}})
	assert.Empty(t, s.candlesticks(key, 0))

	s.seedCandlesticks(key, nil)
	s.apply(PushEvent{Symbol: "700.HK", Detail: PushCandlestick{Period: PeriodDay, Candlestick: Candlestick{Timestamp: ts, Close: decimal.NewFromInt(1)}}})
	require.Len(t, s.candlesticks(key, 0), 1)

	s.dropCandlesticks(key)
	assert.Empty(t, s.candlesticks(key, 0))
}

func TestStore_CandlesticksCapped(t *testing.T) {
	s := newStore()
	key := candleKey{"700.HK", PeriodOneMinute}
	s.seedCandlesticks(key, nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range maxCandlesticks + 5 {
		s.mergeCandlestick(key, Candlestick{Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	bars := s.candlesticks(key, 0)
	require.Len(t, bars, maxCandlesticks)
	assert.True(t, bars[0].Timestamp.Equal(base.Add(5*time.Minute)))
	assert.Len(t, s.candlesticks(key, 10), 10)
}

func TestStore_Forget(t *testing.T) {
	s := newStore()
	s.apply(PushEvent{Symbol: "700.HK", Detail: PushQuote{LastDone: decimal.NewFromInt(385)}})
	s.apply(PushEvent{Symbol: "700.HK", Detail: PushTrades{Trades: []Trade{{Volume: 1}}}})

	s.forget("700.HK", SubQuote)
	assert.Equal(t, "385", s.quote("700.HK").LastDone.String())
	assert.Empty(t, s.trades("700.HK", 0))

	s.forget("700.HK", 0)
	assert.True(t, s.quote("700.HK").LastDone.IsZero())
	assert.NotContains(t, s.securities, "700.HK")
}

func TestStore_QuotePushReplacesSnapshot(t *testing.T) {
	s := newStore()
	s.apply(PushEvent{Symbol: "700.HK", Detail: PushQuote{LastDone: decimal.NewFromInt(385), High: decimal.NewFromInt(390), Volume: 100}})
	s.apply(PushEvent{Symbol: "700.HK", Detail: PushQuote{LastDone: decimal.NewFromInt(386), Volume: 150}})

	q := s.quote("700.HK")
	assert.Equal(t, "700.HK", q.Symbol)
	assert.Equal(t, "386", q.LastDone.String())
	assert.True(t, q.High.IsZero())
	assert.Equal(t, int64(150), q.Volume)
}
