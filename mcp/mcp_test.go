package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longportwhale/openapi-go/alerts"
	"github.com/longportwhale/openapi-go/metrics"
	"github.com/longportwhale/openapi-go/quote"
	"github.com/longportwhale/openapi-go/storage"
	"github.com/longportwhale/openapi-go/wsclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQuote records calls and returns canned data.
type fakeQuote struct {
	err error

	subscribed   []string
	flags        quote.SubFlags
	firstPush    bool
	unsubscribed quote.SubFlags
	tradesCount  int
	period       quote.Period
	adjust       quote.AdjustType
	expiry       time.Time
	daysMarket   string
}

func (f *fakeQuote) Quote(_ context.Context, symbols []string) ([]quote.SecurityQuote, error) {
	out := make([]quote.SecurityQuote, len(symbols))
	for i, s := range symbols {
		out[i] = quote.SecurityQuote{Symbol: s, LastDone: decimal.NewFromInt(385)}
	}
	return out, f.err
}
func (f *fakeQuote) StaticInfo(_ context.Context, symbols []string) ([]quote.SecurityStaticInfo, error) {
	return []quote.SecurityStaticInfo{{Symbol: symbols[0], NameEN: "Tencent"}}, f.err
}
func (f *fakeQuote) Depth(context.Context, string) (quote.SecurityDepth, error) {
	return quote.SecurityDepth{}, f.err
}
func (f *fakeQuote) Brokers(context.Context, string) (quote.SecurityBrokers, error) {
	return quote.SecurityBrokers{}, f.err
}
func (f *fakeQuote) Trades(_ context.Context, _ string, count int) ([]quote.Trade, error) {
	f.tradesCount = count
	return nil, f.err
}
func (f *fakeQuote) Intraday(context.Context, string) ([]quote.IntradayLine, error) {
	return nil, f.err
}
func (f *fakeQuote) Candlesticks(_ context.Context, _ string, period quote.Period, _ int, adjust quote.AdjustType) ([]quote.Candlestick, error) {
	f.period, f.adjust = period, adjust
	return nil, f.err
}
func (f *fakeQuote) Participants(context.Context) ([]quote.ParticipantInfo, error) {
	return []quote.ParticipantInfo{{BrokerIDs: []int32{1, 2}, NameEN: "Broker"}}, f.err
}
func (f *fakeQuote) WarrantIssuers(context.Context) ([]quote.IssuerInfo, error) {
	return nil, f.err
}
func (f *fakeQuote) TradingSession(context.Context) ([]quote.MarketTradingSession, error) {
	return nil, f.err
}
func (f *fakeQuote) TradingDays(_ context.Context, market string, _, _ time.Time) (quote.MarketTradingDays, error) {
	f.daysMarket = market
	return quote.MarketTradingDays{}, f.err
}
func (f *fakeQuote) OptionChainExpiryDateList(context.Context, string) ([]time.Time, error) {
	return []time.Time{time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)}, f.err
}
func (f *fakeQuote) OptionChainInfoByDate(_ context.Context, _ string, expiry time.Time) ([]quote.StrikePriceInfo, error) {
	f.expiry = expiry
	return nil, f.err
}
func (f *fakeQuote) Subscribe(_ context.Context, symbols []string, flags quote.SubFlags, isFirstPush bool) error {
	f.subscribed, f.flags, f.firstPush = symbols, flags, isFirstPush
	return f.err
}
func (f *fakeQuote) Unsubscribe(_ context.Context, _ []string, flags quote.SubFlags) error {
	f.unsubscribed = flags
	return f.err
}
func (f *fakeQuote) Subscriptions(context.Context) ([]quote.Subscription, error) {
	return []quote.Subscription{{
		Symbol:       "700.HK",
		SubTypes:     quote.SubQuote | quote.SubDepth,
		Candlesticks: []quote.Period{quote.PeriodOneMinute},
	}}, f.err
}
func (f *fakeQuote) RealtimeQuote(context.Context, []string) ([]quote.RealtimeQuote, error) {
	return nil, f.err
}
func (f *fakeQuote) RealtimeDepth(context.Context, string) (quote.SecurityDepth, error) {
	return quote.SecurityDepth{}, f.err
}
func (f *fakeQuote) RealtimeBrokers(context.Context, string) (quote.SecurityBrokers, error) {
	return quote.SecurityBrokers{}, f.err
}
func (f *fakeQuote) RealtimeTrades(context.Context, string, int) ([]quote.Trade, error) {
	return nil, f.err
}

type fakeOrders struct{}

func (fakeOrders) OrderEvents(orderID string, limit int) ([]storage.OrderEvent, error) {
	return []storage.OrderEvent{{OrderID: orderID, Seq: int64(limit)}}, nil
}

func newDeps() (*Deps, *fakeQuote) {
	q := &fakeQuote{}
	return &Deps{
		Quote:   q,
		Alerts:  alerts.NewStore(nil),
		Orders:  fakeOrders{},
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  testLogger(),
	}, q
}

func call(t *testing.T, deps *Deps, tool Tool, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = tool.Tool().Name
	req.Params.Arguments = args
	res, err := tool.Handler(deps)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text, res.IsError
	case *mcp.TextContent:
		return c.Text, res.IsError
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return "", false
}

func TestParseExcludedTools(t *testing.T) {
	set := parseExcludedTools(" quote, ,set_alert,")
	assert.Equal(t, map[string]bool{"quote": true, "set_alert": true}, set)
	assert.Empty(t, parseExcludedTools(""))
}

func TestFilterTools(t *testing.T) {
	all := GetAllTools()
	filtered, excluded := filterTools(all, parseExcludedTools("quote,order_events,not_a_tool"))
	assert.Equal(t, 2, excluded)
	assert.Len(t, filtered, len(all)-2)
	for _, tool := range filtered {
		assert.NotContains(t, []string{"quote", "order_events"}, tool.Tool().Name)
	}
}

func TestToolNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, tool := range GetAllTools() {
		name := tool.Tool().Name
		assert.False(t, seen[name], "duplicate tool %s", name)
		seen[name] = true
		assert.NotEmpty(t, tool.Tool().Description, name)
	}
	assert.Len(t, seen, 24)
}

func TestRegisterTools(t *testing.T) {
	deps, _ := newDeps()
	srv := server.NewMCPServer("test", "v0")
	registered := RegisterTools(srv, deps, "delete_alert", testLogger())
	assert.Len(t, registered, len(GetAllTools())-1)
}

func TestQuoteTool(t *testing.T) {
	deps, _ := newDeps()

	text, isErr := call(t, deps, &QuoteTool{}, map[string]any{"symbols": []any{"700.HK", "AAPL.US"}})
	require.False(t, isErr, text)
	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL.US", got[1]["Symbol"])
	assert.Equal(t, "385", got[1]["LastDone"])

	text, isErr = call(t, deps, &QuoteTool{}, map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "symbols")
}

func TestToolErrorsAreResults(t *testing.T) {
	deps, q := newDeps()
	q.err = wsclient.ErrConnectionClosed

	text, isErr := call(t, deps, &DepthTool{}, map[string]any{"symbol": "700.HK"})
	assert.True(t, isErr)
	assert.Contains(t, text, "depth failed")
}

func TestArgumentParsing(t *testing.T) {
	deps, q := newDeps()

	_, isErr := call(t, deps, &TradesTool{}, map[string]any{"symbol": "700.HK"})
	require.False(t, isErr)
	assert.Equal(t, 50, q.tradesCount)
	_, isErr = call(t, deps, &TradesTool{}, map[string]any{"symbol": "700.HK", "count": float64(2000)})
	assert.True(t, isErr)

	_, isErr = call(t, deps, &CandlesticksTool{}, map[string]any{"symbol": "700.HK", "period": "day", "adjust": true})
	require.False(t, isErr)
	assert.Equal(t, quote.PeriodDay, q.period)
	assert.Equal(t, quote.AdjustForward, q.adjust)
	_, isErr = call(t, deps, &CandlesticksTool{}, map[string]any{"symbol": "700.HK", "period": "2m"})
	assert.True(t, isErr)

	_, isErr = call(t, deps, &TradingDaysTool{}, map[string]any{"market": "HK", "begin": "2024-03-01", "end": "2024-03-31"})
	require.False(t, isErr)
	assert.Equal(t, "HK", q.daysMarket)
	_, isErr = call(t, deps, &TradingDaysTool{}, map[string]any{"market": "HK", "begin": "2024-03-31", "end": "2024-03-01"})
	assert.True(t, isErr)

	text, isErr := call(t, deps, &OptionChainDatesTool{}, map[string]any{"symbol": "AAPL.US"})
	require.False(t, isErr)
	assert.JSONEq(t, `["2024-04-26"]`, text)

	_, isErr = call(t, deps, &OptionChainStrikesTool{}, map[string]any{"symbol": "AAPL.US", "expiry": "2024-04-26"})
	require.False(t, isErr)
	assert.Equal(t, time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC), q.expiry)
}

func TestSubscribeTools(t *testing.T) {
	deps, q := newDeps()

	_, isErr := call(t, deps, &SubscribeTool{}, map[string]any{"symbols": "700.HK, AAPL.US", "sub_types": "quote|depth"})
	require.False(t, isErr)
	assert.Equal(t, []string{"700.HK", "AAPL.US"}, q.subscribed)
	assert.Equal(t, quote.SubQuote|quote.SubDepth, q.flags)
	assert.True(t, q.firstPush)

	_, isErr = call(t, deps, &SubscribeTool{}, map[string]any{"symbols": []any{"700.HK"}, "sub_types": "bogus"})
	assert.True(t, isErr)

	_, isErr = call(t, deps, &UnsubscribeTool{}, map[string]any{"symbols": []any{"700.HK"}})
	require.False(t, isErr)
	assert.Equal(t, quote.SubAll, q.unsubscribed)

	text, isErr := call(t, deps, &SubscriptionsTool{}, nil)
	require.False(t, isErr)
	assert.JSONEq(t, `[{"symbol":"700.HK","sub_types":"QUOTE|DEPTH","candlesticks":["1m"]}]`, text)
}

func TestAlertTools(t *testing.T) {
	deps, q := newDeps()

	text, isErr := call(t, deps, &ListAlertsTool{}, nil)
	require.False(t, isErr)
	assert.Contains(t, text, "No alerts")

	text, isErr = call(t, deps, &SetAlertTool{}, map[string]any{"symbol": "700.HK", "price": "400.5", "direction": "above"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Alert set: 700.HK above 400.5")
	assert.Equal(t, []string{"700.HK"}, q.subscribed)
	assert.Equal(t, quote.SubQuote, q.flags)

	list := deps.Alerts.List()
	require.Len(t, list, 1)

	_, isErr = call(t, deps, &SetAlertTool{}, map[string]any{"symbol": "700.HK", "price": float64(-1), "direction": "above"})
	assert.True(t, isErr)
	_, isErr = call(t, deps, &SetAlertTool{}, map[string]any{"symbol": "700.HK", "price": "1", "direction": "sideways"})
	assert.True(t, isErr)

	text, isErr = call(t, deps, &ListAlertsTool{}, nil)
	require.False(t, isErr)
	assert.Contains(t, text, list[0].ID)

	_, isErr = call(t, deps, &DeleteAlertTool{}, map[string]any{"alert_id": list[0].ID})
	require.False(t, isErr)
	_, isErr = call(t, deps, &DeleteAlertTool{}, map[string]any{"alert_id": list[0].ID})
	assert.True(t, isErr)
}

func TestSetAlert_SubscribeFailureIsANote(t *testing.T) {
	deps, q := newDeps()
	q.err = errors.New("offline")

	text, isErr := call(t, deps, &SetAlertTool{}, map[string]any{"symbol": "700.HK", "price": "1", "direction": "below"})
	require.False(t, isErr)
	assert.Contains(t, text, "could not subscribe")
	assert.Len(t, deps.Alerts.List(), 1)
}

func TestOrderEventsTool(t *testing.T) {
	deps, _ := newDeps()
	text, isErr := call(t, deps, &OrderEventsTool{}, map[string]any{"order_id": "42", "limit": float64(5)})
	require.False(t, isErr)
	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0]["order_id"])
	assert.EqualValues(t, 5, got[0]["seq"])

	deps.Orders = nil
	_, isErr = call(t, deps, &OrderEventsTool{}, nil)
	assert.True(t, isErr)
}
