// Package mcp exposes the quote session, price alerts and the order journal
// as Model Context Protocol tools.
package mcp

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/longportwhale/openapi-go/alerts"
	"github.com/longportwhale/openapi-go/metrics"
	"github.com/longportwhale/openapi-go/quote"
	"github.com/longportwhale/openapi-go/storage"
)

// QuoteAPI is the part of quote.Session the tools call.
type QuoteAPI interface {
	Quote(ctx context.Context, symbols []string) ([]quote.SecurityQuote, error)
	StaticInfo(ctx context.Context, symbols []string) ([]quote.SecurityStaticInfo, error)
	Depth(ctx context.Context, symbol string) (quote.SecurityDepth, error)
	Brokers(ctx context.Context, symbol string) (quote.SecurityBrokers, error)
	Trades(ctx context.Context, symbol string, count int) ([]quote.Trade, error)
	Intraday(ctx context.Context, symbol string) ([]quote.IntradayLine, error)
	Candlesticks(ctx context.Context, symbol string, period quote.Period, count int, adjust quote.AdjustType) ([]quote.Candlestick, error)

	Participants(ctx context.Context) ([]quote.ParticipantInfo, error)
	WarrantIssuers(ctx context.Context) ([]quote.IssuerInfo, error)
	TradingSession(ctx context.Context) ([]quote.MarketTradingSession, error)
	TradingDays(ctx context.Context, market string, begin, end time.Time) (quote.MarketTradingDays, error)
	OptionChainExpiryDateList(ctx context.Context, symbol string) ([]time.Time, error)
	OptionChainInfoByDate(ctx context.Context, symbol string, expiry time.Time) ([]quote.StrikePriceInfo, error)

	Subscribe(ctx context.Context, symbols []string, flags quote.SubFlags, isFirstPush bool) error
	Unsubscribe(ctx context.Context, symbols []string, flags quote.SubFlags) error
	Subscriptions(ctx context.Context) ([]quote.Subscription, error)

	RealtimeQuote(ctx context.Context, symbols []string) ([]quote.RealtimeQuote, error)
	RealtimeDepth(ctx context.Context, symbol string) (quote.SecurityDepth, error)
	RealtimeBrokers(ctx context.Context, symbol string) (quote.SecurityBrokers, error)
	RealtimeTrades(ctx context.Context, symbol string, count int) ([]quote.Trade, error)
}

var _ QuoteAPI = (*quote.Session)(nil)

// OrderLog is satisfied by storage.DB.
type OrderLog interface {
	OrderEvents(orderID string, limit int) ([]storage.OrderEvent, error)
}

// Deps are the services behind the tools. Orders may be nil when no
// database is configured.
type Deps struct {
	Quote   QuoteAPI
	Alerts  *alerts.Store
	Orders  OrderLog
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Tool is one MCP tool.
type Tool interface {
	Tool() mcp.Tool
	Handler(*Deps) server.ToolHandlerFunc
}

// GetAllTools returns all available tools for registration.
func GetAllTools() []Tool {
	return []Tool{
		// snapshots
		&QuoteTool{},
		&StaticInfoTool{},
		&DepthTool{},
		&BrokersTool{},
		&TradesTool{},
		&IntradayTool{},
		&CandlesticksTool{},

		// reference data
		&ParticipantsTool{},
		&WarrantIssuersTool{},
		&TradingSessionTool{},
		&TradingDaysTool{},
		&OptionChainDatesTool{},
		&OptionChainStrikesTool{},

		// subscriptions and the local mirror
		&SubscribeTool{},
		&UnsubscribeTool{},
		&SubscriptionsTool{},
		&RealtimeQuoteTool{},
		&RealtimeDepthTool{},
		&RealtimeBrokersTool{},
		&RealtimeTradesTool{},

		// alerts and orders
		&SetAlertTool{},
		&ListAlertsTool{},
		&DeleteAlertTool{},
		&OrderEventsTool{},
	}
}

// parseExcludedTools parses a comma-separated list of tool names.
func parseExcludedTools(excludedTools string) map[string]bool {
	excludedSet := make(map[string]bool)
	for _, name := range strings.Split(excludedTools, ",") {
		if name = strings.TrimSpace(name); name != "" {
			excludedSet[name] = true
		}
	}
	return excludedSet
}

// filterTools returns the tools not in the excluded set and how many were excluded.
func filterTools(allTools []Tool, excludedSet map[string]bool) ([]Tool, int) {
	filtered := make([]Tool, 0, len(allTools))
	excluded := 0
	for _, tool := range allTools {
		if excludedSet[tool.Tool().Name] {
			excluded++
			continue
		}
		filtered = append(filtered, tool)
	}
	return filtered, excluded
}

// RegisterTools adds every tool not named in excludedTools to srv.
func RegisterTools(srv *server.MCPServer, deps *Deps, excludedTools string, logger *slog.Logger) []Tool {
	excludedSet := parseExcludedTools(excludedTools)
	for name := range excludedSet {
		logger.Info("Excluding tool from registration", "tool", name)
	}

	allTools := GetAllTools()
	filtered, excluded := filterTools(allTools, excludedSet)
	for _, tool := range filtered {
		srv.AddTool(tool.Tool(), tool.Handler(deps))
	}

	logger.Info("Tool registration complete",
		"registered", len(filtered),
		"excluded", excluded,
		"total_available", len(allTools))
	return filtered
}
