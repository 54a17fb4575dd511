package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/longportwhale/openapi-go/quote"
)

func withSymbols() mcp.ToolOption {
	return mcp.WithArray("symbols",
		mcp.Description("Security symbols in ticker.region format. Eg. ['700.HK', 'AAPL.US']"),
		mcp.Required(),
		mcp.Items(map[string]any{"type": "string"}),
	)
}

func withSymbol() mcp.ToolOption {
	return mcp.WithString("symbol",
		mcp.Description("Security symbol in ticker.region format (e.g. '700.HK')"),
		mcp.Required(),
	)
}

func symbolsArg(args map[string]any) ([]string, error) {
	symbols := SafeAssertStrings(args["symbols"])
	if len(symbols) == 0 {
		return nil, errors.New("symbols must list at least one symbol")
	}
	return symbols, nil
}

func symbolArg(args map[string]any) (string, error) {
	if err := ValidateRequired(args, "symbol"); err != nil {
		return "", err
	}
	return SafeAssertString(args["symbol"], ""), nil
}

type QuoteTool struct{}

func (*QuoteTool) Tool() mcp.Tool {
	return mcp.NewTool("quote",
		mcp.WithDescription("Get snapshot quotes (last price, OHLC, volume, extended hours) for one or more securities."),
		withSymbols(),
	)
}

func (*QuoteTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols, err := symbolsArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("quote", err)
		}
		return handler.Run("quote", func() (any, error) { return deps.Quote.Quote(ctx, symbols) })
	}
}

type StaticInfoTool struct{}

func (*StaticInfoTool) Tool() mcp.Tool {
	return mcp.NewTool("static_info",
		mcp.WithDescription("Get reference data (names, exchange, currency, lot size, share counts) for securities."),
		withSymbols(),
	)
}

func (*StaticInfoTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols, err := symbolsArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("static_info", err)
		}
		return handler.Run("static_info", func() (any, error) { return deps.Quote.StaticInfo(ctx, symbols) })
	}
}

type DepthTool struct{}

func (*DepthTool) Tool() mcp.Tool {
	return mcp.NewTool("depth",
		mcp.WithDescription("Get the order book (bid and ask levels) of a security."),
		withSymbol(),
	)
}

func (*DepthTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := symbolArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("depth", err)
		}
		return handler.Run("depth", func() (any, error) { return deps.Quote.Depth(ctx, symbol) })
	}
}

type BrokersTool struct{}

func (*BrokersTool) Tool() mcp.Tool {
	return mcp.NewTool("brokers",
		mcp.WithDescription("Get the broker queue of a Hong Kong security. Use participants to resolve broker ids."),
		withSymbol(),
	)
}

func (*BrokersTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := symbolArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("brokers", err)
		}
		return handler.Run("brokers", func() (any, error) { return deps.Quote.Brokers(ctx, symbol) })
	}
}

type TradesTool struct{}

func (*TradesTool) Tool() mcp.Tool {
	return mcp.NewTool("trades",
		mcp.WithDescription("Get the most recent ticks of a security."),
		withSymbol(),
		mcp.WithNumber("count",
			mcp.Description("Number of ticks, at most 1000. Default: 50"),
		),
	)
}

func (*TradesTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		symbol, err := symbolArg(args)
		if err != nil {
			return handler.Invalid("trades", err)
		}
		count := SafeAssertInt(args["count"], 50)
		if count <= 0 || count > 1000 {
			return handler.Invalid("trades", fmt.Errorf("count must be between 1 and 1000"))
		}
		return handler.Run("trades", func() (any, error) { return deps.Quote.Trades(ctx, symbol, count) })
	}
}

type IntradayTool struct{}

func (*IntradayTool) Tool() mcp.Tool {
	return mcp.NewTool("intraday",
		mcp.WithDescription("Get today's minute-by-minute price line of a security."),
		withSymbol(),
	)
}

func (*IntradayTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := symbolArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("intraday", err)
		}
		return handler.Run("intraday", func() (any, error) { return deps.Quote.Intraday(ctx, symbol) })
	}
}

type CandlesticksTool struct{}

func (*CandlesticksTool) Tool() mcp.Tool {
	return mcp.NewTool("candlesticks",
		mcp.WithDescription("Get the latest candlesticks of a security."),
		withSymbol(),
		mcp.WithString("period",
			mcp.Description("Bar interval"),
			mcp.Required(),
			mcp.Enum("1m", "5m", "15m", "30m", "60m", "day", "week", "month", "year"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of bars, at most 1000. Default: 100"),
		),
		mcp.WithBoolean("adjust",
			mcp.Description("Forward-adjust prices for corporate actions. Default: false"),
		),
	)
}

func (*CandlesticksTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		symbol, err := symbolArg(args)
		if err != nil {
			return handler.Invalid("candlesticks", err)
		}
		period, err := quote.ParsePeriod(SafeAssertString(args["period"], ""))
		if err != nil {
			return handler.Invalid("candlesticks", err)
		}
		count := SafeAssertInt(args["count"], 100)
		if count <= 0 || count > 1000 {
			return handler.Invalid("candlesticks", fmt.Errorf("count must be between 1 and 1000"))
		}
		adjust := quote.AdjustNone
		if SafeAssertBool(args["adjust"], false) {
			adjust = quote.AdjustForward
		}
		return handler.Run("candlesticks", func() (any, error) {
			return deps.Quote.Candlesticks(ctx, symbol, period, count, adjust)
		})
	}
}
