package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/longportwhale/openapi-go/quote"
)

func withSubTypes(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{
		mcp.Description("Push kinds: any of QUOTE, DEPTH, BROKERS, TRADE joined by '|' (e.g. 'QUOTE|DEPTH')"),
	}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("sub_types", opts...)
}

type SubscribeTool struct{}

func (*SubscribeTool) Tool() mcp.Tool {
	return mcp.NewTool("subscribe",
		mcp.WithDescription("Subscribe to live pushes. Pushed data is mirrored locally and read with the realtime_* tools."),
		withSymbols(),
		withSubTypes(true),
		mcp.WithBoolean("is_first_push",
			mcp.Description("Push the current value right after subscribing. Default: true"),
		),
	)
}

func (*SubscribeTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		symbols, err := symbolsArg(args)
		if err != nil {
			return handler.Invalid("subscribe", err)
		}
		flags, err := quote.ParseSubFlags(SafeAssertString(args["sub_types"], ""))
		if err != nil {
			return handler.Invalid("subscribe", err)
		}
		firstPush := SafeAssertBool(args["is_first_push"], true)
		return handler.Run("subscribe", func() (any, error) {
			if err := deps.Quote.Subscribe(ctx, symbols, flags, firstPush); err != nil {
				return nil, err
			}
			return map[string]any{"subscribed": symbols, "sub_types": flags.String()}, nil
		})
	}
}

type UnsubscribeTool struct{}

func (*UnsubscribeTool) Tool() mcp.Tool {
	return mcp.NewTool("unsubscribe",
		mcp.WithDescription("Stop live pushes. Mirrored data of kinds no longer held is dropped."),
		withSymbols(),
		withSubTypes(false),
	)
}

func (*UnsubscribeTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		symbols, err := symbolsArg(args)
		if err != nil {
			return handler.Invalid("unsubscribe", err)
		}
		flags := quote.SubAll
		if s := SafeAssertString(args["sub_types"], ""); s != "" {
			if flags, err = quote.ParseSubFlags(s); err != nil {
				return handler.Invalid("unsubscribe", err)
			}
		}
		return handler.Run("unsubscribe", func() (any, error) {
			if err := deps.Quote.Unsubscribe(ctx, symbols, flags); err != nil {
				return nil, err
			}
			return map[string]any{"unsubscribed": symbols, "sub_types": flags.String()}, nil
		})
	}
}

type subscriptionView struct {
	Symbol       string   `json:"symbol"`
	SubTypes     string   `json:"sub_types"`
	Candlesticks []string `json:"candlesticks,omitempty"`
}

type SubscriptionsTool struct{}

func (*SubscriptionsTool) Tool() mcp.Tool {
	return mcp.NewTool("subscriptions",
		mcp.WithDescription("List the server-side subscriptions of the quote session."),
	)
}

func (*SubscriptionsTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handler.Run("subscriptions", func() (any, error) {
			subs, err := deps.Quote.Subscriptions(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]subscriptionView, len(subs))
			for i, s := range subs {
				out[i] = subscriptionView{Symbol: s.Symbol, SubTypes: s.SubTypes.String()}
				for _, p := range s.Candlesticks {
					out[i].Candlesticks = append(out[i].Candlesticks, p.String())
				}
			}
			return out, nil
		})
	}
}

type RealtimeQuoteTool struct{}

func (*RealtimeQuoteTool) Tool() mcp.Tool {
	return mcp.NewTool("realtime_quote",
		mcp.WithDescription("Read the locally mirrored quotes of subscribed symbols. Symbols without pushed data are omitted."),
		withSymbols(),
	)
}

func (*RealtimeQuoteTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols, err := symbolsArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("realtime_quote", err)
		}
		return handler.Run("realtime_quote", func() (any, error) { return deps.Quote.RealtimeQuote(ctx, symbols) })
	}
}

type RealtimeDepthTool struct{}

func (*RealtimeDepthTool) Tool() mcp.Tool {
	return mcp.NewTool("realtime_depth",
		mcp.WithDescription("Read the locally mirrored order book of a symbol subscribed with DEPTH."),
		withSymbol(),
	)
}

func (*RealtimeDepthTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := symbolArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("realtime_depth", err)
		}
		return handler.Run("realtime_depth", func() (any, error) { return deps.Quote.RealtimeDepth(ctx, symbol) })
	}
}

type RealtimeBrokersTool struct{}

func (*RealtimeBrokersTool) Tool() mcp.Tool {
	return mcp.NewTool("realtime_brokers",
		mcp.WithDescription("Read the locally mirrored broker queue of a symbol subscribed with BROKERS."),
		withSymbol(),
	)
}

func (*RealtimeBrokersTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := symbolArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("realtime_brokers", err)
		}
		return handler.Run("realtime_brokers", func() (any, error) { return deps.Quote.RealtimeBrokers(ctx, symbol) })
	}
}

type RealtimeTradesTool struct{}

func (*RealtimeTradesTool) Tool() mcp.Tool {
	return mcp.NewTool("realtime_trades",
		mcp.WithDescription("Read the most recent locally mirrored ticks of a symbol subscribed with TRADE."),
		withSymbol(),
		mcp.WithNumber("count",
			mcp.Description("Number of ticks. Default: 50"),
		),
	)
}

func (*RealtimeTradesTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		symbol, err := symbolArg(args)
		if err != nil {
			return handler.Invalid("realtime_trades", err)
		}
		count := SafeAssertInt(args["count"], 50)
		if count <= 0 {
			return handler.Invalid("realtime_trades", fmt.Errorf("count must be positive"))
		}
		return handler.Run("realtime_trades", func() (any, error) { return deps.Quote.RealtimeTrades(ctx, symbol, count) })
	}
}
