package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type ParticipantsTool struct{}

func (*ParticipantsTool) Tool() mcp.Tool {
	return mcp.NewTool("participants",
		mcp.WithDescription("List market participants and their broker ids. Cached for a day."),
	)
}

func (*ParticipantsTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handler.Run("participants", func() (any, error) { return deps.Quote.Participants(ctx) })
	}
}

type WarrantIssuersTool struct{}

func (*WarrantIssuersTool) Tool() mcp.Tool {
	return mcp.NewTool("warrant_issuers",
		mcp.WithDescription("List warrant issuers. Cached for a day."),
	)
}

func (*WarrantIssuersTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handler.Run("warrant_issuers", func() (any, error) { return deps.Quote.WarrantIssuers(ctx) })
	}
}

type TradingSessionTool struct{}

func (*TradingSessionTool) Tool() mcp.Tool {
	return mcp.NewTool("trading_session",
		mcp.WithDescription("Get today's trading sessions (pre, normal, post) of every market."),
	)
}

func (*TradingSessionTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handler.Run("trading_session", func() (any, error) { return deps.Quote.TradingSession(ctx) })
	}
}

type TradingDaysTool struct{}

func (*TradingDaysTool) Tool() mcp.Tool {
	return mcp.NewTool("trading_days",
		mcp.WithDescription("List the full and half trading days of a market between two dates (at most one month apart)."),
		mcp.WithString("market",
			mcp.Description("Market code"),
			mcp.Required(),
			mcp.Enum("US", "HK", "CN", "SG"),
		),
		mcp.WithString("begin",
			mcp.Description("First date, YYYY-MM-DD"),
			mcp.Required(),
		),
		mcp.WithString("end",
			mcp.Description("Last date, YYYY-MM-DD"),
			mcp.Required(),
		),
	)
}

func (*TradingDaysTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if err := ValidateRequired(args, "market", "begin", "end"); err != nil {
			return handler.Invalid("trading_days", err)
		}
		begin, err := parseDateArg(args, "begin")
		if err != nil {
			return handler.Invalid("trading_days", err)
		}
		end, err := parseDateArg(args, "end")
		if err != nil {
			return handler.Invalid("trading_days", err)
		}
		if end.Before(begin) {
			return handler.Invalid("trading_days", errors.New("end must not be before begin"))
		}
		market := SafeAssertString(args["market"], "")
		return handler.Run("trading_days", func() (any, error) { return deps.Quote.TradingDays(ctx, market, begin, end) })
	}
}

type OptionChainDatesTool struct{}

func (*OptionChainDatesTool) Tool() mcp.Tool {
	return mcp.NewTool("option_chain_dates",
		mcp.WithDescription("List the option expiry dates of an underlying security."),
		withSymbol(),
	)
}

func (*OptionChainDatesTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := symbolArg(request.GetArguments())
		if err != nil {
			return handler.Invalid("option_chain_dates", err)
		}
		return handler.Run("option_chain_dates", func() (any, error) {
			dates, err := deps.Quote.OptionChainExpiryDateList(ctx, symbol)
			if err != nil {
				return nil, err
			}
			out := make([]string, len(dates))
			for i, d := range dates {
				out[i] = d.Format(dateLayout)
			}
			return out, nil
		})
	}
}

type OptionChainStrikesTool struct{}

func (*OptionChainStrikesTool) Tool() mcp.Tool {
	return mcp.NewTool("option_chain_strikes",
		mcp.WithDescription("List the strike prices with call and put symbols for one expiry date."),
		withSymbol(),
		mcp.WithString("expiry",
			mcp.Description("Expiry date from option_chain_dates, YYYY-MM-DD"),
			mcp.Required(),
		),
	)
}

func (*OptionChainStrikesTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		symbol, err := symbolArg(args)
		if err != nil {
			return handler.Invalid("option_chain_strikes", err)
		}
		expiry, err := parseDateArg(args, "expiry")
		if err != nil {
			return handler.Invalid("option_chain_strikes", err)
		}
		return handler.Run("option_chain_strikes", func() (any, error) {
			return deps.Quote.OptionChainInfoByDate(ctx, symbol, expiry)
		})
	}
}
