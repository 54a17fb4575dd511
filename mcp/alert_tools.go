package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/longportwhale/openapi-go/alerts"
	"github.com/longportwhale/openapi-go/quote"
)

// SetAlertTool creates a price alert and subscribes the symbol's quotes.
type SetAlertTool struct{}

func (*SetAlertTool) Tool() mcp.Tool {
	return mcp.NewTool("set_alert",
		mcp.WithDescription("Set a price alert on a security. When the last price crosses the target in the given direction you are notified via Telegram (if configured). The symbol's quote pushes are subscribed automatically."),
		withSymbol(),
		mcp.WithString("price",
			mcp.Description("Target price as a decimal string (e.g. '385.2')"),
			mcp.Required(),
		),
		mcp.WithString("direction",
			mcp.Description("Trigger when price goes 'above' or 'below' the target"),
			mcp.Required(),
			mcp.Enum("above", "below"),
		),
	)
}

func (*SetAlertTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if err := ValidateRequired(args, "symbol", "price", "direction"); err != nil {
			return handler.Invalid("set_alert", err)
		}

		symbol := SafeAssertString(args["symbol"], "")
		price, err := priceArg(args["price"])
		if err != nil {
			return handler.Invalid("set_alert", err)
		}
		direction := alerts.Direction(SafeAssertString(args["direction"], ""))

		id, err := deps.Alerts.Add(symbol, price, direction)
		if err != nil {
			return handler.Invalid("set_alert", err)
		}
		result := fmt.Sprintf("Alert set: %s %s %s (ID: %s)", symbol, direction, price, id)

		if err := deps.Quote.Subscribe(ctx, []string{symbol}, quote.SubQuote, false); err != nil {
			deps.Logger.Warn("Failed to subscribe alert symbol", "symbol", symbol, "error", err)
			result += fmt.Sprintf("\n\nNote: could not subscribe %s quotes (%s). The alert fires once quotes arrive.", symbol, err)
		}
		deps.Metrics.ToolCall("set_alert", "ok")
		return mcp.NewToolResultText(result), nil
	}
}

// priceArg accepts a decimal string or a JSON number.
func priceArg(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch p := v.(type) {
	case string:
		d, err = decimal.NewFromString(p)
	case float64:
		d = decimal.NewFromFloat(p)
	default:
		err = errors.New("not a number")
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price must be a decimal number: %w", err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, errors.New("price must be positive")
	}
	return d, nil
}

type ListAlertsTool struct{}

func (*ListAlertsTool) Tool() mcp.Tool {
	return mcp.NewTool("list_alerts",
		mcp.WithDescription("List all price alerts, including triggered ones."),
	)
}

func (*ListAlertsTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list := deps.Alerts.List()
		if len(list) == 0 {
			return mcp.NewToolResultText("No alerts configured. Use set_alert to create one."), nil
		}
		return handler.Run("list_alerts", func() (any, error) { return list, nil })
	}
}

type DeleteAlertTool struct{}

func (*DeleteAlertTool) Tool() mcp.Tool {
	return mcp.NewTool("delete_alert",
		mcp.WithDescription("Delete a price alert by its ID."),
		mcp.WithString("alert_id",
			mcp.Description("The alert ID to delete (from list_alerts)"),
			mcp.Required(),
		),
	)
}

func (*DeleteAlertTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if err := ValidateRequired(args, "alert_id"); err != nil {
			return handler.Invalid("delete_alert", err)
		}
		id := SafeAssertString(args["alert_id"], "")
		if err := deps.Alerts.Delete(id); err != nil {
			return handler.Invalid("delete_alert", err)
		}
		deps.Metrics.ToolCall("delete_alert", "ok")
		return mcp.NewToolResultText(fmt.Sprintf("Alert %s deleted.", id)), nil
	}
}

type OrderEventsTool struct{}

func (*OrderEventsTool) Tool() mcp.Tool {
	return mcp.NewTool("order_events",
		mcp.WithDescription("List journaled order updates received on the trade session, newest first."),
		mcp.WithString("order_id",
			mcp.Description("Restrict to one order"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events. Default: 50"),
		),
	)
}

func (*OrderEventsTool) Handler(deps *Deps) server.ToolHandlerFunc {
	handler := NewToolHandler(deps)
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Orders == nil {
			return handler.Invalid("order_events", errors.New("order journal disabled: set DB_PATH to enable it"))
		}
		args := request.GetArguments()
		orderID := SafeAssertString(args["order_id"], "")
		limit := SafeAssertInt(args["limit"], 50)
		if limit <= 0 {
			return handler.Invalid("order_events", errors.New("limit must be positive"))
		}
		return handler.Run("order_events", func() (any, error) { return deps.Orders.OrderEvents(orderID, limit) })
	}
}
