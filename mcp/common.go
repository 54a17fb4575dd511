package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const dateLayout = "2006-01-02"

// ToolHandler carries the shared plumbing of tool handlers.
type ToolHandler struct {
	deps *Deps
}

func NewToolHandler(deps *Deps) *ToolHandler {
	return &ToolHandler{deps: deps}
}

// Run calls fn and returns its value as JSON, or its error as a tool error.
func (h *ToolHandler) Run(name string, fn func() (any, error)) (*mcp.CallToolResult, error) {
	v, err := fn()
	if err != nil {
		h.deps.Metrics.ToolCall(name, "error")
		h.deps.Logger.Warn("Tool call failed", "tool", name, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %s", name, err)), nil
	}
	h.deps.Metrics.ToolCall(name, "ok")
	return h.MarshalResponse(v, name)
}

// Invalid reports bad arguments.
func (h *ToolHandler) Invalid(name string, err error) (*mcp.CallToolResult, error) {
	h.deps.Metrics.ToolCall(name, "invalid")
	return mcp.NewToolResultError(err.Error()), nil
}

func (h *ToolHandler) MarshalResponse(v any, name string) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		h.deps.Logger.Error("Failed to marshal tool response", "tool", name, "error", err)
		return mcp.NewToolResultError("failed to encode response"), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// ValidateRequired checks that every key is present and non-empty.
func ValidateRequired(args map[string]any, keys ...string) error {
	var missing []string
	for _, k := range keys {
		v, ok := args[k]
		if !ok || v == nil || v == "" {
			missing = append(missing, k)
			continue
		}
		if list, isList := v.([]any); isList && len(list) == 0 {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func SafeAssertString(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func SafeAssertFloat64(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return def
}

func SafeAssertInt(v any, def int) int {
	return int(SafeAssertFloat64(v, float64(def)))
}

func SafeAssertBool(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// SafeAssertStrings accepts a JSON array of strings or a comma-separated string.
func SafeAssertStrings(v any) []string {
	var out []string
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range list {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func parseDateArg(args map[string]any, key string) (time.Time, error) {
	s := SafeAssertString(args[key], "")
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date like 2024-03-01", key)
	}
	return t, nil
}
