package alerts

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/longportwhale/openapi-go/push"
	"github.com/longportwhale/openapi-go/quote"
)

// Evaluator checks quote pushes against active alerts.
type Evaluator struct {
	store  *Store
	logger *slog.Logger
}

var _ push.Listener[quote.PushEvent] = (*Evaluator)(nil)

func NewEvaluator(store *Store, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		logger: logger,
	}
}

// OnEvent evaluates quote pushes and ignores the other kinds.
func (e *Evaluator) OnEvent(ev quote.PushEvent) {
	q, ok := ev.Detail.(quote.PushQuote)
	if !ok {
		return
	}
	e.Evaluate(ev.Symbol, q.LastDone)
}

// Evaluate triggers the active alerts on symbol that price satisfies. A
// quote without a trade yet has no last price and is skipped.
func (e *Evaluator) Evaluate(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	for _, alert := range e.store.Active(symbol) {
		if !shouldTrigger(alert, price) {
			continue
		}
		if !e.store.MarkTriggered(alert.ID, price) {
			continue
		}

		e.logger.Info("Alert triggered",
			"alert_id", alert.ID,
			"symbol", alert.Symbol,
			"target", alert.TargetPrice,
			"current", price,
			"direction", alert.Direction,
		)
		e.store.notify(alert, price)
	}
}

func shouldTrigger(alert *Alert, price decimal.Decimal) bool {
	switch alert.Direction {
	case DirectionAbove:
		return price.GreaterThanOrEqual(alert.TargetPrice)
	case DirectionBelow:
		return price.LessThanOrEqual(alert.TargetPrice)
	default:
		return false
	}
}
