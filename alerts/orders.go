package alerts

import (
	"log/slog"
	"time"

	"github.com/longportwhale/openapi-go/push"
	"github.com/longportwhale/openapi-go/trade"
)

// OrderJournal records order updates.
type OrderJournal interface {
	SaveOrderEvent(ev trade.PushOrderChanged, receivedAt time.Time) error
}

// OrderWatcher journals every order update and notifies on final states.
type OrderWatcher struct {
	journal OrderJournal
	notify  func(trade.PushOrderChanged)
	logger  *slog.Logger
}

var _ push.Listener[trade.PushOrderChanged] = (*OrderWatcher)(nil)

// NewOrderWatcher accepts a nil journal or notify.
func NewOrderWatcher(journal OrderJournal, notify func(trade.PushOrderChanged), logger *slog.Logger) *OrderWatcher {
	return &OrderWatcher{journal: journal, notify: notify, logger: logger}
}

func (w *OrderWatcher) OnEvent(ev trade.PushOrderChanged) {
	w.logger.Info("Order changed",
		"order_id", ev.OrderID,
		"symbol", ev.Symbol,
		"status", ev.Status,
		"executed_quantity", ev.ExecutedQuantity,
	)
	if w.journal != nil {
		if err := w.journal.SaveOrderEvent(ev, time.Now()); err != nil {
			w.logger.Error("Failed to journal order event", "order_id", ev.OrderID, "error", err)
		}
	}
	if w.notify != nil && ev.Status.Final() {
		w.notify(ev)
	}
}
