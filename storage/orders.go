package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/longportwhale/openapi-go/alerts"
	"github.com/longportwhale/openapi-go/trade"
)

// OrderEvent is one journaled order update.
type OrderEvent struct {
	Seq            int64               `json:"seq"`
	OrderID        string              `json:"order_id"`
	Symbol         string              `json:"symbol"`
	Side           trade.OrderSide     `json:"side"`
	Status         trade.OrderStatus   `json:"status"`
	SubmittedQty   int64               `json:"submitted_quantity"`
	SubmittedPrice decimal.Decimal     `json:"submitted_price"`
	ExecutedQty    int64               `json:"executed_quantity"`
	ExecutedPrice  decimal.NullDecimal `json:"executed_price"`
	Msg            string              `json:"msg,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
	ReceivedAt     time.Time           `json:"received_at"`
}

var _ alerts.OrderJournal = (*DB)(nil)

// SaveOrderEvent appends an order update to the journal.
func (d *DB) SaveOrderEvent(ev trade.PushOrderChanged, receivedAt time.Time) error {
	var executed sql.NullString
	if ev.ExecutedPrice != nil {
		executed = sql.NullString{String: ev.ExecutedPrice.String(), Valid: true}
	}
	_, err := d.db.Exec(`INSERT INTO order_events
		(order_id, symbol, side, status, submitted_qty, submitted_price, executed_qty,
		 executed_price, msg, updated_at, received_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ev.OrderID, ev.Symbol, ev.Side.String(), ev.Status.String(), ev.SubmittedQuantity,
		ev.SubmittedPrice.String(), ev.ExecutedQuantity, executed, ev.Msg,
		ev.UpdatedAt.UTC().Format(time.RFC3339), receivedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save order event: %w", err)
	}
	return nil
}

// OrderEvents returns the latest limit events, newest first. A non-empty
// orderID restricts them to one order.
func (d *DB) OrderEvents(orderID string, limit int) ([]OrderEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT seq, order_id, symbol, side, status, submitted_qty, submitted_price,
		executed_qty, executed_price, msg, updated_at, received_at FROM order_events`
	args := []any{}
	if orderID != "" {
		q += ` WHERE order_id = ?`
		args = append(args, orderID)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query order events: %w", err)
	}
	defer rows.Close()

	var out []OrderEvent
	for rows.Next() {
		var (
			ev                    OrderEvent
			side, status          string
			updatedAt, receivedAt string
		)
		if err := rows.Scan(&ev.Seq, &ev.OrderID, &ev.Symbol, &side, &status, &ev.SubmittedQty,
			&ev.SubmittedPrice, &ev.ExecutedQty, &ev.ExecutedPrice, &ev.Msg, &updatedAt, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		if err := ev.Side.UnmarshalText([]byte(side)); err != nil {
			return nil, fmt.Errorf("parse side: %w", err)
		}
		if err := ev.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, fmt.Errorf("parse status: %w", err)
		}
		if ev.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		if ev.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
