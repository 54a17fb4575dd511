// Package storage persists alerts and the order event journal in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/longportwhale/openapi-go/alerts"
)

// DB provides SQLite persistence for alerts and order events.
type DB struct {
	db *sql.DB
}

var _ alerts.DB = (*DB)(nil)

// Open opens (or creates) the SQLite database at path and ensures tables exist.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS alerts (
    id              TEXT PRIMARY KEY,
    symbol          TEXT NOT NULL,
    target_price    TEXT NOT NULL,
    direction       TEXT NOT NULL CHECK(direction IN ('above','below')),
    triggered       INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL,
    triggered_at    TEXT,
    triggered_price TEXT
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);

CREATE TABLE IF NOT EXISTS order_events (
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id          TEXT NOT NULL,
    symbol            TEXT NOT NULL,
    side              TEXT NOT NULL,
    status            TEXT NOT NULL,
    submitted_qty     INTEGER NOT NULL,
    submitted_price   TEXT NOT NULL,
    executed_qty      INTEGER NOT NULL,
    executed_price    TEXT,
    msg               TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    received_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &DB{db: db}, nil
}

// LoadAlerts reads all alerts in creation order.
func (d *DB) LoadAlerts() ([]*alerts.Alert, error) {
	rows, err := d.db.Query(`SELECT id, symbol, target_price, direction, triggered,
		created_at, triggered_at, triggered_price FROM alerts ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*alerts.Alert
	for rows.Next() {
		var (
			a           alerts.Alert
			dir         string
			triggeredI  int
			createdAtS  string
			triggeredAt sql.NullString
			trigPrice   sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Symbol, &a.TargetPrice, &dir, &triggeredI,
			&createdAtS, &triggeredAt, &trigPrice); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Direction = alerts.Direction(dir)
		a.Triggered = triggeredI != 0
		a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtS)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if triggeredAt.Valid {
			a.TriggeredAt, err = time.Parse(time.RFC3339Nano, triggeredAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse triggered_at: %w", err)
			}
		}
		if trigPrice.Valid {
			a.TriggeredPrice, err = decimal.NewFromString(trigPrice.String)
			if err != nil {
				return nil, fmt.Errorf("parse triggered_price: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveAlert inserts or replaces an alert.
func (d *DB) SaveAlert(a *alerts.Alert) error {
	triggered := 0
	if a.Triggered {
		triggered = 1
	}
	var triggeredAt, trigPrice sql.NullString
	if !a.TriggeredAt.IsZero() {
		triggeredAt = sql.NullString{String: a.TriggeredAt.Format(time.RFC3339Nano), Valid: true}
		trigPrice = sql.NullString{String: a.TriggeredPrice.String(), Valid: true}
	}

	_, err := d.db.Exec(`INSERT OR REPLACE INTO alerts
		(id, symbol, target_price, direction, triggered, created_at, triggered_at, triggered_price)
		VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.Symbol, a.TargetPrice.String(), string(a.Direction), triggered,
		a.CreatedAt.Format(time.RFC3339Nano), triggeredAt, trigPrice)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (d *DB) DeleteAlert(id string) error {
	if _, err := d.db.Exec(`DELETE FROM alerts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

// UpdateTriggered marks an alert as triggered with the given price and time.
func (d *DB) UpdateTriggered(id string, price decimal.Decimal, at time.Time) error {
	_, err := d.db.Exec(`UPDATE alerts SET triggered = 1, triggered_at = ?, triggered_price = ? WHERE id = ?`,
		at.Format(time.RFC3339Nano), price.String(), id)
	if err != nil {
		return fmt.Errorf("update triggered: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
