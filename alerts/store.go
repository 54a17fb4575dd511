// Package alerts evaluates price alerts against quote pushes and reports
// alert and order events over Telegram.
package alerts

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction specifies the alert trigger direction.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"

	// MaxAlerts is the maximum number of alerts the store holds.
	MaxAlerts = 100
)

var ErrNotFound = errors.New("alert not found")

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionAbove || d == DirectionBelow
}

// Alert is a price alert on one security.
type Alert struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	Direction      Direction       `json:"direction"`
	Triggered      bool            `json:"triggered"`
	CreatedAt      time.Time       `json:"created_at"`
	TriggeredAt    time.Time       `json:"triggered_at,omitzero"`
	TriggeredPrice decimal.Decimal `json:"triggered_price,omitzero"`
}

// DB is the write-through persistence used by Store.
type DB interface {
	LoadAlerts() ([]*Alert, error)
	SaveAlert(a *Alert) error
	DeleteAlert(id string) error
	UpdateTriggered(id string, price decimal.Decimal, at time.Time) error
}

// NotifyCallback is invoked when an alert is triggered.
type NotifyCallback func(alert *Alert, price decimal.Decimal)

// Store is a thread-safe in-memory store for price alerts.
// Optionally backed by a DB via SetDB.
type Store struct {
	mu       sync.RWMutex
	alerts   []*Alert
	onNotify NotifyCallback
	db       DB
	logger   *slog.Logger
	now      func() time.Time
}

func NewStore(onNotify NotifyCallback) *Store {
	return &Store{
		onNotify: onNotify,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetDB enables write-through persistence.
func (s *Store) SetDB(db DB) {
	s.db = db
}

// SetNotify replaces the callback run when an alert triggers.
func (s *Store) SetNotify(fn NotifyCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNotify = fn
}

// LoadFromDB replaces the in-memory alerts with the persisted ones.
func (s *Store) LoadFromDB() error {
	if s.db == nil {
		return nil
	}
	list, err := s.db.LoadAlerts()
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = list
	return nil
}

// Add creates a new alert and returns its ID.
func (s *Store) Add(symbol string, target decimal.Decimal, direction Direction) (string, error) {
	if !direction.Valid() {
		return "", fmt.Errorf("invalid direction %q", direction)
	}
	if !target.IsPositive() {
		return "", errors.New("target price must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.alerts) >= MaxAlerts {
		return "", fmt.Errorf("maximum number of alerts (%d) reached", MaxAlerts)
	}

	alert := &Alert{
		ID:          uuid.New().String()[:8],
		Symbol:      symbol,
		TargetPrice: target,
		Direction:   direction,
		CreatedAt:   s.now(),
	}
	s.alerts = append(s.alerts, alert)
	if s.db != nil {
		if err := s.db.SaveAlert(alert); err != nil {
			s.logger.Error("Failed to persist alert", "id", alert.ID, "error", err)
		}
	}
	return alert.ID, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.alerts, func(a *Alert) bool { return a.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.alerts = slices.Delete(s.alerts, i, i+1)
	if s.db != nil {
		if err := s.db.DeleteAlert(id); err != nil {
			s.logger.Error("Failed to delete alert from DB", "id", id, "error", err)
		}
	}
	return nil
}

// List returns copies of all alerts in creation order.
func (s *Store) List() []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Alert, len(s.alerts))
	for i, a := range s.alerts {
		cp := *a
		out[i] = &cp
	}
	return out
}

// Active returns copies of the untriggered alerts on symbol.
func (s *Store) Active(symbol string) []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Alert
	for _, a := range s.alerts {
		if a.Symbol == symbol && !a.Triggered {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// Symbols returns the sorted set of symbols with untriggered alerts.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, a := range s.alerts {
		if !a.Triggered && !slices.Contains(out, a.Symbol) {
			out = append(out, a.Symbol)
		}
	}
	slices.Sort(out)
	return out
}

// MarkTriggered records the trigger price. It reports false when the alert
// is unknown or has already triggered.
func (s *Store) MarkTriggered(id string, price decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID != id {
			continue
		}
		if a.Triggered {
			return false
		}
		a.Triggered = true
		a.TriggeredAt = s.now()
		a.TriggeredPrice = price
		if s.db != nil {
			if err := s.db.UpdateTriggered(id, price, a.TriggeredAt); err != nil {
				s.logger.Error("Failed to persist triggered alert", "id", id, "error", err)
			}
		}
		return true
	}
	return false
}

// Counts returns the total and untriggered number of alerts.
func (s *Store) Counts() (total, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if !a.Triggered {
			active++
		}
	}
	return len(s.alerts), active
}

func (s *Store) notify(a *Alert, price decimal.Decimal) {
	s.mu.RLock()
	fn := s.onNotify
	s.mu.RUnlock()
	if fn != nil {
		fn(a, price)
	}
}
