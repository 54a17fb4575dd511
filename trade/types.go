// Package trade is the trade channel: topic subscriptions and order change
// notifications.
package trade

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TopicType names a notification topic.
type TopicType string

// TopicPrivate carries the account's own order changes.
const TopicPrivate TopicType = "private"

// Enums below travel as strings. Unrecognised values decode to Unknown.

func enumString(names []string, v int32, typ string) string {
	if v > 0 && int(v) < len(names) {
		return names[v]
	}
	if v == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%s(%d)", typ, v)
}

func enumParse(names []string, s string) int32 {
	for i := 1; i < len(names); i++ {
		if names[i] == s {
			return int32(i)
		}
	}
	return 0
}

type OrderType int32

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLO
	OrderTypeELO
	OrderTypeMO
	OrderTypeAO
	OrderTypeALO
	OrderTypeODD
	OrderTypeLIT
	OrderTypeMIT
	OrderTypeTSLPAMT
	OrderTypeTSLPPCT
	OrderTypeTSMAMT
	OrderTypeTSMPCT
	OrderTypeSLO
)

var orderTypeNames = []string{
	"", "LO", "ELO", "MO", "AO", "ALO", "ODD", "LIT", "MIT",
	"TSLPAMT", "TSLPPCT", "TSMAMT", "TSMPCT", "SLO",
}

func (t OrderType) String() string { return enumString(orderTypeNames, int32(t), "OrderType") }

func (t *OrderType) UnmarshalText(b []byte) error {
	*t = OrderType(enumParse(orderTypeNames, string(b)))
	return nil
}

func (t OrderType) MarshalText() ([]byte, error) {
	return []byte(orderTypeNames[clampEnum(int32(t), orderTypeNames)]), nil
}

type OrderStatus int32

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusNotReported
	OrderStatusReplacedNotReported
	OrderStatusProtectedNotReported
	OrderStatusVarietiesNotReported
	OrderStatusFilled
	OrderStatusWaitToNew
	OrderStatusNew
	OrderStatusWaitToReplace
	OrderStatusPendingReplace
	OrderStatusReplaced
	OrderStatusPartialFilled
	OrderStatusWaitToCancel
	OrderStatusPendingCancel
	OrderStatusRejected
	OrderStatusCanceled
	OrderStatusExpired
	OrderStatusPartialWithdrawal
)

var orderStatusNames = []string{
	"", "NotReported", "ReplacedNotReported", "ProtectedNotReported", "VarietiesNotReported",
	"FilledStatus", "WaitToNew", "NewStatus", "WaitToReplace", "PendingReplaceStatus",
	"ReplacedStatus", "PartialFilledStatus", "WaitToCancel", "PendingCancelStatus",
	"RejectedStatus", "CanceledStatus", "ExpiredStatus", "PartialWithdrawal",
}

func (s OrderStatus) String() string { return enumString(orderStatusNames, int32(s), "OrderStatus") }

func (s *OrderStatus) UnmarshalText(b []byte) error {
	*s = OrderStatus(enumParse(orderStatusNames, string(b)))
	return nil
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(orderStatusNames[clampEnum(int32(s), orderStatusNames)]), nil
}

// Final reports whether no further changes can follow.
func (s OrderStatus) Final() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCanceled, OrderStatusExpired, OrderStatusPartialWithdrawal:
		return true
	}
	return false
}

type OrderSide int32

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

var orderSideNames = []string{"", "Buy", "Sell"}

func (s OrderSide) String() string { return enumString(orderSideNames, int32(s), "OrderSide") }

func (s *OrderSide) UnmarshalText(b []byte) error {
	*s = OrderSide(enumParse(orderSideNames, string(b)))
	return nil
}

func (s OrderSide) MarshalText() ([]byte, error) {
	return []byte(orderSideNames[clampEnum(int32(s), orderSideNames)]), nil
}

type OrderTag int32

const (
	OrderTagUnknown OrderTag = iota
	OrderTagNormal
	OrderTagLongTerm
	OrderTagGrey
	OrderTagMarginCall
	OrderTagOffline
	OrderTagCreditor
	OrderTagDebtor
	OrderTagNonExercise
	OrderTagAllocatedSub
)

var orderTagNames = []string{
	"", "Normal", "GTC", "Grey", "MarginCall", "Offline", "Creditor", "Debtor",
	"NonExercise", "AllocatedSub",
}

func (t OrderTag) String() string { return enumString(orderTagNames, int32(t), "OrderTag") }

func (t *OrderTag) UnmarshalText(b []byte) error {
	*t = OrderTag(enumParse(orderTagNames, string(b)))
	return nil
}

func (t OrderTag) MarshalText() ([]byte, error) {
	return []byte(orderTagNames[clampEnum(int32(t), orderTagNames)]), nil
}

type TriggerStatus int32

const (
	TriggerStatusUnknown TriggerStatus = iota
	TriggerStatusDeactive
	TriggerStatusActive
	TriggerStatusReleased
)

var triggerStatusNames = []string{"", "DEACTIVE", "ACTIVE", "RELEASED"}

func (s TriggerStatus) String() string {
	return enumString(triggerStatusNames, int32(s), "TriggerStatus")
}

func (s *TriggerStatus) UnmarshalText(b []byte) error {
	*s = TriggerStatus(enumParse(triggerStatusNames, string(b)))
	return nil
}

func (s TriggerStatus) MarshalText() ([]byte, error) {
	return []byte(triggerStatusNames[clampEnum(int32(s), triggerStatusNames)]), nil
}

func clampEnum(v int32, names []string) int32 {
	if v < 0 || int(v) >= len(names) {
		return 0
	}
	return v
}

// PushEvent is a trade notification. PushOrderChanged is the only kind.
type PushEvent interface {
	isPushEvent()
}

// PushOrderChanged reports a change of one order. Pointer fields are absent
// for orders they do not apply to.
type PushOrderChanged struct {
	Side              OrderSide
	StockName         string
	SubmittedQuantity int64
	Symbol            string
	OrderType         OrderType
	SubmittedPrice    decimal.Decimal
	ExecutedQuantity  int64
	ExecutedPrice     *decimal.Decimal
	OrderID           string
	Currency          string
	Status            OrderStatus
	SubmittedAt       time.Time
	UpdatedAt         time.Time
	TriggerPrice      *decimal.Decimal
	Msg               string
	Tag               OrderTag
	TriggerStatus     *TriggerStatus
	TriggerAt         *time.Time
	TrailingAmount    *decimal.Decimal
	TrailingPercent   *decimal.Decimal
	LimitOffset       *decimal.Decimal
	AccountNo         string
	LastShare         *decimal.Decimal
	LastPrice         *decimal.Decimal
	Remark            string
}

func (PushOrderChanged) isPushEvent() {}
