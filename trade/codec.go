package trade

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/longportwhale/openapi-go/pbwire"
	"github.com/longportwhale/openapi-go/wsclient"
)

// Notification content types.
const (
	contentJSON  int32 = 1
	contentProto int32 = 2
)

const eventOrderChanged = "order_changed_lb"

func decodeErr(what string, err error) error {
	return &wsclient.ProtocolError{Op: "decode " + what, Err: err}
}

func encodeTopics(topics []TopicType) []byte {
	var e pbwire.Encoder
	for _, t := range topics {
		e.String(1, string(t))
	}
	return e.Bytes()
}

type subscribeResult struct {
	success []TopicType
	failed  map[TopicType]string
	current []TopicType
}

// subscribe response: 1 success, 2 fail{1 topic, 2 reason}, 3 current
func decodeSubscribeResponse(b []byte) (subscribeResult, error) {
	var r subscribeResult
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			r.success = append(r.success, TopicType(f.Text()))
		case 2:
			var topic, reason string
			if err := pbwire.Walk(f.Bytes(), func(f pbwire.Field) error {
				switch f.Num {
				case 1:
					topic = f.Text()
				case 2:
					reason = f.Text()
				}
				return nil
			}); err != nil {
				return err
			}
			if r.failed == nil {
				r.failed = make(map[TopicType]string)
			}
			r.failed[TopicType(topic)] = reason
		case 3:
			r.current = append(r.current, TopicType(f.Text()))
		}
		return nil
	})
	if err != nil {
		return subscribeResult{}, decodeErr("subscribe response", err)
	}
	return r, nil
}

func encodeSubscribeResponse(r subscribeResult) []byte {
	var e pbwire.Encoder
	for _, t := range r.success {
		e.String(1, string(t))
	}
	for topic, reason := range r.failed {
		e.Message(2, func(m *pbwire.Encoder) {
			m.String(1, string(topic))
			m.String(2, reason)
		})
	}
	for _, t := range r.current {
		e.String(3, string(t))
	}
	return e.Bytes()
}

// unsubscribe response: 1 current
func decodeUnsubscribeResponse(b []byte) ([]TopicType, error) {
	var current []TopicType
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		if f.Num == 1 {
			current = append(current, TopicType(f.Text()))
		}
		return nil
	})
	if err != nil {
		return nil, decodeErr("unsubscribe response", err)
	}
	return current, nil
}

type notification struct {
	topic       TopicType
	contentType int32
	data        []byte
}

// notification push: 1 topic, 2 content_type, 3 data
func decodeNotification(b []byte) (notification, error) {
	var n notification
	err := pbwire.Walk(b, func(f pbwire.Field) error {
		switch f.Num {
		case 1:
			n.topic = TopicType(f.Text())
		case 2:
			n.contentType = f.Int32()
		case 3:
			n.data = f.Bytes()
		}
		return nil
	})
	if err != nil {
		return notification{}, decodeErr("notification", err)
	}
	return n, nil
}

func encodeNotification(n notification) []byte {
	var e pbwire.Encoder
	e.String(1, string(n.topic))
	e.Int32(2, n.contentType)
	e.Raw(3, n.data)
	return e.Bytes()
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// orderChangedJSON is the wire shape; numbers and times arrive as strings.
type orderChangedJSON struct {
	Side              OrderSide   `json:"side"`
	StockName         string      `json:"stock_name"`
	SubmittedQuantity string      `json:"submitted_quantity"`
	Symbol            string      `json:"symbol"`
	OrderType         OrderType   `json:"order_type"`
	SubmittedPrice    string      `json:"submitted_price"`
	ExecutedQuantity  string      `json:"executed_quantity"`
	ExecutedPrice     string      `json:"executed_price"`
	OrderID           string      `json:"order_id"`
	Currency          string      `json:"currency"`
	Status            OrderStatus `json:"status"`
	SubmittedAt       string      `json:"submitted_at"`
	UpdatedAt         string      `json:"updated_at"`
	TriggerPrice      string      `json:"trigger_price"`
	Msg               string      `json:"msg"`
	Tag               OrderTag    `json:"tag"`
	TriggerStatus     string      `json:"trigger_status"`
	TriggerAt         string      `json:"trigger_at"`
	TrailingAmount    string      `json:"trailing_amount"`
	TrailingPercent   string      `json:"trailing_percent"`
	LimitOffset       string      `json:"limit_offset"`
	AccountNo         string      `json:"account_no"`
	LastShare         string      `json:"last_share"`
	LastPrice         string      `json:"last_price"`
	Remark            string      `json:"remark"`
}

// fieldParser keeps the first conversion error.
type fieldParser struct {
	err error
}

func (p *fieldParser) fail(field string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
}

func (p *fieldParser) int(field, s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *fieldParser) decimal(field, s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail(field, err)
	}
	return d
}

func (p *fieldParser) optDecimal(field, s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d := p.decimal(field, s)
	return &d
}

func (p *fieldParser) time(field, s string) time.Time {
	if v := p.int(field, s); v != 0 {
		return time.Unix(v, 0).UTC()
	}
	return time.Time{}
}

func (p *fieldParser) optTime(field, s string) *time.Time {
	t := p.time(field, s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func (o orderChangedJSON) parse() (PushOrderChanged, error) {
	var p fieldParser
	ev := PushOrderChanged{
		Side:              o.Side,
		StockName:         o.StockName,
		SubmittedQuantity: p.int("submitted_quantity", o.SubmittedQuantity),
		Symbol:            o.Symbol,
		OrderType:         o.OrderType,
		SubmittedPrice:    p.decimal("submitted_price", o.SubmittedPrice),
		ExecutedQuantity:  p.int("executed_quantity", o.ExecutedQuantity),
		ExecutedPrice:     p.optDecimal("executed_price", o.ExecutedPrice),
		OrderID:           o.OrderID,
		Currency:          o.Currency,
		Status:            o.Status,
		SubmittedAt:       p.time("submitted_at", o.SubmittedAt),
		UpdatedAt:         p.time("updated_at", o.UpdatedAt),
		TriggerPrice:      p.optDecimal("trigger_price", o.TriggerPrice),
		Msg:               o.Msg,
		Tag:               o.Tag,
		TriggerAt:         p.optTime("trigger_at", o.TriggerAt),
		TrailingAmount:    p.optDecimal("trailing_amount", o.TrailingAmount),
		TrailingPercent:   p.optDecimal("trailing_percent", o.TrailingPercent),
		LimitOffset:       p.optDecimal("limit_offset", o.LimitOffset),
		AccountNo:         o.AccountNo,
		LastShare:         p.optDecimal("last_share", o.LastShare),
		LastPrice:         p.optDecimal("last_price", o.LastPrice),
		Remark:            o.Remark,
	}
	if o.TriggerStatus != "" {
		var ts TriggerStatus
		_ = ts.UnmarshalText([]byte(o.TriggerStatus))
		ev.TriggerStatus = &ts
	}
	return ev, p.err
}

func optString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func unixString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func toJSON(ev PushOrderChanged) orderChangedJSON {
	o := orderChangedJSON{
		Side:              ev.Side,
		StockName:         ev.StockName,
		SubmittedQuantity: strconv.FormatInt(ev.SubmittedQuantity, 10),
		Symbol:            ev.Symbol,
		OrderType:         ev.OrderType,
		SubmittedPrice:    ev.SubmittedPrice.String(),
		ExecutedQuantity:  strconv.FormatInt(ev.ExecutedQuantity, 10),
		ExecutedPrice:     optString(ev.ExecutedPrice),
		OrderID:           ev.OrderID,
		Currency:          ev.Currency,
		Status:            ev.Status,
		SubmittedAt:       unixString(ev.SubmittedAt),
		UpdatedAt:         unixString(ev.UpdatedAt),
		TriggerPrice:      optString(ev.TriggerPrice),
		Msg:               ev.Msg,
		Tag:               ev.Tag,
		TrailingAmount:    optString(ev.TrailingAmount),
		TrailingPercent:   optString(ev.TrailingPercent),
		LimitOffset:       optString(ev.LimitOffset),
		AccountNo:         ev.AccountNo,
		LastShare:         optString(ev.LastShare),
		LastPrice:         optString(ev.LastPrice),
		Remark:            ev.Remark,
	}
	if ev.TriggerStatus != nil {
		o.TriggerStatus = ev.TriggerStatus.String()
	}
	if ev.TriggerAt != nil {
		o.TriggerAt = unixString(*ev.TriggerAt)
	}
	return o
}

// decodePush turns a notify frame into an event. ok is false for events of
// kinds this package does not model.
func decodePush(b []byte) (ev PushEvent, ok bool, err error) {
	n, err := decodeNotification(b)
	if err != nil {
		return nil, false, err
	}
	if n.contentType != contentJSON {
		return nil, false, decodeErr("notification", fmt.Errorf("unsupported content type %d", n.contentType))
	}

	var env envelope
	if err := json.Unmarshal(n.data, &env); err != nil {
		return nil, false, decodeErr("notification", err)
	}
	if env.Event != eventOrderChanged {
		return nil, false, nil
	}

	var raw orderChangedJSON
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, false, decodeErr("order changed", err)
	}
	oc, err := raw.parse()
	if err != nil {
		return nil, false, decodeErr("order changed", err)
	}
	return oc, true, nil
}

// MarshalPush encodes ev as the body of a notify frame on the private topic.
func MarshalPush(ev PushEvent) (uint8, []byte, error) {
	oc, ok := ev.(PushOrderChanged)
	if !ok {
		return 0, nil, fmt.Errorf("unsupported push event %T", ev)
	}
	data, err := json.Marshal(toJSON(oc))
	if err != nil {
		return 0, nil, err
	}
	data, err = json.Marshal(envelope{Event: eventOrderChanged, Data: data})
	if err != nil {
		return 0, nil, err
	}
	return cmdNotify, encodeNotification(notification{topic: TopicPrivate, contentType: contentJSON, data: data}), nil
}
