// Package pbwire encodes and walks protobuf messages field by field.
//
// Payloads are plain proto3 messages. Decimals travel as strings, timestamps
// as unix seconds and calendar dates as YYYYMMDD strings.
package pbwire

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"
)

// DateLayout is the wire layout of calendar dates.
const DateLayout = "20060102"

// Encoder appends fields to a message buffer. Zero values are omitted, as in proto3.
type Encoder struct {
	buf []byte
}

// Bytes returns the encoded message.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) String(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

// Strings writes a repeated string field.
func (e *Encoder) Strings(num protowire.Number, vs []string) {
	for _, v := range vs {
		e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
		e.buf = protowire.AppendString(e.buf, v)
	}
}

func (e *Encoder) Raw(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

func (e *Encoder) Int64(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, uint64(v))
}

func (e *Encoder) Int32(num protowire.Number, v int32) {
	e.Int64(num, int64(v))
}

func (e *Encoder) Uint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *Encoder) Bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeBool(v))
}

// Int32s writes a packed repeated int32 field.
func (e *Encoder) Int32s(num protowire.Number, vs []int32) {
	if len(vs) == 0 {
		return
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, packed)
}

// Decimal writes d as its canonical string.
func (e *Encoder) Decimal(num protowire.Number, d decimal.Decimal) {
	if d.IsZero() {
		return
	}
	e.String(num, d.String())
}

// Time writes t as unix seconds.
func (e *Encoder) Time(num protowire.Number, t time.Time) {
	if t.IsZero() {
		return
	}
	e.Int64(num, t.Unix())
}

// Date writes t as YYYYMMDD.
func (e *Encoder) Date(num protowire.Number, t time.Time) {
	if t.IsZero() {
		return
	}
	e.String(num, FormatDate(t))
}

// Message writes a nested message built by fn. Empty messages are still written
// so repeated fields keep their element count.
func (e *Encoder) Message(num protowire.Number, fn func(*Encoder)) {
	var sub Encoder
	fn(&sub)
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, sub.buf)
}

// Field is one decoded field. Accessors interpret it according to the schema.
type Field struct {
	Num  protowire.Number
	Type protowire.Type

	varint uint64
	bytes  []byte
}

func (f Field) Int64() int64   { return int64(f.varint) }
func (f Field) Int32() int32   { return int32(f.varint) }
func (f Field) Uint64() uint64 { return f.varint }
func (f Field) Bool() bool     { return protowire.DecodeBool(f.varint) }
func (f Field) Text() string   { return string(f.bytes) }
func (f Field) Bytes() []byte  { return f.bytes }

// Time interprets the field as unix seconds. Zero stays the zero time.
func (f Field) Time() time.Time {
	if f.varint == 0 {
		return time.Time{}
	}
	return time.Unix(int64(f.varint), 0).UTC()
}

// Decimal parses a string-encoded decimal. An empty string is zero.
func (f Field) Decimal() (decimal.Decimal, error) {
	if len(f.bytes) == 0 {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(string(f.bytes))
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %d: %w", f.Num, err)
	}
	return d, nil
}

// Date parses a YYYYMMDD field.
func (f Field) Date() (time.Time, error) {
	t, err := ParseDate(string(f.bytes))
	if err != nil {
		return time.Time{}, fmt.Errorf("field %d: %w", f.Num, err)
	}
	return t, nil
}

// Int32s decodes a repeated int32 field in packed or unpacked form.
func (f Field) Int32s() ([]int32, error) {
	if f.Type == protowire.VarintType {
		return []int32{int32(f.varint)}, nil
	}
	var out []int32
	b := f.bytes
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("field %d: %w", f.Num, protowire.ParseError(n))
		}
		out = append(out, int32(v))
		b = b[n:]
	}
	return out, nil
}

// Walk calls fn for every varint and length-delimited field in b. Other wire
// types are skipped.
func Walk(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("pbwire: tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("pbwire: field %d: %w", num, protowire.ParseError(n))
			}
			f.varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("pbwire: field %d: %w", num, protowire.ParseError(n))
			}
			f.bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("pbwire: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// FormatDate renders t as YYYYMMDD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses YYYYMMDD into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
