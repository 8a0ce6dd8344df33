// Package message implements the tag-addressed envelope the harness passes
// between initiator, venue, and transports. Fields are read and written by
// integer tag with typed values; the engine never assumes a wire format.
package message

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the type a field value was set with.
type Kind uint8

// Field value kinds.
const (
	KindString Kind = iota
	KindInt
	KindDecimal
	KindChar
	KindTime
)

// Value is one typed field value. The zero Value is an empty string.
type Value struct {
	kind Kind
	str  string
	num  int64
	dec  decimal.Decimal
	ch   byte
	ts   time.Time
}

// Kind returns the value's type.
func (v Value) Kind() Kind { return v.kind }

// canonical renders the value in its wire string form.
func (v Value) canonical() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindDecimal:
		return v.dec.String()
	case KindChar:
		return string(v.ch)
	case KindTime:
		return v.ts.Format(time.RFC3339Nano)
	default:
		return v.str
	}
}

// Fields is a mutable tag-to-value map. It is not safe for concurrent
// mutation; response generators build fresh messages instead of sharing.
type Fields struct {
	m map[int]Value
}

func newFields() *Fields {
	return &Fields{m: make(map[int]Value)}
}

// IsSet reports whether the tag has a value.
func (f *Fields) IsSet(tag int) bool {
	_, ok := f.m[tag]
	return ok
}

// String returns the tag's value rendered as a string.
func (f *Fields) String(tag int) (string, bool) {
	v, ok := f.m[tag]
	if !ok {
		return "", false
	}
	return v.canonical(), true
}

// Int returns the tag's value as an integer, parsing string values and
// truncating decimals.
func (f *Fields) Int(tag int) (int64, bool) {
	v, ok := f.m[tag]
	if !ok {
		return 0, false
	}
	switch v.kind {
	case KindInt:
		return v.num, true
	case KindDecimal:
		return v.dec.IntPart(), true
	case KindString:
		n, err := strconv.ParseInt(v.str, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Decimal returns the tag's value as a decimal, parsing string values and
// widening integers.
func (f *Fields) Decimal(tag int) (decimal.Decimal, bool) {
	v, ok := f.m[tag]
	if !ok {
		return decimal.Zero, false
	}
	switch v.kind {
	case KindDecimal:
		return v.dec, true
	case KindInt:
		return decimal.NewFromInt(v.num), true
	case KindString:
		d, err := decimal.NewFromString(v.str)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// Char returns the tag's value as a single character.
func (f *Fields) Char(tag int) (byte, bool) {
	v, ok := f.m[tag]
	if !ok {
		return 0, false
	}
	switch v.kind {
	case KindChar:
		return v.ch, true
	case KindString:
		if len(v.str) == 1 {
			return v.str[0], true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Time returns the tag's value as a timestamp, parsing RFC 3339 strings.
func (f *Fields) Time(tag int) (time.Time, bool) {
	v, ok := f.m[tag]
	if !ok {
		return time.Time{}, false
	}
	switch v.kind {
	case KindTime:
		return v.ts, true
	case KindString:
		ts, err := time.Parse(time.RFC3339Nano, v.str)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}

// SetString sets a string value.
func (f *Fields) SetString(tag int, s string) *Fields {
	f.m[tag] = Value{kind: KindString, str: s}
	return f
}

// SetInt sets an integer value.
func (f *Fields) SetInt(tag int, n int64) *Fields {
	f.m[tag] = Value{kind: KindInt, num: n}
	return f
}

// SetDecimal sets a decimal value.
func (f *Fields) SetDecimal(tag int, d decimal.Decimal) *Fields {
	f.m[tag] = Value{kind: KindDecimal, dec: d}
	return f
}

// SetChar sets a single-character value.
func (f *Fields) SetChar(tag int, c byte) *Fields {
	f.m[tag] = Value{kind: KindChar, ch: c}
	return f
}

// SetTime sets a timestamp value.
func (f *Fields) SetTime(tag int, ts time.Time) *Fields {
	f.m[tag] = Value{kind: KindTime, ts: ts}
	return f
}

// Delete removes the tag.
func (f *Fields) Delete(tag int) { delete(f.m, tag) }

// Len returns the number of set tags.
func (f *Fields) Len() int { return len(f.m) }

// Tags returns the set tags in ascending order.
func (f *Fields) Tags() []int {
	tags := make([]int, 0, len(f.m))
	for tag := range f.m {
		tags = append(tags, tag)
	}
	sort.Ints(tags)
	return tags
}

func (f *Fields) clone() *Fields {
	c := newFields()
	for tag, v := range f.m {
		c.m[tag] = v
	}
	return c
}

// Message is one protocol message: a header (routing fields) and a body.
type Message struct {
	header *Fields
	body   *Fields
}

// New creates a message of the given type (header tag 35).
func New(msgType string) *Message {
	m := &Message{header: newFields(), body: newFields()}
	m.header.SetString(TagMsgType, msgType)
	return m
}

// Header returns the routing fields.
func (m *Message) Header() *Fields { return m.header }

// Body returns the application fields.
func (m *Message) Body() *Fields { return m.body }

// MsgType returns the message type, or "" when unset.
func (m *Message) MsgType() string {
	t, _ := m.header.String(TagMsgType)
	return t
}

// Sender returns the header sender comp id.
func (m *Message) Sender() string {
	s, _ := m.header.String(TagSenderCompID)
	return s
}

// Target returns the header target comp id.
func (m *Message) Target() string {
	s, _ := m.header.String(TagTargetCompID)
	return s
}

// SetSender sets the header sender comp id.
func (m *Message) SetSender(id string) *Message {
	m.header.SetString(TagSenderCompID, id)
	return m
}

// SetTarget sets the header target comp id.
func (m *Message) SetTarget(id string) *Message {
	m.header.SetString(TagTargetCompID, id)
	return m
}

// Body passthroughs; the body is the common case.

// IsSet reports whether the body tag has a value.
func (m *Message) IsSet(tag int) bool { return m.body.IsSet(tag) }

// String returns the body tag's value as a string.
func (m *Message) String(tag int) (string, bool) { return m.body.String(tag) }

// Int returns the body tag's value as an integer.
func (m *Message) Int(tag int) (int64, bool) { return m.body.Int(tag) }

// Decimal returns the body tag's value as a decimal.
func (m *Message) Decimal(tag int) (decimal.Decimal, bool) { return m.body.Decimal(tag) }

// Char returns the body tag's value as a character.
func (m *Message) Char(tag int) (byte, bool) { return m.body.Char(tag) }

// Time returns the body tag's value as a timestamp.
func (m *Message) Time(tag int) (time.Time, bool) { return m.body.Time(tag) }

// SetString sets a string body field.
func (m *Message) SetString(tag int, s string) *Message {
	m.body.SetString(tag, s)
	return m
}

// SetInt sets an integer body field.
func (m *Message) SetInt(tag int, n int64) *Message {
	m.body.SetInt(tag, n)
	return m
}

// SetDecimal sets a decimal body field.
func (m *Message) SetDecimal(tag int, d decimal.Decimal) *Message {
	m.body.SetDecimal(tag, d)
	return m
}

// SetChar sets a character body field.
func (m *Message) SetChar(tag int, c byte) *Message {
	m.body.SetChar(tag, c)
	return m
}

// SetTime sets a timestamp body field.
func (m *Message) SetTime(tag int, ts time.Time) *Message {
	m.body.SetTime(tag, ts)
	return m
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	return &Message{header: m.header.clone(), body: m.body.clone()}
}
