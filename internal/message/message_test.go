package message

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderFixture() *Message {
	return New(MsgTypeNewOrderSingle).
		SetString(TagClOrdID, "KEY-1").
		SetString(TagSymbol, "AAPL").
		SetChar(TagSide, '1').
		SetInt(TagOrderQty, 100).
		SetDecimal(TagPrice, decimal.RequireFromString("185.50")).
		SetString(TagCurrency, "USD").
		SetSender("CLIENT").
		SetTarget("VENUE")
}

func TestTypedAccessors(t *testing.T) {
	m := newOrderFixture()

	sym, ok := m.String(TagSymbol)
	assert.True(t, ok)
	assert.Equal(t, "AAPL", sym)

	qty, ok := m.Int(TagOrderQty)
	assert.True(t, ok)
	assert.Equal(t, int64(100), qty)

	price, ok := m.Decimal(TagPrice)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("185.5")))

	side, ok := m.Char(TagSide)
	assert.True(t, ok)
	assert.Equal(t, byte('1'), side)

	_, ok = m.String(TagText)
	assert.False(t, ok)
	assert.False(t, m.IsSet(TagText))
}

func TestAccessorCoercion(t *testing.T) {
	m := New(MsgTypeNewOrderSingle).
		SetString(TagOrderQty, "250").
		SetString(TagPrice, "99.95").
		SetString(TagExecType, "8").
		SetInt(TagLastQty, 10)

	qty, ok := m.Int(TagOrderQty)
	assert.True(t, ok)
	assert.Equal(t, int64(250), qty)

	price, ok := m.Decimal(TagPrice)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("99.95")))

	c, ok := m.Char(TagExecType)
	assert.True(t, ok)
	assert.Equal(t, byte('8'), c)

	s, ok := m.String(TagLastQty)
	assert.True(t, ok)
	assert.Equal(t, "10", s)

	// Unparseable coercions report absent.
	m.SetString(TagOrderQty, "many")
	_, ok = m.Int(TagOrderQty)
	assert.False(t, ok)
}

func TestHeaderBodySeparation(t *testing.T) {
	m := newOrderFixture()

	assert.Equal(t, "D", m.MsgType())
	assert.Equal(t, "CLIENT", m.Sender())
	assert.Equal(t, "VENUE", m.Target())

	// Header tags are not visible through body accessors.
	_, ok := m.String(TagSenderCompID)
	assert.False(t, ok)
	assert.True(t, m.Header().IsSet(TagSenderCompID))
}

func TestClone(t *testing.T) {
	m := newOrderFixture()
	c := m.Clone()

	c.SetString(TagSymbol, "MSFT").SetSender("OTHER")

	sym, _ := m.String(TagSymbol)
	assert.Equal(t, "AAPL", sym)
	assert.Equal(t, "CLIENT", m.Sender())

	cloned, _ := c.String(TagSymbol)
	assert.Equal(t, "MSFT", cloned)
}

func TestTagsSorted(t *testing.T) {
	m := New(MsgTypeNewOrderSingle).
		SetString(TagText, "x").
		SetString(TagClOrdID, "k").
		SetInt(TagOrderQty, 1)

	assert.Equal(t, []int{TagClOrdID, TagOrderQty, TagText}, m.Body().Tags())
}

func TestFillAt(t *testing.T) {
	req := newOrderFixture()
	fill := FillAt(req, decimal.RequireFromString("185.25"))

	assert.Equal(t, MsgTypeExecutionReport, fill.MsgType())

	key, _ := fill.String(TagClOrdID)
	assert.Equal(t, "KEY-1", key)

	sym, _ := fill.String(TagSymbol)
	assert.Equal(t, "AAPL", sym)

	execType, _ := fill.Char(TagExecType)
	assert.Equal(t, byte('2'), execType)

	price, _ := fill.Decimal(TagPrice)
	assert.True(t, price.Equal(decimal.RequireFromString("185.25")))

	cum, _ := fill.Int(TagCumQty)
	assert.Equal(t, int64(100), cum)

	leaves, _ := fill.Int(TagLeavesQty)
	assert.Zero(t, leaves)

	assert.True(t, fill.IsSet(TagExecID))
	assert.True(t, fill.IsSet(TagOrderID))
}

func TestPartialFillFor(t *testing.T) {
	req := newOrderFixture()
	partial := PartialFillFor(req, 40)

	execType, _ := partial.Char(TagExecType)
	assert.Equal(t, byte('1'), execType)

	last, _ := partial.Int(TagLastQty)
	assert.Equal(t, int64(40), last)

	leaves, _ := partial.Int(TagLeavesQty)
	assert.Equal(t, int64(60), leaves)
}

func TestRejectionFor(t *testing.T) {
	req := newOrderFixture()
	rej := RejectionFor(req, "Fat-finger price check failed")

	execType, _ := rej.Char(TagExecType)
	assert.Equal(t, byte('8'), execType)

	text, _ := rej.String(TagText)
	assert.Equal(t, "Fat-finger price check failed", text)

	key, _ := rej.String(TagClOrdID)
	assert.Equal(t, "KEY-1", key)
}

func TestAckFor(t *testing.T) {
	req := newOrderFixture()
	ack := AckFor(req)

	execType, _ := ack.Char(TagExecType)
	assert.Equal(t, byte('0'), execType)

	leaves, _ := ack.Int(TagLeavesQty)
	assert.Equal(t, int64(100), leaves)
}

func TestCodecRoundTrip(t *testing.T) {
	ts := time.Date(2026, time.March, 2, 10, 15, 30, 0, time.UTC)
	m := newOrderFixture().SetTime(TagTransactTime, ts)

	data, err := Encode(m)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "D", back.MsgType())
	assert.Equal(t, "CLIENT", back.Sender())
	assert.Equal(t, "VENUE", back.Target())

	sym, _ := back.String(TagSymbol)
	assert.Equal(t, "AAPL", sym)

	qty, _ := back.Int(TagOrderQty)
	assert.Equal(t, int64(100), qty)

	price, _ := back.Decimal(TagPrice)
	assert.True(t, price.Equal(decimal.RequireFromString("185.5")))

	side, _ := back.Char(TagSide)
	assert.Equal(t, byte('1'), side)

	got, _ := back.Time(TagTransactTime)
	assert.True(t, got.Equal(ts))

	// Deterministic bytes for identical messages.
	again, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}
