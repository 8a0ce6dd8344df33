package stub

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/message"
	"github.com/aristath/tradelab/internal/order"
)

// Canned predicates and responders covering the common scenario shapes.
// Anything richer is a one-line closure at the call site.

// SymbolIs matches messages carrying the given symbol.
func SymbolIs(symbol string) Predicate {
	return func(m *message.Message) bool {
		s, ok := m.String(message.TagSymbol)
		return ok && s == symbol
	}
}

// MsgTypeIs matches messages of the given type.
func MsgTypeIs(msgType string) Predicate {
	return func(m *message.Message) bool {
		return m.MsgType() == msgType
	}
}

// SideIs matches orders on the given side.
func SideIs(side order.Side) Predicate {
	return func(m *message.Message) bool {
		c, ok := m.Char(message.TagSide)
		return ok && c == side.Char()
	}
}

// And matches when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(m *message.Message) bool {
		for _, p := range preds {
			if !p(m) {
				return false
			}
		}
		return true
	}
}

// Ack responds with an acknowledgement (exec type NEW).
func Ack() Generator {
	return func(req *message.Message) *message.Message {
		return message.AckFor(req)
	}
}

// Fill responds with a full fill at the request's own price.
func Fill() Generator {
	return func(req *message.Message) *message.Message {
		return message.FillFor(req)
	}
}

// FillAtPrice responds with a full fill at the given price.
func FillAtPrice(price decimal.Decimal) Generator {
	return func(req *message.Message) *message.Message {
		return message.FillAt(req, price)
	}
}

// PartialFill responds with a partial fill of qty shares.
func PartialFill(qty int64) Generator {
	return func(req *message.Message) *message.Message {
		return message.PartialFillFor(req, qty)
	}
}

// RejectWith responds with a rejection carrying the given reason.
func RejectWith(text string) Generator {
	return func(req *message.Message) *message.Message {
		return message.RejectionFor(req, text)
	}
}
