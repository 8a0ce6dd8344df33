package message

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Execution report codes used by the factories. The full enums live in the
// order package; duplicating the characters here keeps this package free of
// upward imports.
const (
	execTypeNew         = '0'
	execTypePartialFill = '1'
	execTypeFill        = '2'
	execTypeRejected    = '8'
)

// execReportFor starts an execution report answering req: fresh ExecID and
// OrderID, identity fields copied over, transact time stamped.
func execReportFor(req *Message) *Message {
	r := New(MsgTypeExecutionReport)
	r.SetString(TagExecID, uuid.NewString())
	r.SetString(TagOrderID, "ORD-"+uuid.NewString()[:8])
	for _, tag := range []int{TagClOrdID, TagSymbol, TagSide, TagAccount, TagCurrency} {
		if v, ok := req.String(tag); ok {
			r.SetString(tag, v)
		}
	}
	r.SetTime(TagTransactTime, time.Now().UTC())
	return r
}

// AckFor builds the acknowledgement (exec type NEW) for an order request.
func AckFor(req *Message) *Message {
	r := execReportFor(req)
	r.SetChar(TagExecType, execTypeNew)
	r.SetChar(TagOrdStatus, execTypeNew)
	qty, _ := req.Int(TagOrderQty)
	r.SetInt(TagLeavesQty, qty)
	r.SetInt(TagCumQty, 0)
	return r
}

// FillFor builds a full fill at the request's own price and quantity.
func FillFor(req *Message) *Message {
	price, _ := req.Decimal(TagPrice)
	return FillAt(req, price)
}

// FillAt builds a full fill at the given price.
func FillAt(req *Message, price decimal.Decimal) *Message {
	r := execReportFor(req)
	qty, _ := req.Int(TagOrderQty)
	r.SetChar(TagExecType, execTypeFill)
	r.SetChar(TagOrdStatus, execTypeFill)
	r.SetDecimal(TagPrice, price)
	r.SetDecimal(TagLastPx, price)
	r.SetDecimal(TagAvgPx, price)
	r.SetInt(TagLastQty, qty)
	r.SetInt(TagCumQty, qty)
	r.SetInt(TagLeavesQty, 0)
	return r
}

// PartialFillFor builds a partial fill of fillQty shares at the request's
// price.
func PartialFillFor(req *Message, fillQty int64) *Message {
	r := execReportFor(req)
	qty, _ := req.Int(TagOrderQty)
	leaves := qty - fillQty
	if leaves < 0 {
		leaves = 0
	}
	price, _ := req.Decimal(TagPrice)
	r.SetChar(TagExecType, execTypePartialFill)
	r.SetChar(TagOrdStatus, execTypePartialFill)
	r.SetDecimal(TagPrice, price)
	r.SetDecimal(TagLastPx, price)
	r.SetDecimal(TagAvgPx, price)
	r.SetInt(TagLastQty, fillQty)
	r.SetInt(TagCumQty, fillQty)
	r.SetInt(TagLeavesQty, leaves)
	return r
}

// RejectionFor builds a rejection carrying the given reason text.
func RejectionFor(req *Message, text string) *Message {
	r := execReportFor(req)
	r.SetChar(TagExecType, execTypeRejected)
	r.SetChar(TagOrdStatus, execTypeRejected)
	r.SetString(TagText, text)
	return r
}
