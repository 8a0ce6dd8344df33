package message

// Field tags, numbered after the FIX dictionary the original venues speak.
const (
	TagAccount      = 1
	TagAvgPx        = 6
	TagClOrdID      = 11
	TagCumQty       = 14
	TagCurrency     = 15
	TagExecID       = 17
	TagLastPx       = 31
	TagLastQty      = 32
	TagMsgType      = 35
	TagOrderID      = 37
	TagOrderQty     = 38
	TagOrdStatus    = 39
	TagOrdType      = 40
	TagPrice        = 44
	TagSenderCompID = 49
	TagSendingTime  = 52
	TagSide         = 54
	TagSymbol       = 55
	TagTargetCompID = 56
	TagText         = 58
	TagTimeInForce  = 59
	TagTransactTime = 60
	TagSettlDate    = 64
	TagExecType     = 150
	TagLeavesQty    = 151
)

// Message types.
const (
	MsgTypeNewOrderSingle     = "D"
	MsgTypeExecutionReport    = "8"
	MsgTypeOrderCancelRequest = "F"
)
