// Package order defines the structured order request the harness builds,
// translates into, and sends through the initiator. Enumerations carry the
// protocol character codes the venues expect.
package order

import (
	"fmt"
	"strings"
)

// Side is the order side.
type Side int8

// Sides.
const (
	SideBuy Side = iota
	SideSell
	SideShortSell
)

// Char returns the protocol code for the side.
func (s Side) Char() byte {
	switch s {
	case SideSell:
		return '2'
	case SideShortSell:
		return '5'
	default:
		return '1'
	}
}

func (s Side) String() string {
	switch s {
	case SideSell:
		return "SELL"
	case SideShortSell:
		return "SHORT_SELL"
	default:
		return "BUY"
	}
}

func (s Side) valid() bool { return s >= SideBuy && s <= SideShortSell }

// Type is the order type.
type Type int8

// Order types.
const (
	TypeMarket Type = iota
	TypeLimit
	TypeStop
	TypeStopLimit
)

// Char returns the protocol code for the order type.
func (t Type) Char() byte {
	switch t {
	case TypeLimit:
		return '2'
	case TypeStop:
		return '3'
	case TypeStopLimit:
		return '4'
	default:
		return '1'
	}
}

func (t Type) String() string {
	switch t {
	case TypeLimit:
		return "LIMIT"
	case TypeStop:
		return "STOP"
	case TypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "MARKET"
	}
}

func (t Type) valid() bool { return t >= TypeMarket && t <= TypeStopLimit }

// needsPrice reports whether the type requires a limit or stop price.
func (t Type) needsPrice() bool { return t != TypeMarket }

// TimeInForce is the order's lifetime policy.
type TimeInForce int8

// Time-in-force values.
const (
	TIFDay TimeInForce = iota
	TIFGoodTillCancel
	TIFImmediateOrCancel
	TIFFillOrKill
	TIFGoodTillDate
	TIFAtClose
)

// Char returns the protocol code for the time in force.
func (t TimeInForce) Char() byte {
	switch t {
	case TIFGoodTillCancel:
		return '1'
	case TIFImmediateOrCancel:
		return '3'
	case TIFFillOrKill:
		return '4'
	case TIFGoodTillDate:
		return '6'
	case TIFAtClose:
		return '7'
	default:
		return '0'
	}
}

func (t TimeInForce) String() string {
	switch t {
	case TIFGoodTillCancel:
		return "GTC"
	case TIFImmediateOrCancel:
		return "IOC"
	case TIFFillOrKill:
		return "FOK"
	case TIFGoodTillDate:
		return "GTD"
	case TIFAtClose:
		return "AT_CLOSE"
	default:
		return "DAY"
	}
}

func (t TimeInForce) valid() bool { return t >= TIFDay && t <= TIFAtClose }

// ExecType is the execution report outcome.
type ExecType int8

// Execution outcomes.
const (
	ExecNew ExecType = iota
	ExecPartialFill
	ExecFill
	ExecCanceled
	ExecReplaced
	ExecPendingCancel
	ExecRejected
)

// Char returns the protocol code for the outcome.
func (e ExecType) Char() byte {
	switch e {
	case ExecPartialFill:
		return '1'
	case ExecFill:
		return '2'
	case ExecCanceled:
		return '4'
	case ExecReplaced:
		return '5'
	case ExecPendingCancel:
		return '6'
	case ExecRejected:
		return '8'
	default:
		return '0'
	}
}

func (e ExecType) String() string {
	switch e {
	case ExecPartialFill:
		return "PARTIAL_FILL"
	case ExecFill:
		return "FILL"
	case ExecCanceled:
		return "CANCELED"
	case ExecReplaced:
		return "REPLACED"
	case ExecPendingCancel:
		return "PENDING_CANCEL"
	case ExecRejected:
		return "REJECTED"
	default:
		return "NEW"
	}
}

// ParseSide maps a side name ("BUY", "SELL", "SHORT_SELL") to its value.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	case "SHORT_SELL", "SHORT":
		return SideShortSell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// ParseType maps an order type name to its value.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MARKET":
		return TypeMarket, nil
	case "LIMIT":
		return TypeLimit, nil
	case "STOP":
		return TypeStop, nil
	case "STOP_LIMIT":
		return TypeStopLimit, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

// ParseTimeInForce maps a time-in-force name to its value.
func ParseTimeInForce(s string) (TimeInForce, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DAY":
		return TIFDay, nil
	case "GTC":
		return TIFGoodTillCancel, nil
	case "IOC":
		return TIFImmediateOrCancel, nil
	case "FOK":
		return TIFFillOrKill, nil
	case "GTD":
		return TIFGoodTillDate, nil
	case "AT_CLOSE", "MOC":
		return TIFAtClose, nil
	default:
		return 0, fmt.Errorf("unknown time in force %q", s)
	}
}

// ParseExecType maps a protocol code back to the outcome.
func ParseExecType(c byte) (ExecType, error) {
	switch c {
	case '0':
		return ExecNew, nil
	case '1':
		return ExecPartialFill, nil
	case '2':
		return ExecFill, nil
	case '4':
		return ExecCanceled, nil
	case '5':
		return ExecReplaced, nil
	case '6':
		return ExecPendingCancel, nil
	case '8':
		return ExecRejected, nil
	default:
		return 0, fmt.Errorf("unknown exec type %q", string(c))
	}
}
