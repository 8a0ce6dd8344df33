package calendar

import "fmt"

// SettlementCycle is the number of business days between trade and
// settlement.
type SettlementCycle int

// Standard cycles.
const (
	T0 SettlementCycle = 0
	T1 SettlementCycle = 1
	T2 SettlementCycle = 2
)

// Days returns the business-day offset of the cycle.
func (s SettlementCycle) Days() int { return int(s) }

// String returns the conventional notation, e.g. "T+2".
func (s SettlementCycle) String() string { return fmt.Sprintf("T+%d", int(s)) }

// ParseSettlementCycle accepts "T0", "T+0", "T1", "T+1", "T2", "T+2".
func ParseSettlementCycle(s string) (SettlementCycle, error) {
	switch s {
	case "T0", "T+0":
		return T0, nil
	case "T1", "T+1":
		return T1, nil
	case "T2", "T+2":
		return T2, nil
	default:
		return 0, fmt.Errorf("unknown settlement cycle %q", s)
	}
}
