package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/errs"
)

// Assertion is a chainable checker over one reconciliation result. Checks
// accumulate failures; Err reports them all at once.
type Assertion struct {
	result   Result
	failures []string
}

// Assert starts an assertion chain over a result.
func Assert(r Result) *Assertion {
	return &Assertion{result: r}
}

// Parity requires every verdict to match. The failure message lists each
// mismatched field with its three values.
func (a *Assertion) Parity() *Assertion {
	for _, v := range a.result.Failures() {
		a.fail(v)
	}
	return a
}

// AmountMatch re-checks the amount and price verdicts against the supplied
// tolerance, keeping the ledger's rounding precision.
func (a *Assertion) AmountMatch(tolerance float64) *Assertion {
	tol := decimal.NewFromFloat(tolerance)
	for _, field := range []string{"amount", "price"} {
		v, ok := a.result.Verdict(field)
		if !ok {
			continue
		}
		if !v.approxMatch(tol, a.result.figures) {
			a.fail(v)
		}
	}
	return a
}

// SettlementDateMatch requires the settlementDate verdict to match.
func (a *Assertion) SettlementDateMatch() *Assertion {
	return a.FieldMatch("settlementDate")
}

// FieldMatch requires the named verdict to match.
func (a *Assertion) FieldMatch(field string) *Assertion {
	v, ok := a.result.Verdict(field)
	if !ok {
		a.failures = append(a.failures,
			fmt.Sprintf("key %q has no verdict for field %q", a.result.Key, field))
		return a
	}
	if !v.Match {
		a.fail(v)
	}
	return a
}

// Failures returns the accumulated failure messages.
func (a *Assertion) Failures() []string {
	out := make([]string, len(a.failures))
	copy(out, a.failures)
	return out
}

// Err returns nil when every check passed, otherwise a single error carrying
// every failure message.
func (a *Assertion) Err() error {
	if len(a.failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", errs.ErrAssertionFailure, strings.Join(a.failures, "; "))
}

func (a *Assertion) fail(v Verdict) {
	a.failures = append(a.failures,
		fmt.Sprintf("key %q field %q: fix=%s mq=%s api=%s", a.result.Key, v.Field, v.Fix, v.MQ, v.API))
}
