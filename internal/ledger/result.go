package ledger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/num"
)

// absent is how a missing value renders in verdicts and reports.
const absent = "N/A"

// Verdict is the comparison outcome of a single field across the three
// sources. Fix, MQ and API show the captured values, "N/A" when a source
// did not report the field.
type Verdict struct {
	Field string
	Fix   string
	MQ    string
	API   string
	Match bool

	numeric bool
	raw     [3]decimal.NullDecimal
}

// approxMatch re-evaluates a numeric verdict against a different tolerance.
// Non-numeric verdicts keep their original outcome.
func (v Verdict) approxMatch(tol decimal.Decimal, figures int32) bool {
	if !v.numeric {
		return v.Match
	}
	return pairsAgree(v.raw, func(a, b decimal.Decimal) bool {
		return num.ApproxEqual(a, b, tol, figures)
	})
}

// Result is the reconciliation outcome for one correlation key.
type Result struct {
	Key      string
	Verdicts []Verdict
	Passed   bool

	figures int32
}

// Verdict returns the named field's verdict.
func (r Result) Verdict(field string) (Verdict, bool) {
	for _, v := range r.Verdicts {
		if v.Field == field {
			return v, true
		}
	}
	return Verdict{}, false
}

// Failures returns the verdicts that did not match.
func (r Result) Failures() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if !v.Match {
			out = append(out, v)
		}
	}
	return out
}

// DetailedReport renders the result as a markdown table, one row per field.
func (r Result) DetailedReport() string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Reconciliation for %s: %s\n", r.Key, status)

	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithAlignment([]tw.Align{tw.AlignLeft, tw.AlignRight, tw.AlignRight, tw.AlignRight, tw.AlignLeft}),
	)
	table.Header([]string{"Field", "FIX", "MQ", "API", "Status"})
	for _, v := range r.Verdicts {
		row := "OK"
		if !v.Match {
			row = "MISMATCH"
		}
		table.Append([]string{v.Field, v.Fix, v.MQ, v.API, row})
	}
	table.Render()
	return buf.String()
}

// pairsAgree applies eq to every pair of present values and reports whether
// all pairs agree. Pairs with an absent side do not constrain the outcome.
func pairsAgree(vals [3]decimal.NullDecimal, eq func(a, b decimal.Decimal) bool) bool {
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if vals[i].Valid && vals[j].Valid && !eq(vals[i].Decimal, vals[j].Decimal) {
				return false
			}
		}
	}
	return true
}

// compare builds the verdict sequence for one key snapshot. Field order is
// fixed: price, quantity, amount, settlementDate, symbol, currency, account.
func compare(key string, snap keySnapshot, figures int32, tolerance decimal.Decimal) Result {
	verdicts := []Verdict{
		numericVerdict("price", snap, func(r Record) decimal.NullDecimal { return r.Price }, figures, tolerance),
		numericVerdict("quantity", snap, func(r Record) decimal.NullDecimal { return r.Quantity }, figures, tolerance),
		numericVerdict("amount", snap, func(r Record) decimal.NullDecimal { return r.Amount }, figures, tolerance),
		dateVerdict("settlementDate", snap),
		textVerdict("symbol", snap, func(r Record) string { return r.Symbol }),
		textVerdict("currency", snap, func(r Record) string { return r.Currency }),
		textVerdict("account", snap, func(r Record) string { return r.Account }),
	}
	passed := true
	for _, v := range verdicts {
		if !v.Match {
			passed = false
			break
		}
	}
	return Result{Key: key, Verdicts: verdicts, Passed: passed, figures: figures}
}

func numericVerdict(field string, snap keySnapshot, get func(Record) decimal.NullDecimal, figures int32, tolerance decimal.Decimal) Verdict {
	var vals [3]decimal.NullDecimal
	var display [3]string
	for i := 0; i < 3; i++ {
		display[i] = absent
		if !snap.present[i] {
			continue
		}
		if v := get(snap.recs[i]); v.Valid {
			vals[i] = v
			display[i] = v.Decimal.String()
		}
	}
	match := pairsAgree(vals, func(a, b decimal.Decimal) bool {
		return num.ApproxEqual(a, b, tolerance, figures)
	})
	return Verdict{
		Field: field, Fix: display[0], MQ: display[1], API: display[2],
		Match: match, numeric: true, raw: vals,
	}
}

func dateVerdict(field string, snap keySnapshot) Verdict {
	var dates [3]*time.Time
	var display [3]string
	for i := 0; i < 3; i++ {
		display[i] = absent
		if !snap.present[i] || snap.recs[i].SettlementDate == nil {
			continue
		}
		dates[i] = snap.recs[i].SettlementDate
		display[i] = dates[i].Format("2006-01-02")
	}
	match := true
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if dates[i] != nil && dates[j] != nil && !sameDate(*dates[i], *dates[j]) {
				match = false
			}
		}
	}
	return Verdict{Field: field, Fix: display[0], MQ: display[1], API: display[2], Match: match}
}

func textVerdict(field string, snap keySnapshot, get func(Record) string) Verdict {
	var vals [3]string
	var present [3]bool
	for i := 0; i < 3; i++ {
		vals[i] = absent
		if !snap.present[i] {
			continue
		}
		if v := get(snap.recs[i]); v != "" {
			vals[i] = v
			present[i] = true
		}
	}
	match := true
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if present[i] && present[j] && vals[i] != vals[j] {
				match = false
			}
		}
	}
	return Verdict{Field: field, Fix: vals[0], MQ: vals[1], API: vals[2], Match: match}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
