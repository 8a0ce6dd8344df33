// Package ledger reconciles trade records captured from three independent
// sources: the FIX session, the downstream message queue, and the REST API.
// A trade passes reconciliation when every field the sources share agrees,
// numerics within a configurable tolerance.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
)

// Source names where a record was captured.
type Source int

const (
	SourceFIX Source = iota
	SourceMQ
	SourceAPI
)

// String implements fmt.Stringer.
func (s Source) String() string {
	switch s {
	case SourceFIX:
		return "FIX"
	case SourceMQ:
		return "MQ"
	case SourceAPI:
		return "API"
	default:
		return "UNKNOWN"
	}
}

func (s Source) valid() bool {
	return s == SourceFIX || s == SourceMQ || s == SourceAPI
}

// Record is one captured view of a trade. Zero-valued fields mean the source
// did not report that field.
type Record struct {
	RequestKey     string
	OrderID        string
	Symbol         string
	Currency       string
	Account        string
	ExecType       string
	Price          decimal.NullDecimal
	Quantity       decimal.NullDecimal
	Amount         decimal.NullDecimal
	SettlementDate *time.Time
	Extra          map[string]string
}

// CorrelationKey returns the request key, falling back to the order id.
// Empty means the record cannot be correlated.
func (r Record) CorrelationKey() string {
	if r.RequestKey != "" {
		return r.RequestKey
	}
	return r.OrderID
}

// Num wraps a decimal literal for record construction. It panics on
// malformed input, so use it only with constants.
func Num(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// RecordFromMessage captures the FIX view of an execution report. Amount is
// derived as price times quantity when both are present.
func RecordFromMessage(m *message.Message) Record {
	rec := Record{}
	if v, ok := m.String(message.TagClOrdID); ok {
		rec.RequestKey = v
	}
	if v, ok := m.String(message.TagOrderID); ok {
		rec.OrderID = v
	}
	if v, ok := m.String(message.TagSymbol); ok {
		rec.Symbol = v
	}
	if v, ok := m.String(message.TagCurrency); ok {
		rec.Currency = v
	}
	if v, ok := m.String(message.TagAccount); ok {
		rec.Account = v
	}
	if c, ok := m.Char(message.TagExecType); ok {
		rec.ExecType = string(c)
	}
	if d, ok := m.Decimal(message.TagAvgPx); ok {
		rec.Price = decimal.NewNullDecimal(d)
	} else if d, ok := m.Decimal(message.TagLastPx); ok {
		rec.Price = decimal.NewNullDecimal(d)
	} else if d, ok := m.Decimal(message.TagPrice); ok {
		rec.Price = decimal.NewNullDecimal(d)
	}
	if d, ok := m.Decimal(message.TagCumQty); ok {
		rec.Quantity = decimal.NewNullDecimal(d)
	} else if d, ok := m.Decimal(message.TagOrderQty); ok {
		rec.Quantity = decimal.NewNullDecimal(d)
	}
	if rec.Price.Valid && rec.Quantity.Valid {
		rec.Amount = decimal.NewNullDecimal(rec.Price.Decimal.Mul(rec.Quantity.Decimal))
	}
	if ts, ok := m.Time(message.TagSettlDate); ok {
		rec.SettlementDate = &ts
	}
	return rec
}

// orderedRecords is a map that remembers first-insertion order of its keys.
// Re-inserting a key overwrites the record in place.
type orderedRecords struct {
	keys  []string
	byKey map[string]Record
}

func newOrderedRecords() *orderedRecords {
	return &orderedRecords{byKey: make(map[string]Record)}
}

func (o *orderedRecords) put(key string, rec Record) {
	if _, exists := o.byKey[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.byKey[key] = rec
}

func (o *orderedRecords) get(key string) (Record, bool) {
	rec, ok := o.byKey[key]
	return rec, ok
}

const (
	defaultFigures = 8
	// defaultTolerance is 1e-4, expressed exactly.
	defaultToleranceStr = "0.0001"
)

// Ledger holds the three source maps and the comparison settings.
type Ledger struct {
	mu  sync.RWMutex
	fix *orderedRecords
	mq  *orderedRecords
	api *orderedRecords

	figures   int32
	tolerance decimal.Decimal
	log       zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPrecision sets the significant figures numerics are rounded to before
// comparison.
func WithPrecision(figures int32) Option {
	return func(l *Ledger) { l.figures = figures }
}

// WithTolerance sets the absolute tolerance for numeric comparisons.
func WithTolerance(tol float64) Option {
	return func(l *Ledger) { l.tolerance = decimal.NewFromFloat(tol) }
}

// New builds an empty ledger with 8 significant figures and a 1e-4
// tolerance.
func New(log zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		fix:       newOrderedRecords(),
		mq:        newOrderedRecords(),
		api:       newOrderedRecords(),
		figures:   defaultFigures,
		tolerance: decimal.RequireFromString(defaultToleranceStr),
		log:       log.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) source(src Source) *orderedRecords {
	switch src {
	case SourceFIX:
		return l.fix
	case SourceMQ:
		return l.mq
	default:
		return l.api
	}
}

// AddRecord stores a record under its correlation key. A repeat key within
// the same source overwrites, keeping the original position.
func (l *Ledger) AddRecord(src Source, rec Record) error {
	if !src.valid() {
		return fmt.Errorf("unknown record source %d: %w", int(src), errs.ErrInvalidParameter)
	}
	key := rec.CorrelationKey()
	if key == "" {
		return fmt.Errorf("record for symbol %q has neither request key nor order id: %w",
			rec.Symbol, errs.ErrMissingCorrelationKey)
	}
	l.mu.Lock()
	l.source(src).put(key, rec)
	l.mu.Unlock()
	l.log.Debug().Str("source", src.String()).Str("key", key).Str("symbol", rec.Symbol).Msg("record added")
	return nil
}

// Reconcile compares the records stored under key across the three sources.
// The comparison sees a consistent snapshot of the key even while other
// goroutines keep adding records.
func (l *Ledger) Reconcile(key string) Result {
	l.mu.RLock()
	snap := l.snapshot(key)
	figures, tolerance := l.figures, l.tolerance
	l.mu.RUnlock()
	return compare(key, snap, figures, tolerance)
}

// ReconcileAll reconciles every known key, enumerated in insertion order
// across FIX, then MQ, then API.
func (l *Ledger) ReconcileAll() []Result {
	l.mu.RLock()
	seen := make(map[string]bool)
	var keys []string
	for _, src := range []*orderedRecords{l.fix, l.mq, l.api} {
		for _, k := range src.keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	snaps := make([]keySnapshot, len(keys))
	for i, k := range keys {
		snaps[i] = l.snapshot(k)
	}
	figures, tolerance := l.figures, l.tolerance
	l.mu.RUnlock()

	results := make([]Result, len(keys))
	for i, k := range keys {
		results[i] = compare(k, snaps[i], figures, tolerance)
	}
	return results
}

// VerifyRejectionHandled reports whether the FIX source saw a rejected
// execution for the symbol.
func (l *Ledger) VerifyRejectionHandled(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, k := range l.fix.keys {
		rec := l.fix.byKey[k]
		if rec.Symbol == symbol && rec.ExecType == "8" {
			return true
		}
	}
	return false
}

// Size returns the total number of records across all sources.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fix.keys) + len(l.mq.keys) + len(l.api.keys)
}

// Clear drops every record from every source.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.fix = newOrderedRecords()
	l.mq = newOrderedRecords()
	l.api = newOrderedRecords()
	l.mu.Unlock()
	l.log.Debug().Msg("ledger cleared")
}

// keySnapshot is the three views of one key, captured under the read lock.
type keySnapshot struct {
	recs    [3]Record
	present [3]bool
}

// snapshot must be called with l.mu held.
func (l *Ledger) snapshot(key string) keySnapshot {
	var s keySnapshot
	s.recs[0], s.present[0] = l.fix.get(key)
	s.recs[1], s.present[1] = l.mq.get(key)
	s.recs[2], s.present[2] = l.api.get(key)
	return s
}
