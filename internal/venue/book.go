package venue

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/clock"
	"github.com/aristath/tradelab/internal/message"
)

// Fill is one execution the venue reported. Only fills and partial fills
// land in the book; acknowledgements and rejections never become positions.
type Fill struct {
	Key            string
	OrderID        string
	Symbol         string
	Account        string
	Currency       string
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	SettlementDate *time.Time
	At             time.Time
}

// Position is one aggregated holding as the portfolio API reports it.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
	Currency string          `json:"currency"`
}

// Book accumulates the executions the venue sends out. The portfolio and
// trade-status endpoints read positions and settlement state from it, so the
// venue's REST face always agrees with what crossed the wire.
type Book struct {
	clk clock.Clock
	log zerolog.Logger

	mu    sync.RWMutex
	fills []Fill
}

// NewBook creates an empty trade book stamping executions with clk.
func NewBook(clk clock.Clock, log zerolog.Logger) *Book {
	if clk == nil {
		clk = clock.System{}
	}
	return &Book{
		clk: clk,
		log: log.With().Str("component", "book").Logger(),
	}
}

// Observe inspects one outbound message and records it when it is a fill or
// partial fill. Everything else passes through untouched.
func (b *Book) Observe(m *message.Message) {
	if m == nil || m.MsgType() != message.MsgTypeExecutionReport {
		return
	}
	execType, ok := m.Char(message.TagExecType)
	if !ok || (execType != '1' && execType != '2') {
		return
	}

	f := Fill{At: b.clk.Now()}
	f.Key, _ = m.String(message.TagClOrdID)
	f.OrderID, _ = m.String(message.TagOrderID)
	f.Symbol, _ = m.String(message.TagSymbol)
	f.Account, _ = m.String(message.TagAccount)
	f.Currency, _ = m.String(message.TagCurrency)
	if qty, ok := m.Decimal(message.TagLastQty); ok {
		f.Quantity = qty
	} else if qty, ok := m.Decimal(message.TagCumQty); ok {
		f.Quantity = qty
	}
	if px, ok := m.Decimal(message.TagLastPx); ok {
		f.Price = px
	} else if px, ok := m.Decimal(message.TagAvgPx); ok {
		f.Price = px
	} else if px, ok := m.Decimal(message.TagPrice); ok {
		f.Price = px
	}
	if ts, ok := m.Time(message.TagSettlDate); ok {
		f.SettlementDate = &ts
	}

	b.mu.Lock()
	b.fills = append(b.fills, f)
	b.mu.Unlock()

	b.log.Debug().
		Str("key", f.Key).
		Str("symbol", f.Symbol).
		Str("qty", f.Quantity.String()).
		Msg("Execution recorded")
}

// Positions aggregates the account's fills per symbol: summed quantity and
// quantity-weighted average price. Symbols appear in first-fill order.
func (b *Book) Positions(account string) []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	type bucket struct {
		qty      decimal.Decimal
		notional decimal.Decimal
		currency string
	}
	var order []string
	buckets := make(map[string]*bucket)

	for _, f := range b.fills {
		if f.Account != account || f.Symbol == "" {
			continue
		}
		bk, ok := buckets[f.Symbol]
		if !ok {
			bk = &bucket{}
			buckets[f.Symbol] = bk
			order = append(order, f.Symbol)
		}
		bk.qty = bk.qty.Add(f.Quantity)
		bk.notional = bk.notional.Add(f.Price.Mul(f.Quantity))
		if bk.currency == "" {
			bk.currency = f.Currency
		}
	}

	positions := make([]Position, 0, len(order))
	for _, sym := range order {
		bk := buckets[sym]
		avg := decimal.Zero
		if !bk.qty.IsZero() {
			avg = bk.notional.DivRound(bk.qty, 8)
		}
		positions = append(positions, Position{
			Symbol:   sym,
			Quantity: bk.qty,
			AvgPrice: avg,
			Currency: bk.currency,
		})
	}
	return positions
}

// Trade returns the most recent fill whose request key or venue order id
// matches key.
func (b *Book) Trade(key string) (Fill, bool) {
	if key == "" {
		return Fill{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := len(b.fills) - 1; i >= 0; i-- {
		f := b.fills[i]
		if f.Key == key || f.OrderID == key {
			return f, true
		}
	}
	return Fill{}, false
}

// Size returns the number of recorded fills.
func (b *Book) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fills)
}

// Clear drops every recorded fill.
func (b *Book) Clear() {
	b.mu.Lock()
	b.fills = nil
	b.mu.Unlock()
}

// RecordingSink tees the interceptor's outbound traffic into a book before
// forwarding it. The execution happened whether or not delivery succeeds,
// so the book is updated first.
type RecordingSink struct {
	Next Sink
	Book *Book
}

// Send records the message and forwards it to the wrapped sink.
func (r RecordingSink) Send(m *message.Message, s Session) error {
	r.Book.Observe(m)
	return r.Next.Send(m, s)
}
