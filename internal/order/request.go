package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
)

// Request is an immutable order request. Build one with New(...).Build().
type Request struct {
	symbol      string
	side        Side
	typ         Type
	price       decimal.Decimal
	hasPrice    bool
	quantity    int64
	tif         TimeInForce
	account     string
	key         string
	currency    string
	expected    ExecType
	hasExpected bool
}

// Symbol returns the instrument symbol.
func (r Request) Symbol() string { return r.symbol }

// Side returns the order side.
func (r Request) Side() Side { return r.side }

// Type returns the order type.
func (r Request) Type() Type { return r.typ }

// Price returns the limit or stop price when one was set.
func (r Request) Price() (decimal.Decimal, bool) { return r.price, r.hasPrice }

// Quantity returns the share quantity.
func (r Request) Quantity() int64 { return r.quantity }

// TimeInForce returns the lifetime policy.
func (r Request) TimeInForce() TimeInForce { return r.tif }

// Account returns the account, or "" when unset.
func (r Request) Account() string { return r.account }

// Key returns the client-assigned request key, or "" when unset.
func (r Request) Key() string { return r.key }

// Currency returns the currency.
func (r Request) Currency() string { return r.currency }

// Expected returns the expected venue outcome when one was declared.
func (r Request) Expected() (ExecType, bool) { return r.expected, r.hasExpected }

// ToMessage renders the request as a new-order message.
func (r Request) ToMessage() *message.Message {
	m := message.New(message.MsgTypeNewOrderSingle).
		SetString(message.TagSymbol, r.symbol).
		SetChar(message.TagSide, r.side.Char()).
		SetChar(message.TagOrdType, r.typ.Char()).
		SetInt(message.TagOrderQty, r.quantity).
		SetChar(message.TagTimeInForce, r.tif.Char()).
		SetString(message.TagCurrency, r.currency)
	if r.key != "" {
		m.SetString(message.TagClOrdID, r.key)
	}
	if r.hasPrice {
		m.SetDecimal(message.TagPrice, r.price)
	}
	if r.account != "" {
		m.SetString(message.TagAccount, r.account)
	}
	return m
}

// Builder assembles a Request. The symbol is required up front; everything
// else has trading defaults (BUY, MARKET, 100 shares, DAY, USD).
type Builder struct {
	req Request
}

// New starts a builder for the given symbol.
func New(symbol string) *Builder {
	return &Builder{req: Request{
		symbol:   symbol,
		side:     SideBuy,
		typ:      TypeMarket,
		quantity: 100,
		tif:      TIFDay,
		currency: "USD",
	}}
}

// Side sets the order side.
func (b *Builder) Side(s Side) *Builder {
	b.req.side = s
	return b
}

// Type sets the order type.
func (b *Builder) Type(t Type) *Builder {
	b.req.typ = t
	return b
}

// Price sets the limit or stop price.
func (b *Builder) Price(p decimal.Decimal) *Builder {
	b.req.price = p
	b.req.hasPrice = true
	return b
}

// Quantity sets the share quantity.
func (b *Builder) Quantity(q int64) *Builder {
	b.req.quantity = q
	return b
}

// TimeInForce sets the lifetime policy.
func (b *Builder) TimeInForce(t TimeInForce) *Builder {
	b.req.tif = t
	return b
}

// Account sets the account.
func (b *Builder) Account(a string) *Builder {
	b.req.account = a
	return b
}

// Key sets the client-assigned request key.
func (b *Builder) Key(k string) *Builder {
	b.req.key = k
	return b
}

// Currency sets the currency.
func (b *Builder) Currency(c string) *Builder {
	b.req.currency = c
	return b
}

// Expect declares the outcome the scenario expects from the venue.
func (b *Builder) Expect(e ExecType) *Builder {
	b.req.expected = e
	b.req.hasExpected = true
	return b
}

// Build validates and returns the immutable request.
func (b *Builder) Build() (Request, error) {
	r := b.req
	if r.symbol == "" {
		return Request{}, fmt.Errorf("order: symbol is required: %w", errs.ErrInvalidParameter)
	}
	if r.quantity <= 0 {
		return Request{}, fmt.Errorf("order: quantity must be positive, got %d: %w", r.quantity, errs.ErrInvalidParameter)
	}
	if !r.side.valid() || !r.typ.valid() || !r.tif.valid() {
		return Request{}, fmt.Errorf("order: unknown enum value: %w", errs.ErrInvalidParameter)
	}
	if r.typ.needsPrice() && !r.hasPrice {
		return Request{}, fmt.Errorf("order: %s requires a price: %w", r.typ, errs.ErrInvalidParameter)
	}
	if r.hasPrice && !r.price.IsPositive() {
		return Request{}, fmt.Errorf("order: price must be positive, got %s: %w", r.price, errs.ErrInvalidParameter)
	}
	if r.currency == "" {
		r.currency = "USD"
	}
	return r, nil
}

// MustBuild is Build for inputs known to be valid; it panics otherwise.
func (b *Builder) MustBuild() Request {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}
