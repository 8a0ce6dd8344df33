// Package synth generates statistically plausible market data for test
// scenarios: Gaussian prices, Poisson volumes, serially correlated price
// series, settlement dates, and unique request identifiers.
package synth

import (
	"fmt"
	"math"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/tradelab/internal/calendar"
	"github.com/aristath/tradelab/internal/clock"
	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/num"
)

// priceSigFigs is the precision every generated price is rounded to.
const priceSigFigs = 10

// defaultKeyPrefix namespaces generated request keys.
const defaultKeyPrefix = "TRADELAB"

// marketOpenMinutes and marketSpanSeconds bound the 09:30-16:00 trading
// window used by MarketHoursTimestamp.
const (
	marketOpenMinutes = 9*60 + 30
	marketSpanSeconds = 6*3600 + 30*60
)

// lockedSource makes a PCG stream safe for concurrent callers.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// Generator is a thread-safe source of synthetic market data. The zero seed
// uses the shared process-wide random source; WithSeed pins a reproducible
// stream for tests.
type Generator struct {
	cal    *calendar.Calendar
	clk    clock.Clock
	prefix string

	src rand.Source // nil means the shared global source
	rng *rand.Rand  // nil means the global top-level functions

	mu      sync.Mutex
	lastKey string
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed pins the random stream for reproducible output.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		src := &lockedSource{src: rand.NewPCG(seed, seed+1)}
		g.src = src
		g.rng = rand.New(src)
	}
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(g *Generator) { g.clk = c }
}

// WithKeyPrefix overrides the request-key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(g *Generator) { g.prefix = prefix }
}

// New creates a generator bound to the given business calendar.
func New(cal *calendar.Calendar, opts ...Option) *Generator {
	g := &Generator{
		cal:    cal,
		clk:    clock.System{},
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) intN(n int) int {
	if g.rng != nil {
		return g.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Price samples a Normal(mean, stdDev) price and returns its absolute value
// rounded to 10 significant figures. stdDev zero returns |mean| exactly.
func (g *Generator) Price(mean, stdDev float64) (decimal.Decimal, error) {
	if stdDev < 0 {
		return decimal.Zero, fmt.Errorf("price: stdDev must be >= 0, got %v: %w", stdDev, errs.ErrInvalidParameter)
	}
	if stdDev == 0 {
		return num.RoundSignificant(decimal.NewFromFloat(math.Abs(mean)), priceSigFigs), nil
	}
	dist := distuv.Normal{Mu: mean, Sigma: stdDev, Src: g.src}
	for i := 0; i < 16; i++ {
		p := num.RoundSignificant(decimal.NewFromFloat(math.Abs(dist.Rand())), priceSigFigs)
		if p.IsPositive() {
			return p, nil
		}
	}
	// A venue never quotes zero.
	if mean != 0 {
		return num.RoundSignificant(decimal.NewFromFloat(math.Abs(mean)), priceSigFigs), nil
	}
	return decimal.New(1, -2), nil
}

// Volume samples a Poisson(lambda) share count clamped to at least 1.
func (g *Generator) Volume(lambda float64) (int64, error) {
	if lambda <= 0 {
		return 0, fmt.Errorf("volume: lambda must be > 0, got %v: %w", lambda, errs.ErrInvalidParameter)
	}
	dist := distuv.Poisson{Lambda: lambda, Src: g.src}
	v := int64(dist.Rand())
	if v < 1 {
		v = 1
	}
	return v, nil
}

// CorrelatedPrices produces n prices whose underlying normal draws follow an
// AR(1) process with coefficient rho: the first draw is N(0,1) and each
// subsequent one is rho*prev + sqrt(1-rho^2)*eps.
func (g *Generator) CorrelatedPrices(mean, stdDev, rho float64, n int) ([]decimal.Decimal, error) {
	if stdDev < 0 {
		return nil, fmt.Errorf("correlated prices: stdDev must be >= 0, got %v: %w", stdDev, errs.ErrInvalidParameter)
	}
	if rho < -1 || rho > 1 {
		return nil, fmt.Errorf("correlated prices: rho must be in [-1, 1], got %v: %w", rho, errs.ErrInvalidParameter)
	}
	if n <= 0 {
		return nil, fmt.Errorf("correlated prices: n must be > 0, got %d: %w", n, errs.ErrInvalidParameter)
	}

	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: g.src}
	noise := math.Sqrt(1 - rho*rho)

	prices := make([]decimal.Decimal, n)
	var z float64
	for i := 0; i < n; i++ {
		if i == 0 {
			z = unit.Rand()
		} else {
			z = rho*z + noise*unit.Rand()
		}
		p := num.RoundSignificant(decimal.NewFromFloat(math.Abs(mean+stdDev*z)), priceSigFigs)
		if p.IsZero() {
			p = decimal.New(1, -2)
		}
		prices[i] = p
	}
	return prices, nil
}

// SettlementDate returns today advanced by the cycle's business days on the
// generator's calendar.
func (g *Generator) SettlementDate(cycle calendar.SettlementCycle) (time.Time, error) {
	return g.cal.AddBusinessDays(g.clk.Now(), cycle.Days())
}

// MarketHoursTimestamp returns a uniformly random second within today's
// 09:30-16:00 trading window.
func (g *Generator) MarketHoursTimestamp() time.Time {
	now := g.clk.Now()
	y, m, d := now.Date()
	open := time.Date(y, m, d, 0, marketOpenMinutes, 0, 0, now.Location())
	return open.Add(time.Duration(g.intN(marketSpanSeconds)) * time.Second)
}

// NewRequestKey mints a "{prefix}-{ms-since-epoch}-{4 digits}" identifier.
// Two consecutive calls never return the same key, even within one
// millisecond.
func (g *Generator) NewRequestKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		key := fmt.Sprintf("%s-%d-%04d", g.prefix, g.clk.Now().UnixMilli(), g.intN(10000))
		if key != g.lastKey {
			g.lastKey = key
			return key
		}
	}
}

// AccountID mints a "{prefix}-{8 digits}" account identifier.
func (g *Generator) AccountID(prefix string) string {
	return fmt.Sprintf("%s-%08d", prefix, g.intN(100000000))
}
