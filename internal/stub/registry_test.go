package stub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
	"github.com/aristath/tradelab/internal/order"
)

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func orderFor(symbol string) *message.Message {
	return order.New(symbol).Key("KEY-" + symbol).MustBuild().ToMessage()
}

func TestRegisterAndMatch(t *testing.T) {
	reg := newTestRegistry()

	rule, err := reg.When(SymbolIs("AAPL")).
		RespondWith(RejectWith("Fat-finger price check failed")).
		DescribedAs("AAPL fat finger").
		Register()
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Size())

	found, ok := reg.FindMatch(orderFor("AAPL"))
	require.True(t, ok)
	assert.Same(t, rule, found)

	_, ok = reg.FindMatch(orderFor("GOOG"))
	assert.False(t, ok)
}

func TestRegisterWithoutResponse(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.When(SymbolIs("AAPL")).DescribedAs("no responses").Register()
	assert.ErrorIs(t, err, errs.ErrEmptyResponseSequence)
	assert.Zero(t, reg.Size())
}

func TestNegativeDelayRejected(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.When(SymbolIs("AAPL")).
		RespondWith(Ack()).
		WithDelay(-time.Second).
		Register()
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestFirstMatchWinsInRegistrationOrder(t *testing.T) {
	reg := newTestRegistry()

	first, err := reg.When(SymbolIs("AAPL")).RespondWith(Ack()).DescribedAs("first").Register()
	require.NoError(t, err)
	_, err = reg.When(SymbolIs("AAPL")).RespondWith(RejectWith("later rule")).DescribedAs("second").Register()
	require.NoError(t, err)

	found, ok := reg.FindMatch(orderFor("AAPL"))
	require.True(t, ok)
	assert.Same(t, first, found)
	assert.Equal(t, "first", found.Label())
}

func TestPanickingPredicateIsNoMatch(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.When(func(m *message.Message) bool {
		panic("malformed message")
	}).RespondWith(Ack()).DescribedAs("panicky").Register()
	require.NoError(t, err)

	healthy, err := reg.When(SymbolIs("AAPL")).RespondWith(Fill()).DescribedAs("healthy").Register()
	require.NoError(t, err)

	// The panicking rule must not abort the scan; the later rule still wins.
	found, ok := reg.FindMatch(orderFor("AAPL"))
	require.True(t, ok)
	assert.Same(t, healthy, found)

	// The panicking rule stays registered.
	assert.Equal(t, 2, reg.Size())
}

func TestSequentialResponses(t *testing.T) {
	reg := newTestRegistry()

	rule, err := reg.When(SymbolIs("AAPL")).
		RespondWith(RejectWith("response-1")).
		ThenRespondWith(RejectWith("response-2")).
		Register()
	require.NoError(t, err)

	req := orderFor("AAPL")

	var texts []string
	for i := 0; i < 4; i++ {
		resp := rule.GenerateResponse(req)
		require.NotNil(t, resp)
		text, _ := resp.String(message.TagText)
		texts = append(texts, text)
	}

	// The terminal generator is sticky once the sequence is exhausted.
	assert.Equal(t, []string{"response-1", "response-2", "response-2", "response-2"}, texts)
	assert.Equal(t, int64(4), rule.CallCount())
}

func TestConcurrentGeneration(t *testing.T) {
	reg := newTestRegistry()

	var firstHits, secondHits atomic.Int64
	counting := func(hits *atomic.Int64) Generator {
		return func(req *message.Message) *message.Message {
			hits.Add(1)
			return message.AckFor(req)
		}
	}

	rule, err := reg.When(SymbolIs("AAPL")).
		RespondWith(counting(&firstHits)).
		ThenRespondWith(counting(&secondHits)).
		Register()
	require.NoError(t, err)

	const workers = 50
	req := orderFor("AAPL")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rule.GenerateResponse(req)
		}()
	}
	wg.Wait()

	// Every invocation advanced the sequence exactly once: the first
	// generator ran once, the sticky terminal took the rest.
	assert.Equal(t, int64(workers), rule.CallCount())
	assert.Equal(t, int64(1), firstHits.Load())
	assert.Equal(t, int64(workers-1), secondHits.Load())
}

func TestReset(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.When(SymbolIs("AAPL")).RespondWith(Ack()).Register()
	require.NoError(t, err)
	_, err = reg.When(SymbolIs("MSFT")).RespondWith(Ack()).Register()
	require.NoError(t, err)
	require.Equal(t, 2, reg.Size())

	reg.Reset()
	assert.Zero(t, reg.Size())

	_, ok := reg.FindMatch(orderFor("AAPL"))
	assert.False(t, ok)
}

func TestMappingsSnapshot(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.When(SymbolIs("AAPL")).RespondWith(Ack()).Register()
	require.NoError(t, err)

	snapshot := reg.Mappings()
	require.Len(t, snapshot, 1)

	_, err = reg.When(SymbolIs("MSFT")).RespondWith(Ack()).Register()
	require.NoError(t, err)

	// The earlier snapshot is unaffected by later registrations.
	assert.Len(t, snapshot, 1)
	assert.Len(t, reg.Mappings(), 2)
}

func TestConcurrentRegistrationAndMatching(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.When(SymbolIs("TSLA")).RespondWith(Ack()).DescribedAs("anchor").Register()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := reg.When(SymbolIs(fmt.Sprintf("SYM%d", n))).RespondWith(Ack()).Register()
			assert.NoError(t, err)
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			// The anchor rule is always visible regardless of concurrent
			// registrations.
			_, ok := reg.FindMatch(orderFor("TSLA"))
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.Equal(t, 21, reg.Size())
}

func TestCannedPredicates(t *testing.T) {
	buy := order.New("AAPL").Side(order.SideBuy).MustBuild().ToMessage()
	sell := order.New("AAPL").Side(order.SideSell).MustBuild().ToMessage()

	assert.True(t, SymbolIs("AAPL")(buy))
	assert.False(t, SymbolIs("MSFT")(buy))

	assert.True(t, MsgTypeIs(message.MsgTypeNewOrderSingle)(buy))
	assert.False(t, MsgTypeIs(message.MsgTypeExecutionReport)(buy))

	assert.True(t, SideIs(order.SideSell)(sell))
	assert.False(t, SideIs(order.SideSell)(buy))

	assert.True(t, And(SymbolIs("AAPL"), SideIs(order.SideBuy))(buy))
	assert.False(t, And(SymbolIs("AAPL"), SideIs(order.SideSell))(buy))
}

func TestFillAtPriceResponder(t *testing.T) {
	resp := FillAtPrice(decimal.RequireFromString("410.25"))(orderFor("MSFT"))

	execType, _ := resp.Char(message.TagExecType)
	assert.Equal(t, byte('2'), execType)

	price, _ := resp.Decimal(message.TagPrice)
	assert.True(t, price.Equal(decimal.RequireFromString("410.25")))

	key, _ := resp.String(message.TagClOrdID)
	assert.Equal(t, "KEY-MSFT", key)
}
