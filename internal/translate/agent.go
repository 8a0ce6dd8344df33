package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/llm"
	"github.com/aristath/tradelab/internal/order"
)

// systemPrompt pins the model to a single strict JSON object so the output
// stays machine-parseable.
const systemPrompt = `You convert one English trading instruction into JSON. ` +
	`Respond with a single JSON object and nothing else, using exactly these keys: ` +
	`{"symbol": string, "side": "BUY"|"SELL", "type": "MARKET"|"LIMIT"|"STOP", ` +
	`"quantity": integer, "price": number, "timeInForce": "DAY"|"GTC"|"IOC"|"AT_CLOSE", ` +
	`"expect": "FILL"|"REJECTED"|""}. ` +
	`Use "UNKNOWN" when the symbol is unrecognised, 100 for a missing quantity and ` +
	`100.0 for a missing price.`

// Agent translates scenario text, preferring the configured provider and
// falling back to the deterministic rules whenever the provider is missing,
// unreachable, failing, or emits unparseable output. The fallback is
// invisible to callers.
type Agent struct {
	provider llm.Provider
	log      zerolog.Logger
}

// NewAgent builds a translating agent. A nil provider is valid and selects
// the deterministic path permanently.
func NewAgent(provider llm.Provider, log zerolog.Logger) *Agent {
	return &Agent{
		provider: provider,
		log:      log.With().Str("component", "translator").Logger(),
	}
}

// Translate converts text to an order request.
func (a *Agent) Translate(ctx context.Context, text string) (order.Request, error) {
	if a.provider == nil || !a.provider.Available(ctx) {
		return Translate(text)
	}
	raw, err := a.provider.Complete(ctx, systemPrompt, text)
	if err != nil {
		a.log.Warn().Err(err).Str("provider", a.provider.Name()).Msg("completion failed; using deterministic rules")
		return Translate(text)
	}
	req, err := parseModelOutput(raw)
	if err != nil {
		a.log.Warn().Err(err).Str("provider", a.provider.Name()).Msg("unparseable model output; using deterministic rules")
		return Translate(text)
	}
	return req, nil
}

type modelSlots struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Type        string  `json:"type"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	TimeInForce string  `json:"timeInForce"`
	Expect      string  `json:"expect"`
}

func parseModelOutput(raw string) (order.Request, error) {
	var slots modelSlots
	if err := json.Unmarshal([]byte(trimCodeFence(raw)), &slots); err != nil {
		return order.Request{}, fmt.Errorf("parse model output: %w", err)
	}
	if slots.Symbol == "" {
		return order.Request{}, fmt.Errorf("model output has no symbol")
	}

	side, err := order.ParseSide(orDefault(slots.Side, "BUY"))
	if err != nil {
		return order.Request{}, err
	}
	typ, err := order.ParseType(orDefault(slots.Type, "MARKET"))
	if err != nil {
		return order.Request{}, err
	}
	tif, err := order.ParseTimeInForce(orDefault(slots.TimeInForce, "DAY"))
	if err != nil {
		return order.Request{}, err
	}

	qty := slots.Quantity
	if qty == 0 {
		qty = defaultQuantity
	}

	b := order.New(slots.Symbol).Side(side).Type(typ).Quantity(qty).TimeInForce(tif)
	if typ != order.TypeMarket {
		price := slots.Price
		if price == 0 {
			price = 100.0
		}
		b = b.Price(decimal.NewFromFloat(price))
	}
	switch strings.ToUpper(strings.TrimSpace(slots.Expect)) {
	case "FILL":
		b = b.Expect(order.ExecFill)
	case "REJECTED":
		b = b.Expect(order.ExecRejected)
	}
	return b.Build()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// trimCodeFence strips the markdown fences models like to wrap JSON in.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
