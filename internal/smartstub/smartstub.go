// Package smartstub renders canned ISO 20022-style payment responses from
// embedded templates. It serves bus-side scenarios where the counterparty
// answers with a payment or settlement document instead of an execution
// report.
package smartstub

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/clock"
	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/pkg/embedded"
)

// Params fills a response template. Fields a given message type does not
// use render empty. The struct is comparable so the response cache can
// detect repeat requests.
type Params struct {
	MsgID          string
	TxID           string
	EndToEndID     string
	StatementID    string
	Account        string
	Symbol         string
	Currency       string
	Amount         string
	Quantity       string
	Debtor         string
	Creditor       string
	TradeDate      string
	SettlementDate string
	CreatedAt      string
}

type cachedResponse struct {
	// params as requested, before defaults were minted, so a repeat of the
	// same request hits the cache even though ids were generated.
	params Params
	body   string
}

// Stub renders responses by message type ("pacs.008", "camt.053",
// "sese.023"). Repeated requests with identical params return the cached
// body, minted ids included, so a scenario observes one stable document per
// message type.
type Stub struct {
	templates map[string]*template.Template
	clk       clock.Clock
	log       zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedResponse
}

// New parses the embedded templates and returns a ready stub.
func New(clk clock.Clock, log zerolog.Logger) (*Stub, error) {
	root, err := template.ParseFS(embedded.Files, "templates/*.xml")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}

	templates := make(map[string]*template.Template)
	for _, t := range root.Templates() {
		name := strings.TrimSuffix(t.Name(), ".xml")
		templates[name] = t
	}

	return &Stub{
		templates: templates,
		clk:       clk,
		log:       log.With().Str("component", "smartstub").Logger(),
		cache:     make(map[string]cachedResponse),
	}, nil
}

// Types returns the supported message types, sorted.
func (s *Stub) Types() []string {
	out := make([]string, 0, len(s.templates))
	for name := range s.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Respond returns the response document for the message type. The first
// request renders the template; repeats with identical params are served
// from the cache.
func (s *Stub) Respond(msgType string, p Params) (string, error) {
	tmpl, ok := s.templates[msgType]
	if !ok {
		return "", fmt.Errorf("message type %q: %w", msgType, errs.ErrInvalidParameter)
	}

	s.mu.Lock()
	if hit, ok := s.cache[msgType]; ok && hit.params == p {
		s.mu.Unlock()
		s.log.Debug().Str("type", msgType).Msg("Serving cached response")
		return hit.body, nil
	}
	s.mu.Unlock()

	var buf strings.Builder
	if err := tmpl.Execute(&buf, s.withDefaults(p)); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", msgType, err)
	}
	body := buf.String()

	s.mu.Lock()
	s.cache[msgType] = cachedResponse{params: p, body: body}
	s.mu.Unlock()

	s.log.Debug().Str("type", msgType).Int("bytes", len(body)).Msg("Response rendered")
	return body, nil
}

// Reset drops the response cache so the next request of each type renders
// fresh ids.
func (s *Stub) Reset() {
	s.mu.Lock()
	n := len(s.cache)
	s.cache = make(map[string]cachedResponse)
	s.mu.Unlock()
	s.log.Debug().Int("entries", n).Msg("Response cache cleared")
}

func (s *Stub) withDefaults(p Params) Params {
	now := s.clk.Now()
	if p.MsgID == "" {
		p.MsgID = uuid.NewString()
	}
	if p.TxID == "" {
		p.TxID = uuid.NewString()
	}
	if p.EndToEndID == "" {
		p.EndToEndID = p.TxID
	}
	if p.StatementID == "" {
		p.StatementID = p.MsgID
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.CreatedAt == "" {
		p.CreatedAt = now.Format(time.RFC3339)
	}
	if p.TradeDate == "" {
		p.TradeDate = now.Format("2006-01-02")
	}
	if p.SettlementDate == "" {
		p.SettlementDate = p.TradeDate
	}
	return p
}
