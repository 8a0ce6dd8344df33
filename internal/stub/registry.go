// Package stub implements the programmable rule set that drives the
// synthetic venue: ordered predicate rules, multi-shot response sequences
// with a sticky terminal generator, timed delays, and labels for reporting.
package stub

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
)

// Predicate decides whether a rule applies to an inbound message.
type Predicate func(*message.Message) bool

// Generator synthesises the venue response for a matched message.
type Generator func(*message.Message) *message.Message

// Rule is one registered stub: a predicate, an ordered response sequence,
// an optional delay, and a label. Rules are safe for concurrent use.
type Rule struct {
	pred  Predicate
	gens  []Generator
	delay time.Duration
	label string
	log   zerolog.Logger

	mu    sync.Mutex
	calls int64
	next  int
}

// Matches evaluates the predicate. A panicking predicate is treated as "no
// match" so one malformed rule or message never aborts the registry scan.
func (r *Rule) Matches(m *message.Message) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn().Str("rule", r.label).Interface("panic", rec).Msg("predicate panicked; treating as no match")
			matched = false
		}
	}()
	return r.pred(m)
}

// GenerateResponse invokes the rule's current response generator and
// advances the sequence. The index advances by one per invocation and
// saturates at the last generator, which stays in effect for every later
// call. Selection and the call count are atomic with respect to concurrent
// invocations.
func (r *Rule) GenerateResponse(m *message.Message) *message.Message {
	r.mu.Lock()
	idx := r.next
	if r.next < len(r.gens)-1 {
		r.next++
	}
	r.calls++
	gen := r.gens[idx]
	r.mu.Unlock()
	return gen(m)
}

// CallCount returns how many times GenerateResponse has run.
func (r *Rule) CallCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Delay returns the configured response delay.
func (r *Rule) Delay() time.Duration { return r.delay }

// Label returns the rule's description.
func (r *Rule) Label() string { return r.label }

// Registry is an ordered, thread-safe collection of stub rules. Matching
// scans rules in registration order; readers iterate a snapshot, so a
// concurrent Reset or Register never disturbs a scan already in flight.
type Registry struct {
	mu    sync.RWMutex
	rules []*Rule
	log   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log: log.With().Str("component", "stub_registry").Logger(),
	}
}

// When starts a rule registration for messages the predicate accepts.
func (r *Registry) When(pred Predicate) *RuleBuilder {
	return &RuleBuilder{reg: r, pred: pred}
}

// FindMatch returns the first rule, in registration order, whose predicate
// accepts the message.
func (r *Registry) FindMatch(m *message.Message) (*Rule, bool) {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	for _, rule := range rules {
		if rule.Matches(m) {
			return rule, true
		}
	}
	return nil, false
}

// Reset empties the rule list. A scan that began before the reset may still
// return a previously matched rule.
func (r *Registry) Reset() {
	r.mu.Lock()
	n := len(r.rules)
	r.rules = nil
	r.mu.Unlock()
	r.log.Debug().Int("rules", n).Msg("registry reset")
}

// Size returns the current rule count.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Mappings returns a snapshot copy of the registered rules.
func (r *Registry) Mappings() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

func (r *Registry) append(rule *Rule) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	return len(r.rules)
}

// RuleBuilder collects the parts of a rule before registration.
type RuleBuilder struct {
	reg   *Registry
	pred  Predicate
	gens  []Generator
	delay time.Duration
	label string
}

// RespondWith appends a response generator to the sequence.
func (b *RuleBuilder) RespondWith(gen Generator) *RuleBuilder {
	b.gens = append(b.gens, gen)
	return b
}

// ThenRespondWith appends a follow-up response generator. It reads better
// than RespondWith for the second and later entries of a sequence.
func (b *RuleBuilder) ThenRespondWith(gen Generator) *RuleBuilder {
	return b.RespondWith(gen)
}

// WithDelay holds each response back by d before it is sent.
func (b *RuleBuilder) WithDelay(d time.Duration) *RuleBuilder {
	b.delay = d
	return b
}

// DescribedAs labels the rule for logs and reports.
func (b *RuleBuilder) DescribedAs(label string) *RuleBuilder {
	b.label = label
	return b
}

// Register validates the rule and appends it to the registry. The rule
// becomes visible to FindMatch calls that start after registration.
func (b *RuleBuilder) Register() (*Rule, error) {
	if len(b.gens) == 0 {
		return nil, fmt.Errorf("rule %q: %w", b.label, errs.ErrEmptyResponseSequence)
	}
	if b.delay < 0 {
		return nil, fmt.Errorf("rule %q: delay must be >= 0, got %v: %w", b.label, b.delay, errs.ErrInvalidParameter)
	}
	rule := &Rule{
		pred:  b.pred,
		gens:  b.gens,
		delay: b.delay,
		label: b.label,
		log:   b.reg.log,
	}
	pos := b.reg.append(rule)
	b.reg.log.Debug().Str("rule", rule.label).Int("position", pos).Int("responses", len(rule.gens)).Msg("rule registered")
	return rule, nil
}
