// Package venue implements the acceptor side of the harness: the interceptor
// that answers inbound order messages from the stub registry, and the
// acceptor wrapper that tracks sessions and received traffic.
package venue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
	"github.com/aristath/tradelab/internal/stub"
)

// Session identifies one logical connection: the venue's own comp id and the
// counterparty's.
type Session struct {
	LocalID  string
	RemoteID string
}

// Sink delivers synthesized responses back to the counterparty.
type Sink interface {
	Send(m *message.Message, s Session) error
}

// Interceptor consumes inbound venue-side messages, finds the first matching
// stub rule, applies the rule's delay, synthesises the response, normalises
// its routing headers, propagates correlation fields, and hands it to the
// transport sink.
type Interceptor struct {
	registry *stub.Registry
	sink     Sink
	corrTags []int
	log      zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithCorrelationTags overrides the tags copied from request to response.
// The default copies the client order id.
func WithCorrelationTags(tags ...int) InterceptorOption {
	return func(i *Interceptor) { i.corrTags = tags }
}

// NewInterceptor wires a registry to a transport sink.
func NewInterceptor(registry *stub.Registry, sink Sink, log zerolog.Logger, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		registry: registry,
		sink:     sink,
		corrTags: []int{message.TagClOrdID},
		log:      log.With().Str("component", "interceptor").Logger(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// OnMessage processes one inbound message on the given session. It returns
// whether a rule claimed the message. Transport errors are logged and
// returned wrapped, never propagated as a crash; the interceptor remains
// usable afterwards.
func (i *Interceptor) OnMessage(m *message.Message, s Session) (bool, error) {
	rule, ok := i.registry.FindMatch(m)
	if !ok {
		i.log.Debug().Str("msg_type", m.MsgType()).Msg("no rule matched; message unhandled")
		return false, nil
	}

	if d := rule.Delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-i.stop:
			i.log.Info().Str("rule", rule.Label()).Msg("shut down during response delay; response dropped")
			return false, nil
		}
	}

	resp := rule.GenerateResponse(m)
	if resp == nil {
		i.log.Warn().Str("rule", rule.Label()).Msg("rule generated nil response")
		return false, nil
	}

	// Route the response back to the original sender.
	resp.SetSender(s.LocalID)
	resp.SetTarget(s.RemoteID)

	for _, tag := range i.corrTags {
		if v, ok := m.String(tag); ok {
			resp.SetString(tag, v)
		}
	}

	if err := i.sink.Send(resp, s); err != nil {
		i.log.Error().Err(err).Str("rule", rule.Label()).Msg("failed to send response")
		return true, fmt.Errorf("rule %q: %w: %w", rule.Label(), errs.ErrTransportFailure, err)
	}

	i.log.Debug().Str("rule", rule.Label()).Str("msg_type", resp.MsgType()).Msg("response sent")
	return true, nil
}

// Shutdown aborts any in-flight response delays. Safe to call more than
// once.
func (i *Interceptor) Shutdown() {
	i.stopOnce.Do(func() { close(i.stop) })
}
