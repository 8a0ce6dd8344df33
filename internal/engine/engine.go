// Package engine assembles the harness around one synthetic venue: the stub
// registry and interceptor behind both transports, a correlating client on an
// in-process session, the reconciliation ledger fed from each capture point,
// and the supporting services scenario code drives directly.
package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/bus"
	"github.com/aristath/tradelab/internal/calendar"
	"github.com/aristath/tradelab/internal/clock"
	"github.com/aristath/tradelab/internal/config"
	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/initiator"
	"github.com/aristath/tradelab/internal/ledger"
	"github.com/aristath/tradelab/internal/llm"
	"github.com/aristath/tradelab/internal/message"
	"github.com/aristath/tradelab/internal/smartstub"
	"github.com/aristath/tradelab/internal/stub"
	"github.com/aristath/tradelab/internal/synth"
	"github.com/aristath/tradelab/internal/translate"
	"github.com/aristath/tradelab/internal/transport"
	"github.com/aristath/tradelab/internal/venue"
)

// Bus destinations the engine serves.
const (
	// TradeDestination receives encoded execution reports published by
	// scenario code. The engine captures each one as the trade's MQ view in
	// the ledger.
	TradeDestination = "trades"

	// StubRequestDestination receives payment-document requests. The payload
	// is the bare message type ("pacs.008", "camt.053", "sese.023"); the
	// rendered document comes back on StubResponseDestination.
	StubRequestDestination  = "smartstub.requests"
	StubResponseDestination = "smartstub.responses"
)

// pumpInterval bounds how long a pump blocks on the bus before rechecking
// for shutdown.
const pumpInterval = 200 * time.Millisecond

// Engine owns one synthetic venue and everything wired to it. New assembles
// the components, Start opens the in-process session and the bus pumps, Stop
// tears it all down. The exported fields are set once by New and are safe
// for concurrent use; do not reassign them.
type Engine struct {
	Clock     clock.Clock
	Calendar  *calendar.Calendar
	Cycle     calendar.SettlementCycle
	Generator *synth.Generator

	Registry    *stub.Registry
	Book        *venue.Book
	Interceptor *venue.Interceptor
	Acceptor    *venue.Acceptor

	// Client is the built-in initiator, correlated over the in-process
	// loopback session. WS is the venue endpoint for counterparties that
	// connect over a real socket; mount it on the HTTP server.
	Client *initiator.Client
	WS     *transport.WSServer

	Ledger    *ledger.Ledger
	Bus       *bus.Bus
	SmartStub *smartstub.Stub
	Agent     *translate.Agent

	cfg *config.Config
	log zerolog.Logger
	lb  *transport.Loopback

	provider    llm.Provider
	providerSet bool

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures an Engine before assembly.
type Option func(*Engine)

// WithClock pins the engine's time source. Tests pass a manual clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.Clock = c }
}

// WithProvider overrides the model provider derived from the configuration.
// Passing nil forces the deterministic translator.
func WithProvider(p llm.Provider) Option {
	return func(e *Engine) {
		e.provider = p
		e.providerSet = true
	}
}

// New assembles an engine from the configuration. Nothing runs until Start.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		Clock: clock.System{},
		cfg:   cfg,
		log:   log.With().Str("component", "engine").Logger(),
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.Calendar = calendar.Preset(cfg.Venue.Calendar)
	e.Cycle = cfg.SettlementCycle()
	e.Generator = synth.New(e.Calendar,
		synth.WithClock(e.Clock),
		synth.WithKeyPrefix(cfg.Venue.KeyPrefix),
	)

	e.Registry = stub.NewRegistry(log)
	e.Book = venue.NewBook(e.Clock, log)
	e.WS = transport.NewWSServer(cfg.Venue.CompID, log)
	e.lb = transport.NewLoopback(log)

	// Responses route back over whichever transport the session came in on,
	// and every outbound execution is recorded in the book on the way out.
	out := venue.RecordingSink{
		Next: routingSink{
			initiatorID: cfg.Venue.InitiatorCompID,
			loopback:    e.lb.Sink(),
			ws:          e.WS,
		},
		Book: e.Book,
	}
	e.Interceptor = venue.NewInterceptor(e.Registry, out, log)
	e.Acceptor = venue.NewAcceptor(e.Interceptor, log)
	e.lb.BindVenue(e.Acceptor)
	e.WS.BindVenue(e.Acceptor)

	e.Client = initiator.NewClient(e.lb, log)
	e.Ledger = ledger.New(log,
		ledger.WithPrecision(int32(cfg.Ledger.AmountPrecision)),
		ledger.WithTolerance(cfg.Ledger.Tolerance),
	)
	e.Bus = bus.New(log)

	st, err := smartstub.New(e.Clock, log)
	if err != nil {
		return nil, fmt.Errorf("build smart stub: %w", err)
	}
	e.SmartStub = st

	if !e.providerSet {
		e.provider = buildProvider(cfg, log)
	}
	e.Agent = translate.NewAgent(e.provider, log)
	if e.provider != nil {
		e.log.Info().Str("provider", e.provider.Name()).Str("model", e.provider.Model()).Msg("Translator provider configured")
	} else {
		e.log.Info().Msg("Translator running on deterministic rules")
	}

	// Every venue response crosses the wire codec before it reaches the
	// client. Execution reports are captured as the trade's FIX view before
	// the waiter is released, so a returned SendAndAwait guarantees the
	// ledger already holds the record.
	e.lb.OnInbound(func(m *message.Message) {
		if m.MsgType() == message.MsgTypeExecutionReport {
			if err := e.Ledger.AddRecord(ledger.SourceFIX, ledger.RecordFromMessage(m)); err != nil {
				e.log.Warn().Err(err).Msg("Execution report not captured")
			}
		}
		e.Client.Deliver(m)
	})

	return e, nil
}

// Start opens the loopback session and the bus pumps. An engine starts once.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started: %w", errs.ErrInvalidParameter)
	}
	e.started = true
	e.mu.Unlock()

	sess := venue.Session{LocalID: e.cfg.Venue.CompID, RemoteID: e.cfg.Venue.InitiatorCompID}
	if err := e.lb.Connect(sess); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}

	e.wg.Add(2)
	go e.pumpTrades()
	go e.pumpStubRequests()

	e.log.Info().Str("venue", sess.LocalID).Str("initiator", sess.RemoteID).Msg("Engine started")
	return nil
}

// Stop shuts the engine down. In-flight stub delays are aborted first so the
// transport can drain, then the pumps exit and the session closes. Safe to
// call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.Interceptor.Shutdown()
		e.wg.Wait()
		e.lb.Disconnect()
		e.log.Info().Msg("Engine stopped")
	})
}

// pumpTrades captures trade confirmations published on the bus as the MQ
// view of each trade.
func (e *Engine) pumpTrades() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		payload, err := e.Bus.Listen(TradeDestination, pumpInterval)
		if err != nil {
			continue
		}
		m, err := message.Decode(payload)
		if err != nil {
			e.log.Warn().Err(err).Msg("Dropping undecodable trade payload")
			continue
		}
		if err := e.Ledger.AddRecord(ledger.SourceMQ, ledger.RecordFromMessage(m)); err != nil {
			e.log.Warn().Err(err).Str("msgType", m.MsgType()).Msg("Trade payload not captured")
		}
	}
}

// pumpStubRequests serves payment-document requests from the smart stub.
func (e *Engine) pumpStubRequests() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		payload, err := e.Bus.Listen(StubRequestDestination, pumpInterval)
		if err != nil {
			continue
		}
		msgType := strings.TrimSpace(string(payload))
		body, err := e.SmartStub.Respond(msgType, smartstub.Params{})
		if err != nil {
			e.log.Warn().Err(err).Str("type", msgType).Msg("Stub request not served")
			continue
		}
		e.Bus.Publish(StubResponseDestination, []byte(body))
	}
}

// routingSink returns venue responses over the transport their session came
// in on: the loopback for the built-in initiator, the websocket server for
// everyone else.
type routingSink struct {
	initiatorID string
	loopback    venue.Sink
	ws          venue.Sink
}

func (s routingSink) Send(m *message.Message, sess venue.Session) error {
	if sess.RemoteID == s.initiatorID {
		return s.loopback.Send(m, sess)
	}
	return s.ws.Send(m, sess)
}

// buildProvider picks the model backend from the configuration. It returns
// nil when model calls are disabled, either explicitly or because the
// environment is CI.
func buildProvider(cfg *config.Config, log zerolog.Logger) llm.Provider {
	if !cfg.ModelAllowed() {
		return nil
	}
	switch cfg.AI.Provider {
	case "openai":
		return llm.NewOpenAI(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, log)
	default:
		return llm.NewOllama(cfg.AI.BaseURL, cfg.AI.Model, log)
	}
}
