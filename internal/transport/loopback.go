// Package transport carries encoded order messages between the initiator
// and the venue. The loopback flavour runs both ends in one process and is
// the default for harness runs; the websocket flavour crosses a real
// network boundary with the same framing.
package transport

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
	"github.com/aristath/tradelab/internal/venue"
)

// InboundHandler receives venue responses on the initiator side.
type InboundHandler func(m *message.Message)

// Loopback shuttles frames between an initiator client and a venue acceptor
// in process. Every message still crosses Encode/Decode, so the loopback
// exercises the exact wire path the websocket transport uses: a message that
// would not survive the codec fails here too.
type Loopback struct {
	log zerolog.Logger

	mu        sync.Mutex
	acceptor  *venue.Acceptor
	connected bool
	session   venue.Session
	inbound   InboundHandler

	wg sync.WaitGroup
}

// NewLoopback creates an unbound loopback transport. BindVenue must be
// called before Connect; the acceptor cannot be a constructor argument
// because its interceptor is built around this transport's Sink.
func NewLoopback(log zerolog.Logger) *Loopback {
	return &Loopback{
		log: log.With().Str("component", "loopback").Logger(),
	}
}

// BindVenue attaches the acceptor that inbound frames are delivered to.
func (l *Loopback) BindVenue(a *venue.Acceptor) {
	l.mu.Lock()
	l.acceptor = a
	l.mu.Unlock()
}

// OnInbound registers the handler that receives venue responses. It must be
// set before Connect; responses arriving with no handler bound are an error
// reported to the venue side.
func (l *Loopback) OnInbound(fn InboundHandler) {
	l.mu.Lock()
	l.inbound = fn
	l.mu.Unlock()
}

// Connect opens the session and logs it on with the acceptor. The session
// is given venue-side: LocalID is the venue comp id, RemoteID the client's.
func (l *Loopback) Connect(s venue.Session) error {
	l.mu.Lock()
	if l.acceptor == nil {
		l.mu.Unlock()
		return fmt.Errorf("loopback connect: %w: no venue bound", errs.ErrNoSession)
	}
	l.connected = true
	l.session = s
	acceptor := l.acceptor
	l.mu.Unlock()

	acceptor.Logon(s)
	l.log.Info().Str("local", s.LocalID).Str("remote", s.RemoteID).Msg("Session connected")
	return nil
}

// Disconnect drops the session after in-flight deliveries drain. Further
// sends in either direction fail with a session error.
func (l *Loopback) Disconnect() {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	l.connected = false
	s := l.session
	acceptor := l.acceptor
	l.mu.Unlock()

	l.wg.Wait()
	acceptor.Logout(s.RemoteID)
	l.log.Info().Str("remote", s.RemoteID).Msg("Session disconnected")
}

// Connected reports whether a session is open.
func (l *Loopback) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Send carries a client message to the venue. Delivery is asynchronous, as
// on a real wire: Send returns once the frame is encoded, and decode or
// handling failures surface in the log rather than to the caller.
func (l *Loopback) Send(m *message.Message) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return fmt.Errorf("loopback send: %w", errs.ErrNoSession)
	}
	s := l.session
	acceptor := l.acceptor
	l.mu.Unlock()

	frame, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("encode outbound: %w: %w", errs.ErrTransportFailure, err)
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		decoded, err := message.Decode(frame)
		if err != nil {
			l.log.Error().Err(err).Msg("Failed to decode frame at venue")
			return
		}
		if _, err := acceptor.Deliver(decoded, s); err != nil {
			l.log.Error().Err(err).Str("msgType", decoded.MsgType()).Msg("Venue failed to handle message")
		}
	}()
	return nil
}

// Sink returns the venue-side sink that routes responses back through the
// codec to the registered inbound handler.
func (l *Loopback) Sink() venue.Sink {
	return loopbackSink{l: l}
}

type loopbackSink struct {
	l *Loopback
}

func (s loopbackSink) Send(m *message.Message, _ venue.Session) error {
	return s.l.sendToClient(m)
}

func (l *Loopback) sendToClient(m *message.Message) error {
	l.mu.Lock()
	connected := l.connected
	inbound := l.inbound
	l.mu.Unlock()

	if !connected {
		return fmt.Errorf("loopback response: %w", errs.ErrNoSession)
	}
	if inbound == nil {
		return fmt.Errorf("loopback response: %w: no inbound handler bound", errs.ErrTransportFailure)
	}

	frame, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("encode response: %w: %w", errs.ErrTransportFailure, err)
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		decoded, err := message.Decode(frame)
		if err != nil {
			l.log.Error().Err(err).Msg("Failed to decode frame at initiator")
			return
		}
		inbound(decoded)
	}()
	return nil
}
