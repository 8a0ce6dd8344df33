package venue

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/message"
)

// Acceptor is the venue-side endpoint. It tracks logged-on sessions, buffers
// every message it receives for later inspection by tests, and delegates
// response synthesis to the interceptor.
type Acceptor struct {
	interceptor *Interceptor
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]Session
	received []*message.Message
}

// NewAcceptor wraps an interceptor with session and traffic bookkeeping.
func NewAcceptor(i *Interceptor, log zerolog.Logger) *Acceptor {
	return &Acceptor{
		interceptor: i,
		log:         log.With().Str("component", "acceptor").Logger(),
		sessions:    make(map[string]Session),
	}
}

// Logon registers a session keyed by the counterparty id. Logging on twice
// with the same counterparty replaces the previous session.
func (a *Acceptor) Logon(s Session) {
	a.mu.Lock()
	a.sessions[s.RemoteID] = s
	a.mu.Unlock()
	a.log.Info().Str("remote", s.RemoteID).Str("local", s.LocalID).Msg("session logged on")
}

// Logout removes the session for the given counterparty, if present.
func (a *Acceptor) Logout(remoteID string) {
	a.mu.Lock()
	_, ok := a.sessions[remoteID]
	delete(a.sessions, remoteID)
	a.mu.Unlock()
	if ok {
		a.log.Info().Str("remote", remoteID).Msg("session logged out")
	}
}

// ActiveSessions returns the logged-on sessions sorted by counterparty id.
func (a *Acceptor) ActiveSessions() []Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

// Deliver records an inbound message and runs it through the interceptor.
func (a *Acceptor) Deliver(m *message.Message, s Session) (bool, error) {
	a.mu.Lock()
	a.received = append(a.received, m)
	a.mu.Unlock()
	return a.interceptor.OnMessage(m, s)
}

// Received returns a snapshot of every message delivered so far, in arrival
// order.
func (a *Acceptor) Received() []*message.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*message.Message, len(a.received))
	copy(out, a.received)
	return out
}

// ClearReceived empties the received-message buffer.
func (a *Acceptor) ClearReceived() {
	a.mu.Lock()
	a.received = nil
	a.mu.Unlock()
}
