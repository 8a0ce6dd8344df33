package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
	"github.com/aristath/tradelab/internal/venue"
)

// WSServer is the venue side of the websocket transport. Each connection is
// identified by the sender comp id of its first message; responses for a
// session are written back on that session's connection. WSServer is the
// venue sink, so it can be handed directly to the interceptor.
type WSServer struct {
	localID string
	log     zerolog.Logger

	mu       sync.Mutex
	acceptor *venue.Acceptor
	conns    map[string]*websocket.Conn
}

// NewWSServer creates a websocket venue endpoint. localID is the comp id
// the venue answers as. BindVenue must be called before the endpoint is
// mounted; the acceptor cannot be a constructor argument because its
// interceptor uses this server as its sink.
func NewWSServer(localID string, log zerolog.Logger) *WSServer {
	return &WSServer{
		localID: localID,
		log:     log.With().Str("component", "venue-ws").Logger(),
		conns:   make(map[string]*websocket.Conn),
	}
}

// BindVenue attaches the acceptor that inbound frames are delivered to.
func (s *WSServer) BindVenue(a *venue.Acceptor) {
	s.mu.Lock()
	s.acceptor = a
	s.mu.Unlock()
}

// Send routes a venue response to the connection holding the session.
func (s *WSServer) Send(m *message.Message, sess venue.Session) error {
	s.mu.Lock()
	conn, ok := s.conns[sess.RemoteID]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no connection for %q: %w", sess.RemoteID, errs.ErrNoSession)
	}

	frame, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("encode response: %w: %w", errs.ErrTransportFailure, err)
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("websocket send: %w: %w", errs.ErrTransportFailure, err)
	}
	return nil
}

// ServeHTTP upgrades the request and reads frames until the peer goes away.
// The handler blocks for the lifetime of the connection.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acceptor := s.acceptor
	s.mu.Unlock()
	if acceptor == nil {
		http.Error(w, "venue not ready", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("Websocket accept failed")
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	remoteID := ""
	defer func() {
		if remoteID != "" {
			s.dropSession(remoteID)
		}
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				s.log.Info().Str("remote", remoteID).Msg("Session closed by peer")
			} else if ctx.Err() == nil {
				s.log.Warn().Err(err).Str("remote", remoteID).Msg("Websocket read failed")
			}
			return
		}

		m, err := message.Decode(data)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to decode inbound frame")
			continue
		}

		if m.Sender() == "" {
			s.log.Warn().Str("msgType", m.MsgType()).Msg("Dropping message without sender comp id")
			continue
		}
		if remoteID == "" {
			remoteID = m.Sender()
			s.registerSession(remoteID, conn)
		}

		sess := venue.Session{LocalID: s.localID, RemoteID: remoteID}
		go func(m *message.Message) {
			if _, err := acceptor.Deliver(m, sess); err != nil {
				s.log.Error().Err(err).Str("msgType", m.MsgType()).Msg("Venue failed to handle message")
			}
		}(m)
	}
}

func (s *WSServer) registerSession(remoteID string, conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[remoteID] = conn
	acceptor := s.acceptor
	s.mu.Unlock()

	acceptor.Logon(venue.Session{LocalID: s.localID, RemoteID: remoteID})
	s.log.Info().Str("remote", remoteID).Msg("Session logged on")
}

func (s *WSServer) dropSession(remoteID string) {
	s.mu.Lock()
	delete(s.conns, remoteID)
	acceptor := s.acceptor
	s.mu.Unlock()

	acceptor.Logout(remoteID)
	s.log.Info().Str("remote", remoteID).Msg("Session logged out")
}
