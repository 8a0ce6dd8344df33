package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
)

const (
	writeWait            = 10 * time.Second
	dialTimeout          = 10 * time.Second
	baseReconnectDelay   = 1 * time.Second
	maxReconnectDelay    = 30 * time.Second
	maxReconnectAttempts = 10
)

// createHTTP1Client returns an HTTP client that forces HTTP/1.1, which is
// required for websocket upgrades.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// WSClient is the initiator side of the websocket transport. Frames are
// msgpack-encoded messages carried as binary payloads. A dropped connection
// triggers reconnection with exponential backoff unless Stop was called.
type WSClient struct {
	url string
	log zerolog.Logger

	mu           sync.RWMutex
	conn         *websocket.Conn
	connCtx      context.Context
	cancelFunc   context.CancelFunc
	connected    bool
	reconnecting bool
	stopped      bool
	inbound      InboundHandler

	stopChan chan struct{}
}

// NewWSClient creates a websocket client for the given venue URL.
func NewWSClient(url string, log zerolog.Logger) *WSClient {
	return &WSClient{
		url:      url,
		log:      log.With().Str("client", "venue-ws").Logger(),
		stopChan: make(chan struct{}),
	}
}

// OnInbound registers the handler that receives venue responses. It must be
// set before Connect.
func (ws *WSClient) OnInbound(fn InboundHandler) {
	ws.mu.Lock()
	ws.inbound = fn
	ws.mu.Unlock()
}

// Connect dials the venue and starts the read loop. Calling Connect on an
// already connected client is a no-op.
func (ws *WSClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	if ws.connected {
		ws.mu.Unlock()
		return nil
	}
	ws.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ws.url, &websocket.DialOptions{
		HTTPClient: createHTTP1Client(),
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w: %w", ws.url, errs.ErrTransportFailure, err)
	}

	connCtx, cancelFunc := context.WithCancel(context.Background())

	ws.mu.Lock()
	ws.conn = conn
	ws.connCtx = connCtx
	ws.cancelFunc = cancelFunc
	ws.connected = true
	ws.mu.Unlock()

	go ws.readLoop(connCtx, conn)

	ws.log.Info().Str("url", ws.url).Msg("Websocket connected")
	return nil
}

// Disconnect closes the current connection without stopping the client.
func (ws *WSClient) Disconnect() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.connected {
		return
	}
	ws.connected = false

	if ws.cancelFunc != nil {
		ws.cancelFunc()
	}
	if ws.conn != nil {
		_ = ws.conn.Close(websocket.StatusNormalClosure, "")
		ws.conn = nil
	}
}

// Connected reports whether a connection is currently open.
func (ws *WSClient) Connected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.connected
}

// Send encodes a message and writes it as one binary frame.
func (ws *WSClient) Send(m *message.Message) error {
	ws.mu.RLock()
	conn := ws.conn
	connected := ws.connected
	ws.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("websocket send: %w", errs.ErrNoSession)
	}

	frame, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("encode outbound: %w: %w", errs.ErrTransportFailure, err)
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("websocket send: %w: %w", errs.ErrTransportFailure, err)
	}
	return nil
}

// Stop shuts the client down for good. No reconnection is attempted after
// Stop.
func (ws *WSClient) Stop() {
	ws.mu.Lock()
	if ws.stopped {
		ws.mu.Unlock()
		return
	}
	ws.stopped = true
	ws.mu.Unlock()

	close(ws.stopChan)
	ws.Disconnect()
}

func (ws *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		ws.mu.Lock()
		ws.connected = false
		stopped := ws.stopped
		ws.mu.Unlock()

		if !stopped {
			go ws.reconnectLoop()
		}
	}()

	for {
		select {
		case <-ws.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				ws.log.Info().Msg("Websocket closed by venue")
			} else if ctx.Err() == nil {
				ws.log.Warn().Err(err).Msg("Websocket read failed")
			}
			return
		}

		if err := ws.handleFrame(data); err != nil {
			ws.log.Error().Err(err).Msg("Failed to handle inbound frame")
			continue
		}
	}
}

func (ws *WSClient) handleFrame(data []byte) error {
	m, err := message.Decode(data)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	ws.mu.RLock()
	inbound := ws.inbound
	ws.mu.RUnlock()

	if inbound == nil {
		return fmt.Errorf("no inbound handler bound")
	}
	inbound(m)
	return nil
}

func (ws *WSClient) reconnectLoop() {
	ws.mu.Lock()
	if ws.reconnecting || ws.stopped {
		ws.mu.Unlock()
		return
	}
	ws.reconnecting = true
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		ws.reconnecting = false
		ws.mu.Unlock()
	}()

	attempt := 0
	for {
		ws.mu.RLock()
		stopped := ws.stopped
		ws.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		if attempt > maxReconnectAttempts {
			ws.log.Error().Int("attempts", maxReconnectAttempts).Msg("Giving up on websocket reconnection")
			return
		}

		delay := calculateBackoff(attempt)
		ws.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting websocket")

		select {
		case <-ws.stopChan:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		err := ws.Connect(ctx)
		cancel()

		if err != nil {
			ws.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnection attempt failed")
			continue
		}

		ws.log.Info().Int("attempt", attempt).Msg("Websocket reconnected")
		return
	}
}

func calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
