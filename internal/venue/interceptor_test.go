package venue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
	"github.com/aristath/tradelab/internal/order"
	"github.com/aristath/tradelab/internal/stub"
)

type sentEntry struct {
	msg     *message.Message
	session Session
}

type mockSink struct {
	mu   sync.Mutex
	sent []sentEntry
	err  error
}

func (s *mockSink) Send(m *message.Message, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEntry{msg: m, session: sess})
	return nil
}

func (s *mockSink) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *mockSink) Sent() []sentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentEntry, len(s.sent))
	copy(out, s.sent)
	return out
}

func newTestInterceptor(t *testing.T) (*Interceptor, *stub.Registry, *mockSink) {
	t.Helper()
	registry := stub.NewRegistry(zerolog.Nop())
	sink := &mockSink{}
	return NewInterceptor(registry, sink, zerolog.Nop()), registry, sink
}

func orderMessage(t *testing.T, symbol, key string) *message.Message {
	t.Helper()
	req, err := order.New(symbol).Key(key).Build()
	require.NoError(t, err)
	m := req.ToMessage()
	m.SetSender("CLIENT")
	m.SetTarget("VENUE")
	return m
}

func mustRegister(t *testing.T, b *stub.RuleBuilder) {
	t.Helper()
	_, err := b.Register()
	require.NoError(t, err)
}

func TestOnMessageSwapsRoutingHeaders(t *testing.T) {
	interceptor, registry, sink := newTestInterceptor(t)
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).RespondWith(stub.Ack()))

	sess := Session{LocalID: "VENUE", RemoteID: "CLIENT"}
	handled, err := interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-1"), sess)

	require.NoError(t, err)
	assert.True(t, handled)

	sent := sink.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "VENUE", sent[0].msg.Sender())
	assert.Equal(t, "CLIENT", sent[0].msg.Target())
	assert.Equal(t, sess, sent[0].session)
}

func TestOnMessageCopiesCorrelationTag(t *testing.T) {
	interceptor, registry, sink := newTestInterceptor(t)

	// A generator that forgets to carry the client order id over.
	bare := func(_ *message.Message) *message.Message {
		return message.New(message.MsgTypeExecutionReport)
	}
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).RespondWith(bare))

	_, err := interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-42"), Session{LocalID: "VENUE", RemoteID: "CLIENT"})
	require.NoError(t, err)

	sent := sink.Sent()
	require.Len(t, sent, 1)
	key, ok := sent[0].msg.Body().String(message.TagClOrdID)
	require.True(t, ok)
	assert.Equal(t, "KEY-42", key)
}

func TestOnMessageCustomCorrelationTags(t *testing.T) {
	registry := stub.NewRegistry(zerolog.Nop())
	sink := &mockSink{}
	interceptor := NewInterceptor(registry, sink, zerolog.Nop(),
		WithCorrelationTags(message.TagClOrdID, message.TagAccount))

	bare := func(_ *message.Message) *message.Message {
		return message.New(message.MsgTypeExecutionReport)
	}
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).RespondWith(bare))

	req, err := order.New("AAPL").Key("KEY-7").Account("ACC-9").Build()
	require.NoError(t, err)
	_, err = interceptor.OnMessage(req.ToMessage(), Session{LocalID: "V", RemoteID: "C"})
	require.NoError(t, err)

	sent := sink.Sent()
	require.Len(t, sent, 1)
	acct, ok := sent[0].msg.Body().String(message.TagAccount)
	require.True(t, ok)
	assert.Equal(t, "ACC-9", acct)
}

func TestOnMessageUnmatchedIsUnhandled(t *testing.T) {
	interceptor, registry, sink := newTestInterceptor(t)
	mustRegister(t, registry.When(stub.SymbolIs("MSFT")).RespondWith(stub.Ack()))

	handled, err := interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-1"), Session{LocalID: "V", RemoteID: "C"})

	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, sink.Sent())
}

func TestOnMessageNilResponseIsUnhandled(t *testing.T) {
	interceptor, registry, sink := newTestInterceptor(t)
	silent := func(_ *message.Message) *message.Message { return nil }
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).RespondWith(silent))

	handled, err := interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-1"), Session{LocalID: "V", RemoteID: "C"})

	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, sink.Sent())
}

func TestOnMessageTransportFailure(t *testing.T) {
	interceptor, registry, sink := newTestInterceptor(t)
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).RespondWith(stub.Ack()))

	sink.SetError(errors.New("pipe closed"))
	handled, err := interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-1"), Session{LocalID: "V", RemoteID: "C"})

	assert.True(t, handled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransportFailure))

	// The interceptor must survive a sink failure.
	sink.SetError(nil)
	handled, err = interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-2"), Session{LocalID: "V", RemoteID: "C"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Len(t, sink.Sent(), 1)
}

func TestOnMessageHonoursDelay(t *testing.T) {
	interceptor, registry, sink := newTestInterceptor(t)
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).
		RespondWith(stub.Ack()).
		WithDelay(50*time.Millisecond))

	start := time.Now()
	handled, err := interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-1"), Session{LocalID: "V", RemoteID: "C"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, handled)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Len(t, sink.Sent(), 1)
}

func TestShutdownAbortsDelay(t *testing.T) {
	interceptor, registry, sink := newTestInterceptor(t)
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).
		RespondWith(stub.Ack()).
		WithDelay(5*time.Second))

	type outcome struct {
		handled bool
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		handled, err := interceptor.OnMessage(orderMessage(t, "AAPL", "KEY-1"), Session{LocalID: "V", RemoteID: "C"})
		done <- outcome{handled: handled, err: err}
	}()

	time.Sleep(50 * time.Millisecond)
	interceptor.Shutdown()

	select {
	case res := <-done:
		assert.False(t, res.handled)
		assert.NoError(t, res.err)
	case <-time.After(2 * time.Second):
		t.Fatal("interceptor did not abort the delay on shutdown")
	}
	assert.Empty(t, sink.Sent())

	// Shutdown is idempotent.
	interceptor.Shutdown()
}

func TestAcceptorSessionLifecycle(t *testing.T) {
	interceptor, _, _ := newTestInterceptor(t)
	acceptor := NewAcceptor(interceptor, zerolog.Nop())

	acceptor.Logon(Session{LocalID: "VENUE", RemoteID: "CLIENT-B"})
	acceptor.Logon(Session{LocalID: "VENUE", RemoteID: "CLIENT-A"})

	sessions := acceptor.ActiveSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "CLIENT-A", sessions[0].RemoteID)
	assert.Equal(t, "CLIENT-B", sessions[1].RemoteID)

	acceptor.Logout("CLIENT-A")
	sessions = acceptor.ActiveSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "CLIENT-B", sessions[0].RemoteID)

	// Logging out an unknown counterparty is harmless.
	acceptor.Logout("CLIENT-X")
	assert.Len(t, acceptor.ActiveSessions(), 1)
}

func TestAcceptorRecordsReceivedMessages(t *testing.T) {
	interceptor, registry, _ := newTestInterceptor(t)
	mustRegister(t, registry.When(stub.SymbolIs("AAPL")).RespondWith(stub.Ack()))
	acceptor := NewAcceptor(interceptor, zerolog.Nop())

	sess := Session{LocalID: "VENUE", RemoteID: "CLIENT"}
	first := orderMessage(t, "AAPL", "KEY-1")
	second := orderMessage(t, "MSFT", "KEY-2")

	handled, err := acceptor.Deliver(first, sess)
	require.NoError(t, err)
	assert.True(t, handled)

	handled, err = acceptor.Deliver(second, sess)
	require.NoError(t, err)
	assert.False(t, handled)

	received := acceptor.Received()
	require.Len(t, received, 2)
	key, _ := received[0].Body().String(message.TagClOrdID)
	assert.Equal(t, "KEY-1", key)
	key, _ = received[1].Body().String(message.TagClOrdID)
	assert.Equal(t, "KEY-2", key)

	acceptor.ClearReceived()
	assert.Empty(t, acceptor.Received())
}
