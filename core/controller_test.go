package core

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/iotmqtt/internal/transport"
)

// fakeSession is a minimal in-memory stand-in for the MQTT wire codec
// collaborator, letting these tests drive Controller's lifecycle without a
// real broker.
type fakeSession struct {
	mu      sync.Mutex
	handler EventHandler

	connectErr   error
	subscribeErr error
	nextPacketID uint16

	closed       bool
	disconnected bool
}

func (s *fakeSession) ConnectToStreams(r io.Reader, w io.Writer) error {
	return s.connectErr
}

func (s *fakeSession) SetEventHandler(h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

func (s *fakeSession) PublishData(topic string, payload []byte, retain bool) error {
	return nil
}

func (s *fakeSession) PublishDataAtLeastOnce(topic string, payload []byte, retain bool) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPacketID++
	return s.nextPacketID, nil
}

func (s *fakeSession) Subscribe(topic string, qos byte) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return 0, s.subscribeErr
	}
	s.nextPacketID++
	return s.nextPacketID, nil
}

func (s *fakeSession) Unsubscribe(topic string) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPacketID++
	return s.nextPacketID, nil
}

// fakeDuplex satisfies transport.Duplex without any real I/O.
type fakeDuplex struct{}

func (fakeDuplex) Read(p []byte) (int, error)  { return 0, nil }
func (fakeDuplex) Write(p []byte) (int, error) { return len(p), nil }
func (fakeDuplex) Close() error                { return nil }

// newTestController wires a Controller whose DirectTLS dial always succeeds
// immediately with a fakeDuplex and hands back session as the constructed
// Session, restoring the package-level dial hooks on test cleanup.
func newTestController(t *testing.T, session *fakeSession) (*Controller, *atomic.Int32) {
	t.Helper()

	origDial := dialDirectTLS
	dialCount := &atomic.Int32{}
	dialDirectTLS = func(ctx context.Context, params transport.DirectTLSParams) (transport.Duplex, error) {
		dialCount.Add(1)
		return fakeDuplex{}, nil
	}
	t.Cleanup(func() { dialDirectTLS = origDial })

	c := NewController(func(cfg SessionConfig) Session { return session }, nil)
	t.Cleanup(c.Close)
	return c, dialCount
}

func testConfig() ClientConfig {
	cfg := DefaultClientConfig("device-1")
	cfg.BaseReconnectTime = 5 * time.Millisecond
	cfg.MaximumReconnectTime = 40 * time.Millisecond
	cfg.MinimumConnectionAge = 50 * time.Millisecond
	return cfg
}

func TestController_ConnectSucceeds(t *testing.T) {
	session := &fakeSession{}
	c, dialCount := newTestController(t, session)

	statuses := make(chan ConnectionState, 8)
	ok, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, func(s ConnectionState) { statuses <- s })
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool { return dialCount.Load() == 1 }, time.Second, time.Millisecond)

	select {
	case s := <-statuses:
		assert.Equal(t, StateConnecting, s)
	case <-time.After(time.Second):
		t.Fatal("no status notification observed")
	}
}

func TestController_ConnectTwiceFails(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)

	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	_, err = c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	assert.ErrorIs(t, err, ErrAlreadyConnecting)
}

func TestController_ConnectRequiresClientID(t *testing.T) {
	c, _ := newTestController(t, &fakeSession{})
	cfg := testConfig()
	cfg.ClientID = ""

	ok, err := c.Connect(cfg, DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestController_ConnectRequiresCredentialsProviderForWebSocket(t *testing.T) {
	c, _ := newTestController(t, &fakeSession{})

	ok, err := c.Connect(testConfig(), SignedWebSocketSpec{Endpoint: "host", Region: "us-east-1"}, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrConfiguration)
}

// notFoundCertProvider reports it has no client identity to offer.
type notFoundCertProvider struct{}

func (notFoundCertProvider) ClientCertificate() (tls.Certificate, bool, error) {
	return tls.Certificate{}, false, nil
}

func TestController_ConnectMissingCertificateIdentityFailsSynchronouslyAndDoesNotRetry(t *testing.T) {
	session := &fakeSession{}
	c, dialCount := newTestController(t, session)

	ok, err := c.Connect(testConfig(), DirectTLSSpec{
		Host:                "broker",
		Port:                8883,
		CertificateProvider: notFoundCertProvider{},
	}, nil)
	assert.False(t, ok, "a missing certificate identity must fail Connect synchronously")
	assert.ErrorIs(t, err, ErrConfiguration)

	// Never retried: no dial is attempted, and the scheduler doesn't keep
	// trying in the background either.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), dialCount.Load())
	assert.Equal(t, StateDisconnected, c.Status())

	// A corrected subsequent Connect call is free to proceed — the failed
	// attempt must not leave userDidIssueConnect stuck set.
	ok, err = c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestController_PublishBeforeConnectFails(t *testing.T) {
	c, _ := newTestController(t, &fakeSession{})
	_, err := c.Publish("a/b", []byte("x"), 0, false, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestController_PublishAfterDisconnectFails(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Disconnect())

	_, err = c.Publish("a/b", []byte("x"), 0, false, nil)
	assert.ErrorIs(t, err, ErrAlreadyDisconnected)
}

func TestController_PublishRejectsQoSAboveOne(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	_, err = c.Publish("a/b", []byte("x"), 2, false, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestController_PublishRejectsAckCallbackAtQoS0(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	_, err = c.Publish("a/b", []byte("x"), 0, false, func() {})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestController_PublishQoS1BindsAckCallback(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	packetID, err := c.Publish("a/b", []byte("x"), 1, false, func() { fired <- struct{}{} })
	require.NoError(t, err)

	c.OnAck(packetID)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ack callback never fired")
	}
}

func TestController_SubscribeAndDispatch(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	received := make(chan string, 1)
	_, err = c.Subscribe("devices/+/status", 0, func(payload []byte) { received <- string(payload) }, nil, nil)
	require.NoError(t, err)

	c.OnMessage("devices/42/status", []byte("online"))

	select {
	case got := <-received:
		assert.Equal(t, "online", got)
	case <-time.After(time.Second):
		t.Fatal("subscription callback never fired")
	}
}

func TestController_UnsubscribeRemovesEntry(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	received := make(chan string, 1)
	_, err = c.Subscribe("devices/42/status", 0, func(payload []byte) { received <- string(payload) }, nil, nil)
	require.NoError(t, err)

	_, err = c.Unsubscribe("devices/42/status", nil)
	require.NoError(t, err)

	c.OnMessage("devices/42/status", []byte("ignored"))

	select {
	case <-received:
		t.Fatal("callback fired after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestController_DisconnectIsIdempotent(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.Status())
}

func TestController_ProtocolErrorTriggersDisconnect(t *testing.T) {
	session := &fakeSession{}
	c, _ := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	c.OnProtocolError(errors.New("bad frame"))
	assert.Eventually(t, func() bool { return c.Status() == StateDisconnected }, time.Second, time.Millisecond)
}

func TestController_ConnectionErrorSchedulesReconnect(t *testing.T) {
	session := &fakeSession{}
	c, dialCount := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return dialCount.Load() == 1 }, time.Second, time.Millisecond)

	c.OnConnectionError(errors.New("reset by peer"))

	assert.Eventually(t, func() bool { return dialCount.Load() >= 2 }, time.Second, time.Millisecond,
		"a connection error should schedule a reconnect that re-dials")
}

func TestController_ConnectionRefusedDoesNotReconnect(t *testing.T) {
	session := &fakeSession{}
	c, dialCount := newTestController(t, session)
	_, err := c.Connect(testConfig(), DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return dialCount.Load() == 1 }, time.Second, time.Millisecond)

	c.OnConnectionRefused(5)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dialCount.Load(), "a refusal must not trigger an automatic retry")
	assert.Equal(t, StateConnectionRefused, c.Status())
}
