package iotmqtt

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	nextPacketID uint16
}

func (s *stubSession) ConnectToStreams(r io.Reader, w io.Writer) error { return nil }
func (s *stubSession) SetEventHandler(h EventHandler) {}
func (s *stubSession) Close() error              { return nil }
func (s *stubSession) Disconnect() error         { return nil }
func (s *stubSession) PublishData(topic string, payload []byte, retain bool) error { return nil }
func (s *stubSession) PublishDataAtLeastOnce(topic string, payload []byte, retain bool) (uint16, error) {
	s.nextPacketID++
	return s.nextPacketID, nil
}
func (s *stubSession) Subscribe(topic string, qos byte) (uint16, error) {
	s.nextPacketID++
	return s.nextPacketID, nil
}
func (s *stubSession) Unsubscribe(topic string) (uint16, error) {
	s.nextPacketID++
	return s.nextPacketID, nil
}

func TestClient_PublishBeforeConnectFails(t *testing.T) {
	c := New(func(cfg SessionConfig) Session { return &stubSession{} }, nil)
	defer c.Close()

	_, err := c.Publish("a/b", []byte("x"), 0, false, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_ConnectRequiresClientID(t *testing.T) {
	c := New(func(cfg SessionConfig) Session { return &stubSession{} }, nil)
	defer c.Close()

	cfg := DefaultClientConfig("device-1")
	cfg.ClientID = ""
	ok, err := c.Connect(cfg, DirectTLSSpec{Host: "broker", Port: 8883}, nil)
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestDefaultClientConfig_GeneratesClientIDWhenEmpty(t *testing.T) {
	cfg := DefaultClientConfig("")
	assert.NotEmpty(t, cfg.ClientID)
}

func TestClient_StatusDefaultsToDisconnected(t *testing.T) {
	c := New(func(cfg SessionConfig) Session { return &stubSession{} }, nil)
	defer c.Close()
	assert.Equal(t, StateDisconnected, c.Status())
}
