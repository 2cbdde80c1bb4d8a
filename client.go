// Package iotmqtt is the public facade over the fleet MQTT client core: a
// connection lifecycle state machine with automatic reconnect, dual
// transport (direct mutual-TLS or a SigV4-signed WebSocket), and
// subscription/ack bookkeeping, built for devices that report to a cloud
// IoT control plane.
//
// The wire codec itself (MQTT framing, QoS-1 retransmission, keep-alive
// ping scheduling) is an external collaborator supplied by the caller via
// SessionFactory — this package owns the connection lifecycle around it,
// not the protocol bytes.
package iotmqtt

import (
	"github.com/sirupsen/logrus"

	"github.com/fleetlink/iotmqtt/core"
)

// Re-exported core types so callers only need to import this package.
type (
	ClientConfig        = core.ClientConfig
	Will                = core.Will
	ConnectionState     = core.ConnectionState
	TransportSpec       = core.TransportSpec
	DirectTLSSpec       = core.DirectTLSSpec
	SignedWebSocketSpec = core.SignedWebSocketSpec
	CertificateProvider = core.CertificateProvider
	Session             = core.Session
	EventHandler        = core.EventHandler
	SessionConfig       = core.SessionConfig
	SessionFactory      = core.SessionFactory
	SimpleCallback      = core.SimpleCallback
	ExtendedCallback    = core.ExtendedCallback
)

const (
	StateConnecting        = core.StateConnecting
	StateConnected         = core.StateConnected
	StateConnectionRefused = core.StateConnectionRefused
	StateConnectionError   = core.StateConnectionError
	StateProtocolError     = core.StateProtocolError
	StateDisconnected      = core.StateDisconnected
)

var (
	ErrAlreadyConnecting   = core.ErrAlreadyConnecting
	ErrNotConnected        = core.ErrNotConnected
	ErrAlreadyDisconnected = core.ErrAlreadyDisconnected
	ErrInvalidArgument     = core.ErrInvalidArgument
	ErrConfiguration       = core.ErrConfiguration
)

// DefaultClientConfig returns spec-mandated defaults for a new client.
func DefaultClientConfig(clientID string) ClientConfig {
	return core.DefaultClientConfig(clientID)
}

// Client is a thin wrapper around core.Controller providing the package's
// public entrypoint. Construct one with New, Connect it, and use
// Publish/Subscribe/Unsubscribe/Disconnect for the life of the connection.
type Client struct {
	controller *core.Controller
}

// New creates a Client. sessionFactory constructs the MQTT wire-codec
// collaborator for each connection attempt; logger may be nil, in which
// case logrus.StandardLogger() is used.
func New(sessionFactory SessionFactory, logger *logrus.Logger) *Client {
	return &Client{controller: core.NewController(sessionFactory, logger)}
}

// Connect initiates a connection. See core.Controller.Connect for the exact
// error policy.
func (c *Client) Connect(cfg ClientConfig, spec TransportSpec, statusCallback func(ConnectionState)) (bool, error) {
	return c.controller.Connect(cfg, spec, statusCallback)
}

// Disconnect tears down the connection. Idempotent.
func (c *Client) Disconnect() error {
	return c.controller.Disconnect()
}

// Close releases the client's background worker pool. Call once after
// Disconnect when the Client is no longer needed.
func (c *Client) Close() {
	c.controller.Close()
}

// Publish issues a publish at the given QoS (0 or 1). ackCallback is only
// valid at QoS 1.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool, ackCallback func()) (uint16, error) {
	return c.controller.Publish(topic, payload, qos, retain, ackCallback)
}

// Subscribe registers filter with at least one of simple/extended and
// issues the MQTT SUBSCRIBE.
func (c *Client) Subscribe(filter string, qos byte, simple SimpleCallback, extended ExtendedCallback, ackCallback func()) (uint16, error) {
	return c.controller.Subscribe(filter, qos, simple, extended, ackCallback)
}

// Unsubscribe removes filter's registration and issues the MQTT
// UNSUBSCRIBE.
func (c *Client) Unsubscribe(filter string, ackCallback func()) (uint16, error) {
	return c.controller.Unsubscribe(filter, ackCallback)
}

// Status reports the current connection lifecycle state.
func (c *Client) Status() ConnectionState {
	return c.controller.Status()
}
