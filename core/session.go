package core

import "io"

// SessionConfig carries the parameters a Session implementation needs at
// construction time. It is built by Controller.Connect from ClientConfig
// plus the resolved MQTT username (which encodes the metrics string when
// ClientConfig.MetricsEnabled is set).
type SessionConfig struct {
	ClientID     string
	Username     string
	Password     string
	KeepAlive    uint16
	CleanSession bool
	Will         *Will
}

// EventHandler receives session lifecycle and message events. Controller
// implements this interface itself — the Session holds a non-owning
// back-reference to it for the lifetime of one connection. The Session
// never owns the Controller. Controller does not revoke this reference when
// it drops a Session; events a dropped Session reports afterwards still
// reach the Controller.
type EventHandler interface {
	OnConnected(sessionPresent bool)
	OnConnectionRefused(reason byte)
	OnConnectionClosed()
	OnConnectionError(err error)
	OnProtocolError(err error)
	OnMessage(topic string, payload []byte)
	OnAck(packetID uint16)
}

// Session is the external MQTT wire-codec collaborator. The core never
// frames or parses MQTT packets itself — it only drives this interface and
// reacts to the events it emits via EventHandler.
type Session interface {
	// ConnectToStreams hands the session a duplex byte channel to frame
	// MQTT over. Called once per connection attempt, after the transport
	// adapter has produced a channel.
	ConnectToStreams(input io.Reader, output io.Writer) error

	// SetEventHandler installs the handler that receives this session's
	// events. Called exactly once, before ConnectToStreams.
	SetEventHandler(handler EventHandler)

	// Close tears down the session's streams without sending MQTT
	// DISCONNECT (used on transport failure).
	Close() error

	// Disconnect sends an MQTT DISCONNECT and then closes the streams
	// (used for user-initiated disconnects).
	Disconnect() error

	// PublishData issues a QoS 0 publish; no packet identifier is produced.
	PublishData(topic string, payload []byte, retain bool) error

	// PublishDataAtLeastOnce issues a QoS 1 publish and returns the packet
	// identifier the broker will ack.
	PublishDataAtLeastOnce(topic string, payload []byte, retain bool) (packetID uint16, err error)

	// Subscribe issues an MQTT SUBSCRIBE and returns its packet identifier.
	Subscribe(topic string, qos byte) (packetID uint16, err error)

	// Unsubscribe issues an MQTT UNSUBSCRIBE and returns its packet
	// identifier.
	Unsubscribe(topic string) (packetID uint16, err error)
}

// SessionFactory constructs a Session for one connection attempt. Supplied
// by the caller because the MQTT wire codec is an external collaborator —
// the core only depends on the Session interface above.
type SessionFactory func(cfg SessionConfig) Session
