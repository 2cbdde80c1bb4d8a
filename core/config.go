package core

import (
	"crypto/tls"
	"time"

	"github.com/google/uuid"

	"github.com/fleetlink/iotmqtt/internal/sigv4"
)

// Will describes an MQTT last-will message registered at CONNECT time.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte // 0 or 1
	Retain  bool
}

// ClientConfig is immutable once the first Connect call has been issued —
// callers must not mutate a ClientConfig that has been handed to a
// Controller, and a Controller never mutates the ClientConfig it was given
// (the reconnect loop tracks clean-session overrides and backoff state
// separately, see Controller).
type ClientConfig struct {
	ClientID     string
	KeepAlive    uint16
	CleanSession bool
	Will         *Will

	MetricsEnabled bool

	BaseReconnectTime    time.Duration
	MaximumReconnectTime time.Duration
	MinimumConnectionAge time.Duration

	AutoResubscribe bool

	// PublishRetryThrottle is forwarded to the Session collaborator
	// unmodified; the core never interprets it.
	PublishRetryThrottle time.Duration
}

// DefaultClientConfig returns a ClientConfig with reasonable production
// defaults (base=1s, max=128s, minimum connection age=20s, auto-resubscribe
// and metrics both on). An empty clientID is replaced with a generated UUID
// so callers that don't care about a stable identity still get one distinct
// per process.
func DefaultClientConfig(clientID string) ClientConfig {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return ClientConfig{
		ClientID:             clientID,
		KeepAlive:            30,
		CleanSession:         true,
		MetricsEnabled:       true,
		BaseReconnectTime:    1 * time.Second,
		MaximumReconnectTime: 128 * time.Second,
		MinimumConnectionAge: 20 * time.Second,
		AutoResubscribe:      true,
	}
}

// CertificateProvider resolves the client's mutual-TLS identity. A provider
// that has no identity to offer returns found=false; the caller (Controller)
// then decides, per TransportSpec, whether to fall back to unverified
// dialing or fail with ErrConfiguration.
type CertificateProvider interface {
	ClientCertificate() (cert tls.Certificate, found bool, err error)
}

// TransportSpec is a sealed interface (Go's substitute for a tagged union)
// implemented by DirectTLSSpec and SignedWebSocketSpec.
type TransportSpec interface {
	isTransportSpec()
}

// DirectTLSSpec dials a raw MQTT socket over TLS.
type DirectTLSSpec struct {
	Host string
	Port uint16

	// CertificateProvider supplies the client's mutual-TLS identity. May be
	// nil, in which case AllowInsecureSkipVerify governs behavior.
	CertificateProvider CertificateProvider

	// AllowInsecureSkipVerify must be explicitly set by the caller to accept
	// any peer certificate when no client identity is configured. Verifying
	// the peer otherwise is the caller's responsibility; never enabled
	// implicitly.
	AllowInsecureSkipVerify bool
}

func (DirectTLSSpec) isTransportSpec() {}

// SignedWebSocketSpec dials an AWS-IoT-style SigV4-presigned WebSocket.
type SignedWebSocketSpec struct {
	Endpoint            string
	Region              string
	CredentialsProvider sigv4.CredentialsProvider
}

func (SignedWebSocketSpec) isTransportSpec() {}
