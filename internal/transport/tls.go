package transport

import (
	"context"
	"crypto/tls"
	"fmt"
)

// DirectTLSParams carries the dial parameters for a direct MQTT-over-TLS
// connection.
type DirectTLSParams struct {
	Host string
	Port uint16

	// ClientCertificates, when non-empty, is presented as the client's
	// mutual-TLS identity.
	ClientCertificates []tls.Certificate

	// InsecureSkipVerify disables peer certificate verification. Only set
	// when the caller has no client identity to present and has explicitly
	// accepted the risk (core.DirectTLSSpec.AllowInsecureSkipVerify).
	InsecureSkipVerify bool
}

// DialDirectTLS opens a TCP socket to (Host, Port) and performs the TLS
// handshake, returning the resulting connection as a Duplex. *tls.Conn
// already satisfies Duplex directly, so nothing wraps it.
func DialDirectTLS(ctx context.Context, params DirectTLSParams) (Duplex, error) {
	addr := fmt.Sprintf("%s:%d", params.Host, params.Port)
	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         params.Host,
			Certificates:       params.ClientCertificates,
			InsecureSkipVerify: params.InsecureSkipVerify,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: direct tls dial: %w", err)
	}

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: dialed connection is not tls")
	}
	return tlsConn, nil
}
