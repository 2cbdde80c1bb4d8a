package core

// ConnectionState is the lifecycle state of a Controller's connection,
// reported to the caller's status callback. It mirrors the scanner-style
// string enum the rest of the fleet codebase uses for daemon state.
type ConnectionState string

const (
	// StateConnecting means a transport/session is being established.
	StateConnecting ConnectionState = "connecting"
	// StateConnected means the session reported a successful CONNACK.
	StateConnected ConnectionState = "connected"
	// StateConnectionRefused means the broker rejected the connection
	// (bad credentials, identity rejected, etc). No automatic retry.
	StateConnectionRefused ConnectionState = "connection_refused"
	// StateConnectionError means the transport or session failed outside
	// of a refusal — the reconnect loop takes over from here.
	StateConnectionError ConnectionState = "connection_error"
	// StateProtocolError means the session detected a wire-protocol
	// violation. A full Disconnect follows.
	StateProtocolError ConnectionState = "protocol_error"
	// StateDisconnected means the user issued Disconnect and the session
	// has been torn down.
	StateDisconnected ConnectionState = "disconnected"
)

func (s ConnectionState) String() string {
	return string(s)
}
