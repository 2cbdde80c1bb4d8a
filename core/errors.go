package core

import "errors"

// Errors returned by Controller's public operations. These are precondition
// failures rather than recoverable faults — they are never retried by the
// reconnect loop.
var (
	// ErrAlreadyConnecting is returned by Connect when a connect has already
	// been issued and no terminating disconnect has been observed yet.
	ErrAlreadyConnecting = errors.New("iotmqtt: connect already in progress")

	// ErrNotConnected is returned by Publish/Subscribe/Unsubscribe when no
	// Connect has been issued, or when the issued Connect has no Session yet
	// (the transport is still being opened or is waiting to reconnect).
	ErrNotConnected = errors.New("iotmqtt: not connected")

	// ErrAlreadyDisconnected is returned by Publish/Subscribe/Unsubscribe
	// after Disconnect has been issued.
	ErrAlreadyDisconnected = errors.New("iotmqtt: already disconnected")

	// ErrInvalidArgument covers QoS > 1, and an ack callback supplied for a
	// QoS 0 operation.
	ErrInvalidArgument = errors.New("iotmqtt: invalid argument")

	// ErrConfiguration is returned synchronously from Connect when a
	// mandatory input (client id, credentials provider, certificate
	// identity) is missing. Never retried.
	ErrConfiguration = errors.New("iotmqtt: configuration error")
)
