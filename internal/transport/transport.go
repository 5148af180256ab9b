// Package transport abstracts the bidirectional socket carrying protocol
// frames. The production implementation dials a WebSocket endpoint; tests
// substitute an in-memory socket.
package transport

import (
	"context"
	"errors"
)

// ErrConnectionClosed reports a socket-level failure. The class is retryable:
// the session orchestrator reacts by reconnecting or degrading, never by
// aborting the recording.
var ErrConnectionClosed = errors.New("transport: connection closed")

// Socket is a connected bidirectional frame transport.
type Socket interface {
	// Send writes one frame. It may block when the transport applies
	// backpressure; ctx bounds the wait.
	Send(ctx context.Context, data []byte) error

	// Receive blocks until the next frame arrives. On connection loss it
	// returns an error wrapping [ErrConnectionClosed]; the close code, when
	// known, is recoverable via [CloseCode].
	Receive(ctx context.Context) ([]byte, error)

	// Ping probes connection liveness.
	Ping(ctx context.Context) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer establishes sockets. The orchestrator re-dials through the same
// Dialer on every reconnect attempt.
type Dialer interface {
	Dial(ctx context.Context) (Socket, error)
}

// closeCoder is implemented by errors that carry a transport close code.
type closeCoder interface {
	CloseCode() int
}

// CloseCode extracts the transport close code from err, or -1 when the error
// carries none.
func CloseCode(err error) int {
	var cc closeCoder
	if errors.As(err, &cc) {
		return cc.CloseCode()
	}
	return -1
}
