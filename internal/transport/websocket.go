package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// WebSocketDialer dials a live-endpoint WebSocket and wraps the connection in
// the [Socket] interface.
type WebSocketDialer struct {
	// URL is the full endpoint including any key query parameter.
	URL string

	// Header carries extra HTTP headers for the handshake (authorization,
	// content type).
	Header http.Header
}

// Dial establishes the WebSocket connection.
func (d *WebSocketDialer) Dial(ctx context.Context) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	// Protocol frames are JSON and can exceed the library's 32 KiB default
	// once audio chunks are base64-wrapped.
	conn.SetReadLimit(1 << 22)
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) Send(ctx context.Context, data []byte) error {
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return &wsError{op: "send", err: err}
	}
	return nil
}

func (s *wsSocket) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, &wsError{op: "receive", err: err}
	}
	return data, nil
}

func (s *wsSocket) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return &wsError{op: "ping", err: err}
	}
	return nil
}

func (s *wsSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// wsError classifies every socket failure as a retryable connection error
// and surfaces the WebSocket close status when the peer sent one.
type wsError struct {
	op  string
	err error
}

func (e *wsError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.op, e.err)
}

func (e *wsError) Unwrap() error { return ErrConnectionClosed }

func (e *wsError) CloseCode() int {
	if status := websocket.CloseStatus(e.err); status != -1 {
		return int(status)
	}
	return -1
}
