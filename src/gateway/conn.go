package gateway

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open gateway transport. ReadMessage is only called from one goroutine
// and WriteMessage only from another; Close may be called from anywhere.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close sends a close frame with code and releases the transport.
	Close(code int) error
}

// Dialer opens gateway connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const writeWait = 10 * time.Second

// CloseError is a close frame sent by the server.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("gateway closed with code %d: %s", e.Code, e.Text)
}

// Fatal reports close codes after which reconnecting cannot succeed: bad token,
// bad shard, sharding required, bad API version, bad or disallowed intents.
func (e *CloseError) Fatal() bool {
	switch e.Code {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		return true
	}
	return false
}

// Resumable is false for invalid sequence (4007) and session timeout (4009).
func (e *CloseError) Resumable() bool {
	return e.Code != 4007 && e.Code != 4009
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("could not connect to WebSocket: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

// ReadMessage returns the next text payload. Binary frames carry zlib-compressed
// payloads when compression was requested in IDENTIFY.
func (c *wsConn) ReadMessage() ([]byte, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Text: ce.Text}
		}
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return data, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not open compressed payload: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("could not inflate payload: %w", err)
	}
	return out, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int) error {
	var err error
	c.closeOnce.Do(func() {
		// The peer may already be gone; the close frame is best effort.
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(writeWait),
		)
		err = c.conn.Close()
	})
	return err
}
