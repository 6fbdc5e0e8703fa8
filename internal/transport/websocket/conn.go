package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"iatbridge/internal/errorsx"
	"iatbridge/internal/ports"
)

const closeWriteTimeout = time.Second

// Dialer opens gorilla websocket connections.
type Dialer struct {
	HandshakeTimeout time.Duration
}

func NewDialer(handshakeTimeout time.Duration) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Dialer{HandshakeTimeout: handshakeTimeout}
}

func (d *Dialer) Dial(ctx context.Context, url string) (ports.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (handshake status %d)", err, resp.StatusCode)
		}
		return nil, errorsx.Wrap(fmt.Errorf("failed to connect to speech websocket: %w", err), errorsx.ReasonTransport)
	}
	return &Conn{conn: conn}, nil
}

// Conn adapts *websocket.Conn to ports.Conn. Writes are serialized; one reader at a time.
type Conn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *Conn) WriteMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if isClosed(err) {
			return fmt.Errorf("failed to send frame: %w: %v", ports.ErrConnClosed, err)
		}
		return errorsx.Wrap(fmt.Errorf("failed to send frame: %w", err), errorsx.ReasonTransport)
	}
	return nil
}

func (c *Conn) ReadMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		if isClosed(err) {
			return nil, fmt.Errorf("%w: %v", ports.ErrConnClosed, err)
		}
		return nil, errorsx.Wrap(fmt.Errorf("failed to read server message: %w", err), errorsx.ReasonTransport)
	}
	return payload, nil
}

func (c *Conn) SetReadDeadline(deadline time.Time) error {
	return c.conn.SetReadDeadline(deadline)
}

func (c *Conn) CloseSend() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return errorsx.Wrap(fmt.Errorf("failed to close stream: %w", err), errorsx.ReasonTransport)
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func isClosed(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}

var _ ports.Dialer = (*Dialer)(nil)
var _ ports.Conn = (*Conn)(nil)
