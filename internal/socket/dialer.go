package socket

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

// Conn is the slice of a websocket connection the manager needs. The
// indirection exists so tests can run the state machine against a scripted
// transport.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a Conn against a chat room URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// URL builds the room's WebSocket address. The backend authenticates the
// handshake by query token, not header.
func URL(wsBase string, roomID int64, token string) string {
	return fmt.Sprintf("%s/ws/chat/%d/?token=%s", wsBase, roomID, url.QueryEscape(token))
}

// NewDialer returns the production Dialer.
func NewDialer() Dialer {
	return wsDialer{}
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	return wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}

		// The protocol only uses text frames.
		if msgType != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c wsConn) Write(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func (c wsConn) Close(code websocket.StatusCode, reason string) error {
	return c.conn.Close(code, reason)
}
