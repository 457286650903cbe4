package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cotoami/cotoami-go/internal/peerproto"
)

const (
	// PingInterval matches spec.md §4.6's "pings every 30 s".
	PingInterval = 30 * time.Second
	pongWait     = PingInterval + 10*time.Second
)

// WebSocketConn wraps a *websocket.Conn (client- or server-side) as a Conn,
// running a ping/pong keepalive loop and enforcing maxMessageSize on both
// directions.
type WebSocketConn struct {
	ws             *websocket.Conn
	maxMessageSize int64
	stopPing       chan struct{}
}

var _ Conn = (*WebSocketConn)(nil)

// DialWebSocket opens a client-side WebSocket connection to url, sending
// header on the upgrade request (carrying the session token).
func DialWebSocket(ctx context.Context, url string, header http.Header, maxMessageSize int64) (*WebSocketConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket dial: %w", err)
	}
	return newWebSocketConn(ws, maxMessageSize), nil
}

// AcceptWebSocket wraps a server-side *websocket.Conn already produced by
// an HTTP upgrade handler.
func AcceptWebSocket(ws *websocket.Conn, maxMessageSize int64) *WebSocketConn {
	return newWebSocketConn(ws, maxMessageSize)
}

func newWebSocketConn(ws *websocket.Conn, maxMessageSize int64) *WebSocketConn {
	ws.SetReadLimit(maxMessageSize)
	c := &WebSocketConn{ws: ws, maxMessageSize: maxMessageSize, stopPing: make(chan struct{})}
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.pingLoop()
	return c
}

func (c *WebSocketConn) pingLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.stopPing:
			return
		}
	}
}

// Send encodes e as MessagePack and writes it as one binary WS message.
func (c *WebSocketConn) Send(ctx context.Context, e peerproto.Event) error {
	body, err := peerproto.EncodeEvent(e)
	if err != nil {
		return err
	}
	if int64(len(body)) > c.maxMessageSize {
		return fmt.Errorf("transport: outgoing message %d bytes exceeds max %d", len(body), c.maxMessageSize)
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, body)
}

// Receive blocks for the next binary message and decodes it as an Event.
func (c *WebSocketConn) Receive(ctx context.Context) (peerproto.Event, error) {
	_, body, err := c.ws.ReadMessage()
	if err != nil {
		return peerproto.Event{}, err
	}
	return peerproto.DecodeEvent(body)
}

func (c *WebSocketConn) Close() error {
	close(c.stopPing)
	return c.ws.Close()
}
