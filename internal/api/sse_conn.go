package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/cotoami/cotoami-go/internal/peerproto"
)

// sseServerConn implements transport.Conn for a server-accepted SSE child
// connection. Unlike the WebSocket carrier, SSE is one-directional: Send
// streams an event down the open GET response, while Receive yields
// Request events forwarded in from the sibling POST endpoint a child
// posts its commands to (see Router.handleSSERequest). This lets the same
// servePeer loop drive both carriers.
type sseServerConn struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	incoming chan peerproto.Event
	closed   chan struct{}
	closeOnce sync.Once
}

func newSSEServerConn(w http.ResponseWriter, flusher http.Flusher) *sseServerConn {
	return &sseServerConn{
		w: w, flusher: flusher,
		incoming: make(chan peerproto.Event, 16),
		closed:   make(chan struct{}),
	}
}

func (c *sseServerConn) Send(ctx context.Context, e peerproto.Event) error {
	body, err := peerproto.EncodeEvent(e)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", base64.StdEncoding.EncodeToString(body)); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *sseServerConn) Receive(ctx context.Context) (peerproto.Event, error) {
	select {
	case <-ctx.Done():
		return peerproto.Event{}, ctx.Err()
	case <-c.closed:
		return peerproto.Event{}, fmt.Errorf("api: sse connection closed")
	case e := <-c.incoming:
		return e, nil
	}
}

func (c *sseServerConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// deliver forwards a Request event posted on the sibling endpoint into this
// connection's Receive loop. Reports false if the stream has since closed,
// so the caller can tell the child its request landed on a dead stream.
func (c *sseServerConn) deliver(e peerproto.Event) bool {
	select {
	case c.incoming <- e:
		return true
	case <-c.closed:
		return false
	}
}
