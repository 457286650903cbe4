// Package transport implements the two concrete peer-event carriers named
// in spec.md §4.6: a WebSocket connection (preferred) and an HTTP+SSE
// fallback, both speaking internal/peerproto's Event vocabulary. Grounded
// on pkg/mcast/core/transport.go's Transport interface, generalized from a
// single TCP dial to the two carriers the spec names.
package transport

import (
	"context"

	"github.com/cotoami/cotoami-go/internal/peerproto"
)

// Conn is what the connection supervisor (C8) drives regardless of which
// carrier is in play: send one Event, receive the next one, close.
type Conn interface {
	Send(ctx context.Context, e peerproto.Event) error
	Receive(ctx context.Context) (peerproto.Event, error)
	Close() error
}

// Kind identifies which carrier a Conn is using, surfaced to the
// supervisor's Connected(WS|SSE) state.
type Kind int

const (
	KindWebSocket Kind = iota
	KindSSE
)

func (k Kind) String() string {
	if k == KindSSE {
		return "sse"
	}
	return "websocket"
}
