// Package supervisor implements the connection supervisor (C8): one
// ServerConnection per configured parent/server peer, driving it through
// the Disconnected/Initializing/Connected/InitFailed/Disabled state
// machine in spec.md §4.7, running its two concurrent tasks (request
// sender + receiver), and performing backfill-then-tail sync against the
// replicated change log (C3). Grounded on pkg/mcast/core/peer.go's
// connect/reconnect loop, generalized from a single always-on multicast
// membership to a per-peer state machine with explicit enable/disable.
package supervisor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/transport"
)

// State is one node of the diagram in spec.md §4.7.
type State string

const (
	StateDisconnected State = "disconnected"
	StateInitializing State = "initializing"
	StateConnected    State = "connected"
	StateInitFailed   State = "init_failed"
	StateDisabled     State = "disabled"
	StateSessionExpired State = "session_expired"
)

func (s State) String() string { return string(s) }

// ServerConnection tracks one peer's connection state and publishes
// ServerStateChanged transitions on the shared Events bus.
type ServerConnection struct {
	NodeID uuid.UUID

	mu      sync.Mutex
	state   State
	kind    transport.Kind
	lastErr string

	events *bus.Publisher[bus.LocalNodeEvent, uuid.UUID]
}

func newServerConnection(nodeID uuid.UUID, events *bus.Publisher[bus.LocalNodeEvent, uuid.UUID]) *ServerConnection {
	return &ServerConnection{NodeID: nodeID, state: StateDisconnected, events: events}
}

// State returns the current state under lock.
func (c *ServerConnection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves to a new state and publishes ServerStateChanged. errMsg
// is attached to the event when non-empty (InitFailed, Disconnected-by-error).
func (c *ServerConnection) transition(s State, kind transport.Kind, errMsg string) {
	c.mu.Lock()
	c.state = s
	c.kind = kind
	c.lastErr = errMsg
	c.mu.Unlock()

	c.events.Publish(c.NodeID, bus.LocalNodeEvent{
		Kind:   bus.EventServerStateChanged,
		NodeID: c.NodeID,
		State:  string(s),
		Error:  errMsg,
	})
}
