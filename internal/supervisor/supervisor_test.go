package supervisor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/logging"
	"github.com/cotoami/cotoami-go/internal/transport"
)

// TestConnectDisableLeavesNoGoroutine drives one peer through a failed
// dial to StateSessionExpired and confirms Disable tears down its loop
// goroutine cleanly, per spec.md §4.7's reconnection contract.
func TestConnectDisableLeavesNoGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	sv := New(Config{
		LocalNodeID: uuid.New(),
		Buses:       bus.NewBuses(),
		Log:         logging.Nop{},
		Dial: func(ctx context.Context, sn entity.ServerNode) (transport.Conn, transport.Kind, error) {
			return nil, transport.KindWebSocket, &ConnError{Kind: ErrAuthExpired, Err: fmt.Errorf("session expired")}
		},
	})

	sn := entity.ServerNode{NodeID: uuid.New(), URLPrefix: "https://parent.example"}
	conn := sv.Connect(sn)

	deadline := time.After(time.Second)
	for conn.State() != StateSessionExpired {
		select {
		case <-deadline:
			t.Fatalf("never reached StateSessionExpired, stuck at %s", conn.State())
		case <-time.After(time.Millisecond):
		}
	}

	sv.Disable(sn.NodeID)
	if got := conn.State(); got != StateDisabled {
		t.Errorf("expected StateDisabled after Disable, got %s", got)
	}
}

// TestConnectIsIdempotent confirms a second Connect for an already-running
// peer returns the existing ServerConnection instead of starting a second
// loop goroutine for the same node.
func TestConnectIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	blocked := make(chan struct{})
	sv := New(Config{
		LocalNodeID: uuid.New(),
		Buses:       bus.NewBuses(),
		Log:         logging.Nop{},
		Dial: func(ctx context.Context, sn entity.ServerNode) (transport.Conn, transport.Kind, error) {
			<-blocked
			return nil, transport.KindWebSocket, &ConnError{Kind: ErrAuthExpired, Err: fmt.Errorf("session expired")}
		},
	})

	sn := entity.ServerNode{NodeID: uuid.New(), URLPrefix: "https://parent.example"}
	first := sv.Connect(sn)
	second := sv.Connect(sn)
	if first != second {
		t.Errorf("expected the second Connect to return the same ServerConnection")
	}

	close(blocked)
	sv.Disable(sn.NodeID)
}
