package supervisor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/peerproto"
	"github.com/cotoami/cotoami-go/internal/service"
)

// defaultRequestTimeout bounds how long a parent-routed write waits for a
// matching Response before failing with a Server error.
const defaultRequestTimeout = 30 * time.Second

// ParentServiceHandle is the NodeService registered for a connected parent
// (§4.8): it publishes the wire Request onto the supervisor's per-peer
// outgoing bus, where the connection's single sender task picks it up and
// writes the frame, and awaits the matching Response via a one-shot
// subscription on the shared Responses bus keyed by the request's id. This
// indirection keeps every write to the peer channel on one goroutine.
type ParentServiceHandle struct {
	parentNodeID uuid.UUID
	outgoing     *bus.Publisher[peerproto.WireRequest, uuid.UUID]
	responses    *bus.Publisher[any, uuid.UUID]
	timeout      time.Duration
}

var _ service.Service = (*ParentServiceHandle)(nil)

func newParentServiceHandle(parentNodeID uuid.UUID, outgoing *bus.Publisher[peerproto.WireRequest, uuid.UUID], responses *bus.Publisher[any, uuid.UUID]) *ParentServiceHandle {
	return &ParentServiceHandle{
		parentNodeID: parentNodeID,
		outgoing:     outgoing,
		responses:    responses,
		timeout:      defaultRequestTimeout,
	}
}

// Call forwards req as a wire Request event to the parent and blocks for
// the Response the receiver task publishes back onto the Responses bus
// under req.ID, or a Server error once the timeout elapses.
func (h *ParentServiceHandle) Call(req service.Request) service.Response {
	sub := h.responses.SubscribeOnce(req.ID)
	defer sub.Close()

	wire := peerproto.WireRequest{
		ID:      req.ID,
		Accept:  req.Accept,
		AsOwner: req.AsOwner,
		Command: req.Command,
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.outgoing.Publish(h.parentNodeID, wire)

	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			return service.Response{ID: req.ID, Err: ptr(service.Server("parent routing: connection closed while awaiting response"))}
		}
		resp, ok := msg.(service.Response)
		if !ok {
			return service.Response{ID: req.ID, Err: ptr(service.Server("parent routing: malformed response"))}
		}
		return resp
	case <-ctx.Done():
		return service.Response{ID: req.ID, Err: ptr(service.Server("parent routing: timed out waiting for response"))}
	}
}

func ptr(e service.ServiceError) *service.ServiceError { return &e }
