package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/logging"
	"github.com/cotoami/cotoami-go/internal/peerproto"
	"github.com/cotoami/cotoami-go/internal/perm"
	"github.com/cotoami/cotoami-go/internal/service"
	"github.com/cotoami/cotoami-go/internal/transport"
)

// servePeer drives one accepted child connection, whichever carrier it
// arrived on: it tails this node's own Changes bus down to the child, and
// dispatches every Request event the child sends up through local against
// the child's authenticated operator. It returns once either direction
// fails or ctx is canceled (the HTTP handler unwinds when it does).
func servePeer(ctx context.Context, conn transport.Conn, local *service.LocalService, buses *bus.Buses, localNodeID uuid.UUID, op perm.Operator, log logging.Logger) {
	sub := buses.Changes.Subscribe(localNodeID)
	defer sub.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case entry, ok := <-sub.Messages():
				if !ok {
					return fmt.Errorf("api: changes subscription closed")
				}
				if err := conn.Send(gctx, peerproto.ChangeEvent(entry)); err != nil {
					return fmt.Errorf("api: send change to %s: %w", op.NodeID(), err)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			event, err := conn.Receive(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("api: receive from %s: %w", op.NodeID(), err)
			}

			switch event.Kind {
			case peerproto.EventRequest:
				if event.Request == nil {
					continue
				}
				wr := event.Request
				req := service.Request{
					ID: uuid.UUID(wr.ID), From: op, Accept: wr.Accept,
					AsOwner: wr.AsOwner, Command: wr.Command,
				}
				resp := local.Call(req)
				wire := peerproto.WireResponse{
					ID: [16]byte(resp.ID), BodyFormat: resp.BodyFormat, Body: resp.Body, Err: resp.Err,
				}
				if err := conn.Send(gctx, peerproto.ResponseEvent(wire)); err != nil {
					return fmt.Errorf("api: send response to %s: %w", op.NodeID(), err)
				}
			default:
				// A child only ever sends Requests upstream; anything else is
				// either a protocol bug on its end or a message meant for the
				// other direction.
				log.Warnf("api: unexpected %s event from child %s", event.Kind, op.NodeID())
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Warnf("api: peer connection with %s ended: %v", op.NodeID(), err)
	}
}
