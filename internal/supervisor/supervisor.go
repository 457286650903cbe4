package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/logging"
	"github.com/cotoami/cotoami-go/internal/peerproto"
	"github.com/cotoami/cotoami-go/internal/service"
	"github.com/cotoami/cotoami-go/internal/store"
	"github.com/cotoami/cotoami-go/internal/transport"
)

// Dialer opens a live Conn to the server described by sn, performing
// whatever login handshake that carrier needs (the actual WebSocket dial
// or SSE subscribe plus a session-token exchange). A Dialer returning a
// *ConnError classifies the failure for the supervisor's retry logic;
// a plain error is treated as transient.
type Dialer func(ctx context.Context, sn entity.ServerNode) (transport.Conn, transport.Kind, error)

// Config wires a Supervisor to the rest of the node.
type Config struct {
	LocalNodeID uuid.UUID
	DB          *store.Database
	Buses       *bus.Buses
	Dial        Dialer
	Log         logging.Logger
}

// Supervisor owns one ServerConnection per configured parent/server peer
// this node dials out to, per spec.md §4.7.
type Supervisor struct {
	cfg      Config
	outgoing *bus.Publisher[peerproto.WireRequest, uuid.UUID]

	mu    sync.Mutex
	peers map[uuid.UUID]*peerRun
}

type peerRun struct {
	conn   *ServerConnection
	cancel context.CancelFunc
	done   chan struct{}
	svc    *ParentServiceHandle
}

func New(cfg Config) *Supervisor {
	if cfg.Log == nil {
		cfg.Log = logging.Nop{}
	}
	return &Supervisor{
		cfg:      cfg,
		outgoing: bus.New[peerproto.WireRequest, uuid.UUID](),
		peers:    make(map[uuid.UUID]*peerRun),
	}
}

// Connect starts the supervisor loop for sn, returning its ServerConnection
// for state inspection. If a loop for sn is already running, it returns
// that loop's ServerConnection without restarting it.
func (sv *Supervisor) Connect(sn entity.ServerNode) *ServerConnection {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if existing, ok := sv.peers[sn.NodeID]; ok {
		return existing.conn
	}

	sc := newServerConnection(sn.NodeID, sv.cfg.Buses.Events)
	ctx, cancel := context.WithCancel(context.Background())
	run := &peerRun{conn: sc, cancel: cancel, done: make(chan struct{})}
	sv.peers[sn.NodeID] = run

	go func() {
		defer close(run.done)
		sv.loop(ctx, sn, run)
	}()

	return sc
}

// Disable stops retrying and transitions the peer to Disabled until
// Connect is called again.
func (sv *Supervisor) Disable(nodeID uuid.UUID) {
	sv.mu.Lock()
	run, ok := sv.peers[nodeID]
	if ok {
		delete(sv.peers, nodeID)
	}
	sv.mu.Unlock()
	if !ok {
		return
	}
	run.cancel()
	<-run.done
	run.conn.transition(StateDisabled, transport.KindWebSocket, "")
}

// ParentService returns the routed NodeService handle for a currently
// connected parent, or nil if it isn't connected.
func (sv *Supervisor) ParentService(nodeID uuid.UUID) service.Service {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	run, ok := sv.peers[nodeID]
	if !ok || run.svc == nil {
		return nil
	}
	return run.svc
}

// loop is the full state machine: dial, run the connected session, and on
// failure either retry with backoff or stop, per spec.md §4.7.
func (sv *Supervisor) loop(ctx context.Context, sn entity.ServerNode, run *peerRun) {
	bo := newBackoff()
	for {
		if ctx.Err() != nil {
			return
		}

		run.conn.transition(StateInitializing, transport.KindWebSocket, "")
		conn, kind, err := sv.cfg.Dial(ctx, sn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if classify(err) == ErrAuthExpired {
				run.conn.transition(StateSessionExpired, kind, err.Error())
				return
			}
			run.conn.transition(StateInitFailed, kind, err.Error())
			if !sv.waitRetry(ctx, run, bo) {
				return
			}
			continue
		}

		bo.reset()
		svc := newParentServiceHandle(sn.NodeID, sv.outgoing, sv.cfg.Buses.Responses)
		sv.mu.Lock()
		run.svc = svc
		sv.mu.Unlock()

		run.conn.transition(StateConnected, kind, "")
		sv.cfg.Log.Infof("supervisor: connected to %s via %s", sn.NodeID, kind)

		err = sv.runConnected(ctx, sn, conn, svc)
		_ = conn.Close()

		sv.mu.Lock()
		run.svc = nil
		sv.mu.Unlock()

		if err == nil || ctx.Err() != nil {
			run.conn.transition(StateDisconnected, kind, "")
			return
		}

		switch classify(err) {
		case ErrFatalProtocol:
			run.conn.transition(StateDisconnected, kind, err.Error())
			return
		case ErrAuthExpired:
			run.conn.transition(StateSessionExpired, kind, err.Error())
			return
		default:
			run.conn.transition(StateInitFailed, kind, err.Error())
			if !sv.waitRetry(ctx, run, bo) {
				return
			}
		}
	}
}

func (sv *Supervisor) waitRetry(ctx context.Context, run *peerRun, bo *backoff) bool {
	delay, ok := bo.next()
	if !ok {
		run.conn.transition(StateDisconnected, transport.KindWebSocket, "reconnect retry budget exhausted")
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// runConnected runs backfill plus the two concurrent tasks named in
// spec.md §4.7 under one abort group: if either the sender or the
// receiver exits, the whole group unwinds.
func (sv *Supervisor) runConnected(ctx context.Context, sn entity.ServerNode, conn transport.Conn, svc *ParentServiceHandle) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sv.senderLoop(gctx, sn.NodeID, conn) })
	g.Go(func() error { return sv.receiverLoop(gctx, sn, conn, svc) })
	g.Go(func() error {
		if err := backfill(gctx, sv.cfg.DB, sv.cfg.LocalNodeID, sn.NodeID, svc, sv.cfg.Buses.Events); err != nil {
			sv.cfg.Log.Warnf("supervisor: backfill from %s: %v", sn.NodeID, err)
		}
		return nil
	})

	return g.Wait()
}

func (sv *Supervisor) senderLoop(ctx context.Context, parentNodeID uuid.UUID, conn transport.Conn) error {
	sub := sv.outgoing.Subscribe(parentNodeID)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case wr, ok := <-sub.Messages():
			if !ok {
				return fmt.Errorf("supervisor: outgoing subscription closed")
			}
			if err := conn.Send(ctx, peerproto.RequestEvent(wr)); err != nil {
				return fmt.Errorf("supervisor: send request: %w", err)
			}
		}
	}
}

func (sv *Supervisor) receiverLoop(ctx context.Context, sn entity.ServerNode, conn transport.Conn, svc *ParentServiceHandle) error {
	for {
		event, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isProtocolError(err) {
				return &ConnError{Kind: ErrFatalProtocol, Err: err}
			}
			return fmt.Errorf("supervisor: receive: %w", err)
		}

		switch event.Kind {
		case peerproto.EventChange:
			if event.Change == nil {
				continue
			}
			sv.cfg.Buses.RemoteChanges.Publish(sn.NodeID, *event.Change)
			if err := applyTailChange(ctx, sv.cfg.DB, sv.cfg.LocalNodeID, sn.NodeID, *event.Change, svc, sv.cfg.Buses.Events); err != nil {
				return fmt.Errorf("supervisor: apply tail change: %w", err)
			}

		case peerproto.EventResponse:
			if event.Response == nil {
				continue
			}
			wr := event.Response
			resp := service.Response{ID: uuid.UUID(wr.ID), BodyFormat: wr.BodyFormat, Body: wr.Body, Err: wr.Err}
			sv.cfg.Buses.Responses.Publish(resp.ID, resp)

		case peerproto.EventRemoteLocal:
			if event.RemoteLocal == nil {
				continue
			}
			sv.cfg.Buses.Events.Publish(sn.NodeID, *event.RemoteLocal)

		case peerproto.EventError:
			return &ConnError{Kind: ErrFatalProtocol, Err: fmt.Errorf("peer error: %s", event.Error)}

		case peerproto.EventRequest:
			// A client-side connection never receives Request events; a
			// well-behaved parent only ever pushes Change/Response/
			// RemoteLocal/Error. Ignore rather than abort the session.
			sv.cfg.Log.Warnf("supervisor: unexpected request event from %s", sn.NodeID)
		}
	}
}

func isProtocolError(err error) bool {
	return strings.Contains(err.Error(), "peerproto:") || strings.Contains(err.Error(), "transport:")
}
