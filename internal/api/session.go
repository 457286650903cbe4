package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/clock"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/federation"
	"github.com/cotoami/cotoami-go/internal/perm"
	"github.com/cotoami/cotoami-go/internal/service"
	"github.com/cotoami/cotoami-go/internal/store"
)

const (
	ownerSessionCookie = "cotoami_owner_session"
	clientNodeHeader   = "X-Cotoami-Client-Node"
	clientTokenHeader  = "X-Cotoami-Client-Token"
)

// resolveOperator derives the caller's perm.Operator from the request's
// owner session cookie or client credential headers, falling back to an
// anonymous operator gated by federation.CheckAnonymous when neither is
// present.
func resolveOperator(r *http.Request, db *store.Database, localNodeID uuid.UUID, clk clock.Clock, cmd service.Command) (perm.Operator, error) {
	ctx := r.Context()

	if cookie, err := r.Cookie(ownerSessionCookie); err == nil && cookie.Value != "" {
		local, err := store.Read(ctx, db, func(sctx *store.Context) (*entity.LocalNode, error) {
			return store.GetLocalNode(sctx, localNodeID)
		})
		if err != nil {
			return nil, err
		}
		if local != nil && local.OwnerSessionToken != nil &&
			subtle.ConstantTimeCompare([]byte(*local.OwnerSessionToken), []byte(cookie.Value)) == 1 &&
			(local.OwnerSessionExpiresAt == nil || clk.Now().Before(*local.OwnerSessionExpiresAt)) {
			return perm.LocalOwner{ID: localNodeID}, nil
		}
	}

	if op, ok, err := resolveClientOperator(r, db); err != nil {
		return nil, err
	} else if ok {
		return op, nil
	}

	local, err := store.Read(ctx, db, func(sctx *store.Context) (*entity.LocalNode, error) {
		return store.GetLocalNode(sctx, localNodeID)
	})
	if err != nil {
		return nil, err
	}
	if local == nil {
		return nil, store.ErrNotFound
	}
	return federation.CheckAnonymous(local, cmd)
}

// resolveClientOperator checks the client credential headers against a
// registered ClientNode/ChildNode pair, the shared step both the REST
// command endpoint and the peer-connection endpoints need.
func resolveClientOperator(r *http.Request, db *store.Database) (perm.Operator, bool, error) {
	nodeIDStr := r.Header.Get(clientNodeHeader)
	if nodeIDStr == "" {
		nodeIDStr = r.URL.Query().Get("node_id")
	}
	if nodeIDStr == "" {
		return nil, false, nil
	}
	token := r.Header.Get(clientTokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	nodeID, err := uuid.Parse(nodeIDStr)
	if err != nil {
		return nil, false, fmt.Errorf("api: invalid node_id: %w", err)
	}

	ctx := r.Context()
	client, err := store.Read(ctx, db, func(sctx *store.Context) (*entity.ClientNode, error) {
		return store.GetClientNode(sctx, nodeID)
	})
	if err != nil {
		return nil, false, err
	}
	if client == nil || client.SessionToken == nil ||
		subtle.ConstantTimeCompare([]byte(*client.SessionToken), []byte(token)) != 1 {
		return nil, false, nil
	}

	child, err := store.Read(ctx, db, func(sctx *store.Context) (*entity.ChildNode, error) {
		return store.GetChildNode(sctx, nodeID)
	})
	if err != nil {
		return nil, false, err
	}
	if child == nil {
		return nil, false, nil
	}
	if child.AsOwner {
		return perm.ChildAsOwner{ID: nodeID}, true, nil
	}
	return perm.Child{ID: nodeID, EditItos: child.CanEditItos}, true, nil
}

// authenticatePeer is the strict form resolveClientOperator's callers use
// for the peer-connection endpoints: unlike the command endpoint, a peer
// connection never falls back to an anonymous operator, since the whole
// point of the connection is to carry authenticated replication traffic.
func authenticatePeer(r *http.Request, db *store.Database) (perm.Operator, error) {
	op, ok, err := resolveClientOperator(r, db)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("api: invalid or missing client session")
	}
	return op, nil
}
