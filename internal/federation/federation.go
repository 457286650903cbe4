package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/perm"
	"github.com/cotoami/cotoami-go/internal/store"
)

// ErrAnonymousDisabled and ErrAnonymousWriteForbidden are CheckAnonymous's
// two rejection reasons; the HTTP layer maps them onto a ServiceError
// without this package needing to import the service package back (which
// itself uses federation-adjacent checks and would otherwise cycle).
var (
	ErrAnonymousDisabled       = errors.New("federation: anonymous reads are disabled on this node")
	ErrAnonymousWriteForbidden = errors.New("federation: anonymous callers may only issue read-only commands")
)

// ReadOnlyCommand is satisfied by service.Command without federation
// importing the service package.
type ReadOnlyCommand interface {
	IsReadOnly() bool
}

// RegisterServerNode records a peer this node will dial out to as a
// client (network role: Server), encrypting password under the owner
// password before it ever reaches the database.
func RegisterServerNode(ctx context.Context, db *store.Database, ownerPassword, urlPrefix, password string, nodeID uuid.UUID) (entity.ServerNode, error) {
	if err := checkRoles(ctx, db, nodeID, false, true); err != nil {
		return entity.ServerNode{}, err
	}
	encrypted, err := EncryptPassword(ownerPassword, password)
	if err != nil {
		return entity.ServerNode{}, err
	}
	return store.Write(ctx, db, func(sctx *store.Context) (entity.ServerNode, error) {
		return store.InsertServerNode(sctx, entity.ServerNode{
			NodeID: nodeID, URLPrefix: urlPrefix, EncryptedPassword: encrypted,
		})
	})
}

// RegisterAsParent pairs a just-registered ServerNode with a parent_nodes
// row, making this node a Child of it (database role).
func RegisterAsParent(ctx context.Context, db *store.Database, nodeID uuid.UUID) (entity.ParentNode, error) {
	if err := checkDatabaseRoleOnly(ctx, db, nodeID); err != nil {
		return entity.ParentNode{}, err
	}
	return store.Write(ctx, db, func(sctx *store.Context) (entity.ParentNode, error) {
		return store.InsertParentNode(sctx, nodeID)
	})
}

func checkDatabaseRoleOnly(ctx context.Context, db *store.Database, nodeID uuid.UUID) error {
	_, err := store.Read(ctx, db, func(sctx *store.Context) (struct{}, error) {
		return struct{}{}, checkDatabaseRoleExclusive(sctx, nodeID, true)
	})
	return err
}

// RegisterChildNode records an inbound peer this node accepts as a client
// (network role: Client) and grants it the database role of Child.
func RegisterChildNode(ctx context.Context, db *store.Database, nodeID uuid.UUID, passwordHash string, asOwner, canEditItos bool) (entity.ChildNode, error) {
	if err := checkRoles(ctx, db, nodeID, true, false); err != nil {
		return entity.ChildNode{}, err
	}
	return store.Write(ctx, db, func(sctx *store.Context) (entity.ChildNode, error) {
		if _, err := store.InsertClientNode(sctx, entity.ClientNode{NodeID: nodeID, PasswordHash: passwordHash}); err != nil {
			return entity.ChildNode{}, fmt.Errorf("federation: insert client node: %w", err)
		}
		return store.InsertChildNode(sctx, entity.ChildNode{NodeID: nodeID, AsOwner: asOwner, CanEditItos: canEditItos})
	})
}

// ForkFrom marks a parent relationship as forked (diverged) and disables
// its network role, per spec.md §4.10: subsequent imports from that
// origin are refused at changelog.ImportChange's first check, and the
// supervisor stops dialing it.
func ForkFrom(ctx context.Context, db *store.Database, parentNodeID uuid.UUID) error {
	_, err := store.Write(ctx, db, func(sctx *store.Context) (struct{}, error) {
		if err := store.SetParentForked(sctx, parentNodeID, true); err != nil {
			return struct{}{}, err
		}
		server, err := store.GetServerNode(sctx, parentNodeID)
		if err != nil {
			return struct{}{}, err
		}
		if server != nil {
			if err := store.SetServerNodeDisabled(sctx, parentNodeID, true); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// CascadeOwnerPasswordChange re-encrypts every registered server node's
// password under the new owner password, called whenever the owner
// password changes (the "cascade" spec.md §4.10 requires).
func CascadeOwnerPasswordChange(ctx context.Context, db *store.Database, oldOwnerPassword, newOwnerPassword string) error {
	_, err := store.Write(ctx, db, func(sctx *store.Context) (struct{}, error) {
		servers, err := store.AllServerNodes(sctx)
		if err != nil {
			return struct{}{}, err
		}
		for _, s := range servers {
			reencrypted, err := ReencryptPassword(oldOwnerPassword, newOwnerPassword, s.EncryptedPassword)
			if err != nil {
				return struct{}{}, fmt.Errorf("federation: re-encrypt password for %s: %w", s.NodeID, err)
			}
			if err := store.SetServerNodeEncryptedPassword(sctx, s.NodeID, reencrypted); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// CheckAnonymous is the gate a transport layer runs before constructing a
// perm.Anonymous operator for an unauthenticated caller: accepted only if
// the node has anonymous reads enabled and the requested command is
// read-only (spec.md §4.10).
func CheckAnonymous(local *entity.LocalNode, cmd ReadOnlyCommand) (perm.Operator, error) {
	if !local.AnonymousReadEnabled {
		return nil, ErrAnonymousDisabled
	}
	if !cmd.IsReadOnly() {
		return nil, ErrAnonymousWriteForbidden
	}
	return perm.Anonymous{}, nil
}
