package federation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/store"
)

// ErrRoleConflict is returned when a peer already holds the role being
// assigned to it under a different relationship.
type ErrRoleConflict struct {
	NodeID uuid.UUID
	Role   string
}

func (e ErrRoleConflict) Error() string {
	return fmt.Sprintf("federation: %s already has a %s role", e.NodeID, e.Role)
}

// checkDatabaseRoleExclusive enforces "at most one database-role per peer
// (Parent XOR Child)": a node already registered as this node's Child may
// not also become a Parent, and vice versa.
func checkDatabaseRoleExclusive(sctx *store.Context, nodeID uuid.UUID, wantParent bool) error {
	if wantParent {
		child, err := store.GetChildNode(sctx, nodeID)
		if err != nil {
			return err
		}
		if child != nil {
			return ErrRoleConflict{NodeID: nodeID, Role: "child"}
		}
	} else {
		parent, err := store.GetParentNode(sctx, nodeID)
		if err != nil {
			return err
		}
		if parent != nil {
			return ErrRoleConflict{NodeID: nodeID, Role: "parent"}
		}
	}
	return nil
}

// checkNetworkRoleExclusive enforces "at most one network-role per peer
// (Server XOR Client)": a node already dialed as a Server may not also be
// registered as an inbound Client, and vice versa.
func checkNetworkRoleExclusive(sctx *store.Context, nodeID uuid.UUID, wantServer bool) error {
	if wantServer {
		client, err := store.GetClientNode(sctx, nodeID)
		if err != nil {
			return err
		}
		if client != nil {
			return ErrRoleConflict{NodeID: nodeID, Role: "client"}
		}
	} else {
		server, err := store.GetServerNode(sctx, nodeID)
		if err != nil {
			return err
		}
		if server != nil {
			return ErrRoleConflict{NodeID: nodeID, Role: "server"}
		}
	}
	return nil
}

// checkRoles is the combined gate RegisterServerNode/RegisterChildNode run
// before touching any table.
func checkRoles(ctx context.Context, db *store.Database, nodeID uuid.UUID, wantParent, wantServer bool) error {
	_, err := store.Read(ctx, db, func(sctx *store.Context) (struct{}, error) {
		if err := checkDatabaseRoleExclusive(sctx, nodeID, wantParent); err != nil {
			return struct{}{}, err
		}
		if err := checkNetworkRoleExclusive(sctx, nodeID, wantServer); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}
