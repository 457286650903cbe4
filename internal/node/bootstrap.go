// Package node bootstraps a fresh store into a local node: the one-time
// init_as_node step named in spec.md §8's "Basic post" scenario, which
// mints the local Node, its root Cotonoma, and the local_node singleton
// row as a single CreateNode changelog entry (serial_number=1) before any
// other command can run.
package node

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/auth"
	"github.com/cotoami/cotoami-go/internal/changelog"
	"github.com/cotoami/cotoami-go/internal/clock"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/store"
)

// Bootstrap returns the local node id, creating it if this is a fresh
// store. On a store that has already been initialized, it is a read-only
// no-op returning the existing id.
func Bootstrap(ctx context.Context, db *store.Database, clk clock.Clock, name, ownerPassword string) (uuid.UUID, error) {
	existing, err := store.Read(ctx, db, func(sctx *store.Context) (*entity.LocalNode, error) {
		return store.FindLocalNode(sctx)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("node: check existing local node: %w", err)
	}
	if existing != nil {
		return existing.NodeID, nil
	}

	now := clk.Now()
	nodeID := uuid.New()
	cotonomaID := uuid.New()
	cotoID := uuid.New()
	rootCotonomaID := cotonomaID

	localNode := entity.Node{
		UUID: nodeID, Name: name, Version: 1,
		RootCotonomaID: &rootCotonomaID, CreatedAt: now,
	}
	backingCoto := entity.Coto{
		UUID: cotoID, NodeID: nodeID, PostedByID: nodeID,
		IsCotonoma: true, CreatedAt: now, UpdatedAt: now,
	}
	rootCotonoma := entity.Cotonoma{
		UUID: cotonomaID, NodeID: nodeID, CotoID: cotoID, Name: name,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := localNode.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("node: %w", err)
	}

	var hash *string
	if ownerPassword != "" {
		h, err := auth.HashPassword(ownerPassword)
		if err != nil {
			return uuid.Nil, fmt.Errorf("node: hash owner password: %w", err)
		}
		hash = &h
	}

	_, err = store.Write(ctx, db, func(sctx *store.Context) (struct{}, error) {
		if _, err := store.InsertNode(sctx, localNode); err != nil {
			return struct{}{}, err
		}
		if _, _, err := store.InsertCotonoma(sctx, backingCoto, rootCotonoma); err != nil {
			return struct{}{}, err
		}
		_, err := store.InsertLocalNode(sctx, entity.LocalNode{NodeID: nodeID, OwnerPasswordHash: hash})
		return struct{}{}, err
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("node: create local node: %w", err)
	}

	change := entity.Change{
		Kind: entity.ChangeCreateNode,
		CreateNode: &entity.CreateNodeChange{
			Node: localNode,
			Root: &entity.RootCotonomaPair{Cotonoma: rootCotonoma, Coto: backingCoto},
		},
	}
	if _, err := changelog.LogChange(ctx, db, nodeID, change, now); err != nil {
		return uuid.Nil, fmt.Errorf("node: log create_node: %w", err)
	}
	return nodeID, nil
}
