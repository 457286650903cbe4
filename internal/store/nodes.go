package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

// GetNode reads a node by id.
func GetNode(ctx *Context, id uuid.UUID) (*entity.Node, error) {
	row := ctx.Tx().QueryRow(`SELECT uuid, name, icon, version, root_cotonoma_id, created_at
		FROM nodes WHERE uuid = ?`, id.String())
	n, err := scanNode(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return &n, nil
}

// InsertNode creates a new node row.
func InsertNode(ctx *Context, n entity.Node) (entity.Node, error) {
	if err := n.Validate(); err != nil {
		return n, err
	}
	_, err := ctx.Tx().Exec(`INSERT INTO nodes (uuid, name, icon, version, root_cotonoma_id, created_at)
		VALUES (?,?,?,?,?,?)`,
		n.UUID.String(), n.Name, n.Icon, n.Version, nullUUID(n.RootCotonomaID), n.CreatedAt)
	if err != nil {
		return n, fmt.Errorf("insert node: %w", err)
	}
	return n, nil
}

// UpsertNode inserts a node or, if it already exists, replaces its fields
// and bumps version. This backs the Change::UpsertNode variant.
func UpsertNode(ctx *Context, n entity.Node) (entity.Node, error) {
	existing, err := GetNode(ctx, n.UUID)
	if err != nil {
		return n, err
	}
	if existing == nil {
		return InsertNode(ctx, n)
	}
	n.Version = existing.Version + 1
	_, err = ctx.Tx().Exec(`UPDATE nodes SET name=?, icon=?, version=?, root_cotonoma_id=? WHERE uuid=?`,
		n.Name, n.Icon, n.Version, nullUUID(n.RootCotonomaID), n.UUID.String())
	if err != nil {
		return n, fmt.Errorf("upsert node: %w", err)
	}
	return n, nil
}

// RenameNode updates a node's name and bumps version.
func RenameNode(ctx *Context, id uuid.UUID, name string) (entity.Node, error) {
	n, err := GetNode(ctx, id)
	if err != nil {
		return entity.Node{}, err
	}
	if n == nil {
		return entity.Node{}, ErrNotFound
	}
	n.Name = name
	n.Version++
	if err := n.Validate(); err != nil {
		return *n, err
	}
	_, err = ctx.Tx().Exec(`UPDATE nodes SET name=?, version=? WHERE uuid=?`, n.Name, n.Version, id.String())
	return *n, err
}

// SetNodeIcon updates a node's icon and bumps version.
func SetNodeIcon(ctx *Context, id uuid.UUID, icon []byte) (entity.Node, error) {
	n, err := GetNode(ctx, id)
	if err != nil {
		return entity.Node{}, err
	}
	if n == nil {
		return entity.Node{}, ErrNotFound
	}
	n.Icon = icon
	n.Version++
	_, err = ctx.Tx().Exec(`UPDATE nodes SET icon=?, version=? WHERE uuid=?`, icon, n.Version, id.String())
	return *n, err
}

// SetRootCotonoma records a node's root cotonoma.
func SetRootCotonoma(ctx *Context, nodeID, cotonomaID uuid.UUID) (entity.Node, error) {
	n, err := GetNode(ctx, nodeID)
	if err != nil {
		return entity.Node{}, err
	}
	if n == nil {
		return entity.Node{}, ErrNotFound
	}
	n.RootCotonomaID = &cotonomaID
	n.Version++
	_, err = ctx.Tx().Exec(`UPDATE nodes SET root_cotonoma_id=?, version=? WHERE uuid=?`,
		cotonomaID.String(), n.Version, nodeID.String())
	return *n, err
}
