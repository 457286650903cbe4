package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

func GetCotonoma(ctx *Context, id uuid.UUID) (*entity.Cotonoma, error) {
	row := ctx.Tx().QueryRow(`SELECT uuid, node_id, coto_id, name, created_at, updated_at
		FROM cotonomas WHERE uuid=?`, id.String())
	c, err := scanCotonoma(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCotonomaByCoto looks up the cotonoma that a given coto "is": every
// cotonoma is backed 1:1 by a coto with IsCotonoma set.
func GetCotonomaByCoto(ctx *Context, cotoID uuid.UUID) (*entity.Cotonoma, error) {
	row := ctx.Tx().QueryRow(`SELECT uuid, node_id, coto_id, name, created_at, updated_at
		FROM cotonomas WHERE coto_id=?`, cotoID.String())
	c, err := scanCotonoma(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCotonomaByName looks up a cotonoma within nodeID by its exact name.
func GetCotonomaByName(ctx *Context, nodeID uuid.UUID, name string) (*entity.Cotonoma, error) {
	row := ctx.Tx().QueryRow(`SELECT uuid, node_id, coto_id, name, created_at, updated_at
		FROM cotonomas WHERE node_id=? AND name=?`, nodeID.String(), name)
	c, err := scanCotonoma(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SearchCotonomasByPrefix returns cotonomas within nodeID whose name begins
// with prefix, most-recently-updated first.
func SearchCotonomasByPrefix(ctx *Context, nodeID uuid.UUID, prefix string, page, size int) (Page[entity.Cotonoma], error) {
	size = NormalizePageSize(size)
	like := prefix + "%"
	total, err := CountRows(ctx.Tx(), `SELECT COUNT(*) FROM cotonomas WHERE node_id=? AND name LIKE ?`,
		nodeID.String(), like)
	if err != nil {
		return Page[entity.Cotonoma]{}, err
	}
	rows, err := ctx.Tx().Query(`SELECT uuid, node_id, coto_id, name, created_at, updated_at
		FROM cotonomas WHERE node_id=? AND name LIKE ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		nodeID.String(), like, size, page*size)
	if err != nil {
		return Page[entity.Cotonoma]{}, err
	}
	defer rows.Close()
	var list []entity.Cotonoma
	for rows.Next() {
		c, err := scanCotonoma(rows)
		if err != nil {
			return Page[entity.Cotonoma]{}, err
		}
		list = append(list, c)
	}
	return Page[entity.Cotonoma]{Rows: list, Size: size, Index: page, TotalRows: total}, rows.Err()
}

// RecentCotonomas returns the most recently updated cotonomas across the
// whole local database (both the local node's own and those replicated
// from parents), as shown on a node's timeline.
func RecentCotonomas(ctx *Context, page, size int) (Page[entity.Cotonoma], error) {
	size = NormalizePageSize(size)
	total, err := CountRows(ctx.Tx(), `SELECT COUNT(*) FROM cotonomas`)
	if err != nil {
		return Page[entity.Cotonoma]{}, err
	}
	rows, err := ctx.Tx().Query(`SELECT uuid, node_id, coto_id, name, created_at, updated_at
		FROM cotonomas ORDER BY updated_at DESC LIMIT ? OFFSET ?`, size, page*size)
	if err != nil {
		return Page[entity.Cotonoma]{}, err
	}
	defer rows.Close()
	var list []entity.Cotonoma
	for rows.Next() {
		c, err := scanCotonoma(rows)
		if err != nil {
			return Page[entity.Cotonoma]{}, err
		}
		list = append(list, c)
	}
	return Page[entity.Cotonoma]{Rows: list, Size: size, Index: page, TotalRows: total}, rows.Err()
}

// InsertCotonoma creates both the cotonoma row and its backing coto row
// (IsCotonoma=true) in one call, mirroring Change::CreateCotonoma.
func InsertCotonoma(ctx *Context, coto entity.Coto, cotonoma entity.Cotonoma) (entity.Coto, entity.Cotonoma, error) {
	if err := cotonoma.Validate(); err != nil {
		return coto, cotonoma, err
	}
	coto.IsCotonoma = true
	if _, err := InsertCoto(ctx, coto); err != nil {
		return coto, cotonoma, fmt.Errorf("insert cotonoma coto: %w", err)
	}
	_, err := ctx.Tx().Exec(`INSERT INTO cotonomas (uuid, node_id, coto_id, name, created_at, updated_at)
		VALUES (?,?,?,?,?,?)`,
		cotonoma.UUID.String(), cotonoma.NodeID.String(), cotonoma.CotoID.String(),
		cotonoma.Name, cotonoma.CreatedAt, cotonoma.UpdatedAt)
	if err != nil {
		return coto, cotonoma, fmt.Errorf("insert cotonoma: %w", err)
	}
	return coto, cotonoma, nil
}

// RenameCotonoma changes a cotonoma's name, keeping it in sync with its
// backing coto's summary field (the original's dual-representation quirk).
func RenameCotonoma(ctx *Context, id uuid.UUID, name string, updatedAt time.Time) (entity.Cotonoma, error) {
	c, err := GetCotonoma(ctx, id)
	if err != nil {
		return entity.Cotonoma{}, err
	}
	if c == nil {
		return entity.Cotonoma{}, ErrNotFound
	}
	c.Name = name
	c.UpdatedAt = updatedAt
	if err := c.Validate(); err != nil {
		return *c, err
	}
	_, err = ctx.Tx().Exec(`UPDATE cotonomas SET name=?, updated_at=? WHERE uuid=?`,
		c.Name, c.UpdatedAt, id.String())
	if err != nil {
		return *c, err
	}
	_, err = ctx.Tx().Exec(`UPDATE cotos SET summary=?, updated_at=? WHERE uuid=?`, c.Name, c.UpdatedAt, c.CotoID.String())
	return *c, err
}

// TouchCotonoma bumps a cotonoma's updated_at, used whenever a new coto is
// posted into it (spec.md's cotonoma-freshness invariant).
func TouchCotonoma(ctx *Context, id uuid.UUID, updatedAt time.Time) error {
	_, err := ctx.Tx().Exec(`UPDATE cotonomas SET updated_at=? WHERE uuid=?`, updatedAt, id.String())
	return err
}

// ReassignCotonomaOwner moves every cotonoma owned by from over to to, used
// when a parent node's identity changes underneath a subtree it owns.
func ReassignCotonomaOwner(ctx *Context, from, to uuid.UUID) error {
	_, err := ctx.Tx().Exec(`UPDATE cotonomas SET node_id=? WHERE node_id=?`, to.String(), from.String())
	return err
}
