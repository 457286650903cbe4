package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

const itoSelect = `SELECT uuid, node_id, created_by_id, source_coto_id, target_coto_id,
	description, details, "order", created_at, updated_at FROM itos`

func GetIto(ctx *Context, id uuid.UUID) (*entity.Ito, error) {
	row := ctx.Tx().QueryRow(itoSelect+` WHERE uuid=?`, id.String())
	i, err := scanIto(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// OutgoingItos returns every ito whose source is sourceCotoID, ordered by
// "order" ascending — the sibling list the ordering algorithm operates on.
func OutgoingItos(ctx *Context, sourceCotoID uuid.UUID) ([]entity.Ito, error) {
	rows, err := ctx.Tx().Query(itoSelect+` WHERE source_coto_id=? ORDER BY "order" ASC`, sourceCotoID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entity.Ito
	for rows.Next() {
		i, err := scanIto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// IncomingItos returns every ito that points at targetCotoID.
func IncomingItos(ctx *Context, targetCotoID uuid.UUID) ([]entity.Ito, error) {
	rows, err := ctx.Tx().Query(itoSelect+` WHERE target_coto_id=? ORDER BY created_at ASC`, targetCotoID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entity.Ito
	for rows.Next() {
		i, err := scanIto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// OrdersFrom returns the orders in use at or above `from` among outgoing
// itos of sourceCotoID, ascending — the input ensure_space_at needs to
// decide how far the gap must be shifted.
func OrdersFrom(ctx *Context, sourceCotoID uuid.UUID, from int) ([]int, error) {
	rows, err := ctx.Tx().Query(`SELECT "order" FROM itos WHERE source_coto_id=? AND "order">=?
		ORDER BY "order" ASC`, sourceCotoID.String(), from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var o int
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MaxOrder returns the highest order in use among sourceCotoID's outgoing
// itos, or 0 if it has none.
func MaxOrder(ctx *Context, sourceCotoID uuid.UUID) (int, error) {
	var max *int
	err := ctx.Tx().QueryRow(`SELECT MAX("order") FROM itos WHERE source_coto_id=?`, sourceCotoID.String()).Scan(&max)
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// SetItoOrder overwrites a single ito's order column in place. Used by the
// shift algorithm, which must apply updates in descending order to avoid
// transiently colliding with the unique (node_id, source_coto_id, order)
// index.
func SetItoOrder(ctx *Context, id uuid.UUID, order int) error {
	_, err := ctx.Tx().Exec(`UPDATE itos SET "order"=? WHERE uuid=?`, order, id.String())
	return err
}

// InsertIto creates a new ito row at whatever order the caller has already
// resolved (via the ito package's EnsureSpaceAt).
func InsertIto(ctx *Context, i entity.Ito) (entity.Ito, error) {
	if err := i.Validate(); err != nil {
		return i, err
	}
	_, err := ctx.Tx().Exec(`INSERT INTO itos
		(uuid, node_id, created_by_id, source_coto_id, target_coto_id, description, details,
		 "order", created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		i.UUID.String(), i.NodeID.String(), i.CreatedByID.String(), i.SourceCotoID.String(),
		i.TargetCotoID.String(), nullString(i.Description), nullString(i.Details),
		i.Order, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return i, fmt.Errorf("insert ito: %w", err)
	}
	return i, nil
}

// EditIto applies an ItoContentDiff to an existing ito.
func EditIto(ctx *Context, id uuid.UUID, diff entity.ItoContentDiff, updatedAt time.Time) (entity.Ito, error) {
	i, err := GetIto(ctx, id)
	if err != nil {
		return entity.Ito{}, err
	}
	if i == nil {
		return entity.Ito{}, ErrNotFound
	}
	diff.Apply(i)
	i.UpdatedAt = updatedAt
	if err := i.Validate(); err != nil {
		return *i, err
	}
	_, err = ctx.Tx().Exec(`UPDATE itos SET description=?, details=?, updated_at=? WHERE uuid=?`,
		nullString(i.Description), nullString(i.Details), i.UpdatedAt, id.String())
	return *i, err
}

// ReassignItoOwner moves every ito owned by from over to to, used when a
// parent node's identity changes underneath a subtree it owns.
func ReassignItoOwner(ctx *Context, from, to uuid.UUID) error {
	_, err := ctx.Tx().Exec(`UPDATE itos SET node_id=? WHERE node_id=?`, to.String(), from.String())
	return err
}

func DeleteIto(ctx *Context, id uuid.UUID) error {
	res, err := ctx.Tx().Exec(`DELETE FROM itos WHERE uuid=?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
