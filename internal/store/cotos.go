package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

func GetCoto(ctx *Context, id uuid.UUID) (*entity.Coto, error) {
	row := ctx.Tx().QueryRow(cotoSelect+` WHERE uuid=?`, id.String())
	c, err := scanCoto(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const cotoSelect = `SELECT uuid, node_id, posted_in_id, posted_by_id, content, summary,
	media_content, media_mime, geo_longitude, geo_latitude, datetime_start, datetime_end,
	is_cotonoma, repost_of_id, reposted_in_ids, created_at, updated_at FROM cotos`

// InsertCoto creates a new coto row. If it is posted into a cotonoma, the
// cotonoma's updated_at is bumped in the same call.
func InsertCoto(ctx *Context, c entity.Coto) (entity.Coto, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	var media []byte
	var mime *string
	if c.Media != nil {
		media = c.Media.Bytes
		mime = &c.Media.Mime
	}
	var geoLong, geoLat *float64
	if c.Geolocation != nil {
		geoLong = &c.Geolocation.Longitude
		geoLat = &c.Geolocation.Latitude
	}
	var dtStart, dtEnd *time.Time
	if c.DatetimeRange != nil {
		dtStart = &c.DatetimeRange.Start
		dtEnd = c.DatetimeRange.End
	}
	repostedIn, err := encodeRepostedIn(c.RepostedInIDs)
	if err != nil {
		return c, err
	}
	if repostedIn == "" {
		repostedIn = "[]"
	}
	_, err = ctx.Tx().Exec(`INSERT INTO cotos
		(uuid, node_id, posted_in_id, posted_by_id, content, summary, media_content, media_mime,
		 geo_longitude, geo_latitude, datetime_start, datetime_end, is_cotonoma, repost_of_id,
		 reposted_in_ids, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.UUID.String(), c.NodeID.String(), nullUUID(c.PostedInID), c.PostedByID.String(),
		nullString(c.Content), nullString(c.Summary), media, mime, geoLong, geoLat,
		nullTimePtr(dtStart), nullTimePtr(dtEnd), c.IsCotonoma, nullUUID(c.RepostOfID),
		repostedIn, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return c, fmt.Errorf("insert coto: %w", err)
	}
	if c.PostedInID != nil {
		if err := TouchCotonoma(ctx, *c.PostedInID, c.CreatedAt); err != nil {
			return c, fmt.Errorf("touch cotonoma: %w", err)
		}
	}
	return c, nil
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// EditCoto applies a CotoContentDiff to an existing coto, the store side of
// Change::EditCoto.
func EditCoto(ctx *Context, id uuid.UUID, diff entity.CotoContentDiff, updatedAt time.Time) (entity.Coto, error) {
	c, err := GetCoto(ctx, id)
	if err != nil {
		return entity.Coto{}, err
	}
	if c == nil {
		return entity.Coto{}, ErrNotFound
	}
	diff.Apply(c)
	c.UpdatedAt = updatedAt
	if err := c.Validate(); err != nil {
		return *c, err
	}
	var media []byte
	var mime *string
	if c.Media != nil {
		media = c.Media.Bytes
		mime = &c.Media.Mime
	}
	var geoLong, geoLat *float64
	if c.Geolocation != nil {
		geoLong = &c.Geolocation.Longitude
		geoLat = &c.Geolocation.Latitude
	}
	var dtStart, dtEnd *time.Time
	if c.DatetimeRange != nil {
		dtStart = &c.DatetimeRange.Start
		dtEnd = c.DatetimeRange.End
	}
	_, err = ctx.Tx().Exec(`UPDATE cotos SET content=?, summary=?, media_content=?, media_mime=?,
		geo_longitude=?, geo_latitude=?, datetime_start=?, datetime_end=?, updated_at=? WHERE uuid=?`,
		nullString(c.Content), nullString(c.Summary), media, mime, geoLong, geoLat,
		nullTimePtr(dtStart), nullTimePtr(dtEnd), c.UpdatedAt, id.String())
	return *c, err
}

// PromoteCoto turns an existing coto into a cotonoma with the caller-supplied
// cotonoma id (so the change can replicate with a stable id).
func PromoteCoto(ctx *Context, cotoID uuid.UUID, cotonomaID uuid.UUID, promotedAt time.Time) (entity.Cotonoma, error) {
	c, err := GetCoto(ctx, cotoID)
	if err != nil {
		return entity.Cotonoma{}, err
	}
	if c == nil {
		return entity.Cotonoma{}, ErrNotFound
	}
	if c.IsCotonoma {
		return entity.Cotonoma{}, fmt.Errorf("%w: coto %s is already a cotonoma", ErrConflict, cotoID)
	}
	name := ""
	if c.Summary != nil {
		name = *c.Summary
	} else if c.Content != nil {
		name = *c.Content
	}
	cotonoma := entity.Cotonoma{
		UUID: cotonomaID, NodeID: c.NodeID, CotoID: c.UUID,
		Name: name, CreatedAt: promotedAt, UpdatedAt: promotedAt,
	}
	if err := cotonoma.Validate(); err != nil {
		return cotonoma, err
	}
	_, err = ctx.Tx().Exec(`UPDATE cotos SET is_cotonoma=1, updated_at=? WHERE uuid=?`, promotedAt, cotoID.String())
	if err != nil {
		return cotonoma, err
	}
	_, err = ctx.Tx().Exec(`INSERT INTO cotonomas (uuid, node_id, coto_id, name, created_at, updated_at)
		VALUES (?,?,?,?,?,?)`,
		cotonoma.UUID.String(), cotonoma.NodeID.String(), cotonoma.CotoID.String(),
		cotonoma.Name, cotonoma.CreatedAt, cotonoma.UpdatedAt)
	return cotonoma, err
}

// ReassignCotoOwner moves every coto owned by from over to to, used when a
// parent node's identity changes underneath a subtree it owns.
func ReassignCotoOwner(ctx *Context, from, to uuid.UUID) error {
	_, err := ctx.Tx().Exec(`UPDATE cotos SET node_id=? WHERE node_id=?`, to.String(), from.String())
	return err
}

// DeleteCoto removes a coto, refusing (ErrConflict) if it is still
// referenced as the source or target of an ito, or backs a cotonoma.
func DeleteCoto(ctx *Context, id uuid.UUID) error {
	var itoCount int
	err := ctx.Tx().QueryRow(`SELECT COUNT(*) FROM itos WHERE source_coto_id=? OR target_coto_id=?`,
		id.String(), id.String()).Scan(&itoCount)
	if err != nil {
		return err
	}
	if itoCount > 0 {
		return fmt.Errorf("%w: coto %s is still connected by %d ito(s)", ErrConflict, id, itoCount)
	}
	var cotonomaCount int
	err = ctx.Tx().QueryRow(`SELECT COUNT(*) FROM cotonomas WHERE coto_id=?`, id.String()).Scan(&cotonomaCount)
	if err != nil {
		return err
	}
	if cotonomaCount > 0 {
		return fmt.Errorf("%w: coto %s backs a cotonoma", ErrConflict, id)
	}
	res, err := ctx.Tx().Exec(`DELETE FROM cotos WHERE uuid=?`, id.String())
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

// CotosInCotonoma returns cotos posted into cotonomaID, most recent first.
func CotosInCotonoma(ctx *Context, cotonomaID uuid.UUID, page, size int) (Page[entity.Coto], error) {
	size = NormalizePageSize(size)
	total, err := CountRows(ctx.Tx(), `SELECT COUNT(*) FROM cotos WHERE posted_in_id=?`, cotonomaID.String())
	if err != nil {
		return Page[entity.Coto]{}, err
	}
	rows, err := ctx.Tx().Query(cotoSelect+` WHERE posted_in_id=? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		cotonomaID.String(), size, page*size)
	if err != nil {
		return Page[entity.Coto]{}, err
	}
	defer rows.Close()
	var list []entity.Coto
	for rows.Next() {
		c, err := scanCoto(rows)
		if err != nil {
			return Page[entity.Coto]{}, err
		}
		list = append(list, c)
	}
	return Page[entity.Coto]{Rows: list, Size: size, Index: page, TotalRows: total}, rows.Err()
}

// RecentCotos returns the most recently created cotos across the local
// database, as shown on a node's flow/timeline view.
func RecentCotos(ctx *Context, page, size int) (Page[entity.Coto], error) {
	size = NormalizePageSize(size)
	total, err := CountRows(ctx.Tx(), `SELECT COUNT(*) FROM cotos`)
	if err != nil {
		return Page[entity.Coto]{}, err
	}
	rows, err := ctx.Tx().Query(cotoSelect+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, size, page*size)
	if err != nil {
		return Page[entity.Coto]{}, err
	}
	defer rows.Close()
	var list []entity.Coto
	for rows.Next() {
		c, err := scanCoto(rows)
		if err != nil {
			return Page[entity.Coto]{}, err
		}
		list = append(list, c)
	}
	return Page[entity.Coto]{Rows: list, Size: size, Index: page, TotalRows: total}, rows.Err()
}

// AddRepost records that cotoID has been reposted into cotonomaID, updating
// the reverse-lookup set stored on the original coto.
func AddRepost(ctx *Context, cotoID, cotonomaID uuid.UUID) error {
	c, err := GetCoto(ctx, cotoID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	if c.RepostedInIDs == nil {
		c.RepostedInIDs = map[uuid.UUID]struct{}{}
	}
	c.RepostedInIDs[cotonomaID] = struct{}{}
	encoded, err := encodeRepostedIn(c.RepostedInIDs)
	if err != nil {
		return err
	}
	_, err = ctx.Tx().Exec(`UPDATE cotos SET reposted_in_ids=? WHERE uuid=?`, encoded, cotoID.String())
	return err
}
