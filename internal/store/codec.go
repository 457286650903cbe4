package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

// This file is the explicit mapping between row tuples and domain structs
// that replaces Diesel's AsChangeset/Queryable derive macros: plain codec
// functions, not reflection or code generation.

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func scanNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func scanNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func scanNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func encodeRepostedIn(ids map[uuid.UUID]struct{}) (string, error) {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id.String())
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode reposted_in_ids: %w", err)
	}
	return string(b), nil
}

func decodeRepostedIn(raw string) (map[uuid.UUID]struct{}, error) {
	var list []string
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode reposted_in_ids: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	out := make(map[uuid.UUID]struct{}, len(list))
	for _, s := range list {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, nil
}

func scanNode(row scanner) (entity.Node, error) {
	var n entity.Node
	var id, root sql.NullString
	if err := row.Scan(&id, &n.Name, &n.Icon, &n.Version, &root, &n.CreatedAt); err != nil {
		return n, err
	}
	uid, err := uuid.Parse(id.String)
	if err != nil {
		return n, err
	}
	n.UUID = uid
	n.RootCotonomaID, err = scanNullUUID(root)
	return n, err
}

func scanCoto(row scanner) (entity.Coto, error) {
	var c entity.Coto
	var (
		id, nodeID, postedIn, postedBy, content, summary, mime, repostOf sql.NullString
		media                                                            []byte
		geoLong, geoLat                                                  sql.NullFloat64
		dtStart, dtEnd                                                   sql.NullTime
		repostedIn                                                       string
	)
	if err := row.Scan(&id, &nodeID, &postedIn, &postedBy, &content, &summary,
		&media, &mime, &geoLong, &geoLat, &dtStart, &dtEnd, &c.IsCotonoma,
		&repostOf, &repostedIn, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	var err error
	if c.UUID, err = uuid.Parse(id.String); err != nil {
		return c, err
	}
	if c.NodeID, err = uuid.Parse(nodeID.String); err != nil {
		return c, err
	}
	if c.PostedInID, err = scanNullUUID(postedIn); err != nil {
		return c, err
	}
	if c.PostedByID, err = uuid.Parse(postedBy.String); err != nil {
		return c, err
	}
	c.Content = scanNullString(content)
	c.Summary = scanNullString(summary)
	if len(media) > 0 {
		c.Media = &entity.MediaContent{Bytes: media, Mime: mime.String}
	}
	if geoLong.Valid && geoLat.Valid {
		c.Geolocation = &entity.Geolocation{Longitude: geoLong.Float64, Latitude: geoLat.Float64}
	}
	if dtStart.Valid {
		c.DatetimeRange = &entity.DatetimeRange{Start: dtStart.Time, End: scanNullTime(dtEnd)}
	}
	if c.RepostOfID, err = scanNullUUID(repostOf); err != nil {
		return c, err
	}
	if c.RepostedInIDs, err = decodeRepostedIn(repostedIn); err != nil {
		return c, err
	}
	return c, nil
}

func scanCotonoma(row scanner) (entity.Cotonoma, error) {
	var c entity.Cotonoma
	var id, nodeID, cotoID sql.NullString
	if err := row.Scan(&id, &nodeID, &cotoID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	var err error
	if c.UUID, err = uuid.Parse(id.String); err != nil {
		return c, err
	}
	if c.NodeID, err = uuid.Parse(nodeID.String); err != nil {
		return c, err
	}
	c.CotoID, err = uuid.Parse(cotoID.String)
	return c, err
}

func scanIto(row scanner) (entity.Ito, error) {
	var i entity.Ito
	var id, nodeID, createdBy, source, target, desc, details sql.NullString
	if err := row.Scan(&id, &nodeID, &createdBy, &source, &target, &desc, &details,
		&i.Order, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return i, err
	}
	var err error
	if i.UUID, err = uuid.Parse(id.String); err != nil {
		return i, err
	}
	if i.NodeID, err = uuid.Parse(nodeID.String); err != nil {
		return i, err
	}
	if i.CreatedByID, err = uuid.Parse(createdBy.String); err != nil {
		return i, err
	}
	if i.SourceCotoID, err = uuid.Parse(source.String); err != nil {
		return i, err
	}
	if i.TargetCotoID, err = uuid.Parse(target.String); err != nil {
		return i, err
	}
	i.Description = scanNullString(desc)
	i.Details = scanNullString(details)
	return i, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
