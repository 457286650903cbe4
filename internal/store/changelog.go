package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cotoami/cotoami-go/internal/entity"
)

func scanChangelogEntry(row scanner) (entity.ChangelogEntry, error) {
	var e entity.ChangelogEntry
	var originNodeID sql.NullString
	var changeBytes []byte
	var importErr sql.NullString
	if err := row.Scan(&e.SerialNumber, &originNodeID, &e.OriginSerialNumber, &changeBytes,
		&importErr, &e.InsertedAt); err != nil {
		return e, err
	}
	id, err := uuid.Parse(originNodeID.String)
	if err != nil {
		return e, err
	}
	e.OriginNodeID = id
	if err := msgpack.Unmarshal(changeBytes, &e.Change); err != nil {
		return e, fmt.Errorf("decode change: %w", err)
	}
	e.ImportError = scanNullString(importErr)
	return e, nil
}

// LastSerialNumber returns the highest serial_number currently in the log,
// or 0 if the log is empty.
func LastSerialNumber(ctx *Context) (int64, error) {
	var max sql.NullInt64
	if err := ctx.Tx().QueryRow(`SELECT MAX(serial_number) FROM changelog`).Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// LastOriginSerialNumber returns the highest origin_serial_number this node
// has logged for a given origin, used to assign the next outgoing change's
// sequence number when originNodeID is this node's own id.
func LastOriginSerialNumber(ctx *Context, originNodeID uuid.UUID) (int64, error) {
	var max sql.NullInt64
	if err := ctx.Tx().QueryRow(`SELECT MAX(origin_serial_number) FROM changelog WHERE origin_node_id=?`,
		originNodeID.String()).Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// InsertChangelogEntry appends one entry and returns it with its assigned
// serial_number filled in. importError, when non-nil, records that applying
// the change failed without aborting the insert (spec.md §4.2 step 4).
func InsertChangelogEntry(ctx *Context, originNodeID uuid.UUID, originSerial int64, change entity.Change, importError *string, insertedAt time.Time) (entity.ChangelogEntry, error) {
	encoded, err := msgpack.Marshal(&change)
	if err != nil {
		return entity.ChangelogEntry{}, fmt.Errorf("encode change: %w", err)
	}
	res, err := ctx.Tx().Exec(`INSERT INTO changelog (origin_node_id, origin_serial_number, change, import_error, inserted_at)
		VALUES (?,?,?,?,?)`, originNodeID.String(), originSerial, encoded, importError, insertedAt)
	if err != nil {
		return entity.ChangelogEntry{}, fmt.Errorf("insert changelog entry: %w", err)
	}
	serial, err := res.LastInsertId()
	if err != nil {
		return entity.ChangelogEntry{}, err
	}
	return entity.ChangelogEntry{
		SerialNumber: serial, OriginNodeID: originNodeID,
		OriginSerialNumber: originSerial, Change: change, ImportError: importError, InsertedAt: insertedAt,
	}, nil
}

// ExistsOriginSerial reports whether an entry with this (origin, serial)
// pair has already been logged — the dedup check import_change performs
// before applying a change a second time.
func ExistsOriginSerial(ctx *Context, originNodeID uuid.UUID, originSerial int64) (bool, error) {
	var n int
	err := ctx.Tx().QueryRow(`SELECT COUNT(*) FROM changelog WHERE origin_node_id=? AND origin_serial_number=?`,
		originNodeID.String(), originSerial).Scan(&n)
	return n > 0, err
}

// ChunkOfChanges returns up to limit entries with serial_number >= from,
// ascending, for a child streaming backfill+tail from a given point.
func ChunkOfChanges(ctx *Context, from int64, limit int) ([]entity.ChangelogEntry, error) {
	rows, err := ctx.Tx().Query(`SELECT serial_number, origin_node_id, origin_serial_number, change,
		import_error, inserted_at FROM changelog WHERE serial_number >= ? ORDER BY serial_number ASC LIMIT ?`,
		from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entity.ChangelogEntry
	for rows.Next() {
		e, err := scanChangelogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
