// Package changelog implements the replicated append-only change log (C3):
// logging locally originated changes, handing out chunks to children, and
// importing a parent's chunk idempotently. Grounded on changelog.rs and
// import_change's algorithm in original_source.
package changelog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/store"
)

// DefaultChunkSize is used by ChunkOfChanges when the caller doesn't
// specify one (spec.md's CHANGES_CHUNK_SIZE default).
const DefaultChunkSize = 30

// LogChange appends a locally originated change: originNodeID is this
// node's own id, and the origin_serial_number is assigned as one past
// whatever this node has logged for itself so far.
func LogChange(ctx context.Context, db *store.Database, localNodeID uuid.UUID, change entity.Change, insertedAt time.Time) (entity.ChangelogEntry, error) {
	return store.Write(ctx, db, func(sctx *store.Context) (entity.ChangelogEntry, error) {
		last, err := store.LastOriginSerialNumber(sctx, localNodeID)
		if err != nil {
			return entity.ChangelogEntry{}, fmt.Errorf("changelog: read last serial: %w", err)
		}
		return store.InsertChangelogEntry(sctx, localNodeID, last+1, change, nil, insertedAt)
	})
}

// Chunk is the result of ChunkOfChanges: a page of entries plus the log's
// current tail, so the caller can tell a short page (caught up) apart from
// a full one (more to fetch).
type Chunk struct {
	Entries          []entity.ChangelogEntry
	LastSerialNumber int64
}

// ChunkOfChanges returns entries with serial_number >= from, ascending,
// capped at size, alongside the log's current tail serial number — per
// spec.md §4.2, `from` must lie in [1, last] or the call fails with
// ChangeNumberOutOfRange (the caller uses `max` from that error to detect
// "already synced" when from is exactly one past the tail).
func ChunkOfChanges(ctx context.Context, db *store.Database, from int64, size int) (Chunk, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return store.Read(ctx, db, func(sctx *store.Context) (Chunk, error) {
		last, err := store.LastSerialNumber(sctx)
		if err != nil {
			return Chunk{}, err
		}
		if from < 1 || from > last {
			return Chunk{LastSerialNumber: last}, ChangeNumberOutOfRange{Max: last}
		}
		entries, err := store.ChunkOfChanges(sctx, from, size)
		if err != nil {
			return Chunk{}, err
		}
		return Chunk{Entries: entries, LastSerialNumber: last}, nil
	})
}

// ImportChange applies one entry received from parentNodeID, in order:
//  1. refuse if the parent relationship has been forked;
//  2. refuse if the entry's serial_number (the parent's own stream
//     position, not the origin's) skips ahead of changes_received+1 —
//     this check applies unconditionally, regardless of which node
//     originated the entry, since it's the parent's relay order being
//     verified, not the origin's;
//  3. if an entry with this (origin, serial) pair is already logged,
//     treat this as a harmless duplicate and skip re-applying it;
//  4. otherwise apply the change, capturing (not propagating) any error
//     the applier raises, and log the entry regardless;
//  5. unconditionally advance the parent's received-changes counter, even
//     on the duplicate path, since the parent's serial space has still
//     moved forward by one.
func ImportChange(
	ctx context.Context,
	db *store.Database,
	localNodeID uuid.UUID,
	parentNodeID uuid.UUID,
	entry entity.ChangelogEntry,
) (entity.ChangelogEntry, error) {
	return store.Write(ctx, db, func(sctx *store.Context) (entity.ChangelogEntry, error) {
		parent, err := store.GetParentNode(sctx, parentNodeID)
		if err != nil {
			return entity.ChangelogEntry{}, err
		}
		if parent == nil {
			return entity.ChangelogEntry{}, fmt.Errorf("changelog: %s is not a registered parent", parentNodeID)
		}
		if parent.Forked {
			return entity.ChangelogEntry{}, AlreadyForkedFromParent{ParentNodeID: parentNodeID.String()}
		}

		expected := parent.ChangesReceived + 1
		if entry.SerialNumber != expected {
			return entity.ChangelogEntry{}, UnexpectedChangeNumber{
				ParentNodeID: parentNodeID.String(), Expected: expected, Actual: entry.SerialNumber,
			}
		}

		imported := entry.ToImport()
		exists, err := store.ExistsOriginSerial(sctx, imported.OriginNodeID, imported.OriginSerialNumber)
		if err != nil {
			return entity.ChangelogEntry{}, err
		}
		if !exists {
			if applyErr := ApplyChange(sctx, localNodeID, imported.Change); applyErr != nil {
				msg := applyErr.Error()
				imported.ImportError = &msg
			}
			imported, err = store.InsertChangelogEntry(sctx, imported.OriginNodeID, imported.OriginSerialNumber,
				imported.Change, imported.ImportError, imported.InsertedAt)
			if err != nil {
				return entity.ChangelogEntry{}, fmt.Errorf("changelog: insert imported entry: %w", err)
			}
		}

		if _, err := store.IncrementChangesReceived(sctx, parentNodeID); err != nil {
			return entity.ChangelogEntry{}, fmt.Errorf("changelog: advance parent counter: %w", err)
		}
		return imported, nil
	})
}
