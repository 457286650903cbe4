package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/changelog"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/perm"
	"github.com/cotoami/cotoami-go/internal/service"
	"github.com/cotoami/cotoami-go/internal/store"
)

// interChunkPause is spec.md §4.7 step 5: spare downstream event consumers
// (the desktop UI) between backfill chunks.
const interChunkPause = 50 * time.Millisecond

// backfill drives a parent through spec.md §4.7 steps 1-5: repeatedly pull
// a chunk of changes the parent has recorded past what this node has
// already received, importing each through changelog.ImportChange, until a
// chunk's last entry reaches the parent's reported tail or a chunk comes
// back empty.
func backfill(
	ctx context.Context,
	db *store.Database,
	localNodeID, parentNodeID uuid.UUID,
	svc service.Service,
	events *bus.Publisher[bus.LocalNodeEvent, uuid.UUID],
) error {
	parent, err := store.Read(ctx, db, func(sctx *store.Context) (*entity.ParentNode, error) {
		return store.GetParentNode(sctx, parentNodeID)
	})
	if err != nil {
		return fmt.Errorf("supervisor: read parent node: %w", err)
	}
	if parent == nil {
		return fmt.Errorf("supervisor: %s is not a registered parent", parentNodeID)
	}

	importFrom := parent.ChangesReceived + 1
	from := importFrom

	events.Publish(localNodeID, bus.LocalNodeEvent{Kind: bus.EventParentSyncStart, NodeID: parentNodeID, RangeFrom: importFrom})

	for {
		chunk, outOfRangeMax, err := requestChunk(svc, parentNodeID, from)
		if err != nil {
			events.Publish(localNodeID, bus.LocalNodeEvent{Kind: bus.EventParentSyncEnd, NodeID: parentNodeID, Error: err.Error()})
			return err
		}
		if outOfRangeMax != nil {
			if from == importFrom && parent.ChangesReceived == *outOfRangeMax {
				// Already caught up: nothing beyond what's been received.
				events.Publish(localNodeID, bus.LocalNodeEvent{
					Kind: bus.EventParentSyncEnd, NodeID: parentNodeID, RangeFrom: importFrom, RangeTo: importFrom - 1,
				})
				return nil
			}
			err := fmt.Errorf("supervisor: tried to import from %d, but the parent's last change number was %d", from, *outOfRangeMax)
			events.Publish(localNodeID, bus.LocalNodeEvent{Kind: bus.EventParentSyncEnd, NodeID: parentNodeID, Error: err.Error()})
			return err
		}

		for _, entry := range chunk.Chunk {
			if _, err := changelog.ImportChange(ctx, db, localNodeID, parentNodeID, entry); err != nil {
				events.Publish(localNodeID, bus.LocalNodeEvent{Kind: bus.EventParentSyncEnd, NodeID: parentNodeID, Error: err.Error()})
				return fmt.Errorf("supervisor: import change %d: %w", entry.SerialNumber, err)
			}
		}

		lastOfChunk := int64(0)
		if n := len(chunk.Chunk); n > 0 {
			lastOfChunk = chunk.Chunk[n-1].SerialNumber
		}
		events.Publish(localNodeID, bus.LocalNodeEvent{
			Kind: bus.EventParentSyncProgress, NodeID: parentNodeID,
			Progress: lastOfChunk - importFrom + 1, RangeFrom: importFrom, RangeTo: lastOfChunk,
		})

		// Per the original's is_last_chunk: caught up once the chunk's last
		// entry reaches (or, defensively, passes) the reported tail, or the
		// chunk came back empty.
		if lastOfChunk == 0 || lastOfChunk >= chunk.LastSerialNumber {
			events.Publish(localNodeID, bus.LocalNodeEvent{
				Kind: bus.EventParentSyncEnd, NodeID: parentNodeID, RangeFrom: importFrom, RangeTo: lastOfChunk,
			})
			return nil
		}
		from = lastOfChunk + 1

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interChunkPause):
		}
	}
}

// requestChunk calls ChunkOfChanges against svc (the parent's routed
// NodeService handle). A change-number-out-of-range response is reported
// via outOfRangeMax rather than as an error, since the caller must inspect
// `max` to tell "already synced" apart from a genuinely broken replication.
func requestChunk(svc service.Service, parentNodeID uuid.UUID, from int64) (result service.ChunkOfChangesResult, outOfRangeMax *int64, err error) {
	resp := svc.Call(service.Request{
		ID:     uuid.New(),
		From:   perm.LocalOwner{ID: parentNodeID},
		Accept: service.FormatMessagePack,
		Command: service.Command{
			Name:           service.CmdChunkOfChanges,
			ChunkOfChanges: &service.ChunkOfChangesInput{From: from},
		},
	})
	if !resp.IsOK() {
		if resp.Err.Kind == service.ErrKindRequest && resp.Err.Code == "change-number-out-of-range" {
			if max, ok := resp.Err.Params["max"]; ok {
				m := toInt64(max)
				return service.ChunkOfChangesResult{}, &m, nil
			}
		}
		return service.ChunkOfChangesResult{}, nil, fmt.Errorf("supervisor: chunk_of_changes: %s", resp.Err.Error())
	}

	switch resp.BodyFormat {
	case service.FormatJSON:
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return service.ChunkOfChangesResult{}, nil, fmt.Errorf("supervisor: decode chunk (json): %w", err)
		}
	default:
		if err := msgpack.Unmarshal(resp.Body, &result); err != nil {
			return service.ChunkOfChangesResult{}, nil, fmt.Errorf("supervisor: decode chunk (msgpack): %w", err)
		}
	}
	return result, nil, nil
}

// toInt64 normalizes a decoded error param (float64 from JSON, int64 from
// msgpack) into the int64 the backfill loop compares against.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// applyTailChange handles one live Change event per spec.md §4.7's "Live
// tail" paragraph: import it, and if it turns out to be out of order
// (the parent raced a concurrent backfill, or this connection missed
// entries), re-run backfill for that parent rather than corrupt the log.
func applyTailChange(
	ctx context.Context,
	db *store.Database,
	localNodeID, parentNodeID uuid.UUID,
	entry entity.ChangelogEntry,
	svc service.Service,
	events *bus.Publisher[bus.LocalNodeEvent, uuid.UUID],
) error {
	_, err := changelog.ImportChange(ctx, db, localNodeID, parentNodeID, entry)
	if err == nil {
		return nil
	}
	var unexpected changelog.UnexpectedChangeNumber
	if !isUnexpectedChangeNumber(err, &unexpected) {
		return err
	}
	// Re-entrant backfill: a second concurrent attempt seeing the same
	// condition is harmless since ImportChange dedups by (origin, serial).
	return backfill(ctx, db, localNodeID, parentNodeID, svc, events)
}

func isUnexpectedChangeNumber(err error, target *changelog.UnexpectedChangeNumber) bool {
	if u, ok := err.(changelog.UnexpectedChangeNumber); ok {
		*target = u
		return true
	}
	return false
}
