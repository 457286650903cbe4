package bus

import (
	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

// LocalNodeEventKind tags a LocalNodeEvent, the fourth topic (`events`):
// process-local notifications about supervisor state and sync progress
// that a UI or other in-process consumer observes.
type LocalNodeEventKind string

const (
	EventServerStateChanged LocalNodeEventKind = "server_state_changed"
	EventParentSyncStart    LocalNodeEventKind = "parent_sync_start"
	EventParentSyncProgress LocalNodeEventKind = "parent_sync_progress"
	EventParentSyncEnd      LocalNodeEventKind = "parent_sync_end"
	EventSessionExpired     LocalNodeEventKind = "session_expired"
)

// LocalNodeEvent is the payload published on the `events` topic.
type LocalNodeEvent struct {
	Kind LocalNodeEventKind

	NodeID   uuid.UUID
	State    string `msgpack:",omitempty" json:",omitempty"`
	Progress int64  `msgpack:",omitempty" json:",omitempty"`
	Total    int64  `msgpack:",omitempty" json:",omitempty"`
	RangeFrom int64 `msgpack:",omitempty" json:",omitempty"`
	RangeTo   int64 `msgpack:",omitempty" json:",omitempty"`
	Error    string `msgpack:",omitempty" json:",omitempty"`
}

// Buses bundles the four topic buses named in spec.md §4.9, shared process-wide.
type Buses struct {
	// Changes carries locally originated changelog entries, keyed by this
	// node's own id (there is exactly one topic value in practice, but
	// keeping it keyed lets a future multi-node-per-process host reuse the
	// same bus).
	Changes *Publisher[entity.ChangelogEntry, uuid.UUID]

	// RemoteChanges carries entries imported from a parent, keyed by that
	// parent's node id.
	RemoteChanges *Publisher[entity.ChangelogEntry, uuid.UUID]

	// Responses carries a Response keyed by its Request's id, for a
	// waiting parent-service caller (§4.8).
	Responses *Publisher[any, uuid.UUID]

	// Events carries LocalNodeEvent, keyed by the node id it concerns.
	Events *Publisher[LocalNodeEvent, uuid.UUID]
}

// NewBuses constructs an empty set of the four standard topics.
func NewBuses() *Buses {
	return &Buses{
		Changes:       New[entity.ChangelogEntry, uuid.UUID](),
		RemoteChanges: New[entity.ChangelogEntry, uuid.UUID](),
		Responses:     New[any, uuid.UUID](),
		Events:        New[LocalNodeEvent, uuid.UUID](),
	}
}
