package entity

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind tags which variant a Change holds. Values are stable strings
// (not ordinals) so that adding a new kind, or a new field to an existing
// kind, never breaks an older reader decoding a map-encoded payload: unknown
// fields are simply ignored and missing ones default to zero value.
type ChangeKind string

const (
	ChangeNone             ChangeKind = "none"
	ChangeCreateNode       ChangeKind = "create_node"
	ChangeUpsertNode       ChangeKind = "upsert_node"
	ChangeRenameNode       ChangeKind = "rename_node"
	ChangeSetNodeIcon      ChangeKind = "set_node_icon"
	ChangeSetRootCotonoma  ChangeKind = "set_root_cotonoma"
	ChangeCreateCoto       ChangeKind = "create_coto"
	ChangeEditCoto         ChangeKind = "edit_coto"
	ChangePromote          ChangeKind = "promote"
	ChangeDeleteCoto       ChangeKind = "delete_coto"
	ChangeCreateCotonoma   ChangeKind = "create_cotonoma"
	ChangeRenameCotonoma   ChangeKind = "rename_cotonoma"
	ChangeCreateIto        ChangeKind = "create_ito"
	ChangeEditIto          ChangeKind = "edit_ito"
	ChangeDeleteIto        ChangeKind = "delete_ito"
	ChangeChangeItoOrder   ChangeKind = "change_ito_order"
	// ChangeOwnerNode moves a subtree's owning node. Dropped from the
	// distilled spec's enumeration but present in the original
	// implementation's apply_change dispatch; see SPEC_FULL.md §3.
	ChangeOwnerNode ChangeKind = "change_owner_node"
)

// Change is the tagged variant representing one atomic mutation. Exactly one
// of the typed fields is populated, selected by Kind. This "one-of struct"
// shape (rather than a Go interface + type switch) is what keeps the
// encoding forward-compatible under both JSON and the map-mode MessagePack
// encoding used on the wire: an unknown Kind still decodes, and an older
// reader that doesn't recognize a newly-added field simply drops it.
type Change struct {
	Kind ChangeKind

	CreateNode      *CreateNodeChange      `msgpack:",omitempty" json:",omitempty"`
	UpsertNode      *Node                  `msgpack:",omitempty" json:",omitempty"`
	RenameNode      *RenameNodeChange      `msgpack:",omitempty" json:",omitempty"`
	SetNodeIcon     *SetNodeIconChange     `msgpack:",omitempty" json:",omitempty"`
	SetRootCotonoma *SetRootCotonomaChange `msgpack:",omitempty" json:",omitempty"`
	CreateCoto      *Coto                  `msgpack:",omitempty" json:",omitempty"`
	EditCoto        *EditCotoChange        `msgpack:",omitempty" json:",omitempty"`
	Promote         *PromoteChange         `msgpack:",omitempty" json:",omitempty"`
	DeleteCoto      *DeleteCotoChange      `msgpack:",omitempty" json:",omitempty"`
	CreateCotonoma  *CreateCotonomaChange  `msgpack:",omitempty" json:",omitempty"`
	RenameCotonoma  *RenameCotonomaChange  `msgpack:",omitempty" json:",omitempty"`
	CreateIto       *Ito                   `msgpack:",omitempty" json:",omitempty"`
	EditIto         *EditItoChange         `msgpack:",omitempty" json:",omitempty"`
	DeleteIto       *DeleteItoChange       `msgpack:",omitempty" json:",omitempty"`
	ChangeItoOrder  *ChangeItoOrderChange  `msgpack:",omitempty" json:",omitempty"`
	ChangeOwnerNode *ChangeOwnerNodeChange `msgpack:",omitempty" json:",omitempty"`
}

type CreateNodeChange struct {
	Node Node
	Root *RootCotonomaPair // nil unless this node also bootstraps its root cotonoma
}

// RootCotonomaPair pairs a cotonoma with the coto that backs it — never
// embedded, always passed by value together since they're always read or
// written as a unit.
type RootCotonomaPair struct {
	Cotonoma Cotonoma
	Coto     Coto
}

type RenameNodeChange struct {
	NodeID    uuid.UUID
	Name      string
	UpdatedAt time.Time
}

type SetNodeIconChange struct {
	NodeID uuid.UUID
	Icon   []byte
}

type SetRootCotonomaChange struct {
	NodeID     uuid.UUID
	CotonomaID uuid.UUID
}

type EditCotoChange struct {
	CotoID    uuid.UUID
	Diff      CotoContentDiff
	UpdatedAt time.Time
}

// PromoteChange turns a coto into a cotonoma. CotonomaID was added after
// v0.8.0; older imported changes omit it (decodes to nil) and the applier
// mints a fresh cotonoma id for them.
type PromoteChange struct {
	CotoID      uuid.UUID
	PromotedAt  time.Time
	CotonomaID  *uuid.UUID `msgpack:",omitempty" json:",omitempty"`
}

type DeleteCotoChange struct {
	CotoID    uuid.UUID
	DeletedAt time.Time
}

type CreateCotonomaChange struct {
	Cotonoma Cotonoma
	Coto     Coto
}

type RenameCotonomaChange struct {
	CotonomaID uuid.UUID
	Name       string
	UpdatedAt  time.Time
}

type EditItoChange struct {
	ItoID     uuid.UUID
	Diff      ItoContentDiff
	UpdatedAt time.Time
}

type DeleteItoChange struct {
	ItoID uuid.UUID
}

type ChangeItoOrderChange struct {
	ItoID    uuid.UUID
	NewOrder int32
}

// ChangeOwnerNodeChange moves a subtree from one owning node to another,
// refused unless the local store's last origin-serial for From matches
// LastChangeNumber (a version-mismatch guard against applying this against
// a store that has diverged since the change was produced).
type ChangeOwnerNodeChange struct {
	From             uuid.UUID
	To               uuid.UUID
	LastChangeNumber int64
}
