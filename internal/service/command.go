package service

import (
	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

// CommandName tags which of Command's payload fields is populated — the
// same one-of-struct shape used by entity.Change, for the same
// forward-compatibility reason.
type CommandName string

const (
	CmdLocalNode                 CommandName = "local_node"
	CmdLocalServer                CommandName = "local_server"
	CmdSetLocalNodeIcon           CommandName = "set_local_node_icon"
	CmdEnableAnonymousRead        CommandName = "enable_anonymous_read"
	CmdInitialDataset             CommandName = "initial_dataset"
	CmdChunkOfChanges             CommandName = "chunk_of_changes"
	CmdNodeDetails                CommandName = "node_details"
	CmdCreateClientNodeSession    CommandName = "create_client_node_session"
	CmdTryLogIntoServer           CommandName = "try_log_into_server"
	CmdAddServer                  CommandName = "add_server"
	CmdEditServer                 CommandName = "edit_server"
	CmdRecentClients              CommandName = "recent_clients"
	CmdAddClient                  CommandName = "add_client"
	CmdResetClientPassword        CommandName = "reset_client_password"
	CmdEditClient                 CommandName = "edit_client"
	CmdChildNode                  CommandName = "child_node"
	CmdEditChild                  CommandName = "edit_child"
	CmdRecentCotonomas            CommandName = "recent_cotonomas"
	CmdCotonomasByPrefix          CommandName = "cotonomas_by_prefix"
	CmdCotonoma                   CommandName = "cotonoma"
	CmdCotonomaDetails            CommandName = "cotonoma_details"
	CmdCotonomaByCotoID           CommandName = "cotonoma_by_coto_id"
	CmdCotonomaByName             CommandName = "cotonoma_by_name"
	CmdSubCotonomas               CommandName = "sub_cotonomas"
	CmdRecentCotos                CommandName = "recent_cotos"
	CmdGeolocatedCotos            CommandName = "geolocated_cotos"
	CmdCotosInGeoBounds           CommandName = "cotos_in_geo_bounds"
	CmdSearchCotos                CommandName = "search_cotos"
	CmdCotoDetails                CommandName = "coto_details"
	CmdGraphFromCoto              CommandName = "graph_from_coto"
	CmdGraphFromCotonoma          CommandName = "graph_from_cotonoma"
	CmdPostCoto                   CommandName = "post_coto"
	CmdPostCotonoma               CommandName = "post_cotonoma"
	CmdEditCoto                   CommandName = "edit_coto"
	CmdPromote                    CommandName = "promote"
	CmdDeleteCoto                 CommandName = "delete_coto"
	CmdRepost                     CommandName = "repost"
	CmdRenameCotonoma              CommandName = "rename_cotonoma"
	CmdIto                        CommandName = "ito"
	CmdSiblingItos                CommandName = "sibling_itos"
	CmdCreateIto                  CommandName = "create_ito"
	CmdEditIto                    CommandName = "edit_ito"
	CmdDeleteIto                  CommandName = "delete_ito"
	CmdChangeItoOrder             CommandName = "change_ito_order"
	CmdOthersLastPostedAt         CommandName = "others_last_posted_at"
	CmdMarkAsRead                 CommandName = "mark_as_read"
	CmdPostSubcoto                CommandName = "post_subcoto"
)

// Command is the full enumeration of read/write operations a NodeService
// accepts, named in spec.md §6. Exactly one payload field is populated,
// selected by Name.
type Command struct {
	Name CommandName

	SetLocalNodeIcon        *SetLocalNodeIconInput        `msgpack:",omitempty" json:",omitempty"`
	EnableAnonymousRead     *EnableAnonymousReadInput     `msgpack:",omitempty" json:",omitempty"`
	ChunkOfChanges          *ChunkOfChangesInput          `msgpack:",omitempty" json:",omitempty"`
	NodeDetails             *IDInput                     `msgpack:",omitempty" json:",omitempty"`
	CreateClientNodeSession *CreateClientNodeSessionInput `msgpack:",omitempty" json:",omitempty"`
	TryLogIntoServer        *TryLogIntoServerInput        `msgpack:",omitempty" json:",omitempty"`
	AddServer               *AddServerInput               `msgpack:",omitempty" json:",omitempty"`
	EditServer              *EditServerInput              `msgpack:",omitempty" json:",omitempty"`
	RecentClients           *PageInput                    `msgpack:",omitempty" json:",omitempty"`
	AddClient               *AddClientInput               `msgpack:",omitempty" json:",omitempty"`
	ResetClientPassword     *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	EditClient              *EditClientInput              `msgpack:",omitempty" json:",omitempty"`
	ChildNode               *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	EditChild               *EditChildInput               `msgpack:",omitempty" json:",omitempty"`
	RecentCotonomas         *PageInput                    `msgpack:",omitempty" json:",omitempty"`
	CotonomasByPrefix       *PrefixInput                  `msgpack:",omitempty" json:",omitempty"`
	Cotonoma                *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	CotonomaDetails         *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	CotonomaByCotoID        *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	CotonomaByName          *NameInput                    `msgpack:",omitempty" json:",omitempty"`
	SubCotonomas            *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	RecentCotos             *PageInput                    `msgpack:",omitempty" json:",omitempty"`
	GeolocatedCotos         *PageInput                    `msgpack:",omitempty" json:",omitempty"`
	CotosInGeoBounds        *GeoBoundsInput               `msgpack:",omitempty" json:",omitempty"`
	SearchCotos             *SearchInput                  `msgpack:",omitempty" json:",omitempty"`
	CotoDetails             *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	GraphFromCoto           *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	GraphFromCotonoma       *IDInput                      `msgpack:",omitempty" json:",omitempty"`
	PostCoto                *PostCotoInput                `msgpack:",omitempty" json:",omitempty"`
	PostCotonoma            *PostCotonomaInput             `msgpack:",omitempty" json:",omitempty"`
	EditCoto                *EditCotoInput                 `msgpack:",omitempty" json:",omitempty"`
	Promote                 *IDInput                       `msgpack:",omitempty" json:",omitempty"`
	DeleteCoto              *IDInput                       `msgpack:",omitempty" json:",omitempty"`
	Repost                  *RepostInput                   `msgpack:",omitempty" json:",omitempty"`
	RenameCotonoma          *RenameCotonomaInput            `msgpack:",omitempty" json:",omitempty"`
	Ito                     *IDInput                        `msgpack:",omitempty" json:",omitempty"`
	SiblingItos             *IDInput                        `msgpack:",omitempty" json:",omitempty"`
	CreateIto               *CreateItoInput                 `msgpack:",omitempty" json:",omitempty"`
	EditIto                 *EditItoInput                   `msgpack:",omitempty" json:",omitempty"`
	DeleteIto               *IDInput                        `msgpack:",omitempty" json:",omitempty"`
	ChangeItoOrder          *ChangeItoOrderInput             `msgpack:",omitempty" json:",omitempty"`
	OthersLastPostedAt      *IDInput                         `msgpack:",omitempty" json:",omitempty"`
	MarkAsRead              *IDInput                         `msgpack:",omitempty" json:",omitempty"`
	PostSubcoto             *PostSubcotoInput                `msgpack:",omitempty" json:",omitempty"`
}

// IsReadOnly reports whether the command only reads node state, the gate
// federation.CheckAnonymous applies before letting an anonymous caller in
// (spec.md §4.10).
func (c Command) IsReadOnly() bool {
	switch c.Name {
	case CmdLocalNode, CmdLocalServer, CmdInitialDataset, CmdChunkOfChanges, CmdNodeDetails,
		CmdRecentClients, CmdChildNode,
		CmdRecentCotonomas, CmdCotonomasByPrefix, CmdCotonoma, CmdCotonomaDetails,
		CmdCotonomaByCotoID, CmdCotonomaByName, CmdSubCotonomas,
		CmdRecentCotos, CmdGeolocatedCotos, CmdCotosInGeoBounds, CmdSearchCotos, CmdCotoDetails,
		CmdGraphFromCoto, CmdGraphFromCotonoma,
		CmdIto, CmdSiblingItos, CmdOthersLastPostedAt:
		return true
	default:
		return false
	}
}

// IDInput is shared by every command that just needs a target id.
type IDInput struct{ ID uuid.UUID }

// NameInput is shared by lookups keyed on an exact name.
type NameInput struct{ Name string }

// PrefixInput is shared by lookups keyed on a name prefix.
type PrefixInput struct {
	Prefix string
	Page   int
	Size   int
}

// PageInput is shared by every plain paginated listing.
type PageInput struct {
	Page int
	Size int
}

type SetLocalNodeIconInput struct{ Icon []byte }

type EnableAnonymousReadInput struct{ Enable bool }

type ChunkOfChangesInput struct{ From int64 }

// ChunkOfChangesResult mirrors cotoami_node's ChunkOfChanges::Fetched body:
// a page of entries plus the log's current tail, so a caller mid-backfill
// can tell a short page (caught up) apart from a full one (more to fetch).
type ChunkOfChangesResult struct {
	Chunk            []entity.ChangelogEntry
	LastSerialNumber int64
}

type CreateClientNodeSessionInput struct {
	NodeID   uuid.UUID
	Password string
}

type TryLogIntoServerInput struct {
	URLPrefix string
	Password  string
}

type AddServerInput struct {
	NodeID    uuid.UUID
	URLPrefix string
	Password  string
}

type EditServerInput struct {
	NodeID    uuid.UUID
	URLPrefix *string
	Disabled  *bool
}

type AddClientInput struct {
	NodeID   uuid.UUID
	Password string
}

type EditClientInput struct {
	NodeID   uuid.UUID
	Password *string
}

type EditChildInput struct {
	NodeID      uuid.UUID
	AsOwner     *bool
	CanEditItos *bool
}

type GeoBoundsInput struct {
	SouthWest entity.Geolocation
	NorthEast entity.Geolocation
	Page      int
	Size      int
}

type SearchInput struct {
	Query string
	Page  int
	Size  int
}

type PostCotoInput struct {
	PostedInID uuid.UUID
	Content    *string
	Summary    *string
	Media      *entity.MediaContent
	Geolocation   *entity.Geolocation
	DatetimeRange *entity.DatetimeRange
}

type PostCotonomaInput struct {
	PostedInID uuid.UUID
	Name       string
}

type EditCotoInput struct {
	CotoID uuid.UUID
	Diff   entity.CotoContentDiff
}

type RepostInput struct {
	CotoID     uuid.UUID
	PostedInID uuid.UUID
}

type RenameCotonomaInput struct {
	CotonomaID uuid.UUID
	Name       string
}

type CreateItoInput struct {
	SourceCotoID uuid.UUID
	TargetCotoID uuid.UUID
	Description  *string
	Details      *string
	Order        int
}

type EditItoInput struct {
	ItoID uuid.UUID
	Diff  entity.ItoContentDiff
}

type ChangeItoOrderInput struct {
	ItoID    uuid.UUID
	NewOrder int
}

type PostSubcotoInput struct {
	SourceCotoID uuid.UUID
	PostedInID   uuid.UUID
	Content      *string
	Summary      *string
	Description  *string
}
