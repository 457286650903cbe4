package importer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// legacyExport mirrors the JSON shape written by the original Elixir/Rust
// export tool: a flat array of cotos (cotonomas are cotos with a nested
// "cotonoma" object) and a flat array of connections. Grounded on
// cotoami_db's bin/import.rs in original_source.
type legacyExport struct {
	Cotos       []legacyCoto       `json:"cotos"`
	Connections []legacyConnection `json:"connections"`
}

// legacyCoto is one row of the export. Several fields below exist only to
// be read and discarded, matching what the original import tool does —
// keeping the field here documents the legacy shape even though nothing
// after decode ever looks at it again.
type legacyCoto struct {
	ID            uuid.UUID       `json:"id"`
	Content       *string         `json:"content"`
	Summary       *string         `json:"summary"`
	PostedInID    *uuid.UUID      `json:"posted_in_id"`
	AsCotonoma    bool            `json:"as_cotonoma"`
	Cotonoma      *legacyCotonoma `json:"cotonoma"`
	RepostID      *uuid.UUID      `json:"repost_id"`
	RepostedInIDs []uuid.UUID     `json:"reposted_in_ids"`
	InsertedAt    int64           `json:"inserted_at"` // epoch millis
	UpdatedAt     int64           `json:"updated_at"`  // epoch millis
}

func (c legacyCoto) insertedAt() time.Time { return time.UnixMilli(c.InsertedAt).UTC() }
func (c legacyCoto) updatedAt() time.Time  { return time.UnixMilli(c.UpdatedAt).UTC() }

// legacyCotonoma is the nested object a cotonoma-backing coto carries.
// key, shared, pinned, timeline_revision, graph_revision and
// last_post_timestamp are legacy concepts with no home in the current
// schema (key/shared predate per-node federation, pinned became a
// client-side concern, the two revision counters and last_post_timestamp
// were caching hints) — accepted here so decoding the dump doesn't fail,
// never referenced again.
type legacyCotonoma struct {
	ID                 uuid.UUID `json:"id"`
	Key                *string   `json:"key"`
	Name               string    `json:"name"`
	Shared             bool      `json:"shared"`
	Pinned             bool      `json:"pinned"`
	TimelineRevision   int64     `json:"timeline_revision"`
	GraphRevision      int64     `json:"graph_revision"`
	InsertedAt         int64     `json:"inserted_at"`
	UpdatedAt          int64     `json:"updated_at"`
	LastPostTimestamp  *int64    `json:"last_post_timestamp"`
}

// legacyConnection is one edge between two cotos. created_by (the posting
// amishi's id) and created_in (the cotonoma the link was drawn from) were
// per-user/per-context concepts from the legacy single-node model; the
// federated schema attributes every imported ito to the local node, the
// same choice the original tool makes for imported cotos' posted_by_id.
type legacyConnection struct {
	Start         uuid.UUID `json:"start"`
	End           uuid.UUID `json:"end"`
	CreatedBy     *string   `json:"created_by"`
	CreatedIn     *string   `json:"created_in"`
	LinkingPhrase *string   `json:"linking_phrase"`
	Order         int32     `json:"order"`
	CreatedAt     int64     `json:"created_at"`
}

func (c legacyConnection) createdAt() time.Time { return time.UnixMilli(c.CreatedAt).UTC() }

func decodeExport(data []byte) (legacyExport, error) {
	var export legacyExport
	if err := json.Unmarshal(data, &export); err != nil {
		return legacyExport{}, err
	}
	return export, nil
}
