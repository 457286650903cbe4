package entity

import (
	"time"

	"github.com/google/uuid"
)

// Geolocation is a simple lat/long pair attached to a coto.
type Geolocation struct {
	Longitude float64
	Latitude  float64
}

// DatetimeRange is an optional start/end pair attached to a coto.
type DatetimeRange struct {
	Start time.Time
	End   *time.Time
}

// MediaContent holds an embedded attachment (image, etc).
type MediaContent struct {
	Bytes []byte
	Mime  string
}

// Coto is the atomic note. A repost has nil Content and a non-nil
// RepostOfID; it can never be promoted to a cotonoma.
type Coto struct {
	UUID            uuid.UUID
	NodeID          uuid.UUID
	PostedInID      *uuid.UUID // Cotonoma
	PostedByID      uuid.UUID  // Node
	Content         *string
	Summary         *string
	Media           *MediaContent
	Geolocation     *Geolocation
	DatetimeRange   *DatetimeRange
	IsCotonoma      bool
	RepostOfID      *uuid.UUID // Coto
	RepostedInIDs   map[uuid.UUID]struct{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsRepost reports whether this coto is a repost of another.
func (c *Coto) IsRepost() bool {
	return c.RepostOfID != nil
}

// Validate enforces §3's content/summary length invariants and the
// repost/cotonoma exclusivity invariant.
func (c *Coto) Validate() error {
	e := newValidationError()
	checkMaxLen(e, "content", c.Content, MaxContentLen)
	checkMaxLen(e, "summary", c.Summary, MaxSummaryLen)
	if c.IsRepost() && c.Content != nil {
		e.add("content", "a repost cannot carry content")
	}
	if c.IsRepost() && c.IsCotonoma {
		e.add("is_cotonoma", "a repost cannot be promoted to a cotonoma")
	}
	return e.orNil()
}

// Cotonoma is a named scope backed by a coto with IsCotonoma=true.
type Cotonoma struct {
	UUID      uuid.UUID
	NodeID    uuid.UUID
	CotoID    uuid.UUID // the backing coto
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the name length invariant.
func (c *Cotonoma) Validate() error {
	e := newValidationError()
	if len(c.Name) == 0 || len(c.Name) > MaxCotonomaName {
		e.add("name", "must be 1-50 characters")
	}
	return e.orNil()
}

// Ito is a typed directed edge between two cotos, ordered among its
// siblings (same source_coto_id).
type Ito struct {
	UUID          uuid.UUID
	NodeID        uuid.UUID
	CreatedByID   uuid.UUID // Node
	SourceCotoID  uuid.UUID
	TargetCotoID  uuid.UUID
	Description   *string
	Details       *string
	Order         int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate enforces description/details length and order positivity.
func (i *Ito) Validate() error {
	e := newValidationError()
	checkMaxLen(e, "description", i.Description, MaxItoDescription)
	checkMaxLen(e, "details", i.Details, MaxItoDetails)
	if i.Order < 1 {
		e.add("order", "must be >= 1")
	}
	if i.SourceCotoID == i.TargetCotoID {
		e.add("target_coto_id", "source and target must be different cotos")
	}
	return e.orNil()
}
