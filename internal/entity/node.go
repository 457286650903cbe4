package entity

import (
	"time"

	"github.com/google/uuid"
)

// Node is a peer in the mesh. A node self-identifies as local; every other
// node it knows about is remote.
type Node struct {
	UUID            uuid.UUID
	Name            string
	Icon            []byte
	Version         int64
	RootCotonomaID  *uuid.UUID
	CreatedAt       time.Time
}

// Validate enforces the name length invariant before any Create/Rename.
func (n *Node) Validate() error {
	e := newValidationError()
	if len(n.Name) == 0 || len(n.Name) > MaxNodeName {
		e.add("name", "must be 1-50 characters")
	}
	return e.orNil()
}

// LocalNode is the per-store singleton describing this node's owner
// credentials and server-side settings.
type LocalNode struct {
	NodeID                 uuid.UUID
	OwnerPasswordHash      *string
	OwnerSessionToken      *string
	OwnerSessionExpiresAt  *time.Time
	ImageMaxSize           *int64
	AnonymousReadEnabled   bool
}

// ImageMaxSizeOrDefault returns the configured cap, or 0 (no limit) when unset.
func (l *LocalNode) ImageMaxSizeOrDefault() int64 {
	if l.ImageMaxSize == nil {
		return 0
	}
	return *l.ImageMaxSize
}

// ServerNode records how to dial a remote node this node acts as a client
// toward (network role: Client).
type ServerNode struct {
	NodeID             uuid.UUID
	URLPrefix          string
	EncryptedPassword  []byte
	Disabled           bool
}

// ClientNode records an inbound peer accepted by this node (network role:
// Server): its password hash and current session token.
type ClientNode struct {
	NodeID        uuid.UUID
	PasswordHash  string
	SessionToken  *string
}

// ParentNode records replication state for a peer this node receives
// changes from (database role: Parent).
type ParentNode struct {
	NodeID          uuid.UUID
	ChangesReceived int64
	Forked          bool
}

// ChildNode records capabilities granted to a peer this node sends changes
// to (database role: Child).
type ChildNode struct {
	NodeID      uuid.UUID
	AsOwner     bool
	CanEditItos bool
}
