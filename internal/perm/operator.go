// Package perm defines the capability-based permission model (C5): a
// narrow Operator interface and four concrete identities, deliberately
// flat rather than a subclass hierarchy — grounded on spec.md §4.4 and the
// plain-interface style used throughout the teacher's service layer.
package perm

import "github.com/google/uuid"

// Operator is the capability surface every request handler checks against,
// never the caller's identity directly: a handler asks "can you write
// itos", not "are you the owner".
type Operator interface {
	// NodeID is the identity this operator is acting as, for attributing
	// new cotos/cotonomas/itos and for origin bookkeeping.
	NodeID() uuid.UUID

	// CanReadAnonymously reports whether this operator may read without a
	// session at all (only ever true for the synthetic Anonymous operator
	// on a node with anonymous_read_enabled).
	CanReadAnonymously() bool

	// CanWrite reports whether this operator may post cotos/cotonomas.
	CanWrite() bool

	// CanEditItos reports whether this operator may create, edit, reorder,
	// or delete itos.
	CanEditItos() bool

	// CanManageNode reports whether this operator may change node-level
	// settings (rename, icon, root cotonoma, server/child registration).
	CanManageNode() bool
}

// LocalOwner is the node's own owner operating directly against its local
// store: full capabilities.
type LocalOwner struct {
	ID uuid.UUID
}

func (o LocalOwner) NodeID() uuid.UUID       { return o.ID }
func (o LocalOwner) CanReadAnonymously() bool { return false }
func (o LocalOwner) CanWrite() bool           { return true }
func (o LocalOwner) CanEditItos() bool        { return true }
func (o LocalOwner) CanManageNode() bool      { return true }

// ChildAsOwner is a child node whose ChildNode.AsOwner flag grants it the
// same capabilities as the local owner (the "as_owner" substitution named
// in spec.md §6): used when a trusted child acts on the parent's behalf.
type ChildAsOwner struct {
	ID uuid.UUID
}

func (o ChildAsOwner) NodeID() uuid.UUID       { return o.ID }
func (o ChildAsOwner) CanReadAnonymously() bool { return false }
func (o ChildAsOwner) CanWrite() bool           { return true }
func (o ChildAsOwner) CanEditItos() bool        { return true }
func (o ChildAsOwner) CanManageNode() bool      { return true }

// Child is an ordinary authenticated child node: may always write cotos,
// but editing itos is gated on its ChildNode.CanEditItos flag.
type Child struct {
	ID          uuid.UUID
	EditItos bool
}

func (o Child) NodeID() uuid.UUID       { return o.ID }
func (o Child) CanReadAnonymously() bool { return false }
func (o Child) CanWrite() bool           { return true }
func (o Child) CanEditItos() bool        { return o.EditItos }
func (o Child) CanManageNode() bool      { return false }

// Anonymous is an unauthenticated caller on a node with
// anonymous_read_enabled: read-only, attributed to no specific node.
type Anonymous struct{}

func (o Anonymous) NodeID() uuid.UUID       { return uuid.Nil }
func (o Anonymous) CanReadAnonymously() bool { return true }
func (o Anonymous) CanWrite() bool           { return false }
func (o Anonymous) CanEditItos() bool        { return false }
func (o Anonymous) CanManageNode() bool      { return false }

// RequireWrite returns ErrForbidden unless op can write.
func RequireWrite(op Operator) error {
	if !op.CanWrite() {
		return ErrForbidden
	}
	return nil
}

// RequireEditItos returns ErrForbidden unless op can edit itos.
func RequireEditItos(op Operator) error {
	if !op.CanEditItos() {
		return ErrForbidden
	}
	return nil
}

// RequireManageNode returns ErrForbidden unless op can manage node settings.
func RequireManageNode(op Operator) error {
	if !op.CanManageNode() {
		return ErrForbidden
	}
	return nil
}
