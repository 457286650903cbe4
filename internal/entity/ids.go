// Package entity holds the data model shared by every node in the mesh:
// nodes, cotos, cotonomas, itos, the change log, and the tagged Change
// union that represents one atomic mutation.
package entity

import "github.com/google/uuid"

// NewID generates a fresh UUID v4, used for every entity created locally.
func NewID() uuid.UUID {
	return uuid.New()
}

// ParseID parses a UUID string, returning an error if s is not a valid UUID.
func ParseID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
