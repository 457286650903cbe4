package store

import (
	"database/sql"
	"errors"
)

// sqlNoRows lets row-scanning helpers compare against sql.ErrNoRows without
// every call site importing database/sql directly.
var sqlNoRows = sql.ErrNoRows

// ErrNotFound is returned by operations that look up a row by id when no
// such row exists.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write would violate a uniqueness or
// foreign-key constraint the caller should have checked first (e.g.
// deleting a coto that is still the source or target of an ito).
var ErrConflict = errors.New("store: conflict")
