package entity

import (
	"time"

	"github.com/google/uuid"
)

// ChangelogEntry is an immutable append-only log row. For a locally
// originated change, OriginNodeID is this store's own id and
// OriginSerialNumber is the per-origin counter; for an imported change both
// fields mirror the origin that first produced it.
type ChangelogEntry struct {
	SerialNumber       int64
	OriginNodeID       uuid.UUID
	OriginSerialNumber int64
	Change             Change
	ImportError        *string
	InsertedAt         time.Time
}

// ToImport produces the row this entry will become once it is inserted into
// this local store: the serial number is stripped (the store assigns its
// own) and ImportError starts cleared.
func (c ChangelogEntry) ToImport() ChangelogEntry {
	c.SerialNumber = 0
	c.ImportError = nil
	return c
}

// SetImportError records that applying the change failed without aborting
// the insert — the entry still advances the log.
func (c *ChangelogEntry) SetImportError(msg string) {
	c.ImportError = &msg
}
