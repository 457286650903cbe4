package changelog

import "fmt"

// ChangeNumberOutOfRange is returned by ChunkOfChanges when the requested
// starting serial number lies outside [1, the log's current tail].
type ChangeNumberOutOfRange struct {
	Max int64
}

func (e ChangeNumberOutOfRange) Error() string {
	return fmt.Sprintf("changelog: requested serial number beyond max %d", e.Max)
}

// UnexpectedChangeNumber is returned by ImportChange when an incoming
// entry's serial_number — the parent's own stream position — does not
// immediately follow changes_received — replication must be strictly
// ordered regardless of which node originated the entry.
type UnexpectedChangeNumber struct {
	ParentNodeID string
	Expected     int64
	Actual       int64
}

func (e UnexpectedChangeNumber) Error() string {
	return fmt.Sprintf("changelog: parent %s sent change %d, expected %d",
		e.ParentNodeID, e.Actual, e.Expected)
}

// AlreadyForkedFromParent is returned by ImportChange when the parent
// relationship has been marked forked (diverged) and can no longer accept
// ordinary replicated changes.
type AlreadyForkedFromParent struct {
	ParentNodeID string
}

func (e AlreadyForkedFromParent) Error() string {
	return fmt.Sprintf("changelog: already forked from parent %s", e.ParentNodeID)
}
