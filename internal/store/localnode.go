package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

func scanLocalNode(row scanner) (entity.LocalNode, error) {
	var l entity.LocalNode
	var nodeID, hash, token sql.NullString
	var expires sql.NullTime
	var maxSize sql.NullInt64
	if err := row.Scan(&nodeID, &hash, &token, &expires, &maxSize, &l.AnonymousReadEnabled); err != nil {
		return l, err
	}
	id, err := uuid.Parse(nodeID.String)
	if err != nil {
		return l, err
	}
	l.NodeID = id
	l.OwnerPasswordHash = scanNullString(hash)
	l.OwnerSessionToken = scanNullString(token)
	l.OwnerSessionExpiresAt = scanNullTime(expires)
	if maxSize.Valid {
		v := maxSize.Int64
		l.ImageMaxSize = &v
	}
	return l, nil
}

// GetLocalNode reads the single local_node row for nodeID.
func GetLocalNode(ctx *Context, nodeID uuid.UUID) (*entity.LocalNode, error) {
	row := ctx.Tx().QueryRow(`SELECT node_id, owner_password_hash, owner_session_token,
		owner_session_expires_at, image_max_size, anonymous_read_enabled
		FROM local_node WHERE node_id = ?`, nodeID.String())
	l, err := scanLocalNode(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// FindLocalNode reads the local_node singleton row without knowing its
// node_id ahead of time — used once at startup to tell a fresh store
// (no row yet) apart from one that has already been initialized.
func FindLocalNode(ctx *Context) (*entity.LocalNode, error) {
	row := ctx.Tx().QueryRow(`SELECT node_id, owner_password_hash, owner_session_token,
		owner_session_expires_at, image_max_size, anonymous_read_enabled
		FROM local_node LIMIT 1`)
	l, err := scanLocalNode(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertLocalNode creates the local_node row for a freshly created node.
func InsertLocalNode(ctx *Context, l entity.LocalNode) (entity.LocalNode, error) {
	var maxSize any
	if l.ImageMaxSize != nil {
		maxSize = *l.ImageMaxSize
	}
	_, err := ctx.Tx().Exec(`INSERT INTO local_node
		(node_id, owner_password_hash, owner_session_token, owner_session_expires_at,
		 image_max_size, anonymous_read_enabled)
		VALUES (?,?,?,?,?,?)`,
		l.NodeID.String(), nullString(l.OwnerPasswordHash), nullString(l.OwnerSessionToken),
		nullTime(l.OwnerSessionExpiresAt), maxSize, l.AnonymousReadEnabled)
	return l, err
}

// SetOwnerPasswordHash overwrites the owner password hash, invalidating any
// outstanding session token.
func SetOwnerPasswordHash(ctx *Context, nodeID uuid.UUID, hash string) error {
	_, err := ctx.Tx().Exec(`UPDATE local_node SET owner_password_hash=?, owner_session_token=NULL,
		owner_session_expires_at=NULL WHERE node_id=?`, hash, nodeID.String())
	return err
}

// SetOwnerSession records a freshly issued owner session token and its expiry.
func SetOwnerSession(ctx *Context, nodeID uuid.UUID, token string, expiresAt time.Time) error {
	_, err := ctx.Tx().Exec(`UPDATE local_node SET owner_session_token=?, owner_session_expires_at=?
		WHERE node_id=?`, token, expiresAt, nodeID.String())
	return err
}

// SetAnonymousReadEnabled toggles whether anonymous clients may read this node.
func SetAnonymousReadEnabled(ctx *Context, nodeID uuid.UUID, enabled bool) error {
	_, err := ctx.Tx().Exec(`UPDATE local_node SET anonymous_read_enabled=? WHERE node_id=?`,
		enabled, nodeID.String())
	return err
}

// SetImageMaxSize overrides the default max image size for this node.
func SetImageMaxSize(ctx *Context, nodeID uuid.UUID, size int64) error {
	_, err := ctx.Tx().Exec(`UPDATE local_node SET image_max_size=? WHERE node_id=?`, size, nodeID.String())
	return err
}
