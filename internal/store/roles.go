package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
)

// -- server_nodes: a remote node this node connects to as a client --

func scanServerNode(row scanner) (entity.ServerNode, error) {
	var s entity.ServerNode
	var nodeID sql.NullString
	if err := row.Scan(&nodeID, &s.URLPrefix, &s.EncryptedPassword, &s.Disabled); err != nil {
		return s, err
	}
	id, err := uuid.Parse(nodeID.String)
	s.NodeID = id
	return s, err
}

func GetServerNode(ctx *Context, nodeID uuid.UUID) (*entity.ServerNode, error) {
	row := ctx.Tx().QueryRow(`SELECT node_id, url_prefix, encrypted_password, disabled
		FROM server_nodes WHERE node_id=?`, nodeID.String())
	s, err := scanServerNode(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func InsertServerNode(ctx *Context, s entity.ServerNode) (entity.ServerNode, error) {
	_, err := ctx.Tx().Exec(`INSERT INTO server_nodes (node_id, url_prefix, encrypted_password, disabled)
		VALUES (?,?,?,?)`, s.NodeID.String(), s.URLPrefix, s.EncryptedPassword, s.Disabled)
	return s, err
}

func SetServerNodeEncryptedPassword(ctx *Context, nodeID uuid.UUID, encrypted []byte) error {
	_, err := ctx.Tx().Exec(`UPDATE server_nodes SET encrypted_password=? WHERE node_id=?`,
		encrypted, nodeID.String())
	return err
}

func SetServerNodeURLPrefix(ctx *Context, nodeID uuid.UUID, urlPrefix string) error {
	_, err := ctx.Tx().Exec(`UPDATE server_nodes SET url_prefix=? WHERE node_id=?`, urlPrefix, nodeID.String())
	return err
}

func SetServerNodeDisabled(ctx *Context, nodeID uuid.UUID, disabled bool) error {
	_, err := ctx.Tx().Exec(`UPDATE server_nodes SET disabled=? WHERE node_id=?`, disabled, nodeID.String())
	return err
}

func AllServerNodes(ctx *Context) ([]entity.ServerNode, error) {
	rows, err := ctx.Tx().Query(`SELECT node_id, url_prefix, encrypted_password, disabled FROM server_nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entity.ServerNode
	for rows.Next() {
		s, err := scanServerNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// -- client_nodes: a remote node that connects to this node as a client --

func scanClientNode(row scanner) (entity.ClientNode, error) {
	var c entity.ClientNode
	var nodeID, token sql.NullString
	if err := row.Scan(&nodeID, &c.PasswordHash, &token); err != nil {
		return c, err
	}
	id, err := uuid.Parse(nodeID.String)
	c.NodeID = id
	c.SessionToken = scanNullString(token)
	return c, err
}

func GetClientNode(ctx *Context, nodeID uuid.UUID) (*entity.ClientNode, error) {
	row := ctx.Tx().QueryRow(`SELECT node_id, password_hash, session_token FROM client_nodes WHERE node_id=?`,
		nodeID.String())
	c, err := scanClientNode(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func InsertClientNode(ctx *Context, c entity.ClientNode) (entity.ClientNode, error) {
	_, err := ctx.Tx().Exec(`INSERT INTO client_nodes (node_id, password_hash, session_token)
		VALUES (?,?,?)`, c.NodeID.String(), c.PasswordHash, nullString(c.SessionToken))
	return c, err
}

func SetClientNodeSession(ctx *Context, nodeID uuid.UUID, token *string) error {
	_, err := ctx.Tx().Exec(`UPDATE client_nodes SET session_token=? WHERE node_id=?`,
		nullString(token), nodeID.String())
	return err
}

func SetClientNodePasswordHash(ctx *Context, nodeID uuid.UUID, passwordHash string) error {
	_, err := ctx.Tx().Exec(`UPDATE client_nodes SET password_hash=? WHERE node_id=?`,
		passwordHash, nodeID.String())
	return err
}

// AllClientNodes lists every registered client, most recently registered
// first (joining nodes.created_at since client_nodes carries no timestamp
// of its own).
func AllClientNodes(ctx *Context, index, size int) (Page[entity.ClientNode], error) {
	size = NormalizePageSize(size)
	total, err := CountRows(ctx.Tx(), `SELECT COUNT(*) FROM client_nodes`)
	if err != nil {
		return Page[entity.ClientNode]{}, err
	}
	rows, err := ctx.Tx().Query(`
		SELECT c.node_id, c.password_hash, c.session_token
		FROM client_nodes c JOIN nodes n ON n.uuid = c.node_id
		ORDER BY n.created_at DESC LIMIT ? OFFSET ?`, size, index*size)
	if err != nil {
		return Page[entity.ClientNode]{}, err
	}
	defer rows.Close()
	var out []entity.ClientNode
	for rows.Next() {
		c, err := scanClientNode(rows)
		if err != nil {
			return Page[entity.ClientNode]{}, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return Page[entity.ClientNode]{}, err
	}
	return Page[entity.ClientNode]{Rows: out, Size: size, Index: index, TotalRows: total}, nil
}

// -- parent_nodes: bookkeeping for a server_node this node replicates from --

func scanParentNode(row scanner) (entity.ParentNode, error) {
	var p entity.ParentNode
	var nodeID sql.NullString
	if err := row.Scan(&nodeID, &p.ChangesReceived, &p.Forked); err != nil {
		return p, err
	}
	id, err := uuid.Parse(nodeID.String)
	p.NodeID = id
	return p, err
}

func GetParentNode(ctx *Context, nodeID uuid.UUID) (*entity.ParentNode, error) {
	row := ctx.Tx().QueryRow(`SELECT node_id, changes_received, forked FROM parent_nodes WHERE node_id=?`,
		nodeID.String())
	p, err := scanParentNode(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func InsertParentNode(ctx *Context, nodeID uuid.UUID) (entity.ParentNode, error) {
	p := entity.ParentNode{NodeID: nodeID}
	_, err := ctx.Tx().Exec(`INSERT INTO parent_nodes (node_id, changes_received, forked) VALUES (?,0,0)`,
		nodeID.String())
	return p, err
}

// IncrementChangesReceived bumps the parent's replicated-changes counter by
// one; called once per successfully imported change, duplicates included.
func IncrementChangesReceived(ctx *Context, nodeID uuid.UUID) (int64, error) {
	_, err := ctx.Tx().Exec(`UPDATE parent_nodes SET changes_received = changes_received + 1 WHERE node_id=?`,
		nodeID.String())
	if err != nil {
		return 0, err
	}
	var n int64
	err = ctx.Tx().QueryRow(`SELECT changes_received FROM parent_nodes WHERE node_id=?`, nodeID.String()).Scan(&n)
	return n, err
}

func SetParentForked(ctx *Context, nodeID uuid.UUID, forked bool) error {
	_, err := ctx.Tx().Exec(`UPDATE parent_nodes SET forked=? WHERE node_id=?`, forked, nodeID.String())
	return err
}

// -- child_nodes: bookkeeping for a client_node this node grants access to --

func scanChildNode(row scanner) (entity.ChildNode, error) {
	var c entity.ChildNode
	var nodeID sql.NullString
	if err := row.Scan(&nodeID, &c.AsOwner, &c.CanEditItos); err != nil {
		return c, err
	}
	id, err := uuid.Parse(nodeID.String)
	c.NodeID = id
	return c, err
}

func GetChildNode(ctx *Context, nodeID uuid.UUID) (*entity.ChildNode, error) {
	row := ctx.Tx().QueryRow(`SELECT node_id, as_owner, can_edit_itos FROM child_nodes WHERE node_id=?`,
		nodeID.String())
	c, err := scanChildNode(row)
	if err == sqlNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func InsertChildNode(ctx *Context, c entity.ChildNode) (entity.ChildNode, error) {
	_, err := ctx.Tx().Exec(`INSERT INTO child_nodes (node_id, as_owner, can_edit_itos) VALUES (?,?,?)`,
		c.NodeID.String(), c.AsOwner, c.CanEditItos)
	return c, err
}

func SetChildNodePermissions(ctx *Context, nodeID uuid.UUID, asOwner, canEditItos bool) error {
	_, err := ctx.Tx().Exec(`UPDATE child_nodes SET as_owner=?, can_edit_itos=? WHERE node_id=?`,
		asOwner, canEditItos, nodeID.String())
	return err
}
