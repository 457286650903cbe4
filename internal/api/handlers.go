package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/auth"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/federation"
	"github.com/cotoami/cotoami-go/internal/peerproto"
	"github.com/cotoami/cotoami-go/internal/perm"
	"github.com/cotoami/cotoami-go/internal/service"
	"github.com/cotoami/cotoami-go/internal/store"
	"github.com/cotoami/cotoami-go/internal/transport"
)

// commandBody is the REST envelope a caller posts to /api/commands:
// AsOwner asks the server to substitute the caller's own owner operator
// for this one call (service.LocalService.Call still requires the caller
// to already hold CanManageNode before honoring it).
type commandBody struct {
	AsOwner bool            `json:"as_owner"`
	Command service.Command `json:"command"`
}

func (rt *Router) handleCommand(c *gin.Context) {
	var body commandBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := resolveOperator(c.Request, rt.cfg.DB, rt.cfg.LocalNodeID, rt.cfg.Clock, body.Command)
	if err != nil {
		rt.writeOperatorErr(c, err)
		return
	}

	resp := rt.cfg.Local.Call(service.Request{
		ID: uuid.New(), From: op, Accept: service.FormatJSON,
		AsOwner: body.AsOwner, Command: body.Command,
	})
	rt.writeResponse(c, resp)
}

func (rt *Router) writeOperatorErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, federation.ErrAnonymousDisabled), errors.Is(err, federation.ErrAnonymousWriteForbidden):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "node is not initialized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (rt *Router) writeResponse(c *gin.Context, resp service.Response) {
	if resp.Err != nil {
		c.Data(resp.Err.HTTPStatus(), "application/json", mustJSON(resp.Err))
		return
	}
	c.Data(http.StatusOK, "application/json", resp.Body)
}

func mustJSON(v any) []byte {
	body, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"kind":"unknown"}`)
	}
	return body
}

// handleOwnerLogin checks the posted password against local_node's stored
// hash and, on success, issues a fresh owner session cookie — the
// password check itself never touches service.LocalService since owner
// login precedes there being any authenticated operator to call through.
func (rt *Router) handleOwnerLogin(c *gin.Context) {
	var body struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	local, err := store.Read(ctx, rt.cfg.DB, func(sctx *store.Context) (*entity.LocalNode, error) {
		return store.GetLocalNode(sctx, rt.cfg.LocalNodeID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if local == nil || local.OwnerPasswordHash == nil || !auth.VerifyPassword(*local.OwnerPasswordHash, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	expiresAt := rt.cfg.Clock.Now().Add(rt.cfg.SessionDuration)
	_, err = store.Write(ctx, rt.cfg.DB, func(sctx *store.Context) (struct{}, error) {
		return struct{}{}, store.SetOwnerSession(sctx, rt.cfg.LocalNodeID, token, expiresAt)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.SetCookie(ownerSessionCookie, token, int(rt.cfg.SessionDuration.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"node_id": rt.cfg.LocalNodeID})
}

// handleClientLogin is the unauthenticated bootstrap a child node calls to
// exchange its registered password for a session token — this has to sit
// outside resolveOperator's gate, since by definition the caller holds no
// session yet.
func (rt *Router) handleClientLogin(c *gin.Context) {
	var body struct {
		NodeID   uuid.UUID `json:"node_id"`
		Password string    `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := rt.cfg.Local.Call(service.Request{
		ID: uuid.New(), From: perm.Anonymous{}, Accept: service.FormatJSON,
		Command: service.Command{
			Name: service.CmdCreateClientNodeSession,
			CreateClientNodeSession: &service.CreateClientNodeSessionInput{
				NodeID: body.NodeID, Password: body.Password,
			},
		},
	})
	rt.writeResponse(c, resp)
}

func (rt *Router) handleWebSocket(c *gin.Context) {
	op, err := authenticatePeer(c.Request, rt.cfg.DB)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	ws, err := rt.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rt.cfg.Log.Warnf("api: websocket upgrade for %s: %v", op.NodeID(), err)
		return
	}
	conn := transport.AcceptWebSocket(ws, rt.cfg.MaxMessageSize)
	defer conn.Close()
	servePeer(c.Request.Context(), conn, rt.cfg.Local, rt.cfg.Buses, rt.cfg.LocalNodeID, op, rt.cfg.Log)
}

// handleSSEStream opens the long-lived GET side of the SSE fallback
// carrier: the child's own Change/Response events stream down this
// connection, while its outbound Requests arrive via the sibling POST
// handleSSERequest, forwarded in through the registered sseServerConn.
func (rt *Router) handleSSEStream(c *gin.Context) {
	op, err := authenticatePeer(c.Request, rt.cfg.DB)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := newSSEServerConn(c.Writer, flusher)
	rt.registerSSEConn(op.NodeID(), conn)
	defer rt.unregisterSSEConn(op.NodeID(), conn)

	servePeer(c.Request.Context(), conn, rt.cfg.Local, rt.cfg.Buses, rt.cfg.LocalNodeID, op, rt.cfg.Log)
}

// handleSSERequest is where an SSE-carrier child posts each outbound
// Request event; the matching Response travels back over that child's
// open /api/changes/sse stream, not in this call's own body.
func (rt *Router) handleSSERequest(c *gin.Context) {
	op, err := authenticatePeer(c.Request, rt.cfg.DB)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := peerproto.DecodeEvent(body)
	if err != nil || event.Kind != peerproto.EventRequest || event.Request == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a request event"})
		return
	}

	conn := rt.lookupSSEConn(op.NodeID())
	if conn == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no open event stream for this node"})
		return
	}
	if !conn.deliver(event) {
		c.JSON(http.StatusConflict, gin.H{"error": "event stream closed"})
		return
	}
	c.Status(http.StatusAccepted)
}
