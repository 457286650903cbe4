package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/auth"
	"github.com/cotoami/cotoami-go/internal/changelog"
	"github.com/cotoami/cotoami-go/internal/clock"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/federation"
	itopkg "github.com/cotoami/cotoami-go/internal/ito"
	"github.com/cotoami/cotoami-go/internal/perm"
	"github.com/cotoami/cotoami-go/internal/store"
)

// LocalService dispatches Commands directly against this node's own store:
// the terminal NodeService implementation every local HTTP handler and
// every parent-side proxy (§4.8) eventually bottoms out in.
type LocalService struct {
	DB          *store.Database
	LocalNodeID uuid.UUID
	Clock       clock.Clock

	// OwnerPassword is this node's master secret (config.Config.OwnerPassword),
	// the key material federation.EncryptPassword derives a server node's
	// stored password encryption key from. Never persisted, never logged.
	OwnerPassword string

	// OnLocalChange, if set, is invoked after a write command successfully
	// logs a new entry — the bus package subscribes here without this
	// package needing to import bus (which would import service back).
	OnLocalChange func(entity.ChangelogEntry)
}

var _ Service = (*LocalService)(nil)

// Call implements Service. It never panics on bad input: a command handler
// that hits a domain error translates it into a ServiceError rather than
// propagating raw errors up the transport.
func (s *LocalService) Call(req Request) Response {
	ctx := context.Background()
	from := req.From
	if req.AsOwner {
		if !from.CanManageNode() {
			return fail(req, Permission())
		}
		from = perm.LocalOwner{ID: s.LocalNodeID}
	}

	switch req.Command.Name {
	case CmdLocalNode:
		return s.handleLocalNode(ctx, req)
	case CmdSetLocalNodeIcon:
		return s.handleSetLocalNodeIcon(ctx, req, from)
	case CmdEnableAnonymousRead:
		return s.handleEnableAnonymousRead(ctx, req, from)
	case CmdChunkOfChanges:
		return s.handleChunkOfChanges(ctx, req)
	case CmdNodeDetails:
		return s.handleNodeDetails(ctx, req)
	case CmdCreateClientNodeSession:
		return s.handleCreateClientNodeSession(ctx, req)
	case CmdAddServer:
		return s.handleAddServer(ctx, req, from)
	case CmdEditServer:
		return s.handleEditServer(ctx, req, from)
	case CmdRecentClients:
		return s.handleRecentClients(ctx, req, from)
	case CmdAddClient:
		return s.handleAddClient(ctx, req, from)
	case CmdResetClientPassword:
		return s.handleResetClientPassword(ctx, req, from)
	case CmdEditClient:
		return s.handleEditClient(ctx, req, from)
	case CmdChildNode:
		return s.handleChildNode(ctx, req, from)
	case CmdEditChild:
		return s.handleEditChild(ctx, req, from)
	case CmdRecentCotonomas:
		return s.handleRecentCotonomas(ctx, req, from)
	case CmdCotonomasByPrefix:
		return s.handleCotonomasByPrefix(ctx, req, from)
	case CmdCotonoma:
		return s.handleCotonoma(ctx, req, from)
	case CmdCotonomaByCotoID:
		return s.handleCotonomaByCotoID(ctx, req, from)
	case CmdCotonomaByName:
		return s.handleCotonomaByName(ctx, req, from)
	case CmdRecentCotos:
		return s.handleRecentCotos(ctx, req, from)
	case CmdCotoDetails:
		return s.handleCotoDetails(ctx, req, from)
	case CmdPostCoto:
		return s.handlePostCoto(ctx, req, from)
	case CmdPostCotonoma:
		return s.handlePostCotonoma(ctx, req, from)
	case CmdEditCoto:
		return s.handleEditCoto(ctx, req, from)
	case CmdPromote:
		return s.handlePromote(ctx, req, from)
	case CmdDeleteCoto:
		return s.handleDeleteCoto(ctx, req, from)
	case CmdRenameCotonoma:
		return s.handleRenameCotonoma(ctx, req, from)
	case CmdIto:
		return s.handleIto(ctx, req, from)
	case CmdSiblingItos:
		return s.handleSiblingItos(ctx, req, from)
	case CmdCreateIto:
		return s.handleCreateIto(ctx, req, from)
	case CmdEditIto:
		return s.handleEditIto(ctx, req, from)
	case CmdDeleteIto:
		return s.handleDeleteIto(ctx, req, from)
	case CmdChangeItoOrder:
		return s.handleChangeItoOrder(ctx, req, from)

	case CmdGraphFromCoto:
		return s.handleGraphFromCoto(ctx, req, from)
	case CmdGraphFromCotonoma:
		return s.handleGraphFromCotonoma(ctx, req, from)

	case CmdGeolocatedCotos, CmdCotosInGeoBounds, CmdSearchCotos:
		// Geo indexing and full-text search are external collaborators of
		// the core per spec.md §1; the core only reserves the Command slot
		// for them.
		return fail(req, NotImplemented())

	case CmdTryLogIntoServer:
		// Dialing a remote server and exchanging a login handshake requires
		// an actual network client; LocalService only ever touches this
		// node's own store. The supervisor's Dialer performs the real login.
		return fail(req, NotImplemented())

	default:
		return fail(req, NotImplemented())
	}
}

func (s *LocalService) handleLocalNode(ctx context.Context, req Request) Response {
	type localNodeView struct {
		Node  entity.Node
		Local entity.LocalNode
	}
	result, err := store.Read(ctx, s.DB, func(sctx *store.Context) (localNodeView, error) {
		n, err := store.GetNode(sctx, s.LocalNodeID)
		if err != nil {
			return localNodeView{}, err
		}
		if n == nil {
			return localNodeView{}, store.ErrNotFound
		}
		l, err := store.GetLocalNode(sctx, s.LocalNodeID)
		if err != nil {
			return localNodeView{}, err
		}
		if l == nil {
			return localNodeView{}, store.ErrNotFound
		}
		return localNodeView{Node: *n, Local: *l}, nil
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, result)
}

func (s *LocalService) handleNodeDetails(ctx context.Context, req Request) Response {
	if req.Command.NodeDetails == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	n, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.Node, error) {
		return store.GetNode(sctx, req.Command.NodeDetails.ID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if n == nil {
		return fail(req, NotFound("node"))
	}
	return ok(req, n)
}

func (s *LocalService) handleSetLocalNodeIcon(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	if req.Command.SetLocalNodeIcon == nil {
		return fail(req, Input(map[string]string{"icon": "required"}))
	}
	n, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Node, error) {
		return store.SetNodeIcon(sctx, s.LocalNodeID, req.Command.SetLocalNodeIcon.Icon)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeSetNodeIcon,
		SetNodeIcon: &entity.SetNodeIconChange{NodeID: s.LocalNodeID, Icon: req.Command.SetLocalNodeIcon.Icon},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, n)
}

func (s *LocalService) handleEnableAnonymousRead(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	if req.Command.EnableAnonymousRead == nil {
		return fail(req, Input(map[string]string{"enable": "required"}))
	}
	_, err := store.Write(ctx, s.DB, func(sctx *store.Context) (struct{}, error) {
		return struct{}{}, store.SetAnonymousReadEnabled(sctx, s.LocalNodeID, req.Command.EnableAnonymousRead.Enable)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	return ok(req, map[string]bool{"anonymous_read_enabled": req.Command.EnableAnonymousRead.Enable})
}

func (s *LocalService) handleChunkOfChanges(ctx context.Context, req Request) Response {
	if req.Command.ChunkOfChanges == nil {
		return fail(req, Input(map[string]string{"from": "required"}))
	}
	chunk, err := changelog.ChunkOfChanges(ctx, s.DB, req.Command.ChunkOfChanges.From, 0)
	if err != nil {
		var oor changelog.ChangeNumberOutOfRange
		if errors.As(err, &oor) {
			return fail(req, RequestError("change-number-out-of-range", map[string]any{"max": oor.Max}))
		}
		return fail(req, Server(err.Error()))
	}
	return ok(req, ChunkOfChangesResult{Chunk: chunk.Entries, LastSerialNumber: chunk.LastSerialNumber})
}

func (s *LocalService) handleRecentCotonomas(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	page, size := pageArgs(req.Command.RecentCotonomas)
	result, err := store.Read(ctx, s.DB, func(sctx *store.Context) (store.Page[entity.Cotonoma], error) {
		return store.RecentCotonomas(sctx, page, size)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, result)
}

func (s *LocalService) handleCotonomasByPrefix(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.CotonomasByPrefix == nil {
		return fail(req, Input(map[string]string{"prefix": "required"}))
	}
	in := req.Command.CotonomasByPrefix
	result, err := store.Read(ctx, s.DB, func(sctx *store.Context) (store.Page[entity.Cotonoma], error) {
		return store.SearchCotonomasByPrefix(sctx, s.LocalNodeID, in.Prefix, in.Page, in.Size)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, result)
}

func (s *LocalService) handleCotonoma(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.Cotonoma == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	c, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.Cotonoma, error) {
		return store.GetCotonoma(sctx, req.Command.Cotonoma.ID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if c == nil {
		return fail(req, NotFound("cotonoma"))
	}
	return ok(req, c)
}

func (s *LocalService) handleCotonomaByCotoID(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.CotonomaByCotoID == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	c, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.Cotonoma, error) {
		return store.GetCotonomaByCoto(sctx, req.Command.CotonomaByCotoID.ID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if c == nil {
		return fail(req, NotFound("cotonoma"))
	}
	return ok(req, c)
}

func (s *LocalService) handleCotonomaByName(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.CotonomaByName == nil {
		return fail(req, Input(map[string]string{"name": "required"}))
	}
	c, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.Cotonoma, error) {
		return store.GetCotonomaByName(sctx, s.LocalNodeID, req.Command.CotonomaByName.Name)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if c == nil {
		return fail(req, NotFound("cotonoma"))
	}
	return ok(req, c)
}

func (s *LocalService) handleRecentCotos(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	page, size := pageArgs(req.Command.RecentCotos)
	result, err := store.Read(ctx, s.DB, func(sctx *store.Context) (store.Page[entity.Coto], error) {
		return store.RecentCotos(sctx, page, size)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, result)
}

func (s *LocalService) handleCotoDetails(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.CotoDetails == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	c, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.Coto, error) {
		return store.GetCoto(sctx, req.Command.CotoDetails.ID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if c == nil {
		return fail(req, NotFound("coto"))
	}
	return ok(req, c)
}

func (s *LocalService) handlePostCoto(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireWrite(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.PostCoto
	if in == nil {
		return fail(req, Input(map[string]string{"posted_in_id": "required"}))
	}
	now := s.Clock.Now()
	coto := entity.Coto{
		UUID: uuid.New(), NodeID: s.LocalNodeID, PostedInID: &in.PostedInID, PostedByID: op.NodeID(),
		Content: in.Content, Summary: in.Summary, Media: in.Media,
		Geolocation: in.Geolocation, DatetimeRange: in.DatetimeRange,
		CreatedAt: now, UpdatedAt: now,
	}
	created, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Coto, error) {
		return store.InsertCoto(sctx, coto)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{Kind: entity.ChangeCreateCoto, CreateCoto: &created}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, created)
}

func (s *LocalService) handlePostCotonoma(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireWrite(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.PostCotonoma
	if in == nil {
		return fail(req, Input(map[string]string{"name": "required"}))
	}
	now := s.Clock.Now()
	cotoID := uuid.New()
	coto := entity.Coto{
		UUID: cotoID, NodeID: s.LocalNodeID, PostedInID: &in.PostedInID, PostedByID: op.NodeID(),
		Summary: &in.Name, IsCotonoma: true, CreatedAt: now, UpdatedAt: now,
	}
	cotonoma := entity.Cotonoma{
		UUID: uuid.New(), NodeID: s.LocalNodeID, CotoID: cotoID, Name: in.Name, CreatedAt: now, UpdatedAt: now,
	}
	type result struct {
		Coto     entity.Coto
		Cotonoma entity.Cotonoma
	}
	r, err := store.Write(ctx, s.DB, func(sctx *store.Context) (result, error) {
		c, cn, err := store.InsertCotonoma(sctx, coto, cotonoma)
		return result{Coto: c, Cotonoma: cn}, err
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeCreateCotonoma,
		CreateCotonoma: &entity.CreateCotonomaChange{Cotonoma: r.Cotonoma, Coto: r.Coto},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, r)
}

func (s *LocalService) handleEditCoto(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireWrite(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.EditCoto
	if in == nil {
		return fail(req, Input(map[string]string{"coto_id": "required"}))
	}
	now := s.Clock.Now()
	updated, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Coto, error) {
		return store.EditCoto(sctx, in.CotoID, in.Diff, now)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeEditCoto,
		EditCoto: &entity.EditCotoChange{CotoID: in.CotoID, Diff: in.Diff, UpdatedAt: now},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, updated)
}

func (s *LocalService) handlePromote(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireWrite(op); err != nil {
		return fail(req, Permission())
	}
	if req.Command.Promote == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	now := s.Clock.Now()
	cotonomaID := uuid.New()
	cotonoma, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Cotonoma, error) {
		return store.PromoteCoto(sctx, req.Command.Promote.ID, cotonomaID, now)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangePromote,
		Promote: &entity.PromoteChange{CotoID: req.Command.Promote.ID, PromotedAt: now, CotonomaID: &cotonoma.UUID},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, cotonoma)
}

func (s *LocalService) handleDeleteCoto(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireWrite(op); err != nil {
		return fail(req, Permission())
	}
	if req.Command.DeleteCoto == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	now := s.Clock.Now()
	_, err := store.Write(ctx, s.DB, func(sctx *store.Context) (struct{}, error) {
		return struct{}{}, store.DeleteCoto(sctx, req.Command.DeleteCoto.ID)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeDeleteCoto,
		DeleteCoto: &entity.DeleteCotoChange{CotoID: req.Command.DeleteCoto.ID, DeletedAt: now},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, map[string]string{"id": req.Command.DeleteCoto.ID.String()})
}

func (s *LocalService) handleRenameCotonoma(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireWrite(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.RenameCotonoma
	if in == nil {
		return fail(req, Input(map[string]string{"cotonoma_id": "required"}))
	}
	now := s.Clock.Now()
	updated, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Cotonoma, error) {
		return store.RenameCotonoma(sctx, in.CotonomaID, in.Name, now)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeRenameCotonoma,
		RenameCotonoma: &entity.RenameCotonomaChange{CotonomaID: in.CotonomaID, Name: in.Name, UpdatedAt: now},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, updated)
}

func (s *LocalService) handleIto(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.Ito == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	i, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.Ito, error) {
		return store.GetIto(sctx, req.Command.Ito.ID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if i == nil {
		return fail(req, NotFound("ito"))
	}
	return ok(req, i)
}

func (s *LocalService) handleSiblingItos(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.SiblingItos == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	itos, err := store.Read(ctx, s.DB, func(sctx *store.Context) ([]entity.Ito, error) {
		return store.OutgoingItos(sctx, req.Command.SiblingItos.ID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, itos)
}

func (s *LocalService) handleCreateIto(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireEditItos(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.CreateIto
	if in == nil {
		return fail(req, Input(map[string]string{"source_coto_id": "required", "target_coto_id": "required"}))
	}
	now := s.Clock.Now()
	ito := entity.Ito{
		UUID: uuid.New(), NodeID: s.LocalNodeID, CreatedByID: op.NodeID(),
		SourceCotoID: in.SourceCotoID, TargetCotoID: in.TargetCotoID,
		Description: in.Description, Details: in.Details, Order: in.Order,
		CreatedAt: now, UpdatedAt: now,
	}
	created, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Ito, error) {
		return itopkg.Insert(sctx, ito)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{Kind: entity.ChangeCreateIto, CreateIto: &created}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, created)
}

func (s *LocalService) handleEditIto(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireEditItos(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.EditIto
	if in == nil {
		return fail(req, Input(map[string]string{"ito_id": "required"}))
	}
	now := s.Clock.Now()
	updated, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Ito, error) {
		return store.EditIto(sctx, in.ItoID, in.Diff, now)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeEditIto,
		EditIto: &entity.EditItoChange{ItoID: in.ItoID, Diff: in.Diff, UpdatedAt: now},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, updated)
}

func (s *LocalService) handleDeleteIto(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireEditItos(op); err != nil {
		return fail(req, Permission())
	}
	if req.Command.DeleteIto == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	_, err := store.Write(ctx, s.DB, func(sctx *store.Context) (struct{}, error) {
		return struct{}{}, store.DeleteIto(sctx, req.Command.DeleteIto.ID)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeDeleteIto,
		DeleteIto: &entity.DeleteItoChange{ItoID: req.Command.DeleteIto.ID},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, map[string]string{"id": req.Command.DeleteIto.ID.String()})
}

func (s *LocalService) handleChangeItoOrder(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireEditItos(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.ChangeItoOrder
	if in == nil {
		return fail(req, Input(map[string]string{"ito_id": "required", "new_order": "required"}))
	}
	updated, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.Ito, error) {
		return itopkg.ChangeOrder(sctx, in.ItoID, in.NewOrder)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	if err := s.logChange(ctx, entity.Change{
		Kind: entity.ChangeChangeItoOrder,
		ChangeItoOrder: &entity.ChangeItoOrderChange{ItoID: in.ItoID, NewOrder: int32(in.NewOrder)},
	}); err != nil {
		return fail(req, Server(err.Error()))
	}
	return ok(req, updated)
}

func (s *LocalService) handleCreateClientNodeSession(ctx context.Context, req Request) Response {
	in := req.Command.CreateClientNodeSession
	if in == nil {
		return fail(req, Input(map[string]string{"node_id": "required", "password": "required"}))
	}
	client, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.ClientNode, error) {
		return store.GetClientNode(sctx, in.NodeID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if client == nil || !auth.VerifyPassword(client.PasswordHash, in.Password) {
		return fail(req, Permission())
	}
	token, err := auth.NewSessionToken()
	if err != nil {
		return fail(req, Server(err.Error()))
	}
	_, err = store.Write(ctx, s.DB, func(sctx *store.Context) (struct{}, error) {
		return struct{}{}, store.SetClientNodeSession(sctx, in.NodeID, &token)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	child, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.ChildNode, error) {
		return store.GetChildNode(sctx, in.NodeID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, map[string]any{"token": token, "child": child})
}

func (s *LocalService) handleAddServer(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.AddServer
	if in == nil {
		return fail(req, Input(map[string]string{"node_id": "required", "url_prefix": "required"}))
	}
	server, err := federation.RegisterServerNode(ctx, s.DB, s.OwnerPassword, in.URLPrefix, in.Password, in.NodeID)
	if err != nil {
		return translateFederationErr(req, err)
	}
	// A dialed server is also this node's replication source (database
	// role: Parent) — the two axes are set up together here since a
	// server this node can't pull from has no use yet.
	if _, err := federation.RegisterAsParent(ctx, s.DB, in.NodeID); err != nil {
		return translateFederationErr(req, err)
	}
	return ok(req, server)
}

func (s *LocalService) handleEditServer(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.EditServer
	if in == nil {
		return fail(req, Input(map[string]string{"node_id": "required"}))
	}
	updated, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.ServerNode, error) {
		if in.URLPrefix != nil {
			if err := store.SetServerNodeURLPrefix(sctx, in.NodeID, *in.URLPrefix); err != nil {
				return entity.ServerNode{}, err
			}
		}
		if in.Disabled != nil {
			if err := store.SetServerNodeDisabled(sctx, in.NodeID, *in.Disabled); err != nil {
				return entity.ServerNode{}, err
			}
		}
		server, err := store.GetServerNode(sctx, in.NodeID)
		if err != nil {
			return entity.ServerNode{}, err
		}
		if server == nil {
			return entity.ServerNode{}, store.ErrNotFound
		}
		return *server, nil
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	return ok(req, updated)
}

func (s *LocalService) handleRecentClients(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	page, size := pageArgs(req.Command.RecentClients)
	result, err := store.Read(ctx, s.DB, func(sctx *store.Context) (store.Page[entity.ClientNode], error) {
		return store.AllClientNodes(sctx, page, size)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, result)
}

func (s *LocalService) handleAddClient(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.AddClient
	if in == nil {
		return fail(req, Input(map[string]string{"node_id": "required", "password": "required"}))
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return fail(req, Server(err.Error()))
	}
	child, err := federation.RegisterChildNode(ctx, s.DB, in.NodeID, hash, false, false)
	if err != nil {
		return translateFederationErr(req, err)
	}
	return ok(req, child)
}

func (s *LocalService) handleResetClientPassword(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	if req.Command.ResetClientPassword == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	newPassword, err := auth.NewSessionToken()
	if err != nil {
		return fail(req, Server(err.Error()))
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fail(req, Server(err.Error()))
	}
	_, err = store.Write(ctx, s.DB, func(sctx *store.Context) (struct{}, error) {
		return struct{}{}, store.SetClientNodePasswordHash(sctx, req.Command.ResetClientPassword.ID, hash)
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	// The plaintext is returned once, here, for the owner to hand to the
	// client out of band; only its bcrypt hash is ever persisted.
	return ok(req, map[string]string{"password": newPassword})
}

func (s *LocalService) handleEditClient(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.EditClient
	if in == nil {
		return fail(req, Input(map[string]string{"node_id": "required"}))
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return fail(req, Server(err.Error()))
		}
		_, err = store.Write(ctx, s.DB, func(sctx *store.Context) (struct{}, error) {
			return struct{}{}, store.SetClientNodePasswordHash(sctx, in.NodeID, hash)
		})
		if err != nil {
			return translateWriteErr(req, err)
		}
	}
	client, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.ClientNode, error) {
		return store.GetClientNode(sctx, in.NodeID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if client == nil {
		return fail(req, NotFound("client_node"))
	}
	return ok(req, client)
}

func (s *LocalService) handleChildNode(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.ChildNode == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	child, err := store.Read(ctx, s.DB, func(sctx *store.Context) (*entity.ChildNode, error) {
		return store.GetChildNode(sctx, req.Command.ChildNode.ID)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	if child == nil {
		return fail(req, NotFound("child_node"))
	}
	return ok(req, child)
}

func (s *LocalService) handleEditChild(ctx context.Context, req Request, op perm.Operator) Response {
	if err := perm.RequireManageNode(op); err != nil {
		return fail(req, Permission())
	}
	in := req.Command.EditChild
	if in == nil {
		return fail(req, Input(map[string]string{"node_id": "required"}))
	}
	updated, err := store.Write(ctx, s.DB, func(sctx *store.Context) (entity.ChildNode, error) {
		current, err := store.GetChildNode(sctx, in.NodeID)
		if err != nil {
			return entity.ChildNode{}, err
		}
		if current == nil {
			return entity.ChildNode{}, store.ErrNotFound
		}
		asOwner, canEditItos := current.AsOwner, current.CanEditItos
		if in.AsOwner != nil {
			asOwner = *in.AsOwner
		}
		if in.CanEditItos != nil {
			canEditItos = *in.CanEditItos
		}
		if err := store.SetChildNodePermissions(sctx, in.NodeID, asOwner, canEditItos); err != nil {
			return entity.ChildNode{}, err
		}
		return entity.ChildNode{NodeID: in.NodeID, AsOwner: asOwner, CanEditItos: canEditItos}, nil
	})
	if err != nil {
		return translateWriteErr(req, err)
	}
	return ok(req, updated)
}

func (s *LocalService) handleGraphFromCoto(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.GraphFromCoto == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	graph, err := store.Read(ctx, s.DB, func(sctx *store.Context) (GraphResult, error) {
		return buildGraph(sctx, req.Command.GraphFromCoto.ID, true)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, graph)
}

func (s *LocalService) handleGraphFromCotonoma(ctx context.Context, req Request, op perm.Operator) Response {
	if !canRead(op) {
		return fail(req, Unauthorized())
	}
	if req.Command.GraphFromCotonoma == nil {
		return fail(req, Input(map[string]string{"id": "required"}))
	}
	graph, err := store.Read(ctx, s.DB, func(sctx *store.Context) (GraphResult, error) {
		cotonoma, err := store.GetCotonoma(sctx, req.Command.GraphFromCotonoma.ID)
		if err != nil {
			return GraphResult{}, err
		}
		if cotonoma == nil {
			return GraphResult{}, store.ErrNotFound
		}
		return buildGraph(sctx, cotonoma.CotoID, true)
	})
	if err != nil {
		return translateReadErr(req, err)
	}
	return ok(req, graph)
}

// translateFederationErr maps a role-exclusivity conflict to a request
// error rather than a bare 500, since it's the caller's registration input
// that's at fault, not the server.
func translateFederationErr(req Request, err error) Response {
	var conflict federation.ErrRoleConflict
	if errors.As(err, &conflict) {
		return fail(req, RequestError("role-conflict", map[string]any{
			"node_id": conflict.NodeID.String(), "role": conflict.Role,
		}))
	}
	return translateWriteErr(req, err)
}

// logChange appends change to this node's own log and notifies the bus
// hook, if one is wired.
func (s *LocalService) logChange(ctx context.Context, change entity.Change) error {
	entry, err := changelog.LogChange(ctx, s.DB, s.LocalNodeID, change, s.Clock.Now())
	if err != nil {
		return err
	}
	if s.OnLocalChange != nil {
		s.OnLocalChange(entry)
	}
	return nil
}

// canRead is true for every Operator: LocalService only ever receives an
// Anonymous operator once the caller (the HTTP layer) has already checked
// anonymous_read_enabled, so by the time a Request reaches here, read
// access is settled.
func canRead(perm.Operator) bool { return true }

func pageArgs(in *PageInput) (page, size int) {
	if in == nil {
		return 0, 0
	}
	return in.Page, in.Size
}

func translateReadErr(req Request, err error) Response {
	if errors.Is(err, store.ErrNotFound) {
		return fail(req, NotFound(""))
	}
	return fail(req, Server(err.Error()))
}

func translateWriteErr(req Request, err error) Response {
	if errors.Is(err, store.ErrNotFound) {
		return fail(req, NotFound(""))
	}
	if errors.Is(err, store.ErrConflict) {
		return fail(req, RequestError("conflict", map[string]any{"detail": err.Error()}))
	}
	var ve *entity.ValidationError
	if errors.As(err, &ve) {
		return fail(req, Input(ve.Violations))
	}
	return fail(req, Server(err.Error()))
}
