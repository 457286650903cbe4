package changelog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
	itopkg "github.com/cotoami/cotoami-go/internal/ito"
	"github.com/cotoami/cotoami-go/internal/store"
)

// ApplyChange replays one Change against the local store. Errors returned
// here are captured onto the changelog entry's ImportError by ImportChange
// rather than aborting the import transaction: a bad change must still
// advance the log so replication doesn't stall forever on one bad entry.
func ApplyChange(ctx *store.Context, localNodeID uuid.UUID, c entity.Change) error {
	switch c.Kind {
	case entity.ChangeNone:
		return nil

	case entity.ChangeCreateNode:
		if c.CreateNode == nil {
			return fmt.Errorf("apply create_node: missing payload")
		}
		if _, err := store.InsertNode(ctx, c.CreateNode.Node); err != nil {
			return err
		}
		if c.CreateNode.Root != nil {
			if _, _, err := store.InsertCotonoma(ctx, c.CreateNode.Root.Coto, c.CreateNode.Root.Cotonoma); err != nil {
				return err
			}
		}
		return nil

	case entity.ChangeUpsertNode:
		if c.UpsertNode == nil {
			return fmt.Errorf("apply upsert_node: missing payload")
		}
		_, err := store.UpsertNode(ctx, *c.UpsertNode)
		return err

	case entity.ChangeRenameNode:
		if c.RenameNode == nil {
			return fmt.Errorf("apply rename_node: missing payload")
		}
		_, err := store.RenameNode(ctx, c.RenameNode.NodeID, c.RenameNode.Name)
		return err

	case entity.ChangeSetNodeIcon:
		if c.SetNodeIcon == nil {
			return fmt.Errorf("apply set_node_icon: missing payload")
		}
		_, err := store.SetNodeIcon(ctx, c.SetNodeIcon.NodeID, c.SetNodeIcon.Icon)
		return err

	case entity.ChangeSetRootCotonoma:
		if c.SetRootCotonoma == nil {
			return fmt.Errorf("apply set_root_cotonoma: missing payload")
		}
		_, err := store.SetRootCotonoma(ctx, c.SetRootCotonoma.NodeID, c.SetRootCotonoma.CotonomaID)
		return err

	case entity.ChangeCreateCoto:
		if c.CreateCoto == nil {
			return fmt.Errorf("apply create_coto: missing payload")
		}
		_, err := store.InsertCoto(ctx, *c.CreateCoto)
		return err

	case entity.ChangeEditCoto:
		if c.EditCoto == nil {
			return fmt.Errorf("apply edit_coto: missing payload")
		}
		_, err := store.EditCoto(ctx, c.EditCoto.CotoID, c.EditCoto.Diff, c.EditCoto.UpdatedAt)
		return err

	case entity.ChangePromote:
		if c.Promote == nil {
			return fmt.Errorf("apply promote: missing payload")
		}
		cotonomaID := c.Promote.CotonomaID
		if cotonomaID == nil {
			id := uuid.New()
			cotonomaID = &id
		}
		_, err := store.PromoteCoto(ctx, c.Promote.CotoID, *cotonomaID, c.Promote.PromotedAt)
		return err

	case entity.ChangeDeleteCoto:
		if c.DeleteCoto == nil {
			return fmt.Errorf("apply delete_coto: missing payload")
		}
		return store.DeleteCoto(ctx, c.DeleteCoto.CotoID)

	case entity.ChangeCreateCotonoma:
		if c.CreateCotonoma == nil {
			return fmt.Errorf("apply create_cotonoma: missing payload")
		}
		_, _, err := store.InsertCotonoma(ctx, c.CreateCotonoma.Coto, c.CreateCotonoma.Cotonoma)
		return err

	case entity.ChangeRenameCotonoma:
		if c.RenameCotonoma == nil {
			return fmt.Errorf("apply rename_cotonoma: missing payload")
		}
		_, err := store.RenameCotonoma(ctx, c.RenameCotonoma.CotonomaID, c.RenameCotonoma.Name, c.RenameCotonoma.UpdatedAt)
		return err

	case entity.ChangeCreateIto:
		if c.CreateIto == nil {
			return fmt.Errorf("apply create_ito: missing payload")
		}
		_, err := itopkg.Insert(ctx, *c.CreateIto)
		return err

	case entity.ChangeEditIto:
		if c.EditIto == nil {
			return fmt.Errorf("apply edit_ito: missing payload")
		}
		_, err := store.EditIto(ctx, c.EditIto.ItoID, c.EditIto.Diff, c.EditIto.UpdatedAt)
		return err

	case entity.ChangeDeleteIto:
		if c.DeleteIto == nil {
			return fmt.Errorf("apply delete_ito: missing payload")
		}
		return store.DeleteIto(ctx, c.DeleteIto.ItoID)

	case entity.ChangeChangeItoOrder:
		if c.ChangeItoOrder == nil {
			return fmt.Errorf("apply change_ito_order: missing payload")
		}
		_, err := itopkg.ChangeOrder(ctx, c.ChangeItoOrder.ItoID, int(c.ChangeItoOrder.NewOrder))
		return err

	case entity.ChangeOwnerNode:
		if c.ChangeOwnerNode == nil {
			return fmt.Errorf("apply change_owner_node: missing payload")
		}
		return applyChangeOwnerNode(ctx, *c.ChangeOwnerNode)

	default:
		return fmt.Errorf("apply change: unknown kind %q", c.Kind)
	}
}

// applyChangeOwnerNode reassigns every coto, cotonoma and ito owned by From
// over to To, refusing unless From's last origin_serial_number still
// matches LastChangeNumber (nothing originating from From has arrived since
// the change was produced upstream).
func applyChangeOwnerNode(ctx *store.Context, c entity.ChangeOwnerNodeChange) error {
	last, err := store.LastOriginSerialNumber(ctx, c.From)
	if err != nil {
		return err
	}
	if last != c.LastChangeNumber {
		return fmt.Errorf("apply change_owner_node: node %s has advanced past change %d (now at %d)",
			c.From, c.LastChangeNumber, last)
	}
	if err := store.ReassignCotoOwner(ctx, c.From, c.To); err != nil {
		return fmt.Errorf("apply change_owner_node: reassign cotos: %w", err)
	}
	if err := store.ReassignCotonomaOwner(ctx, c.From, c.To); err != nil {
		return fmt.Errorf("apply change_owner_node: reassign cotonomas: %w", err)
	}
	if err := store.ReassignItoOwner(ctx, c.From, c.To); err != nil {
		return fmt.Errorf("apply change_owner_node: reassign itos: %w", err)
	}
	return nil
}
