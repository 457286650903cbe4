// Package ito implements the ordering algorithm for a coto's outgoing
// itos (C4): dense integers starting at 1, shifted just enough to open a
// gap at an arbitrary insertion point, grounded line-for-line on
// ito_ops.rs's ensure_space_at in original_source.
package ito

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/store"
)

// EnsureSpaceAt makes sure no outgoing ito of sourceCotoID currently holds
// order `at`. If one does, it and the contiguous run of orders directly
// after it are shifted up by one; itos past the first gap in that run keep
// their order. It collects the run ascending but must apply the shifts in
// descending order: writing order+1 for the largest order first, then
// working down, so no two itos ever transiently hold the same order under
// the table's unique (node_id, source_coto_id, "order") index.
func EnsureSpaceAt(ctx *store.Context, sourceCotoID uuid.UUID, at int) error {
	if at < 1 {
		return fmt.Errorf("ito: order must be >= 1, got %d", at)
	}
	orders, err := store.OrdersFrom(ctx, sourceCotoID, at)
	if err != nil {
		return fmt.Errorf("ito: read orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}

	// Only a contiguous run starting at `at` needs to move: the first gap
	// encountered stops the cascade.
	run := []int{orders[0]}
	for i := 1; i < len(orders); i++ {
		if orders[i] == run[len(run)-1]+1 {
			run = append(run, orders[i])
			continue
		}
		break
	}
	if run[0] != at {
		return nil
	}

	ids := make(map[int]uuid.UUID, len(run))
	itos, err := store.OutgoingItos(ctx, sourceCotoID)
	if err != nil {
		return fmt.Errorf("ito: read siblings: %w", err)
	}
	for _, i := range itos {
		ids[i.Order] = i.UUID
	}

	sort.Sort(sort.Reverse(sort.IntSlice(run)))
	for _, order := range run {
		id, ok := ids[order]
		if !ok {
			return fmt.Errorf("ito: order %d disappeared mid-shift", order)
		}
		if err := store.SetItoOrder(ctx, id, order+1); err != nil {
			return fmt.Errorf("ito: shift order %d->%d: %w", order, order+1, err)
		}
	}
	return nil
}

// NextOrder returns the order a newly created ito should take when no
// explicit position was requested: one past the current maximum.
func NextOrder(ctx *store.Context, sourceCotoID uuid.UUID) (int, error) {
	max, err := store.MaxOrder(ctx, sourceCotoID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Insert creates a new ito at i.Order (or, if i.Order is 0, appends it
// after the last sibling), opening a gap first if necessary.
func Insert(ctx *store.Context, i entity.Ito) (entity.Ito, error) {
	if i.Order == 0 {
		order, err := NextOrder(ctx, i.SourceCotoID)
		if err != nil {
			return i, err
		}
		i.Order = order
	} else if err := EnsureSpaceAt(ctx, i.SourceCotoID, i.Order); err != nil {
		return i, err
	}
	return store.InsertIto(ctx, i)
}

// ChangeOrder moves an existing ito to newOrder among its siblings. The
// whole sibling list is renumbered 1..N around the move rather than
// shifting only the itos between the old and new position: every sibling's
// order gets rewritten on every move, not just the ones that actually
// changed position. This still preserves the one order per sibling
// invariant, and is simpler to prove correct than a two-sided gap shift;
// siblings rarely number more than a few dozen.
func ChangeOrder(ctx *store.Context, itoID uuid.UUID, newOrder int) (entity.Ito, error) {
	moved, err := store.GetIto(ctx, itoID)
	if err != nil {
		return entity.Ito{}, err
	}
	if moved == nil {
		return entity.Ito{}, store.ErrNotFound
	}
	if moved.Order == newOrder {
		return *moved, nil
	}

	siblings, err := store.OutgoingItos(ctx, moved.SourceCotoID)
	if err != nil {
		return *moved, err
	}
	rest := make([]entity.Ito, 0, len(siblings))
	for _, s := range siblings {
		if s.UUID != itoID {
			rest = append(rest, s)
		}
	}

	target := newOrder - 1
	if target < 0 {
		target = 0
	}
	if target > len(rest) {
		target = len(rest)
	}
	ordered := make([]entity.Ito, 0, len(siblings))
	ordered = append(ordered, rest[:target]...)
	ordered = append(ordered, *moved)
	ordered = append(ordered, rest[target:]...)

	// Vacate every order first so the unique index never sees a collision
	// while orders are being reassigned.
	for _, s := range ordered {
		if err := store.SetItoOrder(ctx, s.UUID, -(s.Order + 1)); err != nil {
			return *moved, fmt.Errorf("ito: vacate order: %w", err)
		}
	}
	for idx, s := range ordered {
		order := idx + 1
		if err := store.SetItoOrder(ctx, s.UUID, order); err != nil {
			return *moved, fmt.Errorf("ito: renumber order: %w", err)
		}
		if s.UUID == itoID {
			moved.Order = order
		}
	}
	return *moved, nil
}
