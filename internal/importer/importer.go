// Package importer loads a legacy single-node JSON export into a
// federated store, for operators migrating an existing knowledge base
// onto this node. Grounded line-for-line on cotoami_db's bin/import.rs in
// original_source: cotos are imported in dependency order (a coto whose
// posted_in_id or repost_id isn't in the store yet is deferred until its
// dependency lands, not just rejected), connections become itos once both
// endpoints exist.
package importer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/changelog"
	"github.com/cotoami/cotoami-go/internal/clock"
	"github.com/cotoami/cotoami-go/internal/entity"
	itopkg "github.com/cotoami/cotoami-go/internal/ito"
	"github.com/cotoami/cotoami-go/internal/store"
)

// Report tallies what ImportFile did, for a CLI to print a summary.
type Report struct {
	Cotos     int
	Cotonomas int
	Itos      int
	Skipped   int // rows rejected: unsatisfiable dependency, or failed validation
}

// ImportFile reads the legacy export at path and imports it into db as
// the given local node. Cotos and cotonomas already present in the store
// (by id) are left untouched and not recounted. Connections are not
// deduplicated: each run inserts every connection as a new ito and counts
// it again.
func ImportFile(ctx context.Context, db *store.Database, clk clock.Clock, localNodeID uuid.UUID, path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("importer: read %s: %w", path, err)
	}
	export, err := decodeExport(data)
	if err != nil {
		return Report{}, fmt.Errorf("importer: decode %s: %w", path, err)
	}

	local, err := store.Read(ctx, db, func(sctx *store.Context) (*entity.Node, error) {
		return store.GetNode(sctx, localNodeID)
	})
	if err != nil {
		return Report{}, fmt.Errorf("importer: read local node: %w", err)
	}
	if local == nil || local.RootCotonomaID == nil {
		return Report{}, fmt.Errorf("importer: local node %s has no root cotonoma", localNodeID)
	}

	im := &importer{
		ctx: ctx, db: db, clk: clk, localNodeID: localNodeID, rootCotonomaID: *local.RootCotonomaID,
		allCotoIDs:        make(map[uuid.UUID]struct{}, len(export.Cotos)),
		allCotonomaIDs:    make(map[uuid.UUID]struct{}),
		importedCotos:     make(map[uuid.UUID]struct{}),
		importedCotonomas: make(map[uuid.UUID]struct{}),
	}
	for _, lc := range export.Cotos {
		im.allCotoIDs[lc.ID] = struct{}{}
		if lc.Cotonoma != nil {
			im.allCotonomaIDs[lc.Cotonoma.ID] = struct{}{}
		}
	}
	// The root cotonoma always counts as already present, so any coto
	// that posted_in's it (the common case: posted_in_id absent) resolves
	// immediately instead of waiting on a dependency that will never
	// appear in this dump.
	im.importedCotonomas[im.rootCotonomaID] = struct{}{}

	var report Report
	if err := im.importCotos(export.Cotos, &report); err != nil {
		return report, err
	}
	if err := im.importConnections(export.Connections, &report); err != nil {
		return report, err
	}
	return report, nil
}

type importer struct {
	ctx            context.Context
	db             *store.Database
	clk            clock.Clock
	localNodeID    uuid.UUID
	rootCotonomaID uuid.UUID

	allCotoIDs     map[uuid.UUID]struct{}
	allCotonomaIDs map[uuid.UUID]struct{}

	importedCotos     map[uuid.UUID]struct{}
	importedCotonomas map[uuid.UUID]struct{}
}

// importCotos runs repeated passes over the still-pending rows, each pass
// importing every row whose dependencies are now satisfied, until either
// nothing is left or a full pass makes no progress. The original tool
// recurses on its "pendings" list without a depth cap; a malformed or
// cyclic dump (A posted_in B posted_in A) would recurse forever there, so
// this port bounds the number of passes at len(pending)+1 — no valid
// dependency chain needs more passes than it has rows.
func (im *importer) importCotos(all []legacyCoto, report *Report) error {
	pending := all
	for pass := 0; len(pending) > 0; pass++ {
		if pass > len(all) {
			report.Skipped += len(pending)
			return nil
		}

		var next []legacyCoto
		progressed := false
		for _, lc := range pending {
			ready, missing, err := im.depsReady(lc)
			switch {
			case err != nil:
				return err
			case missing:
				report.Skipped++
			case !ready:
				next = append(next, lc)
			default:
				if err := im.importCoto(lc, report); err != nil {
					return err
				}
				progressed = true
			}
		}
		if !progressed && len(next) > 0 {
			report.Skipped += len(next)
			return nil
		}
		pending = next
	}
	return nil
}

// depsReady reports whether lc's posted_in_id and repost_id (if set) are
// already imported. missing=true means the dependency is unsatisfiable —
// it names an id that appears nowhere in this dump and doesn't already
// exist in the store — so the row should be rejected outright rather than
// deferred forever.
func (im *importer) depsReady(lc legacyCoto) (ready, missing bool, err error) {
	if lc.PostedInID != nil {
		ok, err := im.cotonomaSatisfied(*lc.PostedInID)
		if err != nil {
			return false, false, err
		}
		if !ok {
			if _, known := im.allCotonomaIDs[*lc.PostedInID]; known {
				return false, false, nil
			}
			return false, true, nil
		}
	}
	if lc.RepostID != nil {
		ok, err := im.cotoSatisfied(*lc.RepostID)
		if err != nil {
			return false, false, err
		}
		if !ok {
			if _, known := im.allCotoIDs[*lc.RepostID]; known {
				return false, false, nil
			}
			return false, true, nil
		}
	}
	return true, false, nil
}

func (im *importer) cotonomaSatisfied(id uuid.UUID) (bool, error) {
	if _, ok := im.importedCotonomas[id]; ok {
		return true, nil
	}
	existing, err := store.Read(im.ctx, im.db, func(sctx *store.Context) (*entity.Cotonoma, error) {
		return store.GetCotonoma(sctx, id)
	})
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	im.importedCotonomas[id] = struct{}{}
	return true, nil
}

func (im *importer) cotoSatisfied(id uuid.UUID) (bool, error) {
	if _, ok := im.importedCotos[id]; ok {
		return true, nil
	}
	existing, err := store.Read(im.ctx, im.db, func(sctx *store.Context) (*entity.Coto, error) {
		return store.GetCoto(sctx, id)
	})
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	im.importedCotos[id] = struct{}{}
	return true, nil
}

func (im *importer) importCoto(lc legacyCoto, report *Report) error {
	if _, ok := im.importedCotos[lc.ID]; ok {
		return nil
	}
	if already, err := im.cotoSatisfied(lc.ID); err != nil {
		return fmt.Errorf("importer: look up coto %s: %w", lc.ID, err)
	} else if already {
		if lc.Cotonoma != nil {
			im.importedCotonomas[lc.Cotonoma.ID] = struct{}{}
		}
		return nil
	}

	postedInID := lc.PostedInID
	if postedInID == nil {
		postedInID = &im.rootCotonomaID
	}
	content, summary := contentAndSummary(lc)

	coto := entity.Coto{
		UUID: lc.ID, NodeID: im.localNodeID, PostedInID: postedInID, PostedByID: im.localNodeID,
		Content: content, Summary: summary, IsCotonoma: lc.AsCotonoma,
		RepostOfID: lc.RepostID, RepostedInIDs: toIDSet(lc.RepostedInIDs),
		CreatedAt: lc.insertedAt(), UpdatedAt: lc.updatedAt(),
	}
	if err := coto.Validate(); err != nil {
		report.Skipped++
		return nil
	}

	if lc.Cotonoma != nil {
		return im.importCotonoma(coto, *lc.Cotonoma, report)
	}

	if _, err := store.Write(im.ctx, im.db, func(sctx *store.Context) (struct{}, error) {
		_, err := store.InsertCoto(sctx, coto)
		return struct{}{}, err
	}); err != nil {
		return fmt.Errorf("importer: insert coto %s: %w", coto.UUID, err)
	}
	change := entity.Change{Kind: entity.ChangeCreateCoto, CreateCoto: &coto}
	if _, err := changelog.LogChange(im.ctx, im.db, im.localNodeID, change, im.clk.Now()); err != nil {
		return fmt.Errorf("importer: log coto %s: %w", coto.UUID, err)
	}
	im.importedCotos[lc.ID] = struct{}{}
	report.Cotos++
	return nil
}

func (im *importer) importCotonoma(coto entity.Coto, lc legacyCotonoma, report *Report) error {
	cotonoma := entity.Cotonoma{
		UUID: lc.ID, NodeID: im.localNodeID, CotoID: coto.UUID, Name: lc.Name,
		CreatedAt: time.UnixMilli(lc.InsertedAt).UTC(), UpdatedAt: time.UnixMilli(lc.UpdatedAt).UTC(),
	}
	if err := cotonoma.Validate(); err != nil {
		report.Skipped++
		return nil
	}

	if _, err := store.Write(im.ctx, im.db, func(sctx *store.Context) (struct{}, error) {
		_, _, err := store.InsertCotonoma(sctx, coto, cotonoma)
		return struct{}{}, err
	}); err != nil {
		return fmt.Errorf("importer: insert cotonoma %s: %w", cotonoma.UUID, err)
	}
	change := entity.Change{Kind: entity.ChangeCreateCotonoma, CreateCotonoma: &entity.CreateCotonomaChange{Cotonoma: cotonoma, Coto: coto}}
	if _, err := changelog.LogChange(im.ctx, im.db, im.localNodeID, change, im.clk.Now()); err != nil {
		return fmt.Errorf("importer: log cotonoma %s: %w", cotonoma.UUID, err)
	}
	im.importedCotos[coto.UUID] = struct{}{}
	im.importedCotonomas[cotonoma.UUID] = struct{}{}
	report.Cotonomas++
	return nil
}

// importConnections converts each legacy connection into an ito, skipping
// any whose endpoints never made it into the store (rejected or
// unsatisfiable cotos). created_by and created_in are legacy per-user
// context with no analogue here, so every imported ito is attributed to
// the local node, same as an imported coto's posted_by_id.
func (im *importer) importConnections(conns []legacyConnection, report *Report) error {
	for _, lc := range conns {
		if _, ok := im.importedCotos[lc.Start]; !ok {
			report.Skipped++
			continue
		}
		if _, ok := im.importedCotos[lc.End]; !ok {
			report.Skipped++
			continue
		}
		if lc.LinkingPhrase != nil && len(*lc.LinkingPhrase) > entity.MaxItoDescription {
			report.Skipped++
			continue
		}

		order := int(lc.Order)
		if order < 1 {
			order = 0 // let itopkg.Insert assign the next free order
		}
		ito := entity.Ito{
			UUID: uuid.New(), NodeID: im.localNodeID, CreatedByID: im.localNodeID,
			SourceCotoID: lc.Start, TargetCotoID: lc.End, Description: lc.LinkingPhrase,
			Order: order, CreatedAt: lc.createdAt(), UpdatedAt: lc.createdAt(),
		}

		inserted, err := store.Write(im.ctx, im.db, func(sctx *store.Context) (entity.Ito, error) {
			return itopkg.Insert(sctx, ito)
		})
		if err != nil {
			return fmt.Errorf("importer: insert ito %s->%s: %w", lc.Start, lc.End, err)
		}
		change := entity.Change{Kind: entity.ChangeCreateIto, CreateIto: &inserted}
		if _, err := changelog.LogChange(im.ctx, im.db, im.localNodeID, change, im.clk.Now()); err != nil {
			return fmt.Errorf("importer: log ito %s: %w", inserted.UUID, err)
		}
		report.Itos++
	}
	return nil
}

// contentAndSummary applies the cotonoma content/summary swap: the legacy
// export stores a cotonoma's display name in its backing coto's content,
// but the current schema keeps that name on Cotonoma.Name and leaves the
// backing coto's Content empty, with Summary carrying whatever the legacy
// row's content actually held.
func contentAndSummary(lc legacyCoto) (content, summary *string) {
	if lc.Cotonoma != nil {
		return nil, lc.Content
	}
	return lc.Content, lc.Summary
}

func toIDSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
