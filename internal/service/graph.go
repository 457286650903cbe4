package service

import (
	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/store"
)

// maxGraphDepth caps GraphFromCoto/GraphFromCotonoma traversal. Itos can
// form cycles (a coto can point back at an ancestor), so the visited-coto
// set already stops re-expansion; the depth cap is a second, defensive
// bound against a pathologically wide graph.
const maxGraphDepth = 64

// GraphResult is the BFS closure of a root coto's outgoing itos: every
// coto and ito reachable from it, keyed by id so a caller can render the
// graph without walking duplicate edges.
type GraphResult struct {
	RootCotoID uuid.UUID
	Cotos      map[uuid.UUID]entity.Coto
	Itos       map[uuid.UUID]entity.Ito
}

type graphFrontier struct {
	id    uuid.UUID
	depth int
}

// buildGraph walks outgoing itos breadth-first from rootCotoID. When
// untilCotonoma is true, traversal stops at any coto that is itself a
// cotonoma (other than root) without following its outgoing itos, matching
// graph_test.rs's until_cotonoma semantics.
func buildGraph(sctx *store.Context, rootCotoID uuid.UUID, untilCotonoma bool) (GraphResult, error) {
	root, err := store.GetCoto(sctx, rootCotoID)
	if err != nil {
		return GraphResult{}, err
	}
	if root == nil {
		return GraphResult{}, store.ErrNotFound
	}

	result := GraphResult{
		RootCotoID: rootCotoID,
		Cotos:      map[uuid.UUID]entity.Coto{rootCotoID: *root},
		Itos:       map[uuid.UUID]entity.Ito{},
	}
	visited := map[uuid.UUID]bool{rootCotoID: true}
	queue := []graphFrontier{{id: rootCotoID, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxGraphDepth {
			continue
		}
		if cur.id != rootCotoID && untilCotonoma && result.Cotos[cur.id].IsCotonoma {
			continue
		}

		outgoing, err := store.OutgoingItos(sctx, cur.id)
		if err != nil {
			return GraphResult{}, err
		}
		for _, ito := range outgoing {
			result.Itos[ito.UUID] = ito
			if visited[ito.TargetCotoID] {
				continue
			}
			target, err := store.GetCoto(sctx, ito.TargetCotoID)
			if err != nil {
				return GraphResult{}, err
			}
			if target == nil {
				continue
			}
			visited[ito.TargetCotoID] = true
			result.Cotos[ito.TargetCotoID] = *target
			queue = append(queue, graphFrontier{id: ito.TargetCotoID, depth: cur.depth + 1})
		}
	}
	return result, nil
}
