// Package dagengine implements the DAG Engine (C3) and History Formatter
// (C4): sub-DAG construction from a seed parent set, a deterministic
// topological linearization that keeps Q/A pairs and linear runs
// contiguous, and the transform from a linearized node sequence into the
// role-tagged message array a Model Adapter expects.
//
// This is the one component with no direct teacher analog — Danor93's
// chat handler works over a flat transcript, not a graph — so the
// algorithm here is built from spec.md §4.3 directly, in the teacher's
// idiom (explicit context-threaded errors, no panics, container/heap for
// the priority queue exactly as the standard library intends it).
package dagengine

import (
	"container/heap"
	"context"
	"sort"

	"github.com/ZM-BAD/dag-chat/internal/errors"
	"github.com/ZM-BAD/dag-chat/internal/models"
)

// MessageFetcher is the read slice of MessageStore the DAG Engine needs.
// Keeping it narrow avoids an import cycle with the store package and
// makes the engine trivially testable against an in-memory fake.
type MessageFetcher interface {
	GetMany(ctx context.Context, conversationID string, ids []string) (map[string]*models.Message, error)
}

// BuildSubDAG walks parent_ids upward from seedIDs, fetching nodes in
// batches, until the frontier is exhausted. Unknown IDs are skipped, not
// fatal. The traversal terminates even over a corrupt (cyclic) graph
// because it never re-requests an ID it has already queued.
func BuildSubDAG(ctx context.Context, fetcher MessageFetcher, conversationID string, seedIDs []string) (map[string]*models.Message, error) {
	nodes := make(map[string]*models.Message)
	requested := make(map[string]bool)

	frontier := dedupe(seedIDs)
	for _, id := range frontier {
		requested[id] = true
	}

	for len(frontier) > 0 {
		fetched, err := fetcher.GetMany(ctx, conversationID, frontier)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrStoreError)
		}

		var next []string
		for _, id := range frontier {
			n, ok := fetched[id]
			if !ok {
				continue // unknown ID: skipped per spec §4.3.1
			}
			nodes[id] = n
			for _, p := range n.ParentIDs {
				if !requested[p] {
					requested[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}

	return nodes, nil
}

// TopologicalSort linearizes a sub-DAG satisfying (T1)-(T4) of spec §4.3.2:
// dependency order, single-root-first, chain non-cleaving, and a
// deterministic tie-break on (created_at, id). It is a modified Kahn's
// algorithm: a node popped off the ready priority queue is emitted, and
// then the chain following it — if unambiguous — is emitted directly
// without returning to the queue.
func TopologicalSort(nodes map[string]*models.Message) ([]*models.Message, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	childrenOf := make(map[string][]string, len(nodes))
	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for id, n := range nodes {
		for _, p := range n.ParentIDs {
			if _, ok := nodes[p]; ok {
				indegree[id]++
				childrenOf[p] = append(childrenOf[p], id)
			}
		}
	}

	ready := &nodeHeap{}
	heap.Init(ready)
	for id, deg := range indegree {
		if deg == 0 {
			heap.Push(ready, nodes[id])
		}
	}

	emitted := make([]*models.Message, 0, len(nodes))

	releaseChildren := func(n *models.Message) {
		for _, cid := range childrenOf[n.ID] {
			indegree[cid]--
			if indegree[cid] == 0 {
				heap.Push(ready, nodes[cid])
			}
		}
	}

	singleParentWithinSubDAG := func(n *models.Message) bool {
		count := 0
		for _, p := range n.ParentIDs {
			if _, ok := nodes[p]; ok {
				count++
			}
		}
		return count == 1
	}

	for ready.Len() > 0 {
		n := heap.Pop(ready).(*models.Message)
		emitted = append(emitted, n)

		for {
			kids := childrenOf[n.ID]
			if len(kids) != 1 {
				releaseChildren(n)
				break
			}
			child := nodes[kids[0]]
			if !singleParentWithinSubDAG(child) {
				releaseChildren(n)
				break
			}
			// Chain link (T3): emit directly, never touching the ready
			// queue, then continue following the chain from the child.
			emitted = append(emitted, child)
			n = child
		}
	}

	if len(emitted) != len(nodes) {
		return nil, errors.New(errors.ErrInvalidDag, "sub-dag contains a cycle")
	}

	return emitted, nil
}

// BuildHistory composes BuildSubDAG and TopologicalSort (spec §4.3.3). An
// empty parent set is not an error — it signals the first question in a
// fresh conversation, with an empty history.
func BuildHistory(ctx context.Context, fetcher MessageFetcher, conversationID string, parentIDs []string) ([]*models.Message, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	nodes, err := BuildSubDAG(ctx, fetcher, conversationID, parentIDs)
	if err != nil {
		return nil, err
	}

	return TopologicalSort(nodes)
}

// RegenerateChildren recomputes every node's Children set from the full
// node list's ParentIDs and overwrites any set that has drifted.
// parent_ids is the source of truth (spec §9); children is a denormalized
// reverse edge kept only for client rendering, so a read path that returns
// a full conversation is the natural point to detect and repair drift
// rather than trusting whatever AppendChild calls happened to land.
func RegenerateChildren(nodes []models.Message) []models.Message {
	expected := make(map[string]map[string]bool, len(nodes))
	for _, n := range nodes {
		for _, p := range n.ParentIDs {
			if expected[p] == nil {
				expected[p] = make(map[string]bool)
			}
			expected[p][n.ID] = true
		}
	}

	out := make([]models.Message, len(nodes))
	for i, n := range nodes {
		want := expected[n.ID]
		if childrenSetEqual(n.Children, want) {
			out[i] = n
			continue
		}
		fixed := make([]string, 0, len(want))
		for id := range want {
			fixed = append(fixed, id)
		}
		sort.Strings(fixed)
		n.Children = fixed
		out[i] = n
	}
	return out
}

func childrenSetEqual(children []string, want map[string]bool) bool {
	if len(children) != len(want) {
		return false
	}
	for _, c := range children {
		if !want[c] {
			return false
		}
	}
	return true
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// nodeHeap is a min-heap ordered by (created_at, id) — the (T4)
// deterministic tie-break among simultaneously eligible nodes.
type nodeHeap []*models.Message

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
		return h[i].CreatedAt.Before(h[j].CreatedAt)
	}
	return h[i].ID < h[j].ID
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x interface{}) {
	*h = append(*h, x.(*models.Message))
}

func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
