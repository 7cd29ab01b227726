package dagengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZM-BAD/dag-chat/internal/models"
)

// fakeFetcher is an in-memory MessageFetcher over a fixed node set, so the
// DAG Engine can be exercised without a real MessageStore.
type fakeFetcher struct {
	nodes map[string]*models.Message
}

func (f *fakeFetcher) GetMany(ctx context.Context, conversationID string, ids []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(ids))
	for _, id := range ids {
		if n, ok := f.nodes[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func node(id string, t time.Time, parents ...string) *models.Message {
	return &models.Message{ID: id, ConversationID: "conv1", CreatedAt: t, ParentIDs: parents}
}

func TestBuildSubDAG_LinearChain(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{nodes: map[string]*models.Message{
		"a": node("a", base),
		"b": node("b", base.Add(time.Second), "a"),
		"c": node("c", base.Add(2*time.Second), "b"),
	}}

	nodes, err := BuildSubDAG(context.Background(), fetcher, "conv1", []string{"c"})
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	assert.Contains(t, nodes, "a")
	assert.Contains(t, nodes, "b")
	assert.Contains(t, nodes, "c")
}

func TestBuildSubDAG_SkipsUnknownIDs(t *testing.T) {
	fetcher := &fakeFetcher{nodes: map[string]*models.Message{}}
	nodes, err := BuildSubDAG(context.Background(), fetcher, "conv1", []string{"ghost"})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestBuildSubDAG_TerminatesOnCycle(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{nodes: map[string]*models.Message{
		"a": node("a", base, "b"),
		"b": node("b", base, "a"),
	}}

	nodes, err := BuildSubDAG(context.Background(), fetcher, "conv1", []string{"a"})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestTopologicalSort_DependencyOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nodes := map[string]*models.Message{
		"a": node("a", base),
		"b": node("b", base.Add(time.Second), "a"),
		"c": node("c", base.Add(2*time.Second), "b"),
	}

	sorted, err := TopologicalSort(nodes)
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(sorted))
}

func TestTopologicalSort_SingleRootFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// "root" has no parents; every other node depends on it transitively.
	nodes := map[string]*models.Message{
		"root": node("root", base),
		"x":    node("x", base.Add(time.Second), "root"),
		"y":    node("y", base.Add(2*time.Second), "root"),
	}

	sorted, err := TopologicalSort(nodes)
	require.NoError(t, err)
	assert.Equal(t, "root", sorted[0].ID)
}

func TestTopologicalSort_ChainNotCleaved(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// A branch point at "root" with one long uninterrupted chain hanging
	// off "x1" — the chain must come out contiguous once x1 is reached,
	// never interleaved with the sibling branch under "other".
	nodes := map[string]*models.Message{
		"root":  node("root", base),
		"other": node("other", base.Add(time.Second), "root"),
		"x1":    node("x1", base.Add(2*time.Second), "root"),
		"x2":    node("x2", base.Add(3*time.Second), "x1"),
		"x3":    node("x3", base.Add(4*time.Second), "x2"),
	}

	sorted, err := TopologicalSort(nodes)
	require.NoError(t, err)

	order := ids(sorted)
	posX1 := indexOf(order, "x1")
	posX2 := indexOf(order, "x2")
	posX3 := indexOf(order, "x3")
	assert.Equal(t, posX1+1, posX2, "x2 must immediately follow x1")
	assert.Equal(t, posX2+1, posX3, "x3 must immediately follow x2")
}

func TestTopologicalSort_DeterministicTieBreak(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Two roots with identical timestamps: tie-break falls to ID order.
	nodes := map[string]*models.Message{
		"b-root": node("b-root", base),
		"a-root": node("a-root", base),
	}

	first, err := TopologicalSort(nodes)
	require.NoError(t, err)
	second, err := TopologicalSort(nodes)
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, "a-root", first[0].ID)
}

func TestTopologicalSort_CycleRejected(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nodes := map[string]*models.Message{
		"a": node("a", base, "b"),
		"b": node("b", base, "a"),
	}

	_, err := TopologicalSort(nodes)
	assert.Error(t, err)
}

func TestTopologicalSort_Merge(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// A merge node with two parents has indegree 2 and is never treated
	// as a chain continuation of either parent alone.
	nodes := map[string]*models.Message{
		"left":  node("left", base),
		"right": node("right", base.Add(time.Millisecond)),
		"merge": node("merge", base.Add(2*time.Millisecond), "left", "right"),
	}

	sorted, err := TopologicalSort(nodes)
	require.NoError(t, err)
	assert.Equal(t, "merge", sorted[len(sorted)-1].ID)
}

func TestBuildHistory_EmptyParentsIsNotAnError(t *testing.T) {
	fetcher := &fakeFetcher{nodes: map[string]*models.Message{}}
	nodes, err := BuildHistory(context.Background(), fetcher, "conv1", nil)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestRegenerateChildren_RepairsDrift(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nodes := []models.Message{
		{ID: "a", CreatedAt: base, Children: []string{"stale-ghost"}},
		{ID: "b", CreatedAt: base.Add(time.Second), ParentIDs: []string{"a"}, Children: nil},
	}

	fixed := RegenerateChildren(nodes)
	require.Len(t, fixed, 2)
	assert.Equal(t, []string{"b"}, fixed[0].Children, "stale child id dropped, real child added")
	assert.Empty(t, fixed[1].Children)
}

func TestRegenerateChildren_LeavesCorrectSetUntouched(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nodes := []models.Message{
		{ID: "a", CreatedAt: base, Children: []string{"b"}},
		{ID: "b", CreatedAt: base.Add(time.Second), ParentIDs: []string{"a"}},
	}

	fixed := RegenerateChildren(nodes)
	assert.Equal(t, []string{"b"}, fixed[0].Children)
}

func ids(nodes []*models.Message) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
