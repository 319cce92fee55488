package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
)

func node(id string) *models.Node {
	return &models.Node{ID: id, Type: "noop", Category: models.CategoryTypeAction, Enabled: true}
}

func connection(from, to string) *models.Connection {
	return &models.Connection{ID: from + "-" + to, SourceNode: from, TargetNode: to}
}

func TestSortLinearChain(t *testing.T) {
	nodes := []*models.Node{node("c"), node("a"), node("b")}
	connections := []*models.Connection{
		connection("a", "b"),
		connection("b", "c"),
	}

	sorted, err := Sort(nodes, connections)
	require.NoError(t, err)
	require.Len(t, sorted, 3)

	assert.Equal(t, "a", sorted[0].ID)
	assert.Equal(t, "b", sorted[1].ID)
	assert.Equal(t, "c", sorted[2].ID)
}

func TestSortIncludesIsolatedNodesOnce(t *testing.T) {
	nodes := []*models.Node{node("a"), node("isolated"), node("b")}
	connections := []*models.Connection{connection("a", "b")}

	sorted, err := Sort(nodes, connections)
	require.NoError(t, err)
	require.Len(t, sorted, 3)

	seen := map[string]int{}
	for _, n := range sorted {
		seen[n.ID]++
	}

	for id, count := range seen {
		assert.Equal(t, 1, count, "node %s appears %d times", id, count)
	}
}

func TestSortRespectsPredecessors(t *testing.T) {
	// Diamond: a -> b, a -> c, b -> d, c -> d.
	nodes := []*models.Node{node("a"), node("b"), node("c"), node("d")}
	connections := []*models.Connection{
		connection("a", "b"),
		connection("a", "c"),
		connection("b", "d"),
		connection("c", "d"),
	}

	sorted, err := Sort(nodes, connections)
	require.NoError(t, err)

	position := map[string]int{}
	for i, n := range sorted {
		position[n.ID] = i
	}

	assert.Less(t, position["a"], position["b"])
	assert.Less(t, position["a"], position["c"])
	assert.Less(t, position["b"], position["d"])
	assert.Less(t, position["c"], position["d"])
}

func TestSortIsDeterministic(t *testing.T) {
	nodes := []*models.Node{node("x"), node("y"), node("z")}

	first, err := Sort(nodes, nil)
	require.NoError(t, err)

	second, err := Sort(nodes, nil)
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestSortReturnsCycleError(t *testing.T) {
	nodes := []*models.Node{node("a"), node("b"), node("c")}
	connections := []*models.Connection{
		connection("a", "b"),
		connection("b", "c"),
		connection("c", "a"),
	}

	_, err := Sort(nodes, connections)
	require.Error(t, err)

	var cycleErr *CycleError

	require.True(t, errors.As(err, &cycleErr))
	assert.NotEmpty(t, cycleErr.Path)
}

func TestSortRejectsDuplicateNodeIDs(t *testing.T) {
	_, err := Sort([]*models.Node{node("a"), node("a")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestSortRejectsUnknownEndpoints(t *testing.T) {
	_, err := Sort([]*models.Node{node("a")}, []*models.Connection{connection("a", "ghost")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestDetectCycleOnAcyclicGraph(t *testing.T) {
	nodes := []*models.Node{node("a"), node("b")}
	connections := []*models.Connection{connection("a", "b")}

	hasCycle, path, err := DetectCycle(nodes, connections)
	require.NoError(t, err)
	assert.False(t, hasCycle)
	assert.Nil(t, path)
}

func TestDetectCycleReturnsClosedWalk(t *testing.T) {
	nodes := []*models.Node{node("a"), node("b"), node("c"), node("isolated")}
	connections := []*models.Connection{
		connection("a", "b"),
		connection("b", "c"),
		connection("c", "b"),
	}

	hasCycle, path, err := DetectCycle(nodes, connections)
	require.NoError(t, err)
	require.True(t, hasCycle)
	require.GreaterOrEqual(t, len(path), 3)

	assert.Equal(t, path[0], path[len(path)-1], "cycle path must be a closed walk")

	// Every edge in the path must exist in the input.
	edges := map[string]bool{}
	for _, conn := range connections {
		edges[conn.SourceNode+"->"+conn.TargetNode] = true
	}

	for i := 0; i < len(path)-1; i++ {
		assert.True(t, edges[path[i]+"->"+path[i+1]], "edge %s -> %s not in input", path[i], path[i+1])
	}
}

func TestDetectCycleSelfLoop(t *testing.T) {
	nodes := []*models.Node{node("a")}
	connections := []*models.Connection{connection("a", "a")}

	hasCycle, path, err := DetectCycle(nodes, connections)
	require.NoError(t, err)
	require.True(t, hasCycle)
	assert.Equal(t, []string{"a", "a"}, path)
}

func TestIsolatedNodesNeverReportedAsCycles(t *testing.T) {
	nodes := []*models.Node{node("lonely"), node("hermit")}

	hasCycle, _, err := DetectCycle(nodes, nil)
	require.NoError(t, err)
	assert.False(t, hasCycle)
}
