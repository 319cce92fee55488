// Package graph provides topological ordering and cycle detection for
// workflow node graphs.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

// CycleError indicates the connection set contains at least one cycle.
// Path, when present, is a closed walk of node ids (first equals last).
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "workflow graph contains a cycle"
	}

	return fmt.Sprintf("workflow graph contains a cycle: %s", strings.Join(e.Path, " -> "))
}

// adjacency holds the directed edges of a graph keyed by node id. Insertion
// order of nodes is preserved so that ordering among mutually-unordered nodes
// is deterministic across calls with identical input.
type adjacency struct {
	order    []string
	children map[string][]string
	indegree map[string]int
}

func buildAdjacency(nodes []*models.Node, connections []*models.Connection) (*adjacency, error) {
	adj := &adjacency{
		order:    make([]string, 0, len(nodes)),
		children: make(map[string][]string, len(nodes)),
		indegree: make(map[string]int, len(nodes)),
	}

	for _, node := range nodes {
		if _, exists := adj.indegree[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id: %s", node.ID)
		}

		adj.order = append(adj.order, node.ID)
		adj.indegree[node.ID] = 0
	}

	for _, conn := range connections {
		if _, ok := adj.indegree[conn.SourceNode]; !ok {
			return nil, fmt.Errorf("connection references unknown node: %s", conn.SourceNode)
		}

		if _, ok := adj.indegree[conn.TargetNode]; !ok {
			return nil, fmt.Errorf("connection references unknown node: %s", conn.TargetNode)
		}

		adj.children[conn.SourceNode] = append(adj.children[conn.SourceNode], conn.TargetNode)
		adj.indegree[conn.TargetNode]++
	}

	return adj, nil
}

// Sort returns the nodes in a topological order of the connection set.
// Isolated nodes are included exactly once; ties are broken by node insertion
// order, so identical input always yields an identical order. A *CycleError
// is returned when the graph is cyclic.
func Sort(nodes []*models.Node, connections []*models.Connection) ([]*models.Node, error) {
	adj, err := buildAdjacency(nodes, connections)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	indegree := make(map[string]int, len(adj.indegree))
	for id, deg := range adj.indegree {
		indegree[id] = deg
	}

	visited := make(map[string]bool, len(nodes))
	sorted := make([]*models.Node, 0, len(nodes))

	for len(sorted) < len(nodes) {
		progressed := false

		// Pick the earliest-inserted ready node to keep the order stable.
		for _, id := range adj.order {
			if visited[id] || indegree[id] != 0 {
				continue
			}

			visited[id] = true
			sorted = append(sorted, byID[id])

			for _, child := range adj.children[id] {
				indegree[child]--
			}

			progressed = true

			break
		}

		if !progressed {
			return nil, &CycleError{Path: findCycle(adj)}
		}
	}

	return sorted, nil
}

// DetectCycle reports whether the connection set is cyclic and, if so, one
// concrete closed walk for user-facing diagnostics. It attempts a topological
// sort first; on failure a depth-first search with a recursion stack recovers
// a single offending cycle. Isolated nodes are never reported as cycles.
func DetectCycle(nodes []*models.Node, connections []*models.Connection) (bool, []string, error) {
	if _, err := Sort(nodes, connections); err != nil {
		var cycleErr *CycleError
		if errors.As(err, &cycleErr) {
			return true, cycleErr.Path, nil
		}

		return false, nil, err
	}

	return false, nil, nil
}

// findCycle runs a DFS over the graph tracking the recursion stack and
// returns one closed walk. It terminates on graphs with disconnected
// components; the sort already established that a cycle exists.
func findCycle(adj *adjacency) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on recursion stack
		black = 2 // fully explored
	)

	color := make(map[string]int, len(adj.order))
	parent := make(map[string]string, len(adj.order))

	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray

		for _, child := range adj.children[id] {
			switch color[child] {
			case white:
				parent[child] = id
				if visit(child) {
					return true
				}
			case gray:
				// Back edge: walk parents from id back to child.
				cycle = []string{child}
				for at := id; at != child; at = parent[at] {
					cycle = append(cycle, at)
				}

				cycle = append(cycle, child)
				reverse(cycle)

				return true
			}
		}

		color[id] = black

		return false
	}

	for _, id := range adj.order {
		if color[id] == white && visit(id) {
			return cycle
		}
	}

	return nil
}

func reverse(ids []string) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
