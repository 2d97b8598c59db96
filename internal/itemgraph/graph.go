// Package itemgraph validates the dependency graph formed by items' count.by
// references.
package itemgraph

import (
	"container/list"
	"fmt"
	"strings"
)

// Graph is a directed graph over item names: an edge parent -> child exists
// when child's count.by == parent.
type Graph struct {
	Nodes    map[string]bool
	Children map[string][]string
	Parents  map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		Nodes:    make(map[string]bool),
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
	}
}

// AddNode registers an item name, even if it has no edges.
func (g *Graph) AddNode(name string) {
	g.Nodes[name] = true
}

// AddEdge records that child is generated per-row of parent.
func (g *Graph) AddEdge(parent, child string) {
	g.AddNode(parent)
	g.AddNode(child)
	g.Children[parent] = append(g.Children[parent], child)
	g.Parents[child] = append(g.Parents[child], parent)
}

// CycleError reports which item names form (or are blocked by) a cycle in
// the count.by graph.
type CycleError struct {
	Participants []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in item dependency graph, involving: %s",
		strings.Join(e.Participants, ", "))
}

// Validate runs Kahn's algorithm over the graph and fails if any node is
// left unprocessed, meaning it (or one of its dependents) sits on a cycle.
// spec.md's ordering guarantee means execution itself never needs the
// resulting topological order -- items are generated in declaration order
// with count.by items produced lazily from their parent's batch -- so this
// only needs to prove acyclicity, not compute a schedule.
func (g *Graph) Validate() error {
	inDegree := make(map[string]int, len(g.Nodes))
	for name := range g.Nodes {
		inDegree[name] = 0
	}
	for _, children := range g.Children {
		for _, child := range children {
			inDegree[child]++
		}
	}

	queue := list.New()
	for name, degree := range inDegree {
		if degree == 0 {
			queue.PushBack(name)
		}
	}

	processed := make(map[string]bool, len(g.Nodes))
	for queue.Len() > 0 {
		front := queue.Front()
		queue.Remove(front)
		node := front.Value.(string)
		processed[node] = true

		for _, child := range g.Children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.PushBack(child)
			}
		}
	}

	if len(processed) == len(g.Nodes) {
		return nil
	}

	var participants []string
	for name := range g.Nodes {
		if !processed[name] {
			participants = append(participants, name)
		}
	}
	return &CycleError{Participants: participants}
}
