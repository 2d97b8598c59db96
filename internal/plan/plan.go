// Package plan builds and renders a preview of a blueprint's generation
// graph -- item names, tables, and row-count estimates -- for the `plan`
// CLI command, without writing anything to a backend. Grounded on the
// teacher's internal/archiver/estimator.go for the row-count estimation
// idea (root count, then per-table counts, surfaced before any write
// happens) and rendered as an ASCII tree rather than the teacher's flat
// copy-order listing, since populous's items form a parent/fan-out tree
// instead of a linear copy order.
package plan

import (
	"fmt"

	"github.com/dbsmedya/populous/internal/blueprint"
	"github.com/dbsmedya/populous/internal/item"
)

// Node is one item's entry in the rendered plan tree.
type Node struct {
	Name          string
	Table         string
	EstimatedRows int64
	Children      []*Node
}

// Build estimates row counts for every item in bp and arranges them into a
// forest: one root per item with no count.by parent, with count.by children
// nested beneath. Count expressions are evaluated against the blueprint's
// current vars, same as a real run would see them at the top level -- for a
// count.by item this is necessarily an approximation, since the real
// per-row count can reference the bound parent row ("this") once generation
// is underway; Build evaluates it once against the blueprint env and scales
// by the parent's estimated row count.
func Build(bp *blueprint.Blueprint) ([]*Node, error) {
	items := bp.Items()

	byName := make(map[string]*item.Item, len(items))
	for _, it := range items {
		byName[it.Name] = it
	}

	estimates := make(map[string]int64, len(items))
	resolving := make(map[string]bool, len(items))

	var resolve func(name string) (int64, error)
	resolve = func(name string) (int64, error) {
		if n, ok := estimates[name]; ok {
			return n, nil
		}
		if resolving[name] {
			return 0, fmt.Errorf("cycle detected while estimating %q", name)
		}
		resolving[name] = true
		defer delete(resolving, name)

		it, ok := byName[name]
		if !ok {
			return 0, fmt.Errorf("unknown item %q", name)
		}

		perRow, err := it.Count.Call(bp.Env(), name, "count")
		if err != nil {
			return 0, fmt.Errorf("estimating %q: %w", name, err)
		}

		total := int64(perRow)
		if it.Count.By != "" {
			parentTotal, err := resolve(it.Count.By)
			if err != nil {
				return 0, err
			}
			total = parentTotal * int64(perRow)
		}

		estimates[name] = total
		return total, nil
	}

	nodes := make(map[string]*Node, len(items))
	var roots []*Node

	for _, it := range items {
		total, err := resolve(it.Name)
		if err != nil {
			return nil, err
		}
		node := &Node{Name: it.Name, Table: it.Table, EstimatedRows: total}
		nodes[it.Name] = node
		if it.Count.By == "" {
			roots = append(roots, node)
		}
	}

	for _, it := range items {
		if it.Count.By == "" {
			continue
		}
		if parent, ok := nodes[it.Count.By]; ok {
			parent.Children = append(parent.Children, nodes[it.Name])
		}
	}

	return roots, nil
}

// TotalRows sums EstimatedRows across an entire forest, including nested
// children.
func TotalRows(roots []*Node) int64 {
	var total int64
	var walk func(*Node)
	walk = func(n *Node) {
		total += n.EstimatedRows
		for _, child := range n.Children {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return total
}
