package plan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// Render draws roots as an ASCII tree, one line per item, with the table
// name and row-count estimate right-aligned into a column wide enough for
// the longest name in the forest. Row counts are colored so a plan with a
// huge fan-out estimate stands out in a terminal.
func Render(roots []*Node) string {
	var b strings.Builder

	width := maxNameWidth(roots, 0)
	for i, root := range roots {
		last := i == len(roots)-1
		renderNode(&b, root, "", last, width)
	}

	fmt.Fprintf(&b, "\ntotal estimated rows: %s\n", color.FgGreen.Render(strconv.FormatInt(TotalRows(roots), 10)))
	return b.String()
}

func maxNameWidth(nodes []*Node, depth int) int {
	max := 0
	for _, n := range nodes {
		w := runewidth.StringWidth(n.Name) + depth*2
		if w > max {
			max = w
		}
		if childMax := maxNameWidth(n.Children, depth+1); childMax > max {
			max = childMax
		}
	}
	return max
}

func renderNode(b *strings.Builder, n *Node, prefix string, last bool, nameWidth int) {
	branch := "├── "
	childPrefix := prefix + "│   "
	if last {
		branch = "└── "
		childPrefix = prefix + "    "
	}

	label := prefix + branch + n.Name
	pad := nameWidth + len(prefix) + 4 - runewidth.StringWidth(label)
	if pad < 1 {
		pad = 1
	}

	count := colorForCount(n.EstimatedRows).Render(formatCount(n.EstimatedRows))
	fmt.Fprintf(b, "%s%s(%s) ~%s rows\n", label, strings.Repeat(" ", pad), n.Table, count)

	for i, child := range n.Children {
		renderNode(b, child, childPrefix, i == len(n.Children)-1, nameWidth)
	}
}

// colorForCount highlights larger estimates more strongly, so a blueprint
// that fans out into millions of rows is visually obvious in a plan.
func colorForCount(n int64) color.Color {
	switch {
	case n >= 1_000_000:
		return color.FgRed
	case n >= 10_000:
		return color.FgYellow
	default:
		return color.FgGreen
	}
}

func formatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
