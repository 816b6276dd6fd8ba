package plan

import (
	"fmt"
	"strings"
)

// Format renders a plan tree as an indented multi-line string, one node
// per line. Used by the explain endpoint and tests.
func Format(root Node) string {
	var b strings.Builder
	formatNode(&b, root, 0)
	return b.String()
}

func formatNode(b *strings.Builder, node Node, depth int) {
	fmt.Fprintf(b, "%s- %s", strings.Repeat("  ", depth), node)
	fmt.Fprintf(b, " => %s\n", symbolNames(node.OutputSymbols()))
	for _, child := range node.Children() {
		formatNode(b, child, depth+1)
	}
}
