package optimizer

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/loomdb/loomdb/pkg/planner/plan"
)

func bigint(name string) plan.Symbol {
	return plan.Symbol{Name: name, Type: plan.TypeBigint}
}

func values(symbols ...plan.Symbol) *plan.ValuesNode {
	return &plan.ValuesNode{Outputs: symbols}
}

func testContext(t *testing.T, root plan.Node) *Context {
	t.Helper()
	return NewContext(plan.NewSymbolAllocatorFor(root), NewBuiltinResolver(), zaptest.NewLogger(t))
}

func equals(left, right plan.Symbol) *plan.Comparison {
	return &plan.Comparison{Operator: plan.OpEqual, Left: left.Ref(), Right: right.Ref()}
}

// collectNodes flattens the tree in pre-order.
func collectNodes(root plan.Node) []plan.Node {
	out := []plan.Node{root}
	for _, child := range root.Children() {
		out = append(out, collectNodes(child)...)
	}
	return out
}

func symbolNames(symbols []plan.Symbol) []string {
	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = s.Name
	}
	return names
}
