package optimizer

import (
	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// decorrelateFilters rewrites a correlated subquery source into an
// uncorrelated node plus the correlated conjuncts that were pulled out of
// it. The pulled conjuncts become the enclosing join's condition.
//
// Filters split into correlated and uncorrelated conjuncts; a filter whose
// conjuncts were all pulled disappears entirely rather than degrading to
// Filter(true). A grouped aggregation (a DISTINCT) lets correlated
// predicates pass over it only when every one of them is an equality
// between a correlation symbol and an inner symbol: the inner symbols join
// the grouping keys, which preserves the aggregation's semantics under the
// later join. Any other correlated construct fails decorrelation.
func decorrelateFilters(node plan.Node, correlation []plan.Symbol) (plan.Node, []plan.Expression, bool) {
	switch n := node.(type) {
	case *plan.FilterNode:
		child, pulled, ok := decorrelateFilters(n.Source, correlation)
		if !ok {
			return nil, nil, false
		}
		var correlated, uncorrelated []plan.Expression
		for _, conjunct := range plan.ExtractConjuncts(n.Predicate) {
			if referencesAny(conjunct, correlation) {
				correlated = append(correlated, conjunct)
			} else {
				uncorrelated = append(uncorrelated, conjunct)
			}
		}
		pulled = append(pulled, correlated...)
		if len(uncorrelated) == 0 {
			return child, pulled, true
		}
		filter, err := plan.NewFilter(child, plan.CombineConjuncts(uncorrelated...))
		if err != nil {
			return nil, nil, false
		}
		return filter, pulled, true

	case *plan.AggregationNode:
		child, pulled, ok := decorrelateFilters(n.Source, correlation)
		if !ok {
			return nil, nil, false
		}
		if len(pulled) == 0 {
			rebuilt, err := plan.ReplaceChildren(n, []plan.Node{child})
			if err != nil {
				return nil, nil, false
			}
			return rebuilt, nil, true
		}
		if n.Grouping.IsGlobal() {
			return nil, nil, false
		}
		inner, ok := equalityInnerSymbols(pulled, correlation)
		if !ok {
			return nil, nil, false
		}
		keys := appendUnique(n.Grouping.Keys, inner...)
		regrouped, err := plan.NewAggregation(child, n.Aggregations, plan.SingleGroupingSet(keys...), n.Step)
		if err != nil {
			return nil, nil, false
		}
		return regrouped, pulled, true

	case *plan.ProjectNode:
		child, pulled, ok := decorrelateFilters(n.Source, correlation)
		if !ok {
			return nil, nil, false
		}
		if len(pulled) == 0 {
			rebuilt, err := plan.ReplaceChildren(n, []plan.Node{child})
			if err != nil {
				return nil, nil, false
			}
			return rebuilt, nil, true
		}
		// Pulled predicates must stay evaluable above the projection.
		assignments := append(plan.Assignments{}, n.Assignments...)
		for _, pred := range pulled {
			for _, sym := range plan.ExpressionSymbols(pred) {
				if containsSymbol(correlation, sym) || containsSymbol(assignments.Outputs(), sym) {
					continue
				}
				if !containsSymbol(child.OutputSymbols(), sym) {
					return nil, nil, false
				}
				assignments = append(assignments, plan.Assignment{Output: sym, Value: sym.Ref()})
			}
		}
		project, err := plan.NewProject(child, assignments)
		if err != nil {
			return nil, nil, false
		}
		return project, pulled, true

	default:
		// Leaf or unsupported operator: fine as long as nothing below
		// references the outer query.
		if subtreeReferencesAny(node, correlation) {
			return nil, nil, false
		}
		return node, nil, true
	}
}

// equalityInnerSymbols checks that every predicate is an equality between
// one correlation symbol and one inner symbol, returning the inner
// symbols. This is the precise precondition for letting predicates pass
// over a grouped aggregation.
func equalityInnerSymbols(predicates []plan.Expression, correlation []plan.Symbol) ([]plan.Symbol, bool) {
	var inner []plan.Symbol
	for _, pred := range predicates {
		comparison, ok := pred.(*plan.Comparison)
		if !ok || comparison.Operator != plan.OpEqual {
			return nil, false
		}
		left, lok := comparison.Left.(*plan.SymbolReference)
		right, rok := comparison.Right.(*plan.SymbolReference)
		if !lok || !rok {
			return nil, false
		}
		switch {
		case containsSymbol(correlation, left.Symbol) && !containsSymbol(correlation, right.Symbol):
			inner = append(inner, right.Symbol)
		case containsSymbol(correlation, right.Symbol) && !containsSymbol(correlation, left.Symbol):
			inner = append(inner, left.Symbol)
		default:
			return nil, false
		}
	}
	return inner, true
}

// referencesAny reports whether expr references any of the given symbols.
func referencesAny(expr plan.Expression, symbols []plan.Symbol) bool {
	for _, s := range plan.ExpressionSymbols(expr) {
		if containsSymbol(symbols, s) {
			return true
		}
	}
	return false
}

// subtreeReferencesAny reports whether any expression anywhere in the
// subtree references one of the given symbols.
func subtreeReferencesAny(node plan.Node, symbols []plan.Symbol) bool {
	for _, expr := range nodeExpressions(node) {
		if referencesAny(expr, symbols) {
			return true
		}
	}
	for _, child := range node.Children() {
		if subtreeReferencesAny(child, symbols) {
			return true
		}
	}
	return false
}

// nodeExpressions returns the scalar expressions attached directly to a
// node.
func nodeExpressions(node plan.Node) []plan.Expression {
	switch n := node.(type) {
	case *plan.ValuesNode:
		var out []plan.Expression
		for _, row := range n.Rows {
			out = append(out, row...)
		}
		return out
	case *plan.FilterNode:
		return []plan.Expression{n.Predicate}
	case *plan.ProjectNode:
		out := make([]plan.Expression, len(n.Assignments))
		for i, a := range n.Assignments {
			out[i] = a.Value
		}
		return out
	case *plan.JoinNode:
		if n.Filter != nil {
			return []plan.Expression{n.Filter}
		}
		return nil
	case *plan.CorrelatedJoinNode:
		if n.Filter != nil {
			return []plan.Expression{n.Filter}
		}
		return nil
	case *plan.ApplyNode:
		return nil
	case *plan.AggregationNode:
		var out []plan.Expression
		for _, a := range n.Aggregations {
			out = append(out, a.Aggregation.Arguments...)
			if a.Aggregation.Filter != nil {
				out = append(out, a.Aggregation.Filter)
			}
			if a.Aggregation.Mask != nil {
				out = append(out, a.Aggregation.Mask.Ref())
			}
		}
		return out
	case *plan.AssignUniqueIDNode:
		return nil
	default:
		return nil
	}
}

func containsSymbol(symbols []plan.Symbol, s plan.Symbol) bool {
	for _, candidate := range symbols {
		if candidate.Name == s.Name {
			return true
		}
	}
	return false
}

func appendUnique(symbols []plan.Symbol, more ...plan.Symbol) []plan.Symbol {
	out := append([]plan.Symbol{}, symbols...)
	for _, s := range more {
		if !containsSymbol(out, s) {
			out = append(out, s)
		}
	}
	return out
}
