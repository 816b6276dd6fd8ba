package optimizer

import (
	"fmt"

	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// RewriteQuantifiedComparison rewrites value <op> ALL|ANY|SOME (subquery),
// represented as an ApplyNode with a single quantified-comparison
// assignment, into a comparison against summary statistics of the
// subquery: min, max, count of all rows and count of non-null values. The
// subquery is aggregated once globally, joined in with a trivially-true
// condition, and the quantified result becomes a scalar case expression
// with SQL three-valued-logic semantics:
//
//	a = ALL b   <=>  min(b) = max(b) AND a = max(b)
//	a < ALL b   <=>  a < min(b),  a > ALL b  <=>  a > max(b)
//	a < ANY b   <=>  a < max(b),  a > ANY b  <=>  a > min(b)
//
// The empty subquery yields the quantifier identity (true for ALL, false
// for ANY/SOME); a subquery containing nulls degrades the bound comparison
// to unknown unless the identity dominates.
type RewriteQuantifiedComparison struct{}

// NewRewriteQuantifiedComparison creates the rule.
func NewRewriteQuantifiedComparison() *RewriteQuantifiedComparison {
	return &RewriteQuantifiedComparison{}
}

func (r *RewriteQuantifiedComparison) Name() string {
	return "rewrite_quantified_comparison"
}

func (r *RewriteQuantifiedComparison) Apply(node plan.Node, ctx *Context) (plan.Node, bool, error) {
	apply, ok := node.(*plan.ApplyNode)
	if !ok || len(apply.Assignments) != 1 {
		return nil, false, nil
	}
	comparison, ok := apply.Assignments[0].Set.(*plan.QuantifiedComparison)
	if !ok {
		return nil, false, nil
	}

	outputs := apply.Subquery.OutputSymbols()
	if len(outputs) != 1 {
		return nil, false, &plan.MalformedPlanError{
			Node:   "Apply",
			Detail: fmt.Sprintf("quantified comparison subquery must produce one column, got %d", len(outputs)),
		}
	}
	column := outputs[0]
	if !column.Type.Orderable() {
		return nil, false, &plan.MalformedPlanError{
			Node:   "Apply",
			Detail: fmt.Sprintf("quantified comparison subquery column %q has unorderable type %s", column.Name, column.Type),
		}
	}

	minSym := ctx.Symbols.New("min", column.Type)
	maxSym := ctx.Symbols.New("max", column.Type)
	countAllSym := ctx.Symbols.New("count_all", plan.TypeBigint)
	countNonNullSym := ctx.Symbols.New("count_non_null", plan.TypeBigint)

	minFn, err := ctx.Metadata.ResolveFunction("min", []plan.Type{column.Type})
	if err != nil {
		return nil, false, err
	}
	maxFn, err := ctx.Metadata.ResolveFunction("max", []plan.Type{column.Type})
	if err != nil {
		return nil, false, err
	}
	countAllFn, err := ctx.Metadata.ResolveFunction("count", nil)
	if err != nil {
		return nil, false, err
	}
	countNonNullFn, err := ctx.Metadata.ResolveFunction("count", []plan.Type{column.Type})
	if err != nil {
		return nil, false, err
	}

	statistics, err := plan.NewAggregation(apply.Subquery, []plan.AggregationAssignment{
		{Output: minSym, Aggregation: plan.Aggregation{Function: minFn, Arguments: []plan.Expression{column.Ref()}}},
		{Output: maxSym, Aggregation: plan.Aggregation{Function: maxFn, Arguments: []plan.Expression{column.Ref()}}},
		{Output: countAllSym, Aggregation: plan.Aggregation{Function: countAllFn}},
		{Output: countNonNullSym, Aggregation: plan.Aggregation{Function: countNonNullFn, Arguments: []plan.Expression{column.Ref()}}},
	}, plan.GlobalGrouping(), plan.StepSingle)
	if err != nil {
		return nil, false, err
	}

	// The aggregate is a single scalar row, so the join condition is
	// unconditionally true; correlation inside the subquery carries over.
	join, err := plan.NewCorrelatedJoin(apply.Input, statistics, apply.Correlation, plan.JoinInner, plan.True())
	if err != nil {
		return nil, false, err
	}

	result, err := r.rewriteUsingBounds(comparison, minSym, maxSym, countAllSym, countNonNullSym)
	if err != nil {
		return nil, false, err
	}

	// Forward only the input's outputs plus the rewritten comparison; the
	// summary symbols stay internal to this projection.
	assignments := plan.Identities(apply.Input.OutputSymbols()...)
	assignments = append(assignments, plan.Assignment{Output: apply.Assignments[0].Output, Value: result})
	project, err := plan.NewProject(join, assignments)
	if err != nil {
		return nil, false, err
	}
	return project, true, nil
}

// rewriteUsingBounds builds the scalar replacement for the quantified
// comparison over the four summary symbols.
func (r *RewriteQuantifiedComparison) rewriteUsingBounds(comparison *plan.QuantifiedComparison, minSym, maxSym, countAll, countNonNull plan.Symbol) (plan.Expression, error) {
	var emptySetResult plan.Expression
	var combine func(...plan.Expression) plan.Expression
	if comparison.Quantifier == plan.QuantifierAll {
		emptySetResult = plan.True()
		combine = plan.CombineConjuncts
	} else {
		emptySetResult = plan.False()
		combine = plan.CombineDisjuncts
	}

	bound, err := r.boundComparison(comparison, minSym, maxSym)
	if err != nil {
		return nil, err
	}

	// If the subquery contains a null the bound comparison cannot prove
	// the quantified result; the guard degrades it to unknown unless the
	// identity value short-circuits through the combining operator.
	nullGuard := &plan.SearchedCase{
		Whens: []plan.WhenClause{{
			Condition: &plan.Comparison{Operator: plan.OpNotEqual, Left: countAll.Ref(), Right: countNonNull.Ref()},
			Result:    plan.NullBoolean(),
		}},
		Default: emptySetResult,
	}

	return &plan.SimpleCase{
		Operand: countAll.Ref(),
		Whens: []plan.WhenClause{{
			Condition: &plan.Literal{Type: plan.TypeBigint, Value: int64(0)},
			Result:    emptySetResult,
		}},
		Default: combine(bound, nullGuard),
	}, nil
}

func (r *RewriteQuantifiedComparison) boundComparison(comparison *plan.QuantifiedComparison, minSym, maxSym plan.Symbol) (plan.Expression, error) {
	if comparison.Operator == plan.OpEqual && comparison.Quantifier == plan.QuantifierAll {
		// A = ALL B <=> min B = max B AND A = max B
		return plan.CombineConjuncts(
			&plan.Comparison{Operator: plan.OpEqual, Left: minSym.Ref(), Right: maxSym.Ref()},
			&plan.Comparison{Operator: plan.OpEqual, Left: comparison.Value.Ref(), Right: maxSym.Ref()},
		), nil
	}

	switch comparison.Operator {
	case plan.OpLessThan, plan.OpLessOrEqual, plan.OpGreaterThan, plan.OpGreaterOrEqual:
		bound := maxSym
		if compareValueWithLowerBound(comparison) {
			bound = minSym
		}
		return &plan.Comparison{Operator: comparison.Operator, Left: comparison.Value.Ref(), Right: bound.Ref()}, nil
	}

	// NOT_EQUAL and EQUAL-with-ANY have no sound bound reduction.
	return nil, &UnsupportedConstructError{
		Rule:      r.Name(),
		Construct: fmt.Sprintf("%s %s (subquery)", comparison.Operator, comparison.Quantifier),
	}
}

// compareValueWithLowerBound reports whether the ordered comparison
// reduces to a comparison against the subquery minimum (as opposed to the
// maximum). "Less than every element" means less than the smallest;
// "less than some element" means less than the largest.
func compareValueWithLowerBound(comparison *plan.QuantifiedComparison) bool {
	less := comparison.Operator == plan.OpLessThan || comparison.Operator == plan.OpLessOrEqual
	if comparison.Quantifier == plan.QuantifierAll {
		return less
	}
	return !less
}
