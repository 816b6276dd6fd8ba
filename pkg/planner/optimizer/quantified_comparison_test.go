package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomdb/loomdb/pkg/planner/plan"
)

func quantifiedApply(t *testing.T, operator plan.ComparisonOperator, quantifier plan.Quantifier) (*plan.ApplyNode, plan.Symbol) {
	t.Helper()
	a := bigint("a")
	b := bigint("b")
	result := plan.Symbol{Name: "result", Type: plan.TypeBoolean}
	apply, err := plan.NewApply(values(a), values(b), nil, []plan.SubqueryAssignment{{
		Output: result,
		Set:    &plan.QuantifiedComparison{Operator: operator, Quantifier: quantifier, Value: a},
	}})
	require.NoError(t, err)
	return apply, result
}

func TestRewriteQuantifiedComparisonLessAll(t *testing.T) {
	apply, result := quantifiedApply(t, plan.OpLessThan, plan.QuantifierAll)
	rule := NewRewriteQuantifiedComparison()

	rewritten, applied, err := rule.Apply(apply, testContext(t, apply))
	require.NoError(t, err)
	require.True(t, applied)

	project, ok := rewritten.(*plan.ProjectNode)
	require.True(t, ok)
	assert.Equal(t, apply.OutputSymbols(), project.OutputSymbols())

	join, ok := project.Source.(*plan.CorrelatedJoinNode)
	require.True(t, ok)
	assert.Equal(t, plan.JoinInner, join.Kind)
	assert.True(t, plan.IsTrueLiteral(join.Filter))

	statistics, ok := join.Subquery.(*plan.AggregationNode)
	require.True(t, ok)
	assert.True(t, statistics.Grouping.IsGlobal())
	assert.Equal(t, plan.StepSingle, statistics.Step)
	require.Len(t, statistics.Aggregations, 4)
	assert.Equal(t, "min", statistics.Aggregations[0].Aggregation.Function.Name)
	assert.Equal(t, "max", statistics.Aggregations[1].Aggregation.Function.Name)
	assert.Equal(t, "count", statistics.Aggregations[2].Aggregation.Function.Name)
	assert.Empty(t, statistics.Aggregations[2].Aggregation.Arguments)
	assert.Equal(t, "count", statistics.Aggregations[3].Aggregation.Function.Name)
	assert.Len(t, statistics.Aggregations[3].Aggregation.Arguments, 1)

	last := project.Assignments[len(project.Assignments)-1]
	assert.Equal(t, result, last.Output)
	caseExpr, ok := last.Value.(*plan.SimpleCase)
	require.True(t, ok)

	// Empty subquery: ALL is vacuously true.
	require.Len(t, caseExpr.Whens, 1)
	assert.True(t, plan.IsTrueLiteral(caseExpr.Whens[0].Result))

	// a < ALL b reduces to a < min(b), conjoined with the null guard.
	conjunction, ok := caseExpr.Default.(*plan.Logical)
	require.True(t, ok)
	assert.Equal(t, plan.OpAnd, conjunction.Operator)
	require.Len(t, conjunction.Terms, 2)
	bound, ok := conjunction.Terms[0].(*plan.Comparison)
	require.True(t, ok)
	assert.Equal(t, plan.OpLessThan, bound.Operator)
	assert.Equal(t, "min", bound.Right.(*plan.SymbolReference).Symbol.Name)
	_, ok = conjunction.Terms[1].(*plan.SearchedCase)
	assert.True(t, ok)
}

func TestRewriteQuantifiedComparisonEqualAll(t *testing.T) {
	apply, _ := quantifiedApply(t, plan.OpEqual, plan.QuantifierAll)
	rule := NewRewriteQuantifiedComparison()

	rewritten, applied, err := rule.Apply(apply, testContext(t, apply))
	require.NoError(t, err)
	require.True(t, applied)

	project := rewritten.(*plan.ProjectNode)
	caseExpr := project.Assignments[len(project.Assignments)-1].Value.(*plan.SimpleCase)

	// a = ALL b becomes min = max AND a = max, plus the null guard.
	conjunction, ok := caseExpr.Default.(*plan.Logical)
	require.True(t, ok)
	assert.Equal(t, plan.OpAnd, conjunction.Operator)
	require.Len(t, conjunction.Terms, 3)

	bounds := conjunction.Terms[0].(*plan.Comparison)
	assert.Equal(t, plan.OpEqual, bounds.Operator)
	assert.Equal(t, "min", bounds.Left.(*plan.SymbolReference).Symbol.Name)
	assert.Equal(t, "max", bounds.Right.(*plan.SymbolReference).Symbol.Name)

	value := conjunction.Terms[1].(*plan.Comparison)
	assert.Equal(t, "a", value.Left.(*plan.SymbolReference).Symbol.Name)
	assert.Equal(t, "max", value.Right.(*plan.SymbolReference).Symbol.Name)
}

func TestRewriteQuantifiedComparisonBoundSelection(t *testing.T) {
	cases := []struct {
		operator   plan.ComparisonOperator
		quantifier plan.Quantifier
		bound      string
	}{
		{plan.OpLessThan, plan.QuantifierAll, "min"},
		{plan.OpLessOrEqual, plan.QuantifierAll, "min"},
		{plan.OpGreaterThan, plan.QuantifierAll, "max"},
		{plan.OpGreaterOrEqual, plan.QuantifierAll, "max"},
		{plan.OpLessThan, plan.QuantifierAny, "max"},
		{plan.OpLessOrEqual, plan.QuantifierAny, "max"},
		{plan.OpGreaterThan, plan.QuantifierAny, "min"},
		{plan.OpGreaterOrEqual, plan.QuantifierSome, "min"},
	}
	for _, tc := range cases {
		t.Run(string(tc.operator)+" "+string(tc.quantifier), func(t *testing.T) {
			apply, _ := quantifiedApply(t, tc.operator, tc.quantifier)
			rewritten, applied, err := NewRewriteQuantifiedComparison().Apply(apply, testContext(t, apply))
			require.NoError(t, err)
			require.True(t, applied)

			project := rewritten.(*plan.ProjectNode)
			caseExpr := project.Assignments[len(project.Assignments)-1].Value.(*plan.SimpleCase)
			combined := caseExpr.Default.(*plan.Logical)
			bound := combined.Terms[0].(*plan.Comparison)
			assert.Equal(t, tc.operator, bound.Operator)
			assert.Equal(t, tc.bound, bound.Right.(*plan.SymbolReference).Symbol.Name)

			// ANY and SOME combine through OR and default to false on the
			// empty subquery; ALL combines through AND and defaults to true.
			if tc.quantifier == plan.QuantifierAll {
				assert.Equal(t, plan.OpAnd, combined.Operator)
				assert.True(t, plan.IsTrueLiteral(caseExpr.Whens[0].Result))
			} else {
				assert.Equal(t, plan.OpOr, combined.Operator)
				literal, ok := caseExpr.Whens[0].Result.(*plan.Literal)
				require.True(t, ok)
				assert.Equal(t, false, literal.Value)
			}
		})
	}
}

func TestRewriteQuantifiedComparisonUnsupportedOperators(t *testing.T) {
	for _, tc := range []struct {
		operator   plan.ComparisonOperator
		quantifier plan.Quantifier
	}{
		{plan.OpNotEqual, plan.QuantifierAll},
		{plan.OpNotEqual, plan.QuantifierAny},
		{plan.OpEqual, plan.QuantifierAny},
		{plan.OpEqual, plan.QuantifierSome},
	} {
		apply, _ := quantifiedApply(t, tc.operator, tc.quantifier)
		_, applied, err := NewRewriteQuantifiedComparison().Apply(apply, testContext(t, apply))
		assert.False(t, applied)
		var unsupported *UnsupportedConstructError
		require.ErrorAs(t, err, &unsupported)
	}
}

func TestRewriteQuantifiedComparisonDeclines(t *testing.T) {
	a := bigint("a")
	result := plan.Symbol{Name: "result", Type: plan.TypeBoolean}

	t.Run("not an apply", func(t *testing.T) {
		leaf := values(a)
		_, applied, err := NewRewriteQuantifiedComparison().Apply(leaf, testContext(t, leaf))
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("exists assignment", func(t *testing.T) {
		apply, err := plan.NewApply(values(a), values(bigint("b")), nil,
			[]plan.SubqueryAssignment{{Output: result, Set: &plan.ExistsPredicate{}}})
		require.NoError(t, err)
		_, applied, err := NewRewriteQuantifiedComparison().Apply(apply, testContext(t, apply))
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("multiple assignments", func(t *testing.T) {
		other := plan.Symbol{Name: "other", Type: plan.TypeBoolean}
		apply, err := plan.NewApply(values(a), values(bigint("b")), nil, []plan.SubqueryAssignment{
			{Output: result, Set: &plan.QuantifiedComparison{Operator: plan.OpLessThan, Quantifier: plan.QuantifierAll, Value: a}},
			{Output: other, Set: &plan.ExistsPredicate{}},
		})
		require.NoError(t, err)
		_, applied, err := NewRewriteQuantifiedComparison().Apply(apply, testContext(t, apply))
		assert.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestRewriteQuantifiedComparisonMalformedSubquery(t *testing.T) {
	a := bigint("a")
	result := plan.Symbol{Name: "result", Type: plan.TypeBoolean}
	apply, err := plan.NewApply(values(a), values(bigint("b"), bigint("c")), nil,
		[]plan.SubqueryAssignment{{
			Output: result,
			Set:    &plan.QuantifiedComparison{Operator: plan.OpLessThan, Quantifier: plan.QuantifierAll, Value: a},
		}})
	require.NoError(t, err)

	_, applied, err := NewRewriteQuantifiedComparison().Apply(apply, testContext(t, apply))
	assert.False(t, applied)
	var malformed *plan.MalformedPlanError
	require.ErrorAs(t, err, &malformed)
}

func TestRewriteQuantifiedComparisonKeepsCorrelation(t *testing.T) {
	a := bigint("a")
	b := bigint("b")
	result := plan.Symbol{Name: "result", Type: plan.TypeBoolean}
	subquery := &plan.FilterNode{Source: values(b), Predicate: equals(b, a)}
	apply := &plan.ApplyNode{
		Input:       values(a),
		Subquery:    subquery,
		Correlation: []plan.Symbol{a},
		Assignments: []plan.SubqueryAssignment{{
			Output: result,
			Set:    &plan.QuantifiedComparison{Operator: plan.OpGreaterThan, Quantifier: plan.QuantifierAny, Value: a},
		}},
	}

	rewritten, applied, err := NewRewriteQuantifiedComparison().Apply(apply, testContext(t, apply))
	require.NoError(t, err)
	require.True(t, applied)

	join := rewritten.(*plan.ProjectNode).Source.(*plan.CorrelatedJoinNode)
	assert.Equal(t, []plan.Symbol{a}, join.Correlation)
	statistics := join.Subquery.(*plan.AggregationNode)
	assert.Same(t, subquery, statistics.Source)
}
