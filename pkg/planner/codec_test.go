package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomdb/loomdb/pkg/planner/plan"
)

func TestPlanCodecRoundTrip(t *testing.T) {
	a := plan.Symbol{Name: "a", Type: plan.TypeBigint}
	b := plan.Symbol{Name: "b", Type: plan.TypeBigint}
	mask := plan.Symbol{Name: "mask", Type: plan.TypeBoolean}
	sum := plan.Symbol{Name: "sum", Type: plan.TypeBigint}
	result := plan.Symbol{Name: "result", Type: plan.TypeBoolean}
	unique := plan.Symbol{Name: "unique", Type: plan.TypeBigint}

	// JSON numbers decode as float64, so literals use float64 here.
	left := &plan.ValuesNode{
		Outputs: []plan.Symbol{a},
		Rows:    [][]plan.Expression{{&plan.Literal{Type: plan.TypeBigint, Value: float64(1)}}},
	}
	withUnique := &plan.AssignUniqueIDNode{Source: left, IDSymbol: unique}
	right := &plan.FilterNode{
		Source:    &plan.ValuesNode{Outputs: []plan.Symbol{b, mask}},
		Predicate: &plan.Comparison{Operator: plan.OpGreaterThan, Left: b.Ref(), Right: &plan.Literal{Type: plan.TypeBigint, Value: float64(0)}},
	}
	join := &plan.JoinNode{
		Kind:         plan.JoinLeft,
		Left:         withUnique,
		Right:        right,
		Criteria:     []plan.EquiJoinClause{{Left: a, Right: b}},
		LeftOutputs:  []plan.Symbol{a, unique},
		RightOutputs: []plan.Symbol{b, mask},
		Filter:       &plan.Comparison{Operator: plan.OpLessThan, Left: a.Ref(), Right: b.Ref()},
	}
	sumFn := plan.FunctionHandle{Name: "sum", ArgumentTypes: []plan.Type{plan.TypeBigint}, ReturnType: plan.TypeBigint}
	aggregation := &plan.AggregationNode{
		Source: join,
		Aggregations: []plan.AggregationAssignment{{
			Output:      sum,
			Aggregation: plan.Aggregation{Function: sumFn, Arguments: []plan.Expression{b.Ref()}, Mask: &mask},
		}},
		Grouping: plan.SingleGroupingSet(a, unique),
		Step:     plan.StepSingle,
	}
	root := &plan.ProjectNode{
		Source: aggregation,
		Assignments: plan.Assignments{
			{Output: a, Value: a.Ref()},
			{Output: result, Value: &plan.SearchedCase{
				Whens: []plan.WhenClause{{
					Condition: &plan.Comparison{Operator: plan.OpEqual, Left: sum.Ref(), Right: &plan.Literal{Type: plan.TypeBigint, Value: float64(0)}},
					Result:    plan.NullBoolean(),
				}},
				Default: &plan.Logical{Operator: plan.OpAnd, Terms: []plan.Expression{plan.True(), mask.Ref()}},
			}},
		},
	}

	encoded, err := EncodePlan(root)
	require.NoError(t, err)
	decoded, err := DecodePlan(encoded)
	require.NoError(t, err)

	assert.Equal(t, plan.Node(root), decoded)
	assert.NoError(t, plan.Validate(decoded))
}

func TestPlanCodecRoundTripApply(t *testing.T) {
	a := plan.Symbol{Name: "a", Type: plan.TypeBigint}
	b := plan.Symbol{Name: "b", Type: plan.TypeBigint}
	result := plan.Symbol{Name: "result", Type: plan.TypeBoolean}

	root := &plan.ApplyNode{
		Input:       &plan.ValuesNode{Outputs: []plan.Symbol{a}},
		Subquery:    &plan.FilterNode{Source: &plan.ValuesNode{Outputs: []plan.Symbol{b}}, Predicate: &plan.Comparison{Operator: plan.OpEqual, Left: b.Ref(), Right: a.Ref()}},
		Correlation: []plan.Symbol{a},
		Assignments: []plan.SubqueryAssignment{{
			Output: result,
			Set:    &plan.QuantifiedComparison{Operator: plan.OpLessThan, Quantifier: plan.QuantifierAll, Value: a},
		}},
	}

	encoded, err := EncodePlan(root)
	require.NoError(t, err)
	decoded, err := DecodePlan(encoded)
	require.NoError(t, err)
	assert.Equal(t, plan.Node(root), decoded)
}

func TestPlanCodecRoundTripCorrelatedJoin(t *testing.T) {
	a := plan.Symbol{Name: "a", Type: plan.TypeBigint}
	b := plan.Symbol{Name: "b", Type: plan.TypeBigint}

	root := &plan.CorrelatedJoinNode{
		Input:       &plan.ValuesNode{Outputs: []plan.Symbol{a}},
		Subquery:    &plan.ValuesNode{Outputs: []plan.Symbol{b}},
		Correlation: []plan.Symbol{a},
		Kind:        plan.JoinInner,
		Filter:      plan.True(),
	}

	encoded, err := EncodePlan(root)
	require.NoError(t, err)
	decoded, err := DecodePlan(encoded)
	require.NoError(t, err)
	assert.Equal(t, plan.Node(root), decoded)
}

func TestDecodePlanErrors(t *testing.T) {
	t.Run("unknown node kind", func(t *testing.T) {
		_, err := DecodePlan([]byte(`{"kind":"mystery"}`))
		assert.ErrorContains(t, err, "unknown node kind")
	})

	t.Run("filter without predicate", func(t *testing.T) {
		_, err := DecodePlan([]byte(`{"kind":"filter","source":{"kind":"values","outputs":[{"name":"a","type":"bigint"}]}}`))
		assert.ErrorContains(t, err, "missing predicate")
	})

	t.Run("unknown expression kind", func(t *testing.T) {
		_, err := DecodePlan([]byte(`{"kind":"filter","source":{"kind":"values"},"predicate":{"kind":"mystery"}}`))
		assert.ErrorContains(t, err, "unknown expression kind")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodePlan([]byte(`{`))
		assert.Error(t, err)
	})
}
