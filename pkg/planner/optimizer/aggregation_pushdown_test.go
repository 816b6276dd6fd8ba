package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomdb/loomdb/pkg/planner/plan"
)

func avgAggregation(t *testing.T, argument plan.Symbol) plan.AggregationAssignment {
	t.Helper()
	fn, err := NewBuiltinResolver().ResolveFunction("avg", []plan.Type{argument.Type})
	require.NoError(t, err)
	return plan.AggregationAssignment{
		Output:      plan.Symbol{Name: "avg", Type: plan.TypeDouble},
		Aggregation: plan.Aggregation{Function: fn, Arguments: []plan.Expression{argument.Ref()}},
	}
}

func innerJoin(t *testing.T, left, right plan.Node, criteria ...plan.EquiJoinClause) *plan.JoinNode {
	t.Helper()
	join, err := plan.NewJoin(plan.JoinInner, left, right, criteria,
		left.OutputSymbols(), right.OutputSymbols(), nil)
	require.NoError(t, err)
	return join
}

func TestPushPartialAggregationThroughJoinLeft(t *testing.T) {
	lKey := bigint("l_key")
	lVal := bigint("l_val")
	rKey := bigint("r_key")
	rGroup := bigint("r_group")

	join := innerJoin(t, values(lKey, lVal), values(rKey, rGroup),
		plan.EquiJoinClause{Left: lKey, Right: rKey})
	aggregation, err := plan.NewAggregation(join,
		[]plan.AggregationAssignment{avgAggregation(t, lVal)},
		plan.SingleGroupingSet(lKey, rGroup), plan.StepPartial)
	require.NoError(t, err)

	rewritten, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
	require.NoError(t, err)
	require.True(t, applied)

	restore, ok := rewritten.(*plan.ProjectNode)
	require.True(t, ok)
	assert.Equal(t, []string{"l_key", "r_group", "avg"}, symbolNames(restore.OutputSymbols()))
	for _, assignment := range restore.Assignments {
		assert.True(t, assignment.IsIdentity())
	}

	rebuilt, ok := restore.Source.(*plan.JoinNode)
	require.True(t, ok)
	assert.Equal(t, join.Criteria, rebuilt.Criteria)
	assert.Same(t, join.Right, rebuilt.Right)
	assert.Equal(t, []string{"r_key", "r_group"}, symbolNames(rebuilt.RightOutputs))

	pushed, ok := rebuilt.Left.(*plan.AggregationNode)
	require.True(t, ok)
	assert.Equal(t, plan.StepPartial, pushed.Step)
	assert.Equal(t, []string{"l_key"}, symbolNames(pushed.Grouping.Keys))
	require.Len(t, pushed.Aggregations, 1)
	assert.Equal(t, "avg", pushed.Aggregations[0].Output.Name)
	assert.Equal(t, []string{"l_key", "avg"}, symbolNames(rebuilt.LeftOutputs))
}

func TestPushPartialAggregationThroughJoinRight(t *testing.T) {
	lKey := bigint("l_key")
	rKey := bigint("r_key")
	rVal := bigint("r_val")

	join := innerJoin(t, values(lKey), values(rKey, rVal),
		plan.EquiJoinClause{Left: lKey, Right: rKey})
	aggregation, err := plan.NewAggregation(join,
		[]plan.AggregationAssignment{avgAggregation(t, rVal)},
		plan.SingleGroupingSet(lKey), plan.StepPartial)
	require.NoError(t, err)

	rewritten, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
	require.NoError(t, err)
	require.True(t, applied)

	rebuilt := rewritten.(*plan.ProjectNode).Source.(*plan.JoinNode)
	assert.Same(t, join.Left, rebuilt.Left)
	pushed, ok := rebuilt.Right.(*plan.AggregationNode)
	require.True(t, ok)
	assert.Equal(t, []string{"r_key"}, symbolNames(pushed.Grouping.Keys))
}

func TestPushPartialAggregationThroughJoinKeepsFilterSymbols(t *testing.T) {
	lKey := bigint("l_key")
	lVal := bigint("l_val")
	lExtra := bigint("l_extra")
	rKey := bigint("r_key")

	join, err := plan.NewJoin(plan.JoinInner, values(lKey, lVal, lExtra), values(rKey),
		[]plan.EquiJoinClause{{Left: lKey, Right: rKey}},
		[]plan.Symbol{lKey, lVal, lExtra}, []plan.Symbol{rKey},
		&plan.Comparison{Operator: plan.OpGreaterThan, Left: lExtra.Ref(), Right: rKey.Ref()})
	require.NoError(t, err)
	aggregation, err := plan.NewAggregation(join,
		[]plan.AggregationAssignment{avgAggregation(t, lVal)},
		plan.SingleGroupingSet(lKey), plan.StepPartial)
	require.NoError(t, err)

	rewritten, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
	require.NoError(t, err)
	require.True(t, applied)

	// The pushed grouping keeps every left symbol the join filter consumes.
	pushed := rewritten.(*plan.ProjectNode).Source.(*plan.JoinNode).Left.(*plan.AggregationNode)
	assert.Equal(t, []string{"l_key", "l_extra"}, symbolNames(pushed.Grouping.Keys))
}

func TestPushPartialAggregationThroughJoinDeclines(t *testing.T) {
	lKey := bigint("l_key")
	lVal := bigint("l_val")
	rKey := bigint("r_key")
	rVal := bigint("r_val")

	t.Run("arguments from both sides", func(t *testing.T) {
		join := innerJoin(t, values(lKey, lVal), values(rKey, rVal),
			plan.EquiJoinClause{Left: lKey, Right: rKey})
		rightSide := avgAggregation(t, rVal)
		rightSide.Output = plan.Symbol{Name: "avg_right", Type: plan.TypeDouble}
		aggregation, err := plan.NewAggregation(join,
			[]plan.AggregationAssignment{avgAggregation(t, lVal), rightSide},
			plan.SingleGroupingSet(lKey), plan.StepPartial)
		require.NoError(t, err)
		_, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("non-partial step", func(t *testing.T) {
		join := innerJoin(t, values(lKey, lVal), values(rKey),
			plan.EquiJoinClause{Left: lKey, Right: rKey})
		aggregation, err := plan.NewAggregation(join,
			[]plan.AggregationAssignment{avgAggregation(t, lVal)},
			plan.SingleGroupingSet(lKey), plan.StepSingle)
		require.NoError(t, err)
		_, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("outer join", func(t *testing.T) {
		left := values(lKey, lVal)
		right := values(rKey)
		join, err := plan.NewJoin(plan.JoinLeft, left, right,
			[]plan.EquiJoinClause{{Left: lKey, Right: rKey}},
			left.OutputSymbols(), right.OutputSymbols(), nil)
		require.NoError(t, err)
		aggregation, err := plan.NewAggregation(join,
			[]plan.AggregationAssignment{avgAggregation(t, lVal)},
			plan.SingleGroupingSet(lKey), plan.StepPartial)
		require.NoError(t, err)
		_, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("distinct aggregate", func(t *testing.T) {
		join := innerJoin(t, values(lKey, lVal), values(rKey),
			plan.EquiJoinClause{Left: lKey, Right: rKey})
		assignment := avgAggregation(t, lVal)
		assignment.Aggregation.Distinct = true
		aggregation, err := plan.NewAggregation(join,
			[]plan.AggregationAssignment{assignment},
			plan.SingleGroupingSet(lKey), plan.StepPartial)
		require.NoError(t, err)
		_, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("argument-free aggregate", func(t *testing.T) {
		countFn, err := NewBuiltinResolver().ResolveFunction("count", nil)
		require.NoError(t, err)
		join := innerJoin(t, values(lKey, lVal), values(rKey),
			plan.EquiJoinClause{Left: lKey, Right: rKey})
		aggregation, err := plan.NewAggregation(join,
			[]plan.AggregationAssignment{{
				Output:      bigint("count"),
				Aggregation: plan.Aggregation{Function: countFn},
			}},
			plan.SingleGroupingSet(lKey), plan.StepPartial)
		require.NoError(t, err)
		_, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("not above a join", func(t *testing.T) {
		aggregation, err := plan.NewAggregation(values(lKey, lVal),
			[]plan.AggregationAssignment{avgAggregation(t, lVal)},
			plan.SingleGroupingSet(lKey), plan.StepPartial)
		require.NoError(t, err)
		_, applied, err := NewPushPartialAggregationThroughJoin().Apply(aggregation, testContext(t, aggregation))
		assert.NoError(t, err)
		assert.False(t, applied)
	})
}
