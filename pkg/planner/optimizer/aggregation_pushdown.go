package optimizer

import (
	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// PushPartialAggregationThroughJoin relocates a PARTIAL-step aggregation
// sitting directly above an inner join onto the join input that produces
// every aggregate argument. The pushed aggregation groups by that side's
// original grouping keys plus every symbol the join still needs from that
// side (equi-criteria, filter symbols, hash symbol), so the join is
// re-emitted structurally unchanged; a projection on top restores the
// original output symbols and order.
//
// The rule declines when aggregate arguments span both sides, when the
// join can introduce nulls before grouping (any non-inner join), when the
// step is not PARTIAL, or when an aggregate carries a distinct flag,
// filter, ordering or mask that pre-aggregation would break.
type PushPartialAggregationThroughJoin struct{}

// NewPushPartialAggregationThroughJoin creates the rule.
func NewPushPartialAggregationThroughJoin() *PushPartialAggregationThroughJoin {
	return &PushPartialAggregationThroughJoin{}
}

func (r *PushPartialAggregationThroughJoin) Name() string {
	return "push_partial_aggregation_through_join"
}

func (r *PushPartialAggregationThroughJoin) Apply(node plan.Node, ctx *Context) (plan.Node, bool, error) {
	aggregation, ok := node.(*plan.AggregationNode)
	if !ok || aggregation.Step != plan.StepPartial || aggregation.Grouping.SetCount != 1 {
		return nil, false, nil
	}
	join, ok := aggregation.Source.(*plan.JoinNode)
	if !ok || join.Kind != plan.JoinInner {
		return nil, false, nil
	}

	var argumentSymbols []plan.Symbol
	for _, assignment := range aggregation.Aggregations {
		agg := assignment.Aggregation
		if agg.Distinct || agg.Filter != nil || agg.Mask != nil || len(agg.OrderBy) > 0 {
			return nil, false, nil
		}
		for _, arg := range agg.Arguments {
			argumentSymbols = appendUnique(argumentSymbols, plan.ExpressionSymbols(arg)...)
		}
	}
	if len(argumentSymbols) == 0 {
		return nil, false, nil
	}

	leftOutputs := join.Left.OutputSymbols()
	rightOutputs := join.Right.OutputSymbols()
	switch {
	case allContained(argumentSymbols, leftOutputs):
		return r.pushToSide(aggregation, join, ctx, true)
	case allContained(argumentSymbols, rightOutputs):
		return r.pushToSide(aggregation, join, ctx, false)
	default:
		// Arguments sourced from both join sides: no single input can
		// compute the partial states.
		return nil, false, nil
	}
}

func (r *PushPartialAggregationThroughJoin) pushToSide(aggregation *plan.AggregationNode, join *plan.JoinNode, ctx *Context, left bool) (plan.Node, bool, error) {
	side := join.Right
	sideHash := join.RightHashSym
	if left {
		side = join.Left
		sideHash = join.LeftHashSym
	}
	sideOutputs := side.OutputSymbols()

	// The pushed grouping keeps this side's grouping keys and everything
	// the join consumes from this side.
	var pushedKeys []plan.Symbol
	for _, key := range aggregation.Grouping.Keys {
		if containsSymbol(sideOutputs, key) {
			pushedKeys = appendUnique(pushedKeys, key)
		}
	}
	for _, clause := range join.Criteria {
		if left {
			pushedKeys = appendUnique(pushedKeys, clause.Left)
		} else {
			pushedKeys = appendUnique(pushedKeys, clause.Right)
		}
	}
	if join.Filter != nil {
		for _, sym := range plan.ExpressionSymbols(join.Filter) {
			if containsSymbol(sideOutputs, sym) {
				pushedKeys = appendUnique(pushedKeys, sym)
			}
		}
	}
	if sideHash != nil {
		pushedKeys = appendUnique(pushedKeys, *sideHash)
	}

	pushed, err := plan.NewAggregation(side, aggregation.Aggregations, plan.SingleGroupingSet(pushedKeys...), plan.StepPartial)
	if err != nil {
		return nil, false, err
	}

	rebuilt := *join
	if left {
		rebuilt.Left = pushed
		rebuilt.LeftOutputs = pushed.OutputSymbols()
	} else {
		rebuilt.Right = pushed
		rebuilt.RightOutputs = pushed.OutputSymbols()
	}

	restore, err := plan.NewProject(&rebuilt, plan.Identities(aggregation.OutputSymbols()...))
	if err != nil {
		return nil, false, err
	}
	return restore, true, nil
}

func allContained(symbols, scope []plan.Symbol) bool {
	for _, s := range symbols {
		if !containsSymbol(scope, s) {
			return false
		}
	}
	return true
}
