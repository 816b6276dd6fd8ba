package optimizer

import (
	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// DecorrelateGlobalAggregation eliminates a CorrelatedJoin whose subquery
// is a global aggregation, optionally wrapped in a single projection.
//
// The rewrite tags every outer row with a unique id, left-joins the
// decorrelated subquery source back on the pulled-out correlation
// predicates, and re-homes the aggregation above the join grouped by the
// outer row identity. A synthetic non_null marker column distinguishes
// "no matching inner rows" from genuine nulls: every aggregate is masked
// by it (combined with any pre-existing mask), which preserves the empty
// subquery semantics — count over zero matches stays 0, sum/avg/min/max
// stay null.
//
// A nested grouped aggregation (a DISTINCT) below the correlated filter
// stays below the join when the correlation predicates are equalities
// (its grouping keys widen with the joined symbols); otherwise it is
// re-homed above the join grouped by the outer row identity plus its
// original keys.
type DecorrelateGlobalAggregation struct{}

// NewDecorrelateGlobalAggregation creates the rule.
func NewDecorrelateGlobalAggregation() *DecorrelateGlobalAggregation {
	return &DecorrelateGlobalAggregation{}
}

func (r *DecorrelateGlobalAggregation) Name() string {
	return "decorrelate_global_aggregation"
}

func (r *DecorrelateGlobalAggregation) Apply(node plan.Node, ctx *Context) (plan.Node, bool, error) {
	correlated, ok := node.(*plan.CorrelatedJoinNode)
	if !ok || len(correlated.Correlation) == 0 {
		return nil, false, nil
	}
	if correlated.Kind != plan.JoinInner && correlated.Kind != plan.JoinLeft {
		return nil, false, nil
	}
	if correlated.Filter != nil && !plan.IsTrueLiteral(correlated.Filter) {
		return nil, false, nil
	}

	// Strip at most one projection wrapping the aggregation; two nested
	// projections decline.
	subquery := correlated.Subquery
	var wrapper *plan.ProjectNode
	if project, isProject := subquery.(*plan.ProjectNode); isProject {
		wrapper = project
		subquery = project.Source
		if _, nested := subquery.(*plan.ProjectNode); nested {
			return nil, false, nil
		}
	}
	aggregation, isAggregation := subquery.(*plan.AggregationNode)
	if !isAggregation || !aggregation.Grouping.IsGlobal() {
		return nil, false, nil
	}

	// Pull the correlated predicates out of the aggregation source. When
	// that fails because of a nested grouped aggregation correlated
	// through a non-equality, re-home that aggregation above the join
	// instead.
	source, pulled, ok := decorrelateFilters(aggregation.Source, correlated.Correlation)
	var rehomed *plan.AggregationNode
	if !ok {
		nested, isNested := aggregation.Source.(*plan.AggregationNode)
		if !isNested || len(nested.Aggregations) > 0 || nested.Grouping.IsGlobal() {
			return nil, false, nil
		}
		source, pulled, ok = decorrelateFilters(nested.Source, correlated.Correlation)
		if !ok {
			return nil, false, nil
		}
		rehomed = nested
	}
	if rehomed != nil {
		// Pre-existing masks would have to survive the re-homed grouping;
		// they cannot, so decline.
		for _, assignment := range aggregation.Aggregations {
			if assignment.Aggregation.Mask != nil {
				return nil, false, nil
			}
		}
	}

	inputOutputs := correlated.Input.OutputSymbols()
	unique := ctx.Symbols.New("unique", plan.TypeBigint)
	withUnique, err := plan.NewAssignUniqueID(correlated.Input, unique)
	if err != nil {
		return nil, false, err
	}

	// Mark every inner row so that, after the left join, an outer row with
	// no match is distinguishable from a match carrying nulls.
	nonNull := ctx.Symbols.New("non_null", plan.TypeBoolean)
	marked, err := plan.NewProject(source, append(
		plan.Identities(source.OutputSymbols()...),
		plan.Assignment{Output: nonNull, Value: plan.True()}))
	if err != nil {
		return nil, false, err
	}

	var joinFilter plan.Expression
	if len(pulled) > 0 {
		joinFilter = plan.CombineConjuncts(pulled...)
	}
	join, err := plan.NewJoin(plan.JoinLeft, withUnique, marked, nil,
		withUnique.OutputSymbols(), marked.OutputSymbols(), joinFilter)
	if err != nil {
		return nil, false, err
	}

	var aggregationSource plan.Node = join
	if rehomed != nil {
		keys := appendUnique(inputOutputs, unique, nonNull)
		keys = appendUnique(keys, rehomed.Grouping.Keys...)
		regrouped, err := plan.NewAggregation(join, nil, plan.SingleGroupingSet(keys...), plan.StepSingle)
		if err != nil {
			return nil, false, err
		}
		aggregationSource = regrouped
	}

	// Combine pre-existing masks with the marker; aggregates without a
	// mask take the marker directly.
	combined := make(map[string]plan.Symbol)
	var maskAssignments plan.Assignments
	for _, assignment := range aggregation.Aggregations {
		mask := assignment.Aggregation.Mask
		if mask == nil {
			continue
		}
		if _, done := combined[mask.Name]; done {
			continue
		}
		newMask := ctx.Symbols.New("new_mask", plan.TypeBoolean)
		combined[mask.Name] = newMask
		maskAssignments = append(maskAssignments, plan.Assignment{
			Output: newMask,
			Value:  plan.CombineConjuncts(mask.Ref(), nonNull.Ref()),
		})
	}
	if len(maskAssignments) > 0 {
		aggregationSource, err = plan.NewProject(aggregationSource, append(
			plan.Identities(aggregationSource.OutputSymbols()...), maskAssignments...))
		if err != nil {
			return nil, false, err
		}
	}

	rewritten := make([]plan.AggregationAssignment, len(aggregation.Aggregations))
	for i, assignment := range aggregation.Aggregations {
		agg := assignment.Aggregation
		if agg.Mask != nil {
			newMask := combined[agg.Mask.Name]
			agg.Mask = &newMask
		} else {
			marker := nonNull
			agg.Mask = &marker
		}
		rewritten[i] = plan.AggregationAssignment{Output: assignment.Output, Aggregation: agg}
	}

	grouping := plan.SingleGroupingSet(appendUnique(inputOutputs, unique)...)
	regrouped, err := plan.NewAggregation(aggregationSource, rewritten, grouping, plan.StepSingle)
	if err != nil {
		return nil, false, err
	}

	// Restore exactly the correlated join's output symbols, dropping the
	// unique and non_null helpers.
	restore := plan.Identities(inputOutputs...)
	if wrapper != nil {
		restore = append(restore, wrapper.Assignments...)
	} else {
		for _, assignment := range aggregation.Aggregations {
			restore = append(restore, plan.Assignment{Output: assignment.Output, Value: assignment.Output.Ref()})
		}
	}
	result, err := plan.NewProject(regrouped, restore)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}
