package plan

// Validate walks a whole plan tree and checks the structural invariants:
// every expression symbol resolves to a child output (or, inside a
// correlated subquery, to a correlation symbol), grouping keys and join
// criteria come from the right inputs, and Values rows match their output
// width. It returns the first violation as a *MalformedPlanError.
func Validate(root Node) error {
	return validateNode(root, nil)
}

// validateNode checks node with outer holding the correlation symbols
// visible from enclosing CorrelatedJoin/Apply nodes.
func validateNode(node Node, outer []Symbol) error {
	switch n := node.(type) {
	case *ValuesNode:
		for i, row := range n.Rows {
			if len(row) != len(n.Outputs) {
				return malformed("Values", "row %d has %d expressions, want %d", i, len(row), len(n.Outputs))
			}
		}
		return nil

	case *FilterNode:
		scope := append(append([]Symbol{}, n.Source.OutputSymbols()...), outer...)
		if err := checkInScope("Filter", n.Predicate, scope); err != nil {
			return err
		}
		return validateNode(n.Source, outer)

	case *ProjectNode:
		scope := append(append([]Symbol{}, n.Source.OutputSymbols()...), outer...)
		seen := make(map[string]struct{}, len(n.Assignments))
		for _, asg := range n.Assignments {
			if _, dup := seen[asg.Output.Name]; dup {
				return malformed("Project", "duplicate output symbol %q", asg.Output.Name)
			}
			seen[asg.Output.Name] = struct{}{}
			if err := checkInScope("Project", asg.Value, scope); err != nil {
				return err
			}
		}
		return validateNode(n.Source, outer)

	case *JoinNode:
		leftScope := n.Left.OutputSymbols()
		rightScope := n.Right.OutputSymbols()
		for _, c := range n.Criteria {
			if !containsSymbol(leftScope, c.Left) {
				return malformed("Join", "equi-join symbol %q not produced by left input", c.Left.Name)
			}
			if !containsSymbol(rightScope, c.Right) {
				return malformed("Join", "equi-join symbol %q not produced by right input", c.Right.Name)
			}
		}
		for _, s := range n.LeftOutputs {
			if !containsSymbol(leftScope, s) {
				return malformed("Join", "left output %q not produced by left input", s.Name)
			}
		}
		for _, s := range n.RightOutputs {
			if !containsSymbol(rightScope, s) {
				return malformed("Join", "right output %q not produced by right input", s.Name)
			}
		}
		if n.Filter != nil {
			scope := append(append([]Symbol{}, leftScope...), rightScope...)
			scope = append(scope, outer...)
			if err := checkInScope("Join", n.Filter, scope); err != nil {
				return err
			}
		}
		if err := validateNode(n.Left, outer); err != nil {
			return err
		}
		return validateNode(n.Right, outer)

	case *CorrelatedJoinNode:
		inputScope := n.Input.OutputSymbols()
		for _, s := range n.Correlation {
			if !containsSymbol(inputScope, s) {
				return malformed("CorrelatedJoin", "correlation symbol %q not produced by input", s.Name)
			}
		}
		if n.Filter != nil {
			scope := append(append([]Symbol{}, inputScope...), n.Subquery.OutputSymbols()...)
			scope = append(scope, outer...)
			if err := checkInScope("CorrelatedJoin", n.Filter, scope); err != nil {
				return err
			}
		}
		if err := validateNode(n.Input, outer); err != nil {
			return err
		}
		return validateNode(n.Subquery, append(append([]Symbol{}, outer...), n.Correlation...))

	case *ApplyNode:
		inputScope := n.Input.OutputSymbols()
		for _, s := range n.Correlation {
			if !containsSymbol(inputScope, s) {
				return malformed("Apply", "correlation symbol %q not produced by input", s.Name)
			}
		}
		for _, a := range n.Assignments {
			switch set := a.Set.(type) {
			case *QuantifiedComparison:
				if !containsSymbol(inputScope, set.Value) {
					return malformed("Apply", "comparison value %q not produced by input", set.Value.Name)
				}
			case *InPredicate:
				if !containsSymbol(inputScope, set.Value) {
					return malformed("Apply", "in-predicate value %q not produced by input", set.Value.Name)
				}
			case *ExistsPredicate:
			default:
				return malformed("Apply", "unhandled set expression %T", a.Set)
			}
		}
		if err := validateNode(n.Input, outer); err != nil {
			return err
		}
		return validateNode(n.Subquery, append(append([]Symbol{}, outer...), n.Correlation...))

	case *AggregationNode:
		scope := append(append([]Symbol{}, n.Source.OutputSymbols()...), outer...)
		for _, key := range n.Grouping.Keys {
			if !containsSymbol(n.Source.OutputSymbols(), key) {
				return malformed("Aggregation", "grouping key %q not produced by source", key.Name)
			}
		}
		for _, asg := range n.Aggregations {
			for _, arg := range asg.Aggregation.Arguments {
				if err := checkInScope("Aggregation", arg, scope); err != nil {
					return err
				}
			}
			if asg.Aggregation.Filter != nil {
				if err := checkInScope("Aggregation", asg.Aggregation.Filter, scope); err != nil {
					return err
				}
			}
			if asg.Aggregation.Mask != nil && !containsSymbol(n.Source.OutputSymbols(), *asg.Aggregation.Mask) {
				return malformed("Aggregation", "mask symbol %q not produced by source", asg.Aggregation.Mask.Name)
			}
		}
		return validateNode(n.Source, outer)

	case *AssignUniqueIDNode:
		if containsSymbol(n.Source.OutputSymbols(), n.IDSymbol) {
			return malformed("AssignUniqueID", "id symbol %q already produced by source", n.IDSymbol.Name)
		}
		return validateNode(n.Source, outer)

	default:
		return malformed("Validate", "unhandled node kind %T", node)
	}
}
