package plan

import (
	"fmt"
	"strings"
)

// Node is a logical plan operator. The variant set is closed; the rewrite
// engine and every rule switch exhaustively over it. Nodes are immutable
// once built: a rewrite produces a brand-new subtree sharing unchanged
// children.
type Node interface {
	fmt.Stringer

	// Children returns the node's inputs in order.
	Children() []Node

	// OutputSymbols returns the ordered symbols this node produces.
	OutputSymbols() []Symbol
}

// JoinKind is the join variant of a JoinNode or CorrelatedJoinNode.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinFull  JoinKind = "full"
)

// AggregationStep places an aggregation in a distributed pipeline.
type AggregationStep string

const (
	StepPartial      AggregationStep = "partial"
	StepIntermediate AggregationStep = "intermediate"
	StepFinal        AggregationStep = "final"
	StepSingle       AggregationStep = "single"
)

// Quantifier is the quantifier of a quantified comparison.
type Quantifier string

const (
	QuantifierAll  Quantifier = "all"
	QuantifierAny  Quantifier = "any"
	QuantifierSome Quantifier = "some"
)

// FunctionHandle is a resolved function reference issued by the metadata
// collaborator. It is opaque to the optimizer beyond its name and types.
type FunctionHandle struct {
	Name          string
	ArgumentTypes []Type
	ReturnType    Type
}

func (h FunctionHandle) String() string {
	return h.Name
}

// ValuesNode is an inline relation of literal rows.
type ValuesNode struct {
	Outputs []Symbol
	Rows    [][]Expression
}

func (n *ValuesNode) Children() []Node        { return nil }
func (n *ValuesNode) OutputSymbols() []Symbol { return n.Outputs }
func (n *ValuesNode) String() string {
	return fmt.Sprintf("Values(%s, rows=%d)", symbolNames(n.Outputs), len(n.Rows))
}

// NewValues builds a ValuesNode, checking that every row matches the
// output width.
func NewValues(outputs []Symbol, rows [][]Expression) (*ValuesNode, error) {
	for i, row := range rows {
		if len(row) != len(outputs) {
			return nil, malformed("Values", "row %d has %d expressions, want %d", i, len(row), len(outputs))
		}
	}
	return &ValuesNode{Outputs: outputs, Rows: rows}, nil
}

// FilterNode keeps source rows for which the predicate is true.
type FilterNode struct {
	Source    Node
	Predicate Expression
}

func (n *FilterNode) Children() []Node        { return []Node{n.Source} }
func (n *FilterNode) OutputSymbols() []Symbol { return n.Source.OutputSymbols() }
func (n *FilterNode) String() string {
	return fmt.Sprintf("Filter(%s)", n.Predicate)
}

// NewFilter builds a FilterNode, checking the predicate only references
// source outputs.
func NewFilter(source Node, predicate Expression) (*FilterNode, error) {
	if predicate == nil {
		return nil, malformed("Filter", "missing predicate")
	}
	if err := checkInScope("Filter", predicate, source.OutputSymbols()); err != nil {
		return nil, err
	}
	return &FilterNode{Source: source, Predicate: predicate}, nil
}

// Assignment binds one output symbol to a scalar expression.
type Assignment struct {
	Output Symbol
	Value  Expression
}

// Assignments is an ordered list of projection bindings.
type Assignments []Assignment

// Outputs returns the assigned symbols in order.
func (a Assignments) Outputs() []Symbol {
	out := make([]Symbol, len(a))
	for i, asg := range a {
		out[i] = asg.Output
	}
	return out
}

// Identities builds identity assignments for the given symbols.
func Identities(symbols ...Symbol) Assignments {
	out := make(Assignments, len(symbols))
	for i, s := range symbols {
		out[i] = Assignment{Output: s, Value: s.Ref()}
	}
	return out
}

// ProjectNode computes a new set of output columns from its source.
type ProjectNode struct {
	Source      Node
	Assignments Assignments
}

func (n *ProjectNode) Children() []Node        { return []Node{n.Source} }
func (n *ProjectNode) OutputSymbols() []Symbol { return n.Assignments.Outputs() }
func (n *ProjectNode) String() string {
	parts := make([]string, len(n.Assignments))
	for i, a := range n.Assignments {
		parts[i] = fmt.Sprintf("%s := %s", a.Output, a.Value)
	}
	return fmt.Sprintf("Project(%s)", strings.Join(parts, ", "))
}

// IsIdentity reports whether the projection only forwards the symbol it
// outputs under the same name.
func (a Assignment) IsIdentity() bool {
	ref, ok := a.Value.(*SymbolReference)
	return ok && ref.Symbol.Name == a.Output.Name
}

// NewProject builds a ProjectNode, checking assignment expressions only
// reference source outputs and output names do not repeat.
func NewProject(source Node, assignments Assignments) (*ProjectNode, error) {
	seen := make(map[string]struct{}, len(assignments))
	for _, asg := range assignments {
		if _, dup := seen[asg.Output.Name]; dup {
			return nil, malformed("Project", "duplicate output symbol %q", asg.Output.Name)
		}
		seen[asg.Output.Name] = struct{}{}
		if err := checkInScope("Project", asg.Value, source.OutputSymbols()); err != nil {
			return nil, err
		}
	}
	return &ProjectNode{Source: source, Assignments: assignments}, nil
}

// EquiJoinClause is an equality condition between a left-side and a
// right-side symbol.
type EquiJoinClause struct {
	Left  Symbol
	Right Symbol
}

func (c EquiJoinClause) String() string {
	return fmt.Sprintf("%s = %s", c.Left, c.Right)
}

// JoinNode joins two inputs on equi-join criteria plus an optional
// non-equi filter. Output symbols are the explicit left and right output
// lists, which may be subsets of the child outputs.
type JoinNode struct {
	Kind          JoinKind
	Left          Node
	Right         Node
	Criteria      []EquiJoinClause
	LeftOutputs   []Symbol
	RightOutputs  []Symbol
	Filter        Expression // optional
	LeftHashSym   *Symbol    // optional precomputed hash
	RightHashSym  *Symbol
}

func (n *JoinNode) Children() []Node { return []Node{n.Left, n.Right} }
func (n *JoinNode) OutputSymbols() []Symbol {
	out := make([]Symbol, 0, len(n.LeftOutputs)+len(n.RightOutputs))
	out = append(out, n.LeftOutputs...)
	return append(out, n.RightOutputs...)
}
func (n *JoinNode) String() string {
	parts := make([]string, len(n.Criteria))
	for i, c := range n.Criteria {
		parts[i] = c.String()
	}
	s := fmt.Sprintf("Join(%s, criteria=[%s]", n.Kind, strings.Join(parts, ", "))
	if n.Filter != nil {
		s += fmt.Sprintf(", filter=%s", n.Filter)
	}
	return s + ")"
}

// NewJoin builds a JoinNode, checking criteria and output lists against
// the child outputs and the filter against their union.
func NewJoin(kind JoinKind, left, right Node, criteria []EquiJoinClause, leftOutputs, rightOutputs []Symbol, filter Expression) (*JoinNode, error) {
	leftScope := left.OutputSymbols()
	rightScope := right.OutputSymbols()
	for _, c := range criteria {
		if !containsSymbol(leftScope, c.Left) {
			return nil, malformed("Join", "equi-join symbol %q not produced by left input", c.Left.Name)
		}
		if !containsSymbol(rightScope, c.Right) {
			return nil, malformed("Join", "equi-join symbol %q not produced by right input", c.Right.Name)
		}
	}
	for _, s := range leftOutputs {
		if !containsSymbol(leftScope, s) {
			return nil, malformed("Join", "left output %q not produced by left input", s.Name)
		}
	}
	for _, s := range rightOutputs {
		if !containsSymbol(rightScope, s) {
			return nil, malformed("Join", "right output %q not produced by right input", s.Name)
		}
	}
	if filter != nil {
		scope := append(append([]Symbol{}, leftScope...), rightScope...)
		if err := checkInScope("Join", filter, scope); err != nil {
			return nil, err
		}
	}
	return &JoinNode{
		Kind:         kind,
		Left:         left,
		Right:        right,
		Criteria:     criteria,
		LeftOutputs:  leftOutputs,
		RightOutputs: rightOutputs,
		Filter:       filter,
	}, nil
}

// CorrelatedJoinNode joins every input row to the result of a subquery
// that may reference the correlation symbols of that row. An empty
// correlation list means the subquery is a plain uncorrelated subquery.
type CorrelatedJoinNode struct {
	Input       Node
	Subquery    Node
	Correlation []Symbol
	Kind        JoinKind
	Filter      Expression // optional, nil means unconditionally true
}

func (n *CorrelatedJoinNode) Children() []Node { return []Node{n.Input, n.Subquery} }
func (n *CorrelatedJoinNode) OutputSymbols() []Symbol {
	out := append([]Symbol{}, n.Input.OutputSymbols()...)
	return append(out, n.Subquery.OutputSymbols()...)
}
func (n *CorrelatedJoinNode) String() string {
	return fmt.Sprintf("CorrelatedJoin(%s, correlation=%s)", n.Kind, symbolNames(n.Correlation))
}

// NewCorrelatedJoin builds a CorrelatedJoinNode, checking the correlation
// symbols come from the input side.
func NewCorrelatedJoin(input, subquery Node, correlation []Symbol, kind JoinKind, filter Expression) (*CorrelatedJoinNode, error) {
	inputScope := input.OutputSymbols()
	for _, s := range correlation {
		if !containsSymbol(inputScope, s) {
			return nil, malformed("CorrelatedJoin", "correlation symbol %q not produced by input", s.Name)
		}
	}
	if filter != nil {
		scope := append(append([]Symbol{}, inputScope...), subquery.OutputSymbols()...)
		if err := checkInScope("CorrelatedJoin", filter, scope); err != nil {
			return nil, err
		}
	}
	return &CorrelatedJoinNode{Input: input, Subquery: subquery, Correlation: correlation, Kind: kind, Filter: filter}, nil
}

// SetExpression is a subquery-valued expression carried by an ApplyNode.
// The variant set mirrors the constructs the analyzer produces.
type SetExpression interface {
	fmt.Stringer
	isSetExpression()
}

// QuantifiedComparison is value <op> ALL|ANY|SOME (subquery).
type QuantifiedComparison struct {
	Operator   ComparisonOperator
	Quantifier Quantifier
	Value      Symbol
}

func (q *QuantifiedComparison) isSetExpression() {}
func (q *QuantifiedComparison) String() string {
	return fmt.Sprintf("%s %s %s (subquery)", q.Value, q.Operator, q.Quantifier)
}

// ExistsPredicate is EXISTS (subquery).
type ExistsPredicate struct{}

func (q *ExistsPredicate) isSetExpression() {}
func (q *ExistsPredicate) String() string   { return "exists (subquery)" }

// InPredicate is value IN (subquery).
type InPredicate struct {
	Value Symbol
}

func (q *InPredicate) isSetExpression() {}
func (q *InPredicate) String() string {
	return fmt.Sprintf("%s in (subquery)", q.Value)
}

// SubqueryAssignment binds one output symbol to a set expression over the
// apply node's subquery.
type SubqueryAssignment struct {
	Output Symbol
	Set    SetExpression
}

// ApplyNode evaluates subquery-valued expressions for every input row.
// The analyzer produces it; decorrelation rules eliminate it.
type ApplyNode struct {
	Input       Node
	Subquery    Node
	Correlation []Symbol
	Assignments []SubqueryAssignment
}

func (n *ApplyNode) Children() []Node { return []Node{n.Input, n.Subquery} }
func (n *ApplyNode) OutputSymbols() []Symbol {
	out := append([]Symbol{}, n.Input.OutputSymbols()...)
	for _, a := range n.Assignments {
		out = append(out, a.Output)
	}
	return out
}
func (n *ApplyNode) String() string {
	parts := make([]string, len(n.Assignments))
	for i, a := range n.Assignments {
		parts[i] = fmt.Sprintf("%s := %s", a.Output, a.Set)
	}
	return fmt.Sprintf("Apply(correlation=%s, %s)", symbolNames(n.Correlation), strings.Join(parts, ", "))
}

// NewApply builds an ApplyNode, checking correlation symbols come from the
// input and comparison values are in scope.
func NewApply(input, subquery Node, correlation []Symbol, assignments []SubqueryAssignment) (*ApplyNode, error) {
	inputScope := input.OutputSymbols()
	for _, s := range correlation {
		if !containsSymbol(inputScope, s) {
			return nil, malformed("Apply", "correlation symbol %q not produced by input", s.Name)
		}
	}
	for _, a := range assignments {
		switch set := a.Set.(type) {
		case *QuantifiedComparison:
			if !containsSymbol(inputScope, set.Value) {
				return nil, malformed("Apply", "comparison value %q not produced by input", set.Value.Name)
			}
		case *InPredicate:
			if !containsSymbol(inputScope, set.Value) {
				return nil, malformed("Apply", "in-predicate value %q not produced by input", set.Value.Name)
			}
		case *ExistsPredicate:
		}
	}
	return &ApplyNode{Input: input, Subquery: subquery, Correlation: correlation, Assignments: assignments}, nil
}

// Aggregation is one aggregate function application: resolved function,
// ordered arguments, distinct flag, optional row filter and ordering, and
// an optional boolean mask symbol gating which rows contribute.
type Aggregation struct {
	Function  FunctionHandle
	Arguments []Expression
	Distinct  bool
	Filter    Expression
	OrderBy   []OrderingTerm
	Mask      *Symbol
}

// OrderingTerm orders aggregate input rows.
type OrderingTerm struct {
	Symbol     Symbol
	Descending bool
}

// AggregationAssignment binds an output symbol to an aggregation.
type AggregationAssignment struct {
	Output      Symbol
	Aggregation Aggregation
}

// GroupingSets describes what an aggregation groups by. An empty key list
// with a single set is global aggregation.
type GroupingSets struct {
	Keys     []Symbol
	SetCount int
}

// GlobalGrouping is the single empty grouping set.
func GlobalGrouping() GroupingSets {
	return GroupingSets{SetCount: 1}
}

// SingleGroupingSet groups by the given keys.
func SingleGroupingSet(keys ...Symbol) GroupingSets {
	return GroupingSets{Keys: keys, SetCount: 1}
}

// IsGlobal reports whether this is the single empty grouping set.
func (g GroupingSets) IsGlobal() bool {
	return len(g.Keys) == 0 && g.SetCount == 1
}

// AggregationNode groups its source and computes aggregate functions.
type AggregationNode struct {
	Source       Node
	Aggregations []AggregationAssignment
	Grouping     GroupingSets
	PreGrouped   []Symbol
	Step         AggregationStep
	HashSym      *Symbol
}

func (n *AggregationNode) Children() []Node { return []Node{n.Source} }
func (n *AggregationNode) OutputSymbols() []Symbol {
	out := append([]Symbol{}, n.Grouping.Keys...)
	for _, a := range n.Aggregations {
		out = append(out, a.Output)
	}
	return out
}
func (n *AggregationNode) String() string {
	parts := make([]string, len(n.Aggregations))
	for i, a := range n.Aggregations {
		parts[i] = fmt.Sprintf("%s := %s", a.Output, a.Aggregation.Function.Name)
	}
	return fmt.Sprintf("Aggregation(%s, keys=%s, %s)", n.Step, symbolNames(n.Grouping.Keys), strings.Join(parts, ", "))
}

// NewAggregation builds an AggregationNode, checking grouping keys, masks
// and aggregate arguments against the source outputs.
func NewAggregation(source Node, aggregations []AggregationAssignment, grouping GroupingSets, step AggregationStep) (*AggregationNode, error) {
	scope := source.OutputSymbols()
	for _, key := range grouping.Keys {
		if !containsSymbol(scope, key) {
			return nil, malformed("Aggregation", "grouping key %q not produced by source", key.Name)
		}
	}
	for _, asg := range aggregations {
		for _, arg := range asg.Aggregation.Arguments {
			if err := checkInScope("Aggregation", arg, scope); err != nil {
				return nil, err
			}
		}
		if asg.Aggregation.Mask != nil && !containsSymbol(scope, *asg.Aggregation.Mask) {
			return nil, malformed("Aggregation", "mask symbol %q not produced by source", asg.Aggregation.Mask.Name)
		}
	}
	return &AggregationNode{Source: source, Aggregations: aggregations, Grouping: grouping, Step: step}, nil
}

// AssignUniqueIDNode augments every source row with a fresh per-row
// identifier, preserving row identity across joins that fan out or drop
// rows.
type AssignUniqueIDNode struct {
	Source   Node
	IDSymbol Symbol
}

func (n *AssignUniqueIDNode) Children() []Node { return []Node{n.Source} }
func (n *AssignUniqueIDNode) OutputSymbols() []Symbol {
	return append(append([]Symbol{}, n.Source.OutputSymbols()...), n.IDSymbol)
}
func (n *AssignUniqueIDNode) String() string {
	return fmt.Sprintf("AssignUniqueID(%s)", n.IDSymbol)
}

// NewAssignUniqueID builds an AssignUniqueIDNode, checking the id symbol
// does not collide with a source output.
func NewAssignUniqueID(source Node, idSymbol Symbol) (*AssignUniqueIDNode, error) {
	if containsSymbol(source.OutputSymbols(), idSymbol) {
		return nil, malformed("AssignUniqueID", "id symbol %q already produced by source", idSymbol.Name)
	}
	return &AssignUniqueIDNode{Source: source, IDSymbol: idSymbol}, nil
}

// ReplaceChildren rebuilds node with the given children, sharing all other
// state. The child count must match the node's arity.
func ReplaceChildren(node Node, children []Node) (Node, error) {
	if len(children) != len(node.Children()) {
		return nil, malformed("ReplaceChildren", "got %d children, want %d", len(children), len(node.Children()))
	}
	switch n := node.(type) {
	case *ValuesNode:
		return n, nil
	case *FilterNode:
		return &FilterNode{Source: children[0], Predicate: n.Predicate}, nil
	case *ProjectNode:
		return &ProjectNode{Source: children[0], Assignments: n.Assignments}, nil
	case *JoinNode:
		replaced := *n
		replaced.Left = children[0]
		replaced.Right = children[1]
		return &replaced, nil
	case *CorrelatedJoinNode:
		replaced := *n
		replaced.Input = children[0]
		replaced.Subquery = children[1]
		return &replaced, nil
	case *ApplyNode:
		replaced := *n
		replaced.Input = children[0]
		replaced.Subquery = children[1]
		return &replaced, nil
	case *AggregationNode:
		replaced := *n
		replaced.Source = children[0]
		return &replaced, nil
	case *AssignUniqueIDNode:
		return &AssignUniqueIDNode{Source: children[0], IDSymbol: n.IDSymbol}, nil
	default:
		return nil, malformed("ReplaceChildren", "unhandled node kind %T", node)
	}
}

func containsSymbol(symbols []Symbol, s Symbol) bool {
	for _, candidate := range symbols {
		if candidate.Name == s.Name {
			return true
		}
	}
	return false
}

func checkInScope(node string, expr Expression, scope []Symbol) error {
	for _, s := range ExpressionSymbols(expr) {
		if !containsSymbol(scope, s) {
			return malformed(node, "expression references symbol %q not in scope", s.Name)
		}
	}
	return nil
}

func symbolNames(symbols []Symbol) string {
	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = s.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}
