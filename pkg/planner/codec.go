package planner

import (
	"encoding/json"
	"fmt"

	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// The wire format is a kind-discriminated JSON tree mirroring the plan and
// expression variants one to one. Decoding builds the tree structurally;
// callers run plan.Validate afterwards, because scope rules (correlated
// symbols in particular) are a whole-tree property the decoder cannot
// check node by node. Numeric literal values decode as float64, which is
// how encoding/json represents JSON numbers.

type wireSymbol struct {
	Name string    `json:"name"`
	Type plan.Type `json:"type"`
}

type wireWhen struct {
	Condition *wireExpression `json:"condition"`
	Result    *wireExpression `json:"result"`
}

type wireExpression struct {
	Kind     string            `json:"kind"`
	Symbol   *wireSymbol       `json:"symbol,omitempty"`
	Type     plan.Type         `json:"type,omitempty"`
	Value    interface{}       `json:"value,omitempty"`
	Operator string            `json:"operator,omitempty"`
	Left     *wireExpression   `json:"left,omitempty"`
	Right    *wireExpression   `json:"right,omitempty"`
	Inner    *wireExpression   `json:"inner,omitempty"`
	Target   plan.Type         `json:"target,omitempty"`
	Operand  *wireExpression   `json:"operand,omitempty"`
	Whens    []wireWhen        `json:"whens,omitempty"`
	Default  *wireExpression   `json:"default,omitempty"`
	Terms    []*wireExpression `json:"terms,omitempty"`
}

type wireAssignment struct {
	Output wireSymbol      `json:"output"`
	Value  *wireExpression `json:"value"`
}

type wireEquiClause struct {
	Left  wireSymbol `json:"left"`
	Right wireSymbol `json:"right"`
}

type wireSetExpression struct {
	Kind       string          `json:"kind"`
	Operator   string          `json:"operator,omitempty"`
	Quantifier plan.Quantifier `json:"quantifier,omitempty"`
	Value      *wireSymbol     `json:"value,omitempty"`
}

type wireSubqueryAssignment struct {
	Output wireSymbol        `json:"output"`
	Set    wireSetExpression `json:"set"`
}

type wireOrderingTerm struct {
	Symbol     wireSymbol `json:"symbol"`
	Descending bool       `json:"descending,omitempty"`
}

type wireFunction struct {
	Name          string      `json:"name"`
	ArgumentTypes []plan.Type `json:"argument_types,omitempty"`
	ReturnType    plan.Type   `json:"return_type"`
}

type wireAggregation struct {
	Output    wireSymbol         `json:"output"`
	Function  wireFunction       `json:"function"`
	Arguments []*wireExpression  `json:"arguments,omitempty"`
	Distinct  bool               `json:"distinct,omitempty"`
	Filter    *wireExpression    `json:"filter,omitempty"`
	OrderBy   []wireOrderingTerm `json:"order_by,omitempty"`
	Mask      *wireSymbol        `json:"mask,omitempty"`
}

type wireNode struct {
	Kind string `json:"kind"`

	// values
	Outputs []wireSymbol        `json:"outputs,omitempty"`
	Rows    [][]*wireExpression `json:"rows,omitempty"`

	// filter, project, aggregation, assign_unique_id
	Source      *wireNode        `json:"source,omitempty"`
	Predicate   *wireExpression  `json:"predicate,omitempty"`
	Assignments []wireAssignment `json:"assignments,omitempty"`

	// join
	JoinKind     plan.JoinKind    `json:"join_kind,omitempty"`
	Left         *wireNode        `json:"left,omitempty"`
	Right        *wireNode        `json:"right,omitempty"`
	Criteria     []wireEquiClause `json:"criteria,omitempty"`
	LeftOutputs  []wireSymbol     `json:"left_outputs,omitempty"`
	RightOutputs []wireSymbol     `json:"right_outputs,omitempty"`
	Filter       *wireExpression  `json:"filter,omitempty"`
	LeftHash     *wireSymbol      `json:"left_hash_symbol,omitempty"`
	RightHash    *wireSymbol      `json:"right_hash_symbol,omitempty"`

	// correlated_join, apply
	Input       *wireNode                `json:"input,omitempty"`
	Subquery    *wireNode                `json:"subquery,omitempty"`
	Correlation []wireSymbol             `json:"correlation,omitempty"`
	Subqueries  []wireSubqueryAssignment `json:"subquery_assignments,omitempty"`

	// aggregation
	Aggregations []wireAggregation    `json:"aggregations,omitempty"`
	GroupingKeys []wireSymbol         `json:"grouping_keys,omitempty"`
	SetCount     int                  `json:"set_count,omitempty"`
	PreGrouped   []wireSymbol         `json:"pre_grouped,omitempty"`
	Step         plan.AggregationStep `json:"step,omitempty"`
	HashSymbol   *wireSymbol          `json:"hash_symbol,omitempty"`

	// assign_unique_id
	IDSymbol *wireSymbol `json:"id_symbol,omitempty"`
}

// EncodePlan serializes a plan tree to its JSON wire form.
func EncodePlan(root plan.Node) ([]byte, error) {
	encoded, err := encodeNode(root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(encoded)
}

// DecodePlan parses the JSON wire form into a plan tree. The result is
// structurally complete but not scope-checked; run plan.Validate on it.
func DecodePlan(data []byte) (plan.Node, error) {
	var wire wireNode
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return decodeNode(&wire)
}

func encodeSymbol(s plan.Symbol) wireSymbol {
	return wireSymbol{Name: s.Name, Type: s.Type}
}

func encodeSymbols(symbols []plan.Symbol) []wireSymbol {
	if symbols == nil {
		return nil
	}
	out := make([]wireSymbol, len(symbols))
	for i, s := range symbols {
		out[i] = encodeSymbol(s)
	}
	return out
}

func encodeSymbolPtr(s *plan.Symbol) *wireSymbol {
	if s == nil {
		return nil
	}
	w := encodeSymbol(*s)
	return &w
}

func decodeSymbol(w wireSymbol) plan.Symbol {
	return plan.Symbol{Name: w.Name, Type: w.Type}
}

func decodeSymbols(wires []wireSymbol) []plan.Symbol {
	if wires == nil {
		return nil
	}
	out := make([]plan.Symbol, len(wires))
	for i, w := range wires {
		out[i] = decodeSymbol(w)
	}
	return out
}

func decodeSymbolPtr(w *wireSymbol) *plan.Symbol {
	if w == nil {
		return nil
	}
	s := decodeSymbol(*w)
	return &s
}

func encodeExpression(expr plan.Expression) (*wireExpression, error) {
	switch e := expr.(type) {
	case nil:
		return nil, nil
	case *plan.SymbolReference:
		symbol := encodeSymbol(e.Symbol)
		return &wireExpression{Kind: "symbol", Symbol: &symbol}, nil
	case *plan.Literal:
		return &wireExpression{Kind: "literal", Type: e.Type, Value: e.Value}, nil
	case *plan.Comparison:
		left, err := encodeExpression(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := encodeExpression(e.Right)
		if err != nil {
			return nil, err
		}
		return &wireExpression{Kind: "comparison", Operator: string(e.Operator), Left: left, Right: right}, nil
	case *plan.Cast:
		inner, err := encodeExpression(e.Inner)
		if err != nil {
			return nil, err
		}
		return &wireExpression{Kind: "cast", Inner: inner, Target: e.Target}, nil
	case *plan.SimpleCase:
		operand, err := encodeExpression(e.Operand)
		if err != nil {
			return nil, err
		}
		whens, err := encodeWhens(e.Whens)
		if err != nil {
			return nil, err
		}
		dflt, err := encodeExpression(e.Default)
		if err != nil {
			return nil, err
		}
		return &wireExpression{Kind: "simple_case", Operand: operand, Whens: whens, Default: dflt}, nil
	case *plan.SearchedCase:
		whens, err := encodeWhens(e.Whens)
		if err != nil {
			return nil, err
		}
		dflt, err := encodeExpression(e.Default)
		if err != nil {
			return nil, err
		}
		return &wireExpression{Kind: "searched_case", Whens: whens, Default: dflt}, nil
	case *plan.Logical:
		terms := make([]*wireExpression, len(e.Terms))
		for i, term := range e.Terms {
			encoded, err := encodeExpression(term)
			if err != nil {
				return nil, err
			}
			terms[i] = encoded
		}
		return &wireExpression{Kind: "logical", Operator: string(e.Operator), Terms: terms}, nil
	default:
		return nil, fmt.Errorf("encode plan: unhandled expression kind %T", expr)
	}
}

func encodeWhens(whens []plan.WhenClause) ([]wireWhen, error) {
	out := make([]wireWhen, len(whens))
	for i, w := range whens {
		condition, err := encodeExpression(w.Condition)
		if err != nil {
			return nil, err
		}
		result, err := encodeExpression(w.Result)
		if err != nil {
			return nil, err
		}
		out[i] = wireWhen{Condition: condition, Result: result}
	}
	return out, nil
}

func decodeExpression(w *wireExpression) (plan.Expression, error) {
	if w == nil {
		return nil, nil
	}
	switch w.Kind {
	case "symbol":
		if w.Symbol == nil {
			return nil, fmt.Errorf("decode plan: symbol expression missing symbol")
		}
		return decodeSymbol(*w.Symbol).Ref(), nil
	case "literal":
		return &plan.Literal{Type: w.Type, Value: w.Value}, nil
	case "comparison":
		left, err := decodeExpression(w.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpression(w.Right)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, fmt.Errorf("decode plan: comparison missing operand")
		}
		return &plan.Comparison{Operator: plan.ComparisonOperator(w.Operator), Left: left, Right: right}, nil
	case "cast":
		inner, err := decodeExpression(w.Inner)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, fmt.Errorf("decode plan: cast missing inner expression")
		}
		return &plan.Cast{Inner: inner, Target: w.Target}, nil
	case "simple_case":
		operand, err := decodeExpression(w.Operand)
		if err != nil {
			return nil, err
		}
		whens, err := decodeWhens(w.Whens)
		if err != nil {
			return nil, err
		}
		dflt, err := decodeExpression(w.Default)
		if err != nil {
			return nil, err
		}
		return &plan.SimpleCase{Operand: operand, Whens: whens, Default: dflt}, nil
	case "searched_case":
		whens, err := decodeWhens(w.Whens)
		if err != nil {
			return nil, err
		}
		dflt, err := decodeExpression(w.Default)
		if err != nil {
			return nil, err
		}
		return &plan.SearchedCase{Whens: whens, Default: dflt}, nil
	case "logical":
		terms := make([]plan.Expression, len(w.Terms))
		for i, term := range w.Terms {
			decoded, err := decodeExpression(term)
			if err != nil {
				return nil, err
			}
			terms[i] = decoded
		}
		return &plan.Logical{Operator: plan.LogicalOperator(w.Operator), Terms: terms}, nil
	default:
		return nil, fmt.Errorf("decode plan: unknown expression kind %q", w.Kind)
	}
}

func decodeWhens(wires []wireWhen) ([]plan.WhenClause, error) {
	out := make([]plan.WhenClause, len(wires))
	for i, w := range wires {
		condition, err := decodeExpression(w.Condition)
		if err != nil {
			return nil, err
		}
		result, err := decodeExpression(w.Result)
		if err != nil {
			return nil, err
		}
		out[i] = plan.WhenClause{Condition: condition, Result: result}
	}
	return out, nil
}

func encodeNode(node plan.Node) (*wireNode, error) {
	switch n := node.(type) {
	case *plan.ValuesNode:
		rows := make([][]*wireExpression, len(n.Rows))
		for i, row := range n.Rows {
			encoded := make([]*wireExpression, len(row))
			for j, expr := range row {
				e, err := encodeExpression(expr)
				if err != nil {
					return nil, err
				}
				encoded[j] = e
			}
			rows[i] = encoded
		}
		return &wireNode{Kind: "values", Outputs: encodeSymbols(n.Outputs), Rows: rows}, nil

	case *plan.FilterNode:
		source, err := encodeNode(n.Source)
		if err != nil {
			return nil, err
		}
		predicate, err := encodeExpression(n.Predicate)
		if err != nil {
			return nil, err
		}
		return &wireNode{Kind: "filter", Source: source, Predicate: predicate}, nil

	case *plan.ProjectNode:
		source, err := encodeNode(n.Source)
		if err != nil {
			return nil, err
		}
		assignments, err := encodeAssignments(n.Assignments)
		if err != nil {
			return nil, err
		}
		return &wireNode{Kind: "project", Source: source, Assignments: assignments}, nil

	case *plan.JoinNode:
		left, err := encodeNode(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := encodeNode(n.Right)
		if err != nil {
			return nil, err
		}
		filter, err := encodeExpression(n.Filter)
		if err != nil {
			return nil, err
		}
		criteria := make([]wireEquiClause, len(n.Criteria))
		for i, c := range n.Criteria {
			criteria[i] = wireEquiClause{Left: encodeSymbol(c.Left), Right: encodeSymbol(c.Right)}
		}
		return &wireNode{
			Kind:         "join",
			JoinKind:     n.Kind,
			Left:         left,
			Right:        right,
			Criteria:     criteria,
			LeftOutputs:  encodeSymbols(n.LeftOutputs),
			RightOutputs: encodeSymbols(n.RightOutputs),
			Filter:       filter,
			LeftHash:     encodeSymbolPtr(n.LeftHashSym),
			RightHash:    encodeSymbolPtr(n.RightHashSym),
		}, nil

	case *plan.CorrelatedJoinNode:
		input, err := encodeNode(n.Input)
		if err != nil {
			return nil, err
		}
		subquery, err := encodeNode(n.Subquery)
		if err != nil {
			return nil, err
		}
		filter, err := encodeExpression(n.Filter)
		if err != nil {
			return nil, err
		}
		return &wireNode{
			Kind:        "correlated_join",
			JoinKind:    n.Kind,
			Input:       input,
			Subquery:    subquery,
			Correlation: encodeSymbols(n.Correlation),
			Filter:      filter,
		}, nil

	case *plan.ApplyNode:
		input, err := encodeNode(n.Input)
		if err != nil {
			return nil, err
		}
		subquery, err := encodeNode(n.Subquery)
		if err != nil {
			return nil, err
		}
		assignments := make([]wireSubqueryAssignment, len(n.Assignments))
		for i, a := range n.Assignments {
			set, err := encodeSetExpression(a.Set)
			if err != nil {
				return nil, err
			}
			assignments[i] = wireSubqueryAssignment{Output: encodeSymbol(a.Output), Set: set}
		}
		return &wireNode{
			Kind:        "apply",
			Input:       input,
			Subquery:    subquery,
			Correlation: encodeSymbols(n.Correlation),
			Subqueries:  assignments,
		}, nil

	case *plan.AggregationNode:
		source, err := encodeNode(n.Source)
		if err != nil {
			return nil, err
		}
		aggregations := make([]wireAggregation, len(n.Aggregations))
		for i, a := range n.Aggregations {
			encoded, err := encodeAggregation(a)
			if err != nil {
				return nil, err
			}
			aggregations[i] = encoded
		}
		return &wireNode{
			Kind:         "aggregation",
			Source:       source,
			Aggregations: aggregations,
			GroupingKeys: encodeSymbols(n.Grouping.Keys),
			SetCount:     n.Grouping.SetCount,
			PreGrouped:   encodeSymbols(n.PreGrouped),
			Step:         n.Step,
			HashSymbol:   encodeSymbolPtr(n.HashSym),
		}, nil

	case *plan.AssignUniqueIDNode:
		source, err := encodeNode(n.Source)
		if err != nil {
			return nil, err
		}
		id := encodeSymbol(n.IDSymbol)
		return &wireNode{Kind: "assign_unique_id", Source: source, IDSymbol: &id}, nil

	default:
		return nil, fmt.Errorf("encode plan: unhandled node kind %T", node)
	}
}

func encodeAssignments(assignments plan.Assignments) ([]wireAssignment, error) {
	out := make([]wireAssignment, len(assignments))
	for i, a := range assignments {
		value, err := encodeExpression(a.Value)
		if err != nil {
			return nil, err
		}
		out[i] = wireAssignment{Output: encodeSymbol(a.Output), Value: value}
	}
	return out, nil
}

func encodeSetExpression(set plan.SetExpression) (wireSetExpression, error) {
	switch s := set.(type) {
	case *plan.QuantifiedComparison:
		value := encodeSymbol(s.Value)
		return wireSetExpression{
			Kind:       "quantified_comparison",
			Operator:   string(s.Operator),
			Quantifier: s.Quantifier,
			Value:      &value,
		}, nil
	case *plan.ExistsPredicate:
		return wireSetExpression{Kind: "exists"}, nil
	case *plan.InPredicate:
		value := encodeSymbol(s.Value)
		return wireSetExpression{Kind: "in", Value: &value}, nil
	default:
		return wireSetExpression{}, fmt.Errorf("encode plan: unhandled set expression %T", set)
	}
}

func encodeAggregation(a plan.AggregationAssignment) (wireAggregation, error) {
	arguments := make([]*wireExpression, len(a.Aggregation.Arguments))
	for i, arg := range a.Aggregation.Arguments {
		encoded, err := encodeExpression(arg)
		if err != nil {
			return wireAggregation{}, err
		}
		arguments[i] = encoded
	}
	filter, err := encodeExpression(a.Aggregation.Filter)
	if err != nil {
		return wireAggregation{}, err
	}
	orderBy := make([]wireOrderingTerm, len(a.Aggregation.OrderBy))
	for i, term := range a.Aggregation.OrderBy {
		orderBy[i] = wireOrderingTerm{Symbol: encodeSymbol(term.Symbol), Descending: term.Descending}
	}
	return wireAggregation{
		Output: encodeSymbol(a.Output),
		Function: wireFunction{
			Name:          a.Aggregation.Function.Name,
			ArgumentTypes: a.Aggregation.Function.ArgumentTypes,
			ReturnType:    a.Aggregation.Function.ReturnType,
		},
		Arguments: arguments,
		Distinct:  a.Aggregation.Distinct,
		Filter:    filter,
		OrderBy:   orderBy,
		Mask:      encodeSymbolPtr(a.Aggregation.Mask),
	}, nil
}

func decodeNode(w *wireNode) (plan.Node, error) {
	if w == nil {
		return nil, fmt.Errorf("decode plan: missing node")
	}
	switch w.Kind {
	case "values":
		if len(w.Rows) == 0 {
			return &plan.ValuesNode{Outputs: decodeSymbols(w.Outputs)}, nil
		}
		rows := make([][]plan.Expression, len(w.Rows))
		for i, row := range w.Rows {
			decoded := make([]plan.Expression, len(row))
			for j, expr := range row {
				e, err := decodeExpression(expr)
				if err != nil {
					return nil, err
				}
				decoded[j] = e
			}
			rows[i] = decoded
		}
		return &plan.ValuesNode{Outputs: decodeSymbols(w.Outputs), Rows: rows}, nil

	case "filter":
		source, err := decodeNode(w.Source)
		if err != nil {
			return nil, err
		}
		predicate, err := decodeExpression(w.Predicate)
		if err != nil {
			return nil, err
		}
		if predicate == nil {
			return nil, fmt.Errorf("decode plan: filter missing predicate")
		}
		return &plan.FilterNode{Source: source, Predicate: predicate}, nil

	case "project":
		source, err := decodeNode(w.Source)
		if err != nil {
			return nil, err
		}
		assignments, err := decodeAssignments(w.Assignments)
		if err != nil {
			return nil, err
		}
		return &plan.ProjectNode{Source: source, Assignments: assignments}, nil

	case "join":
		left, err := decodeNode(w.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(w.Right)
		if err != nil {
			return nil, err
		}
		filter, err := decodeExpression(w.Filter)
		if err != nil {
			return nil, err
		}
		var criteria []plan.EquiJoinClause
		for _, c := range w.Criteria {
			criteria = append(criteria, plan.EquiJoinClause{Left: decodeSymbol(c.Left), Right: decodeSymbol(c.Right)})
		}
		return &plan.JoinNode{
			Kind:         w.JoinKind,
			Left:         left,
			Right:        right,
			Criteria:     criteria,
			LeftOutputs:  decodeSymbols(w.LeftOutputs),
			RightOutputs: decodeSymbols(w.RightOutputs),
			Filter:       filter,
			LeftHashSym:  decodeSymbolPtr(w.LeftHash),
			RightHashSym: decodeSymbolPtr(w.RightHash),
		}, nil

	case "correlated_join":
		input, err := decodeNode(w.Input)
		if err != nil {
			return nil, err
		}
		subquery, err := decodeNode(w.Subquery)
		if err != nil {
			return nil, err
		}
		filter, err := decodeExpression(w.Filter)
		if err != nil {
			return nil, err
		}
		return &plan.CorrelatedJoinNode{
			Input:       input,
			Subquery:    subquery,
			Correlation: decodeSymbols(w.Correlation),
			Kind:        w.JoinKind,
			Filter:      filter,
		}, nil

	case "apply":
		input, err := decodeNode(w.Input)
		if err != nil {
			return nil, err
		}
		subquery, err := decodeNode(w.Subquery)
		if err != nil {
			return nil, err
		}
		var assignments []plan.SubqueryAssignment
		for _, a := range w.Subqueries {
			set, err := decodeSetExpression(a.Set)
			if err != nil {
				return nil, err
			}
			assignments = append(assignments, plan.SubqueryAssignment{Output: decodeSymbol(a.Output), Set: set})
		}
		return &plan.ApplyNode{
			Input:       input,
			Subquery:    subquery,
			Correlation: decodeSymbols(w.Correlation),
			Assignments: assignments,
		}, nil

	case "aggregation":
		source, err := decodeNode(w.Source)
		if err != nil {
			return nil, err
		}
		var aggregations []plan.AggregationAssignment
		for _, a := range w.Aggregations {
			decoded, err := decodeAggregation(a)
			if err != nil {
				return nil, err
			}
			aggregations = append(aggregations, decoded)
		}
		setCount := w.SetCount
		if setCount == 0 {
			setCount = 1
		}
		return &plan.AggregationNode{
			Source:       source,
			Aggregations: aggregations,
			Grouping:     plan.GroupingSets{Keys: decodeSymbols(w.GroupingKeys), SetCount: setCount},
			PreGrouped:   decodeSymbols(w.PreGrouped),
			Step:         w.Step,
			HashSym:      decodeSymbolPtr(w.HashSymbol),
		}, nil

	case "assign_unique_id":
		source, err := decodeNode(w.Source)
		if err != nil {
			return nil, err
		}
		if w.IDSymbol == nil {
			return nil, fmt.Errorf("decode plan: assign_unique_id missing id symbol")
		}
		return &plan.AssignUniqueIDNode{Source: source, IDSymbol: decodeSymbol(*w.IDSymbol)}, nil

	default:
		return nil, fmt.Errorf("decode plan: unknown node kind %q", w.Kind)
	}
}

func decodeAssignments(wires []wireAssignment) (plan.Assignments, error) {
	out := make(plan.Assignments, len(wires))
	for i, a := range wires {
		value, err := decodeExpression(a.Value)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, fmt.Errorf("decode plan: assignment %q missing value", a.Output.Name)
		}
		out[i] = plan.Assignment{Output: decodeSymbol(a.Output), Value: value}
	}
	return out, nil
}

func decodeSetExpression(w wireSetExpression) (plan.SetExpression, error) {
	switch w.Kind {
	case "quantified_comparison":
		if w.Value == nil {
			return nil, fmt.Errorf("decode plan: quantified comparison missing value symbol")
		}
		return &plan.QuantifiedComparison{
			Operator:   plan.ComparisonOperator(w.Operator),
			Quantifier: w.Quantifier,
			Value:      decodeSymbol(*w.Value),
		}, nil
	case "exists":
		return &plan.ExistsPredicate{}, nil
	case "in":
		if w.Value == nil {
			return nil, fmt.Errorf("decode plan: in predicate missing value symbol")
		}
		return &plan.InPredicate{Value: decodeSymbol(*w.Value)}, nil
	default:
		return nil, fmt.Errorf("decode plan: unknown set expression kind %q", w.Kind)
	}
}

func decodeAggregation(w wireAggregation) (plan.AggregationAssignment, error) {
	arguments := make([]plan.Expression, len(w.Arguments))
	for i, arg := range w.Arguments {
		decoded, err := decodeExpression(arg)
		if err != nil {
			return plan.AggregationAssignment{}, err
		}
		arguments[i] = decoded
	}
	filter, err := decodeExpression(w.Filter)
	if err != nil {
		return plan.AggregationAssignment{}, err
	}
	orderBy := make([]plan.OrderingTerm, len(w.OrderBy))
	for i, term := range w.OrderBy {
		orderBy[i] = plan.OrderingTerm{Symbol: decodeSymbol(term.Symbol), Descending: term.Descending}
	}
	if len(arguments) == 0 {
		arguments = nil
	}
	if len(orderBy) == 0 {
		orderBy = nil
	}
	return plan.AggregationAssignment{
		Output: decodeSymbol(w.Output),
		Aggregation: plan.Aggregation{
			Function: plan.FunctionHandle{
				Name:          w.Function.Name,
				ArgumentTypes: w.Function.ArgumentTypes,
				ReturnType:    w.Function.ReturnType,
			},
			Arguments: arguments,
			Distinct:  w.Distinct,
			Filter:    filter,
			OrderBy:   orderBy,
			Mask:      decodeSymbolPtr(w.Mask),
		},
	}, nil
}
