package plan

import (
	"fmt"
	"strings"
)

// ComparisonOperator enumerates the comparison operators the optimizer
// understands. The analyzer guarantees no other operator reaches a plan.
type ComparisonOperator string

const (
	OpEqual          ComparisonOperator = "="
	OpNotEqual       ComparisonOperator = "<>"
	OpLessThan       ComparisonOperator = "<"
	OpLessOrEqual    ComparisonOperator = "<="
	OpGreaterThan    ComparisonOperator = ">"
	OpGreaterOrEqual ComparisonOperator = ">="
)

// LogicalOperator combines boolean terms.
type LogicalOperator string

const (
	OpAnd LogicalOperator = "and"
	OpOr  LogicalOperator = "or"
)

// Expression is a scalar expression attached to plan nodes. The variant
// set is closed; rules switch exhaustively over it.
type Expression interface {
	fmt.Stringer
	isExpression()
}

// SymbolReference resolves to a symbol produced by a child node.
type SymbolReference struct {
	Symbol Symbol
}

func (e *SymbolReference) isExpression() {}
func (e *SymbolReference) String() string {
	return e.Symbol.Name
}

// Literal is a typed constant. A nil Value is SQL NULL.
type Literal struct {
	Type  Type
	Value interface{}
}

func (e *Literal) isExpression() {}
func (e *Literal) String() string {
	if e.Value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", e.Value)
}

// Comparison applies a comparison operator to two scalar operands.
type Comparison struct {
	Operator ComparisonOperator
	Left     Expression
	Right    Expression
}

func (e *Comparison) isExpression() {}
func (e *Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Operator, e.Right)
}

// Cast converts the inner expression to the target type.
type Cast struct {
	Inner  Expression
	Target Type
}

func (e *Cast) isExpression() {}
func (e *Cast) String() string {
	return fmt.Sprintf("cast(%s as %s)", e.Inner, e.Target)
}

// WhenClause is one branch of a case expression.
type WhenClause struct {
	Condition Expression
	Result    Expression
}

// SimpleCase compares an operand against each branch condition.
type SimpleCase struct {
	Operand Expression
	Whens   []WhenClause
	Default Expression
}

func (e *SimpleCase) isExpression() {}
func (e *SimpleCase) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "case %s", e.Operand)
	for _, w := range e.Whens {
		fmt.Fprintf(&b, " when %s then %s", w.Condition, w.Result)
	}
	if e.Default != nil {
		fmt.Fprintf(&b, " else %s", e.Default)
	}
	b.WriteString(" end")
	return b.String()
}

// SearchedCase evaluates each branch condition as a boolean.
type SearchedCase struct {
	Whens   []WhenClause
	Default Expression
}

func (e *SearchedCase) isExpression() {}
func (e *SearchedCase) String() string {
	var b strings.Builder
	b.WriteString("case")
	for _, w := range e.Whens {
		fmt.Fprintf(&b, " when %s then %s", w.Condition, w.Result)
	}
	if e.Default != nil {
		fmt.Fprintf(&b, " else %s", e.Default)
	}
	b.WriteString(" end")
	return b.String()
}

// Logical combines boolean terms with AND or OR.
type Logical struct {
	Operator LogicalOperator
	Terms    []Expression
}

func (e *Logical) isExpression() {}
func (e *Logical) String() string {
	parts := make([]string, len(e.Terms))
	for i, t := range e.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " "+string(e.Operator)+" ") + ")"
}

// True returns the boolean true literal.
func True() *Literal {
	return &Literal{Type: TypeBoolean, Value: true}
}

// False returns the boolean false literal.
func False() *Literal {
	return &Literal{Type: TypeBoolean, Value: false}
}

// NullBoolean returns NULL cast to boolean, the three-valued-logic
// "unknown" result.
func NullBoolean() Expression {
	return &Cast{Inner: &Literal{Type: TypeUnknown, Value: nil}, Target: TypeBoolean}
}

// IsTrueLiteral reports whether expr is the constant true.
func IsTrueLiteral(expr Expression) bool {
	lit, ok := expr.(*Literal)
	return ok && lit.Type == TypeBoolean && lit.Value == true
}

// ExtractConjuncts flattens nested AND expressions into a list of terms.
func ExtractConjuncts(expr Expression) []Expression {
	if expr == nil {
		return nil
	}
	if logical, ok := expr.(*Logical); ok && logical.Operator == OpAnd {
		var out []Expression
		for _, term := range logical.Terms {
			out = append(out, ExtractConjuncts(term)...)
		}
		return out
	}
	return []Expression{expr}
}

// CombineConjuncts joins terms with AND, dropping constant true terms and
// flattening nested conjunctions. No terms yields the true literal.
func CombineConjuncts(terms ...Expression) Expression {
	return combine(OpAnd, terms)
}

// CombineDisjuncts joins terms with OR, flattening nested disjunctions.
// No terms yields the false literal.
func CombineDisjuncts(terms ...Expression) Expression {
	return combine(OpOr, terms)
}

func combine(op LogicalOperator, terms []Expression) Expression {
	var flat []Expression
	for _, term := range terms {
		if term == nil {
			continue
		}
		if logical, ok := term.(*Logical); ok && logical.Operator == op {
			flat = append(flat, logical.Terms...)
			continue
		}
		if op == OpAnd && IsTrueLiteral(term) {
			continue
		}
		flat = append(flat, term)
	}
	switch len(flat) {
	case 0:
		if op == OpAnd {
			return True()
		}
		return False()
	case 1:
		return flat[0]
	default:
		return &Logical{Operator: op, Terms: flat}
	}
}

// ExpressionSymbols returns every symbol referenced by expr, in first-use
// order without duplicates.
func ExpressionSymbols(expr Expression) []Symbol {
	var out []Symbol
	seen := make(map[string]struct{})
	var visit func(Expression)
	visit = func(e Expression) {
		switch e := e.(type) {
		case nil:
		case *SymbolReference:
			if _, ok := seen[e.Symbol.Name]; !ok {
				seen[e.Symbol.Name] = struct{}{}
				out = append(out, e.Symbol)
			}
		case *Literal:
		case *Comparison:
			visit(e.Left)
			visit(e.Right)
		case *Cast:
			visit(e.Inner)
		case *SimpleCase:
			visit(e.Operand)
			for _, w := range e.Whens {
				visit(w.Condition)
				visit(w.Result)
			}
			visit(e.Default)
		case *SearchedCase:
			for _, w := range e.Whens {
				visit(w.Condition)
				visit(w.Result)
			}
			visit(e.Default)
		case *Logical:
			for _, t := range e.Terms {
				visit(t)
			}
		}
	}
	visit(expr)
	return out
}
