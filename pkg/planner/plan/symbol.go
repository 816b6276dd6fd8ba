package plan

import (
	"fmt"
	"strings"
)

// Type is the semantic type of a symbol or expression result.
type Type string

const (
	TypeUnknown Type = "unknown"
	TypeBoolean Type = "boolean"
	TypeBigint  Type = "bigint"
	TypeDouble  Type = "double"
	TypeVarchar Type = "varchar"
)

// Orderable reports whether values of this type can be compared with
// ordered operators (and therefore aggregated with min/max).
func (t Type) Orderable() bool {
	switch t {
	case TypeBigint, TypeDouble, TypeVarchar, TypeBoolean:
		return true
	default:
		return false
	}
}

// Symbol is a uniquely named, typed column produced by a plan node.
// Symbols are compared by name; the allocator that minted a symbol
// guarantees the name is unique within one optimization run.
type Symbol struct {
	Name string
	Type Type
}

func (s Symbol) String() string {
	return s.Name
}

// Ref returns a reference to this symbol usable inside expressions.
func (s Symbol) Ref() *SymbolReference {
	return &SymbolReference{Symbol: s}
}

// SymbolAllocator issues fresh symbols with unique names. One allocator
// instance is owned by exactly one optimization run; it is not safe for
// concurrent use and is never shared across runs.
type SymbolAllocator struct {
	taken map[string]struct{}
	next  map[string]int
}

// NewSymbolAllocator creates an allocator with no names taken.
func NewSymbolAllocator() *SymbolAllocator {
	return &SymbolAllocator{
		taken: make(map[string]struct{}),
		next:  make(map[string]int),
	}
}

// NewSymbolAllocatorFor creates an allocator that treats every symbol
// reachable from root as taken, so fresh symbols never collide with
// symbols already present in the plan.
func NewSymbolAllocatorFor(root Node) *SymbolAllocator {
	a := NewSymbolAllocator()
	walk(root, func(n Node) {
		for _, s := range n.OutputSymbols() {
			a.taken[s.Name] = struct{}{}
		}
	})
	return a
}

// New returns a fresh symbol whose name is derived from hint. If hint is
// already taken a numeric suffix is appended.
func (a *SymbolAllocator) New(hint string, typ Type) Symbol {
	hint = sanitizeHint(hint)
	name := hint
	for {
		if _, ok := a.taken[name]; !ok {
			break
		}
		a.next[hint]++
		name = fmt.Sprintf("%s_%d", hint, a.next[hint])
	}
	a.taken[name] = struct{}{}
	return Symbol{Name: name, Type: typ}
}

func sanitizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return "expr"
	}
	return hint
}

func walk(node Node, fn func(Node)) {
	fn(node)
	for _, child := range node.Children() {
		walk(child, fn)
	}
}
