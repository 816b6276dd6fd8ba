package optimizer

import (
	"fmt"

	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// FunctionResolver resolves a function name and argument types to a
// callable handle. The catalog service implements it in production; it
// must be deterministic within one optimization pass. A resolution failure
// is fatal to the pass and is never retried here.
type FunctionResolver interface {
	ResolveFunction(name string, argTypes []plan.Type) (plan.FunctionHandle, error)
}

// BuiltinResolver resolves the built-in aggregate functions the rewrite
// rules introduce (min, max, count, sum, avg). It stands in for the
// catalog service in tests and in the standalone planner service.
type BuiltinResolver struct{}

// NewBuiltinResolver creates a resolver for built-in aggregates.
func NewBuiltinResolver() *BuiltinResolver {
	return &BuiltinResolver{}
}

// ResolveFunction resolves a built-in aggregate by name and argument types.
func (r *BuiltinResolver) ResolveFunction(name string, argTypes []plan.Type) (plan.FunctionHandle, error) {
	switch name {
	case "count":
		// count() counts rows; count(x) counts non-null values.
		if len(argTypes) > 1 {
			return plan.FunctionHandle{}, fmt.Errorf("function count takes at most one argument, got %d", len(argTypes))
		}
		return handle(name, argTypes, plan.TypeBigint), nil
	case "min", "max":
		if len(argTypes) != 1 {
			return plan.FunctionHandle{}, fmt.Errorf("function %s takes one argument, got %d", name, len(argTypes))
		}
		if !argTypes[0].Orderable() {
			return plan.FunctionHandle{}, fmt.Errorf("function %s requires an orderable argument, got %s", name, argTypes[0])
		}
		return handle(name, argTypes, argTypes[0]), nil
	case "sum":
		if len(argTypes) != 1 {
			return plan.FunctionHandle{}, fmt.Errorf("function sum takes one argument, got %d", len(argTypes))
		}
		return handle(name, argTypes, argTypes[0]), nil
	case "avg":
		if len(argTypes) != 1 {
			return plan.FunctionHandle{}, fmt.Errorf("function avg takes one argument, got %d", len(argTypes))
		}
		return handle(name, argTypes, plan.TypeDouble), nil
	default:
		return plan.FunctionHandle{}, fmt.Errorf("function %s(%v) not registered", name, argTypes)
	}
}

func handle(name string, argTypes []plan.Type, returnType plan.Type) plan.FunctionHandle {
	return plan.FunctionHandle{Name: name, ArgumentTypes: argTypes, ReturnType: returnType}
}
