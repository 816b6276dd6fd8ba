package plan

import "fmt"

// MalformedPlanError reports a plan node violating a structural invariant:
// a dangling symbol reference, an output-symbol mismatch, or malformed row
// shapes. It aborts the optimization pass that encountered it.
type MalformedPlanError struct {
	Node   string
	Detail string
}

func (e *MalformedPlanError) Error() string {
	return fmt.Sprintf("malformed plan: %s: %s", e.Node, e.Detail)
}

func malformed(node string, format string, args ...interface{}) error {
	return &MalformedPlanError{Node: node, Detail: fmt.Sprintf(format, args...)}
}
