package optimizer

import "fmt"

// UnsupportedConstructError reports that a rule reached an operator or
// quantifier combination it does not implement. It indicates an upstream
// bug, not a user error: the analyzer guarantees only supported constructs
// reach the optimizer.
type UnsupportedConstructError struct {
	Rule      string
	Construct string
}

func (e *UnsupportedConstructError) Error() string {
	return fmt.Sprintf("optimizer: rule %s: unsupported construct: %s", e.Rule, e.Construct)
}

// NonConvergenceError reports that the rewrite engine exhausted its pass
// budget without reaching a fixpoint. It indicates a rule set that does
// not converge, an internal optimizer fault.
type NonConvergenceError struct {
	Passes int
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("optimizer: plan did not stabilize after %d passes", e.Passes)
}
