package optimizer

import (
	"go.uber.org/zap"

	"github.com/loomdb/loomdb/pkg/common/metrics"
	"github.com/loomdb/loomdb/pkg/planner/plan"
)

// Context carries the state a rule may use: the symbol allocator that
// owns this run's fresh symbols, the function resolver, and a logger. One
// Context belongs to exactly one optimization run; it is never shared
// across runs or goroutines.
type Context struct {
	Symbols  *plan.SymbolAllocator
	Metadata FunctionResolver
	Logger   *zap.Logger
}

// NewContext creates a rewrite context for one optimization run.
func NewContext(symbols *plan.SymbolAllocator, resolver FunctionResolver, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{Symbols: symbols, Metadata: resolver, Logger: logger}
}

// Rule transforms a single plan node into a replacement subtree.
//
// Apply returns (replacement, true, nil) when the rule fires,
// (nil, false, nil) when it declines, and a non-nil error only for genuine
// contract violations. Rules must be pure apart from allocator use: same
// node and context, same result. A declining rule must not allocate
// symbols or build nodes.
type Rule interface {
	// Name returns the rule name used in logs and metrics.
	Name() string

	// Apply attempts to apply the rule to a plan node.
	Apply(node plan.Node, ctx *Context) (plan.Node, bool, error)
}

// DefaultMaxPasses bounds the fixpoint loop. The rule set shipped here
// stabilizes within plan depth + 2 passes on any finite plan, so hitting
// this cap means a rule does not converge.
const DefaultMaxPasses = 25

// Engine applies a rule set to a plan tree until a fixpoint.
//
// Traversal is strictly post-order: children are fully rewritten before a
// rule sees their parent. Within one pass, the first rule (in registration
// order) that fires at a node wins that node for the pass. Passes repeat
// over the whole tree until one pass makes no replacement.
type Engine struct {
	Rules     []Rule
	MaxPasses int
	Logger    *zap.Logger
	Metrics   *metrics.MetricsCollector
}

// NewEngine creates an engine with the given rules and default settings.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{
		Rules:     rules,
		MaxPasses: DefaultMaxPasses,
		Logger:    zap.NewNop(),
	}
}

// DefaultRules returns the standard rewrite rule set in application order.
func DefaultRules() []Rule {
	return []Rule{
		NewRewriteQuantifiedComparison(),
		NewDecorrelateGlobalAggregation(),
		NewPushPartialAggregationThroughJoin(),
	}
}

// Optimize rewrites root to a fixpoint and returns the stable plan. The
// input tree is never mutated; failures abort the whole optimization.
func (e *Engine) Optimize(root plan.Node, ctx *Context) (plan.Node, error) {
	result, _, err := e.OptimizeWithStats(root, ctx)
	return result, err
}

// OptimizeWithStats is Optimize plus the number of passes used to reach
// the fixpoint (including the final pass that observed no change).
func (e *Engine) OptimizeWithStats(root plan.Node, ctx *Context) (plan.Node, int, error) {
	maxPasses := e.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}

	current := root
	for pass := 1; pass <= maxPasses; pass++ {
		rewritten, changed, err := e.rewriteNode(current, ctx)
		if err != nil {
			return nil, pass, err
		}
		if !changed {
			return rewritten, pass, nil
		}
		current = rewritten
	}
	return nil, maxPasses, &NonConvergenceError{Passes: maxPasses}
}

// rewriteNode rewrites children first, rebuilds the node if any child
// changed, then offers the node to each rule in order.
func (e *Engine) rewriteNode(node plan.Node, ctx *Context) (plan.Node, bool, error) {
	children := node.Children()
	changed := false
	if len(children) > 0 {
		rewritten := make([]plan.Node, len(children))
		for i, child := range children {
			newChild, childChanged, err := e.rewriteNode(child, ctx)
			if err != nil {
				return nil, false, err
			}
			rewritten[i] = newChild
			changed = changed || childChanged
		}
		if changed {
			rebuilt, err := plan.ReplaceChildren(node, rewritten)
			if err != nil {
				return nil, false, err
			}
			node = rebuilt
		}
	}

	for _, rule := range e.Rules {
		replacement, applied, err := rule.Apply(node, ctx)
		if err != nil {
			return nil, false, err
		}
		if applied {
			e.Logger.Debug("rewrite rule applied",
				zap.String("rule", rule.Name()),
				zap.String("node", node.String()))
			e.Metrics.RecordRuleApplication(rule.Name())
			return replacement, true, nil
		}
	}
	return node, changed, nil
}
