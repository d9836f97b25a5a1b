package interpreter

import "github.com/wazebug/wazebug/internal/ast"

// classifier memoizes, per spec.md §4.A, the Infallible and Uninterruptible
// predicates by node identity. Both are computed once per node and reused
// by the compiler when it decides sequence membership (instrumentation.go).
type classifier struct {
	infallible      map[int32]bool
	uninterruptible map[int32]bool
}

func newClassifier() *classifier {
	return &classifier{
		infallible:      make(map[int32]bool),
		uninterruptible: make(map[int32]bool),
	}
}

// Infallible reports whether evaluating n, and everything in its subtree,
// cannot raise a trap.
func (c *classifier) Infallible(n *ast.Node) bool {
	if v, ok := c.infallible[n.ID]; ok {
		return v
	}
	v := c.computeInfallible(n)
	c.infallible[n.ID] = v
	return v
}

// Uninterruptible reports whether evaluating n, and everything in its
// subtree, cannot cede control back to the scheduler.
func (c *classifier) Uninterruptible(n *ast.Node) bool {
	if v, ok := c.uninterruptible[n.ID]; ok {
		return v
	}
	v := c.computeUninterruptible(n)
	c.uninterruptible[n.ID] = v
	return v
}

func (c *classifier) computeInfallible(n *ast.Node) bool {
	switch n.Kind {
	case ast.KindLoad, ast.KindStore, ast.KindUnreachable, ast.KindCall, ast.KindCallIndirect:
		// Loads/stores trap on out-of-bounds access; calls are fallible
		// because callees are unknown statically (conservatively so even
		// for a direct call to a function that happens not to trap).
		return false
	case ast.KindUnary:
		// Open question (spec.md §9): the blanket "unary ops are
		// infallible" approximation is wrong for float-to-int truncation,
		// which traps on NaN or an out-of-range value. Classify those as
		// fallible; every other unary op is infallible in itself.
		if isTruncOp(n.Op) {
			return false
		}
	}
	for _, child := range n.AllChildren() {
		if child != nil && !c.Infallible(child) {
			return false
		}
	}
	return true
}

func (c *classifier) computeUninterruptible(n *ast.Node) bool {
	switch n.Kind {
	case ast.KindCall, ast.KindCallIndirect:
		// May suspend into an async host import.
		return false
	case ast.KindUnreachable:
		// Raises a trap, which the spec treats as an interruption path.
		return false
	}
	for _, child := range n.AllChildren() {
		if child != nil && !c.Uninterruptible(child) {
			return false
		}
	}
	return true
}

func isTruncOp(op ast.Opcode) bool {
	switch op {
	case ast.OpI32TruncF32S, ast.OpI32TruncF32U, ast.OpI32TruncF64S, ast.OpI32TruncF64U,
		ast.OpI64TruncF32S, ast.OpI64TruncF32U, ast.OpI64TruncF64S, ast.OpI64TruncF64U:
		return true
	}
	return false
}
