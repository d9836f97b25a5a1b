package interpreter

import (
	"github.com/wazebug/wazebug/api"
	"github.com/wazebug/wazebug/internal/ast"
	"github.com/wazebug/wazebug/internal/wasm"
	"github.com/wazebug/wazebug/sys"
)

// compiledOp is one executable fragment of a compiled function: the
// node it was lowered from (for its breakpoint index and diagnostics),
// whether executing it can touch memory (triggering the dirty-path
// revalidation of spec.md §4.C), and the closure itself.
type compiledOp struct {
	node          *ast.Node
	bpIndex       int
	touchesMemory bool
	qualifies     bool // infallible && uninterruptible: eligible for sequence membership
	exec          func(ec *execContext) error
}

// progUnit is a maximal run of consecutive compiledOps sharing one
// sequence gate (seq >= 0), or a single always-dirty op (seq == -1) —
// spec.md §4.D's grouping, computed once at compile time by buildProgram.
type progUnit struct {
	seq int
	ops []*compiledOp
}

// program is a compiled straight-line instruction sequence: a function
// body, or one arm of a Block/Loop/If.
type program struct {
	units []progUnit
}

// buildProgram groups ops into sequence-gated units. Consecutive
// qualifying ops (infallible && uninterruptible, over their own subtree)
// share one sequence registered with the registry; every other op stands
// alone and always executes on the dirty path.
func buildProgram(reg *debugRegistry, ops []*compiledOp) *program {
	p := &program{}
	i := 0
	for i < len(ops) {
		if !ops[i].qualifies {
			p.units = append(p.units, progUnit{seq: -1, ops: ops[i : i+1]})
			i++
			continue
		}
		j := i
		members := make([]int, 0, 4)
		for j < len(ops) && ops[j].qualifies {
			members = append(members, ops[j].bpIndex)
			j++
		}
		seq := reg.registerSequence(members)
		p.units = append(p.units, progUnit{seq: seq, ops: ops[i:j]})
		i = j
	}
	return p
}

// runProgram executes p against ec, applying spec.md §4.D's clean/dirty
// split per unit: a closed sequence gate skips the per-node spill and
// debugger check entirely; an open gate, or a standalone op, performs
// them for every node in the unit.
func runProgram(ec *execContext, p *program) error {
	for _, u := range p.units {
		dirty := u.seq < 0 || ec.reg.sequenceOpen(u.seq)
		for _, op := range u.ops {
			if dirty {
				ec.frame.loc = op.node
				if ec.debugger != nil && ec.reg.isActive(op.bpIndex) {
					ec.reg.recordHit(op.bpIndex)
					if err := ec.ce.awaitDebugger(ec.debugger); err != nil {
						return err
					}
				}
				if op.touchesMemory {
					ec.refreshMemory()
				}
			}
			if err := op.exec(ec); err != nil {
				return err
			}
		}
	}
	return nil
}

// funcCompiler lowers one function's AST into a compiledFunction. A new
// funcCompiler is used per function; the classifier and debugRegistry are
// shared across all functions of the owning instance/module.
type funcCompiler struct {
	class *classifier
	reg   *debugRegistry

	stack  slotStack
	labels []*labelScope

	funcHasResult bool
	funcResultSlot int
}

// compiledFunction is the engine-ready lowering of one wasm function: how
// many frame slots it needs, its local types, and the program to run.
type compiledFunction struct {
	desc       *wasm.FunctionDescriptor
	maxStack   int
	localTypes []api.ValueType
	body       *program
	resultSlot int
	// fallthroughSlot is where the body's last value lands when control
	// falls off the end without an explicit Return; -1 if the function
	// has no result. The engine copies it into resultSlot on a nil
	// runProgram outcome, mirroring how Block/Loop/If handle fallthrough.
	fallthroughSlot int
	hasResult       bool
}

func compileFunction(class *classifier, reg *debugRegistry, desc *wasm.FunctionDescriptor) *compiledFunction {
	c := &funcCompiler{class: class, reg: reg}
	c.funcHasResult = len(desc.Type.Results) > 0
	if c.funcHasResult {
		c.funcResultSlot = c.stack.push()
	}
	body, finalSlot := c.compileBranch(desc.Body, c.funcHasResult)
	return &compiledFunction{
		desc:            desc,
		maxStack:        c.stack.max,
		localTypes:      desc.LocalTypes(),
		body:            body,
		resultSlot:      c.funcResultSlot,
		fallthroughSlot: finalSlot,
		hasResult:       c.funcHasResult,
	}
}

// compileBranch compiles a statement list into its own program, rewinding
// the virtual stack back to its entry depth when done so sibling branches (an If's Then/Else, a block
// followed by more code) can reuse the same slot numbers. It returns the
// program and, if wantResult, the slot the branch's last value ended up
// in.
func (c *funcCompiler) compileBranch(nodes []*ast.Node, wantResult bool) (*program, int) {
	entryDepth := c.stack.depth()
	var ops []*compiledOp
	for _, n := range nodes {
		ops = append(ops, c.compileNode(n)...)
	}
	finalSlot := -1
	if wantResult {
		finalSlot = c.stack.pop()
	}
	c.stack.truncate(entryDepth)
	return buildProgram(c.reg, ops), finalSlot
}

// compileNode lowers n into a flat, evaluation-ordered slice of
// compiledOps: its operands' ops (recursively), followed by its own.
// Control nodes compile their bodies as separate nested programs instead
// of splicing them into this flat list, since they may execute zero,
// one, or many times.
func (c *funcCompiler) compileNode(n *ast.Node) []*compiledOp {
	switch n.Kind {
	case ast.KindBlock:
		return []*compiledOp{c.compileBlockOrLoop(n, false)}
	case ast.KindLoop:
		return []*compiledOp{c.compileBlockOrLoop(n, true)}
	case ast.KindIf:
		return c.compileIf(n)
	case ast.KindBreak:
		return c.compileBreak(n)
	case ast.KindSwitch:
		return c.compileSwitch(n)
	case ast.KindCall:
		return c.compileCall(n)
	case ast.KindCallIndirect:
		return c.compileCallIndirect(n)
	case ast.KindReturn:
		return c.compileReturn(n)
	}

	var ops []*compiledOp
	for _, operand := range n.Operands() {
		ops = append(ops, c.compileNode(operand)...)
	}
	ops = append(ops, c.compileLeaf(n))
	return ops
}

func (c *funcCompiler) newOp(n *ast.Node, touchesMemory bool, exec func(ec *execContext) error) *compiledOp {
	return &compiledOp{
		node:          n,
		bpIndex:       c.reg.indexFor(n),
		touchesMemory: touchesMemory,
		qualifies:     c.class.Infallible(n) && c.class.Uninterruptible(n),
		exec:          exec,
	}
}

// compileLeaf lowers every node kind whose evaluation is a single step
// over already-compiled operand slots: locals/globals, memory ops,
// numeric ops, select, drop, const, nop, unreachable.
func (c *funcCompiler) compileLeaf(n *ast.Node) *compiledOp {
	switch n.Kind {
	case ast.KindConst:
		slot := c.stack.push()
		bits, t := n.Bits, n.ResultType
		return c.newOp(n, false, func(ec *execContext) error {
			ec.frame.pushValue(slot, t, bits)
			return nil
		})

	case ast.KindNop:
		return c.newOp(n, false, func(ec *execContext) error { return nil })

	case ast.KindUnreachable:
		return c.newOp(n, false, func(ec *execContext) error {
			return sys.NewTrapError(sys.Unreachable, n, "")
		})

	case ast.KindDrop:
		in := c.stack.pop()
		_ = in
		return c.newOp(n, false, func(ec *execContext) error { return nil })

	case ast.KindLocalGet:
		idx, t := n.LocalOrGlobalIndex, n.ResultType
		slot := c.stack.push()
		return c.newOp(n, false, func(ec *execContext) error {
			ec.frame.pushValue(slot, t, ec.frame.locals[idx])
			return nil
		})

	case ast.KindLocalSet:
		idx := n.LocalOrGlobalIndex
		in := c.stack.pop()
		var outSlot int
		tee := n.Tee
		if tee {
			outSlot = c.stack.push()
		}
		t := n.ResultType
		return c.newOp(n, false, func(ec *execContext) error {
			v := ec.frame.stack[in]
			ec.frame.locals[idx] = v
			if tee {
				ec.frame.pushValue(outSlot, t, v)
			}
			return nil
		})

	case ast.KindGlobalGet:
		idx, t := n.LocalOrGlobalIndex, n.ResultType
		slot := c.stack.push()
		return c.newOp(n, false, func(ec *execContext) error {
			ec.frame.pushValue(slot, t, ec.global(idx).Get())
			return nil
		})

	case ast.KindGlobalSet:
		idx := n.LocalOrGlobalIndex
		in := c.stack.pop()
		return c.newOp(n, false, func(ec *execContext) error {
			ec.global(idx).(api.MutableGlobal).Set(ec.frame.stack[in])
			return nil
		})

	case ast.KindLoad:
		ptrSlot := c.stack.pop()
		slot := c.stack.push()
		width, signed, offset, resultIs64 := n.Width, n.Signed, n.Offset, n.ResultType == api.ValueTypeI64
		t := n.ResultType
		return c.newOp(n, true, func(ec *execContext) error {
			v, err := loadValue(ec.mem, uint32(ec.frame.stack[ptrSlot]), offset, width, signed, resultIs64)
			if err != nil {
				return err
			}
			ec.frame.pushValue(slot, t, v)
			return nil
		})

	case ast.KindStore:
		// Operands() is [Ptr, StoreTo], pushed in that order: value is on top.
		valSlot := c.stack.pop()
		ptrSlot := c.stack.pop()
		width, offset := n.Width, n.Offset
		return c.newOp(n, true, func(ec *execContext) error {
			return storeValue(ec.mem, uint32(ec.frame.stack[ptrSlot]), offset, width, ec.frame.stack[valSlot])
		})

	case ast.KindUnary:
		in := c.stack.pop()
		slot := c.stack.push()
		op, t := n.Op, n.ResultType
		fn := unaryOps[op]
		return c.newOp(n, false, func(ec *execContext) error {
			v, err := fn(ec.frame.stack[in])
			if err != nil {
				if te, ok := err.(*sys.TrapError); ok {
					te.Location = n
				}
				return err
			}
			ec.frame.pushValue(slot, t, v)
			return nil
		})

	case ast.KindBinary:
		r := c.stack.pop()
		l := c.stack.pop()
		slot := c.stack.push()
		op, t := n.Op, n.ResultType
		fn := binaryOps[op]
		return c.newOp(n, false, func(ec *execContext) error {
			v, err := fn(ec.frame.stack[l], ec.frame.stack[r])
			if err != nil {
				if te, ok := err.(*sys.TrapError); ok {
					te.Location = n
				}
				return err
			}
			ec.frame.pushValue(slot, t, v)
			return nil
		})

	case ast.KindSelect:
		cond := c.stack.pop()
		elseSlot := c.stack.pop()
		thenSlot := c.stack.pop()
		slot := c.stack.push()
		t := n.ResultType
		return c.newOp(n, false, func(ec *execContext) error {
			if uint32(ec.frame.stack[cond]) != 0 {
				ec.frame.pushValue(slot, t, ec.frame.stack[thenSlot])
			} else {
				ec.frame.pushValue(slot, t, ec.frame.stack[elseSlot])
			}
			return nil
		})

	case ast.KindMemorySize:
		slot := c.stack.push()
		return c.newOp(n, false, func(ec *execContext) error {
			ec.frame.pushValue(slot, api.ValueTypeI32, uint64(ec.mem.Size()/wasm.PageSize))
			return nil
		})

	case ast.KindMemoryGrow:
		deltaSlot := c.stack.pop()
		slot := c.stack.push()
		return c.newOp(n, false, func(ec *execContext) error {
			prev, ok := ec.mem.Grow(uint32(ec.frame.stack[deltaSlot]))
			if !ok {
				ec.frame.pushValue(slot, api.ValueTypeI32, uint64(uint32(0xffffffff)))
				return nil
			}
			ec.refreshMemory()
			ec.frame.pushValue(slot, api.ValueTypeI32, uint64(prev))
			return nil
		})
	}
	panic("interpreter: unhandled node kind in compileLeaf")
}

func (c *funcCompiler) compileBlockOrLoop(n *ast.Node, isLoop bool) *compiledOp {
	entryDepth := c.stack.depth()
	var resultSlot int
	if n.HasResult {
		resultSlot = c.stack.push()
	}
	bodyDepth := c.stack.depth()
	scope := &labelScope{name: n.Label, hasResult: n.HasResult, resultSlot: resultSlot}
	c.labels = append(c.labels, scope)
	bodyProg, finalSlot := c.compileBranch(n.Body, n.HasResult)
	c.labels = c.labels[:len(c.labels)-1]
	c.stack.truncate(bodyDepth)
	_ = entryDepth
	hasResult, label := n.HasResult, n.Label

	var exec func(ec *execContext) error
	if isLoop {
		exec = func(ec *execContext) error {
			for {
				err := runProgram(ec, bodyProg)
				if err == nil {
					if hasResult {
						copyValue(ec.frame, finalSlot, resultSlot)
					}
					return nil
				}
				if isBranchTo(err, label) {
					continue
				}
				return err
			}
		}
	} else {
		exec = func(ec *execContext) error {
			err := runProgram(ec, bodyProg)
			if err == nil {
				if hasResult {
					copyValue(ec.frame, finalSlot, resultSlot)
				}
				return nil
			}
			if isBranchTo(err, label) {
				return nil // value already written to resultSlot by the Break itself.
			}
			return err
		}
	}
	return c.newOp(n, false, exec)
}

func (c *funcCompiler) compileIf(n *ast.Node) []*compiledOp {
	var ops []*compiledOp
	ops = append(ops, c.compileNode(n.Cond)...)
	condSlot := c.stack.pop()

	entryDepth := c.stack.depth()
	var resultSlot int
	if n.HasResult {
		resultSlot = c.stack.push()
	}
	bodyDepth := c.stack.depth()
	thenProg, thenSlot := c.compileBranch(n.Then, n.HasResult)
	c.stack.truncate(bodyDepth)
	elseProg, elseSlot := c.compileBranch(n.Else, n.HasResult)
	c.stack.truncate(bodyDepth)
	_ = entryDepth
	hasResult := n.HasResult

	exec := func(ec *execContext) error {
		cond := ec.frame.stack[condSlot]
		var prog *program
		var finalSlot int
		if uint32(cond) != 0 {
			prog, finalSlot = thenProg, thenSlot
		} else {
			prog, finalSlot = elseProg, elseSlot
		}
		if err := runProgram(ec, prog); err != nil {
			return err
		}
		if hasResult {
			copyValue(ec.frame, finalSlot, resultSlot)
		}
		return nil
	}
	ops = append(ops, c.newOp(n, false, exec))
	return ops
}

func (c *funcCompiler) findLabel(name string) *labelScope {
	for i := len(c.labels) - 1; i >= 0; i-- {
		if c.labels[i].name == name {
			return c.labels[i]
		}
	}
	panic("interpreter: unresolved branch target " + name)
}

func (c *funcCompiler) compileBreak(n *ast.Node) []*compiledOp {
	var ops []*compiledOp
	var condSlot int
	hasCond := n.Cond != nil
	if hasCond {
		ops = append(ops, c.compileNode(n.Cond)...)
		condSlot = c.stack.pop()
	}
	scope := c.findLabel(n.Target)
	srcSlot := -1
	if scope.hasResult {
		srcSlot = c.stack.slots[c.stack.depth()-1] // peek: value stays conceptually on the stack until the branch unwinds it.
	}
	target := n.Target
	resultSlot := scope.resultSlot
	wantResult := scope.hasResult
	exec := func(ec *execContext) error {
		if hasCond && uint32(ec.frame.stack[condSlot]) == 0 {
			return nil
		}
		if wantResult {
			copyValue(ec.frame, srcSlot, resultSlot)
		}
		return &controlSignal{branch: true, target: target}
	}
	ops = append(ops, c.newOp(n, false, exec))
	return ops
}

func (c *funcCompiler) compileSwitch(n *ast.Node) []*compiledOp {
	var ops []*compiledOp
	ops = append(ops, c.compileNode(n.Index)...)
	idxSlot := c.stack.pop()

	targets := n.Targets
	scopes := make([]*labelScope, len(targets))
	for i, t := range targets {
		scopes[i] = c.findLabel(t)
	}
	defScope := c.findLabel(n.Default)

	srcSlot := -1
	if defScope.hasResult {
		srcSlot = c.stack.slots[c.stack.depth()-1]
	}

	exec := func(ec *execContext) error {
		idx := uint32(ec.frame.stack[idxSlot])
		var scope *labelScope
		var target string
		if int(idx) < len(targets) {
			scope, target = scopes[idx], targets[idx]
		} else {
			scope, target = defScope, n.Default
		}
		if scope.hasResult {
			copyValue(ec.frame, srcSlot, scope.resultSlot)
		}
		return &controlSignal{branch: true, target: target}
	}
	ops = append(ops, c.newOp(n, false, exec))
	return ops
}

func (c *funcCompiler) compileReturn(n *ast.Node) []*compiledOp {
	var ops []*compiledOp
	srcSlot := -1
	if n.Operand != nil {
		ops = append(ops, c.compileNode(n.Operand)...)
		srcSlot = c.stack.pop()
	}
	wantResult := c.funcHasResult
	resultSlot := c.funcResultSlot
	exec := func(ec *execContext) error {
		if wantResult {
			copyValue(ec.frame, srcSlot, resultSlot)
		}
		return &controlSignal{branch: false}
	}
	ops = append(ops, c.newOp(n, false, exec))
	return ops
}

// copyValue moves the value (and its type) from one frame slot to
// another, used to carry a Block/Loop/If/Break's result into its
// reserved outer slot.
func copyValue(f *frame, from, to int) {
	f.pushValue(to, f.stackTypes[from], f.stack[from])
}
