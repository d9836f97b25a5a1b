package interpreter

import (
	"github.com/wazebug/wazebug/api"
)

// frame is the live per-invocation state of spec.md §3: a reference to
// the owning instance, the function name, the current source location,
// and the operand stack / locals. The stack and stackTypes slices are
// always sized to the compiled function's maxStack (Module B), and every
// op writes its result into them on the clean and the dirty path alike;
// what the dirty path adds, per sequence, is updating loc and checking
// for a debugger stop (runProgram, compiler.go).
type frame struct {
	instance *Instance
	funcName string

	loc SourceLocation

	stack      []uint64
	stackTypes []api.ValueType
	sp         int // high-water mark: slots [0, sp) have been written; sp never decreases

	locals     []uint64
	localTypes []api.ValueType

	debug bool // snapshots include Stack/Locals (debugger attached or debug enabled when the call started)
}

func newFrame(inst *Instance, funcName string, maxStack int, localTypes []api.ValueType, debug bool) *frame {
	f := &frame{
		instance:   inst,
		funcName:   funcName,
		stack:      make([]uint64, maxStack),
		stackTypes: make([]api.ValueType, maxStack),
		locals:     make([]uint64, len(localTypes)),
		localTypes: localTypes,
		debug:      debug,
	}
	return f
}

func (f *frame) pushValue(slot int, t api.ValueType, v uint64) {
	f.stack[slot] = v
	f.stackTypes[slot] = t
	if slot+1 > f.sp {
		f.sp = slot + 1
	}
}

// snapshot materializes a FrameSnapshot of f's state *at the instant this
// is called* — not at the instant f last suspended. Per spec.md §9's
// design note, the tracer stack stores a thunk capturing f by reference
// precisely so that repeated stackTrace() calls during one suspension see
// f's state evolve rather than a frozen copy from the suspension point.
func (f *frame) snapshot() FrameSnapshot {
	snap := FrameSnapshot{
		FuncName: f.funcName,
		Location: f.loc,
	}
	if f.debug {
		snap.Stack = make([]api.Value, f.sp)
		for i := 0; i < f.sp; i++ {
			snap.Stack[i] = api.Value{Type: f.stackTypes[i], Bits: f.stack[i]}
		}
		snap.Locals = make([]api.Value, len(f.locals))
		for i := range f.locals {
			snap.Locals[i] = api.Value{Type: f.localTypes[i], Bits: f.locals[i]}
		}
	}
	return snap
}

// FrameSnapshot is the immutable, externally visible result of StackTrace
// (spec.md §3's "Frame snapshot"). Stack and Locals are nil unless the
// owning frame has its debug flag set. Stack holds the frame's slots
// [0, sp), where sp is a high-water mark, so it can include values that
// are no longer on the virtual operand stack.
type FrameSnapshot struct {
	FuncName string
	Location SourceLocation
	Stack    []api.Value
	Locals   []api.Value
}

// tracerStack is the per-task ordered list of live invocations (spec.md
// §3/§4.E): one snapshot thunk per frame currently executing or suspended
// on the current cooperative task. Each taskEngine owns one.
type tracerStack struct {
	thunks []func() FrameSnapshot
}

func (t *tracerStack) push(f *frame) {
	t.thunks = append(t.thunks, f.snapshot)
}

func (t *tracerStack) pop() {
	t.thunks = t.thunks[:len(t.thunks)-1]
}

func (t *tracerStack) depth() int { return len(t.thunks) }

// StackTrace invokes every thunk in the half-open range [start, end),
// with negative values counted from the end, matching spec.md §6.
func (t *tracerStack) StackTrace(start, end int) []FrameSnapshot {
	n := len(t.thunks)
	s := resolveRangeIndex(start, n, 0)
	e := resolveRangeIndex(end, n, n)
	if s < 0 {
		s = 0
	}
	if e > n {
		e = n
	}
	if s >= e {
		return nil
	}
	out := make([]FrameSnapshot, 0, e-s)
	for i := s; i < e; i++ {
		out = append(out, t.thunks[i]())
	}
	return out
}

func resolveRangeIndex(v, n, dflt int) int {
	switch {
	case v == unsetRange:
		return dflt
	case v < 0:
		r := n + v
		if r < 0 {
			r = 0
		}
		return r
	default:
		return v
	}
}

// unsetRange is StackTrace's "argument not supplied" sentinel, since Go
// has no optional-parameter syntax for the JS-flavored `start?, end?` of
// spec.md §6.
const unsetRange = -1 << 31
