package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazebug/wazebug/api"
	"github.com/wazebug/wazebug/internal/ast"
	"github.com/wazebug/wazebug/internal/wasm"
	"github.com/wazebug/wazebug/sys"
)

func newTestInstance(t *testing.T, descs []*wasm.FunctionDescriptor) *Instance {
	t.Helper()
	mod := NewModule(descs)
	mem := wasm.NewMemoryInstance(1, 1)
	tbl := wasm.NewTableInstance(4)
	return NewInstance(mod, mem, nil, tbl)
}

// add(a, b i32) i32 = a + b
func addDescriptor() *wasm.FunctionDescriptor {
	var b ast.Builder
	body := b.Return(b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32), b.LocalGet(1, api.ValueTypeI32)))
	return &wasm.FunctionDescriptor{
		Name: "add",
		Type: wasm.FunctionType{
			Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Results: []api.ValueType{api.ValueTypeI32},
		},
		Body: []*ast.Node{body},
	}
}

func TestEngine_AddFunction(t *testing.T) {
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{addDescriptor()})
	fn, ok := inst.Function("add")
	require.True(t, ok)

	results, err := fn.Call(context.Background(), 3, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
}

// countTo(n i32) i32: loop incrementing a local until it equals n, then
// returns it with an explicit Return after the loop.
func countToDescriptor() *wasm.FunctionDescriptor {
	var b ast.Builder
	i := uint32(1) // local 0 = param n, local 1 = i
	loopBody := b.Br(
		"loop",
		b.Binary(ast.OpI32Ne, api.ValueTypeI32,
			b.LocalSet(i, b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(i, api.ValueTypeI32), b.Const(api.ValueTypeI32, 1)), true, api.ValueTypeI32),
			b.LocalGet(0, api.ValueTypeI32),
		),
	)
	loop := b.Loop("loop", false, 0, loopBody)
	body := []*ast.Node{loop, b.Return(b.LocalGet(i, api.ValueTypeI32))}
	return &wasm.FunctionDescriptor{
		Name:   "countTo",
		Type:   wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Locals: []api.ValueType{api.ValueTypeI32},
		Body:   body,
	}
}

func TestEngine_LoopCountsUpToN(t *testing.T) {
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{countToDescriptor()})
	fn, ok := inst.Function("countTo")
	require.True(t, ok)

	results, err := fn.Call(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, results)
}

// sign(x i32) i32 = if x < 0 { -1 } else { 1 }
func signDescriptor() *wasm.FunctionDescriptor {
	var b ast.Builder
	cond := b.Binary(ast.OpI32LtS, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32), b.Const(api.ValueTypeI32, 0))
	ifNode := b.If(true, api.ValueTypeI32, cond,
		[]*ast.Node{b.Const(api.ValueTypeI32, uint64(uint32(int32(-1))))},
		[]*ast.Node{b.Const(api.ValueTypeI32, 1)},
	)
	body := []*ast.Node{b.Return(ifNode)}
	return &wasm.FunctionDescriptor{
		Name:   "sign",
		Type:   wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body:   body,
	}
}

func TestEngine_IfElse(t *testing.T) {
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{signDescriptor()})
	fn, ok := inst.Function("sign")
	require.True(t, ok)

	neg, err := fn.Call(context.Background(), uint64(uint32(int32(-5))))
	require.NoError(t, err)
	require.EqualValues(t, -1, int32(uint32(neg[0])))

	pos, err := fn.Call(context.Background(), 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, int32(uint32(pos[0])))
}

func TestEngine_UnreachableTraps(t *testing.T) {
	var b ast.Builder
	desc := &wasm.FunctionDescriptor{
		Name: "boom",
		Type: wasm.FunctionType{},
		Body: []*ast.Node{b.Unreachable()},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})
	fn, ok := inst.Function("boom")
	require.True(t, ok)

	_, err := fn.Call(context.Background())
	require.Error(t, err)
}

func TestEngine_CallBetweenLocalFunctions(t *testing.T) {
	var b ast.Builder
	inner := &wasm.FunctionDescriptor{
		Name:   "double",
		Type:   wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body:   []*ast.Node{b.Return(b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32), b.LocalGet(0, api.ValueTypeI32)))},
	}
	outer := &wasm.FunctionDescriptor{
		Name:   "quadruple",
		Type:   wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body:   []*ast.Node{b.Return(b.Call("double", true, api.ValueTypeI32, b.Call("double", true, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32))))},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{inner, outer})
	fn, ok := inst.Function("quadruple")
	require.True(t, ok)

	results, err := fn.Call(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{12}, results)
}

func TestEngine_HostImportSuspendsAndResumes(t *testing.T) {
	var b ast.Builder
	hostCalled := make(chan struct{}, 1)
	imported := &wasm.FunctionDescriptor{
		Name: "double",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Host: func(ctx wasm.HostCallContext, args []uint64) ([]uint64, error) {
			hostCalled <- struct{}{}
			return []uint64{args[0] * 2}, nil
		},
	}
	caller := &wasm.FunctionDescriptor{
		Name: "callDouble",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(b.Call("double", true, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32)))},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{imported, caller})
	fn, ok := inst.Function("callDouble")
	require.True(t, ok)

	results, err := fn.Call(context.Background(), 21)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
	select {
	case <-hostCalled:
	default:
		t.Fatal("expected host import to be invoked")
	}
}

func TestEngine_BreakpointInvokesDebugger(t *testing.T) {
	desc := addDescriptor()
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})

	hit := 0
	inst.SetDebugger(func(ctx context.Context) error {
		hit++
		return nil
	})
	inst.SetBreakpoint(desc.Body[0])

	fn, ok := inst.Function("add")
	require.True(t, ok)
	_, err := fn.Call(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, 1, hit)
}

func TestEngine_StackTraceFromDebuggerHook(t *testing.T) {
	desc := addDescriptor()
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})

	var gotTrace []FrameSnapshot
	inst.SetDebugger(func(ctx context.Context) error {
		gotTrace = inst.StackTrace(ctx, 0, unsetRange)
		return nil
	})
	inst.SetBreakpoint(desc.Body[0])

	fn, ok := inst.Function("add")
	require.True(t, ok)
	_, err := fn.Call(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, gotTrace, 1)
	require.Equal(t, "add", gotTrace[0].FuncName)
}

func TestEngine_StackTraceOutsideTaskReturnsNil(t *testing.T) {
	desc := addDescriptor()
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})
	require.Nil(t, inst.StackTrace(context.Background(), 0, unsetRange))
}

func TestEngine_CallIndirectDispatchesThroughTable(t *testing.T) {
	var b ast.Builder
	double := &wasm.FunctionDescriptor{
		Name: "double",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32), b.LocalGet(0, api.ValueTypeI32)))},
	}
	caller := &wasm.FunctionDescriptor{
		Name: "callSlot0",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{
			b.Return(b.CallIndirect(
				[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32},
				b.Const(api.ValueTypeI32, 0),
				b.LocalGet(0, api.ValueTypeI32),
			)),
		},
	}

	mod := NewModule([]*wasm.FunctionDescriptor{double, caller})
	mem := wasm.NewMemoryInstance(1, 1)
	tbl := wasm.NewTableInstance(1)
	inst := NewInstance(mod, mem, nil, tbl)

	doubleFn, ok := inst.Function("double")
	require.True(t, ok)
	tbl.Set(0, doubleFn)

	fn, ok := inst.Function("callSlot0")
	require.True(t, ok)
	results, err := fn.Call(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, []uint64{18}, results)
}

func TestEngine_CallIndirectSignatureMismatchTraps(t *testing.T) {
	var b ast.Builder
	double := &wasm.FunctionDescriptor{
		Name: "double",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32), b.LocalGet(0, api.ValueTypeI32)))},
	}
	caller := &wasm.FunctionDescriptor{
		Name: "callSlot0",
		Type: wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{
			// Calls slot 0 expecting no params, but "double" takes one.
			b.Return(b.CallIndirect([]api.ValueType{}, []api.ValueType{api.ValueTypeI32}, b.Const(api.ValueTypeI32, 0))),
		},
	}

	mod := NewModule([]*wasm.FunctionDescriptor{double, caller})
	mem := wasm.NewMemoryInstance(1, 1)
	tbl := wasm.NewTableInstance(1)
	inst := NewInstance(mod, mem, nil, tbl)

	doubleFn, ok := inst.Function("double")
	require.True(t, ok)
	tbl.Set(0, doubleFn)

	fn, ok := inst.Function("callSlot0")
	require.True(t, ok)
	_, err := fn.Call(context.Background())
	require.Error(t, err)
}

// classify(n i32) i32: nested blocks give br_table's targets somewhere to
// land, matching how a real decoder would always nest br_table inside the
// blocks it targets.
func TestEngine_SwitchDispatchesByIndex(t *testing.T) {
	var b ast.Builder
	swBody := b.BrTable([]string{"one"}, "zero", b.LocalGet(0, api.ValueTypeI32))
	oneBlock := b.Block("one", false, 0, swBody)
	zeroBlock := b.Block("zero", true, api.ValueTypeI32, oneBlock, b.Const(api.ValueTypeI32, 100))
	desc := &wasm.FunctionDescriptor{
		Name: "classify",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(zeroBlock)},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})
	fn, ok := inst.Function("classify")
	require.True(t, ok)

	got, err := fn.Call(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{100}, got)
}

func TestEngine_SelectPicksOperandByCondition(t *testing.T) {
	var b ast.Builder
	desc := &wasm.FunctionDescriptor{
		Name: "pick",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(b.Select(api.ValueTypeI32,
			b.Const(api.ValueTypeI32, 11), b.Const(api.ValueTypeI32, 22),
			b.LocalGet(0, api.ValueTypeI32),
		))},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})
	fn, ok := inst.Function("pick")
	require.True(t, ok)

	got, err := fn.Call(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{11}, got)

	got, err = fn.Call(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{22}, got)
}

func TestEngine_MemorySizeAndGrow(t *testing.T) {
	var b ast.Builder
	desc := &wasm.FunctionDescriptor{
		Name: "growAndReport",
		Type: wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{
			b.Drop(b.MemoryGrow(b.Const(api.ValueTypeI32, 1))),
			b.Return(b.MemorySize()),
		},
	}
	mod := NewModule([]*wasm.FunctionDescriptor{desc})
	mem := wasm.NewMemoryInstance(1, 4)
	inst := NewInstance(mod, mem, nil, wasm.NewTableInstance(0))
	fn, ok := inst.Function("growAndReport")
	require.True(t, ok)

	got, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, got)
}

func TestEngine_GlobalGetSet(t *testing.T) {
	var b ast.Builder
	desc := &wasm.FunctionDescriptor{
		Name: "bump",
		Type: wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{
			b.GlobalSet(0, b.Binary(ast.OpI32Add, api.ValueTypeI32, b.GlobalGet(0, api.ValueTypeI32), b.Const(api.ValueTypeI32, 1))),
			b.Return(b.GlobalGet(0, api.ValueTypeI32)),
		},
	}
	mod := NewModule([]*wasm.FunctionDescriptor{desc})
	mem := wasm.NewMemoryInstance(1, 1)
	g := wasm.NewGlobalInstance(api.ValueTypeI32, true, 41)
	inst := NewInstance(mod, mem, []api.Global{g}, wasm.NewTableInstance(0))
	fn, ok := inst.Function("bump")
	require.True(t, ok)

	got, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, got)
	require.Equal(t, uint64(42), g.Get())
}

func TestEngine_DivideByZeroTrapPropagatesThroughCall(t *testing.T) {
	var b ast.Builder
	desc := &wasm.FunctionDescriptor{
		Name: "divz",
		Type: wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(b.Binary(ast.OpI32DivS, api.ValueTypeI32, b.Const(api.ValueTypeI32, 1), b.Const(api.ValueTypeI32, 0)))},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})
	fn, ok := inst.Function("divz")
	require.True(t, ok)
	_, err := fn.Call(context.Background())
	require.Error(t, err)
}

// Two Instances built from the same Module must not share breakpoint
// state: each owns its own debug registry (spec.md §3).
func TestEngine_BreakpointsDoNotLeakAcrossInstances(t *testing.T) {
	desc := addDescriptor()
	mod := NewModule([]*wasm.FunctionDescriptor{desc})
	mem := wasm.NewMemoryInstance(1, 1)

	a := NewInstance(mod, mem, nil, wasm.NewTableInstance(0))
	c := NewInstance(mod, mem, nil, wasm.NewTableInstance(0))

	aHits, cHits := 0, 0
	a.SetDebugger(func(ctx context.Context) error { aHits++; return nil })
	c.SetDebugger(func(ctx context.Context) error { cHits++; return nil })

	a.SetBreakpoint(desc.Body[0])

	require.True(t, a.HasBreakpoint(desc.Body[0]))
	require.False(t, c.HasBreakpoint(desc.Body[0]), "breakpoint armed on one instance must not appear armed on another")

	fnA, ok := a.Function("add")
	require.True(t, ok)
	_, err := fnA.Call(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, 1, aHits)

	fnC, ok := c.Function("add")
	require.True(t, ok)
	_, err = fnC.Call(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, 0, cHits, "debugger hook must not fire on an instance whose own registry has no breakpoint armed")
}

// id(x i32) i32 = local.get 0, called with a value whose top bit is set to
// confirm the engine carries i32s as raw bit patterns rather than, say,
// clamping or sign-extending them anywhere on the call path.
func TestEngine_IdentityExportBoundaryValue(t *testing.T) {
	var b ast.Builder
	desc := &wasm.FunctionDescriptor{
		Name: "id",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(b.LocalGet(0, api.ValueTypeI32))},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})
	fn, ok := inst.Function("id")
	require.True(t, ok)

	results, err := fn.Call(context.Background(), 0x8000_0001)
	require.NoError(t, err)
	require.Equal(t, []uint64{0x8000_0001}, results)
	require.EqualValues(t, -2147483647, int32(uint32(results[0])))
}

// countToWithLocationDescriptor builds the same counting loop as
// countToDescriptor, additionally returning the tee node inside the loop
// body: a location that executes exactly once per iteration, unlike the
// Loop node itself (evaluated once per call) or the function body (once
// per call).
func countToWithLocationDescriptor() (*wasm.FunctionDescriptor, *ast.Node) {
	var b ast.Builder
	i := uint32(1)
	tee := b.LocalSet(i, b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(i, api.ValueTypeI32), b.Const(api.ValueTypeI32, 1)), true, api.ValueTypeI32)
	loopBody := b.Br("loop", b.Binary(ast.OpI32Ne, api.ValueTypeI32, tee, b.LocalGet(0, api.ValueTypeI32)))
	loop := b.Loop("loop", false, 0, loopBody)
	body := []*ast.Node{loop, b.Return(b.LocalGet(i, api.ValueTypeI32))}
	desc := &wasm.FunctionDescriptor{
		Name:   "countTo",
		Type:   wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Locals: []api.ValueType{api.ValueTypeI32},
		Body:   body,
	}
	return desc, tee
}

func TestEngine_BreakpointHitCountMatchesLoopIterationCount(t *testing.T) {
	desc, loc := countToWithLocationDescriptor()
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})

	hits := 0
	inst.SetDebugger(func(ctx context.Context) error { hits++; return nil })
	inst.SetBreakpoint(loc)

	fn, ok := inst.Function("countTo")
	require.True(t, ok)
	results, err := fn.Call(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{10}, results)
	require.Equal(t, 10, hits, "one armed location inside a 10-iteration loop body must fire exactly 10 times")
}

// With single-step enabled, the debugger hook must fire once per AST node
// evaluated: add's body is Return(Binary(LocalGet(0), LocalGet(1))), four
// distinct nodes, each evaluated exactly once for one call.
func TestEngine_SingleStepHitCountEqualsEvaluatedNodeCount(t *testing.T) {
	desc := addDescriptor()
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})

	hits := 0
	inst.SetDebugger(func(ctx context.Context) error { hits++; return nil })
	inst.SetSingleStep(true)

	fn, ok := inst.Function("add")
	require.True(t, ok)
	results, err := fn.Call(context.Background(), 3, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
	require.Equal(t, 4, hits)
}

// A host import growing memory by one page, then a Load at the memory's
// old size (now inside the freshly-grown page), must read back 0 rather
// than trap: the new page is zero-filled, and memory-touching ops always
// revalidate ec.mem before running (they are fallible, so never folded
// into a closed sequence gate).
func TestEngine_MemoryGrownByImportIsVisibleToSubsequentLoad(t *testing.T) {
	var b ast.Builder
	const oldSize = 65536 // one page, the instance's starting memory size.

	grow := &wasm.FunctionDescriptor{
		Name: "growMem",
		Type: wasm.FunctionType{},
		Host: func(ctx wasm.HostCallContext, args []uint64) ([]uint64, error) {
			ctx.Memory().Grow(1)
			return nil, nil
		},
	}
	reader := &wasm.FunctionDescriptor{
		Name: "readAfterGrow",
		Type: wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{
			b.Call("growMem", false, 0),
			b.Return(b.Load(api.ValueTypeI32, 1, false, oldSize, b.Const(api.ValueTypeI32, 0))),
		},
	}

	mod := NewModule([]*wasm.FunctionDescriptor{grow, reader})
	mem := wasm.NewMemoryInstance(1, 4)
	inst := NewInstance(mod, mem, nil, wasm.NewTableInstance(0))

	fn, ok := inst.Function("readAfterGrow")
	require.True(t, ok)

	results, err := fn.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, results, "byte at the old memory size, now inside the page just grown into, must read as zero rather than trap")
}

// Unreachable nested inside a Block inside a Loop must surface a trap of
// kind Unreachable whose Location is the Unreachable node itself, not the
// enclosing Block or Loop.
func TestEngine_UnreachableTrapLocationIsTheUnreachableNode(t *testing.T) {
	var b ast.Builder
	unreachable := b.Unreachable()
	blk := b.Block("blk", false, 0, unreachable)
	loop := b.Loop("loop", false, 0, blk)
	desc := &wasm.FunctionDescriptor{
		Name: "boom",
		Type: wasm.FunctionType{},
		Body: []*ast.Node{loop},
	}
	inst := newTestInstance(t, []*wasm.FunctionDescriptor{desc})
	fn, ok := inst.Function("boom")
	require.True(t, ok)

	_, err := fn.Call(context.Background())
	require.Error(t, err)
	trap, ok := err.(*sys.TrapError)
	require.True(t, ok)
	require.Equal(t, sys.Unreachable, trap.Kind)
	require.Same(t, unreachable, trap.Location)
}
