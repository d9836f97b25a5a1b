package wazebug

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazebug/wazebug/api"
	"github.com/wazebug/wazebug/internal/ast"
	"github.com/wazebug/wazebug/internal/wasm"
)

// growDescriptor builds a module exporting one function, grow(delta i32)
// i32 = memory.grow(delta).
func growDescriptor() *wasm.FunctionDescriptor {
	var b ast.Builder
	return &wasm.FunctionDescriptor{
		Name:   "grow",
		Type:   wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body:   []*ast.Node{b.Return(b.MemoryGrow(b.LocalGet(0, api.ValueTypeI32)))},
	}
}

func TestRuntime_WithMemoryMaxPagesCapsGrowth(t *testing.T) {
	rt := NewRuntime(NewRuntimeConfig().WithMemoryMaxPages(2))
	compiled := rt.CompileModule([]*wasm.FunctionDescriptor{growDescriptor()}, nil)
	mem := wasm.NewMemoryInstance(1, 65536) // the memory's own ceiling is far higher than the config's.
	inst := rt.InstantiateModule(compiled, mem, nil, wasm.NewTableInstance(0))

	fn, ok := inst.Function("grow")
	require.True(t, ok)

	results, err := fn.Call(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), results[0]) // previous page count

	_, err = fn.Call(context.Background(), 1)
	require.NoError(t, err)
	results, err = fn.Call(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0xffffffff), results[0]) // refused: would exceed the config's 2-page ceiling
}

func TestRuntime_WithDebugEnabledSnapshotHasLocals(t *testing.T) {
	var b ast.Builder
	desc := &wasm.FunctionDescriptor{
		Name: "add",
		Type: wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Body: []*ast.Node{b.Return(b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(0, api.ValueTypeI32), b.LocalGet(1, api.ValueTypeI32)))},
	}

	rt := NewRuntime(NewRuntimeConfig().WithDebugEnabled(true))
	compiled := rt.CompileModule([]*wasm.FunctionDescriptor{desc}, nil)
	inst := rt.InstantiateModule(compiled, wasm.NewMemoryInstance(1, 1), nil, wasm.NewTableInstance(0))

	// StackTrace needs a task ctx, which only a Debugger hook receives, so
	// a hook is attached and a breakpoint armed on the body to make it run.
	// What's checked is that the snapshot taken there has non-nil Locals.
	// An attached debugger makes frames record Locals on its own as well,
	// so this does not isolate WithDebugEnabled's effect.
	var gotLocals []api.Value
	inst.SetDebugger(func(ctx context.Context) error {
		trace := inst.StackTrace(ctx, 0, 1<<30)
		if len(trace) > 0 {
			gotLocals = trace[len(trace)-1].Locals
		}
		return nil
	})
	inst.SetBreakpoint(desc.Body[0])

	fn, ok := inst.Function("add")
	require.True(t, ok)
	results, err := fn.Call(context.Background(), 3, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
	require.NotNil(t, gotLocals)
}

func TestRuntime_WithCloseOnContextDoneStopsSuspendedCall(t *testing.T) {
	hostBlocks := make(chan struct{})
	imported := &wasm.FunctionDescriptor{
		Name: "block",
		Type: wasm.FunctionType{},
		Host: func(ctx wasm.HostCallContext, args []uint64) ([]uint64, error) {
			<-hostBlocks
			return nil, nil
		},
	}

	rt := NewRuntime(NewRuntimeConfig().WithCloseOnContextDone(true))
	compiled := rt.CompileModule([]*wasm.FunctionDescriptor{imported}, nil)
	inst := rt.InstantiateModule(compiled, wasm.NewMemoryInstance(1, 1), nil, wasm.NewTableInstance(0))

	fn, ok := inst.Function("block")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fn.Call(ctx)
	require.ErrorIs(t, err, context.Canceled)
	close(hostBlocks)
}
