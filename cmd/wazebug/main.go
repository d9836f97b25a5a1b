// Command wazebug runs a built-in demo module through the interpreter,
// exercising the flags a real front end (reading a decoded .wasm binary's
// function descriptors) would also expose: breakpoints, single-stepping,
// and memory sizing. Decoding an actual %.wasm file is an external
// collaborator (see internal/ast's doc comment), so this binary has no
// "load a file" flag yet; it is a harness for the engine, not a wasm
// runtime front end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/wazebug/wazebug"
	"github.com/wazebug/wazebug/api"
	"github.com/wazebug/wazebug/internal/ast"
	"github.com/wazebug/wazebug/internal/wasm"
)

func main() {
	var (
		breakpoints []int32
		singleStep  bool
		memoryPages uint32
		arg         int64
	)
	pflag.Int32SliceVar(&breakpoints, "breakpoint", nil, "AST node ID to break at (repeatable)")
	pflag.BoolVar(&singleStep, "single-step", false, "pause the debugger at every instruction boundary")
	pflag.Uint32Var(&memoryPages, "memory-pages", 1, "initial linear memory size, in 64KiB pages")
	pflag.Int64Var(&arg, "arg", 5, "argument passed to the demo function's sole i32 parameter")
	pflag.Parse()

	descs, byID := demoModule()

	runtime := wazebug.NewRuntime(wazebug.NewRuntimeConfig().WithMemoryMaxPages(memoryPages))
	compiled := runtime.CompileModule(descs, wazebug.NewModuleConfig().WithName("demo"))

	mem := wasm.NewMemoryInstance(memoryPages, memoryPages)
	tbl := wasm.NewTableInstance(0)
	inst := runtime.InstantiateModule(compiled, mem, nil, tbl)

	for _, id := range breakpoints {
		loc, ok := byID[id]
		if !ok {
			fmt.Fprintf(os.Stderr, "wazebug: no AST node with id %d in the demo module\n", id)
			os.Exit(1)
		}
		inst.SetBreakpoint(loc)
	}
	if singleStep {
		inst.SetSingleStep(true)
	}
	if singleStep || len(breakpoints) > 0 {
		inst.SetDebugger(func(ctx context.Context) error {
			for _, f := range inst.StackTrace(ctx, 0, 1<<30) {
				fmt.Printf("stopped at %s\n", f.FuncName)
			}
			return nil
		})
	}

	fn, ok := inst.Function("countTo")
	if !ok {
		fmt.Fprintln(os.Stderr, "wazebug: demo module has no countTo function")
		os.Exit(1)
	}
	results, err := fn.Call(context.Background(), uint64(arg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wazebug: trap: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("countTo(%d) = %d\n", arg, results[0])
}

// demoModule builds a single exported function, countTo(n i32) i32, that
// loops a local counter up to n and returns it — the same shape
// engine_test.go exercises, here used as a runnable smoke test for the CLI
// flags above. byID maps every node's ID (ast.Builder numbers nodes from 0
// in construction order) to the node, so --breakpoint can name it.
func demoModule() ([]*wasm.FunctionDescriptor, map[int32]*ast.Node) {
	var b ast.Builder
	const i = 1 // local 0 = param n, local 1 = loop counter
	loopBody := b.Br(
		"loop",
		b.Binary(ast.OpI32Ne, api.ValueTypeI32,
			b.LocalSet(i, b.Binary(ast.OpI32Add, api.ValueTypeI32, b.LocalGet(i, api.ValueTypeI32), b.Const(api.ValueTypeI32, 1)), true, api.ValueTypeI32),
			b.LocalGet(0, api.ValueTypeI32),
		),
	)
	loop := b.Loop("loop", false, 0, loopBody)
	ret := b.Return(b.LocalGet(i, api.ValueTypeI32))
	desc := &wasm.FunctionDescriptor{
		Name:   "countTo",
		Type:   wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		Locals: []api.ValueType{api.ValueTypeI32},
		Body:   []*ast.Node{loop, ret},
	}

	byID := make(map[int32]*ast.Node)
	for _, n := range desc.Body {
		indexNodes(n, byID)
	}
	return []*wasm.FunctionDescriptor{desc}, byID
}

func indexNodes(n *ast.Node, byID map[int32]*ast.Node) {
	if n == nil {
		return
	}
	byID[n.ID] = n
	for _, c := range n.AllChildren() {
		indexNodes(c, byID)
	}
}
