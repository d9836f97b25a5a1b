// Package wazebug is a pure-Go WebAssembly MVP interpreter whose exported
// functions run as cooperatively suspendable tasks: a host import, or an
// attached debugger paused at an instruction boundary, can yield control
// without blocking the process, and resume later with every frame
// exactly as it left it.
//
// Decoding a %.wasm binary, validating it against the module type system,
// and wiring a module's memory/global/table/data/elem segments at
// instantiation are all external collaborators — see internal/wasm for
// the shapes this package expects them to produce.
package wazebug

import (
	"github.com/wazebug/wazebug/api"
	"github.com/wazebug/wazebug/internal/engine/interpreter"
	"github.com/wazebug/wazebug/internal/wasm"
)

// Runtime compiles and instantiates modules under one shared
// RuntimeConfig.
type Runtime struct {
	config *RuntimeConfig
}

// NewRuntime returns a Runtime governed by config. A nil config uses
// NewRuntimeConfig()'s defaults.
func NewRuntime(config *RuntimeConfig) *Runtime {
	if config == nil {
		config = NewRuntimeConfig()
	}
	return &Runtime{config: config}
}

// CompiledModule is a decoded module, not yet classified or lowered to
// sequence-gated closures (internal/engine/interpreter, Module C): that
// lowering, and the classification it consults, happens per Instance, against that Instance's own debug
// registry, so CompiledModule itself can be instantiated any number of
// times without breakpoints set on one Instance leaking into another.
type CompiledModule struct {
	name   string
	module *interpreter.Module
}

// CompileModule compiles descs (the decoder's output) under config.
func (r *Runtime) CompileModule(descs []*wasm.FunctionDescriptor, config *ModuleConfig) *CompiledModule {
	if config == nil {
		config = NewModuleConfig()
	}
	return &CompiledModule{name: config.name, module: interpreter.NewModule(descs)}
}

// InstantiateModule binds compiled to concrete memory, globals, and a
// table — the host objects spec.md §1 treats as external collaborators —
// and returns a running Instance configured per r.config: memory growth
// is capped at config.memoryMaxPages regardless of what ceiling memory
// enforces on its own, and config.debugEnabled/closeOnContextDone are
// applied to the new Instance.
func (r *Runtime) InstantiateModule(compiled *CompiledModule, memory api.Memory, globals []api.Global, table api.Table) *interpreter.Instance {
	inst := interpreter.NewInstance(compiled.module, newCappedMemory(memory, r.config.memoryMaxPages), globals, table)
	inst.SetDebugEnabled(r.config.debugEnabled)
	inst.SetCloseOnContextDone(r.config.closeOnContextDone)
	return inst
}
