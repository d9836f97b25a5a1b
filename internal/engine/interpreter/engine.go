// Package interpreter is the execution engine of spec.md §4: it compiles
// a decoded module's functions into sequence-gated closures (Module C),
// classifies their fallibility and interruptibility (Module A), manages
// the operand stack layout (Module B), gates breakpoints and single-step
// (Module D), tracks live frames for StackTrace (Module E), and runs
// exported calls as cooperatively suspendable tasks (Module F).
package interpreter

import (
	"context"

	"github.com/wazebug/wazebug/api"
	"github.com/wazebug/wazebug/internal/wasm"
	"github.com/wazebug/wazebug/sys"
)

// Module is a decoded, not-yet-compiled set of functions. Only the
// classifier is shared by every Instance built from it: Infallible and
// Uninterruptible are structural properties of the AST, independent of
// any one run. Compilation itself — and the debug registry that
// compilation bakes breakpoint indices against — happens per Instance
// (spec.md §3: the debug registry is owned by the Instance), so two
// Instances built from the same Module never share armed breakpoints.
type Module struct {
	class *classifier

	localDescs map[string]*wasm.FunctionDescriptor
	imports    map[string]*wasm.FunctionDescriptor
}

// NewModule sorts descs by kind. Imports (descs with a non-nil Host) are
// kept by name for later resolution; local functions are kept
// uncompiled, since compiling them against a concrete debug registry is
// deferred to NewInstance. Classification happens lazily during that
// compilation, cached in the Module's shared classifier.
func NewModule(descs []*wasm.FunctionDescriptor) *Module {
	m := &Module{
		class:      newClassifier(),
		localDescs: make(map[string]*wasm.FunctionDescriptor),
		imports:    make(map[string]*wasm.FunctionDescriptor),
	}
	for _, d := range descs {
		if d.IsImport() {
			m.imports[d.Name] = d
			continue
		}
		m.localDescs[d.Name] = d
	}
	return m
}

// Instance is one instantiation of a Module against concrete memory,
// globals, and a table — the "host memory/global/table objects" spec.md
// §1 treats as external collaborators, supplied here by the caller
// (instantiation glue) rather than constructed by this package. Each
// Instance compiles its own copy of the module's functions against its
// own debug registry, so breakpoints armed on one Instance never leak
// into another built from the same Module.
type Instance struct {
	module *Module
	reg    *debugRegistry

	memory  api.Memory
	globals []api.Global
	table   api.Table

	callables map[string]callable

	debugger Debugger

	// debugEnabled and closeOnContextDone mirror RuntimeConfig's
	// WithDebugEnabled/WithCloseOnContextDone knobs; wazebug.go's
	// InstantiateModule sets them from the Runtime's config right after
	// NewInstance returns.
	debugEnabled       bool
	closeOnContextDone bool
}

// SetDebugEnabled forces every call on inst to build its frames with the
// always-populated debug snapshot, regardless of whether a debugger is
// attached (spec.md §4.E).
func (inst *Instance) SetDebugEnabled(enabled bool) { inst.debugEnabled = enabled }

// SetCloseOnContextDone makes every call on inst race its ctx against
// completion, returning ctx.Err() as soon as ctx is Done instead of
// running until the worker goroutine notices on its own.
func (inst *Instance) SetCloseOnContextDone(enabled bool) { inst.closeOnContextDone = enabled }

// NewInstance builds an Instance over module, compiling every local
// function against a fresh debug registry and wiring it alongside every
// import into one callable namespace addressed by name (spec.md §4.F
// assumes Call/CallIndirect resolve targets this way).
func NewInstance(module *Module, memory api.Memory, globals []api.Global, table api.Table) *Instance {
	inst := &Instance{
		module:    module,
		reg:       newDebugRegistry(),
		memory:    memory,
		globals:   globals,
		table:     table,
		callables: make(map[string]callable),
	}
	for name, desc := range module.localDescs {
		fn := compileFunction(module.class, inst.reg, desc)
		inst.callables[name] = &localCallable{name: name, fn: fn}
	}
	for name, desc := range module.imports {
		inst.callables[name] = &importCallable{desc: desc}
	}
	return inst
}

// SetDebugger installs the hook invoked at every armed location (spec.md
// §6). Pass nil to detach it; detaching does not clear armed breakpoints,
// it just means they'll never fire.
func (inst *Instance) SetDebugger(hook Debugger) { inst.debugger = hook }

func (inst *Instance) global(idx uint32) api.Global { return inst.globals[idx] }

// callableOf resolves a table element back to this instance's own
// callable wrapper, so CallIndirect can dispatch through the same
// suspension-aware path as a direct Call.
func (inst *Instance) callableOf(fn api.Function) (callable, bool) {
	af, ok := fn.(*instanceFunction)
	if !ok || af.inst != inst {
		return nil, false
	}
	c, ok := inst.callables[af.name]
	return c, ok
}

// Function returns name as an api.Function, suitable for exporting to a
// host or installing into a Table slot during instantiation.
func (inst *Instance) Function(name string) (api.Function, bool) {
	c, ok := inst.callables[name]
	if !ok {
		return nil, false
	}
	t := c.Type()
	isImport := false
	importModule := ""
	if ic, ok := c.(*importCallable); ok {
		isImport = true
		importModule = ic.desc.ModuleName
	}
	return &instanceFunction{
		inst: inst,
		name: name,
		def: &funcDefinition{
			name:         name,
			params:       t.Params,
			results:      t.Results,
			isImport:     isImport,
			importModule: importModule,
		},
	}, true
}

// HasBreakpoint, SetBreakpoint, ClearBreakpoint, Breakpoints, and
// SetSingleStep expose the instance's own debug registry per spec.md §6.
func (inst *Instance) HasBreakpoint(loc SourceLocation) bool { return inst.reg.HasBreakpoint(loc) }
func (inst *Instance) SetBreakpoint(loc SourceLocation)      { inst.reg.SetBreakpoint(loc) }
func (inst *Instance) ClearBreakpoint(loc SourceLocation)    { inst.reg.ClearBreakpoint(loc) }
func (inst *Instance) Breakpoints() []SourceLocation         { return inst.reg.Breakpoints() }
func (inst *Instance) SetSingleStep(on bool)                 { inst.reg.SetSingleStep(on) }

// BreakpointHits returns every location the instance's debug registry has
// indexed (every compiled node, plus any location passed to SetBreakpoint),
// paired with how many times the debugger hook fired there. Used by pprofutil to build a pprof profile of hot breakpoints.
func (inst *Instance) BreakpointHits() ([]SourceLocation, []uint64) {
	locs := inst.reg.sortedLocations()
	return locs, inst.reg.hitCounts(locs)
}

// StackTrace returns snapshots of every frame live on ctx's task at the
// instant this is invoked, from inside a Debugger hook, whose ctx carries
// its task's identity. Host imports receive no ctx (wasm.HostFunc takes
// only a HostCallContext), so they cannot call it; for a ctx that carries
// no task it returns nil.
func (inst *Instance) StackTrace(ctx context.Context, start, end int) []FrameSnapshot {
	ce, ok := taskEngineFromContext(ctx)
	if !ok {
		return nil
	}
	return ce.tracer.StackTrace(start, end)
}

// invokeTopLevel is the cooperative-task entry point of spec.md §5: it
// starts a fresh taskEngine (and therefore a fresh worker goroutine) for
// one call tree rooted at name.
func (inst *Instance) invokeTopLevel(ctx context.Context, name string, params []uint64) ([]uint64, error) {
	c, ok := inst.callables[name]
	if !ok {
		return nil, sys.NewTrapError(sys.ImportError, nil, "unknown function "+name)
	}
	ce := newTaskEngine(ctx, inst.closeOnContextDone)
	ec := &execContext{
		ctx:      ctx,
		ce:       ce,
		instance: inst,
		reg:      inst.reg,
		debugger: inst.debugger,
		mem:      inst.memory,
	}
	return ce.run(func() ([]uint64, error) { return c.invoke(ec, params) })
}

// callCompiled runs one compiled function body on the current worker
// goroutine, installing a frame for StackTrace/snapshot purposes for the
// duration. Nested calls (direct or indirect) recurse into this on the
// same goroutine, matching spec.md §5's "whole call tree suspends
// together" contract.
func (inst *Instance) callCompiled(ec *execContext, name string, fn *compiledFunction, args []uint64) ([]uint64, error) {
	f := newFrame(inst, name, fn.maxStack, fn.localTypes, ec.debugger != nil || inst.debugEnabled)
	for i, t := range fn.desc.Type.Params {
		f.locals[i] = wasm.CoerceParam(t, args[i])
	}

	prevFrame, prevMem := ec.frame, ec.mem
	ec.frame = f
	ec.ce.tracer.push(f)
	defer func() {
		ec.ce.tracer.pop()
		ec.frame = prevFrame
		ec.mem = prevMem
	}()

	err := runProgram(ec, fn.body)
	switch {
	case err == nil:
		if fn.hasResult {
			copyValue(f, fn.fallthroughSlot, fn.resultSlot)
		}
	case isReturn(err):
		// value already placed in fn.resultSlot by the Return op itself.
	default:
		if _, ok := err.(*controlSignal); ok {
			panic("interpreter: unresolved branch signal escaped function body")
		}
		return nil, err
	}
	if fn.hasResult {
		return []uint64{f.stack[fn.resultSlot]}, nil
	}
	return nil, nil
}

// refreshMemory re-reads the instance's current memory handle into the
// execContext, matching spec.md §4.C's post-suspension revalidation rule
// for any node that touches memory: a host import or memory.grow may have
// reallocated the backing buffer while this task was suspended.
func (ec *execContext) refreshMemory() { ec.mem = ec.instance.memory }

// execContext is the per-task, mutable state threaded through every
// compiled closure: which frame is active, the call engine to suspend
// through, and the instance's shared debug registry and memory handle.
type execContext struct {
	ctx      context.Context
	frame    *frame
	instance *Instance
	ce       *taskEngine
	reg      *debugRegistry
	debugger Debugger
	mem      api.Memory
}

func (ec *execContext) Memory() api.Memory { return ec.mem }

func (ec *execContext) global(idx uint32) api.Global { return ec.instance.global(idx) }

// funcDefinition is the api.FunctionDefinition backing an instanceFunction.
type funcDefinition struct {
	name         string
	params       []api.ValueType
	results      []api.ValueType
	isImport     bool
	importModule string
}

func (d *funcDefinition) ModuleName() string        { return d.importModule }
func (d *funcDefinition) Name() string              { return d.name }
func (d *funcDefinition) ParamTypes() []api.ValueType  { return d.params }
func (d *funcDefinition) ResultTypes() []api.ValueType { return d.results }
func (d *funcDefinition) Import() (string, string, bool) {
	return d.importModule, d.name, d.isImport
}

// instanceFunction is the api.Function handle returned by Instance.
// Function and installed into api.Table slots: a blocking entry point
// that, under the hood, starts a fresh cooperative task on every Call.
type instanceFunction struct {
	inst *Instance
	name string
	def  *funcDefinition
}

func (f *instanceFunction) Definition() api.FunctionDefinition { return f.def }

func (f *instanceFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.inst.invokeTopLevel(ctx, f.name, params)
}
