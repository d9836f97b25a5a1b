package wazebug

import "context"

// RuntimeConfig controls behavior shared by every module compiled and
// instantiated through one Runtime, with the default implementation
// NewRuntimeConfig. Every With* method returns a new, independent config
// (clone), so a base config can be safely reused as a starting point for
// several variants.
type RuntimeConfig struct {
	ctx                context.Context
	memoryMaxPages     uint32
	debugEnabled       bool
	closeOnContextDone bool
}

// NewRuntimeConfig returns a RuntimeConfig with wazebug's defaults.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		ctx:            context.Background(),
		memoryMaxPages: 65536, // 4GiB, the MVP ceiling.
	}
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithContext stores ctx on the config. Defaults to context.Background.
// Nothing reads it: exported calls run under the ctx passed to Call, and
// host imports receive no ctx.
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithMemoryMaxPages caps the number of 65536-byte pages memory.grow is
// allowed to reach for any module instantiated under this config,
// regardless of what ceiling the memory object passed to
// InstantiateModule enforces on its own (see cappedMemory).
func (c *RuntimeConfig) WithMemoryMaxPages(pages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = pages
	return ret
}

// WithDebugEnabled instantiates every module so that every frame records
// Stack/Locals for its snapshots (spec.md §4.E), even in a call made
// with no debugger attached. A call made with a debugger attached records
// them either way, and StackTrace can only be called from a Debugger
// hook, so the effect is not visible through StackTrace.
func (c *RuntimeConfig) WithDebugEnabled(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.debugEnabled = enabled
	return ret
}

// WithCloseOnContextDone makes every exported call invoked under this
// config check its ctx and return promptly with ctx.Err()
// (context.DeadlineExceeded or context.Canceled) once ctx is Done,
// instead of waiting for the call to finish — the
// same "ensure termination" contract the teacher's own
// WithCloseOnContextDone documents, applied here at the cooperative
// scheduler's suspension points (spec.md §5) rather than via a sandboxed
// interrupt. Off by default: watching ctx.Done() on every suspension has
// a real cost, so callers opt in only when they need a ctx cancellation
// to actually cut a running call short.
func (c *RuntimeConfig) WithCloseOnContextDone(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.closeOnContextDone = enabled
	return ret
}

// ModuleConfig controls the instantiation of one module: its name and
// the host imports it resolves against. Instantiation glue (seeding
// memory/table/global content from the module's data/elem segments) is
// an external collaborator per spec.md §1; ModuleConfig only carries the
// engine-facing knobs this package owns.
type ModuleConfig struct {
	name string
}

// NewModuleConfig returns a ModuleConfig with wazebug's defaults.
func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{}
}

func (c *ModuleConfig) clone() *ModuleConfig {
	ret := *c
	return &ret
}

// WithName sets the module's name, kept on the CompiledModule. It does not
// appear in trap messages or frame snapshots.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	ret := c.clone()
	ret.name = name
	return ret
}
