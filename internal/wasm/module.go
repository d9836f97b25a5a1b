// Package wasm holds the decoded-module data types the engine operates
// on: function descriptors, the default memory/global/table
// implementations, and the value coercion rules used at import/export
// boundaries. Validation of a module against the type system and the
// surface-level instantiation glue (walking exports, seeding memory
// segments and the function table) are external collaborators per
// spec.md §1; this package only holds the shapes they produce.
package wasm

import (
	"math"

	"github.com/wazebug/wazebug/api"
	"github.com/wazebug/wazebug/internal/ast"
)

// FunctionType is a function signature: MVP allows at most one result.
type FunctionType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// HostFunc is an imported function's handle. It is invoked with
// already-coerced arguments and may block before producing a result: the
// engine runs it on the driver goroutine while the calling task stays
// suspended — see internal/engine/interpreter/scheduler.go.
type HostFunc func(ctx HostCallContext, args []uint64) ([]uint64, error)

// HostCallContext is the minimal context a host import receives. It is
// deliberately small: host functions observe the module only as
// documented in spec.md §6's import contract.
type HostCallContext interface {
	Memory() api.Memory
}

// FunctionDescriptor is a module-local function, compiled or imported.
type FunctionDescriptor struct {
	ModuleName string
	Name       string
	Type       FunctionType
	// Locals holds the types of var (non-parameter) locals, appended
	// after Type.Params in the local index space.
	Locals []api.ValueType
	// Body is the top-level instruction sequence; nil for an import.
	Body []*ast.Node
	// Host is non-nil for an import.
	Host HostFunc
}

func (d *FunctionDescriptor) IsImport() bool { return d.Host != nil }

// LocalTypes returns the full local index space: params followed by vars.
func (d *FunctionDescriptor) LocalTypes() []api.ValueType {
	all := make([]api.ValueType, 0, len(d.Type.Params)+len(d.Locals))
	all = append(all, d.Type.Params...)
	all = append(all, d.Locals...)
	return all
}

// CoerceParam applies the coercion rule spec.md §6 requires of imported
// function arguments: i32 truncation, i64 wrapping (both no-ops on an
// already 64-bit slot holding the right bit width), f32 fround, f64
// identity.
func CoerceParam(t api.ValueType, raw uint64) uint64 {
	switch t {
	case api.ValueTypeI32:
		return uint64(uint32(raw))
	case api.ValueTypeF32:
		f := math.Float32frombits(uint32(raw))
		return uint64(math.Float32bits(f))
	default: // i64, f64: already exact.
		return raw
	}
}

// DefaultValue returns the zero value of t, used to initialize var locals.
func DefaultValue(t api.ValueType) uint64 { return 0 }
