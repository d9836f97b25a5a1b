// Package api includes types shared by the end-user surface and the
// internal engine. Modeled on the teacher's api package: a small set of
// decoupling interfaces, not an implementation.
package api

import "context"

// ValueType is one of the four MVP WebAssembly numeric types.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// ValueTypeName returns the WebAssembly text format name of t, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// Value is a tagged union over the four MVP numeric types (spec.md §3). It
// is used only where a typed value must be carried outside the raw
// uint64-slot representation the engine uses internally — e.g. frame
// snapshots and debugger-facing APIs.
type Value struct {
	Type ValueType
	Bits uint64
}

// Function is an exported WebAssembly function, invoked by bit-pattern
// encoded parameters and returning bit-pattern encoded results.
//
// Call may suspend internally (an awaited host import, or the debugger
// hook) without this being visible to the caller: from the caller's view
// this is an ordinary blocking call.
type Function interface {
	Definition() FunctionDefinition
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// FunctionDefinition is metadata about a function, imported or defined.
type FunctionDefinition interface {
	ModuleName() string
	Name() string
	ParamTypes() []ValueType
	ResultTypes() []ValueType
	// Import returns true with the module/name pair when this definition
	// is satisfied by a host import rather than a module-local body.
	Import() (moduleName, name string, isImport bool)
}

// Memory is the linear memory of an instance: an opaque, host-owned byte
// buffer resizable in 65536-byte pages. It is treated as an external
// collaborator — the engine only ever Reads, Writes, Sizes or Grows it.
type Memory interface {
	// Size returns the size in bytes currently available.
	Size() uint32

	// Grow increases memory by deltaPages 65536-byte pages, returning the
	// previous size in pages, or false if the delta was refused.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// Read returns a byteCount-length view at offset, or false if any
	// part of the range is out of bounds. The slice shares storage with
	// the underlying buffer (write-through), matching the teacher's
	// Memory.Read contract; callers must re-Read after any Grow.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies data into the buffer at offset, or returns false if
	// any part of the range is out of bounds.
	Write(offset uint32, data []byte) bool
}

// Global is a mutable or immutable typed cell owned by an instance.
type Global interface {
	Type() ValueType
	Get() uint64
}

// MutableGlobal is a Global that can be updated by global.set.
type MutableGlobal interface {
	Global
	Set(v uint64)
}

// Table holds function references used by call_indirect. Slots are either
// empty (nil Function) or a concrete function reachable through an
// index-namespace-scoped handle.
type Table interface {
	Len() uint32
	// Get returns the function at index, or nil if the slot is empty, and
	// false if index is out of bounds (TableOutOfBounds).
	Get(index uint32) (fn Function, ok bool)
}
