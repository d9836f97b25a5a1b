// Package sys holds the error types an instance surfaces to its callers,
// mirroring the teacher's sys.ExitError: a small set of concrete error
// types compared with errors.Is rather than a sentinel-value taxonomy.
package sys

import (
	"fmt"

	"github.com/wazebug/wazebug/internal/ast"
)

// TrapKind is the trap taxonomy of spec.md §7.
type TrapKind uint8

const (
	Unreachable TrapKind = iota
	MemoryAccess
	IntegerDivideByZero
	IntegerOverflow
	InvalidConversion
	IndirectCallTypeMismatch
	TableOutOfBounds
	ImportError
	DebuggerAbort
)

func (k TrapKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case MemoryAccess:
		return "memory access out of bounds"
	case IntegerDivideByZero:
		return "integer divide by zero"
	case IntegerOverflow:
		return "integer overflow"
	case InvalidConversion:
		return "invalid conversion to integer"
	case IndirectCallTypeMismatch:
		return "indirect call type mismatch"
	case TableOutOfBounds:
		return "undefined element"
	case ImportError:
		return "import error"
	case DebuggerAbort:
		return "debugger abort"
	}
	return "unknown trap"
}

// TrapError is returned to the caller of a top-level export when
// execution traps, per spec.md §7. A snapshot taken during unwind (see
// interpreter.FrameSnapshot) reflects the location that trapped.
type TrapError struct {
	Location *ast.Node
	Kind     TrapKind
	Message  string
}

// NewTrapError builds a TrapError. message may be empty, in which case
// Kind's default description is used by Error().
func NewTrapError(kind TrapKind, loc *ast.Node, message string) *TrapError {
	return &TrapError{Location: loc, Kind: kind, Message: message}
}

func (e *TrapError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("wasm trap: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("wasm trap: %s", e.Kind)
}

// Is reports whether target is a *TrapError with the same Kind, so
// callers can do errors.Is(err, sys.NewTrapError(sys.Unreachable, nil, ""))
// without caring about Location or Message.
func (e *TrapError) Is(target error) bool {
	t, ok := target.(*TrapError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
