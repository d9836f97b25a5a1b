package sys

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazebug/wazebug/internal/ast"
)

type notTrapError struct{ kind TrapKind }

func (e *notTrapError) Error() string { return "not a trap error" }

func TestTrapError_Is(t *testing.T) {
	loc := &ast.Node{ID: 5}
	err := NewTrapError(Unreachable, loc, "")

	tests := []struct {
		name    string
		target  error
		matches bool
	}{
		{name: "same kind, different location", target: NewTrapError(Unreachable, nil, "boom"), matches: true},
		{name: "different kind", target: NewTrapError(MemoryAccess, loc, ""), matches: false},
		{name: "different type", target: &notTrapError{kind: Unreachable}, matches: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.matches, errors.Is(err, tc.target))
		})
	}
}

func TestTrapError_Error(t *testing.T) {
	require.Equal(t, "wasm trap: unreachable", NewTrapError(Unreachable, nil, "").Error())
	require.Equal(t, "wasm trap: memory access out of bounds: offset 65536 width 4",
		NewTrapError(MemoryAccess, nil, "offset 65536 width 4").Error())
}
