package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlSignal_BranchMatching(t *testing.T) {
	sig := &controlSignal{branch: true, target: "outer"}

	require.True(t, isBranchTo(sig, "outer"))
	require.False(t, isBranchTo(sig, "inner"))
	require.False(t, isReturn(sig))
}

func TestControlSignal_Return(t *testing.T) {
	sig := &controlSignal{branch: false}

	require.True(t, isReturn(sig))
	require.False(t, isBranchTo(sig, "outer"))
}

func TestControlSignal_NotAControlSignal(t *testing.T) {
	require.False(t, isBranchTo(nil, "outer"))
	require.False(t, isReturn(nil))
}

func TestControlSignal_ErrorStrings(t *testing.T) {
	require.Equal(t, "branch to outer", (&controlSignal{branch: true, target: "outer"}).Error())
	require.Equal(t, "return", (&controlSignal{branch: false}).Error())
}
