package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazebug/wazebug/api"
)

func TestFrame_PushValueTracksStackPointer(t *testing.T) {
	f := newFrame(nil, "f", 4, nil, false)
	f.pushValue(0, api.ValueTypeI32, 7)
	f.pushValue(1, api.ValueTypeI64, 9)
	require.Equal(t, 2, f.sp)
	require.Equal(t, uint64(7), f.stack[0])
}

func TestFrame_SnapshotWithoutDebugOmitsStackAndLocals(t *testing.T) {
	f := newFrame(nil, "f", 2, []api.ValueType{api.ValueTypeI32}, false)
	f.pushValue(0, api.ValueTypeI32, 42)
	snap := f.snapshot()
	require.Equal(t, "f", snap.FuncName)
	require.Nil(t, snap.Stack)
	require.Nil(t, snap.Locals)
}

func TestFrame_SnapshotWithDebugPopulatesStackAndLocals(t *testing.T) {
	f := newFrame(nil, "f", 2, []api.ValueType{api.ValueTypeI32}, true)
	f.locals[0] = 5
	f.pushValue(0, api.ValueTypeI32, 42)
	snap := f.snapshot()
	require.Equal(t, []api.Value{{Type: api.ValueTypeI32, Bits: 42}}, snap.Stack)
	require.Equal(t, []api.Value{{Type: api.ValueTypeI32, Bits: 5}}, snap.Locals)
}

func TestFrame_SnapshotReflectsLiveStateAtCallTime(t *testing.T) {
	f := newFrame(nil, "f", 2, nil, true)
	tr := &tracerStack{}
	tr.push(f)

	f.pushValue(0, api.ValueTypeI32, 1)
	first := tr.StackTrace(0, unsetRange)
	require.Equal(t, []api.Value{{Type: api.ValueTypeI32, Bits: 1}}, first[0].Stack)

	f.pushValue(0, api.ValueTypeI32, 2)
	second := tr.StackTrace(0, unsetRange)
	require.Equal(t, []api.Value{{Type: api.ValueTypeI32, Bits: 2}}, second[0].Stack)
}

func TestTracerStack_PushPopDepth(t *testing.T) {
	var tr tracerStack
	f1 := newFrame(nil, "a", 0, nil, false)
	f2 := newFrame(nil, "b", 0, nil, false)
	tr.push(f1)
	tr.push(f2)
	require.Equal(t, 2, tr.depth())
	tr.pop()
	require.Equal(t, 1, tr.depth())
}

func TestTracerStack_StackTraceRange(t *testing.T) {
	var tr tracerStack
	names := []string{"a", "b", "c"}
	for _, n := range names {
		tr.push(newFrame(nil, n, 0, nil, false))
	}

	all := tr.StackTrace(unsetRange, unsetRange)
	require.Len(t, all, 3)
	require.Equal(t, "a", all[0].FuncName)

	last := tr.StackTrace(-1, unsetRange)
	require.Len(t, last, 1)
	require.Equal(t, "c", last[0].FuncName)

	none := tr.StackTrace(2, 1)
	require.Nil(t, none)
}
