package pprofutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazebug/wazebug/internal/ast"
	"github.com/wazebug/wazebug/internal/engine/interpreter"
)

type fakeHitSource struct {
	locs   []interpreter.SourceLocation
	counts []uint64
}

func (f *fakeHitSource) BreakpointHits() ([]interpreter.SourceLocation, []uint64) {
	return f.locs, f.counts
}

func TestBuildProfile_OneSamplePerLocation(t *testing.T) {
	src := &fakeHitSource{
		locs:   []interpreter.SourceLocation{{ID: 1, Kind: ast.KindReturn}, {ID: 2, Kind: ast.KindCall}},
		counts: []uint64{3, 0},
	}

	prof := BuildProfile(src)
	require.Len(t, prof.Sample, 2)
	require.Len(t, prof.Function, 2)
	require.Equal(t, []int64{3}, prof.Sample[0].Value)
	require.Equal(t, []int64{0}, prof.Sample[1].Value)
	require.Equal(t, "breakpoint_hits", prof.SampleType[0].Type)
}

func TestBuildProfile_EmptyWhenNoLocations(t *testing.T) {
	src := &fakeHitSource{}
	prof := BuildProfile(src)
	require.Empty(t, prof.Sample)
}
