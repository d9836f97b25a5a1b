// Package pprofutil exports breakpoint hit counts gathered by a debugger
// hook (see interpreter.Instance.BreakpointHits) as a pprof profile, so the
// same "go tool pprof" workflow used for host-side sampling profiles can be
// pointed at the AST locations a debug session spent time stopped on.
package pprofutil

import (
	"fmt"
	"io"
	"time"

	"github.com/google/pprof/profile"

	"github.com/wazebug/wazebug/internal/engine/interpreter"
)

// hitSource is the subset of *interpreter.Instance this package depends on;
// declared as an interface so callers can pass any instance (or a fake) in
// tests without importing the engine package directly.
type hitSource interface {
	BreakpointHits() ([]interpreter.SourceLocation, []uint64)
}

// BuildProfile converts every location inst's debug registry has indexed
// (see Instance.BreakpointHits) into a pprof sample whose value is its hit count. Locations never
// hit are included with a zero sample, matching how runtime/pprof reports
// zero-count functions: present in the profile, invisible in most views.
func BuildProfile(inst hitSource) *profile.Profile {
	locs, counts := inst.BreakpointHits()

	prof := &profile.Profile{
		SampleType:    []*profile.ValueType{{Type: "breakpoint_hits", Unit: "count"}},
		TimeNanos:     unixNano(),
		DurationNanos: 0,
	}

	for i, loc := range locs {
		fn := &profile.Function{
			ID:   uint64(i + 1),
			Name: fmt.Sprintf("node#%d (kind %d)", loc.ID, loc.Kind),
		}
		line := profile.Line{Function: fn, Line: int64(loc.ID)}
		pl := &profile.Location{
			ID:   uint64(i + 1),
			Line: []profile.Line{line},
		}
		prof.Function = append(prof.Function, fn)
		prof.Location = append(prof.Location, pl)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{pl},
			Value:    []int64{int64(counts[i])},
		})
	}

	return prof
}

// Write serializes the breakpoint-hit profile for inst to w in pprof's
// gzip-compressed protobuf format.
func Write(w io.Writer, inst hitSource) error {
	return BuildProfile(inst).Write(w)
}

// unixNano is split out so tests covering BuildProfile's shape don't depend
// on wall-clock time; production callers always get time.Now().
var unixNano = func() int64 { return time.Now().UnixNano() }
