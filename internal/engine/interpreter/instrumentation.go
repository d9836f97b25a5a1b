package interpreter

import (
	"sort"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/wazebug/wazebug/internal/ast"
)

// SourceLocation is the opaque, comparable token spec.md §6 describes: an
// AST node's identity. The engine never interprets it beyond comparison
// and use as a debugRegistry key.
type SourceLocation = *ast.Node

// debugRegistry is the three-parallel-array structure of spec.md §3/§4.D.
// It is owned by an instance and shared by every compiled function in it,
// since breakpoints are set per source location, not per invocation.
type debugRegistry struct {
	mu sync.Mutex

	indexOf map[SourceLocation]int // stable, grow-only

	active               []uint32 // 0 or 1, indexed by breakpoint index
	sequenceOf           []int32  // -1 or a sequence index
	activeSequenceCount  []int32  // indexed by sequence index

	armed map[SourceLocation]struct{}

	sequences [][]int // sequence index -> member breakpoint indices

	singleStep bool

	hits []uint64 // indexed by breakpoint index, for pprofutil export
}

func newDebugRegistry() *debugRegistry {
	return &debugRegistry{
		indexOf: make(map[SourceLocation]int),
		armed:   make(map[SourceLocation]struct{}),
	}
}

// indexFor returns the dense breakpoint index for loc, allocating one (and
// extending active/sequenceOf) the first time loc is referenced.
func (r *debugRegistry) indexFor(loc SourceLocation) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexForLocked(loc)
}

func (r *debugRegistry) indexForLocked(loc SourceLocation) int {
	if i, ok := r.indexOf[loc]; ok {
		return i
	}
	i := len(r.active)
	r.indexOf[loc] = i
	r.active = append(r.active, 0)
	r.sequenceOf = append(r.sequenceOf, -1)
	r.hits = append(r.hits, 0)
	return i
}

// registerSequence assigns a new sequence id to members (dense breakpoint
// indices, already allocated via indexFor), extending
// activeSequenceCount by one.
func (r *debugRegistry) registerSequence(members []int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := len(r.sequences)
	r.sequences = append(r.sequences, members)
	r.activeSequenceCount = append(r.activeSequenceCount, 0)
	for _, idx := range members {
		r.sequenceOf[idx] = int32(seq)
	}
	return seq
}

// SetBreakpoint arms loc. Idempotent.
func (r *debugRegistry) SetBreakpoint(loc SourceLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, already := r.armed[loc]; already {
		return
	}
	r.armed[loc] = struct{}{}
	idx := r.indexForLocked(loc)
	if r.singleStep {
		return // active/activeSequenceCount are already flooded open.
	}
	r.active[idx] = 1
	if seq := r.sequenceOf[idx]; seq >= 0 {
		r.activeSequenceCount[seq]++
	}
}

// ClearBreakpoint disarms loc. Idempotent.
func (r *debugRegistry) ClearBreakpoint(loc SourceLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, already := r.armed[loc]; !already {
		return
	}
	delete(r.armed, loc)
	idx := r.indexForLocked(loc)
	if r.singleStep {
		return
	}
	r.active[idx] = 0
	if seq := r.sequenceOf[idx]; seq >= 0 {
		r.activeSequenceCount[seq]--
	}
}

// HasBreakpoint reports whether loc is in the armed set.
func (r *debugRegistry) HasBreakpoint(loc SourceLocation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.armed[loc]
	return ok
}

// Breakpoints returns a stable-ordered snapshot of the armed set.
func (r *debugRegistry) Breakpoints() []SourceLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SourceLocation, 0, len(r.armed))
	for loc := range r.armed {
		out = append(out, loc)
	}
	slices.SortFunc(out, func(a, b SourceLocation) bool { return a.ID < b.ID })
	return out
}

// SetSingleStep enables or disables single-step mode (spec.md §4.D):
// enabling floods every active/activeSequenceCount entry open; disabling
// clears them, then re-applies the armed set. The armed set itself never
// changes.
func (r *debugRegistry) SetSingleStep(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.singleStep == on {
		return
	}
	r.singleStep = on
	if on {
		for i := range r.active {
			r.active[i] = 1
		}
		for i := range r.activeSequenceCount {
			r.activeSequenceCount[i] = 1
		}
		return
	}
	for i := range r.active {
		r.active[i] = 0
	}
	for i := range r.activeSequenceCount {
		r.activeSequenceCount[i] = 0
	}
	for loc := range r.armed {
		idx := r.indexForLocked(loc)
		r.active[idx] = 1
		if seq := r.sequenceOf[idx]; seq >= 0 {
			r.activeSequenceCount[seq]++
		}
	}
}

// isActive reports whether the location at breakpoint index idx must call
// the debugger hook right now.
func (r *debugRegistry) isActive(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[idx] != 0
}

// sequenceOpen reports whether any location in seq is currently armed
// (spec.md §4.D's gate check: activeSequenceCount[seq] != 0).
func (r *debugRegistry) sequenceOpen(seq int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < 0 {
		return false
	}
	return r.activeSequenceCount[seq] != 0
}

// recordHit tallies a debugger invocation at idx, for pprofutil export.
func (r *debugRegistry) recordHit(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[idx]++
}

// sortedLocations returns a stable-ordered snapshot of every location ever
// referenced by a breakpoint index, for export via pprofutil.
func (r *debugRegistry) sortedLocations() []SourceLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	locs := make([]SourceLocation, 0, len(r.indexOf))
	for loc := range r.indexOf {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].ID < locs[j].ID })
	return locs
}

// hitCounts returns a snapshot of per-location hit counts keyed the same
// way as sortedLocations, in the same order.
func (r *debugRegistry) hitCounts(locs []SourceLocation) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(locs))
	for i, loc := range locs {
		out[i] = r.hits[r.indexOf[loc]]
	}
	return out
}
