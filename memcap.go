package wazebug

import "github.com/wazebug/wazebug/api"

// cappedMemory wraps a caller-supplied api.Memory so RuntimeConfig.
// WithMemoryMaxPages is enforced uniformly regardless of what ceiling (if
// any) the underlying memory object applies on its own — mirroring the
// teacher's WithMemoryMaxPages, which clamps growth at the runtime level
// rather than trusting each memory implementation to agree on the limit.
type cappedMemory struct {
	api.Memory
	maxPages uint32
}

func newCappedMemory(mem api.Memory, maxPages uint32) api.Memory {
	if mem == nil {
		return nil
	}
	return &cappedMemory{Memory: mem, maxPages: maxPages}
}

func (m *cappedMemory) Grow(deltaPages uint32) (previousPages uint32, ok bool) {
	prev := m.Memory.Size() / pageSize
	if uint64(prev)+uint64(deltaPages) > uint64(m.maxPages) {
		return prev, false
	}
	return m.Memory.Grow(deltaPages)
}

const pageSize = 65536
