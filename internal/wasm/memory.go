package wasm

import "github.com/wazebug/wazebug/api"

// PageSize is the WebAssembly linear memory page size in bytes.
const PageSize = 65536

// MemoryInstance is the default api.Memory implementation: a plain,
// growable byte buffer. A host embedder may supply its own api.Memory
// instead (it is treated as an opaque handle by the engine either way).
type MemoryInstance struct {
	buf      []byte
	maxPages uint32
}

// NewMemoryInstance allocates an instance with minPages initial pages and
// a growth ceiling of maxPages.
func NewMemoryInstance(minPages, maxPages uint32) *MemoryInstance {
	return &MemoryInstance{buf: make([]byte, uint64(minPages)*PageSize), maxPages: maxPages}
}

func (m *MemoryInstance) Size() uint32 { return uint32(len(m.buf)) }

func (m *MemoryInstance) Grow(deltaPages uint32) (previousPages uint32, ok bool) {
	prev := uint32(len(m.buf)) / PageSize
	next := uint64(prev) + uint64(deltaPages)
	if next > uint64(m.maxPages) {
		return prev, false
	}
	grown := make([]byte, next*PageSize)
	copy(grown, m.buf)
	m.buf = grown
	return prev, true
}

func (m *MemoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end], true
}

func (m *MemoryInstance) Write(offset uint32, data []byte) bool {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:end], data)
	return true
}

var _ api.Memory = (*MemoryInstance)(nil)

// GlobalInstance is the default Global/MutableGlobal implementation.
type GlobalInstance struct {
	typ     api.ValueType
	mutable bool
	value   uint64
}

func NewGlobalInstance(t api.ValueType, mutable bool, initial uint64) *GlobalInstance {
	return &GlobalInstance{typ: t, mutable: mutable, value: initial}
}

func (g *GlobalInstance) Type() api.ValueType { return g.typ }
func (g *GlobalInstance) Get() uint64         { return g.value }
func (g *GlobalInstance) Set(v uint64) {
	if !g.mutable {
		panic("wasm: Set on immutable global")
	}
	g.value = v
}

var (
	_ api.Global        = (*GlobalInstance)(nil)
	_ api.MutableGlobal = (*GlobalInstance)(nil)
)

// TableInstance is the default Table implementation: a fixed-size slice
// of function references, grown only by the (out-of-scope) instantiation
// glue via Set.
type TableInstance struct {
	elems []api.Function
}

func NewTableInstance(size uint32) *TableInstance {
	return &TableInstance{elems: make([]api.Function, size)}
}

func (t *TableInstance) Len() uint32 { return uint32(len(t.elems)) }

func (t *TableInstance) Get(index uint32) (api.Function, bool) {
	if index >= uint32(len(t.elems)) {
		return nil, false
	}
	return t.elems[index], true
}

// Set installs fn at index; used by instantiation glue, not the engine.
func (t *TableInstance) Set(index uint32, fn api.Function) {
	t.elems[index] = fn
}

var _ api.Table = (*TableInstance)(nil)
