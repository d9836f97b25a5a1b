package interpreter

import (
	"encoding/binary"

	"github.com/wazebug/wazebug/sys"
)

// loadValue reads width bytes at ptr+offset from mem, little-endian, and
// sign- or zero-extends into a 64-bit result per signed/resultIs64
// (spec.md §4.C: "i64 narrow loads/stores convert through a 32-bit
// intermediate"). Traps MemoryAccess if the range falls outside the
// buffer.
func loadValue(mem memoryView, ptr, offset uint32, width byte, signed, resultIs64 bool) (uint64, error) {
	ea := uint64(ptr) + uint64(offset) // no wrap: an effective address past 2^32-1 is out of bounds.
	if ea>>32 != 0 {
		return 0, sys.NewTrapError(sys.MemoryAccess, nil, "load out of bounds")
	}
	buf, ok := mem.Read(uint32(ea), uint32(width))
	if !ok {
		return 0, sys.NewTrapError(sys.MemoryAccess, nil, "load out of bounds")
	}
	var raw uint64
	switch width {
	case 1:
		raw = uint64(buf[0])
	case 2:
		raw = uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		raw = binary.LittleEndian.Uint64(buf)
	}
	if width == 8 {
		return raw, nil
	}
	if !signed {
		return raw, nil
	}
	// Sign-extend through a 32-bit intermediate for i64 results, matching
	// a real i64 narrow load's two-step widen.
	bits := width * 8
	shift := 32 - uint(bits)
	signExtended32 := int32(uint32(raw)<<shift) >> shift
	if resultIs64 {
		return uint64(int64(signExtended32)), nil
	}
	return uint64(uint32(signExtended32)), nil
}

// storeValue writes the low width bytes of v, little-endian, at
// ptr+offset. Traps MemoryAccess if out of bounds.
func storeValue(mem memoryView, ptr, offset uint32, width byte, v uint64) error {
	ea := uint64(ptr) + uint64(offset)
	if ea>>32 != 0 {
		return sys.NewTrapError(sys.MemoryAccess, nil, "store out of bounds")
	}
	addr := uint32(ea)
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	}
	if !mem.Write(addr, buf) {
		return sys.NewTrapError(sys.MemoryAccess, nil, "store out of bounds")
	}
	return nil
}

// memoryView is the subset of api.Memory the load/store fragments need.
// Declared locally (rather than importing api.Memory directly here) only
// to keep this file's dependency surface minimal and obvious; Instance
// satisfies it via its api.Memory-typed field.
type memoryView interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, data []byte) bool
}
