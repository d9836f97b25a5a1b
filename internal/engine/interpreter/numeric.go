package interpreter

import (
	"math"
	"math/bits"

	"github.com/wazebug/wazebug/internal/ast"
	"github.com/wazebug/wazebug/sys"
)

// unaryFn and binaryFn are the "operation fragments" spec.md §4.C
// describes: the instruction fragment that produces a node's result from
// its already-popped inputs. They operate on raw 64-bit slot bits; the
// compiler has already resolved, at compile time, which fn applies to a
// given node's opcode (spec.md §4.F: small tables, not a switch walked at
// run time).
type unaryFn func(a uint64) (uint64, error)
type binaryFn func(a, b uint64) (uint64, error)

// unaryOps and binaryOps are indexed by ast.Opcode. Building them as flat
// tables rather than one exhaustive switch keeps each opcode family
// (clz/ctz/popcnt, trunc, convert, reinterpret, ...) visually grouped, per
// spec.md §4.F.
var unaryOps = buildUnaryOps()
var binaryOps = buildBinaryOps()

func buildUnaryOps() map[ast.Opcode]unaryFn {
	m := map[ast.Opcode]unaryFn{}

	// Integer bit-counting, both widths.
	m[ast.OpI32Clz] = func(a uint64) (uint64, error) { return uint64(bits.LeadingZeros32(uint32(a))), nil }
	m[ast.OpI32Ctz] = func(a uint64) (uint64, error) { return uint64(bits.TrailingZeros32(uint32(a))), nil }
	m[ast.OpI32Popcnt] = func(a uint64) (uint64, error) { return uint64(bits.OnesCount32(uint32(a))), nil }
	m[ast.OpI32EqZ] = func(a uint64) (uint64, error) { return b2u(uint32(a) == 0), nil }
	m[ast.OpI64Clz] = func(a uint64) (uint64, error) { return uint64(bits.LeadingZeros64(a)), nil }
	m[ast.OpI64Ctz] = func(a uint64) (uint64, error) { return uint64(bits.TrailingZeros64(a)), nil }
	m[ast.OpI64Popcnt] = func(a uint64) (uint64, error) { return uint64(bits.OnesCount64(a)), nil }
	m[ast.OpI64EqZ] = func(a uint64) (uint64, error) { return b2u(a == 0), nil }

	// f32
	m[ast.OpF32Abs] = f32Unary(func(f float32) float32 { return float32(math.Abs(float64(f))) })
	m[ast.OpF32Neg] = f32Unary(func(f float32) float32 { return -f })
	m[ast.OpF32Ceil] = f32Unary(func(f float32) float32 { return float32(math.Ceil(float64(f))) })
	m[ast.OpF32Floor] = f32Unary(func(f float32) float32 { return float32(math.Floor(float64(f))) })
	m[ast.OpF32Trunc] = f32Unary(func(f float32) float32 { return float32(math.Trunc(float64(f))) })
	m[ast.OpF32Nearest] = f32Unary(func(f float32) float32 { return float32(math.RoundToEven(float64(f))) })
	m[ast.OpF32Sqrt] = f32Unary(func(f float32) float32 { return float32(math.Sqrt(float64(f))) })

	// f64
	m[ast.OpF64Abs] = f64Unary(math.Abs)
	m[ast.OpF64Neg] = f64Unary(func(f float64) float64 { return -f })
	m[ast.OpF64Ceil] = f64Unary(math.Ceil)
	m[ast.OpF64Floor] = f64Unary(math.Floor)
	m[ast.OpF64Trunc] = f64Unary(math.Trunc)
	m[ast.OpF64Nearest] = f64Unary(math.RoundToEven)
	m[ast.OpF64Sqrt] = f64Unary(math.Sqrt)

	// Conversions within integer widths.
	m[ast.OpI32WrapI64] = func(a uint64) (uint64, error) { return uint64(uint32(a)), nil }
	m[ast.OpI64ExtendI32S] = func(a uint64) (uint64, error) { return uint64(int64(int32(uint32(a)))), nil }
	m[ast.OpI64ExtendI32U] = func(a uint64) (uint64, error) { return uint64(uint32(a)), nil }

	// Float-to-int truncation: fallible (spec.md §9 Open Question).
	m[ast.OpI32TruncF32S] = truncToInt(32, true, func(a uint64) float64 { return float64(math.Float32frombits(uint32(a))) })
	m[ast.OpI32TruncF32U] = truncToInt(32, false, func(a uint64) float64 { return float64(math.Float32frombits(uint32(a))) })
	m[ast.OpI32TruncF64S] = truncToInt(32, true, func(a uint64) float64 { return math.Float64frombits(a) })
	m[ast.OpI32TruncF64U] = truncToInt(32, false, func(a uint64) float64 { return math.Float64frombits(a) })
	m[ast.OpI64TruncF32S] = truncToInt(64, true, func(a uint64) float64 { return float64(math.Float32frombits(uint32(a))) })
	m[ast.OpI64TruncF32U] = truncToInt(64, false, func(a uint64) float64 { return float64(math.Float32frombits(uint32(a))) })
	m[ast.OpI64TruncF64S] = truncToInt(64, true, func(a uint64) float64 { return math.Float64frombits(a) })
	m[ast.OpI64TruncF64U] = truncToInt(64, false, func(a uint64) float64 { return math.Float64frombits(a) })

	// Int-to-float conversions.
	m[ast.OpF32ConvertI32S] = func(a uint64) (uint64, error) { return u64f32(float32(int32(uint32(a)))), nil }
	m[ast.OpF32ConvertI32U] = func(a uint64) (uint64, error) { return u64f32(float32(uint32(a))), nil }
	m[ast.OpF32ConvertI64S] = func(a uint64) (uint64, error) { return u64f32(float32(int64(a))), nil }
	m[ast.OpF32ConvertI64U] = func(a uint64) (uint64, error) { return u64f32(float32(a)), nil }
	m[ast.OpF32DemoteF64] = func(a uint64) (uint64, error) { return u64f32(float32(math.Float64frombits(a))), nil }
	m[ast.OpF64ConvertI32S] = func(a uint64) (uint64, error) { return math.Float64bits(float64(int32(uint32(a)))), nil }
	m[ast.OpF64ConvertI32U] = func(a uint64) (uint64, error) { return math.Float64bits(float64(uint32(a))), nil }
	m[ast.OpF64ConvertI64S] = func(a uint64) (uint64, error) { return math.Float64bits(float64(int64(a))), nil }
	m[ast.OpF64ConvertI64U] = func(a uint64) (uint64, error) { return math.Float64bits(float64(a)), nil }
	m[ast.OpF64PromoteF32] = func(a uint64) (uint64, error) {
		return math.Float64bits(float64(math.Float32frombits(uint32(a)))), nil
	}

	// Bit-level reinterprets.
	m[ast.OpI32ReinterpretF32] = func(a uint64) (uint64, error) { return uint64(uint32(a)), nil }
	m[ast.OpI64ReinterpretF64] = func(a uint64) (uint64, error) { return a, nil }
	m[ast.OpF32ReinterpretI32] = func(a uint64) (uint64, error) { return uint64(uint32(a)), nil }
	m[ast.OpF64ReinterpretI64] = func(a uint64) (uint64, error) { return a, nil }

	return m
}

func buildBinaryOps() map[ast.Opcode]binaryFn {
	m := map[ast.Opcode]binaryFn{}

	// i32 arithmetic/bitwise — wraps modulo 2^32.
	m[ast.OpI32Add] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) + uint32(b)), nil }
	m[ast.OpI32Sub] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) - uint32(b)), nil }
	m[ast.OpI32Mul] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) * uint32(b)), nil }
	m[ast.OpI32DivS] = i32DivS
	m[ast.OpI32DivU] = i32DivU
	m[ast.OpI32RemS] = i32RemS
	m[ast.OpI32RemU] = i32RemU
	m[ast.OpI32And] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) & uint32(b)), nil }
	m[ast.OpI32Or] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) | uint32(b)), nil }
	m[ast.OpI32Xor] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) ^ uint32(b)), nil }
	m[ast.OpI32Shl] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) << (uint32(b) & 31)), nil }
	m[ast.OpI32ShrS] = func(a, b uint64) (uint64, error) { return uint64(uint32(int32(uint32(a)) >> (uint32(b) & 31))), nil }
	m[ast.OpI32ShrU] = func(a, b uint64) (uint64, error) { return uint64(uint32(a) >> (uint32(b) & 31)), nil }
	m[ast.OpI32Rotl] = func(a, b uint64) (uint64, error) { return uint64(bits.RotateLeft32(uint32(a), int(uint32(b)&31))), nil }
	m[ast.OpI32Rotr] = func(a, b uint64) (uint64, error) {
		return uint64(bits.RotateLeft32(uint32(a), -int(uint32(b)&31))), nil
	}
	m[ast.OpI32Eq] = func(a, b uint64) (uint64, error) { return b2u(uint32(a) == uint32(b)), nil }
	m[ast.OpI32Ne] = func(a, b uint64) (uint64, error) { return b2u(uint32(a) != uint32(b)), nil }
	m[ast.OpI32LtS] = func(a, b uint64) (uint64, error) { return b2u(int32(uint32(a)) < int32(uint32(b))), nil }
	m[ast.OpI32LtU] = func(a, b uint64) (uint64, error) { return b2u(uint32(a) < uint32(b)), nil }
	m[ast.OpI32GtS] = func(a, b uint64) (uint64, error) { return b2u(int32(uint32(a)) > int32(uint32(b))), nil }
	m[ast.OpI32GtU] = func(a, b uint64) (uint64, error) { return b2u(uint32(a) > uint32(b)), nil }
	m[ast.OpI32LeS] = func(a, b uint64) (uint64, error) { return b2u(int32(uint32(a)) <= int32(uint32(b))), nil }
	m[ast.OpI32LeU] = func(a, b uint64) (uint64, error) { return b2u(uint32(a) <= uint32(b)), nil }
	m[ast.OpI32GeS] = func(a, b uint64) (uint64, error) { return b2u(int32(uint32(a)) >= int32(uint32(b))), nil }
	m[ast.OpI32GeU] = func(a, b uint64) (uint64, error) { return b2u(uint32(a) >= uint32(b)), nil }

	// i64 — wraps modulo 2^64.
	m[ast.OpI64Add] = func(a, b uint64) (uint64, error) { return a + b, nil }
	m[ast.OpI64Sub] = func(a, b uint64) (uint64, error) { return a - b, nil }
	m[ast.OpI64Mul] = func(a, b uint64) (uint64, error) { return a * b, nil }
	m[ast.OpI64DivS] = i64DivS
	m[ast.OpI64DivU] = i64DivU
	m[ast.OpI64RemS] = i64RemS
	m[ast.OpI64RemU] = i64RemU
	m[ast.OpI64And] = func(a, b uint64) (uint64, error) { return a & b, nil }
	m[ast.OpI64Or] = func(a, b uint64) (uint64, error) { return a | b, nil }
	m[ast.OpI64Xor] = func(a, b uint64) (uint64, error) { return a ^ b, nil }
	m[ast.OpI64Shl] = func(a, b uint64) (uint64, error) { return a << (b & 63), nil }
	m[ast.OpI64ShrS] = func(a, b uint64) (uint64, error) { return uint64(int64(a) >> (b & 63)), nil }
	m[ast.OpI64ShrU] = func(a, b uint64) (uint64, error) { return a >> (b & 63), nil }
	m[ast.OpI64Rotl] = func(a, b uint64) (uint64, error) { return bits.RotateLeft64(a, int(b&63)), nil }
	m[ast.OpI64Rotr] = func(a, b uint64) (uint64, error) { return bits.RotateLeft64(a, -int(b&63)), nil }
	m[ast.OpI64Eq] = func(a, b uint64) (uint64, error) { return b2u(a == b), nil }
	m[ast.OpI64Ne] = func(a, b uint64) (uint64, error) { return b2u(a != b), nil }
	m[ast.OpI64LtS] = func(a, b uint64) (uint64, error) { return b2u(int64(a) < int64(b)), nil }
	m[ast.OpI64LtU] = func(a, b uint64) (uint64, error) { return b2u(a < b), nil }
	m[ast.OpI64GtS] = func(a, b uint64) (uint64, error) { return b2u(int64(a) > int64(b)), nil }
	m[ast.OpI64GtU] = func(a, b uint64) (uint64, error) { return b2u(a > b), nil }
	m[ast.OpI64LeS] = func(a, b uint64) (uint64, error) { return b2u(int64(a) <= int64(b)), nil }
	m[ast.OpI64LeU] = func(a, b uint64) (uint64, error) { return b2u(a <= b), nil }
	m[ast.OpI64GeS] = func(a, b uint64) (uint64, error) { return b2u(int64(a) >= int64(b)), nil }
	m[ast.OpI64GeU] = func(a, b uint64) (uint64, error) { return b2u(a >= b), nil }

	// f32 — IEEE-754 round-to-nearest-ties-to-even via Go's float32 ops.
	m[ast.OpF32Add] = f32Binary(func(a, b float32) float32 { return a + b })
	m[ast.OpF32Sub] = f32Binary(func(a, b float32) float32 { return a - b })
	m[ast.OpF32Mul] = f32Binary(func(a, b float32) float32 { return a * b })
	m[ast.OpF32Div] = f32Binary(func(a, b float32) float32 { return a / b })
	m[ast.OpF32Min] = f32Binary(wasmFMin32)
	m[ast.OpF32Max] = f32Binary(wasmFMax32)
	m[ast.OpF32Copysign] = f32Binary(func(a, b float32) float32 { return float32(math.Copysign(float64(a), float64(b))) })
	m[ast.OpF32Eq] = f32Compare(func(a, b float32) bool { return a == b })
	m[ast.OpF32Ne] = f32Compare(func(a, b float32) bool { return a != b })
	m[ast.OpF32Lt] = f32Compare(func(a, b float32) bool { return a < b })
	m[ast.OpF32Gt] = f32Compare(func(a, b float32) bool { return a > b })
	m[ast.OpF32Le] = f32Compare(func(a, b float32) bool { return a <= b })
	m[ast.OpF32Ge] = f32Compare(func(a, b float32) bool { return a >= b })

	// f64
	m[ast.OpF64Add] = f64Binary(func(a, b float64) float64 { return a + b })
	m[ast.OpF64Sub] = f64Binary(func(a, b float64) float64 { return a - b })
	m[ast.OpF64Mul] = f64Binary(func(a, b float64) float64 { return a * b })
	m[ast.OpF64Div] = f64Binary(func(a, b float64) float64 { return a / b })
	m[ast.OpF64Min] = f64Binary(wasmFMin64)
	m[ast.OpF64Max] = f64Binary(wasmFMax64)
	m[ast.OpF64Copysign] = f64Binary(math.Copysign)
	m[ast.OpF64Eq] = f64Compare(func(a, b float64) bool { return a == b })
	m[ast.OpF64Ne] = f64Compare(func(a, b float64) bool { return a != b })
	m[ast.OpF64Lt] = f64Compare(func(a, b float64) bool { return a < b })
	m[ast.OpF64Gt] = f64Compare(func(a, b float64) bool { return a > b })
	m[ast.OpF64Le] = f64Compare(func(a, b float64) bool { return a <= b })
	m[ast.OpF64Ge] = f64Compare(func(a, b float64) bool { return a >= b })

	return m
}

func b2u(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func u64f32(f float32) uint64 { return uint64(math.Float32bits(f)) }

func f32Unary(f func(float32) float32) unaryFn {
	return func(a uint64) (uint64, error) { return u64f32(f(math.Float32frombits(uint32(a)))), nil }
}

func f64Unary(f func(float64) float64) unaryFn {
	return func(a uint64) (uint64, error) { return math.Float64bits(f(math.Float64frombits(a))), nil }
}

func f32Binary(f func(a, b float32) float32) binaryFn {
	return func(a, b uint64) (uint64, error) {
		return u64f32(f(math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))), nil
	}
}

func f64Binary(f func(a, b float64) float64) binaryFn {
	return func(a, b uint64) (uint64, error) {
		return math.Float64bits(f(math.Float64frombits(a), math.Float64frombits(b))), nil
	}
}

// f32Compare/f64Compare: comparisons produce 0 or 1; NaN compares false to
// everything including itself, matching IEEE-754 and spec.md §4.C.
func f32Compare(f func(a, b float32) bool) binaryFn {
	return func(a, b uint64) (uint64, error) {
		return b2u(f(math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))), nil
	}
}

func f64Compare(f func(a, b float64) bool) binaryFn {
	return func(a, b uint64) (uint64, error) {
		return b2u(f(math.Float64frombits(a), math.Float64frombits(b))), nil
	}
}

// wasmFMin32/64 and wasmFMax32/64: WebAssembly min/max propagate NaN and
// treat -0 < +0, unlike Go's math.Min/Max which differ on the zero case.
func wasmFMin64(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) || math.Signbit(b) {
			return math.Copysign(0, -1)
		}
		return 0
	}
	if a < b {
		return a
	}
	return b
}

func wasmFMax64(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if !math.Signbit(a) || !math.Signbit(b) {
			return 0
		}
		return math.Copysign(0, -1)
	}
	if a > b {
		return a
	}
	return b
}

func wasmFMin32(a, b float32) float32 { return float32(wasmFMin64(float64(a), float64(b))) }
func wasmFMax32(a, b float32) float32 { return float32(wasmFMax64(float64(a), float64(b))) }

// Signed/unsigned divide and rem, both widths, with the exact trap rules
// of spec.md §4.C: unsigned divide traps on zero divisor; signed divide
// traps on zero divisor or INT_MIN / -1 (overflow); rem follows the
// division's sign rule and never itself overflows.
func i32DivS(a, b uint64) (uint64, error) {
	x, y := int32(uint32(a)), int32(uint32(b))
	if y == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i32.div_s by zero")
	}
	if x == math.MinInt32 && y == -1 {
		return 0, sys.NewTrapError(sys.IntegerOverflow, nil, "i32.div_s overflow")
	}
	return uint64(uint32(x / y)), nil
}

func i32DivU(a, b uint64) (uint64, error) {
	x, y := uint32(a), uint32(b)
	if y == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i32.div_u by zero")
	}
	return uint64(x / y), nil
}

func i32RemS(a, b uint64) (uint64, error) {
	x, y := int32(uint32(a)), int32(uint32(b))
	if y == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i32.rem_s by zero")
	}
	if x == math.MinInt32 && y == -1 {
		return 0, nil
	}
	return uint64(uint32(x % y)), nil
}

func i32RemU(a, b uint64) (uint64, error) {
	x, y := uint32(a), uint32(b)
	if y == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i32.rem_u by zero")
	}
	return uint64(x % y), nil
}

func i64DivS(a, b uint64) (uint64, error) {
	x, y := int64(a), int64(b)
	if y == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i64.div_s by zero")
	}
	if x == math.MinInt64 && y == -1 {
		return 0, sys.NewTrapError(sys.IntegerOverflow, nil, "i64.div_s overflow")
	}
	return uint64(x / y), nil
}

func i64DivU(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i64.div_u by zero")
	}
	return a / b, nil
}

func i64RemS(a, b uint64) (uint64, error) {
	x, y := int64(a), int64(b)
	if y == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i64.rem_s by zero")
	}
	if x == math.MinInt64 && y == -1 {
		return 0, nil
	}
	return uint64(x % y), nil
}

func i64RemU(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, sys.NewTrapError(sys.IntegerDivideByZero, nil, "i64.rem_u by zero")
	}
	return a % b, nil
}

// truncToInt builds a float-to-int truncation fragment for resultBits
// (32 or 64) and signedness, trapping InvalidConversion on NaN or a value
// outside the target range (spec.md §7/§9).
func truncToInt(resultBits int, signed bool, toFloat64 func(uint64) float64) unaryFn {
	return func(a uint64) (uint64, error) {
		f := toFloat64(a)
		if math.IsNaN(f) {
			return 0, sys.NewTrapError(sys.InvalidConversion, nil, "truncation of NaN")
		}
		t := math.Trunc(f)
		switch {
		case resultBits == 32 && signed:
			if t < math.MinInt32 || t > math.MaxInt32 {
				return 0, sys.NewTrapError(sys.InvalidConversion, nil, "i32 truncation out of range")
			}
			return uint64(uint32(int32(t))), nil
		case resultBits == 32 && !signed:
			if t < 0 || t > math.MaxUint32 {
				return 0, sys.NewTrapError(sys.InvalidConversion, nil, "i32 truncation out of range")
			}
			return uint64(uint32(t)), nil
		case resultBits == 64 && signed:
			if t < math.MinInt64 || t >= math.MaxInt64 {
				return 0, sys.NewTrapError(sys.InvalidConversion, nil, "i64 truncation out of range")
			}
			return uint64(int64(t)), nil
		default: // 64, unsigned
			if t < 0 || t >= math.MaxUint64 {
				return 0, sys.NewTrapError(sys.InvalidConversion, nil, "i64 truncation out of range")
			}
			return uint64(t), nil
		}
	}
}
