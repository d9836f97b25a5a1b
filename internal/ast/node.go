// Package ast defines the decoded expression tree the engine compiles.
//
// Decoding a WebAssembly binary into this tree is out of scope for this
// module (spec.md §1 treats the wire-format decoder as an external
// collaborator); Builder exists only so tests and embedders without a full
// decoder can construct trees directly.
package ast

import "github.com/wazebug/wazebug/api"

// Kind discriminates the node variants named in spec.md §3.
type Kind uint8

const (
	KindBlock Kind = iota
	KindIf
	KindLoop
	KindBreak
	KindSwitch // br_table
	KindCall
	KindCallIndirect
	KindLocalGet
	KindLocalSet
	KindGlobalGet
	KindGlobalSet
	KindLoad
	KindStore
	KindConst
	KindUnary
	KindBinary
	KindSelect
	KindDrop
	KindReturn
	KindMemorySize
	KindMemoryGrow
	KindNop
	KindUnreachable
)

// Opcode identifies the specific numeric operation of a Unary/Binary node,
// or the specific width/sign combination of a Load/Store node.
type Opcode uint16

//go:generate stringer -type=Opcode

const (
	OpNone Opcode = iota

	// Unary
	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32EqZ
	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpI64EqZ
	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt
	OpI32WrapI64
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF32ConvertI64S
	OpF32ConvertI64U
	OpF32DemoteF64
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpF64PromoteF32
	OpI32ReinterpretF32
	OpI64ReinterpretF64
	OpF32ReinterpretI32
	OpF64ReinterpretI64

	// Binary
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign
	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge
)

// Node is an immutable decoded AST node. Its identity (ID) is a stable
// source location for the lifetime of the owning module, per spec.md §9's
// design note preferring dense integer ids over raw pointer identity.
type Node struct {
	ID   int32
	Kind Kind

	HasResult  bool
	ResultType api.ValueType

	// Block/Loop
	Label string
	Body  []*Node
	// Block's declared result type is ResultType/HasResult; If shares
	// the same fields for its own result.

	// If
	Cond *Node
	Then []*Node
	Else []*Node

	// Break (br / br_if): branches to the block/loop named Target. If Cond
	// is non-nil this is a conditional branch (br_if).
	Target string

	// Switch (br_table)
	Targets []string
	Default string
	Index   *Node

	// Call
	Callee string
	Args   []*Node

	// CallIndirect
	SigParams  []api.ValueType
	SigResults []api.ValueType
	TableIndex *Node

	// LocalGet/LocalSet/GlobalGet/GlobalSet
	LocalOrGlobalIndex uint32
	Tee                bool
	Value              *Node

	// Load/Store
	Ptr     *Node
	Offset  uint32
	Width   byte // 1, 2, 4, or 8
	Signed  bool // narrow-load sign extension
	StoreTo *Node

	// Const
	Bits uint64

	// Unary/Binary/Select
	Op       Opcode
	Operand  *Node // Unary
	Left     *Node // Binary
	Right    *Node // Binary
	SelCond  *Node // Select condition
	SelThen  *Node
	SelElse  *Node
}

// Operands returns n's value-typed children in left-to-right evaluation
// order — the "n value-typed children" spec.md §4.C's compile-time stack
// discipline recurses over. Control-structure bodies (Block/Loop/If
// branches) are not operands: they are statement sequences lowered
// separately by the control-structure compiler.
func (n *Node) Operands() []*Node {
	switch n.Kind {
	case KindIf:
		return []*Node{n.Cond}
	case KindBreak:
		if n.Cond != nil {
			return []*Node{n.Cond}
		}
		return nil
	case KindSwitch:
		return []*Node{n.Index}
	case KindCall:
		return n.Args
	case KindCallIndirect:
		ops := make([]*Node, 0, len(n.Args)+1)
		ops = append(ops, n.Args...)
		ops = append(ops, n.TableIndex)
		return ops
	case KindLocalSet, KindGlobalSet:
		return []*Node{n.Value}
	case KindLoad:
		return []*Node{n.Ptr}
	case KindStore:
		return []*Node{n.Ptr, n.StoreTo}
	case KindUnary:
		return []*Node{n.Operand}
	case KindBinary:
		return []*Node{n.Left, n.Right}
	case KindSelect:
		return []*Node{n.SelThen, n.SelElse, n.SelCond}
	case KindDrop:
		return []*Node{n.Operand}
	case KindReturn:
		if n.Operand != nil {
			return []*Node{n.Operand}
		}
		return nil
	case KindMemoryGrow:
		return []*Node{n.Operand}
	default:
		return nil
	}
}

// AllChildren returns every node reachable as a direct child of n,
// including control-structure bodies. The classifier (internal/engine/
// interpreter/classify.go) uses this to decide fallibility/
// interruptibility over n's whole subtree; the compiler uses the
// narrower Operands for value-stack discipline and handles bodies itself.
func (n *Node) AllChildren() []*Node {
	var out []*Node
	switch n.Kind {
	case KindBlock, KindLoop:
		return n.Body
	case KindIf:
		out = append(out, n.Cond)
		out = append(out, n.Then...)
		out = append(out, n.Else...)
	default:
		out = n.Operands()
	}
	return out
}

// Builder assigns dense, stable IDs to nodes as they are constructed,
// standing in for the decoder's own id assignment (spec.md §9).
type Builder struct{ next int32 }

func (b *Builder) new(k Kind) *Node {
	n := &Node{ID: b.next, Kind: k}
	b.next++
	return n
}

func (b *Builder) Block(label string, hasResult bool, rt api.ValueType, body ...*Node) *Node {
	n := b.new(KindBlock)
	n.Label, n.HasResult, n.ResultType, n.Body = label, hasResult, rt, body
	return n
}

func (b *Builder) Loop(label string, hasResult bool, rt api.ValueType, body ...*Node) *Node {
	n := b.new(KindLoop)
	n.Label, n.HasResult, n.ResultType, n.Body = label, hasResult, rt, body
	return n
}

func (b *Builder) If(hasResult bool, rt api.ValueType, cond *Node, then, els []*Node) *Node {
	n := b.new(KindIf)
	n.HasResult, n.ResultType, n.Cond, n.Then, n.Else = hasResult, rt, cond, then, els
	return n
}

func (b *Builder) Br(target string, cond *Node) *Node {
	n := b.new(KindBreak)
	n.Target, n.Cond = target, cond
	return n
}

func (b *Builder) BrTable(targets []string, def string, index *Node) *Node {
	n := b.new(KindSwitch)
	n.Targets, n.Default, n.Index = targets, def, index
	return n
}

func (b *Builder) Call(callee string, hasResult bool, rt api.ValueType, args ...*Node) *Node {
	n := b.new(KindCall)
	n.Callee, n.HasResult, n.ResultType, n.Args = callee, hasResult, rt, args
	return n
}

func (b *Builder) CallIndirect(params, results []api.ValueType, tableIndex *Node, args ...*Node) *Node {
	n := b.new(KindCallIndirect)
	n.SigParams, n.SigResults, n.TableIndex, n.Args = params, results, tableIndex, args
	n.HasResult = len(results) > 0
	if n.HasResult {
		n.ResultType = results[0]
	}
	return n
}

func (b *Builder) LocalGet(index uint32, t api.ValueType) *Node {
	n := b.new(KindLocalGet)
	n.LocalOrGlobalIndex, n.HasResult, n.ResultType = index, true, t
	return n
}

func (b *Builder) LocalSet(index uint32, value *Node, tee bool, t api.ValueType) *Node {
	n := b.new(KindLocalSet)
	n.LocalOrGlobalIndex, n.Value, n.Tee = index, value, tee
	if tee {
		n.HasResult, n.ResultType = true, t
	}
	return n
}

func (b *Builder) GlobalGet(index uint32, t api.ValueType) *Node {
	n := b.new(KindGlobalGet)
	n.LocalOrGlobalIndex, n.HasResult, n.ResultType = index, true, t
	return n
}

func (b *Builder) GlobalSet(index uint32, value *Node) *Node {
	n := b.new(KindGlobalSet)
	n.LocalOrGlobalIndex, n.Value = index, value
	return n
}

func (b *Builder) Load(rt api.ValueType, width byte, signed bool, offset uint32, ptr *Node) *Node {
	n := b.new(KindLoad)
	n.HasResult, n.ResultType, n.Width, n.Signed, n.Offset, n.Ptr = true, rt, width, signed, offset, ptr
	return n
}

func (b *Builder) Store(width byte, offset uint32, ptr, value *Node) *Node {
	n := b.new(KindStore)
	n.Width, n.Offset, n.Ptr, n.StoreTo = width, offset, ptr, value
	return n
}

func (b *Builder) Const(t api.ValueType, bits uint64) *Node {
	n := b.new(KindConst)
	n.HasResult, n.ResultType, n.Bits = true, t, bits
	return n
}

func (b *Builder) Unary(op Opcode, rt api.ValueType, operand *Node) *Node {
	n := b.new(KindUnary)
	n.Op, n.HasResult, n.ResultType, n.Operand = op, true, rt, operand
	return n
}

func (b *Builder) Binary(op Opcode, rt api.ValueType, left, right *Node) *Node {
	n := b.new(KindBinary)
	n.Op, n.HasResult, n.ResultType, n.Left, n.Right = op, true, rt, left, right
	return n
}

func (b *Builder) Select(rt api.ValueType, then, els, cond *Node) *Node {
	n := b.new(KindSelect)
	n.HasResult, n.ResultType, n.SelThen, n.SelElse, n.SelCond = true, rt, then, els, cond
	return n
}

func (b *Builder) Drop(operand *Node) *Node {
	n := b.new(KindDrop)
	n.Operand = operand
	return n
}

func (b *Builder) Return(operand *Node) *Node {
	n := b.new(KindReturn)
	n.Operand = operand
	return n
}

func (b *Builder) MemorySize() *Node {
	n := b.new(KindMemorySize)
	n.HasResult, n.ResultType = true, api.ValueTypeI32
	return n
}

func (b *Builder) MemoryGrow(delta *Node) *Node {
	n := b.new(KindMemoryGrow)
	n.HasResult, n.ResultType, n.Operand = true, api.ValueTypeI32, delta
	return n
}

func (b *Builder) Nop() *Node { return b.new(KindNop) }

func (b *Builder) Unreachable() *Node { return b.new(KindUnreachable) }
