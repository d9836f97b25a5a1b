package interpreter

import (
	"context"

	"github.com/wazebug/wazebug/internal/ast"
	"github.com/wazebug/wazebug/internal/wasm"
	"github.com/wazebug/wazebug/sys"
)

// callable is either a module-local compiled function or a host import,
// addressed uniformly by Call/CallIndirect. Resolution happens at run
// time (by name for Call, by table slot for CallIndirect) rather than at
// compile time, since an Instance's function set isn't assembled until
// every function in the module has been compiled.
type callable interface {
	invoke(ec *execContext, args []uint64) ([]uint64, error)
	Type() wasm.FunctionType
}

type localCallable struct {
	name string
	fn   *compiledFunction
}

func (lc *localCallable) Type() wasm.FunctionType { return lc.fn.desc.Type }

func (lc *localCallable) invoke(ec *execContext, args []uint64) ([]uint64, error) {
	return ec.instance.callCompiled(ec, lc.name, lc.fn, args)
}

type importCallable struct {
	desc *wasm.FunctionDescriptor
}

func (ic *importCallable) Type() wasm.FunctionType { return ic.desc.Type }

func (ic *importCallable) invoke(ec *execContext, args []uint64) ([]uint64, error) {
	coerced := make([]uint64, len(args))
	for i, v := range args {
		coerced[i] = wasm.CoerceParam(ic.desc.Type.Params[i], v)
	}
	host := func(ctx context.Context, hc hostCallContext, a []uint64) ([]uint64, error) {
		return ic.desc.Host(hc.(wasm.HostCallContext), a)
	}
	results, err := ec.ce.awaitHostCall(host, ec, coerced)
	if err != nil {
		return nil, sys.NewTrapError(sys.ImportError, nil, err.Error())
	}
	return results, nil
}

func sigMatches(a, b wasm.FunctionType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

func (c *funcCompiler) compileCall(n *ast.Node) []*compiledOp {
	var ops []*compiledOp
	for _, a := range n.Args {
		ops = append(ops, c.compileNode(a)...)
	}
	argSlots := c.stack.popN(len(n.Args))
	var resultSlot int
	if n.HasResult {
		resultSlot = c.stack.push()
	}
	callee, hasResult, t := n.Callee, n.HasResult, n.ResultType
	exec := func(ec *execContext) error {
		args := make([]uint64, len(argSlots))
		for i, s := range argSlots {
			args[i] = ec.frame.stack[s]
		}
		target, ok := ec.instance.callables[callee]
		if !ok {
			return sys.NewTrapError(sys.ImportError, n, "unresolved call target "+callee)
		}
		results, err := target.invoke(ec, args)
		if err != nil {
			return err
		}
		if hasResult {
			ec.frame.pushValue(resultSlot, t, results[0])
		}
		return nil
	}
	ops = append(ops, c.newOp(n, false, exec))
	return ops
}

func (c *funcCompiler) compileCallIndirect(n *ast.Node) []*compiledOp {
	var ops []*compiledOp
	for _, a := range n.Args {
		ops = append(ops, c.compileNode(a)...)
	}
	ops = append(ops, c.compileNode(n.TableIndex)...)
	tblSlot := c.stack.pop()
	argSlots := c.stack.popN(len(n.Args))
	var resultSlot int
	if n.HasResult {
		resultSlot = c.stack.push()
	}
	sig := wasm.FunctionType{Params: n.SigParams, Results: n.SigResults}
	hasResult, t := n.HasResult, n.ResultType
	exec := func(ec *execContext) error {
		idx := uint32(ec.frame.stack[tblSlot])
		fn, ok := ec.instance.table.Get(idx)
		if !ok {
			return sys.NewTrapError(sys.TableOutOfBounds, n, "indirect call index out of bounds")
		}
		target, ok := ec.instance.callableOf(fn)
		if !ok || !sigMatches(target.Type(), sig) {
			return sys.NewTrapError(sys.IndirectCallTypeMismatch, n, "indirect call signature mismatch")
		}
		args := make([]uint64, len(argSlots))
		for i, s := range argSlots {
			args[i] = ec.frame.stack[s]
		}
		results, err := target.invoke(ec, args)
		if err != nil {
			return err
		}
		if hasResult {
			ec.frame.pushValue(resultSlot, t, results[0])
		}
		return nil
	}
	ops = append(ops, c.newOp(n, false, exec))
	return ops
}
