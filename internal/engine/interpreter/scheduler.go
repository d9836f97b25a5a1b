package interpreter

import (
	"context"

	"github.com/wazebug/wazebug/api"
)

// The cooperative scheduling contract of spec.md §5 is implemented with a
// goroutine-per-top-level-call "worker" plus a single rendezvous channel
// pair, the idiomatic Go shape for a generator/coroutine: the worker
// blocks on a channel at every suspension point, which looks like an
// ordinary blocking call from inside the compiled closures (the module
// "observes the host as if it were synchronous"), while the goroutine
// that actually drives resumption — the call's own caller — services one
// request at a time from outside, free to take as long as it needs
// per-request without blocking anything but this one task ("the host
// observes the module as a cooperative task").
//
// Nested module-to-module calls (Call, CallIndirect) are ordinary Go
// function calls on the same worker goroutine: a suspension anywhere in
// the callee blocks the one goroutine for the whole call tree, which is
// exactly the "exactly restored on resumption" ordering spec.md §5
// requires without any extra bookkeeping.

// suspendKind distinguishes why a worker yielded, for the driver loop.
type suspendKind uint8

const (
	suspendHostCall suspendKind = iota
	suspendDebugger
)

type suspendRequest struct {
	kind suspendKind

	// suspendHostCall
	host    wasmHostFunc
	hostCtx hostCallContext
	args    []uint64

	// suspendDebugger
	hook Debugger
}

type suspendResponse struct {
	results []uint64
	err     error
}

// wasmHostFunc and hostCallContext are declared in this file (rather than
// imported from internal/wasm) to keep the scheduler decoupled from the
// module-descriptor package; engine.go adapts between the two.
type wasmHostFunc func(ctx context.Context, hc hostCallContext, args []uint64) ([]uint64, error)

type hostCallContext interface {
	Memory() api.Memory
}

// Debugger is invoked at each armed location (spec.md §6). It takes no
// arguments — hooks that want context call Instance.StackTrace — and may
// itself suspend (e.g. an attached debugger waiting on a network message)
// without blocking the rest of the process, since it runs on the driver
// goroutine, not the worker.
type Debugger func(ctx context.Context) error

// taskEngine drives exactly one top-level exported-function invocation.
type taskEngine struct {
	ctx context.Context

	reqCh  chan suspendRequest
	respCh chan suspendResponse
	doneCh chan callOutcome

	tracer tracerStack

	closeOnContextDone bool
}

type callOutcome struct {
	results []uint64
	err     error
}

func newTaskEngine(ctx context.Context, closeOnContextDone bool) *taskEngine {
	return &taskEngine{
		ctx:                ctx,
		reqCh:              make(chan suspendRequest),
		respCh:             make(chan suspendResponse),
		doneCh:             make(chan callOutcome, 1),
		closeOnContextDone: closeOnContextDone,
	}
}

// run starts body on a worker goroutine and drives it to completion,
// servicing suspension requests as they arrive. It returns the worker's
// final result. If closeOnContextDone was set, a Done ctx wins the race
// against an in-flight worker instead of being left for the worker to
// notice on its own — the "ensure termination" contract RuntimeConfig.
// WithCloseOnContextDone promises. The worker goroutine itself is not
// killed (Go has no such mechanism); it is abandoned: if it completes,
// its result lands in doneCh and is discarded, and if it reaches another
// suspension point it stays blocked there, since nothing services it.
// A request that arrives after ctx is Done is not serviced.
func (ce *taskEngine) run(body func() ([]uint64, error)) ([]uint64, error) {
	go func() {
		results, err := body()
		ce.doneCh <- callOutcome{results, err}
	}()

	if !ce.closeOnContextDone {
		for {
			select {
			case req := <-ce.reqCh:
				ce.service(req)
			case out := <-ce.doneCh:
				return out.results, out.err
			}
		}
	}

	for {
		select {
		case req := <-ce.reqCh:
			if err := ce.ctx.Err(); err != nil {
				return nil, err
			}
			ce.service(req)
		case out := <-ce.doneCh:
			return out.results, out.err
		case <-ce.ctx.Done():
			return nil, ce.ctx.Err()
		}
	}
}

func (ce *taskEngine) service(req suspendRequest) {
	// The serviced ctx carries ce itself (taskEngineContextKey) so a
	// Debugger hook can call Instance.StackTrace and reach this task's own
	// frame stack, not some other concurrent one. The host-call path gets
	// the same ctx, but importCallable's adapter does not pass it on:
	// wasm.HostFunc has no ctx parameter.
	ctx := context.WithValue(ce.ctx, taskEngineContextKey{}, ce)
	switch req.kind {
	case suspendHostCall:
		results, err := req.host(ctx, req.hostCtx, req.args)
		ce.respCh <- suspendResponse{results: results, err: err}
	case suspendDebugger:
		err := req.hook(ctx)
		ce.respCh <- suspendResponse{err: err}
	}
}

// taskEngineContextKey retrieves the active taskEngine from a context
// passed to a Debugger hook or host import, used by Instance.StackTrace.
type taskEngineContextKey struct{}

func taskEngineFromContext(ctx context.Context) (*taskEngine, bool) {
	ce, ok := ctx.Value(taskEngineContextKey{}).(*taskEngine)
	return ce, ok
}

// awaitHostCall suspends the worker until the host import completes. It
// is called from the worker goroutine only.
func (ce *taskEngine) awaitHostCall(host wasmHostFunc, hc hostCallContext, args []uint64) ([]uint64, error) {
	ce.reqCh <- suspendRequest{kind: suspendHostCall, host: host, hostCtx: hc, args: args}
	resp := <-ce.respCh
	return resp.results, resp.err
}

// awaitDebugger suspends the worker until the debugger hook returns.
func (ce *taskEngine) awaitDebugger(hook Debugger) error {
	ce.reqCh <- suspendRequest{kind: suspendDebugger, hook: hook}
	resp := <-ce.respCh
	return resp.err
}
