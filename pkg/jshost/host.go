package jshost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStopped is returned when work is submitted to a closed host.
	ErrStopped = errors.New("javascript host is stopped")

	// ErrNotSerializable is returned when a value has no JSON representation,
	// e.g. undefined or a function.
	ErrNotSerializable = errors.New("value cannot be serialized to JSON")
)

// RejectionError reports a rejected promise or a thrown exception.
type RejectionError struct {
	Message string
	Stack   string
}

func (e *RejectionError) Error() string {
	return "promise rejected: " + e.Message
}

// Options configures a Host.
type Options struct {
	// ModuleFolders are searched for bare require() names, like NODE_PATH.
	ModuleFolders []string
}

// Host owns one goja runtime and the event loop driving it. Every access to
// the runtime happens on the loop goroutine.
type Host struct {
	loop   *eventloop.EventLoop
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	vm      *goja.Runtime
	sockets map[*socket]struct{}
	closed  bool
}

// NewHost creates and starts a host.
func NewHost(opts Options) *Host {
	registry := require.NewRegistry(require.WithGlobalFolders(opts.ModuleFolders...))
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(false),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		loop:    loop,
		ctx:     ctx,
		cancel:  cancel,
		sockets: make(map[*socket]struct{}),
	}
	loop.Start()

	return h
}

// Install exposes env to scripts as document, window, Element, alert,
// WebSocket and console. It must complete before any library code that
// expects a browser is required.
func (h *Host) Install(ctx context.Context, env *Environment) error {
	if err := env.validate(); err != nil {
		return err
	}
	return h.Run(ctx, func(vm *goja.Runtime) error {
		h.mu.Lock()
		h.vm = vm
		h.mu.Unlock()
		return install(h, vm, env)
	})
}

// Run executes fn on the loop and waits for it to return.
func (h *Host) Run(ctx context.Context, fn func(*goja.Runtime) error) error {
	if h.isClosed() {
		return ErrStopped
	}
	done := make(chan error, 1)
	ok := h.loop.RunOnLoop(func(vm *goja.Runtime) {
		done <- safeCall(func() error { return fn(vm) })
	})
	if !ok {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrStopped
	}
}

// AwaitJSON runs fn on the loop. If it returns a thenable, AwaitJSON waits
// for it to settle. The settled value is serialized with the runtime's own
// JSON.stringify.
func (h *Host) AwaitJSON(ctx context.Context, fn func(*goja.Runtime) (goja.Value, error)) (string, error) {
	if h.isClosed() {
		return "", ErrStopped
	}
	type result struct {
		json string
		err  error
	}
	done := make(chan result, 1)
	settle := func(s string, err error) {
		select {
		case done <- result{json: s, err: err}:
		default:
		}
	}

	ok := h.loop.RunOnLoop(func(vm *goja.Runtime) {
		err := safeCall(func() error {
			v, err := fn(vm)
			if err != nil {
				return AsRejection(err)
			}

			then, isThenable := thenOf(v)
			if !isThenable {
				settle(stringify(vm, v))
				return nil
			}

			onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
				settle(stringify(vm, call.Argument(0)))
				return goja.Undefined()
			})
			onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
				settle("", rejection(vm, call.Argument(0)))
				return goja.Undefined()
			})
			_, err = then(v, onFulfilled, onRejected)
			return AsRejection(err)
		})
		if err != nil {
			settle("", err)
		}
	})
	if !ok {
		return "", ErrStopped
	}

	select {
	case r := <-done:
		return r.json, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.ctx.Done():
		return "", ErrStopped
	}
}

// Close drops open sockets, interrupts any running script and terminates the
// loop, discarding pending timers and intervals. It does not wait for script
// work to finish.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	vm := h.vm
	sockets := make([]*socket, 0, len(h.sockets))
	for s := range h.sockets {
		sockets = append(sockets, s)
	}
	h.mu.Unlock()

	h.cancel()
	for _, s := range sockets {
		s.shutdown()
	}
	if vm != nil {
		vm.Interrupt(ErrStopped)
	}
	h.loop.Terminate()
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Host) track(s *socket) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sockets[s] = struct{}{}
	return true
}

func (h *Host) untrack(s *socket) {
	h.mu.Lock()
	delete(h.sockets, s)
	h.mu.Unlock()
}

func thenOf(v goja.Value) (goja.Callable, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	return goja.AssertFunction(obj.Get("then"))
}

func stringify(vm *goja.Runtime, v goja.Value) (string, error) {
	jsonObj := vm.Get("JSON").ToObject(vm)
	fn, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return "", pkgerrors.New("JSON.stringify is not a function")
	}
	out, err := fn(jsonObj, v)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to serialize value")
	}
	if out == nil || goja.IsUndefined(out) {
		return "", ErrNotSerializable
	}
	return out.String(), nil
}

func rejection(vm *goja.Runtime, reason goja.Value) *RejectionError {
	if obj, ok := reason.(*goja.Object); ok {
		msg := obj.Get("message")
		if msg != nil && !goja.IsUndefined(msg) {
			e := &RejectionError{Message: msg.String()}
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				e.Stack = stack.String()
			}
			return e
		}
	}
	if reason == nil {
		return &RejectionError{Message: "undefined"}
	}
	return &RejectionError{Message: reason.String()}
}

// safeCall turns panics raised by the runtime into errors so a misbehaving
// script cannot take the loop goroutine down.
func safeCall(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch x := r.(type) {
		case *goja.Exception:
			err = exceptionError(x)
		case *goja.InterruptedError:
			err = x
		case error:
			err = x
		default:
			err = fmt.Errorf("panic in javascript host: %v", x)
		}
	}()
	return fn()
}

func exceptionError(ex *goja.Exception) error {
	msg := ex.Error()
	if v := ex.Value(); v != nil {
		if obj, ok := v.(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
				msg = m.String()
			}
		}
	}
	return &RejectionError{Message: msg, Stack: strings.TrimSpace(ex.String())}
}

// AsRejection converts errors returned by goja callables into a
// RejectionError where possible.
func AsRejection(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return exceptionError(ex)
	}
	return err
}

func logrusFor(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
