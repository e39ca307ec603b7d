// Package node drives a handler through the init -> ok -> error -> release
// lifecycle. The ok event runs repeatedly until a fault is activated or a
// disconnect is requested; SIGINT and SIGTERM map to a graceful disconnect.
package node

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type State int

const (
	StateInit State = iota
	StateOK
	StateError
	StateRelease
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateOK:
		return "OK"
	case StateError:
		return "ERROR"
	case StateRelease:
		return "RELEASE"
	}
	return "UNKNOWN"
}

// Handler receives the lifecycle state events. Init and Release run exactly
// once per Connect; Ok runs once per tick while the node is healthy; Error
// runs once when a fault has been activated, before Release.
type Handler interface {
	InitStateEvent(r *Runtime)
	OkStateEvent(r *Runtime)
	ErrorStateEvent(r *Runtime)
	ReleaseStateEvent(r *Runtime)
}

const defaultTick = 5 * time.Millisecond

// Runtime owns the lifecycle loop for a single node.
type Runtime struct {
	name    string
	handler Handler
	tick    time.Duration

	mu    sync.Mutex
	state State
	fault *Fault

	quit chan struct{}
	once sync.Once
}

func NewRuntime(name string, h Handler) *Runtime {
	return &Runtime{
		name:    name,
		handler: h,
		tick:    defaultTick,
		quit:    make(chan struct{}),
	}
}

func (r *Runtime) Name() string {
	return r.name
}

// SetTick adjusts the pause between ok events. Must be called before Connect.
func (r *Runtime) SetTick(d time.Duration) {
	if d > 0 {
		r.tick = d
	}
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// ActivateFault records a fault and routes the loop to the error state.
// Only the first fault is kept.
func (r *Runtime) ActivateFault(code DTC, err error) {
	r.mu.Lock()
	if r.fault == nil {
		r.fault = NewFault(code, err)
	}
	r.mu.Unlock()
}

// Fault returns the active fault, nil while healthy.
func (r *Runtime) Fault() *Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fault
}

// Disconnect requests shutdown from any state. Safe to call more than once
// and from any goroutine.
func (r *Runtime) Disconnect() {
	r.once.Do(func() {
		close(r.quit)
	})
}

func (r *Runtime) disconnected() bool {
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

// Connect runs the lifecycle until disconnect and returns the fault that
// ended it, if any. Release always runs, whatever path led out of the loop.
func (r *Runtime) Connect() error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	go func() {
		select {
		case <-sig:
			r.Disconnect()
		case <-r.quit:
		}
	}()

	r.setState(StateInit)
	r.handler.InitStateEvent(r)

	for r.Fault() == nil && !r.disconnected() {
		r.setState(StateOK)
		r.handler.OkStateEvent(r)

		select {
		case <-r.quit:
		case <-time.After(r.tick):
		}
	}

	if r.Fault() != nil {
		r.setState(StateError)
		r.handler.ErrorStateEvent(r)
	}

	r.setState(StateRelease)
	r.handler.ReleaseStateEvent(r)

	r.Disconnect()

	if f := r.Fault(); f != nil {
		return f
	}
	return nil
}
