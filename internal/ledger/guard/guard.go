// Package guard prevents nested invocations of the ledger's mutating entry
// points. The host executes one top-level invocation at a time, so the flag
// only trips when something inside an invocation (an event sink, a future
// host callback) re-enters the engine.
package guard

import (
	"sync/atomic"

	dErrors "braza/pkg/domain-errors"
)

// Guard is a process-wide re-entrancy flag scoped to one top-level
// invocation. It is transient state: it never persists across calls.
type Guard struct {
	held atomic.Bool
}

// New returns an unheld guard.
func New() *Guard {
	return &Guard{}
}

// Acquire takes the guard for the current invocation. It fails with
// CodeReentrantCall when the guard is already held. The returned release
// function must run on every exit path, success or failure.
func (g *Guard) Acquire() (release func(), err error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, dErrors.New(dErrors.CodeReentrantCall, "mutating entry point re-entered")
	}
	return func() { g.held.Store(false) }, nil
}

// Held reports whether an invocation currently holds the guard.
func (g *Guard) Held() bool {
	return g.held.Load()
}
