// Package lifecycle implements a four-state init-once-shutdown-
// permanently primitive: a race-free, explicitly-owned state machine
// in place of a package-global mutable-bool pattern, which cannot
// distinguish "still initializing" from "not yet started" under
// concurrent callers.
package lifecycle

import "sync/atomic"

// State is one of the four lifecycle states a Lifecycle traverses.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Initialized
	Dead
)

// Lifecycle is a CAS-driven init-once-shutdown-permanently gate. Zero
// value is Uninitialized and ready to use.
type Lifecycle struct {
	state atomic.Int32
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// TryInit attempts to transition Uninitialized -> Initializing. Only
// one caller wins; losers should call AwaitInit to find out whether
// the winner succeeded. Returns false immediately if the lifecycle is
// already Dead.
func (l *Lifecycle) TryInit() bool {
	return l.state.CompareAndSwap(int32(Uninitialized), int32(Initializing))
}

// CommitInit transitions Initializing -> Initialized. Only the caller
// that won TryInit should call this.
func (l *Lifecycle) CommitInit() {
	l.state.CompareAndSwap(int32(Initializing), int32(Initialized))
}

// AbortInit transitions Initializing -> Uninitialized, letting a
// future caller retry TryInit after a failed initialization.
func (l *Lifecycle) AbortInit() {
	l.state.CompareAndSwap(int32(Initializing), int32(Uninitialized))
}

// AwaitInit spins until the state leaves Initializing, returning true
// if it landed on Initialized. Callers that lost TryInit use this.
func (l *Lifecycle) AwaitInit() bool {
	for {
		switch l.State() {
		case Initializing:
			continue
		case Initialized:
			return true
		default:
			return false
		}
	}
}

// ShutdownForever transitions unconditionally to Dead. All subsequent
// TryInit calls return false.
func (l *Lifecycle) ShutdownForever() {
	l.state.Store(int32(Dead))
}

// Ready reports whether the lifecycle is in the Initialized state.
func (l *Lifecycle) Ready() bool {
	return l.State() == Initialized
}
