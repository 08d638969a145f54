// Package fsm implements the three resumable operation state machines —
// Init, Read, Write — described in spec.md §4.3-4.5. Each is a sum-type
// member of Operation: a step index plus its own operation-specific
// scratch, in place of the three parallel global FSM descriptors the
// original driver used (see REDESIGN FLAGS in spec.md §9).
//
// Grounded on pkg/sdo's per-phase state machine (stateIdle/.../Process)
// and pkg/sync.Process, which return an event/state code each tick
// instead of blocking; here Step plays that role.
package fsm

import "github.com/embedded-go/sdspi"

// Operation is the common shape the server dispatches against: arm it
// once per request, then call Step once per tick until Status reports
// idle again.
type Operation interface {
	// Step advances the operation by exactly one bounded unit of work.
	Step()
	// Status reports whether the operation is still running.
	Status() sdspi.Status
	// StartFlag is set by the Step call that produces a result and stays
	// set until the operation is armed again; it is not cleared by later
	// Step calls. It is the signal the server waits for before publishing.
	StartFlag() bool
	// Error is the result code of the most recently completed run.
	Error() sdspi.Result
}

// base holds the bookkeeping shared by every Operation implementation.
type base struct {
	status    sdspi.Status
	startFlag bool
	errorCode sdspi.Result
}

func (b *base) Status() sdspi.Status { return b.status }
func (b *base) StartFlag() bool      { return b.startFlag }
func (b *base) Error() sdspi.Result  { return b.errorCode }

// begin transitions into the running state, clearing the transient
// StartFlag from any previous run.
func (b *base) begin() {
	b.status = sdspi.StatusBusy
	b.startFlag = false
}

// finish publishes a result and returns to idle, setting StartFlag; only
// the next begin clears it.
func (b *base) finish(res sdspi.Result) {
	b.errorCode = res
	b.status = sdspi.StatusIdle
	b.startFlag = true
}
