package sdspi

import (
	"errors"
	"sync"
)

// ErrMailboxBusy is returned by Submit when a transaction is already in
// flight; per the transaction slot contract, a client must poll Status
// and never submit while BUSY.
var ErrMailboxBusy = errors.New("sdspi: mailbox busy")

// RequestKind identifies which FSM a submitted Request should drive.
type RequestKind uint8

const (
	// ReqNone marks an empty slot; never a valid Submit argument.
	ReqNone RequestKind = iota
	ReqInit
	ReqRead
	ReqWrite
	// ReqStatus round-trips CMD0 and reports OK or NORESP; it never
	// touches Device state, satisfying the "idempotence of status"
	// invariant by construction.
	ReqStatus
)

// Status is the transaction slot's lifecycle state.
type Status uint8

const (
	StatusIdle Status = iota
	StatusBusy
)

// Request is what a client writes into the Mailbox to start an operation.
// Data is a borrowed slice: the caller retains ownership but must not
// mutate it while Status() != StatusIdle.
type Request struct {
	Kind   RequestKind
	Sector uint32
	Ofs    uint16
	Cnt    uint16
	Data   []byte
	Device *Device
}

// Mailbox is the single process-wide rendezvous between a client task and
// the server task: a bounded, capacity-1 channel standing in for the
// original C driver's global transaction record. Submitting while BUSY is
// rejected outright instead of left as undefined behavior, so "at most
// one operation in flight" is enforced by the type rather than by
// caller discipline alone.
type Mailbox struct {
	mu      sync.Mutex
	status  Status
	err     Result
	pending chan Request
}

// NewMailbox returns an idle, ready-to-use Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{pending: make(chan Request, 1)}
}

// Submit hands a request to the server. It returns ErrMailboxBusy instead
// of blocking if a transaction is already in flight.
func (m *Mailbox) Submit(req Request) error {
	m.mu.Lock()
	if m.status == StatusBusy {
		m.mu.Unlock()
		return ErrMailboxBusy
	}
	m.status = StatusBusy
	m.mu.Unlock()

	select {
	case m.pending <- req:
		return nil
	default:
		// Can only happen if a caller bypassed Submit's busy gate via a
		// racing goroutine; restore idle so the slot isn't stuck.
		m.mu.Lock()
		m.status = StatusIdle
		m.mu.Unlock()
		return ErrMailboxBusy
	}
}

// TryRecv is the server-side, non-blocking pop of a pending request. It
// never blocks the caller's tick. Only pkg/server should call this.
func (m *Mailbox) TryRecv() (Request, bool) {
	select {
	case req := <-m.pending:
		return req, true
	default:
		return Request{}, false
	}
}

// Publish is the server's Update_Trans contract: write the final error,
// return the slot to idle. Apart from Submit's own rollback when it cannot
// queue a request, it is the only way Status transitions back to
// StatusIdle. Only pkg/server should call this.
func (m *Mailbox) Publish(res Result) {
	m.mu.Lock()
	m.err = res
	m.status = StatusIdle
	m.mu.Unlock()
}

// MarkParamError is used by the server when the request code itself is
// invalid; no FSM ever ran, so there is nothing to arm or drain. Only
// pkg/server should call this.
func (m *Mailbox) MarkParamError() {
	m.Publish(PARERR)
}

// Status reports whether a transaction is in flight. Clients must treat
// StatusBusy as a read-only barrier on the Data they submitted.
func (m *Mailbox) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Busy is a convenience wrapper around Status.
func (m *Mailbox) Busy() bool {
	return m.Status() == StatusBusy
}

// Error returns the result code of the most recently completed
// transaction. It is stable once Status reports StatusIdle.
func (m *Mailbox) Error() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
