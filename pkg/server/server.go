// Package server implements the single dispatcher task described in
// spec.md §4.6: it owns the Init, Read and Write operations and drives
// exactly one of them at a time on behalf of whatever Request currently
// sits in the Mailbox.
//
// Grounded on pkg/node/local.go's ProcessMain, which fans a single
// per-tick call out to each CANopen object's own Process method and
// folds their outcomes back into one return value; here the fan-out is
// a request-kind dispatch instead of a fixed object list, since at most
// one operation is ever armed.
package server

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/codec"
	"github.com/embedded-go/sdspi/pkg/fsm"
)

var (
	// ErrNilMailbox is returned by New when mailbox is nil.
	ErrNilMailbox = errors.New("server: mailbox is nil")
	// ErrNilPort is returned by New when port is nil.
	ErrNilPort = errors.New("server: port is nil")
)

// state is the dispatcher's own idle/busy tracking, independent of the
// Mailbox's Status: the Mailbox goes busy the instant a client submits,
// but the server only starts driving an FSM on the tick after it pops
// the request.
type state uint8

const (
	stateIdle state = iota
	stateInit
	stateRead
	stateWrite
)

// Server is the process-wide dispatcher: one Mailbox, one each of the
// three Operations, and a record of which is currently running.
type Server struct {
	mailbox *sdspi.Mailbox
	logger  *log.Entry

	port   sdspi.Port
	timing sdspi.Timing

	init  *fsm.Init
	read  *fsm.Read
	write *fsm.Write

	state state
	cur   sdspi.Request
}

// New returns a Server that drains mailbox, driving port through timing.
func New(mailbox *sdspi.Mailbox, port sdspi.Port, timing sdspi.Timing, logger *log.Entry) (*Server, error) {
	if mailbox == nil {
		return nil, ErrNilMailbox
	}
	if port == nil {
		return nil, ErrNilPort
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithField("component", "server")
	return &Server{
		mailbox: mailbox,
		logger:  logger,
		port:    port,
		timing:  timing,
		init:    fsm.NewInit(port, timing, logger),
		read:    fsm.NewRead(port, timing, logger),
		write:   fsm.NewWrite(port, timing, logger),
	}, nil
}

// Tick performs one bounded unit of server work: either popping a new
// request out of the idle state, or advancing whichever operation is
// currently armed by one Step. It never blocks.
func (s *Server) Tick() {
	switch s.state {
	case stateIdle:
		s.dispatch()
	case stateInit:
		s.drive(s.init)
	case stateRead:
		s.drive(s.read)
	case stateWrite:
		s.drive(s.write)
	}
}

// dispatch pops a pending request, if any, and arms the matching
// operation. Requests of unknown kind are rejected immediately: no
// operation ever ran, so the Mailbox goes straight back to idle.
func (s *Server) dispatch() {
	req, ok := s.mailbox.TryRecv()
	if !ok {
		return
	}
	s.cur = req

	switch req.Kind {
	case sdspi.ReqInit:
		s.init.Arm(req.Device)
		s.state = stateInit
	case sdspi.ReqRead:
		s.read.Arm(req.Device, req.Data, req.Sector, req.Ofs, req.Cnt)
		s.state = stateRead
	case sdspi.ReqWrite:
		s.write.Arm(req.Device, req.Data, req.Sector)
		s.state = stateWrite
	case sdspi.ReqStatus:
		// A bare CMD0 round trip completes well within one command
		// timeout, so unlike Init/Read/Write it needs no FSM of its
		// own: publish immediately and stay idle.
		s.mailbox.Publish(s.probeStatus())
	default:
		s.logger.WithField("kind", req.Kind).Warn("rejecting request of unknown kind")
		s.mailbox.MarkParamError()
	}
}

// drive steps op once and, if it just finished, publishes its result
// and returns the dispatcher to idle.
func (s *Server) drive(op fsm.Operation) {
	op.Step()
	if op.Status() == sdspi.StatusIdle && op.StartFlag() {
		s.mailbox.Publish(op.Error())
		s.state = stateIdle
	}
}

// probeStatus issues a single CMD0 and reports NORESP if no R1 byte
// arrived (the poll ended on 0xFF), OK for any R1 value. It never mutates
// any Device.
func (s *Server) probeStatus() sdspi.Result {
	res := codec.Send(s.port, codec.CMD0, 0, s.timing.CommandResponse)
	s.port.Release()
	if res == codec.NoResponse {
		return sdspi.NORESP
	}
	return sdspi.OK
}
