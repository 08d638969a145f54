package fsm

import (
	log "github.com/sirupsen/logrus"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/codec"
)

type writeStep int

const (
	wIssue writeStep = iota
	wStreamBody
	wHandshake
	wBusyPoll
	wFinalize
)

// Write implements spec.md §4.5's single-block write: CMD24, the
// start-of-block token, 512 streamed data bytes, two dummy CRC bytes, the
// data-accepted handshake, and the programming-busy poll. One byte moves
// per Step call in the streaming and busy-poll states.
type Write struct {
	base

	port   sdspi.Port
	timing sdspi.Timing
	logger *log.Entry

	armed  bool
	device *sdspi.Device
	src    []byte
	sector uint32

	step       writeStep
	idx        int
	lastPolled byte
}

// NewWrite returns an unarmed Write operation bound to port.
func NewWrite(port sdspi.Port, timing sdspi.Timing, logger *log.Entry) *Write {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Write{port: port, timing: timing, logger: logger.WithField("fsm", "write")}
}

// Arm requests writing the 512 bytes of src into device's sector.
func (f *Write) Arm(device *sdspi.Device, src []byte, sector uint32) {
	f.device = device
	f.src = src
	f.sector = sector
	f.armed = true
}

// Step advances the Write FSM by one state.
func (f *Write) Step() {
	if f.armed {
		f.armed = false
		f.step = wIssue
		f.begin()
	}

	switch f.step {
	case wIssue:
		f.stepIssue()
	case wStreamBody:
		f.stepStreamBody()
	case wHandshake:
		f.stepHandshake()
	case wBusyPoll:
		f.stepBusyPoll()
	case wFinalize:
		f.stepFinalize()
	}
}

// S1 — reject out-of-range sectors before any SPI traffic, else issue
// CMD24 and the single-block start token.
func (f *Write) stepIssue() {
	f.logger.Trace("S1 issue")
	if !f.device.Addressable(f.sector) {
		// No SPI traffic yet: publish directly, nothing to release.
		f.finish(sdspi.PARERR)
		f.step = wIssue
		return
	}

	if codec.Send(f.port, codec.CMD24, f.device.Address(f.sector), f.timing.CommandResponse) != 0 {
		// CMD24 selected the card before failing; release it even
		// though this is a direct-publish path, so CS ends up
		// deasserted at rest as spec.md's invariant #1 requires.
		f.port.Release()
		f.finish(sdspi.ERROR)
		f.step = wIssue
		return
	}

	f.port.Exchange(startBlockToken)
	f.idx = 0
	f.step = wStreamBody
}

// S2 — stream the 512-byte block, one byte per tick.
func (f *Write) stepStreamBody() {
	f.logger.Trace("S2 stream body")
	f.port.Exchange(f.src[f.idx])
	f.idx++
	if f.idx < sdspi.SectorSize {
		return
	}
	f.step = wHandshake
}

// S3 — two dummy CRC bytes, then the data-response handshake.
func (f *Write) stepHandshake() {
	f.logger.Trace("S3 handshake")
	f.port.Exchange(0xFF)
	f.port.Exchange(0xFF)

	if resp := f.port.Exchange(0xFF); resp&0x1F != 0x05 {
		f.port.Release()
		f.finish(sdspi.REJECT)
		f.step = wIssue
		return
	}

	f.port.TimerOn(f.timing.WriteBusy)
	f.step = wBusyPoll
}

// S4 — poll for programming completion, one byte per tick; the card
// holds MISO low (byte 0x00) while busy.
func (f *Write) stepBusyPoll() {
	f.logger.Trace("S4 busy poll")
	f.lastPolled = f.port.Exchange(0xFF)
	if f.lastPolled == 0 && f.port.TimerAlive() {
		return
	}
	f.step = wFinalize
}

// S5 — release the bus, count the completed write, publish.
func (f *Write) stepFinalize() {
	f.logger.Trace("S5 finalize")
	f.port.TimerOff()
	f.device.Debug.Writes++

	res := sdspi.OK
	if f.lastPolled == 0 {
		res = sdspi.BUSY
	}
	f.port.Release()
	f.logger.WithField("result", res).Debug("write finished")
	f.finish(res)
	f.step = wIssue
}
