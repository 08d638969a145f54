package fsm

import (
	log "github.com/sirupsen/logrus"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/codec"
)

type readStep int

const (
	rIssue readStep = iota
	rTokenWait
	rTokenValidate
	rStreamBody
	rFinalize
)

const startBlockToken = 0xFE

// Read implements spec.md §4.4's single-block read: CMD17, wait for the
// start-of-block token, stream 512 data bytes plus 2 CRC bytes, copying
// only the caller's requested [ofs, ofs+cnt) byte range into their
// buffer. Exactly one byte is exchanged per Step call while streaming,
// which is what lets a 512-byte transfer share the CPU a byte at a time
// instead of hogging it for one read.
type Read struct {
	base

	port   sdspi.Port
	timing sdspi.Timing
	logger *log.Entry

	armed  bool
	device *sdspi.Device
	sector uint32
	ofs    uint16
	cnt    uint16
	dst    []byte

	step      readStep
	byteNum   int
	dstIndex  int
	tokenSeen byte
	result    sdspi.Result
}

// NewRead returns an unarmed Read operation bound to port.
func NewRead(port sdspi.Port, timing sdspi.Timing, logger *log.Entry) *Read {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Read{port: port, timing: timing, logger: logger.WithField("fsm", "read")}
}

// Arm requests a read of dst from device's sector, copying only
// [ofs, ofs+cnt) of the 512-byte block into dst.
func (f *Read) Arm(device *sdspi.Device, dst []byte, sector uint32, ofs, cnt uint16) {
	f.device = device
	f.dst = dst
	f.sector = sector
	f.ofs = ofs
	f.cnt = cnt
	f.armed = true
}

// Step advances the Read FSM by one state.
func (f *Read) Step() {
	if f.armed {
		f.armed = false
		f.step = rIssue
		f.begin()
	}

	switch f.step {
	case rIssue:
		f.stepIssue()
	case rTokenWait:
		f.stepTokenWait()
	case rTokenValidate:
		f.stepTokenValidate()
	case rStreamBody:
		f.stepStreamBody()
	case rFinalize:
		f.stepFinalize()
	}
}

// S1 — reject out-of-range requests before any SPI traffic, else issue
// CMD17 with device.Address's argument, block LBA or byte offset
// depending on whether the card is block-addressed.
func (f *Read) stepIssue() {
	f.logger.Trace("S1 issue")
	f.result = sdspi.ERROR
	f.byteNum = 0
	f.dstIndex = 0

	if !f.device.Addressable(f.sector) || f.cnt == 0 {
		// No SPI traffic has happened yet, so there is nothing to
		// release and no completed operation to count: publish
		// directly instead of routing through S5.
		f.finish(sdspi.PARERR)
		f.step = rIssue
		return
	}

	if codec.Send(f.port, codec.CMD17, f.device.Address(f.sector), f.timing.CommandResponse) == 0 {
		f.port.TimerOn(f.timing.ReadToken)
		f.step = rTokenWait
		return
	}
	f.step = rFinalize
}

// S2 — wait for the data-start token, one byte per tick, bounded by the
// read-token timer.
func (f *Read) stepTokenWait() {
	f.logger.Trace("S2 token wait")
	tkn := f.port.Exchange(0xFF)
	if tkn == 0xFF && f.port.TimerAlive() {
		return
	}
	f.tokenSeen = tkn
	f.step = rTokenValidate
}

// S3 — disarm the timer and check the byte S2 ended on.
func (f *Read) stepTokenValidate() {
	f.logger.Trace("S3 token validate")
	f.port.TimerOff()
	if f.tokenSeen == startBlockToken {
		f.byteNum = 0
		f.step = rStreamBody
		return
	}
	f.step = rFinalize
}

// S4 — stream one byte of the 512-byte block (plus 2 trailing CRC bytes)
// per tick, copying bytes inside [ofs, ofs+cnt) into dst.
func (f *Read) stepStreamBody() {
	f.logger.Trace("S4 stream body")
	b := f.port.Exchange(0xFF)
	if f.byteNum >= int(f.ofs) && f.byteNum < int(f.ofs)+int(f.cnt) {
		f.dst[f.dstIndex] = b
		f.dstIndex++
	}
	f.byteNum++
	if f.byteNum < sdspi.SectorSize+2 {
		return
	}
	f.result = sdspi.OK
	f.step = rFinalize
}

// S5 — release the bus, count the completed read, publish.
func (f *Read) stepFinalize() {
	f.logger.Trace("S5 finalize")
	f.port.Release()
	f.device.Debug.Reads++
	f.logger.WithField("result", f.result).Debug("read finished")
	f.finish(f.result)
	f.step = rIssue
}
