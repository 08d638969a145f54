package fsm

import (
	log "github.com/sirupsen/logrus"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/bits"
	"github.com/embedded-go/sdspi/internal/codec"
	"github.com/embedded-go/sdspi/internal/csd"
)

type initStep int

const (
	iArm initStep = iota
	iDummyClockWait
	iCmd0Wait
	iConfirmIdle
	iInterfaceCondition
	iLegacyBringUp
	iR7Capture
	iHCSPoll
	iCCSFetch
	iCapacityBit
	iFinalizeDescriptor
	iPublish
)

// Init implements spec.md §4.3's 12-state (S1–S12) card reset / version detect /
// bring-up sequence. Grounded on original_source/sd_io.c's SD_Init and
// on pkg/sync.Process's pattern of returning to an idle dispatch point
// between bounded units of work.
type Init struct {
	base

	port   sdspi.Port
	timing sdspi.Timing
	logger *log.Entry

	armed  bool
	device *sdspi.Device

	step     initStep
	retries  int
	cardType sdspi.CardType
	leaveIdleCmd byte
}

// NewInit returns an unarmed Init operation bound to port.
func NewInit(port sdspi.Port, timing sdspi.Timing, logger *log.Entry) *Init {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Init{port: port, timing: timing, logger: logger.WithField("fsm", "init")}
}

// Arm requests a fresh run against device; it takes effect on the next
// Step call, which also clears the arm request (spec.md §3's arm_flag).
func (f *Init) Arm(device *sdspi.Device) {
	f.device = device
	f.armed = true
}

// Step advances the Init FSM by one state.
func (f *Init) Step() {
	if f.armed {
		f.armed = false
		f.step = iArm
		f.retries = 0
		f.cardType = 0
		f.begin()
	}

	switch f.step {
	case iArm:
		f.stepArm()
	case iDummyClockWait:
		f.stepDummyClockWait()
	case iCmd0Wait:
		f.stepCmd0Wait()
	case iConfirmIdle:
		f.stepConfirmIdle()
	case iInterfaceCondition:
		f.stepInterfaceCondition()
	case iLegacyBringUp:
		f.stepLegacyBringUp()
	case iR7Capture:
		f.stepR7Capture()
	case iHCSPoll:
		f.stepHCSPoll()
	case iCCSFetch:
		f.stepCCSFetch()
	case iCapacityBit:
		f.stepCapacityBit()
	case iFinalizeDescriptor:
		f.stepFinalizeDescriptor()
	case iPublish:
		f.stepPublish()
	}
}

// S1 — arm: re-init the peripheral and send ≥74 dummy clocks, or give up
// once the retry budget is exhausted.
func (f *Init) stepArm() {
	f.logger.Trace("S1 arm")
	if f.retries != f.timing.InitRetries && f.cardType == 0 {
		f.port.Init()
		f.port.CSHigh()
		f.port.ClockLow()
		for i := 0; i < 10; i++ {
			f.port.Exchange(0xFF)
		}
		f.retries++
		f.port.TimerOn(f.timing.InitReady)
		f.step = iDummyClockWait
		return
	}
	f.step = iFinalizeDescriptor
}

// S2 — wait out the dummy-clock settling timer.
func (f *Init) stepDummyClockWait() {
	f.logger.Trace("S2 dummy clock wait")
	if f.port.TimerAlive() {
		return
	}
	f.port.TimerOff()
	f.port.CSHigh()
	f.port.TimerOn(f.timing.InitReady)
	f.step = iCmd0Wait
}

// S3 — issue CMD0 once per tick until it reports idle or the timer runs
// out.
func (f *Init) stepCmd0Wait() {
	f.logger.Trace("S3 cmd0 wait")
	if codec.Send(f.port, codec.CMD0, 0, f.timing.CommandResponse) != 1 && f.port.TimerAlive() {
		return
	}
	f.port.TimerOff()
	f.step = iConfirmIdle
}

// S4 — one more CMD0 to confirm idle state before probing the version.
func (f *Init) stepConfirmIdle() {
	f.logger.Trace("S4 confirm idle")
	if codec.Send(f.port, codec.CMD0, 0, f.timing.CommandResponse) == 1 {
		f.step = iInterfaceCondition
		return
	}
	f.step = iArm
}

// S5 — CMD8 distinguishes v2 cards (R1=1) from v1/MMC cards.
func (f *Init) stepInterfaceCondition() {
	f.logger.Trace("S5 interface condition")
	if codec.Send(f.port, codec.CMD8, codec.CMD8Arg, f.timing.CommandResponse) == 1 {
		f.step = iR7Capture
		return
	}
	f.step = iLegacyBringUp
}

// S6 — v1/MMC bring-up: this is the one state that blocks for its whole
// armed window (up to LeaveIdleSD1) inside a single Step call, matching
// the original driver; see spec.md §9's note on S6's inner poll.
func (f *Init) stepLegacyBringUp() {
	f.logger.Trace("S6 legacy bring-up")
	cmd := byte(codec.ACMD41)
	if codec.Send(f.port, codec.ACMD41, 0, f.timing.CommandResponse) <= 1 {
		f.cardType = sdspi.SDv1
	} else {
		f.cardType = sdspi.MMCv3
		cmd = codec.CMD1
	}
	f.leaveIdleCmd = cmd

	f.port.TimerOn(f.timing.LeaveIdleSD1)
	for f.port.TimerAlive() && codec.Send(f.port, f.leaveIdleCmd, 0, f.timing.CommandResponse) != 0 {
	}
	timedOut := !f.port.TimerAlive()
	f.port.TimerOff()

	if timedOut {
		f.cardType = 0
	}
	if codec.Send(f.port, codec.CMD59, 0, f.timing.CommandResponse) != 0 {
		f.cardType = 0
	}
	if codec.Send(f.port, codec.CMD16, sdspi.SectorSize, f.timing.CommandResponse) != 0 {
		f.cardType = 0
	}
	f.step = iArm
}

// S7 — capture the R7 OCR trailer and check the voltage window.
func (f *Init) stepR7Capture() {
	f.logger.Trace("S7 R7 capture")
	ocr := codec.ReadBytes(f.port, 4)
	if ocr[2] == 0x01 && ocr[3] == 0xAA {
		f.port.TimerOn(f.timing.LeaveIdleSD2)
		f.step = iHCSPoll
		return
	}
	f.step = iArm
}

// S8 — poll ACMD41 with HCS set, at the negotiated high clock rate, once
// per tick.
func (f *Init) stepHCSPoll() {
	f.logger.Trace("S8 HCS poll")
	f.port.ClockHigh()

	var arg uint32
	bits.Set(&arg, 30) // HCS

	if f.port.TimerAlive() && codec.Send(f.port, codec.ACMD41, arg, f.timing.CommandResponse) != 0 {
		return
	}
	f.step = iCCSFetch
}

// S9 — CMD58 fetches the OCR to read the card-capacity-status bit.
func (f *Init) stepCCSFetch() {
	f.logger.Trace("S9 CCS fetch")
	if codec.Send(f.port, codec.CMD58, 0, f.timing.CommandResponse) == 0 {
		f.step = iCapacityBit
		return
	}
	f.step = iArm
}

// S10 — the OCR's CCS bit (byte 0, bit 6) tells apart SDHC/SDXC from
// byte-addressed SDv2.
func (f *Init) stepCapacityBit() {
	f.logger.Trace("S10 capacity bit")
	ocr := codec.ReadBytes(f.port, 4)
	f.cardType = sdspi.SDv2
	ocr0 := uint32(ocr[0])
	if bits.Get(&ocr0, 6, 0x01) != 0 { // CCS
		f.cardType |= sdspi.BlockAddressed
	}
	f.step = iArm
}

// S11 — populate the device descriptor from the detected card type and
// its decoded CSD.
func (f *Init) stepFinalizeDescriptor() {
	f.logger.Trace("S11 finalize descriptor")
	if f.cardType != 0 {
		sectors := csd.Read(f.port, f.cardType)
		f.device.CardType = f.cardType
		f.device.Mounted = true
		f.device.LastSector = sectors - 1
		f.device.Debug = sdspi.DebugCounters{}
	}
	f.step = iPublish
}

// S12 — release the bus and publish the result.
func (f *Init) stepPublish() {
	f.logger.Trace("S12 publish")
	f.port.Release()

	res := sdspi.OK
	if f.cardType == 0 {
		res = sdspi.NOINIT
	}
	f.logger.WithField("result", res).Debug("init finished")
	f.finish(res)
	f.step = iArm
}
