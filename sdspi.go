package sdspi

import (
	"time"
)

// pollInterval is how often a Blocking* call re-checks Mailbox.Status
// while waiting for the server task to finish a request. It mirrors the
// SDO client helpers' setup-then-poll-with-sleep pattern, sized short
// enough that a single-block transfer's few milliseconds don't feel
// laggy to a synchronous caller.
const pollInterval = time.Millisecond

// BlockingInit submits an Init request on mailbox and blocks until the
// server task completes it. It exists for demos and tests driving a
// Server from a second goroutine; production callers that run their own
// tick loop should use Mailbox.Submit directly.
func BlockingInit(mailbox *Mailbox, device *Device) Result {
	return blockingSubmit(mailbox, Request{Kind: ReqInit, Device: device})
}

// BlockingRead submits a Read request copying [ofs, ofs+cnt) of sector
// into dst, and blocks until it completes.
func BlockingRead(mailbox *Mailbox, device *Device, dst []byte, sector uint32, ofs, cnt uint16) Result {
	return blockingSubmit(mailbox, Request{
		Kind:   ReqRead,
		Device: device,
		Data:   dst,
		Sector: sector,
		Ofs:    ofs,
		Cnt:    cnt,
	})
}

// BlockingWrite submits a Write request of src into sector, and blocks
// until it completes. src must be exactly SectorSize bytes.
func BlockingWrite(mailbox *Mailbox, device *Device, src []byte, sector uint32) Result {
	return blockingSubmit(mailbox, Request{
		Kind:   ReqWrite,
		Device: device,
		Data:   src,
		Sector: sector,
	})
}

// BlockingStatus submits a Status request (a bare CMD0 round trip) and
// blocks until it completes. It never mutates device.
func BlockingStatus(mailbox *Mailbox, device *Device) Result {
	return blockingSubmit(mailbox, Request{Kind: ReqStatus, Device: device})
}

func blockingSubmit(mailbox *Mailbox, req Request) Result {
	for mailbox.Submit(req) == ErrMailboxBusy {
		time.Sleep(pollInterval)
	}
	for mailbox.Busy() {
		time.Sleep(pollInterval)
	}
	return mailbox.Error()
}
