// Package simbus implements an in-memory, scriptable sdspi.Port backed
// by a simulated SD card, for exercising the Init/Read/Write FSMs
// without real hardware.
//
// Grounded on pkg/can/virtual's role as an alternate Bus implementation
// used purely for testing; unlike virtual's network loopback, the SD
// protocol is synchronous and single-master, so this bus models the
// card's byte-level state machine directly rather than proxying frames
// to a broker.
package simbus

import (
	"time"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/codec"
)

const startBlockToken = 0xFE

// Card is the simulated card's persistent state. Version selects which
// bring-up sequence it answers to: "v2" for an SDHC/SDXC-style card
// (CMD8 succeeds, block-addressed), "v1" for an SDSC-style card (CMD8
// fails, byte-addressed), or "" for no card present at all.
type Card struct {
	Version      string
	TotalSectors uint32
	Sectors      map[uint32][]byte

	// StickyBusy keeps the write programming-busy poll from ever
	// completing, for exercising the WriteBusy timeout path.
	StickyBusy bool
}

// NewCard returns a card of the given version and capacity, with no
// sector data yet written.
func NewCard(version string, totalSectors uint32) *Card {
	return &Card{Version: version, TotalSectors: totalSectors, Sectors: make(map[uint32][]byte)}
}

func (c *Card) sector(n uint32) []byte {
	b, ok := c.Sectors[n]
	if !ok {
		b = make([]byte, sdspi.SectorSize)
		c.Sectors[n] = b
	}
	return b
}

// csd encodes a 16-byte CSD register reporting TotalSectors, in whichever
// layout internal/csd.Decode expects for c.Version. It is the exact
// inverse of that decode's bit arithmetic when TotalSectors is a non-zero
// multiple of 1024 ("v2") or 2048 ("v1"); other values are rounded down,
// and values below that minimum wrap C_SIZE and decode to a different
// count.
func (c *Card) csd() []byte {
	reg := make([]byte, 16)
	if c.Version == "v2" {
		cSize := c.TotalSectors/1024 - 1
		reg[7] = byte(cSize>>16) & 0x3F
		reg[8] = byte(cSize >> 8)
		reg[9] = byte(cSize)
		return reg
	}
	const readBlLen = 9   // 512-byte blocks
	const cSizeMult = 0   // multiplier factor 4
	cSize := c.TotalSectors/(4*512) - 1
	reg[5] = readBlLen
	reg[6] = byte(cSize>>10) & 0x03
	reg[7] = byte(cSize >> 2)
	reg[8] = byte(cSize&0x03) << 6
	reg[9] = byte(cSizeMult>>1) & 0x03
	reg[10] = byte(cSizeMult&0x01) << 7
	return reg
}

// Bus implements sdspi.Port against a Card. It has no notion of CS or
// clock state beyond what the codec layer itself relies on: command
// frames are recognized purely by their leading 01xxxxxx start bits,
// which lets the bus stay a flat byte-pattern matcher instead of
// tracking every CS edge codec.Send pulses.
type Bus struct {
	card *Card

	frame    [6]byte
	framePos int
	appArmed bool

	respQueue []byte
	write     *writeState

	armed    bool
	deadline time.Time
}

// NewBus returns a Bus fronting card. A nil card behaves as "no card
// present": every command times out, matching a floating MISO line.
func NewBus(card *Card) *Bus {
	return &Bus{card: card}
}

func (b *Bus) Init() error     { return nil }
func (b *Bus) CSLow()          {}
func (b *Bus) CSHigh()         {}
func (b *Bus) ClockLow()       {}
func (b *Bus) ClockHigh()      {}
func (b *Bus) Release()        {}
func (b *Bus) TimerOn(d time.Duration) {
	b.deadline = time.Now().Add(d)
	b.armed = true
}
func (b *Bus) TimerAlive() bool { return b.armed && time.Now().Before(b.deadline) }
func (b *Bus) TimerOff()        { b.armed = false }

// Exchange is the single full-duplex primitive every other Port method
// funnels through in the real driver: whatever is queued to send back
// takes priority, then an in-progress write data phase, then command
// frame capture, else the byte is spacer clocking and gets ignored.
func (b *Bus) Exchange(out byte) byte {
	if len(b.respQueue) > 0 {
		v := b.respQueue[0]
		b.respQueue = b.respQueue[1:]
		return v
	}
	if b.write != nil {
		v := b.write.step(out)
		if b.write.finished {
			b.write = nil
		}
		return v
	}
	if b.framePos == 0 && out&0xC0 != 0x40 {
		return codec.NoResponse
	}
	b.frame[b.framePos] = out
	b.framePos++
	if b.framePos == 6 {
		b.framePos = 0
		b.onCommand()
	}
	return codec.NoResponse
}

func (b *Bus) onCommand() {
	cmd := b.frame[0] & 0x3F
	arg := uint32(b.frame[1])<<24 | uint32(b.frame[2])<<16 | uint32(b.frame[3])<<8 | uint32(b.frame[4])
	wasApp := b.appArmed
	b.appArmed = false

	if b.card == nil || b.card.Version == "" {
		return // no card: every command silently times out
	}
	card := b.card

	switch cmd {
	case codec.CMD0:
		b.respQueue = []byte{0x01}
	case codec.CMD55:
		b.appArmed = true
		b.respQueue = []byte{0x01}
	case codec.CMD8:
		if card.Version == "v2" {
			b.respQueue = []byte{0x01, 0x00, 0x00, 0x01, 0xAA}
		} else {
			b.respQueue = []byte{0x05}
		}
	case 41: // ACMD41, app-command flag already stripped by codec.Send
		if !wasApp {
			b.respQueue = []byte{0x05}
			return
		}
		b.respQueue = []byte{0x00}
	case codec.CMD1:
		b.respQueue = []byte{0x00}
	case codec.CMD59:
		b.respQueue = []byte{0x00}
	case codec.CMD16:
		b.respQueue = []byte{0x00}
	case codec.CMD58:
		ocr0 := byte(0x00)
		if card.Version == "v2" {
			ocr0 = 0xC0 // power-up complete, CCS set
		}
		b.respQueue = []byte{0x00, ocr0, 0x00, 0x00, 0x00}
	case codec.CMD9:
		q := make([]byte, 0, 2+16+2)
		q = append(q, 0x00, startBlockToken)
		q = append(q, card.csd()...)
		q = append(q, 0x00, 0x00)
		b.respQueue = q
	case codec.CMD17:
		sector := b.sectorOf(arg)
		q := make([]byte, 0, 2+sdspi.SectorSize+2)
		q = append(q, 0x00, startBlockToken)
		q = append(q, card.sector(sector)...)
		q = append(q, 0x00, 0x00)
		b.respQueue = q
	case codec.CMD24:
		b.respQueue = []byte{0x00}
		b.write = &writeState{card: card, sector: b.sectorOf(arg)}
	default:
		b.respQueue = []byte{0x05}
	}
}

// sectorOf turns a CMD17/CMD24 argument back into a sector index,
// undoing sdspi.Device.Address's block/byte addressing split.
func (b *Bus) sectorOf(arg uint32) uint32 {
	if b.card.Version == "v2" {
		return arg
	}
	return arg / sdspi.SectorSize
}

// writeState tracks a single CMD24 data phase: the start token, the
// 512-byte payload, two CRC bytes, the data-response handshake and a
// short programming-busy poll.
type writeState struct {
	card   *Card
	sector uint32

	stage    int
	buf      []byte
	busyLeft int
	finished bool
}

func (w *writeState) step(out byte) byte {
	switch w.stage {
	case 0: // waiting for the start-of-block token
		if out != startBlockToken {
			return codec.NoResponse
		}
		w.buf = make([]byte, 0, sdspi.SectorSize)
		w.stage = 1
		return codec.NoResponse
	case 1: // streaming the 512-byte payload
		w.buf = append(w.buf, out)
		if len(w.buf) == sdspi.SectorSize {
			w.stage = 2
		}
		return codec.NoResponse
	case 2, 3: // two dummy CRC bytes
		w.stage++
		return codec.NoResponse
	case 4: // data-response handshake
		w.card.Sectors[w.sector] = w.buf
		w.busyLeft = 2
		w.stage = 5
		return 0x05
	default: // programming-busy poll
		if w.card.StickyBusy || w.busyLeft > 0 {
			if !w.card.StickyBusy {
				w.busyLeft--
			}
			return 0x00
		}
		w.finished = true
		return 0xFF
	}
}
