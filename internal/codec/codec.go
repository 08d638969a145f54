// Package codec frames and sends SD commands over an sdspi.Port and polls
// for the R1 response, per spec.md §4.1. It has no notion of success or
// failure beyond the R1 byte returned — interpreting it is the caller's
// job, mirroring original_source/sd_io.c's __SD_Send_Cmd.
package codec

import (
	"time"

	"github.com/embedded-go/sdspi"
)

// Command indices used by this driver (SD Physical Layer + MMC subset).
const (
	CMD0  = 0  // GO_IDLE_STATE
	CMD1  = 1  // SEND_OP_COND (MMC)
	CMD8  = 8  // SEND_IF_COND
	CMD9  = 9  // SEND_CSD
	CMD16 = 16 // SET_BLOCKLEN
	CMD17 = 17 // READ_SINGLE_BLOCK
	CMD24 = 24 // WRITE_BLOCK
	CMD55 = 55 // APP_CMD
	CMD58 = 58 // READ_OCR
	CMD59 = 59 // CRC_ON_OFF

	// ACMD41 is the app-command index for SD_SEND_OP_COND; the high bit
	// marks it as requiring a CMD55 prefix.
	ACMD41     = 41 | 0x80
	appCmdFlag = 0x80
)

// CMD8 interface-condition argument: VHS=1 (2.7-3.6V), check pattern 0xAA.
const CMD8Arg = 0x1AA

// NoResponse is the byte a timed-out R1 poll ends on; it is
// indistinguishable at this layer from a literal 0xFF reply.
const NoResponse byte = 0xFF

// Send frames cmd with arg and polls for the R1 response, bounded by
// timeout. Application commands (cmd with the 0x80 bit set) are sent as
// CMD55 followed by the target command; if CMD55's own R1 is > 1 that
// value is returned immediately, without issuing the app command.
func Send(port sdspi.Port, cmd byte, arg uint32, timeout time.Duration) byte {
	if cmd&appCmdFlag != 0 {
		res := Send(port, CMD55, 0, timeout)
		if res > 1 {
			return res
		}
		cmd &^= appCmdFlag
	}

	// Deselect/reselect pulse: an 8-clock spacer on each CS edge.
	port.CSHigh()
	port.Exchange(0xFF)
	port.CSLow()
	port.Exchange(0xFF)

	port.Exchange(0x40 | cmd)
	port.Exchange(byte(arg >> 24))
	port.Exchange(byte(arg >> 16))
	port.Exchange(byte(arg >> 8))
	port.Exchange(byte(arg))
	port.Exchange(crc(cmd, arg))

	// The R1 poll keeps its own deadline instead of arming the Port
	// timer, which the Init FSM holds armed across the commands it sends.
	deadline := time.Now().Add(timeout)

	var res byte
	for {
		res = port.Exchange(0xFF)
		if res&0x80 == 0 || !time.Now().Before(deadline) {
			break
		}
	}
	return res
}

// crc returns the CRC byte for cmd/arg. CRC checking is disabled after
// reset (CMD59), so only CMD0 and CMD8 need their real, spec-mandated
// values; every other command accepts a dummy trailer.
func crc(cmd byte, arg uint32) byte {
	switch {
	case cmd == CMD0 && arg == 0:
		return 0x95
	case cmd == CMD8 && arg == CMD8Arg:
		return 0x87
	default:
		return 0x01
	}
}

// ReadBytes clocks n bytes of 0xFF out to read n bytes of extended
// response (R3/R7 OCR trailer, CSD/CID register contents, SD data).
func ReadBytes(port sdspi.Port, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = port.Exchange(0xFF)
	}
	return buf
}
