package sdspi

import "time"

// Timing holds the fixed, per-phase timeouts and retry budget the protocol
// uses. Defaults match spec; pkg/config can load overrides from a board
// profile (ini file) for cards or peripherals that need more slack.
type Timing struct {
	// CommandResponse bounds the R1 poll after a command frame (§4.1).
	CommandResponse time.Duration
	// InitReady bounds the post-dummy-clocks wait before CMD0 starts
	// (Init FSM S2/S3).
	InitReady time.Duration
	// LeaveIdleSD1 bounds SDv1/MMC's ACMD41/CMD1 poll (Init FSM S6).
	LeaveIdleSD1 time.Duration
	// LeaveIdleSD2 bounds SDv2's HCS-flagged ACMD41 poll (Init FSM S8).
	LeaveIdleSD2 time.Duration
	// ReadToken bounds the wait for the data-start token (Read FSM S2).
	ReadToken time.Duration
	// WriteBusy bounds the write-programming busy poll (Write FSM S4).
	WriteBusy time.Duration
	// InitRetries is the SD_INIT_TRYS retry budget for the Init FSM.
	InitRetries int
}

// DefaultTiming returns the spec's fixed default timeouts.
func DefaultTiming() Timing {
	return Timing{
		CommandResponse: 5 * time.Millisecond,
		InitReady:       500 * time.Millisecond,
		LeaveIdleSD1:    250 * time.Millisecond,
		LeaveIdleSD2:    1000 * time.Millisecond,
		ReadToken:       100 * time.Millisecond,
		WriteBusy:       600 * time.Millisecond,
		InitRetries:     10,
	}
}
