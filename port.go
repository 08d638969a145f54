package sdspi

import "time"

// Port is the external SPI/Timer collaborator: the low-level peripheral
// glue this driver drives but never implements itself. A board package
// wires this to real GPIO/SPI registers; internal/simbus wires it to an
// in-memory scripted card for tests.
//
// Shaped after pkg/can.Bus in the teacher stack: a small, synchronous
// interface that hides the transport so the protocol layer above it is
// portable across hardware.
type Port interface {
	// Init (re-)configures the SPI peripheral for card access. Called
	// once per Init FSM arm.
	Init() error

	// CSLow asserts chip-select (selects the card).
	CSLow()
	// CSHigh deasserts chip-select (releases the card, bus free).
	CSHigh()

	// ClockLow switches the SPI clock to the slow, card-identification
	// rate (≤ 400 kHz per the SD spec).
	ClockLow()
	// ClockHigh switches the SPI clock to the negotiated operating rate.
	ClockHigh()

	// Release deasserts chip-select and leaves the bus idle; called at
	// every FSM terminal state per the "bus released at rest" invariant.
	Release()

	// Exchange clocks one byte out and returns the byte clocked in,
	// full duplex — the fundamental SD-over-SPI primitive.
	Exchange(out byte) (in byte)

	// TimerOn arms a one-shot countdown of the given duration.
	TimerOn(d time.Duration)
	// TimerAlive reports whether the most recently armed timer is still
	// running. It must return false once TimerOff has been called, and
	// false once the armed duration has elapsed, even without an
	// intervening TimerOff.
	TimerAlive() bool
	// TimerOff disarms the timer; after it returns, TimerAlive is false.
	TimerOff()
}
