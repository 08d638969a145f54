package fsm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/simbus"
	"github.com/embedded-go/sdspi/pkg/fsm"
)

func TestWriteThenReadBack(t *testing.T) {
	card := simbus.NewCard("v2", 1024)
	bus := simbus.NewBus(card)
	device := mountedDevice(t, bus)

	src := make([]byte, sdspi.SectorSize)
	for i := range src {
		src[i] = byte(0x69) // 0x0569's low byte, arbitrary fixed payload
	}

	w := fsm.NewWrite(bus, sdspi.DefaultTiming(), nil)
	w.Arm(device, src, 3)
	run(t, w)

	assert.Equal(t, sdspi.OK, w.Error())
	assert.EqualValues(t, 1, device.Debug.Writes)

	dst := make([]byte, sdspi.SectorSize)
	r := fsm.NewRead(bus, sdspi.DefaultTiming(), nil)
	r.Arm(device, dst, 3, 0, sdspi.SectorSize)
	run(t, r)

	assert.Equal(t, sdspi.OK, r.Error())
	assert.Equal(t, src, dst)
}

func TestWriteOutOfRangeIsParamError(t *testing.T) {
	// 1024 sectors is the smallest capacity a CSDv2 register encodes.
	card := simbus.NewCard("v2", 1024)
	bus := simbus.NewBus(card)
	device := mountedDevice(t, bus)

	src := make([]byte, sdspi.SectorSize)
	w := fsm.NewWrite(bus, sdspi.DefaultTiming(), nil)
	w.Arm(device, src, 1024)
	run(t, w)

	assert.Equal(t, sdspi.PARERR, w.Error())
	assert.EqualValues(t, 0, device.Debug.Writes)
}

func TestWriteStuckBusyTimesOut(t *testing.T) {
	card := simbus.NewCard("v2", 1024)
	card.StickyBusy = true
	bus := simbus.NewBus(card)
	device := mountedDevice(t, bus)

	timing := sdspi.DefaultTiming()
	timing.WriteBusy = 2 * timing.CommandResponse // keep the test fast

	src := make([]byte, sdspi.SectorSize)
	w := fsm.NewWrite(bus, timing, nil)
	w.Arm(device, src, 0)
	run(t, w)

	assert.Equal(t, sdspi.BUSY, w.Error())
}
