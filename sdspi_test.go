package sdspi_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/simbus"
	"github.com/embedded-go/sdspi/pkg/server"
)

func TestBlockingRoundTrip(t *testing.T) {
	card := simbus.NewCard("v2", 64)
	bus := simbus.NewBus(card)
	mailbox := sdspi.NewMailbox()
	s, err := server.New(mailbox, bus, sdspi.DefaultTiming(), nil)
	require.NoError(t, err)
	device := &sdspi.Device{}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				s.Tick()
			}
		}
	}()

	assert.Equal(t, sdspi.OK, sdspi.BlockingInit(mailbox, device))

	src := make([]byte, sdspi.SectorSize)
	copy(src, []byte("round trip via the blocking wrapper"))
	assert.Equal(t, sdspi.OK, sdspi.BlockingWrite(mailbox, device, src, 2))

	dst := make([]byte, sdspi.SectorSize)
	assert.Equal(t, sdspi.OK, sdspi.BlockingRead(mailbox, device, dst, 2, 0, sdspi.SectorSize))
	assert.Equal(t, src, dst)

	close(stop)
}

// TestWriteThenVerifyChecksum is spec.md §8's checksum scenario: a fixed
// sample buffer written to a sector must read back with byte-sum 0x0569.
func TestWriteThenVerifyChecksum(t *testing.T) {
	card := simbus.NewCard("v2", 64)
	bus := simbus.NewBus(card)
	mailbox := sdspi.NewMailbox()
	s, err := server.New(mailbox, bus, sdspi.DefaultTiming(), nil)
	require.NoError(t, err)
	device := &sdspi.Device{}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				s.Tick()
			}
		}
	}()
	defer close(stop)

	assert.Equal(t, sdspi.OK, sdspi.BlockingInit(mailbox, device))

	buf := make([]byte, sdspi.SectorSize)
	binary.LittleEndian.PutUint64(buf[0:8], 0xFEEDDC0D)
	var tail [8]byte
	binary.LittleEndian.PutUint64(tail[:], 0xACE0FC0D)
	copy(buf[508:], tail[:])

	assert.Equal(t, sdspi.OK, sdspi.BlockingWrite(mailbox, device, buf, 7))

	readBack := make([]byte, sdspi.SectorSize)
	assert.Equal(t, sdspi.OK, sdspi.BlockingRead(mailbox, device, readBack, 7, 0, sdspi.SectorSize))

	var sum uint32
	for _, b := range readBack {
		sum += uint32(b)
	}
	assert.EqualValues(t, 0x0569, sum)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "OK", sdspi.OK.String())
	assert.True(t, sdspi.OK.IsOK())
	assert.False(t, sdspi.ERROR.IsOK())
}

func TestDeviceAddressable(t *testing.T) {
	d := &sdspi.Device{Mounted: true, LastSector: 9}
	assert.True(t, d.Addressable(9))
	assert.False(t, d.Addressable(10))
	assert.False(t, (&sdspi.Device{}).Addressable(0))
}
