package csd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/csd"
	"github.com/embedded-go/sdspi/internal/simbus"
)

func TestReadSDv2(t *testing.T) {
	card := simbus.NewCard("v2", 2048)
	bus := simbus.NewBus(card)
	sectors := csd.Read(bus, sdspi.SDv2|sdspi.BlockAddressed)
	assert.EqualValues(t, 2048, sectors)
}

func TestReadSDv1(t *testing.T) {
	card := simbus.NewCard("v1", 4096)
	bus := simbus.NewBus(card)
	sectors := csd.Read(bus, sdspi.SDv1)
	assert.EqualValues(t, 4096, sectors)
}

func TestReadFailsWithoutCard(t *testing.T) {
	bus := simbus.NewBus(nil)
	sectors := csd.Read(bus, sdspi.SDv2)
	assert.EqualValues(t, 0, sectors)
}
