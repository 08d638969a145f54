package server_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/simbus"
	"github.com/embedded-go/sdspi/pkg/server"
)

// tick drives s until mailbox reports idle again, for tests that submit
// exactly one request at a time. The bound is in time, not ticks: an Init
// request spins through InitReady's 500 ms default.
func tick(t *testing.T, s *server.Server, mailbox *sdspi.Mailbox) {
	t.Helper()
	for deadline := time.Now().Add(10 * time.Second); time.Now().Before(deadline); {
		s.Tick()
		if !mailbox.Busy() {
			return
		}
	}
	t.Fatal("server never drained the request")
}

func TestServerInitReadWrite(t *testing.T) {
	card := simbus.NewCard("v2", 64)
	bus := simbus.NewBus(card)
	mailbox := sdspi.NewMailbox()
	s, err := server.New(mailbox, bus, sdspi.DefaultTiming(), nil)
	require.NoError(t, err)
	device := &sdspi.Device{}

	require := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	require(mailbox.Submit(sdspi.Request{Kind: sdspi.ReqInit, Device: device}))
	tick(t, s, mailbox)
	assert.Equal(t, sdspi.OK, mailbox.Error())
	assert.True(t, device.Mounted)

	src := make([]byte, sdspi.SectorSize)
	copy(src, []byte("server round trip"))
	require(mailbox.Submit(sdspi.Request{Kind: sdspi.ReqWrite, Device: device, Data: src, Sector: 1}))
	tick(t, s, mailbox)
	assert.Equal(t, sdspi.OK, mailbox.Error())

	dst := make([]byte, sdspi.SectorSize)
	require(mailbox.Submit(sdspi.Request{Kind: sdspi.ReqRead, Device: device, Data: dst, Sector: 1, Cnt: sdspi.SectorSize}))
	tick(t, s, mailbox)
	assert.Equal(t, sdspi.OK, mailbox.Error())
	assert.Equal(t, src, dst)
}

func TestServerStatusProbe(t *testing.T) {
	bus := simbus.NewBus(simbus.NewCard("v2", 64))
	mailbox := sdspi.NewMailbox()
	s, err := server.New(mailbox, bus, sdspi.DefaultTiming(), nil)
	require.NoError(t, err)

	if err := mailbox.Submit(sdspi.Request{Kind: sdspi.ReqStatus}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	tick(t, s, mailbox)
	assert.Equal(t, sdspi.OK, mailbox.Error())
}

func TestServerStatusProbeNoCard(t *testing.T) {
	timing := sdspi.DefaultTiming()
	timing.CommandResponse = 0
	bus := simbus.NewBus(nil)
	mailbox := sdspi.NewMailbox()
	s, err := server.New(mailbox, bus, timing, nil)
	require.NoError(t, err)

	if err := mailbox.Submit(sdspi.Request{Kind: sdspi.ReqStatus}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	tick(t, s, mailbox)
	assert.Equal(t, sdspi.NORESP, mailbox.Error())
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	bus := simbus.NewBus(simbus.NewCard("v2", 64))
	mailbox := sdspi.NewMailbox()

	_, err := server.New(nil, bus, sdspi.DefaultTiming(), nil)
	assert.ErrorIs(t, err, server.ErrNilMailbox)

	_, err = server.New(mailbox, nil, sdspi.DefaultTiming(), nil)
	assert.ErrorIs(t, err, server.ErrNilPort)
}

func TestServerRejectsUnknownRequestKind(t *testing.T) {
	bus := simbus.NewBus(simbus.NewCard("v2", 64))
	mailbox := sdspi.NewMailbox()
	s, err := server.New(mailbox, bus, sdspi.DefaultTiming(), nil)
	require.NoError(t, err)

	if err := mailbox.Submit(sdspi.Request{Kind: sdspi.ReqNone}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	tick(t, s, mailbox)
	assert.Equal(t, sdspi.PARERR, mailbox.Error())
}
