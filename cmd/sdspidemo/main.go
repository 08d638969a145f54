// Command sdspidemo exercises a card end to end: init, write a fixed
// sample block to a sector, read it back, and verify its checksum.
//
// Grounded on cmd/canopen/main.go's flag-parsed, logrus-leveled main
// loop. There is no real SPI peripheral to drive from a desktop
// process, so this demo runs against internal/simbus's in-memory card
// instead of socketcan's role in the teacher's demo.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/pkg/config"
	"github.com/embedded-go/sdspi/pkg/port"
	"github.com/embedded-go/sdspi/pkg/server"
)

var defaultSector = 3

func main() {
	log.SetLevel(log.InfoLevel)

	profilePath := flag.String("p", "", "board timing profile (.ini), optional")
	sector := flag.Int("s", defaultSector, "sector to exercise")
	verbose := flag.Bool("v", false, "debug logging")
	backend := flag.String("b", "sim", "port backend, see -list")
	channel := flag.String("c", "v2:8192", "backend-specific channel string")
	list := flag.Bool("list", false, "list registered port backends and exit")
	flag.Parse()

	if *list {
		fmt.Println(port.Implemented())
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	timing := sdspi.DefaultTiming()
	if *profilePath != "" {
		t, err := config.LoadTiming(*profilePath)
		if err != nil {
			fmt.Printf("could not load timing profile %v: %v\n", *profilePath, err)
			os.Exit(1)
		}
		timing = t
	}

	p, err := port.Open(*backend, *channel)
	if err != nil {
		fmt.Printf("could not open port %v: %v\n", *backend, err)
		os.Exit(1)
	}

	mailbox := sdspi.NewMailbox()
	srv, err := server.New(mailbox, p, timing, log.NewEntry(log.StandardLogger()))
	if err != nil {
		fmt.Printf("could not start server: %v\n", err)
		os.Exit(1)
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Microsecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				srv.Tick()
			}
		}
	}()
	defer close(stop)

	device := &sdspi.Device{}
	if res := sdspi.BlockingInit(mailbox, device); !res.IsOK() {
		fmt.Printf("init failed: %v\n", res)
		os.Exit(1)
	}
	fmt.Printf("card type %v, %d sectors\n", device.CardType, device.LastSector+1)

	buf := sampleBuffer()
	if res := sdspi.BlockingWrite(mailbox, device, buf, uint32(*sector)); !res.IsOK() {
		fmt.Printf("write failed: %v\n", res)
		os.Exit(1)
	}

	readBack := make([]byte, sdspi.SectorSize)
	if res := sdspi.BlockingRead(mailbox, device, readBack, uint32(*sector), 0, sdspi.SectorSize); !res.IsOK() {
		fmt.Printf("verify read failed: %v\n", res)
		os.Exit(1)
	}

	sum := checksum(readBack)
	if sum != 0x0569 {
		fmt.Printf("checksum mismatch: got 0x%04x, want 0x0569\n", sum)
		os.Exit(1)
	}
	fmt.Printf("round trip ok, checksum 0x%04x\n", sum)
}

// sampleBuffer matches original_source's Thread_Test_SD fixture: the
// first 8 bytes hold 0xFEEDDC0D as a little-endian 64-bit value, and the
// last 4 bytes (of what the original wrote as a 64-bit value starting at
// offset 508, overrunning its own 512-byte buffer) hold the low 32 bits
// of 0xACE0FC0D.
func sampleBuffer() []byte {
	buf := make([]byte, sdspi.SectorSize)
	binary.LittleEndian.PutUint64(buf[0:8], 0xFEEDDC0D)
	var tail [8]byte
	binary.LittleEndian.PutUint64(tail[:], 0xACE0FC0D)
	copy(buf[508:], tail[:])
	return buf
}

func checksum(buf []byte) uint32 {
	var sum uint32
	for _, b := range buf {
		sum += uint32(b)
	}
	return sum
}
