package port

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/internal/simbus"
)

func init() {
	Register("sim", newSimulated)
}

// newSimulated builds an internal/simbus Port. channel is
// "<version>:<sectors>", e.g. "v2:8192" for an 8192-sector SDHC card, or
// "none" for no card present.
func newSimulated(channel string) (sdspi.Port, error) {
	if channel == "" || channel == "none" {
		return simbus.NewBus(nil), nil
	}
	parts := strings.SplitN(channel, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("port: sim channel %q must be \"<version>:<sectors>\"", channel)
	}
	sectors, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("port: sim channel %q: %w", channel, err)
	}
	return simbus.NewBus(simbus.NewCard(parts[0], uint32(sectors))), nil
}
