// Package config loads a board's Timing profile from an ini file, the
// way an EDS file configures a CANopen object dictionary.
//
// Grounded on pkg/od/parser.go's Parse: gopkg.in/ini.v1's Load plus a
// section/key walk, here flattened to a single [timing] section since a
// board profile has no nested index/subindex structure to preserve.
package config

import (
	"time"

	"gopkg.in/ini.v1"

	"github.com/embedded-go/sdspi"
)

// timingSection is the ini section a board profile keys its overrides
// under; any key it omits keeps sdspi.DefaultTiming's value.
const timingSection = "timing"

// LoadTiming reads path and returns the Timing it describes, starting
// from sdspi.DefaultTiming and overriding only the keys present.
func LoadTiming(path string) (sdspi.Timing, error) {
	timing := sdspi.DefaultTiming()

	file, err := ini.Load(path)
	if err != nil {
		return timing, err
	}
	if !file.HasSection(timingSection) {
		return timing, nil
	}
	section := file.Section(timingSection)

	millis := func(key string, dst *time.Duration) {
		k := section.Key(key)
		if k.String() == "" {
			return
		}
		if v, err := k.Int(); err == nil {
			*dst = time.Duration(v) * time.Millisecond
		}
	}

	millis("cmd_timeout_ms", &timing.CommandResponse)
	millis("init_ready_ms", &timing.InitReady)
	millis("leave_idle_sd1_ms", &timing.LeaveIdleSD1)
	millis("leave_idle_sd2_ms", &timing.LeaveIdleSD2)
	millis("read_token_ms", &timing.ReadToken)
	millis("write_busy_ms", &timing.WriteBusy)

	if k := section.Key("init_retries"); k.String() != "" {
		if v, err := k.Int(); err == nil {
			timing.InitRetries = v
		}
	}

	return timing, nil
}
