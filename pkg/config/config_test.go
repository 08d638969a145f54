package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedded-go/sdspi"
	"github.com/embedded-go/sdspi/pkg/config"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	file, err := os.CreateTemp("", "board-*.ini")
	require.NoError(t, err)
	_, err = file.WriteString(contents)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	t.Cleanup(func() { os.Remove(file.Name()) })
	return file.Name()
}

func TestLoadTimingOverridesOnlyGivenKeys(t *testing.T) {
	path := writeProfile(t, "[timing]\ninit_retries = 3\ncmd_timeout_ms = 20\n")

	timing, err := config.LoadTiming(path)
	require.NoError(t, err)

	assert.Equal(t, 3, timing.InitRetries)
	assert.Equal(t, 20*time.Millisecond, timing.CommandResponse)
	assert.Equal(t, sdspi.DefaultTiming().ReadToken, timing.ReadToken)
}

func TestLoadTimingWithoutSectionKeepsDefaults(t *testing.T) {
	path := writeProfile(t, "[other]\nkey = value\n")

	timing, err := config.LoadTiming(path)
	require.NoError(t, err)
	assert.Equal(t, sdspi.DefaultTiming(), timing)
}
