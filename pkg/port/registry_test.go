package port_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedded-go/sdspi/pkg/port"
)

func TestOpenSimulated(t *testing.T) {
	p, err := port.Open("sim", "v2:1024")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := port.Open("does-not-exist", "")
	assert.Error(t, err)
}

func TestImplementedIncludesSim(t *testing.T) {
	assert.Contains(t, port.Implemented(), "sim")
}
