package ipc

import (
	"os"
	"testing"
	"time"

	"github.com/junctionctl/controller/internal/phase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadCommandRoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, WriteCommand(w, phase.GreenVehicle))

	a, ok, err := ReadCommandNonBlocking(r, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, phase.GreenVehicle, a)
}

func TestReadCommandNonBlockingAbsentFrame(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	a, ok, err := ReadCommandNonBlocking(r, 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, phase.Unknown, a)
}
