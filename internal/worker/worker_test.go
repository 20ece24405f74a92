package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junctionctl/controller/internal/ipc"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/phase"
	"github.com/junctionctl/controller/internal/watcher"
)

// harness wires a worker.Run call to in-process pipes so the test can drive
// it exactly like the parent scheduler would, without forking a process.
type harness struct {
	parentToChildW *os.File // test writes phase commands here
	childToParentR *os.File // test reads measurement replies here

	done chan error
}

func startHarness(t *testing.T, kind watcher.Kind) *harness {
	t.Helper()

	p2cR, p2cW, err := os.Pipe()
	require.NoError(t, err)
	c2pR, c2pW, err := os.Pipe()
	require.NoError(t, err)

	h := &harness{parentToChildW: p2cW, childToParentR: c2pR, done: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := Config{
		Index:      0,
		Kind:       kind,
		StreamLink: "lane-test",
		Pipes:      Pipes{ParentToChild: p2cR, ChildToParent: c2pW},
		Log:        obslog.New("worker-test"),
	}

	go func() { h.done <- Run(ctx, cfg) }()
	return h
}

func (h *harness) sendCommand(t *testing.T, a phase.Assignment) {
	t.Helper()
	require.NoError(t, ipc.WriteCommand(h.parentToChildW, a))
}

func (h *harness) readMeasurement(t *testing.T) ipc.Measurement {
	t.Helper()
	require.NoError(t, h.childToParentR.SetReadDeadline(time.Now().Add(2*time.Second)))
	m, err := ipc.ReadMeasurement(h.childToParentR)
	require.NoError(t, err)
	return m
}

func TestRunVehicleReportsOnGreenAndRed(t *testing.T) {
	h := startHarness(t, watcher.Vehicle)

	h.sendCommand(t, phase.GreenVehicle)
	green := h.readMeasurement(t)
	assert.GreaterOrEqual(t, green.Density, 0.0)

	h.sendCommand(t, phase.RedVehicle)
	red := h.readMeasurement(t)
	assert.GreaterOrEqual(t, red.Density, 0.0)
}

func TestRunPedestrianGreenReportsZeroDensity(t *testing.T) {
	h := startHarness(t, watcher.Pedestrian)

	h.sendCommand(t, phase.GreenPedestrian)
	m := h.readMeasurement(t)
	assert.Equal(t, 0.0, m.Density)
	assert.Empty(t, m.Vehicles)
}

func TestRunPedestrianRedReportsInstanceCountAsDensity(t *testing.T) {
	h := startHarness(t, watcher.Pedestrian)

	h.sendCommand(t, phase.RedPedestrian)
	m := h.readMeasurement(t)
	assert.GreaterOrEqual(t, m.Density, 0.0)
	assert.Empty(t, m.Vehicles)
}
