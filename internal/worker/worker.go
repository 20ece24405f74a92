// Package worker implements the per-lane child runtime described in
// spec.md §4.2: a long-lived loop that reads phase commands from the
// parent non-blockingly, drives an external watcher.Watcher, and reports
// density/speed/vehicle-type measurements back over the child→parent pipe.
// It is run inside a re-exec'd child process by internal/supervisor, but is
// deliberately expressed in terms of plain *os.File pipe ends and a
// context.Context so it is directly exercisable in-process by tests.
package worker

import (
	"context"
	"os"
	"time"

	"github.com/junctionctl/controller/internal/ipc"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/phase"
	"github.com/junctionctl/controller/internal/watcher"
)

// pollInterval is the non-blocking-read poll granularity, matching the
// "~1ms" sleep spec.md §4.2 and §5 describe between pipe reads.
const pollInterval = time.Millisecond

// Pipes bundles one child's two pipe ends: the read end of parent→child and
// the write end of child→parent. The supervisor owns closing the unused
// ends before handing these to Run.
type Pipes struct {
	ParentToChild *os.File
	ChildToParent *os.File
}

// Config bundles everything one worker needs to run.
type Config struct {
	Index        int
	Kind         watcher.Kind
	RenderMode   watcher.RenderMode
	StreamLink   string
	StreamConfig watcher.StreamConfig
	Pipes        Pipes
	Log          *obslog.Logger
}

// Run constructs the Config's Watcher and dispatches to the kind-specific
// loop. It returns when ctx is cancelled (the Go-native equivalent of a
// clean SIGTERM exit per spec.md §4.2's "Failure" paragraph) or on an
// unrecoverable watcher construction error.
func Run(ctx context.Context, cfg Config) error {
	w, err := watcher.New(cfg.Kind, cfg.RenderMode, cfg.StreamLink, cfg.StreamConfig)
	if err != nil {
		return err
	}

	switch cfg.Kind {
	case watcher.Pedestrian:
		return runPedestrian(ctx, cfg, w)
	default:
		return runVehicle(ctx, cfg, w)
	}
}

// runVehicle implements spec.md §4.2 steps 4–5 for a vehicle lane: on
// GREEN_PHASE it flushes once (to capture the just-ended red phase's final
// reading) before reporting that snapshot, then free-runs processFrame()
// every loop iteration while green; on RED_PHASE it reports the
// continuously-updated green-phase snapshot with no additional flush, and
// goes quiescent until the next green. This asymmetry (green flushes once at
// the boundary plus continuously thereafter, red never flushes) is
// deliberate per spec.md §9 and is not "fixed" here.
func runVehicle(ctx context.Context, cfg Config, w watcher.Watcher) error {
	state := phase.RedVehicle // assume red until told otherwise

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		a, ok, err := ipc.ReadCommandNonBlocking(cfg.Pipes.ParentToChild, pollInterval)
		if err != nil {
			cfg.Log.Errorf("worker[%d]: pipe read: %v", cfg.Index, err)
		}

		if !ok {
			if state == phase.GreenVehicle {
				if err := w.ProcessFrame(ctx); err != nil {
					cfg.Log.Warnf("worker[%d]: processFrame: %v", cfg.Index, err)
				}
			}
			continue
		}

		switch a {
		case phase.GreenVehicle:
			if err := w.ProcessFrame(ctx); err != nil {
				cfg.Log.Warnf("worker[%d]: processFrame flush: %v", cfg.Index, err)
			}
			snapshot := ipc.Measurement{
				Density:  w.TrafficDensity(),
				Vehicles: w.VehicleTypeAndCount(),
			}
			if err := ipc.WriteMeasurement(cfg.Pipes.ChildToParent, snapshot); err != nil {
				cfg.Log.Errorf("worker[%d]: write measurement: %v", cfg.Index, err)
			}
			w.SetState(watcher.StateGreen)
			state = phase.GreenVehicle

		case phase.RedVehicle:
			snapshot := ipc.Measurement{
				Density:  w.TrafficDensity(),
				Vehicles: w.VehicleTypeAndCount(),
			}
			if err := ipc.WriteMeasurement(cfg.Pipes.ChildToParent, snapshot); err != nil {
				cfg.Log.Errorf("worker[%d]: write measurement: %v", cfg.Index, err)
			}
			w.SetState(watcher.StateRed)
			state = phase.RedVehicle

		default:
			cfg.Log.Warnf("worker[%d]: unexpected command %v for vehicle lane", cfg.Index, a)
		}
	}
}

// runPedestrian implements spec.md §4.2 steps 6–7 for a pedestrian crossing:
// RED_PED flushes once and reports the waiting-pedestrian count as the
// density field with an empty vehicle map; GREEN_PED reports a flat 0.0
// density (walking pedestrians are not counted).
func runPedestrian(ctx context.Context, cfg Config, w watcher.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		a, ok, err := ipc.ReadCommandNonBlocking(cfg.Pipes.ParentToChild, pollInterval)
		if err != nil {
			cfg.Log.Errorf("worker[%d]: pipe read: %v", cfg.Index, err)
		}
		if !ok {
			continue
		}

		switch a {
		case phase.RedPedestrian:
			if err := w.ProcessFrame(ctx); err != nil {
				cfg.Log.Warnf("worker[%d]: processFrame flush: %v", cfg.Index, err)
			}
			w.SetState(watcher.StateRed)
			snapshot := ipc.Measurement{
				Density:  float64(w.InstanceCount()),
				Vehicles: map[string]int{},
			}
			if err := ipc.WriteMeasurement(cfg.Pipes.ChildToParent, snapshot); err != nil {
				cfg.Log.Errorf("worker[%d]: write measurement: %v", cfg.Index, err)
			}

		case phase.GreenPedestrian:
			w.SetState(watcher.StateGreen)
			snapshot := ipc.Measurement{Density: 0.0, Vehicles: map[string]int{}}
			if err := ipc.WriteMeasurement(cfg.Pipes.ChildToParent, snapshot); err != nil {
				cfg.Log.Errorf("worker[%d]: write measurement: %v", cfg.Index, err)
			}

		default:
			cfg.Log.Warnf("worker[%d]: unexpected command %v for pedestrian lane", cfg.Index, a)
		}
	}
}
