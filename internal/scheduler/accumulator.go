// Package scheduler is the parent cycle driver described in spec.md §4.4
// and §4.5: it drives the relay and per-lane children through the phase
// sequence, collects measurements, and recomputes next cycle's phase
// durations under the clamping rules in §4.5.
package scheduler

import (
	"github.com/junctionctl/controller/internal/ipc"
	"github.com/junctionctl/controller/internal/phase"
)

// Accumulator is the P×N matrix of per-phase, per-lane measurements from
// spec.md §3's CycleAccumulator, rebuilt once per cycle.
type Accumulator [][]ipc.Measurement

// NewAccumulator allocates a zeroed P×N matrix.
func NewAccumulator(numPhases, numLanes int) Accumulator {
	acc := make(Accumulator, numPhases)
	for p := range acc {
		acc[p] = make([]ipc.Measurement, numLanes)
	}
	return acc
}

// DefaultFromRatio fills the accumulator with the degenerate fallback used
// whenever a child's reply can't be trusted for a whole cycle (spec.md §4.4,
// §7): every lane in phase p is assigned density = ratio[p], the phase's
// original share of the full cycle, with no vehicle breakdown.
func DefaultFromRatio(numLanes int, ratio phase.Ratio) Accumulator {
	acc := NewAccumulator(len(ratio), numLanes)
	for p, r := range ratio {
		for lane := 0; lane < numLanes; lane++ {
			acc[p][lane] = ipc.Measurement{Density: r}
		}
	}
	return acc
}
