package scheduler

import (
	"math"

	"github.com/junctionctl/controller/internal/phase"
)

// RecomputeDurations implements spec.md §4.5's end-of-cycle duration
// recomputation. normalized must already have had NormalizeDensity applied
// (see NormalizedAccumulator). original is the originally loaded duration
// vector, used both as the degenerate fallback and as the revert target.
//
// Deliberately preserved per spec.md §9: the sum is never re-normalized
// after the per-phase minPhaseDurationMs/minPedestrianDurationMs clamps, so
// a cycle with many clamped phases can drift away from fullCycleMs without
// triggering a revert — revert is checked only against a single
// d[p] > fullCycleMs, never against the clamped sum. This is not a bug to
// fix; it is the specified safety-floor-beats-exact-sum behavior.
func RecomputeDurations(normalized Accumulator, cycle phase.Cycle, original phase.Durations, p Params) phase.Durations {
	numPhases := len(normalized)
	phaseTotal := make([]float64, numPhases)
	pedTotal := make([]float64, numPhases)

	lanes := cycle.ClassifyLanes()

	var totalDensity float64
	for ph := 0; ph < numPhases; ph++ {
		row := normalized[ph]
		for lane, m := range row {
			kind := phase.LaneVehicle
			if lane < len(lanes) {
				kind = lanes[lane]
			}
			if kind == phase.LanePedestrian {
				pedTotal[ph] += m.Density
			} else {
				phaseTotal[ph] += m.Density
				totalDensity += m.Density
			}
		}
	}

	out := make(phase.Durations, numPhases)
	for ph := 0; ph < numPhases; ph++ {
		var d int64
		if totalDensity > 0 {
			d = int64(math.Round((phaseTotal[ph] / totalDensity) * float64(p.FullCycleMs)))
		} else {
			d = p.FullCycleMs
		}
		if d < p.MinPhaseDurationMs {
			d = p.MinPhaseDurationMs
		}
		if pedTotal[ph] > 0 && d < p.MinPedestrianDurationMs {
			d = p.MinPedestrianDurationMs
		}
		out[ph] = d
	}

	for _, d := range out {
		if d > p.FullCycleMs {
			return original.Clone()
		}
	}

	return out
}
