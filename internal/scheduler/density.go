package scheduler

import (
	"github.com/junctionctl/controller/internal/ipc"
	"github.com/junctionctl/controller/internal/phase"
)

// Params bundles the normalization/recomputation constants loaded from
// config, matching spec.md §4.5's formula inputs.
type Params struct {
	DensityMultiplierGreenPhase float64
	DensityMultiplierRedPhase   float64
	DensityMin                  float64
	DensityMax                  float64
	MinPhaseDurationMs          int64
	MinPedestrianDurationMs     int64
	FullCycleMs                 int64
}

// NormalizeDensity applies the phase-type-specific transform from spec.md
// §4.5's table, then clamps to [densityMin, densityMax].
func NormalizeDensity(raw float64, observed phase.Assignment, p Params) float64 {
	var v float64
	switch observed {
	case phase.GreenVehicle:
		v = raw * p.DensityMultiplierGreenPhase
	case phase.RedVehicle:
		v = (p.DensityMax - raw) * p.DensityMultiplierRedPhase
	case phase.RedPedestrian:
		v = 0
	case phase.GreenPedestrian:
		v = raw
	default:
		v = raw
	}
	return clamp(v, p.DensityMin, p.DensityMax)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NormalizedAccumulator applies NormalizeDensity to every cell of raw using
// cycle to determine each lane's assignment in each phase (the "observed
// phase" spec.md §4.5 transforms by).
func NormalizedAccumulator(raw Accumulator, cycle phase.Cycle, p Params) Accumulator {
	out := NewAccumulator(len(raw), cycle.NumLanes())
	for ph := range raw {
		row := cycle[ph%len(cycle)]
		for lane := range raw[ph] {
			m := raw[ph][lane]
			a := phase.Unknown
			if lane < len(row) {
				a = row[lane]
			}
			out[ph][lane] = ipc.Measurement{
				Density:  NormalizeDensity(m.Density, a, p),
				Speed:    m.Speed,
				Vehicles: m.Vehicles,
			}
		}
	}
	return out
}
