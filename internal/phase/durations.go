package phase

import "fmt"

// Durations is the per-phase duration vector, in milliseconds. Entry p is
// the scheduled duration of phase p for the current cycle.
type Durations []int64

// Clone returns an independent copy.
func (d Durations) Clone() Durations {
	out := make(Durations, len(d))
	copy(out, d)
	return out
}

// Sum returns the total of all phase durations in milliseconds.
func (d Durations) Sum() int64 {
	var total int64
	for _, v := range d {
		total += v
	}
	return total
}

// Validate checks Durations against the invariants in spec.md §3: the
// vector must match the cycle's phase count, every entry must be positive,
// and the sum must equal fullCycleMs.
func (d Durations) Validate(numPhases int, fullCycleMs int64) error {
	if len(d) != numPhases {
		return fmt.Errorf("phase: durations has %d entries, want %d", len(d), numPhases)
	}
	for i, v := range d {
		if v <= 0 {
			return fmt.Errorf("phase: duration[%d] = %d is not positive", i, v)
		}
	}
	if sum := d.Sum(); sum != fullCycleMs {
		return fmt.Errorf("phase: durations sum to %d, want fullCycleMs %d", sum, fullCycleMs)
	}
	return nil
}

// Ratio is the vector of each phase's share of the full cycle, computed once
// at load time as originalDurations[i] / fullCycleMs. It is the fallback
// used whenever a cycle's measurements can't be trusted (spec.md §3, §4.5).
type Ratio []float64

// RatioFromDurations derives the PhaseRatio from the originally loaded
// duration vector.
func RatioFromDurations(original Durations, fullCycleMs int64) Ratio {
	r := make(Ratio, len(original))
	if fullCycleMs <= 0 {
		return r
	}
	for i, v := range original {
		r[i] = float64(v) / float64(fullCycleMs)
	}
	return r
}

