package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/junctionctl/controller/internal/phase"
)

func baseParams() Params {
	return Params{
		DensityMultiplierGreenPhase: 1.0,
		DensityMultiplierRedPhase:   0.5,
		DensityMin:                  0,
		DensityMax:                  1,
		MinPhaseDurationMs:          2000,
		MinPedestrianDurationMs:     8000,
		FullCycleMs:                 30000,
	}
}

// TestNormalizeDensityMatchesS2 exercises spec.md §8 scenario S2's
// normalization step directly.
func TestNormalizeDensityMatchesS2(t *testing.T) {
	p := baseParams()

	assert.InDelta(t, 0.9, NormalizeDensity(0.9, phase.GreenVehicle, p), 1e-9)
	assert.InDelta(t, 0.7, NormalizeDensity(0.7, phase.GreenVehicle, p), 1e-9)
	assert.InDelta(t, 0.4, NormalizeDensity(0.2, phase.RedVehicle, p), 1e-9)
	assert.InDelta(t, 0.35, NormalizeDensity(0.3, phase.RedVehicle, p), 1e-9)
}

func TestNormalizeDensityClampsToRange(t *testing.T) {
	p := baseParams()
	p.DensityMultiplierGreenPhase = 3.0

	assert.Equal(t, p.DensityMax, NormalizeDensity(0.9, phase.GreenVehicle, p))
}

func TestNormalizeDensityRedPedestrianAlwaysZero(t *testing.T) {
	p := baseParams()
	assert.Equal(t, 0.0, NormalizeDensity(0.8, phase.RedPedestrian, p))
}

func TestNormalizeDensityGreenPedestrianUnchanged(t *testing.T) {
	p := baseParams()
	assert.InDelta(t, 0.42, NormalizeDensity(0.42, phase.GreenPedestrian, p), 1e-9)
}

// TestNormalizeDensityRedVehicleMonotonicallyDecreasing covers testable
// property #5 from spec.md §8.
func TestNormalizeDensityRedVehicleMonotonicallyDecreasing(t *testing.T) {
	p := baseParams()
	lo := NormalizeDensity(0.2, phase.RedVehicle, p)
	hi := NormalizeDensity(0.8, phase.RedVehicle, p)
	assert.Greater(t, lo, hi)
}
