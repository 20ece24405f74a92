package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurementRoundTrip(t *testing.T) {
	m := Measurement{
		Density:  0.73,
		Speed:    12.4,
		Vehicles: map[string]int{"car": 3, "bus": 1},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMeasurement(&buf, m))

	got, err := ReadMeasurement(&buf)
	require.NoError(t, err)
	assert.InDelta(t, m.Density, got.Density, 0.01)
	assert.InDelta(t, m.Speed, got.Speed, 0.01)
	assert.Equal(t, m.Vehicles, got.Vehicles)
}

func TestParseMeasurementEmptyVehicleMap(t *testing.T) {
	got, err := ParseMeasurement("0.00;0.00;")
	require.NoError(t, err)
	assert.Empty(t, got.Vehicles)
}

func TestParseMeasurementRejectsMissingSemicolons(t *testing.T) {
	_, err := ParseMeasurement("0.50")
	assert.Error(t, err)

	_, err = ParseMeasurement("0.50;1.2")
	assert.Error(t, err)
}

func TestParseMeasurementRejectsNonNumeric(t *testing.T) {
	_, err := ParseMeasurement("oops;1.2;")
	assert.Error(t, err)

	_, err = ParseMeasurement("0.50;oops;")
	assert.Error(t, err)
}

func TestParseMeasurementRejectsNaN(t *testing.T) {
	_, err := ParseMeasurement("nan;0.0;")
	assert.Error(t, err)

	_, err = ParseMeasurement("0.0;NaN;")
	assert.Error(t, err)
}

func TestParseMeasurementRejectsMalformedVehiclePair(t *testing.T) {
	_, err := ParseMeasurement("0.5;1.0;car")
	assert.Error(t, err)
}
