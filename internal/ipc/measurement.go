package ipc

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Measurement is one child->parent reply: the density/speed/vehicle-count
// tuple described in spec.md §3 (LaneMeasurement) and framed per §4.1.
type Measurement struct {
	Density  float64
	Speed    float64
	Vehicles map[string]int
}

// Encode renders a Measurement as the canonical two-semicolon wire frame:
// "<density>;<speed>;<k1>:<v1>,<k2>:<v2>,…". spec.md §9 flags the
// single-semicolon ("density;vehicles", speed omitted) variant as a latent
// producer bug; this encoder only ever emits the two-semicolon form.
func (m Measurement) Encode() string {
	keys := make([]string, 0, len(m.Vehicles))
	for k := range m.Vehicles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s:%d", k, m.Vehicles[k]))
	}

	return fmt.Sprintf("%.2f;%.2f;%s", m.Density, m.Speed, strings.Join(pairs, ","))
}

// WriteMeasurement sends the frame null-terminated, one write per message.
func WriteMeasurement(w io.Writer, m Measurement) error {
	frame := append([]byte(m.Encode()), 0)
	if len(frame) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	_, err := w.Write(frame)
	return err
}

// ParseMeasurement decodes a raw measurement frame. Per spec.md §4.1, a
// frame lacking two semicolons, carrying a non-numeric density/speed, or
// carrying a NaN value must be rejected.
func ParseMeasurement(raw string) (Measurement, error) {
	raw = strings.TrimRight(raw, "\x00")

	first := strings.IndexByte(raw, ';')
	if first < 0 {
		return Measurement{}, fmt.Errorf("ipc: measurement frame missing first semicolon: %q", raw)
	}
	rest := raw[first+1:]
	second := strings.IndexByte(rest, ';')
	if second < 0 {
		return Measurement{}, fmt.Errorf("ipc: measurement frame missing second semicolon: %q", raw)
	}

	densityStr := raw[:first]
	speedStr := rest[:second]
	vehiclesStr := rest[second+1:]

	density, err := strconv.ParseFloat(densityStr, 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("ipc: non-numeric density %q: %w", densityStr, err)
	}
	if math.IsNaN(density) {
		return Measurement{}, fmt.Errorf("ipc: NaN density in frame: %q", raw)
	}

	speed, err := strconv.ParseFloat(speedStr, 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("ipc: non-numeric speed %q: %w", speedStr, err)
	}
	if math.IsNaN(speed) {
		return Measurement{}, fmt.Errorf("ipc: NaN speed in frame: %q", raw)
	}

	vehicles := make(map[string]int)
	vehiclesStr = strings.TrimSpace(vehiclesStr)
	if vehiclesStr != "" {
		for _, pair := range strings.Split(vehiclesStr, ",") {
			kv := strings.SplitN(pair, ":", 2)
			if len(kv) != 2 {
				return Measurement{}, fmt.Errorf("ipc: malformed vehicle pair %q in %q", pair, raw)
			}
			count, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return Measurement{}, fmt.Errorf("ipc: non-integer vehicle count %q: %w", kv[1], err)
			}
			vehicles[strings.TrimSpace(kv[0])] = count
		}
	}

	return Measurement{Density: density, Speed: speed, Vehicles: vehicles}, nil
}

// ReadMeasurement performs one blocking read of a full measurement frame
// from the child->parent pipe, matching the parent's "one blocking read per
// child" collection step in spec.md §4.4.
func ReadMeasurement(r io.Reader) (Measurement, error) {
	buf := make([]byte, MaxFrameBytes)
	n, err := r.Read(buf)
	if err != nil {
		return Measurement{}, fmt.Errorf("ipc: read measurement: %w", err)
	}
	if n == 0 {
		return Measurement{}, fmt.Errorf("ipc: read measurement: empty frame")
	}
	raw := strings.TrimRight(string(buf[:n]), "\x00")
	return ParseMeasurement(raw)
}
