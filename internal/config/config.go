// Package config loads and validates the YAML configuration record
// described in spec.md §6, adapted from the teacher's pkg/config and
// cmd/supervisor/internal/superconfig loaders: gopkg.in/yaml.v3 unmarshal
// into a typed struct, defaulting, then validation that returns wrapped
// errors rather than exiting.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/junctionctl/controller/internal/phase"
)

const (
	defaultStandbyDurationMs = int64(60000)
	defaultHTTPURL           = "https://reports.trafficez.invalid/cycles"
	defaultTSecretKey        = "TrafficEz-001-default-shared-secret"
)

// StreamInfo is one lane's external video-feed descriptor: a path to its
// (externally parsed) watcher config file and the stream URI to decode.
type StreamInfo struct {
	ConfigPath string `yaml:"configPath"`
	StreamURI  string `yaml:"streamUri"`
}

// UnmarshalYAML accepts the spec's `[configPath, streamUri]` two-element
// sequence form.
func (s *StreamInfo) UnmarshalYAML(value *yaml.Node) error {
	var pair [2]string
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("config: streamInfo entry must be a [configPath, streamUri] pair: %w", err)
	}
	s.ConfigPath = pair[0]
	s.StreamURI = pair[1]
	return nil
}

// Config is the typed form of the YAML configuration file from spec.md §6.
type Config struct {
	JunctionID   int    `yaml:"junctionId"`
	JunctionName string `yaml:"junctionName"`

	Phases          [][]string `yaml:"phases"`
	PhaseDurationMs []int64    `yaml:"phaseDurations"`

	StandbyDurationMs int64 `yaml:"standbyDuration"`

	DensityMultiplierGreenPhase float64 `yaml:"densityMultiplierGreenPhase"`
	DensityMultiplierRedPhase   float64 `yaml:"densityMultiplierRedPhase"`
	DensityMin                  float64 `yaml:"densityMin"`
	DensityMax                  float64 `yaml:"densityMax"`
	MinPhaseDurationMs          int64   `yaml:"minPhaseDurationMs"`
	MinPedestrianDurationMs     int64   `yaml:"minPedestrianDurationMs"`

	StreamInfo []StreamInfo `yaml:"streamInfo"`

	RelayURL      string `yaml:"relayUrl"`
	RelayUsername string `yaml:"relayUsername"`
	RelayPassword string `yaml:"relayPassword"`

	HTTPURL    string `yaml:"httpUrl"`
	TSecretKey string `yaml:"tSecretKey"`
}

// Load reads and parses the YAML configuration file at path, applying the
// defaults spec.md §6 names explicitly.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.StandbyDurationMs == 0 {
		cfg.StandbyDurationMs = defaultStandbyDurationMs
	}
	if cfg.HTTPURL == "" {
		cfg.HTTPURL = defaultHTTPURL
	}
	if cfg.TSecretKey == "" {
		cfg.TSecretKey = defaultTSecretKey
	}

	return &cfg, nil
}

// StandbyDuration returns the configured standby duration as a
// time.Duration.
func (c *Config) StandbyDuration() time.Duration {
	return time.Duration(c.StandbyDurationMs) * time.Millisecond
}

// Resolved is the fully validated, typed configuration the rest of the
// system consumes: the raw phases/durations from Config, parsed into the
// phase package's Cycle/Durations types, plus the derived lane counts from
// spec.md §6.
type Resolved struct {
	Config *Config

	Cycle             phase.Cycle
	OriginalDurations phase.Durations
	Ratio             phase.Ratio
	FullCycleMs       int64

	NumVehicle    int
	NumPedestrian int
}

// Resolve validates the Config against the invariants in spec.md §3 and §6
// and returns the typed Resolved form.
func Resolve(c *Config) (*Resolved, error) {
	if len(c.Phases) != len(c.PhaseDurationMs) {
		return nil, fmt.Errorf("config: len(phases)=%d != len(phaseDurations)=%d", len(c.Phases), len(c.PhaseDurationMs))
	}

	cycle := make(phase.Cycle, len(c.Phases))
	for i, row := range c.Phases {
		p := make(phase.Phase, len(row))
		for j, tag := range row {
			a, ok := phase.ParseTag(tag)
			if !ok {
				return nil, fmt.Errorf("config: phases[%d][%d] has unrecognized assignment %q", i, j, tag)
			}
			p[j] = a
		}
		cycle[i] = p
	}
	if err := cycle.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	durations := phase.Durations(append([]int64(nil), c.PhaseDurationMs...))
	fullCycleMs := durations.Sum()
	if err := durations.Validate(len(cycle), fullCycleMs); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	n := cycle.NumLanes()
	if len(c.StreamInfo) != n {
		return nil, fmt.Errorf("config: len(streamInfo)=%d != N=%d", len(c.StreamInfo), n)
	}

	numVehicle, numPedestrian := 0, 0
	for _, kind := range cycle.ClassifyLanes() {
		if kind == phase.LanePedestrian {
			numPedestrian++
		} else {
			numVehicle++
		}
	}

	if c.DensityMax <= c.DensityMin {
		return nil, fmt.Errorf("config: densityMax (%v) must exceed densityMin (%v)", c.DensityMax, c.DensityMin)
	}
	if c.MinPhaseDurationMs <= 0 {
		return nil, fmt.Errorf("config: minPhaseDurationMs must be positive")
	}

	return &Resolved{
		Config:            c,
		Cycle:             cycle,
		OriginalDurations: durations,
		Ratio:             phase.RatioFromDurations(durations, fullCycleMs),
		FullCycleMs:       fullCycleMs,
		NumVehicle:        numVehicle,
		NumPedestrian:     numPedestrian,
	}, nil
}
