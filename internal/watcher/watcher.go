// Package watcher defines the Watcher contract the child worker runtime
// drives (spec.md §1, §4.2). The real implementation — video decode,
// perspective warp, hull tracking, YOLO-style segmentation — is explicitly
// out of scope for this system; only the interface it exposes to the
// per-lane worker is specified. This package also provides a simulated
// Watcher so the worker runtime is exercisable without a camera or model
// weights.
package watcher

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
)

// Kind distinguishes a vehicle-lane watcher from a pedestrian-crossing one.
type Kind int

const (
	Vehicle Kind = iota
	Pedestrian
)

func (k Kind) String() string {
	if k == Pedestrian {
		return "pedestrian"
	}
	return "vehicle"
}

// RenderMode controls whether the watcher draws a debug overlay. It has no
// effect on the reported measurements.
type RenderMode int

const (
	RenderNone RenderMode = iota
	RenderPreview
)

// SignalState is the current light state the worker tells its watcher to
// assume, used by real implementations to decide whether to track moving
// flow (green) or segment stationary backlog (red).
type SignalState int

const (
	StateRed SignalState = iota
	StateGreen
)

// StreamConfig is the opaque, externally-parsed-YAML configuration record
// for one lane's video feed (perspective warp points, model weights path,
// FPS target, and so on). Its contents are irrelevant to the core; it is
// passed through unexamined.
type StreamConfig map[string]string

// Watcher is the per-lane vision processor interface consumed by the
// worker runtime. A real implementation decodes frames from StreamLink,
// tracks/segments vehicles or pedestrians, and answers the three query
// methods with up-to-date figures.
type Watcher interface {
	// ProcessFrame advances the watcher by one frame. It may block for the
	// duration of one decode+inference cycle.
	ProcessFrame(ctx context.Context) error
	// TrafficDensity returns the current raw density estimate, untransformed
	// and unclamped (normalization per spec.md §4.5 happens in the worker).
	TrafficDensity() float64
	// VehicleTypeAndCount returns the current per-type vehicle counts.
	VehicleTypeAndCount() map[string]int
	// InstanceCount returns the current waiting-pedestrian count.
	InstanceCount() int
	// SetState tells the watcher which signal phase is currently showing so
	// it can switch between flow-tracking and backlog-segmentation modes.
	SetState(s SignalState)
}

// New constructs the Watcher for one lane. The concrete implementation
// returned is a deterministic simulation seeded from streamLink, standing
// in for the camera pipeline this system treats as an external
// collaborator (spec.md §1 Out of scope).
func New(kind Kind, renderMode RenderMode, streamLink string, streamConfig StreamConfig) (Watcher, error) {
	if streamLink == "" {
		return nil, fmt.Errorf("watcher: streamLink must not be empty")
	}
	return newSimulated(kind, streamLink), nil
}

// simulated is a deterministic stand-in Watcher. It reports plausible
// density/speed/count figures that drift smoothly with each ProcessFrame
// call, without decoding any actual video.
type simulated struct {
	mu    sync.Mutex
	kind  Kind
	state SignalState
	rng   *rand.Rand

	density   float64
	instances int
}

func newSimulated(kind Kind, streamLink string) *simulated {
	h := fnv.New64a()
	_, _ = h.Write([]byte(streamLink))
	seed := int64(h.Sum64())

	return &simulated{
		kind: kind,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (s *simulated) ProcessFrame(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.kind {
	case Pedestrian:
		if s.state == StateRed {
			// Waiting pedestrians accumulate while the crossing is red.
			s.instances += s.rng.Intn(2)
		} else {
			s.instances = 0
		}
	default:
		drift := (s.rng.Float64() - 0.5) * 0.1
		s.density += drift
		if s.density < 0 {
			s.density = 0
		}
		if s.density > 1 {
			s.density = 1
		}
		if s.density == 0 {
			s.density = s.rng.Float64()
		}
	}
	return nil
}

func (s *simulated) TrafficDensity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.density
}

func (s *simulated) VehicleTypeAndCount() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := int(s.density * 10)
	if total <= 0 {
		return map[string]int{}
	}
	cars := (total * 7) / 10
	trucks := total - cars
	counts := map[string]int{}
	if cars > 0 {
		counts["car"] = cars
	}
	if trucks > 0 {
		counts["truck"] = trucks
	}
	return counts
}

func (s *simulated) InstanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instances
}

func (s *simulated) SetState(state SignalState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
