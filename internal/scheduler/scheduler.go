package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/junctionctl/controller/internal/config"
	"github.com/junctionctl/controller/internal/health"
	"github.com/junctionctl/controller/internal/ipc"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/phase"
	"github.com/junctionctl/controller/internal/relay"
	"github.com/junctionctl/controller/internal/report"
)

// ChildLink is the parent side of one lane's pipe pair, matching spec.md
// §3's ChildIdentity.pipes (minus the PID, which the supervisor tracks).
type ChildLink struct {
	Index     int
	ToChild   *os.File // parent's write end of the parent→child pipe
	FromChild *os.File // parent's read end of the child→parent pipe
}

// Scheduler is the parent cycle driver from spec.md §4.4.
type Scheduler struct {
	cfg      *config.Resolved
	relay    *relay.Relay
	children []ChildLink
	reporter *report.Reporter
	health   *health.Monitor
	log      *obslog.Logger

	durations phase.Durations

	// sleepOneSecond is injected so tests can run a full multi-second phase
	// timer without actually waiting; production wiring leaves it nil and
	// handlePhaseTimer falls back to time.Sleep.
	sleepOneSecond func()
}

// New constructs a Scheduler. children must be supplied index-ordered and
// cover every lane in cfg.Cycle.
func New(cfg *config.Resolved, rel *relay.Relay, children []ChildLink, reporter *report.Reporter, hm *health.Monitor, log *obslog.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		relay:     rel,
		children:  children,
		reporter:  reporter,
		health:    hm,
		log:       log,
		durations: cfg.OriginalDurations.Clone(),
	}
}

// Run executes the main loop from spec.md §4.4 until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	numPhases := s.cfg.Cycle.NumPhases()
	numLanes := s.cfg.Cycle.NumLanes()

	phaseIndex := 0
	var cycleNum int64
	acc := NewAccumulator(numPhases, numLanes)
	cycleDefaulted := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if phaseIndex == 0 {
			cycleNum++
		}

		s.relay.SetPhaseCycle(phaseIndex)
		if err := s.relay.ExecutePhase(ctx); err != nil {
			s.log.Warnf("scheduler: executePhase: %v", err)
		}

		s.sendPhaseMessages(phaseIndex)

		if !s.receivePrevData(phaseIndex, acc) {
			cycleDefaulted = true
		}

		if err := s.handlePhaseTimer(ctx, phaseIndex, s.durations[phaseIndex]); err != nil {
			return err
		}

		phaseIndex = (phaseIndex + 1) % numPhases

		if phaseIndex == 0 {
			s.durations = s.recomputeAndReport(acc, cycleDefaulted, cycleNum)
			acc = NewAccumulator(numPhases, numLanes)
			cycleDefaulted = false
		}
	}
}

// sendPhaseMessages writes one command frame to every child: the tag for
// that child's assignment in phaseIndex.
func (s *Scheduler) sendPhaseMessages(phaseIndex int) {
	row := s.cfg.Cycle[phaseIndex]
	for _, child := range s.children {
		a := phase.Unknown
		if child.Index < len(row) {
			a = row[child.Index]
		}
		if err := ipc.WriteCommand(child.ToChild, a); err != nil {
			s.log.Errorf("scheduler: write command to lane %d: %v", child.Index, err)
		}
	}
}

// receivePrevData reads one measurement per child, attributing it to
// phases[previousPhaseIndex] per the asymmetry in spec.md §4.2/§4.4. Any
// read or parse failure returns false, which triggers the default-ratio
// fallback for the whole cycle's matrix at cycle wrap (spec.md §4.4, §7).
func (s *Scheduler) receivePrevData(phaseIndex int, acc Accumulator) bool {
	numPhases := len(acc)
	prevIndex := ((phaseIndex - 1) % numPhases + numPhases) % numPhases

	ok := true
	for _, child := range s.children {
		m, err := ipc.ReadMeasurement(child.FromChild)
		if err != nil {
			s.log.Warnf("scheduler: read measurement from lane %d: %v", child.Index, err)
			ok = false
			continue
		}
		acc[prevIndex][child.Index] = m
		s.health.RecordHeartbeat(child.Index, time.Now())
	}
	return ok
}

// handlePhaseTimer blocks for the phase's scheduled duration, printing an
// integer-second countdown and firing the relay's yellow transition at
// T-5s. Per spec.md §9, this deliberately truncates to whole seconds
// (durationMs/1000): a phase shorter than 1s never ticks and never fires a
// transition, exactly as the source being modeled does.
func (s *Scheduler) handlePhaseTimer(ctx context.Context, phaseIndex int, durationMs int64) error {
	seconds := durationMs / 1000

	for remaining := seconds; remaining > 0; remaining-- {
		fmt.Printf("phase %d: %ds remaining\n", phaseIndex, remaining)

		if remaining == 5 {
			if err := s.relay.ExecuteTransitionPhase(ctx); err != nil {
				s.log.Warnf("scheduler: executeTransitionPhase: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.sleepOneSecond != nil {
			s.sleepOneSecond()
		} else {
			time.Sleep(time.Second)
		}
	}
	return nil
}

// recomputeAndReport recomputes next cycle's durations and enqueues the HTTP
// cycle report. When cycleDefaulted is true, acc already holds the
// degenerate default-ratio fallback (spec.md §4.4) and is used as-is: the
// per-phase density transform in spec.md §4.5 only applies to genuinely
// observed child measurements, never to the synthetic fallback, which by
// construction already reproduces the original phase shares.
func (s *Scheduler) recomputeAndReport(acc Accumulator, cycleDefaulted bool, cycleNum int64) phase.Durations {
	params := Params{
		DensityMultiplierGreenPhase: s.cfg.Config.DensityMultiplierGreenPhase,
		DensityMultiplierRedPhase:   s.cfg.Config.DensityMultiplierRedPhase,
		DensityMin:                  s.cfg.Config.DensityMin,
		DensityMax:                  s.cfg.Config.DensityMax,
		MinPhaseDurationMs:          s.cfg.Config.MinPhaseDurationMs,
		MinPedestrianDurationMs:     s.cfg.Config.MinPedestrianDurationMs,
		FullCycleMs:                 s.cfg.FullCycleMs,
	}

	normalized := acc
	if cycleDefaulted {
		normalized = DefaultFromRatio(s.cfg.Cycle.NumLanes(), s.cfg.Ratio)
	} else {
		normalized = NormalizedAccumulator(acc, s.cfg.Cycle, params)
	}
	next := RecomputeDurations(normalized, s.cfg.Cycle, s.cfg.OriginalDurations, params)

	s.reporter.Enqueue(buildCycleReport(s.cfg, normalized, next, cycleNum))
	return next
}
