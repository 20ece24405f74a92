// Package supervisor owns process lifecycle: forking the N per-lane worker
// children, wiring their pipe pairs to the scheduler, and reacting to a
// clean shutdown request or a child crash (spec.md §4.6, §9). It is
// adapted from the teacher's cmd/supervisor/internal/manager.ServiceProcess,
// narrowed from a generic multi-service process manager down to the fixed
// fork-N-children-then-watch-them-die shape this system needs.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/junctionctl/controller/internal/config"
	"github.com/junctionctl/controller/internal/health"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/phase"
	"github.com/junctionctl/controller/internal/relay"
	"github.com/junctionctl/controller/internal/scheduler"
	"github.com/junctionctl/controller/internal/watcher"
)

// staleCheckInterval is how often Run polls the health monitor for lanes
// that have gone quiet without their process exiting.
const staleCheckInterval = 5 * time.Second

// staleAfter is how long a lane may go without reporting before it is
// logged as stale.
const staleAfter = 10 * time.Second

// WorkerModeEnv, when set in a child's environment, tells cmd/controller's
// main to run the worker runtime instead of the supervisor (the self-re-exec
// pattern spec.md §4.6 describes as "fork N children, each invoking its
// runtime entry point").
const WorkerModeEnv = "JUNCTIONCTL_WORKER_LANE"

// ChildReadFD and ChildWriteFD are the file descriptors a worker child finds
// its pipe ends on: the first two entries of ExtraFiles land at fd 3 and
// fd 4 (fd 0-2 are stdin/stdout/stderr).
const (
	ChildReadFD  = 3
	ChildWriteFD = 4
)

// child tracks one lane's live process and its parent-side pipe ends, plus
// enough of the watcher config to respawn it identically if ever needed.
type child struct {
	index      int
	spawnID    string
	kind       watcher.Kind
	renderMode watcher.RenderMode
	streamLink string
	cmd        *exec.Cmd

	// done is closed by watch once cmd.Wait() returns, so killAll can wait
	// for the process to be reaped without calling cmd.Wait() a second time.
	done chan struct{}

	mu sync.Mutex
}

// Supervisor forks and watches the per-lane worker processes and drives the
// crash-recovery and clean-shutdown sequences from spec.md §4.6.
type Supervisor struct {
	cfg    *config.Resolved
	relay  *relay.Relay
	health *health.Monitor
	log    *obslog.Logger

	executable string
	renderMode watcher.RenderMode

	children []*child
	links    []scheduler.ChildLink

	// stopping is set before the supervisor deliberately terminates
	// children, so their exit is not mistaken for a crash.
	stopping atomic.Bool

	// standbyMu prevents re-entrant crash handling: spec.md §4.6 calls for
	// "acquire standby-mutex (prevents re-entrancy)" before entering
	// standby mode on SIGCHLD.
	standbyMu sync.Mutex

	crashed chan int
}

// New constructs a Supervisor. executable is the path to this same binary,
// re-exec'd for each child with WorkerModeEnv set to its lane index. hm is
// polled for stale lanes while Run is driving the scheduler.
func New(cfg *config.Resolved, rel *relay.Relay, hm *health.Monitor, executable string, renderMode watcher.RenderMode, log *obslog.Logger) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		relay:      rel,
		health:     hm,
		log:        log,
		executable: executable,
		renderMode: renderMode,
		crashed:    make(chan int, 1),
	}
}

// Spawn forks one child process per lane, in vehicle-then-pedestrian order
// per spec.md §4.6, and returns the parent-side ChildLinks the scheduler
// drives. Spawn must be called exactly once.
func (s *Supervisor) Spawn() ([]scheduler.ChildLink, error) {
	kinds := s.cfg.Cycle.ClassifyLanes()
	order := make([]int, 0, len(kinds))
	for i, k := range kinds {
		if k == phase.LaneVehicle {
			order = append(order, i)
		}
	}
	for i, k := range kinds {
		if k != phase.LaneVehicle {
			order = append(order, i)
		}
	}

	s.children = make([]*child, len(kinds))
	s.links = make([]scheduler.ChildLink, len(kinds))

	for _, i := range order {
		c, link, err := s.spawnOne(i, kinds[i])
		if err != nil {
			s.killAll()
			return nil, fmt.Errorf("supervisor: spawn lane %d: %w", i, err)
		}
		s.children[i] = c
		s.links[i] = link
		go s.watch(c)
	}

	return s.links, nil
}

func (s *Supervisor) spawnOne(index int, kind phase.LaneKind) (*child, scheduler.ChildLink, error) {
	wk := watcher.Vehicle
	if kind != phase.LaneVehicle {
		wk = watcher.Pedestrian
	}
	info := s.cfg.Config.StreamInfo[index]

	p2cR, p2cW, err := os.Pipe()
	if err != nil {
		return nil, scheduler.ChildLink{}, err
	}
	c2pR, c2pW, err := os.Pipe()
	if err != nil {
		p2cR.Close()
		p2cW.Close()
		return nil, scheduler.ChildLink{}, err
	}

	cmd := exec.Command(s.executable)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", WorkerModeEnv, index),
		fmt.Sprintf("JUNCTIONCTL_WORKER_KIND=%d", wk),
		fmt.Sprintf("JUNCTIONCTL_WORKER_RENDER=%d", s.renderMode),
		fmt.Sprintf("JUNCTIONCTL_WORKER_STREAM_URI=%s", info.StreamURI),
		fmt.Sprintf("JUNCTIONCTL_WORKER_CONFIG_PATH=%s", info.ConfigPath),
	)
	cmd.ExtraFiles = []*os.File{p2cR, c2pW}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		p2cR.Close()
		p2cW.Close()
		c2pR.Close()
		c2pW.Close()
		return nil, scheduler.ChildLink{}, err
	}

	// Parent keeps its own ends only; the child's copies (inherited via
	// ExtraFiles) must be closed here so EOF propagates correctly if the
	// child exits (spec.md §4.1's "close unused ends" step).
	p2cR.Close()
	c2pW.Close()

	spawnID := uuid.New().String()
	s.log.Infof("supervisor: spawned lane %d (spawnId=%s, pid=%d)", index, spawnID, cmd.Process.Pid)

	c := &child{index: index, spawnID: spawnID, kind: wk, renderMode: s.renderMode, streamLink: info.StreamURI, cmd: cmd, done: make(chan struct{})}
	link := scheduler.ChildLink{Index: index, ToChild: p2cW, FromChild: c2pR}
	return c, link, nil
}

// watch blocks until the child exits, then reports a crash unless the
// supervisor is already in its own shutdown sequence.
func (s *Supervisor) watch(c *child) {
	err := c.cmd.Wait()
	close(c.done)
	if s.stopping.Load() {
		return
	}
	s.log.Warnf("supervisor: lane %d (spawnId=%s) exited unexpectedly: %v", c.index, c.spawnID, err)
	select {
	case s.crashed <- c.index:
	default:
	}
}

// Run drives the scheduler until a clean shutdown signal, a child crash, or
// ctx cancellation, then performs the matching teardown sequence from
// spec.md §4.6/§9, returning once the relay has been de-energized and every
// child has been asked to exit.
func (s *Supervisor) Run(ctx context.Context, runScheduler func(context.Context) error, sigCh <-chan os.Signal) error {
	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()

	schedDone := make(chan error, 1)
	go func() { schedDone <- runScheduler(schedCtx) }()

	staleDone := make(chan struct{})
	go func() { s.watchStale(schedCtx); close(staleDone) }()
	defer func() { <-staleDone }()

	select {
	case <-ctx.Done():
		cancelSched()
		<-schedDone
		return s.shutdownClean(context.Background())

	case <-sigCh:
		s.log.Infof("supervisor: received shutdown signal")
		cancelSched()
		<-schedDone
		return s.shutdownClean(context.Background())

	case idx := <-s.crashed:
		cancelSched()
		<-schedDone
		return s.shutdownCrash(context.Background(), idx)

	case err := <-schedDone:
		// The scheduler returning on its own is not a normal exit path
		// today (it only returns via schedCtx cancellation), but every
		// process-exit path must still de-energize the relay and terminate
		// the children (spec.md §4.3).
		cancelSched()
		s.stopping.Store(true)
		s.killAll()
		if relayErr := s.relay.TurnOffAllRelay(context.Background()); relayErr != nil {
			s.log.Warnf("supervisor: turn off relay: %v", relayErr)
		}
		return err
	}
}

// watchStale polls the health monitor on staleCheckInterval and logs a
// warning for any lane that has gone quiet without its process exiting,
// until ctx is done.
func (s *Supervisor) watchStale(ctx context.Context) {
	if s.health == nil {
		return
	}
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale := s.health.StaleSince(time.Now(), staleAfter)
			if len(stale) > 0 {
				s.log.Warnf("supervisor: lanes %v have not reported in over %s", stale, staleAfter)
			}
		}
	}
}

// shutdownClean implements the SIGINT path: graceful, no standby detour.
func (s *Supervisor) shutdownClean(ctx context.Context) error {
	s.stopping.Store(true)
	s.killAll()
	return s.relay.TurnOffAllRelay(ctx)
}

// shutdownCrash implements the SIGCHLD path from spec.md §4.6: standby for
// standbyDuration, then all-off, then terminate every remaining child, then
// return (the caller exits with status 0 per spec.md §5's state table).
func (s *Supervisor) shutdownCrash(ctx context.Context, crashedIndex int) error {
	s.standbyMu.Lock()
	defer s.standbyMu.Unlock()

	s.log.Errorf("supervisor: lane %d crashed, entering standby", crashedIndex)

	standbyCtx, cancel := context.WithTimeout(ctx, s.cfg.Config.StandbyDuration()+time.Second)
	defer cancel()
	if err := s.relay.StandbyMode(standbyCtx, s.cfg.Config.StandbyDuration()); err != nil && err != context.DeadlineExceeded {
		s.log.Warnf("supervisor: standby mode: %v", err)
	}

	s.stopping.Store(true)
	s.killAll()

	return s.relay.TurnOffAllRelay(ctx)
}

// killAll sends SIGTERM to every live child and waits for the watch
// goroutine already blocked in cmd.Wait() to observe their exit, bounded by
// standbyDuration+1s per spec.md §8's testable property #7. It never calls
// cmd.Wait() itself — that goroutine is watch's, and exec.Cmd.Wait must not
// be called twice.
func (s *Supervisor) killAll() {
	var wg sync.WaitGroup
	for _, c := range s.children {
		if c == nil || c.cmd.Process == nil {
			continue
		}
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.mu.Lock()
			defer c.mu.Unlock()
			_ = c.cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-c.done:
			case <-time.After(s.cfg.Config.StandbyDuration() + time.Second):
				_ = c.cmd.Process.Kill()
				<-c.done
			}
		}()
	}
	wg.Wait()
}
