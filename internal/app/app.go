// Package app holds the two process entry points — the worker-child runtime
// dispatch and the parent supervisor startup sequence — shared by
// cmd/controller (the long-running process operators/process managers
// invoke directly) and cmd/junctionctl's `run` subcommand, so neither
// binary duplicates the wiring.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/junctionctl/controller/internal/config"
	"github.com/junctionctl/controller/internal/health"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/relay"
	"github.com/junctionctl/controller/internal/report"
	"github.com/junctionctl/controller/internal/scheduler"
	"github.com/junctionctl/controller/internal/secret"
	"github.com/junctionctl/controller/internal/supervisor"
	"github.com/junctionctl/controller/internal/watcher"
	"github.com/junctionctl/controller/internal/worker"
)

// RunWorker is the child-process entry point (spec.md §4.2). It reconstructs
// its pipe pair from the well-known file descriptors the supervisor's
// ExtraFiles wiring places them at, and its watcher configuration from the
// environment variables the supervisor set before exec.
func RunWorker(laneStr string) error {
	index, err := strconv.Atoi(laneStr)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", supervisor.WorkerModeEnv, laneStr, err)
	}

	kindInt, _ := strconv.Atoi(os.Getenv("JUNCTIONCTL_WORKER_KIND"))
	renderInt, _ := strconv.Atoi(os.Getenv("JUNCTIONCTL_WORKER_RENDER"))
	streamURI := os.Getenv("JUNCTIONCTL_WORKER_STREAM_URI")

	pipes := worker.Pipes{
		ParentToChild: os.NewFile(uintptr(supervisor.ChildReadFD), "p2c"),
		ChildToParent: os.NewFile(uintptr(supervisor.ChildWriteFD), "c2p"),
	}

	cfg := worker.Config{
		Index:        index,
		Kind:         watcher.Kind(kindInt),
		RenderMode:   watcher.RenderMode(renderInt),
		StreamLink:   streamURI,
		StreamConfig: watcher.StreamConfig{},
		Pipes:        pipes,
		Log:          obslog.New(fmt.Sprintf("worker[%d]", index)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	return worker.Run(ctx, cfg)
}

// RunSupervisor is the parent-process entry point (spec.md §4.4, §4.6):
// load config, connect the relay, bring up the reporter/secret/health
// helpers, fork children, and run the scheduler until a shutdown signal or
// child crash.
func RunSupervisor(configFile string, preview bool, log *obslog.Logger) error {
	raw, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	resolved, err := config.Resolve(raw)
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}

	keyring := secret.NewManager(secret.DefaultKeyringPath(), raw.TSecretKey)
	relayPassword := raw.RelayPassword
	if stored, err := keyring.Get("relayPassword"); err == nil && stored != "" {
		relayPassword = stored
	} else if raw.RelayPassword != "" {
		if err := keyring.Set("relayPassword", raw.RelayPassword); err != nil {
			log.Warnf("controller: could not persist relay password to keyring: %v", err)
		}
	}

	rel := relay.New(raw.RelayURL, raw.RelayUsername, relayPassword, resolved.Cycle, obslog.New("relay"))
	defer rel.Close()

	reporter := report.New(raw.HTTPURL, obslog.New("report"))
	defer reporter.Stop()

	hm := health.New(resolved.Cycle.NumLanes(), obslog.New("health"))

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	renderMode := watcher.RenderNone
	if preview {
		renderMode = watcher.RenderPreview
	}

	sup := supervisor.New(resolved, rel, hm, executable, renderMode, obslog.New("supervisor"))
	links, err := sup.Spawn()
	if err != nil {
		return fmt.Errorf("spawn workers: %w", err)
	}

	sched := scheduler.New(resolved, rel, links, reporter, hm, obslog.New("scheduler"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Infof("controller: junction %q started with %d lanes", resolved.Config.JunctionName, resolved.Cycle.NumLanes())

	return sup.Run(ctx, sched.Run, sigCh)
}
