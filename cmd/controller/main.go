// Command controller is the adaptive traffic-signal controller's long-running
// process. Invoked normally it loads a junction's configuration, forks one
// worker child per lane, and drives the phase scheduler until shutdown
// (spec.md §4.4, §4.6). Invoked with JUNCTIONCTL_WORKER_LANE set in its
// environment — which the supervisor itself does when re-exec'ing
// children — it instead runs as a single lane's worker runtime (spec.md
// §4.2). cmd/junctionctl's `run` subcommand is an alternate front door onto
// the same internal/app entry points.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/junctionctl/controller/internal/app"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/supervisor"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var (
	configFile  = flag.String("config", "config.yaml", "Junction configuration file path")
	renderFlag  = flag.Bool("preview", false, "Enable debug overlay rendering in worker children")
	versionFlag = flag.Bool("version", false, "Show version information and exit")
)

func printVersionInfo() {
	fmt.Printf("junctionctl controller %s (build %s, commit %s)\n", version, buildTime, gitCommit)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func main() {
	if laneStr, ok := os.LookupEnv(supervisor.WorkerModeEnv); ok {
		if err := app.RunWorker(laneStr); err != nil {
			fmt.Fprintf(os.Stderr, "worker: %v\n", err)
			os.Exit(1)
		}
		return
	}

	flag.Parse()

	if *versionFlag {
		printVersionInfo()
		os.Exit(0)
	}

	log := obslog.New("controller")
	if err := app.RunSupervisor(*configFile, *renderFlag, log); err != nil {
		log.Errorf("controller: %v", err)
		os.Exit(1)
	}
}
