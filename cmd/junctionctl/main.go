// Command junctionctl is the operator-facing CLI for the adaptive
// traffic-signal controller: `run` launches the supervisor, `validate-config`
// checks a configuration file without starting anything, and `relay-test`
// exercises the telnet relay board directly. Adapted from the teacher's
// cmd/cli, which wires its subcommands onto a spf13/cobra root command the
// same way.
package main

import (
	"fmt"
	"os"

	"github.com/junctionctl/controller/cmd/junctionctl/cmd"
	"github.com/junctionctl/controller/internal/app"
	"github.com/junctionctl/controller/internal/supervisor"
)

func main() {
	// A supervisor re-execs this same binary with WorkerModeEnv set when the
	// operator launched the junction via `junctionctl run` rather than the
	// controller binary directly, so this dispatch must mirror
	// cmd/controller's.
	if laneStr, ok := os.LookupEnv(supervisor.WorkerModeEnv); ok {
		if err := app.RunWorker(laneStr); err != nil {
			fmt.Fprintf(os.Stderr, "worker: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
