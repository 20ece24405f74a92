package cmd

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/junctionctl/controller/internal/config"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/relay"
	"github.com/junctionctl/controller/internal/secret"
)

var (
	relayTestPhase    int
	relayTestHoldSecs int
	relayTestPassword string
)

var relayTestCmd = &cobra.Command{
	Use:   "relay-test",
	Short: "Energize one phase on the telnet relay board, hold it, then turn everything off",
	Long: `Opens a connection to the relay board named in the junction configuration,
asserts the channel bitmap for one phase, holds it for a few seconds, then
de-energizes every channel. Useful for verifying wiring without running the
full controller.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		resolved, err := config.Resolve(raw)
		if err != nil {
			return fmt.Errorf("resolve config: %w", err)
		}
		if relayTestPhase < 0 || relayTestPhase >= resolved.Cycle.NumPhases() {
			return fmt.Errorf("phase %d out of range (cycle has %d phases)", relayTestPhase, resolved.Cycle.NumPhases())
		}

		password, err := resolveRelayPassword(raw.TSecretKey, raw.RelayPassword)
		if err != nil {
			return err
		}

		rel := relay.New(raw.RelayURL, raw.RelayUsername, password, resolved.Cycle, obslog.New("relay-test"))
		defer rel.Close()

		ctx := context.Background()
		rel.SetPhaseCycle(relayTestPhase)

		fmt.Printf("energizing phase %d for %ds...\n", relayTestPhase, relayTestHoldSecs)
		if err := rel.ExecutePhase(ctx); err != nil {
			return fmt.Errorf("execute phase: %w", err)
		}

		time.Sleep(time.Duration(relayTestHoldSecs) * time.Second)

		fmt.Println("turning all channels off")
		return rel.TurnOffAllRelay(ctx)
	},
}

func init() {
	relayTestCmd.Flags().IntVar(&relayTestPhase, "phase", 0, "Phase index to energize")
	relayTestCmd.Flags().IntVar(&relayTestHoldSecs, "hold", 5, "Seconds to hold the phase energized before turning off")
	relayTestCmd.Flags().StringVar(&relayTestPassword, "password", "", "Relay login password (falls back to the keyring, then an interactive prompt)")
}

// resolveRelayPassword prefers an explicit flag, then the keyring, then an
// interactive non-echoing prompt — the same fallback chain the teacher's
// auth commands use for credentials the operator may not want to type on
// the command line.
func resolveRelayPassword(secretKey, configuredPassword string) (string, error) {
	if relayTestPassword != "" {
		return relayTestPassword, nil
	}

	keyring := secret.NewManager(secret.DefaultKeyringPath(), secretKey)
	if stored, err := keyring.Get("relayPassword"); err == nil && stored != "" {
		return stored, nil
	}

	if configuredPassword != "" {
		return configuredPassword, nil
	}

	fmt.Print("relay password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(passwordBytes), nil
}
