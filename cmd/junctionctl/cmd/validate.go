package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/junctionctl/controller/internal/config"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate a junction configuration file without starting the controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := config.Load(configFile)
		if err != nil {
			return err
		}
		resolved, err := config.Resolve(raw)
		if err != nil {
			return err
		}

		fmt.Printf("%s: valid (%d phases, %d vehicle lanes, %d pedestrian lanes, full cycle %dms)\n",
			configFile, resolved.Cycle.NumPhases(), resolved.NumVehicle, resolved.NumPedestrian, resolved.FullCycleMs)
		return nil
	},
}
