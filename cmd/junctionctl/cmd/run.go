package cmd

import (
	"github.com/spf13/cobra"

	"github.com/junctionctl/controller/internal/app"
	"github.com/junctionctl/controller/internal/obslog"
)

var previewFlag bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the junction controller",
	Long:  `Load the junction configuration, fork one worker process per lane, and drive the phase scheduler until shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := obslog.New("controller")
		return app.RunSupervisor(configFile, previewFlag, log)
	},
}

func init() {
	runCmd.Flags().BoolVar(&previewFlag, "preview", false, "Enable debug overlay rendering in worker children")
}
