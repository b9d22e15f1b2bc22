// Package ctlcli implements the mediaorcctl operator command tree:
// submit/status/batch/watch, following the shape of teacher's
// internal/cli command tree almost exactly, generalized from a single
// upload-and-transcribe action to the orchestrator's job/batch API.
package ctlcli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mediaorcctl",
	Short: "mediaorc operator CLI",
	Long:  `Submits jobs/batches to a mediaorc server and manages the watched-folder uploader service.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.mediaorcctl.yaml)")
}
