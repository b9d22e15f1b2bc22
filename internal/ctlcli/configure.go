package ctlcli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configureServerURL string
	configureToken     string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save the server URL and bearer token used by other commands",
	Run:   runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.Flags().StringVar(&configureServerURL, "server", "", "mediaorc server URL, e.g. http://localhost:8080")
	configureCmd.Flags().StringVar(&configureToken, "token", "", "bearer token, if the server requires one")
}

func runConfigure(cmd *cobra.Command, args []string) {
	path, err := SaveConfig(configureServerURL, configureToken, "")
	if err != nil {
		fmt.Printf("failed to save config: %v\n", err)
		return
	}
	fmt.Printf("configuration saved to %s\n", path)
}
