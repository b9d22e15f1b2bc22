package ctlcli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <jobId>",
	Short: "Print a job's current state and phase",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	job, err := GetJobStatus(args[0])
	if err != nil {
		fmt.Printf("status failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("id:    %s\n", job.ID)
	fmt.Printf("type:  %s\n", job.Type)
	fmt.Printf("state: %s\n", job.State)
	fmt.Printf("phase: %s\n", job.Phase)
	if job.Error != nil {
		fmt.Printf("error: [%s] %s\n", job.Error.Code, job.Error.Message)
	}
}
