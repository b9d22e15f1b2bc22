package ctlcli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Submit or cancel a batch",
}

var (
	batchItems  string
	batchTasks  string
	batchSubmit = &cobra.Command{
		Use:   "submit",
		Short: "Submit a batch of up to 10 local audio files",
		Run:   runBatchSubmit,
	}
	batchCancel = &cobra.Command{
		Use:   "cancel <batchId>",
		Short: "Request cancellation of a running batch",
		Args:  cobra.ExactArgs(1),
		Run:   runBatchCancel,
	}
)

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchSubmit)
	batchCmd.AddCommand(batchCancel)

	batchSubmit.Flags().StringVar(&batchItems, "items", "", "comma-separated local audio file paths")
	batchSubmit.Flags().StringVar(&batchTasks, "tasks", "asr,demucs", "comma-separated tasks to run: asr, demucs")
}

func runBatchSubmit(cmd *cobra.Command, args []string) {
	if batchItems == "" {
		fmt.Println("--items is required")
		os.Exit(1)
	}
	paths := strings.Split(batchItems, ",")

	tasks := strings.Split(batchTasks, ",")
	var wantASR, wantDemucs bool
	for _, t := range tasks {
		switch strings.TrimSpace(t) {
		case "asr":
			wantASR = true
		case "demucs":
			wantDemucs = true
		}
	}

	batchID, err := SubmitBatch(paths, wantASR, wantDemucs)
	if err != nil {
		fmt.Printf("batch submit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(batchID)
}

func runBatchCancel(cmd *cobra.Command, args []string) {
	if err := CancelBatch(args[0]); err != nil {
		fmt.Printf("batch cancel failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("cancellation requested")
}
