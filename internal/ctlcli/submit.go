package ctlcli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	submitType      string
	submitAudioPath string
	submitAudioURL  string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single asr/demucs/asr-demucs job",
	Run:   runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitType, "type", "asr-demucs", "job type: asr, demucs, or asr-demucs")
	submitCmd.Flags().StringVar(&submitAudioPath, "audio-path", "", "path to a local audio file")
	submitCmd.Flags().StringVar(&submitAudioURL, "audio-url", "", "URL of a remote audio file")
}

func runSubmit(cmd *cobra.Command, args []string) {
	if submitAudioPath == "" && submitAudioURL == "" {
		fmt.Println("one of --audio-path or --audio-url is required")
		os.Exit(1)
	}

	var jobID string
	var err error
	if submitAudioPath != "" {
		jobID, err = SubmitJobByPath(submitType, submitAudioPath)
	} else {
		jobID, err = SubmitJobByURL(submitType, submitAudioURL)
	}
	if err != nil {
		fmt.Printf("submit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(jobID)
}
