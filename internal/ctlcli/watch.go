package ctlcli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true,
	".ogg": true, ".aac": true, ".wma": true,
}

func isAudioFile(ext string) bool {
	return audioExtensions[strings.ToLower(ext)]
}

// watchFolder watches path for new/written audio files and submits
// each as a job once its writes have settled for two seconds, mirroring
// teacher's debounce-by-filename-timer approach.
func watchFolder(path, jobType string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatal(err)
	}
	defer watcher.Close()

	timers := make(map[string]*time.Timer)
	var mu sync.Mutex
	done := make(chan bool)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
					continue
				}
				if !isAudioFile(filepath.Ext(event.Name)) {
					continue
				}

				mu.Lock()
				if t, exists := timers[event.Name]; exists {
					t.Stop()
				}
				timers[event.Name] = time.AfterFunc(2*time.Second, func() {
					mu.Lock()
					delete(timers, event.Name)
					mu.Unlock()

					log.Printf("submitting %s...", event.Name)
					jobID, err := SubmitJobByPath(jobType, event.Name)
					if err != nil {
						log.Printf("failed to submit %s: %v", event.Name, err)
					} else {
						log.Printf("submitted %s as job %s", event.Name, jobID)
					}
				})
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Println("watcher error:", err)
			}
		}
	}()

	if err := watcher.Add(path); err != nil {
		log.Fatal(err)
	}
	log.Printf("watching %s for new audio files...", path)
	<-done
}

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "Watch a folder and submit new audio files in the foreground",
	Args:  cobra.ExactArgs(1),
	Run:   runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		log.Fatalf("failed to resolve folder: %v", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		log.Fatalf("folder does not exist: %s", absPath)
	}

	if _, err := SaveConfig("", "", absPath); err != nil {
		fmt.Printf("warning: failed to save watch folder to config: %v\n", err)
	}

	watchFolder(absPath, "asr-demucs")
}
