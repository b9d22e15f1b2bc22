// Package watchfolder auto-ingests audio files dropped into a watched
// directory, wrapping github.com/fsnotify/fsnotify the way the teacher's
// dropzone service does: recursive watch, an audio-extension allowlist, a
// settle delay before touching a newly created file, then hand-off into
// the job pipeline and delete-with-retry of the original.
package watchfolder

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"mediaorc/pkg/logger"
)

// Submitter is the narrow slice of httpapi.API the watcher needs. The
// server satisfies it with a small adapter around
// (*httpapi.API).IngestFromPathForWatcher; defining it here keeps this
// package from importing httpapi's transport concerns.
type Submitter interface {
	IngestFromPath(srcPath string) (jobID string, err error)
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true, ".aac": true,
	".ogg": true, ".wma": true, ".mp4": true, ".avi": true, ".mov": true,
	".mkv": true, ".webm": true,
}

func isAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// Service watches Dir for newly created audio files and submits each as
// an asr-demucs job via Submitter.
type Service struct {
	dir       string
	submitter Submitter
	settle    time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New constructs a watch-folder service over dir. It does not start
// watching until Start is called.
func New(dir string, submitter Submitter) *Service {
	return &Service{
		dir:       dir,
		submitter: submitter,
		settle:    500 * time.Millisecond,
		done:      make(chan struct{}),
	}
}

// Start creates dir if needed, adds it (and all subdirectories) to an
// fsnotify watch, processes any files already sitting in dir, and begins
// watching in the background. Start is a no-op if dir is empty — the
// watcher is disabled unless a watch directory is configured.
func (s *Service) Start() error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := s.addRecursively(s.dir); err != nil {
		s.watcher.Close()
		return err
	}

	s.processExisting()
	go s.loop()

	logger.Info("watch folder started", "dir", s.dir)
	return nil
}

// Stop closes the underlying watcher. Safe to call even if the watcher
// was never started (disabled configuration).
func (s *Service) Stop() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

func (s *Service) addRecursively(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logger.Warn("watch folder walk error", "path", path, "error", err)
			return nil
		}
		if info.IsDir() {
			if err := s.watcher.Add(path); err != nil {
				logger.Warn("watch folder failed to watch directory", "dir", path, "error", err)
			}
		}
		return nil
	})
}

func (s *Service) processExisting() {
	_ = filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if isAudioFile(path) {
			s.processFile(path)
		}
		return nil
	})
}

func (s *Service) loop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if err := s.addRecursively(event.Name); err != nil {
					logger.Warn("watch folder failed to watch new directory", "dir", event.Name, "error", err)
				}
				continue
			}
			go s.processFile(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch folder error", "error", err)
		}
	}
}

// processFile waits out the settle delay, filters non-audio files,
// submits the job, then removes the dropped file with a few retries —
// the file may still be briefly held by the program that wrote it.
func (s *Service) processFile(path string) {
	time.Sleep(s.settle)

	if !isAudioFile(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	jobID, err := s.submitter.IngestFromPath(path)
	if err != nil {
		logger.Warn("watch folder ingest failed", "path", path, "error", err)
		return
	}
	logger.Info("watch folder ingested file", "path", path, "job_id", jobID)

	var removeErr error
	for i := 0; i < 5; i++ {
		removeErr = os.Remove(path)
		if removeErr == nil {
			break
		}
		time.Sleep(s.settle)
	}
	if removeErr != nil {
		logger.Warn("watch folder failed to remove source after ingest", "path", path, "error", removeErr)
	}
}
