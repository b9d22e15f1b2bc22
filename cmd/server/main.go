package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediaorc/internal/asrworker"
	"mediaorc/internal/batchengine"
	"mediaorc/internal/catalog"
	"mediaorc/internal/config"
	"mediaorc/internal/enginequeue"
	"mediaorc/internal/httpapi"
	"mediaorc/internal/jobengine"
	"mediaorc/internal/reaper"
	"mediaorc/internal/watchfolder"
	"mediaorc/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediaorc %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	log.Println("mediaorc starting up...")

	cfg := config.Load()

	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Info("starting mediaorc", "version", version, "commit", commit)

	logger.Startup("catalog", "opening job/batch catalog")
	cat, err := catalog.Open(cfg.TMPDir)
	if err != nil {
		logger.Warn("catalog unavailable, list endpoints will report empty results", "error", err)
		cat = nil
	} else {
		defer cat.Close()
		if err := cat.Rebuild(); err != nil {
			logger.Warn("catalog rebuild failed", "error", err)
		}
	}

	logger.Startup("reaper", "reconciling persisted jobs/batches after restart")
	r := reaper.New(cfg.TMPDir, cfg.JobTTL)
	if cat != nil {
		r.SetCatalog(cat)
	}
	r.StartupSweep()
	r.Start()
	defer r.Stop()

	logger.Startup("asr-worker", "preparing ASR recognizer supervisor")
	asrCfg := asrworker.LoadConfigFromEnv()
	asrMgr := asrworker.NewManager(asrCfg)
	defer asrMgr.Shutdown()

	logger.Startup("queue", "starting serial engine queue")
	queue := enginequeue.New(64)
	queue.Start()
	defer queue.Stop()

	jobEng := jobengine.New(jobengine.Deps{
		TMPDir:           cfg.TMPDir,
		DemucsBin:        cfg.SeparateBin,
		DemucsMP3Bitrate: cfg.DemucsMP3Bitrate,
		TTL:              cfg.JobTTL,
		ASRManager:       asrMgr,
	})
	batchEng := batchengine.New(batchengine.Deps{
		TMPDir:           cfg.TMPDir,
		DemucsBin:        cfg.SeparateBin,
		DemucsMP3Bitrate: cfg.DemucsMP3Bitrate,
		TTL:              cfg.JobTTL,
		ASRManager:       asrMgr,
	})

	api := httpapi.New(cfg, queue, jobEng, batchEng, cat)

	if cfg.WatchDir != "" {
		logger.Startup("watch-folder", "starting auto-ingest watcher", "dir", cfg.WatchDir)
		watcher := watchfolder.New(cfg.WatchDir, watchfolderSubmitter{api})
		if err := watcher.Start(); err != nil {
			logger.Error("failed to start watch folder", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	logger.Startup("router", "configuring HTTP routes")
	router := httpapi.NewRouter(api, cfg)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting HTTP server", "host", cfg.Host, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server:", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	log.Printf("mediaorc is now running on http://%s:%s", cfg.Host, cfg.Port)
	log.Println("press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown:", err)
	}

	log.Println("server exited")
}

// watchfolderSubmitter adapts *httpapi.API to watchfolder.Submitter.
type watchfolderSubmitter struct {
	api *httpapi.API
}

func (w watchfolderSubmitter) IngestFromPath(srcPath string) (string, error) {
	return w.api.IngestFromPathForWatcher(srcPath)
}
