// Package config loads orchestrator configuration from the environment,
// following the same env-var-with-default pattern the rest of this
// codebase's teacher uses for its own settings.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultJobTTLSeconds    = 21600
	defaultDemucsMP3Bitrate = 256
	defaultDemucsJobs       = 2
)

// Config holds the environment-sourced settings loaded at startup.
// The ffmpeg and zip executables are resolved separately by
// pkg/binaries and the ASR worker command by asrworker's own loader;
// TranscodeBin, PackBin, ASRWorkerCmd and DemucsJobs are loaded here
// but not read by the engines.
type Config struct {
	Host string
	Port string

	TMPDir string

	JobTTL time.Duration

	DemucsMP3Bitrate int
	DemucsJobs       int

	TranscodeBin string
	SeparateBin  string
	PackBin      string
	ASRWorkerCmd string

	MaxDownloadBytes int64

	WatchDir string

	RequireBearer bool
}

// Load reads configuration from the environment and an optional .env
// file, mirroring the teacher's Load(): try .env, fall back silently to
// whatever is already in the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	tmpDir := getEnv("TMP_DIR", filepath.Join(os.TempDir(), "mediaorc"))

	return &Config{
		Host:             getEnv("HOST", "0.0.0.0"),
		Port:             getEnv("PORT", "8080"),
		TMPDir:           tmpDir,
		JobTTL:           time.Duration(getEnvAsInt("JOB_TTL_SECONDS", defaultJobTTLSeconds)) * time.Second,
		DemucsMP3Bitrate: getEnvAsInt("DEMUCS_MP3_BITRATE", defaultDemucsMP3Bitrate),
		DemucsJobs:       getEnvAsInt("DEMUCS_JOBS", defaultDemucsJobs),
		TranscodeBin:     getEnv("TRANSCODE_BIN", "mediaorc-transcode"),
		SeparateBin:      getEnv("SEPARATE_BIN", "mediaorc-separate"),
		PackBin:          getEnv("PACK_BIN", "mediaorc-pack"),
		ASRWorkerCmd:     getEnv("ASR_WORKER_CMD", "mediaorc-asr-worker"),
		MaxDownloadBytes: int64(getEnvAsInt("MAX_DOWNLOAD_BYTES", 0)),
		WatchDir:         getEnv("WATCH_DIR", ""),
		RequireBearer:    getEnvAsBool("REQUIRE_BEARER", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}
