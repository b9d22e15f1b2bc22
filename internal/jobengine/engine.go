// Package jobengine drives a single job through its stage sequence,
// persisting the record after every transition so a crash mid-pipeline
// always leaves a consistent, reloadable job.json behind. It follows
// the core's staged-processor shape (parse -> transform -> persist,
// one updateStatus call per step) generalized to the asr/demucs/
// asr-demucs stage sequences.
package jobengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mediaorc/internal/adapters"
	"mediaorc/internal/asrworker"
	"mediaorc/internal/models"
	"mediaorc/internal/store"
	"mediaorc/pkg/logger"
)

// Engine runs one job's pipeline to completion, isolated from any
// other job: every error it encounters is recorded on that job alone.
type Engine struct {
	tmpDir           string
	demucsBin        string
	demucsMP3Bitrate int
	ttl              time.Duration

	transcoder transcoder
	separator  separator
	packer     packer
	asrMgr     recognizer
}

// Deps bundles an Engine's external collaborators.
type Deps struct {
	TMPDir           string
	DemucsBin        string
	DemucsMP3Bitrate int
	TTL              time.Duration
	ASRManager       *asrworker.Manager
}

func New(d Deps) *Engine {
	return &Engine{
		tmpDir:           d.TMPDir,
		demucsBin:        d.DemucsBin,
		demucsMP3Bitrate: d.DemucsMP3Bitrate,
		ttl:              d.TTL,
		transcoder:       adapters.NewTranscoder(),
		separator:        adapters.NewSeparator(d.DemucsBin),
		packer:           adapters.NewPacker(),
		asrMgr:           d.ASRManager,
	}
}

// Run executes every stage of j.Type in order, persisting after each
// transition. It never returns an error: all failure is recorded on
// the job itself via finalizeFailure, matching the engine queue's
// Task signature where the queue only cares whether the slot is free
// again, not why a given job failed.
func (e *Engine) Run(ctx context.Context, j *models.Job) error {
	now := time.Now()
	j.StartedAt = &now
	j.State = models.JobRunning
	logger.JobStarted(j.ID, string(j.Type), string(j.Phase))

	stages := models.StagesFor(j.Type)
	for _, stage := range stages {
		if ctx.Err() != nil {
			e.finalizeFailure(j, models.NewJobError(models.ErrInternalError, "job canceled by server shutdown", ""))
			return nil
		}

		logger.JobPhaseChanged(j.ID, string(j.Phase), string(stage))
		j.Phase = stage
		if err := store.SaveJob(e.tmpDir, j); err != nil {
			e.finalizeFailure(j, models.NewJobError(models.ErrInternalError, "failed to persist job state", err.Error()))
			return nil
		}

		if jerr := e.runStage(ctx, j, stage); jerr != nil {
			e.finalizeFailure(j, jerr)
			return nil
		}
	}

	e.finalizeSuccess(j)
	return nil
}

func (e *Engine) runStage(ctx context.Context, j *models.Job, stage models.JobPhase) *models.JobError {
	switch stage {
	case models.PhaseASRConvert:
		return e.stageASRConvert(ctx, j)
	case models.PhaseASR:
		return e.stageASR(ctx, j)
	case models.PhaseDemucs:
		return e.stageDemucs(ctx, j)
	case models.PhaseZipDemucs:
		return e.stageZipDemucs(ctx, j)
	case models.PhaseZipResult:
		return e.stageZipResult(ctx, j)
	default:
		return models.NewJobError(models.ErrInternalError, fmt.Sprintf("unknown stage %s", stage), "")
	}
}

func (e *Engine) asrWavPath(j *models.Job) string {
	return filepath.Join(j.OutDir, "asr.wav")
}

func (e *Engine) demucsWorkDir(j *models.Job) string {
	return filepath.Join(j.OutDir, "demucs-raw")
}

func (e *Engine) stageASRConvert(ctx context.Context, j *models.Job) *models.JobError {
	return e.transcoder.ToWAV16kMono(ctx, j.AudioPath, e.asrWavPath(j))
}

func (e *Engine) stageASR(ctx context.Context, j *models.Job) *models.JobError {
	srtPath := filepath.Join(j.OutDir, models.FilenameFor(models.ArtifactSRT))
	result, jerr := e.asrMgr.Transcribe(ctx, asrworker.TranscribeParams{
		AudioPath:          e.asrWavPath(j),
		OutDir:             j.OutDir,
		MaxSingleSegmentMs: j.VAD.MaxSingleSegmentMs,
		MaxEndSilenceMs:    j.VAD.MaxEndSilenceMs,
	})
	if jerr != nil {
		return jerr
	}

	if result.SRTPath != srtPath {
		if err := os.Rename(result.SRTPath, srtPath); err != nil {
			return models.NewJobError(models.ErrInternalError, "failed to relocate transcript", err.Error())
		}
	}

	j.Artifacts[models.ArtifactSRT] = &models.Artifact{Name: models.FilenameFor(models.ArtifactSRT), Path: srtPath}

	// asr.wav only exists to feed the recognizer; asr-only jobs don't
	// need it kept around, and asr-demucs jobs still have the original
	// upload/reference to separate from.
	_ = os.Remove(e.asrWavPath(j))
	return nil
}

func (e *Engine) stageDemucs(ctx context.Context, j *models.Job) *models.JobError {
	// Separate from the original input, not the downsampled asr.wav:
	// the separator wants the best quality source it can get.
	workDir := e.demucsWorkDir(j)
	result, jerr := e.separator.Run(ctx, j.AudioPath, workDir, e.demucsMP3Bitrate)
	if jerr != nil {
		return jerr
	}

	vocalsDest := filepath.Join(j.OutDir, models.FilenameFor(models.ArtifactVocals))
	noVocalsDest := filepath.Join(j.OutDir, models.FilenameFor(models.ArtifactNoVocals))
	if err := os.Rename(result.VocalsPath, vocalsDest); err != nil {
		return models.NewJobError(models.ErrInternalError, "failed to relocate vocals stem", err.Error())
	}
	if err := os.Rename(result.NoVocalsPath, noVocalsDest); err != nil {
		return models.NewJobError(models.ErrInternalError, "failed to relocate no-vocals stem", err.Error())
	}

	j.Artifacts[models.ArtifactVocals] = &models.Artifact{Name: models.FilenameFor(models.ArtifactVocals), Path: vocalsDest}
	j.Artifacts[models.ArtifactNoVocals] = &models.Artifact{Name: models.FilenameFor(models.ArtifactNoVocals), Path: noVocalsDest}
	return nil
}

func (e *Engine) stageZipDemucs(ctx context.Context, j *models.Job) *models.JobError {
	destZip := filepath.Join(j.OutDir, models.FilenameFor(models.ArtifactDemucsZip))
	entries := []adapters.PackEntry{
		{SourcePath: j.Artifacts[models.ArtifactVocals].Path, ArchiveName: models.FilenameFor(models.ArtifactVocals)},
		{SourcePath: j.Artifacts[models.ArtifactNoVocals].Path, ArchiveName: models.FilenameFor(models.ArtifactNoVocals)},
	}
	if jerr := e.packer.Pack(ctx, destZip, entries); jerr != nil {
		return jerr
	}
	j.Artifacts[models.ArtifactDemucsZip] = &models.Artifact{Name: models.FilenameFor(models.ArtifactDemucsZip), Path: destZip}

	// Demucs's own raw output tree has served its purpose once the
	// stems are relocated and zipped.
	_ = os.RemoveAll(e.demucsWorkDir(j))
	return nil
}

func (e *Engine) stageZipResult(ctx context.Context, j *models.Job) *models.JobError {
	destZip := filepath.Join(j.OutDir, models.FilenameFor(models.ArtifactResultZip))
	entries := []adapters.PackEntry{
		{SourcePath: j.Artifacts[models.ArtifactSRT].Path, ArchiveName: models.FilenameFor(models.ArtifactSRT)},
		{SourcePath: j.Artifacts[models.ArtifactVocals].Path, ArchiveName: models.FilenameFor(models.ArtifactVocals)},
		{SourcePath: j.Artifacts[models.ArtifactNoVocals].Path, ArchiveName: models.FilenameFor(models.ArtifactNoVocals)},
	}
	if jerr := e.packer.Pack(ctx, destZip, entries); jerr != nil {
		return jerr
	}
	j.Artifacts[models.ArtifactResultZip] = &models.Artifact{Name: models.FilenameFor(models.ArtifactResultZip), Path: destZip}
	return nil
}

func (e *Engine) finalizeSuccess(j *models.Job) {
	now := time.Now()
	expiresAt := now.Add(e.ttl)
	j.FinishedAt = &now
	j.ExpiresAt = &expiresAt
	j.Phase = models.PhaseDone
	j.State = models.JobSucceeded
	j.Error = nil

	if j.CleanupAudioOnFinish {
		_ = os.Remove(j.AudioPath)
	}

	if err := store.SaveJob(e.tmpDir, j); err != nil {
		logger.Error("failed to persist job after success", "job_id", j.ID, "error", err)
		return
	}
	logger.JobCompleted(j.ID, time.Since(*j.StartedAt))
}

func (e *Engine) finalizeFailure(j *models.Job, jerr *models.JobError) {
	now := time.Now()
	expiresAt := now.Add(e.ttl)
	j.FinishedAt = &now
	j.ExpiresAt = &expiresAt
	j.Phase = models.PhaseError
	j.State = models.JobFailed
	j.Error = jerr

	if j.CleanupAudioOnFinish {
		_ = os.Remove(j.AudioPath)
	}

	if err := store.SaveJob(e.tmpDir, j); err != nil {
		logger.Error("failed to persist job after failure", "job_id", j.ID, "error", err)
	}
	started := j.StartedAt
	if started == nil {
		started = &now
	}
	logger.JobFailed(j.ID, time.Since(*started), jerr)
}
