// Package batchengine drives a batch's items through a stage-first
// schedule: every item runs its ASR stage before any item starts its
// Demucs stage. It mirrors the core's CSV batch processor (sequential
// rows, cooperative cancellation checked between rows, one row's
// failure never aborting the rest) but restructured around a fixed
// stage order instead of one linear per-row pipeline.
package batchengine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"mediaorc/internal/adapters"
	"mediaorc/internal/asrworker"
	"mediaorc/internal/models"
	"mediaorc/internal/store"
	"mediaorc/pkg/logger"
)

type transcoder interface {
	ToWAV16kMono(ctx context.Context, srcPath, dstPath string) *models.JobError
}

type separator interface {
	Run(ctx context.Context, srcWav, workDir string, mp3Bitrate int) (*adapters.SeparateResult, *models.JobError)
}

type recognizer interface {
	Transcribe(ctx context.Context, params asrworker.TranscribeParams) (*asrworker.TranscribeResult, *models.JobError)
}

type packer interface {
	Pack(ctx context.Context, destZip string, entries []adapters.PackEntry) *models.JobError
}

// Engine runs one batch's stage-first schedule to completion.
type Engine struct {
	tmpDir           string
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
	DemucsMP3Bitrate int
	DemucsBin        string
	TTL              time.Duration
	ASRManager       *asrworker.Manager
}

func New(d Deps) *Engine {
	return &Engine{
		tmpDir:           d.TMPDir,
		demucsMP3Bitrate: d.DemucsMP3Bitrate,
		ttl:              d.TTL,
		transcoder:       adapters.NewTranscoder(),
		separator:        adapters.NewSeparator(d.DemucsBin),
		packer:           adapters.NewPacker(),
		asrMgr:           d.ASRManager,
	}
}

// Run executes b's configured stages across every item, persisting
// after each item's transition. Cancellation is checked between items,
// never mid-item: an item that has started always runs to its own
// completion or failure.
func (e *Engine) Run(ctx context.Context, b *models.Batch) error {
	now := time.Now()
	b.StartedAt = &now
	b.State = models.BatchRunning
	logger.Info("batch started", "batch_id", b.ID, "items", len(b.Items))

	if b.Options.Tasks.ASR {
		b.Phase = models.BatchPhaseASR
		_ = store.SaveBatch(e.tmpDir, b)
		if canceled := e.runStageAcrossItems(ctx, b, e.runItemASR); canceled {
			outcome := models.BatchCanceled
			if b.CountItems().Failed > 0 {
				outcome = models.BatchFailed
			}
			e.finalize(b, outcome)
			return nil
		}
	}

	if b.Options.Tasks.Demucs {
		b.Phase = models.BatchPhaseDemucs
		_ = store.SaveBatch(e.tmpDir, b)
		if canceled := e.runStageAcrossItems(ctx, b, e.runItemDemucs); canceled {
			outcome := models.BatchCanceled
			if b.CountItems().Failed > 0 {
				outcome = models.BatchFailed
			}
			e.finalize(b, outcome)
			return nil
		}
	}

	counts := b.CountItems()
	outcome := models.BatchSucceeded
	if counts.Failed > 0 {
		outcome = models.BatchFailed
	}
	e.finalize(b, outcome)
	return nil
}

// runStageAcrossItems runs stageFn over every non-terminal item in
// order, checking for cancellation (ctx, or a cancelRequested flag
// persisted by the cancel endpoint) between items. It returns true if
// cancellation was requested, whether or not items remained to visit.
func (e *Engine) runStageAcrossItems(ctx context.Context, b *models.Batch, stageFn func(ctx context.Context, b *models.Batch, it *models.BatchItem)) bool {
	for _, it := range b.Items {
		if it.IsTerminal() {
			continue
		}

		if !b.CancelRequested {
			if onDisk, err := store.LoadBatch(e.tmpDir, b.ID); err == nil && onDisk.CancelRequested {
				b.CancelRequested = true
			}
		}
		if ctx.Err() != nil || b.CancelRequested {
			e.cancelItem(it)
			_ = store.SaveBatch(e.tmpDir, b)
			continue
		}

		stageFn(ctx, b, it)
		if err := store.SaveBatch(e.tmpDir, b); err != nil {
			logger.Error("failed to persist batch after item transition", "batch_id", b.ID, "item", it.Idx, "error", err)
		}
	}

	return ctx.Err() != nil || b.CancelRequested
}

func (e *Engine) cancelItem(it *models.BatchItem) {
	if it.IsTerminal() {
		return
	}
	now := time.Now()
	it.State = models.ItemCanceled
	it.FinishedAt = &now
}

func (e *Engine) itemDir(b *models.Batch, it *models.BatchItem) string {
	return store.ItemDir(b.OutDir, it.Idx)
}

func (e *Engine) runItemASR(ctx context.Context, b *models.Batch, it *models.BatchItem) {
	it.State = models.ItemRunning
	it.Phase = models.PhaseASRConvert
	started := time.Now()
	if it.StartedAt == nil {
		it.StartedAt = &started
	}

	dir := e.itemDir(b, it)
	wavPath := filepath.Join(dir, "asr.wav")
	if jerr := e.transcoder.ToWAV16kMono(ctx, it.AudioPath, wavPath); jerr != nil {
		e.failItem(it, jerr)
		return
	}

	it.Phase = models.PhaseASR
	srtPath := filepath.Join(dir, models.FilenameFor(models.ArtifactSRT))
	result, jerr := e.asrMgr.Transcribe(ctx, asrworker.TranscribeParams{
		AudioPath:          wavPath,
		OutDir:             dir,
		MaxSingleSegmentMs: b.Options.VAD.MaxSingleSegmentMs,
		MaxEndSilenceMs:    b.Options.VAD.MaxEndSilenceMs,
	})
	if jerr != nil {
		e.failItem(it, jerr)
		return
	}
	if result.SRTPath != srtPath {
		if err := os.Rename(result.SRTPath, srtPath); err != nil {
			e.failItem(it, models.NewJobError(models.ErrInternalError, "failed to relocate transcript", err.Error()))
			return
		}
	}
	it.Artifacts[models.ArtifactSRT] = &models.Artifact{Name: models.FilenameFor(models.ArtifactSRT), Path: srtPath}

	if !b.Options.Tasks.Demucs {
		_ = os.Remove(wavPath)
		e.succeedItemIfDone(b, it)
	}
}

func (e *Engine) runItemDemucs(ctx context.Context, b *models.Batch, it *models.BatchItem) {
	it.State = models.ItemRunning
	it.Phase = models.PhaseDemucs
	started := time.Now()
	if it.StartedAt == nil {
		it.StartedAt = &started
	}

	dir := e.itemDir(b, it)
	workDir := filepath.Join(dir, "demucs-raw")
	result, jerr := e.separator.Run(ctx, it.AudioPath, workDir, e.demucsMP3Bitrate)
	if jerr != nil {
		e.failItem(it, jerr)
		return
	}

	vocalsDest := filepath.Join(dir, models.FilenameFor(models.ArtifactVocals))
	noVocalsDest := filepath.Join(dir, models.FilenameFor(models.ArtifactNoVocals))
	if err := os.Rename(result.VocalsPath, vocalsDest); err != nil {
		e.failItem(it, models.NewJobError(models.ErrInternalError, "failed to relocate vocals stem", err.Error()))
		return
	}
	if err := os.Rename(result.NoVocalsPath, noVocalsDest); err != nil {
		e.failItem(it, models.NewJobError(models.ErrInternalError, "failed to relocate no-vocals stem", err.Error()))
		return
	}
	it.Artifacts[models.ArtifactVocals] = &models.Artifact{Name: models.FilenameFor(models.ArtifactVocals), Path: vocalsDest}
	it.Artifacts[models.ArtifactNoVocals] = &models.Artifact{Name: models.FilenameFor(models.ArtifactNoVocals), Path: noVocalsDest}

	it.Phase = models.PhaseZipDemucs
	demucsZip := filepath.Join(dir, models.FilenameFor(models.ArtifactDemucsZip))
	demucsEntries := []adapters.PackEntry{
		{SourcePath: vocalsDest, ArchiveName: models.FilenameFor(models.ArtifactVocals)},
		{SourcePath: noVocalsDest, ArchiveName: models.FilenameFor(models.ArtifactNoVocals)},
	}
	if jerr := e.packer.Pack(ctx, demucsZip, demucsEntries); jerr != nil {
		e.failItem(it, jerr)
		_ = os.RemoveAll(workDir)
		return
	}
	it.Artifacts[models.ArtifactDemucsZip] = &models.Artifact{Name: models.FilenameFor(models.ArtifactDemucsZip), Path: demucsZip}

	if srtArtifact := it.Artifacts[models.ArtifactSRT]; b.Options.Tasks.ASR && srtArtifact != nil {
		it.Phase = models.PhaseZipResult
		resultZip := filepath.Join(dir, models.FilenameFor(models.ArtifactResultZip))
		resultEntries := []adapters.PackEntry{
			{SourcePath: srtArtifact.Path, ArchiveName: models.FilenameFor(models.ArtifactSRT)},
			{SourcePath: vocalsDest, ArchiveName: models.FilenameFor(models.ArtifactVocals)},
			{SourcePath: noVocalsDest, ArchiveName: models.FilenameFor(models.ArtifactNoVocals)},
		}
		if jerr := e.packer.Pack(ctx, resultZip, resultEntries); jerr != nil {
			e.failItem(it, jerr)
			_ = os.RemoveAll(workDir)
			return
		}
		it.Artifacts[models.ArtifactResultZip] = &models.Artifact{Name: models.FilenameFor(models.ArtifactResultZip), Path: resultZip}
	}

	_ = os.RemoveAll(workDir)
	e.succeedItemIfDone(b, it)
}

func (e *Engine) succeedItemIfDone(b *models.Batch, it *models.BatchItem) {
	now := time.Now()
	it.FinishedAt = &now
	it.Phase = models.PhaseDone
	it.State = models.ItemSucceeded
	if it.OwnedInput {
		_ = os.Remove(it.AudioPath)
	}
}

func (e *Engine) failItem(it *models.BatchItem, jerr *models.JobError) {
	now := time.Now()
	it.FinishedAt = &now
	it.Phase = models.PhaseError
	it.State = models.ItemFailed
	it.Error = jerr
	if it.OwnedInput {
		_ = os.Remove(it.AudioPath)
	}
	logger.Warn("batch item failed", "item", it.Idx, "error", jerr)
}

func (e *Engine) finalize(b *models.Batch, state models.BatchState) {
	now := time.Now()
	expiresAt := now.Add(e.ttl)
	b.FinishedAt = &now
	b.ExpiresAt = &expiresAt
	b.State = state
	if state == models.BatchCanceled {
		b.Phase = models.BatchPhaseDone
	} else if state == models.BatchFailed {
		b.Phase = models.BatchPhaseError
	} else {
		b.Phase = models.BatchPhaseDone
	}

	if err := store.SaveBatch(e.tmpDir, b); err != nil {
		logger.Error("failed to persist batch after finalize", "batch_id", b.ID, "error", err)
		return
	}
	logger.Info("batch finished", "batch_id", b.ID, "state", state)
}
