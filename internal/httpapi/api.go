// Package httpapi translates the HTTP transport surface onto the core
// job/batch lifecycle. The API type holds no transport framework
// dependency of its own — router.go is the thin gin-gonic layer that
// parses requests and calls into it — so the business logic here is
// testable without spinning up a server, following the teacher's
// handler/service split.
package httpapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mediaorc/internal/batchengine"
	"mediaorc/internal/boundary"
	"mediaorc/internal/catalog"
	"mediaorc/internal/config"
	"mediaorc/internal/enginequeue"
	"mediaorc/internal/jobengine"
	"mediaorc/internal/models"
	"mediaorc/internal/store"
	"mediaorc/pkg/logger"
)

const maxBatchItems = 10

// API is the core's request-facing surface: job/batch creation,
// status lookup, cancellation, and artifact resolution. It owns no
// state of its own beyond its collaborators — the filesystem (via
// store) remains ground truth.
type API struct {
	cfg         *config.Config
	queue       *enginequeue.Queue
	jobEngine   *jobengine.Engine
	batchEngine *batchengine.Engine
	cat         *catalog.Catalog // nil disables list/search convenience
}

func New(cfg *config.Config, queue *enginequeue.Queue, jobEngine *jobengine.Engine, batchEngine *batchengine.Engine, cat *catalog.Catalog) *API {
	return &API{cfg: cfg, queue: queue, jobEngine: jobEngine, batchEngine: batchEngine, cat: cat}
}

// InputRequest names the one input descriptor a client supplied.
type InputRequest struct {
	Upload    boundary.Upload
	AudioPath string
	AudioURL  string
}

// CreateJobRequest is the core-facing shape of a job creation call,
// already decoded from whatever the transport layer received.
type CreateJobRequest struct {
	Type  string
	Input InputRequest
	VAD   models.VADParams
}

// CreateJobResult is what a creation call hands back for the 202 response.
type CreateJobResult struct {
	JobID     string
	StatusURL string
}

func validateVAD(v models.VADParams) *models.JobError {
	if v.MaxSingleSegmentMs != nil && *v.MaxSingleSegmentMs <= 0 {
		return models.NewJobError(models.ErrBadRequest, "vadMaxSingleSegmentMs must be a positive integer", "")
	}
	if v.MaxEndSilenceMs != nil && *v.MaxEndSilenceMs <= 0 {
		return models.NewJobError(models.ErrBadRequest, "vadMaxEndSilenceMs must be a positive integer", "")
	}
	return nil
}

// CreateJob materializes req's input, persists the initial job record,
// and hands the job to the serial engine queue in the background —
// the call returns as soon as the record exists, matching the 202
// Accepted contract; the job itself runs asynchronously.
func (a *API) CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResult, *models.JobError) {
	jobType, ok := models.NormalizeJobType(req.Type)
	if !ok {
		return nil, models.NewJobError(models.ErrBadRequest, fmt.Sprintf("unknown job type %q", req.Type), "")
	}
	if jerr := validateVAD(req.VAD); jerr != nil {
		return nil, jerr
	}

	id := uuid.New().String()
	dir := store.JobDir(a.cfg.TMPDir, id)
	destPath := filepath.Join(dir, "input")

	result, jerr := boundary.Materialize(ctx, boundary.Request{
		Upload:    req.Input.Upload,
		AudioPath: req.Input.AudioPath,
		AudioURL:  req.Input.AudioURL,
	}, destPath, a.cfg.MaxDownloadBytes)
	if jerr != nil {
		return nil, jerr
	}

	return a.finishJobCreation(id, dir, jobType, result, req.VAD)
}

// IngestFromPath is the watched-folder auto-ingest entry point: it
// moves an already-on-disk file (srcPath) into a freshly allocated
// job directory with the same ownedInput=true semantics as an HTTP
// multipart upload, then submits an asr-demucs job.
func (a *API) IngestFromPath(srcPath string) (*CreateJobResult, *models.JobError) {
	id := uuid.New().String()
	dir := store.JobDir(a.cfg.TMPDir, id)
	destPath := filepath.Join(dir, "input")

	result, jerr := boundary.MoveLocalFile(srcPath, destPath)
	if jerr != nil {
		return nil, jerr
	}

	return a.finishJobCreation(id, dir, models.JobTypeASRDemucs, result, models.VADParams{})
}

// IngestFromPathForWatcher adapts IngestFromPath to the plain
// (string, error) shape watchfolder.Submitter expects, keeping that
// package free of a dependency on httpapi's request/result types.
func (a *API) IngestFromPathForWatcher(srcPath string) (string, error) {
	result, jerr := a.IngestFromPath(srcPath)
	if jerr != nil {
		return "", jerr
	}
	return result.JobID, nil
}

func (a *API) finishJobCreation(id, dir string, jobType models.JobType, result boundary.Result, vad models.VADParams) (*CreateJobResult, *models.JobError) {
	job := &models.Job{
		ID:                   id,
		Type:                 jobType,
		State:                models.JobQueued,
		Phase:                models.PhaseQueued,
		CreatedAt:            time.Now(),
		OutDir:               dir,
		Source:               result.Source,
		AudioPath:            result.AudioPath,
		CleanupAudioOnFinish: result.OwnedInput,
		VAD:                  vad,
		Artifacts:            map[models.ArtifactKey]*models.Artifact{},
	}

	if err := store.SaveJob(a.cfg.TMPDir, job); err != nil {
		boundary.RemoveOwned(result.AudioPath, result.OwnedInput)
		return nil, models.NewJobError(models.ErrInternalError, "failed to persist job record", err.Error())
	}
	if a.cat != nil {
		a.cat.UpsertJob(job)
	}

	a.dispatchJob(job)

	return &CreateJobResult{JobID: id, StatusURL: fmt.Sprintf("/v2/jobs/%s", id)}, nil
}

// dispatchJob submits job to the serial queue from a background
// goroutine so CreateJob's caller never blocks on engine work.
func (a *API) dispatchJob(job *models.Job) {
	go func() {
		if err := a.queue.Submit(func(ctx context.Context) error {
			return a.jobEngine.Run(ctx, job)
		}); err != nil {
			logger.Error("job submission failed", "job_id", job.ID, "error", err)
			return
		}
		if a.cat != nil {
			a.cat.UpsertJob(job)
		}
	}()
}

// GetJob loads the authoritative, reconciled job record. queue stats
// are attached by the caller (router.go), not here, since Stats() is a
// queue-wide snapshot rather than a per-job fact.
func (a *API) GetJob(id string) (*models.Job, *models.JobError) {
	j, err := store.LoadJob(a.cfg.TMPDir, id)
	if err != nil {
		return nil, models.NewJobError(models.ErrNotFound, "job not found", "")
	}
	return j, nil
}

// QueueStats exposes the serial queue's current occupancy for status responses.
func (a *API) QueueStats() enginequeue.Stats {
	return a.queue.Stats()
}

// JobArtifactPath resolves a ready artifact's on-disk path, or
// not_found per spec if it is absent or not yet ready.
func (a *API) JobArtifactPath(id string, key models.ArtifactKey) (string, *models.JobError) {
	j, jerr := a.GetJob(id)
	if jerr != nil {
		return "", jerr
	}
	art, ok := j.Artifacts[key]
	if !ok || !art.Ready {
		return "", models.NewJobError(models.ErrNotFound, "Artifact not found (or not ready yet)", "")
	}
	return art.Path, nil
}

// CreateBatchItemRequest is one item's input descriptor within a batch
// creation request.
type CreateBatchItemRequest struct {
	Input InputRequest
}

// CreateBatchRequest is the core-facing shape of a batch creation call.
type CreateBatchRequest struct {
	Tasks models.BatchTasks
	VAD   models.VADParams
	Items []CreateBatchItemRequest
}

// CreateBatchResult mirrors CreateJobResult for the batch creation response.
type CreateBatchResult struct {
	BatchID   string
	StatusURL string
}

// CreateBatch validates item count and VAD params, materializes every
// item's input under the batch directory, persists the initial
// record, and dispatches the batch to the serial queue.
func (a *API) CreateBatch(ctx context.Context, req CreateBatchRequest) (*CreateBatchResult, *models.JobError) {
	if len(req.Items) < 1 || len(req.Items) > maxBatchItems {
		return nil, models.NewJobError(models.ErrBadRequest, "items.length must be between 1 and 10", "")
	}
	if !req.Tasks.ASR && !req.Tasks.Demucs {
		return nil, models.NewJobError(models.ErrBadRequest, "at least one of tasks.asr or tasks.demucs must be set", "")
	}
	if jerr := validateVAD(req.VAD); jerr != nil {
		return nil, jerr
	}

	id := uuid.New().String()
	dir := store.BatchDir(a.cfg.TMPDir, id)

	items := make([]*models.BatchItem, len(req.Items))
	var materialized []boundary.Result
	for idx, itemReq := range req.Items {
		itemDir := store.ItemDir(dir, idx)
		destPath := filepath.Join(itemDir, "input")
		result, jerr := boundary.Materialize(ctx, boundary.Request{
			Upload:    itemReq.Input.Upload,
			AudioPath: itemReq.Input.AudioPath,
			AudioURL:  itemReq.Input.AudioURL,
		}, destPath, a.cfg.MaxDownloadBytes)
		if jerr != nil {
			for _, m := range materialized {
				boundary.RemoveOwned(m.AudioPath, m.OwnedInput)
			}
			_ = os.RemoveAll(dir)
			return nil, jerr
		}
		materialized = append(materialized, result)

		items[idx] = &models.BatchItem{
			Idx:        idx,
			Source:     result.Source,
			AudioPath:  result.AudioPath,
			OwnedInput: result.OwnedInput,
			State:      models.ItemQueued,
			Phase:      models.PhaseQueued,
			Artifacts:  map[models.ArtifactKey]*models.Artifact{},
		}
	}

	batch := &models.Batch{
		ID:        id,
		State:     models.BatchQueued,
		Phase:     models.BatchPhaseValidate,
		Options:   models.BatchOptions{Policy: "stage-first", Tasks: req.Tasks, VAD: req.VAD},
		Items:     items,
		CreatedAt: time.Now(),
		OutDir:    dir,
	}

	if err := store.SaveBatch(a.cfg.TMPDir, batch); err != nil {
		for _, m := range materialized {
			boundary.RemoveOwned(m.AudioPath, m.OwnedInput)
		}
		return nil, models.NewJobError(models.ErrInternalError, "failed to persist batch record", err.Error())
	}
	if a.cat != nil {
		a.cat.UpsertBatch(batch)
	}

	a.dispatchBatch(batch)

	return &CreateBatchResult{BatchID: id, StatusURL: fmt.Sprintf("/v2/batches/%s", id)}, nil
}

func (a *API) dispatchBatch(batch *models.Batch) {
	go func() {
		if err := a.queue.Submit(func(ctx context.Context) error {
			return a.batchEngine.Run(ctx, batch)
		}); err != nil {
			logger.Error("batch submission failed", "batch_id", batch.ID, "error", err)
			return
		}
		if a.cat != nil {
			a.cat.UpsertBatch(batch)
		}
	}()
}

// GetBatch loads the authoritative, reconciled batch record.
func (a *API) GetBatch(id string) (*models.Batch, *models.JobError) {
	b, err := store.LoadBatch(a.cfg.TMPDir, id)
	if err != nil {
		return nil, models.NewJobError(models.ErrNotFound, "batch not found", "")
	}
	return b, nil
}

// CancelBatch sets cancelRequested on a non-terminal batch; a terminal
// batch is a no-op that simply returns its current state, per spec.
func (a *API) CancelBatch(id string) (*models.Batch, *models.JobError) {
	b, jerr := a.GetBatch(id)
	if jerr != nil {
		return nil, jerr
	}
	if b.IsTerminal() {
		return b, nil
	}
	b.CancelRequested = true
	if err := store.SaveBatch(a.cfg.TMPDir, b); err != nil {
		return nil, models.NewJobError(models.ErrInternalError, "failed to persist cancel request", err.Error())
	}
	return b, nil
}

// BatchItemArtifactPath resolves a ready item artifact's on-disk path.
func (a *API) BatchItemArtifactPath(id string, idx int, key models.ArtifactKey) (string, *models.JobError) {
	b, jerr := a.GetBatch(id)
	if jerr != nil {
		return "", jerr
	}
	if idx < 0 || idx >= len(b.Items) {
		return "", models.NewJobError(models.ErrNotFound, "Artifact not found (or not ready yet)", "")
	}
	art, ok := b.Items[idx].Artifacts[key]
	if !ok || !art.Ready {
		return "", models.NewJobError(models.ErrNotFound, "Artifact not found (or not ready yet)", "")
	}
	return art.Path, nil
}

// ListJobs and ListBatches proxy to the optional catalog cache; when no
// catalog is configured, listing is simply unavailable (nil, nil) and
// the transport layer should respond accordingly rather than fall back
// to an authoritative-but-slow filesystem walk mid-request.
func (a *API) ListJobs(ctx context.Context, p catalog.ListParams) ([]catalog.JobSummary, int64, bool) {
	if a.cat == nil {
		return nil, 0, false
	}
	jobs, total, err := a.cat.ListJobs(ctx, p)
	if err != nil {
		logger.Error("catalog list jobs failed", "error", err)
		return nil, 0, false
	}
	return jobs, total, true
}

func (a *API) ListBatches(ctx context.Context, p catalog.ListParams) ([]catalog.BatchSummary, int64, bool) {
	if a.cat == nil {
		return nil, 0, false
	}
	batches, total, err := a.cat.ListBatches(ctx, p)
	if err != nil {
		logger.Error("catalog list batches failed", "error", err)
		return nil, 0, false
	}
	return batches, total, true
}
