package httpapi

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaorc/internal/batchengine"
	"mediaorc/internal/config"
	"mediaorc/internal/enginequeue"
	"mediaorc/internal/jobengine"
	"mediaorc/internal/models"
	"mediaorc/internal/store"
)

func newTestAPI(t *testing.T) (*API, string) {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := &config.Config{TMPDir: tmpDir, DemucsMP3Bitrate: 256}
	queue := enginequeue.New(8) // never Start()ed: dispatched tasks simply never run in these tests
	jobEng := jobengine.New(jobengine.Deps{TMPDir: tmpDir, DemucsMP3Bitrate: 256})
	batchEng := batchengine.New(batchengine.Deps{TMPDir: tmpDir, DemucsMP3Bitrate: 256})
	return New(cfg, queue, jobEng, batchEng, nil), tmpDir
}

func TestCreateJobWithLocalPathPersistsQueuedRecord(t *testing.T) {
	api, tmpDir := newTestAPI(t)
	src := filepath.Join(tmpDir, "sample.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	result, jerr := api.CreateJob(context.Background(), CreateJobRequest{Type: "asr", Input: InputRequest{AudioPath: src}})
	require.Nil(t, jerr)
	require.NotEmpty(t, result.JobID)

	job, jerr := api.GetJob(result.JobID)
	require.Nil(t, jerr)
	assert.Equal(t, models.JobTypeASR, job.Type)
	assert.Equal(t, models.JobQueued, job.State)
	assert.False(t, job.CleanupAudioOnFinish, "local path input is not owned")
	assert.Equal(t, src, job.AudioPath)
}

func TestCreateJobUnknownTypeIsBadRequest(t *testing.T) {
	api, tmpDir := newTestAPI(t)
	src := filepath.Join(tmpDir, "sample.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	_, jerr := api.CreateJob(context.Background(), CreateJobRequest{Type: "bogus", Input: InputRequest{AudioPath: src}})
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)
}

func TestCreateJobAliasNormalizesToASRDemucs(t *testing.T) {
	api, tmpDir := newTestAPI(t)
	src := filepath.Join(tmpDir, "sample.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	result, jerr := api.CreateJob(context.Background(), CreateJobRequest{Type: "", Input: InputRequest{AudioPath: src}})
	require.Nil(t, jerr)

	job, jerr := api.GetJob(result.JobID)
	require.Nil(t, jerr)
	assert.Equal(t, models.JobTypeASRDemucs, job.Type)
}

func TestCreateJobNonPositiveVADIsBadRequest(t *testing.T) {
	api, tmpDir := newTestAPI(t)
	src := filepath.Join(tmpDir, "sample.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	zero := 0
	_, jerr := api.CreateJob(context.Background(), CreateJobRequest{
		Type:  "asr",
		Input: InputRequest{AudioPath: src},
		VAD:   models.VADParams{MaxSingleSegmentMs: &zero},
	})
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)
}

func TestCreateJobMissingInputIsBadRequest(t *testing.T) {
	api, _ := newTestAPI(t)
	_, jerr := api.CreateJob(context.Background(), CreateJobRequest{Type: "asr"})
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)
}

func TestGetJobNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	_, jerr := api.GetJob("does-not-exist")
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrNotFound, jerr.Code)
}

func TestJobArtifactPathNotReadyIsNotFound(t *testing.T) {
	api, tmpDir := newTestAPI(t)
	src := filepath.Join(tmpDir, "sample.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	result, jerr := api.CreateJob(context.Background(), CreateJobRequest{Type: "asr", Input: InputRequest{AudioPath: src}})
	require.Nil(t, jerr)

	_, jerr = api.JobArtifactPath(result.JobID, models.ArtifactSRT)
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrNotFound, jerr.Code)
}

func TestCreateBatchValidatesItemCount(t *testing.T) {
	api, _ := newTestAPI(t)
	_, jerr := api.CreateBatch(context.Background(), CreateBatchRequest{Tasks: models.BatchTasks{ASR: true}, Items: nil})
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)
}

func TestCreateBatchPersistsQueuedRecordWithItems(t *testing.T) {
	api, tmpDir := newTestAPI(t)
	src1 := filepath.Join(tmpDir, "a.wav")
	src2 := filepath.Join(tmpDir, "b.wav")
	require.NoError(t, os.WriteFile(src1, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(src2, []byte("b"), 0o644))

	result, jerr := api.CreateBatch(context.Background(), CreateBatchRequest{
		Tasks: models.BatchTasks{ASR: true, Demucs: true},
		Items: []CreateBatchItemRequest{
			{Input: InputRequest{AudioPath: src1}},
			{Input: InputRequest{AudioPath: src2}},
		},
	})
	require.Nil(t, jerr)

	batch, jerr := api.GetBatch(result.BatchID)
	require.Nil(t, jerr)
	assert.Len(t, batch.Items, 2)
	assert.Equal(t, models.BatchQueued, batch.State)
}

func TestCancelBatchOnTerminalBatchIsNoOp(t *testing.T) {
	api, tmpDir := newTestAPI(t)
	src := filepath.Join(tmpDir, "a.wav")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))

	result, jerr := api.CreateBatch(context.Background(), CreateBatchRequest{
		Tasks: models.BatchTasks{ASR: true},
		Items: []CreateBatchItemRequest{{Input: InputRequest{AudioPath: src}}},
	})
	require.Nil(t, jerr)

	batch, jerr := api.GetBatch(result.BatchID)
	require.Nil(t, jerr)
	batch.State = models.BatchSucceeded
	require.NoError(t, store.SaveBatch(tmpDir, batch))

	canceled, jerr := api.CancelBatch(result.BatchID)
	require.Nil(t, jerr)
	assert.Equal(t, models.BatchSucceeded, canceled.State)
	assert.False(t, canceled.CancelRequested)
}

func TestCancelUnknownBatchIsNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	_, jerr := api.CancelBatch("does-not-exist")
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrNotFound, jerr.Code)
}
