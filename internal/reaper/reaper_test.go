package reaper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaorc/internal/models"
	"mediaorc/internal/store"
)

func TestStartupSweepFailsInterruptedRunningJob(t *testing.T) {
	tmpDir := t.TempDir()
	j := &models.Job{ID: "job-running", State: models.JobRunning, Phase: models.PhaseASR, CreatedAt: time.Now()}
	require.NoError(t, store.SaveJob(tmpDir, j))

	r := New(tmpDir, time.Hour)
	r.StartupSweep()

	loaded, err := store.LoadJob(tmpDir, "job-running")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, loaded.State)
	require.NotNil(t, loaded.Error)
	assert.Equal(t, models.ErrInternalError, loaded.Error.Code)
}

func TestStartupSweepLeavesTerminalJobsAlone(t *testing.T) {
	tmpDir := t.TempDir()
	j := &models.Job{ID: "job-done", State: models.JobSucceeded, Phase: models.PhaseDone, CreatedAt: time.Now()}
	require.NoError(t, store.SaveJob(tmpDir, j))

	r := New(tmpDir, time.Hour)
	r.StartupSweep()

	loaded, err := store.LoadJob(tmpDir, "job-done")
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, loaded.State)
}

func TestStartupSweepFailsInterruptedBatchAndNonTerminalItems(t *testing.T) {
	tmpDir := t.TempDir()
	b := &models.Batch{
		ID:    "batch-running",
		State: models.BatchRunning,
		Items: []*models.BatchItem{
			{Idx: 0, State: models.ItemSucceeded},
			{Idx: 1, State: models.ItemRunning},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveBatch(tmpDir, b))

	r := New(tmpDir, time.Hour)
	r.StartupSweep()

	loaded, err := store.LoadBatch(tmpDir, "batch-running")
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, loaded.State)
	assert.Equal(t, models.ItemSucceeded, loaded.Items[0].State)
	assert.Equal(t, models.ItemFailed, loaded.Items[1].State)
}

func TestSweepOnceRemovesExpiredTerminalJob(t *testing.T) {
	tmpDir := t.TempDir()
	past := time.Now().Add(-time.Minute)
	j := &models.Job{ID: "job-expired", State: models.JobSucceeded, Phase: models.PhaseDone, CreatedAt: time.Now(), ExpiresAt: &past}
	require.NoError(t, store.SaveJob(tmpDir, j))

	r := New(tmpDir, time.Hour)
	r.sweepOnce()

	_, err := store.LoadJob(tmpDir, "job-expired")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepOnceKeepsUnexpiredTerminalJob(t *testing.T) {
	tmpDir := t.TempDir()
	future := time.Now().Add(time.Hour)
	j := &models.Job{ID: "job-fresh", State: models.JobSucceeded, Phase: models.PhaseDone, CreatedAt: time.Now(), ExpiresAt: &future}
	require.NoError(t, store.SaveJob(tmpDir, j))

	r := New(tmpDir, time.Hour)
	r.sweepOnce()

	_, err := store.LoadJob(tmpDir, "job-fresh")
	assert.NoError(t, err)
}

type fakeCatalog struct {
	removedJobs   []string
	removedBatches []string
}

func (f *fakeCatalog) RemoveJob(id string)   { f.removedJobs = append(f.removedJobs, id) }
func (f *fakeCatalog) RemoveBatch(id string) { f.removedBatches = append(f.removedBatches, id) }

func TestSweepOnceEvictsCatalogRowForExpiredJob(t *testing.T) {
	tmpDir := t.TempDir()
	past := time.Now().Add(-time.Minute)
	j := &models.Job{ID: "job-expired", State: models.JobSucceeded, Phase: models.PhaseDone, CreatedAt: time.Now(), ExpiresAt: &past}
	require.NoError(t, store.SaveJob(tmpDir, j))

	cat := &fakeCatalog{}
	r := New(tmpDir, time.Hour)
	r.SetCatalog(cat)
	r.sweepOnce()

	assert.Equal(t, []string{"job-expired"}, cat.removedJobs)
}

func TestSweepUnparseableRemovesOldCorruptDirOnly(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "jobs-v2")

	oldDir := filepath.Join(root, "old-corrupt")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "job.json"), []byte("{not json"), 0o644))
	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(oldDir, "job.json"), oldTime, oldTime))

	freshDir := filepath.Join(root, "fresh-corrupt")
	require.NoError(t, os.MkdirAll(freshDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(freshDir, "job.json"), []byte("{not json"), 0o644))

	r := New(tmpDir, time.Hour)
	r.sweepUnparseable(root, store.JobMetaName())

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err), "old unparseable directory should be removed")

	_, err = os.Stat(freshDir)
	assert.NoError(t, err, "fresh unparseable directory should be left alone")
}

func TestStartStopLoop(t *testing.T) {
	tmpDir := t.TempDir()
	r := New(tmpDir, time.Hour)
	r.Start()
	r.Stop()
}
