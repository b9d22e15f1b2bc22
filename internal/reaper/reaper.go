// Package reaper periodically sweeps terminal-and-expired jobs/batches
// off disk, and on startup reconciles whatever the filesystem says
// survived a server restart: records left running are presumed
// interrupted, and unparseable directories older than the grace period
// are discarded as unrecoverable.
package reaper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"mediaorc/internal/models"
	"mediaorc/internal/store"
	"mediaorc/pkg/logger"
)

const (
	sweepInterval    = 60 * time.Second
	unparseableGrace = 24 * time.Hour
)

// catalogRemover is the narrow slice of *catalog.Catalog the reaper
// needs, kept as a local interface so this package doesn't import
// internal/catalog just to evict two summary rows.
type catalogRemover interface {
	RemoveJob(id string)
	RemoveBatch(id string)
}

// Reaper owns the periodic sweep goroutine.
type Reaper struct {
	tmpDir string
	ttl    time.Duration
	stop   chan struct{}
	done   chan struct{}

	cat catalogRemover // nil if no catalog is in use
}

func New(tmpDir string, ttl time.Duration) *Reaper {
	return &Reaper{
		tmpDir: tmpDir,
		ttl:    ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetCatalog wires a summary catalog to keep in sync with every
// filesystem record the reaper removes. Optional: a nil catalog (the
// default) just skips the eviction.
func (r *Reaper) SetCatalog(cat catalogRemover) {
	r.cat = cat
}

// StartupSweep reconciles persisted state against the fact that the
// process just (re)started: any job/batch still marked queued/running
// was interrupted, since nothing resumes mid-pipeline across a
// restart by design.
func (r *Reaper) StartupSweep() {
	for _, id := range store.ListJobDirs(r.tmpDir) {
		r.reconcileJobOnStartup(id)
	}
	for _, id := range store.ListBatchDirs(r.tmpDir) {
		r.reconcileBatchOnStartup(id)
	}
	r.sweepUnparseable(filepath.Join(r.tmpDir, "jobs-v2"), store.JobMetaName())
	r.sweepUnparseable(filepath.Join(r.tmpDir, "batches-v2"), store.BatchMetaName())
}

func (r *Reaper) reconcileJobOnStartup(id string) {
	j, err := store.LoadJob(r.tmpDir, id)
	if err != nil {
		return
	}
	if j.State == models.JobQueued || j.State == models.JobRunning {
		now := time.Now()
		expiresAt := now.Add(r.ttl)
		j.State = models.JobFailed
		j.Phase = models.PhaseError
		j.FinishedAt = &now
		j.ExpiresAt = &expiresAt
		j.Error = models.NewJobError(models.ErrInternalError, "interrupted by server restart", "")
		if err := store.SaveJob(r.tmpDir, j); err != nil {
			logger.Error("failed to persist interrupted job", "job_id", id, "error", err)
		}
		logger.Warn("marked interrupted job as failed on startup", "job_id", id)
	}
}

func (r *Reaper) reconcileBatchOnStartup(id string) {
	b, err := store.LoadBatch(r.tmpDir, id)
	if err != nil {
		return
	}
	if b.State != models.BatchQueued && b.State != models.BatchRunning {
		return
	}

	now := time.Now()
	expiresAt := now.Add(r.ttl)
	b.State = models.BatchFailed
	b.Phase = models.BatchPhaseError
	b.FinishedAt = &now
	b.ExpiresAt = &expiresAt
	for _, it := range b.Items {
		if !it.IsTerminal() {
			it.State = models.ItemFailed
			it.Phase = models.PhaseError
			it.FinishedAt = &now
			it.Error = models.NewJobError(models.ErrInternalError, "interrupted by server restart", "")
		}
	}
	if err := store.SaveBatch(r.tmpDir, b); err != nil {
		logger.Error("failed to persist interrupted batch", "batch_id", id, "error", err)
	}
	logger.Warn("marked interrupted batch as failed on startup", "batch_id", id)
}

// sweepUnparseable removes record directories whose metadata file is
// missing, unreadable or not valid JSON, once they're old enough that
// they're clearly not a record mid-write. Age is the metadata file's
// mtime, or the directory's when there is no metadata file.
func (r *Reaper) sweepUnparseable(root, metaName string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if data, err := os.ReadFile(filepath.Join(dir, metaName)); err == nil && json.Valid(data) {
			continue // parseable metadata, nothing to do here
		}
		modTime, err := store.DirModTime(dir, metaName)
		if err != nil {
			info, statErr := os.Stat(dir)
			if statErr != nil {
				continue
			}
			modTime = info.ModTime()
		}
		if time.Since(modTime) < unparseableGrace {
			continue
		}
		logger.Warn("removing unparseable record directory", "dir", dir)
		_ = store.RemoveRecord(dir)
	}
}

// Start launches the periodic sweep loop.
func (r *Reaper) Start() {
	go r.loop()
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reaper) loop() {
	defer close(r.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stop:
			return
		}
	}
}

// sweepOnce removes every terminal job/batch whose ExpiresAt has passed.
func (r *Reaper) sweepOnce() {
	now := time.Now()

	for _, id := range store.ListJobDirs(r.tmpDir) {
		j, err := store.LoadJob(r.tmpDir, id)
		if err != nil {
			continue
		}
		if j.IsTerminal() && j.ExpiresAt != nil && now.After(*j.ExpiresAt) {
			logger.Info("reaping expired job", "job_id", id)
			_ = store.RemoveRecord(store.JobDir(r.tmpDir, id))
			if r.cat != nil {
				r.cat.RemoveJob(id)
			}
		}
	}

	for _, id := range store.ListBatchDirs(r.tmpDir) {
		b, err := store.LoadBatch(r.tmpDir, id)
		if err != nil {
			continue
		}
		if b.IsTerminal() && b.ExpiresAt != nil && now.After(*b.ExpiresAt) {
			logger.Info("reaping expired batch", "batch_id", id)
			_ = store.RemoveRecord(store.BatchDir(r.tmpDir, id))
			if r.cat != nil {
				r.cat.RemoveBatch(id)
			}
		}
	}
}
