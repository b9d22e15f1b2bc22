// Package catalog maintains a disposable SQLite index of job/batch
// summaries for fast listing and filtering by the HTTP layer. It is
// never consulted for a correctness-critical decision — artifact
// readiness and terminal state always reread the filesystem record via
// internal/store. Losing catalog.db loses only list-query convenience;
// Rebuild regenerates it from a directory walk.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mediaorc/internal/models"
	"mediaorc/internal/store"
	"mediaorc/pkg/logger"
)

// JobSummary mirrors the list-relevant fields of a Job record.
type JobSummary struct {
	ID         string `gorm:"primaryKey"`
	Type       string `gorm:"index"`
	State      string `gorm:"index"`
	Phase      string
	CreatedAt  time.Time `gorm:"index"`
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// BatchSummary mirrors the list-relevant fields of a Batch record.
type BatchSummary struct {
	ID         string `gorm:"primaryKey"`
	State      string `gorm:"index"`
	Phase      string
	ItemCount  int
	CreatedAt  time.Time `gorm:"index"`
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Catalog owns the SQLite-backed summary index.
type Catalog struct {
	db     *gorm.DB
	tmpDir string
}

// Open connects to (creating if absent) <tmpDir>/catalog.db and
// ensures its schema. A failure to open is non-fatal to the caller's
// startup — the catalog is a cache, so callers may choose to run
// without one (the HTTP list endpoints then return empty results).
func Open(tmpDir string) (*Catalog, error) {
	dsn := fmt.Sprintf("%s/catalog.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", tmpDir)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if err := db.AutoMigrate(&JobSummary{}, &BatchSummary{}); err != nil {
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}
	return &Catalog{db: db, tmpDir: tmpDir}, nil
}

// Close releases the underlying sqlite connection.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertJob writes a job's current summary, best-effort. Errors are
// logged, never propagated — a catalog write failure must never fail
// the job/batch transition that triggered it.
func (c *Catalog) UpsertJob(j *models.Job) {
	s := JobSummary{
		ID:         j.ID,
		Type:       string(j.Type),
		State:      string(j.State),
		Phase:      string(j.Phase),
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	if err := c.db.Save(&s).Error; err != nil {
		logger.Warn("catalog upsert failed", "job_id", j.ID, "error", err)
	}
}

// UpsertBatch writes a batch's current summary, best-effort.
func (c *Catalog) UpsertBatch(b *models.Batch) {
	s := BatchSummary{
		ID:         b.ID,
		State:      string(b.State),
		Phase:      string(b.Phase),
		ItemCount:  len(b.Items),
		CreatedAt:  b.CreatedAt,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
	}
	if err := c.db.Save(&s).Error; err != nil {
		logger.Warn("catalog upsert failed", "batch_id", b.ID, "error", err)
	}
}

// RemoveJob deletes a job's summary row, best-effort (called alongside
// store.RemoveRecord when the reaper evicts an expired job).
func (c *Catalog) RemoveJob(id string) {
	if err := c.db.Delete(&JobSummary{}, "id = ?", id).Error; err != nil {
		logger.Warn("catalog delete failed", "job_id", id, "error", err)
	}
}

// RemoveBatch deletes a batch's summary row, best-effort.
func (c *Catalog) RemoveBatch(id string) {
	if err := c.db.Delete(&BatchSummary{}, "id = ?", id).Error; err != nil {
		logger.Warn("catalog delete failed", "batch_id", id, "error", err)
	}
}

// ListParams filters and paginates a list query.
type ListParams struct {
	State  string
	Offset int
	Limit  int
}

// ListJobs returns job summaries ordered newest first, optionally
// filtered by state. These are list-view conveniences only; callers
// needing an authoritative record must still call store.LoadJob.
func (c *Catalog) ListJobs(ctx context.Context, p ListParams) ([]JobSummary, int64, error) {
	q := c.db.WithContext(ctx).Model(&JobSummary{})
	if p.State != "" {
		q = q.Where("state = ?", p.State)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []JobSummary
	if err := q.Order("created_at desc").Offset(p.Offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return out, total, nil
}

// ListBatches returns batch summaries ordered newest first, optionally
// filtered by state.
func (c *Catalog) ListBatches(ctx context.Context, p ListParams) ([]BatchSummary, int64, error) {
	q := c.db.WithContext(ctx).Model(&BatchSummary{})
	if p.State != "" {
		q = q.Where("state = ?", p.State)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []BatchSummary
	if err := q.Order("created_at desc").Offset(p.Offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	return out, total, nil
}

// Rebuild truncates the summary tables and repopulates them from the
// filesystem records via store.LoadJob/LoadBatch reconciliation. The
// server calls it on every startup, before the reaper's startup sweep —
// the filesystem, not the catalog, is ground truth.
func (c *Catalog) Rebuild() error {
	if err := c.db.Exec("DELETE FROM job_summaries").Error; err != nil {
		return fmt.Errorf("truncate job summaries: %w", err)
	}
	if err := c.db.Exec("DELETE FROM batch_summaries").Error; err != nil {
		return fmt.Errorf("truncate batch summaries: %w", err)
	}

	for _, id := range store.ListJobDirs(c.tmpDir) {
		j, err := store.LoadJob(c.tmpDir, id)
		if err != nil {
			continue
		}
		c.UpsertJob(j)
	}
	for _, id := range store.ListBatchDirs(c.tmpDir) {
		b, err := store.LoadBatch(c.tmpDir, id)
		if err != nil {
			continue
		}
		c.UpsertBatch(b)
	}
	logger.Info("catalog rebuilt from filesystem records")
	return nil
}
