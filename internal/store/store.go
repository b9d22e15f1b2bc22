// Package store persists job and batch metadata to the filesystem next
// to the artifacts they describe, and is the sole source of truth for
// job/batch state across restarts. Every write is atomic (temp file +
// rename) so a crash mid-write never leaves a half-written record for
// loadJob/loadBatch to trip over.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mediaorc/internal/models"
)

const (
	jobMetaName   = "job.json"
	batchMetaName = "batch.json"
)

// JobDir returns the canonical on-disk directory for a job.
func JobDir(tmpDir, jobID string) string {
	return filepath.Join(tmpDir, "jobs-v2", jobID)
}

// BatchDir returns the canonical on-disk directory for a batch.
func BatchDir(tmpDir, batchID string) string {
	return filepath.Join(tmpDir, "batches-v2", batchID)
}

// writeMetaAtomic serializes obj to dir/name via a temp file plus
// rename, so readers never observe a partially written file. The temp
// name includes a random suffix so concurrent writers (there should
// never be more than one per record, but reaper sweeps run
// concurrently with engine transitions) don't collide.
func writeMetaAtomic(dir, name string, obj interface{}) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%s", name, uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}

	dest := filepath.Join(dir, name)
	if err := os.Rename(tmp, dest); err != nil {
		// Best-effort retry once after clearing a stale destination;
		// os.Rename already overwrites on POSIX, this mainly guards
		// platforms where it doesn't.
		_ = os.Remove(dest)
		if err2 := os.Rename(tmp, dest); err2 != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s -> %s: %w", tmp, dest, err2)
		}
	}
	return nil
}

// SaveJob persists a job's metadata atomically.
func SaveJob(tmpDir string, j *models.Job) error {
	dir := JobDir(tmpDir, j.ID)
	j.OutDir = dir
	return writeMetaAtomic(dir, jobMetaName, j)
}

// SaveBatch persists a batch's metadata atomically.
func SaveBatch(tmpDir string, b *models.Batch) error {
	dir := BatchDir(tmpDir, b.ID)
	b.OutDir = dir
	return writeMetaAtomic(dir, batchMetaName, b)
}

// ErrNotFound indicates the requested record has no metadata on disk,
// either because it never existed or was already reaped.
var ErrNotFound = fmt.Errorf("record not found")

// LoadJob reads a job's metadata and reconciles its artifacts against
// the filesystem. A missing or malformed file reports ErrNotFound
// rather than failing loudly, since the reaper treats absence and
// corruption the same way: the record is gone.
func LoadJob(tmpDir, jobID string) (*models.Job, error) {
	dir := JobDir(tmpDir, jobID)
	data, err := os.ReadFile(filepath.Join(dir, jobMetaName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read job meta: %w", err)
	}

	var j models.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, ErrNotFound
	}

	j.OutDir = dir
	reconcileArtifacts(dir, j.Artifacts)
	return &j, nil
}

// LoadBatch reads a batch's metadata and reconciles every item's
// artifacts against the filesystem.
func LoadBatch(tmpDir, batchID string) (*models.Batch, error) {
	dir := BatchDir(tmpDir, batchID)
	data, err := os.ReadFile(filepath.Join(dir, batchMetaName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read batch meta: %w", err)
	}

	var b models.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, ErrNotFound
	}

	b.OutDir = dir
	for _, it := range b.Items {
		itemDir := ItemDir(dir, it.Idx)
		reconcileArtifacts(itemDir, it.Artifacts)
	}
	return &b, nil
}

// ItemDir returns the canonical on-disk directory for one batch item.
func ItemDir(batchDir string, idx int) string {
	return filepath.Join(batchDir, fmt.Sprintf("item-%03d", idx))
}

// reconcileArtifacts re-derives Ready/Bytes for each artifact from the
// actual file on disk. Persisted metadata only records intent; the
// filesystem is the one source of truth for whether a file is really
// there and how big it is.
func reconcileArtifacts(dir string, artifacts map[models.ArtifactKey]*models.Artifact) {
	for key, a := range artifacts {
		if a == nil {
			continue
		}
		if a.Path == "" {
			a.Path = filepath.Join(dir, models.FilenameFor(key))
		}
		info, err := os.Stat(a.Path)
		if err != nil || info.IsDir() {
			a.Ready = false
			a.Bytes = nil
			continue
		}
		size := info.Size()
		a.Ready = true
		a.Bytes = &size
	}
}

// ListJobDirs returns every job ID with a metadata file under tmpDir,
// used by the reaper's startup sweep.
func ListJobDirs(tmpDir string) []string {
	return listRecordDirs(filepath.Join(tmpDir, "jobs-v2"), jobMetaName)
}

// ListBatchDirs returns every batch ID with a metadata file under tmpDir.
func ListBatchDirs(tmpDir string) []string {
	return listRecordDirs(filepath.Join(tmpDir, "batches-v2"), batchMetaName)
}

func listRecordDirs(root, metaName string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), metaName)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids
}

// DirModTime reports the modification time of a record's metadata
// file, used by the reaper to age out unparseable directories.
func DirModTime(dir, metaName string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(dir, metaName))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// RemoveRecord deletes a record's entire directory tree.
func RemoveRecord(dir string) error {
	return os.RemoveAll(dir)
}

// JobMetaName and BatchMetaName expose the fixed metadata filenames
// for callers (the reaper) that need to stat them directly.
func JobMetaName() string   { return jobMetaName }
func BatchMetaName() string { return batchMetaName }
