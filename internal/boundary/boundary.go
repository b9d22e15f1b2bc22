// Package boundary converts the three (and, via the watch folder, four)
// ways a client can hand the core an audio input into a single stable
// absolute path the engines can read, tagging whether the core owns
// the file's lifetime. It is the one place upload spooling, remote
// download, and local-path referencing are decided — job creation,
// batch item creation, and the watched-folder ingester all go through
// it so the ownedInput semantics never drift between entry points.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"mediaorc/internal/models"
	"mediaorc/pkg/downloader"
)

// ErrNoInput is returned when a request names none of upload/audioPath/audioUrl.
var ErrNoInput = errors.New("no input descriptor supplied")

// Upload is the subset of a spooled multipart file the glue needs.
// *multipart.FileHeader does not satisfy it directly (Filename is a
// field, not a method); FromFileHeader wraps one.
type Upload interface {
	Open() (multipart.File, error)
	Filename() string
}

// fileHeaderUpload adapts *multipart.FileHeader to Upload.
type fileHeaderUpload struct{ h *multipart.FileHeader }

func (u fileHeaderUpload) Open() (multipart.File, error) { return u.h.Open() }
func (u fileHeaderUpload) Filename() string              { return u.h.Filename }

// FromFileHeader wraps a gin/multipart file header for MaterializeUpload.
func FromFileHeader(h *multipart.FileHeader) Upload { return fileHeaderUpload{h: h} }

// Request names exactly one of the three client-facing input descriptors.
type Request struct {
	Upload    Upload
	AudioPath string
	AudioURL  string
}

// Result is what the glue hands back to the job/batch creator.
type Result struct {
	Source     models.InputSource
	AudioPath  string
	OwnedInput bool
}

// Materialize resolves req into a stable path under destPath (the
// full target file path, e.g. "<jobDir>/input" or
// "<batchDir>/item-000/input"; the source's extension is appended when
// destPath has none), returning bad_request on a malformed or
// oversized request and internal_error on unexpected I/O failure.
func Materialize(ctx context.Context, req Request, destPath string, maxDownloadBytes int64) (Result, *models.JobError) {
	switch {
	case req.Upload != nil:
		return materializeUpload(req.Upload, destPath)
	case req.AudioURL != "":
		return materializeURL(ctx, req.AudioURL, destPath, maxDownloadBytes)
	case req.AudioPath != "":
		return materializeLocalPath(req.AudioPath)
	default:
		return Result{}, models.NewJobError(models.ErrBadRequest, ErrNoInput.Error(), "")
	}
}

func destWithExt(destPath, originalName string) string {
	ext := filepath.Ext(originalName)
	if ext == "" {
		return destPath
	}
	if filepath.Ext(destPath) != "" {
		return destPath
	}
	return destPath + ext
}

// materializeUpload spools a multipart file straight to destPath (the
// transport layer has already written it to a temp spool file in the
// common case; here we copy from the opened multipart.File since gin
// may back it with an in-memory buffer for small uploads).
func materializeUpload(u Upload, destPath string) (Result, *models.JobError) {
	dest := destWithExt(destPath, u.Filename())
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, models.NewJobError(models.ErrInternalError, "failed to create job directory", err.Error())
	}

	src, err := u.Open()
	if err != nil {
		return Result{}, models.NewJobError(models.ErrBadRequest, "failed to open uploaded file", err.Error())
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return Result{}, models.NewJobError(models.ErrInternalError, "failed to create destination file", err.Error())
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dest)
		return Result{}, models.NewJobError(models.ErrInternalError, "failed to spool uploaded file", err.Error())
	}

	return Result{Source: models.SourceUpload, AudioPath: dest, OwnedInput: true}, nil
}

// MoveLocalFile relocates an already-on-disk file (the watch folder's
// drop, or a transport layer that spooled the upload to a temp path of
// its own) into destPath: rename, falling back to copy+delete across
// a filesystem boundary, per the upload path's move semantics.
func MoveLocalFile(srcPath, destPath string) (Result, *models.JobError) {
	dest := destWithExt(destPath, srcPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, models.NewJobError(models.ErrInternalError, "failed to create job directory", err.Error())
	}

	if err := os.Rename(srcPath, dest); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			if copyErr := copyThenDelete(srcPath, dest); copyErr != nil {
				return Result{}, models.NewJobError(models.ErrInternalError, "failed to move input file", copyErr.Error())
			}
		} else {
			return Result{}, models.NewJobError(models.ErrInternalError, "failed to move input file", err.Error())
		}
	}

	return Result{Source: models.SourceUpload, AudioPath: dest, OwnedInput: true}, nil
}

func copyThenDelete(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("copy contents: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	src.Close()

	if err := os.Remove(srcPath); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

func materializeURL(ctx context.Context, url, destPath string, maxBytes int64) (Result, *models.JobError) {
	dest := destWithExt(destPath, url)
	if err := downloader.DownloadFile(ctx, url, dest, maxBytes); err != nil {
		if errors.Is(err, downloader.ErrTooLarge) {
			return Result{}, models.NewJobError(models.ErrBadRequest, "downloaded file exceeds the configured size limit", "")
		}
		return Result{}, models.NewJobError(models.ErrBadRequest, "failed to download audio from url", err.Error())
	}
	return Result{Source: models.SourceAudioURL, AudioPath: dest, OwnedInput: true}, nil
}

func materializeLocalPath(path string) (Result, *models.JobError) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, models.NewJobError(models.ErrBadRequest, "audio path does not exist or is not readable", err.Error())
	}
	if info.IsDir() {
		return Result{}, models.NewJobError(models.ErrBadRequest, "audio path is a directory", "")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, models.NewJobError(models.ErrBadRequest, "failed to resolve audio path", err.Error())
	}
	return Result{Source: models.SourceAudioPath, AudioPath: abs, OwnedInput: false}, nil
}

// RemoveOwned deletes path only if it is owned by the core; an unowned
// (audioPath) input is never touched, per spec invariant.
func RemoveOwned(path string, owned bool) {
	if !owned || path == "" {
		return
	}
	_ = os.Remove(path)
}
