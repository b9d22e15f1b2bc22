package boundary

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaorc/internal/models"
)

// multipartUpload builds a real *multipart.FileHeader the way gin would
// hand one to a handler, by round-tripping a request through the
// standard library's own multipart reader.
func multipartUpload(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))

	header := req.MultipartForm.File["audio"][0]
	return header
}

func TestMaterializeNoInputIsBadRequest(t *testing.T) {
	_, jerr := Materialize(context.Background(), Request{}, filepath.Join(t.TempDir(), "input"), 0)
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)
}

func TestMaterializeUploadSpoolsIntoJobDir(t *testing.T) {
	header := multipartUpload(t, "clip.mp3", []byte("upload-bytes"))
	dest := filepath.Join(t.TempDir(), "job-1", "input")

	res, jerr := Materialize(context.Background(), Request{Upload: FromFileHeader(header)}, dest, 0)
	require.Nil(t, jerr)
	assert.Equal(t, models.SourceUpload, res.Source)
	assert.True(t, res.OwnedInput)
	assert.Equal(t, ".mp3", filepath.Ext(res.AudioPath))

	content, err := os.ReadFile(res.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, "upload-bytes", string(content))
}

func TestMaterializeLocalPathReferencesInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sample.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	res, jerr := Materialize(context.Background(), Request{AudioPath: src}, filepath.Join(dir, "unused", "input"), 0)
	require.Nil(t, jerr)
	assert.Equal(t, models.SourceAudioPath, res.Source)
	assert.False(t, res.OwnedInput)
	assert.Equal(t, src, res.AudioPath)

	_, err := os.Stat(src)
	assert.NoError(t, err, "local path input must still exist; it was only referenced")
}

func TestMaterializeLocalPathMissingIsBadRequest(t *testing.T) {
	_, jerr := Materialize(context.Background(), Request{AudioPath: "/nonexistent/does-not-exist.wav"}, filepath.Join(t.TempDir(), "input"), 0)
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)
}

func TestMaterializeLocalPathRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, jerr := Materialize(context.Background(), Request{AudioPath: dir}, filepath.Join(dir, "input"), 0)
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)
}

func TestMaterializeURLDownloadsAndOwnsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote-audio-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "input")
	res, jerr := Materialize(context.Background(), Request{AudioURL: srv.URL}, dest, 0)
	require.Nil(t, jerr)
	assert.Equal(t, models.SourceAudioURL, res.Source)
	assert.True(t, res.OwnedInput)

	content, err := os.ReadFile(res.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, "remote-audio-bytes", string(content))
}

func TestMaterializeURLTooLargeIsBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "input")
	_, jerr := Materialize(context.Background(), Request{AudioURL: srv.URL}, dest, 4)
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadRequest, jerr.Code)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Empty(t, entries, "truncated download must not leave a partial file behind")
}

func TestMoveLocalFileRenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "dropped.wav")
	require.NoError(t, os.WriteFile(src, []byte("dropped-audio"), 0o644))

	dest := filepath.Join(dir, "job-1", "input")
	res, jerr := MoveLocalFile(src, dest)
	require.Nil(t, jerr)
	assert.True(t, res.OwnedInput)

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be moved, not copied")

	content, err := os.ReadFile(res.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, "dropped-audio", string(content))
}

func TestRemoveOwnedSkipsUnownedInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kept.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	RemoveOwned(path, false)

	_, err := os.Stat(path)
	assert.NoError(t, err, "unowned input must never be deleted")
}

func TestRemoveOwnedDeletesOwnedInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "owned.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	RemoveOwned(path, true)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
