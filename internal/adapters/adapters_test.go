package adapters

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaorc/internal/models"
)

func TestTailWriterKeepsOnlyTheTail(t *testing.T) {
	var buf bytes.Buffer
	w := &tailWriter{buf: &buf, limit: 10}

	_, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Write([]byte("abcde"))
	require.NoError(t, err)

	assert.Equal(t, "56789abcde", buf.String())
}

func TestClassifyExternalErrNilOnSuccess(t *testing.T) {
	assert.Nil(t, classifyExternalErr("stage", runResult{exitErr: nil}))
}

func TestClassifyExternalErrMapsContextCancel(t *testing.T) {
	jerr := classifyExternalErr("transcode", runResult{exitErr: context.Canceled})
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrInternalError, jerr.Code)
}

func TestLooksLikeBadAudio(t *testing.T) {
	assert.True(t, looksLikeBadAudio("Invalid data found when processing input"))
	assert.False(t, looksLikeBadAudio("segmentation fault"))
}

func TestTranscoderRejectsMissingSource(t *testing.T) {
	tr := NewTranscoder()
	jerr := tr.ToWAV16kMono(context.Background(), "/nonexistent/path.mp3", filepath.Join(t.TempDir(), "asr.wav"))
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrBadAudio, jerr.Code)
}

func TestFindStemOutputsMissing(t *testing.T) {
	dir := t.TempDir()
	_, _, err := findStemOutputs(dir)
	assert.Error(t, err)
}

func TestFindStemOutputsFound(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "htdemucs", "track")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "vocals.mp3"), []byte("v"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "no_vocals.mp3"), []byte("n"), 0o644))

	vocals, noVocals, err := findStemOutputs(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(vocals, "vocals.mp3"))
	assert.True(t, strings.HasSuffix(noVocals, "no_vocals.mp3"))
}

func TestPackerRejectsEmptyEntryList(t *testing.T) {
	p := NewPacker()
	jerr := p.Pack(context.Background(), filepath.Join(t.TempDir(), "out.zip"), nil)
	require.NotNil(t, jerr)
	assert.Equal(t, models.ErrInternalError, jerr.Code)
}
