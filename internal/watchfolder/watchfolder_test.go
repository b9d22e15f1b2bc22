package watchfolder

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	ingested []string
	err      error
}

func (f *fakeSubmitter) IngestFromPath(srcPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.ingested = append(f.ingested, srcPath)
	return "job-" + filepath.Base(srcPath), nil
}

func (f *fakeSubmitter) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ingested))
	copy(out, f.ingested)
	return out
}

func newTestService(t *testing.T, sub Submitter) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	s := New(dir, sub)
	s.settle = 10 * time.Millisecond
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s, dir
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNewFileIsIngestedAndRemoved(t *testing.T) {
	sub := &fakeSubmitter{}
	_, dir := newTestService(t, sub)

	path := filepath.Join(dir, "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	waitFor(t, 2*time.Second, func() bool { return len(sub.paths()) == 1 })
	assert.Equal(t, path, sub.paths()[0])

	waitFor(t, 2*time.Second, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	})
}

func TestNonAudioFileIsIgnored(t *testing.T) {
	sub := &fakeSubmitter{}
	_, dir := newTestService(t, sub)

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not audio"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, sub.paths())

	_, err := os.Stat(path)
	assert.NoError(t, err, "non-audio file must be left alone")
}

func TestIngestFailureLeavesFileInPlace(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("boom")}
	_, dir := newTestService(t, sub)

	path := filepath.Join(dir, "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	time.Sleep(300 * time.Millisecond)
	_, err := os.Stat(path)
	assert.NoError(t, err, "failed ingest must not delete the source file")
}

func TestExistingFilesProcessedOnStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preexisting.flac")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	sub := &fakeSubmitter{}
	s := New(dir, sub)
	s.settle = 10 * time.Millisecond
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	waitFor(t, 2*time.Second, func() bool { return len(sub.paths()) == 1 })
}

func TestDisabledWhenDirEmpty(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New("", sub)
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	assert.Empty(t, sub.paths())
}

func TestIsAudioFile(t *testing.T) {
	assert.True(t, isAudioFile("song.MP3"))
	assert.True(t, isAudioFile("clip.wav"))
	assert.False(t, isAudioFile("readme.md"))
	assert.False(t, isAudioFile("archive.zip"))
}
