// Package adapters wraps the external ffmpeg/zip/Demucs-separator
// command-line tools behind a uniform shim interface, following the
// base-adapter shape the core's model adapters use: prepare, run,
// classify failures, read back a bounded tail of stderr for
// diagnostics.
package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"mediaorc/internal/models"
	"mediaorc/pkg/binaries"
	"mediaorc/pkg/logger"
)

// maxStderrTail bounds how much of a failed command's stderr is kept
// for the JobError's Details field.
const maxStderrTail = 32 * 1024

// runResult captures everything a run needs to classify its outcome.
type runResult struct {
	exitErr    error
	stderrTail string
}

// run executes cmd, capturing a bounded tail of stderr for diagnostics
// regardless of outcome.
func run(ctx context.Context, name string, args []string, dir string) runResult {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stderr bytes.Buffer
	cmd.Stderr = &tailWriter{buf: &stderr, limit: maxStderrTail}

	err := cmd.Run()
	return runResult{exitErr: err, stderrTail: stderr.String()}
}

// tailWriter keeps only the last `limit` bytes written to it, which is
// what a failing command's stderr is judged on: the final lines are
// almost always where the real error is.
type tailWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.buf.Len() > w.limit {
		trimmed := w.buf.Bytes()[w.buf.Len()-w.limit:]
		w.buf.Reset()
		w.buf.Write(trimmed)
	}
	return len(p), nil
}

// classifyExternalErr maps a failed external command to the job error
// taxonomy. Context cancellation is reported distinctly so callers can
// tell a deliberate cancel from a real tool failure.
func classifyExternalErr(stage string, res runResult) *models.JobError {
	if res.exitErr == nil {
		return nil
	}
	if res.exitErr == context.Canceled || res.exitErr == context.DeadlineExceeded {
		return models.NewJobError(models.ErrInternalError, fmt.Sprintf("%s canceled", stage), res.stderrTail)
	}
	return models.NewJobError(models.ErrEngineError, fmt.Sprintf("%s failed", stage), res.stderrTail)
}

// Transcoder converts an arbitrary input media file to the 16kHz mono
// WAV the ASR worker expects.
type Transcoder struct{}

func NewTranscoder() *Transcoder { return &Transcoder{} }

// ToWAV16kMono converts srcPath into dstPath (asr.wav) via ffmpeg.
func (t *Transcoder) ToWAV16kMono(ctx context.Context, srcPath, dstPath string) *models.JobError {
	logger.EngineOperation("transcode", "start", "src", srcPath, "dst", dstPath)

	if _, err := os.Stat(srcPath); err != nil {
		return models.NewJobError(models.ErrBadAudio, "input audio file is missing or unreadable", err.Error())
	}

	args := []string{
		"-y",
		"-i", srcPath,
		"-ac", "1",
		"-ar", "16000",
		"-vn",
		dstPath,
	}

	res := run(ctx, binaries.FFmpeg(), args, "")
	if jerr := classifyExternalErr("transcode", res); jerr != nil {
		if looksLikeBadAudio(res.stderrTail) {
			jerr.Code = models.ErrBadAudio
		}
		return jerr
	}

	if info, err := os.Stat(dstPath); err != nil || info.Size() == 0 {
		return models.NewJobError(models.ErrBadAudio, "transcode produced no output", res.stderrTail)
	}

	logger.EngineOperation("transcode", "done")
	return nil
}

// looksLikeBadAudio heuristically distinguishes a malformed/unsupported
// source file from a genuine ffmpeg tooling failure, based on the
// phrases ffmpeg itself emits for unreadable streams.
func looksLikeBadAudio(stderrTail string) bool {
	needles := []string{
		"Invalid data found when processing input",
		"could not find codec parameters",
		"moov atom not found",
		"Unknown encoder",
	}
	for _, n := range needles {
		if bytes.Contains([]byte(stderrTail), []byte(n)) {
			return true
		}
	}
	return false
}

// Separator runs the Demucs vocal/no-vocal source separation on the
// input audio it is given (the engines pass the original input, not
// asr.wav) and reports the two output stems it expects to find.
type Separator struct {
	BinPath string
}

func NewSeparator(binPath string) *Separator {
	return &Separator{BinPath: binPath}
}

// SeparateResult names the two raw stem files the separator produced,
// before the job/batch engine renames them into the job's stable
// artifact slots.
type SeparateResult struct {
	VocalsPath   string
	NoVocalsPath string
}

// Run invokes the separator binary against srcWav, writing its raw
// output tree under workDir.
func (s *Separator) Run(ctx context.Context, srcWav, workDir string, mp3Bitrate int) (*SeparateResult, *models.JobError) {
	logger.EngineOperation("demucs", "start", "src", srcWav, "workdir", workDir)

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, models.NewJobError(models.ErrInternalError, "failed to prepare separation work directory", err.Error())
	}

	args := []string{
		"--mp3",
		"--mp3-bitrate", fmt.Sprintf("%d", mp3Bitrate),
		"-o", workDir,
		"--two-stems", "vocals",
		srcWav,
	}

	res := run(ctx, s.BinPath, args, "")
	if jerr := classifyExternalErr("demucs separation", res); jerr != nil {
		return nil, jerr
	}

	vocals, noVocals, err := findStemOutputs(workDir)
	if err != nil {
		return nil, models.NewJobError(models.ErrEngineError, "demucs did not produce the expected stem files", res.stderrTail)
	}

	logger.EngineOperation("demucs", "done")
	return &SeparateResult{VocalsPath: vocals, NoVocalsPath: noVocals}, nil
}

// findStemOutputs locates the vocals/no_vocals files Demucs writes
// under its own model-named subdirectory tree.
func findStemOutputs(workDir string) (vocals, noVocals string, err error) {
	var found = map[string]string{}
	err = filepath.WalkDir(workDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		switch base {
		case "vocals.mp3":
			found["vocals"] = path
		case "no_vocals.mp3":
			found["no_vocals"] = path
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	vocals, ok1 := found["vocals"]
	noVocals, ok2 := found["no_vocals"]
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("stem files not found under %s", workDir)
	}
	return vocals, noVocals, nil
}

// Packer builds a single deflated archive out of an explicit file list,
// used for demucs.zip and result.zip. Unlike a directory glob, it never
// picks up whatever else happens to be sitting in a job's output
// directory (leftover inputs, intermediates) — only the named entries.
type Packer struct{}

func NewPacker() *Packer { return &Packer{} }

// PackEntry names one file to include in an archive and the name it
// should be stored under.
type PackEntry struct {
	SourcePath  string
	ArchiveName string
}

// Pack creates destZip containing exactly the given entries, each
// stored under its ArchiveName. Entries are staged into a scratch
// directory first so the archive names are independent of the source
// paths' basenames, then handed to the zip binary with -j (junk paths).
func (p *Packer) Pack(ctx context.Context, destZip string, entries []PackEntry) *models.JobError {
	logger.EngineOperation("pack", "start", "dst", destZip, "entries", len(entries))

	if len(entries) == 0 {
		return models.NewJobError(models.ErrInternalError, "nothing to pack", "")
	}

	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return models.NewJobError(models.ErrInternalError, "failed to prepare output directory", err.Error())
	}

	stageDir, err := os.MkdirTemp(filepath.Dir(destZip), ".pack-*")
	if err != nil {
		return models.NewJobError(models.ErrInternalError, "failed to prepare staging directory", err.Error())
	}
	defer os.RemoveAll(stageDir)

	args := make([]string, 0, len(entries)+2)
	absZip, err := filepath.Abs(destZip)
	if err != nil {
		return models.NewJobError(models.ErrInternalError, "failed to resolve output path", err.Error())
	}
	args = append(args, "-j", absZip)

	for _, e := range entries {
		staged := filepath.Join(stageDir, e.ArchiveName)
		if err := stageForPacking(e.SourcePath, staged); err != nil {
			return models.NewJobError(models.ErrInternalError, fmt.Sprintf("failed to stage %s for packing", e.ArchiveName), err.Error())
		}
		args = append(args, staged)
	}

	res := run(ctx, binaries.Zip(), args, "")
	if jerr := classifyExternalErr("pack", res); jerr != nil {
		return jerr
	}

	logger.EngineOperation("pack", "done")
	return nil
}

// stageForPacking links srcPath at dstPath so its basename matches the
// archive name the caller wants, falling back to a copy across devices.
func stageForPacking(srcPath, dstPath string) error {
	if err := os.Link(srcPath, dstPath); err == nil {
		return nil
	}
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
