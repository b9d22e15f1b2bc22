package jobengine

import (
	"context"

	"mediaorc/internal/adapters"
	"mediaorc/internal/asrworker"
	"mediaorc/internal/models"
)

// transcoder converts a source file to the WAV the recognizer
// expects. Satisfied by *adapters.Transcoder.
type transcoder interface {
	ToWAV16kMono(ctx context.Context, srcPath, dstPath string) *models.JobError
}

// separator runs vocal/no-vocal source separation. Satisfied by
// *adapters.Separator.
type separator interface {
	Run(ctx context.Context, srcWav, workDir string, mp3Bitrate int) (*adapters.SeparateResult, *models.JobError)
}

// packer bundles an explicit file list into a single archive. Satisfied
// by *adapters.Packer.
type packer interface {
	Pack(ctx context.Context, destZip string, entries []adapters.PackEntry) *models.JobError
}

// recognizer runs ASR transcription. Satisfied by *asrworker.Manager.
type recognizer interface {
	Transcribe(ctx context.Context, params asrworker.TranscribeParams) (*asrworker.TranscribeResult, *models.JobError)
}
