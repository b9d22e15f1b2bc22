package models

import "time"

// JobType selects which stage sequence a job runs through.
type JobType string

const (
	JobTypeASR        JobType = "asr"
	JobTypeDemucs     JobType = "demucs"
	JobTypeASRDemucs  JobType = "asr-demucs"
)

// JobState is the coarse lifecycle state of a job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobPhase is fine-grained pipeline progress within a running job.
type JobPhase string

const (
	PhaseQueued     JobPhase = "queued"
	PhaseASRConvert JobPhase = "asr_convert"
	PhaseASR        JobPhase = "asr"
	PhaseDemucs     JobPhase = "demucs"
	PhaseZipDemucs  JobPhase = "zip_demucs"
	PhaseZipResult  JobPhase = "zip_result"
	PhaseDone       JobPhase = "done"
	PhaseError      JobPhase = "error"
)

// InputSource classifies how a job's audio input was materialized.
type InputSource string

const (
	SourceUpload   InputSource = "upload"
	SourceAudioPath InputSource = "audioPath"
	SourceAudioURL InputSource = "audioUrl"
	SourceUnknown  InputSource = "unknown"
)

// ArtifactKey names a stable output slot. The filename each maps to is
// fixed and defined in FilenameFor.
type ArtifactKey string

const (
	ArtifactSRT        ArtifactKey = "srt"
	ArtifactVocals     ArtifactKey = "vocals"
	ArtifactNoVocals   ArtifactKey = "no_vocals"
	ArtifactDemucsZip  ArtifactKey = "demucs_zip"
	ArtifactResultZip  ArtifactKey = "result_zip"
)

// FilenameFor returns the stable on-disk filename for an artifact key.
func FilenameFor(key ArtifactKey) string {
	switch key {
	case ArtifactSRT:
		return "output.srt"
	case ArtifactVocals:
		return "vocals.mp3"
	case ArtifactNoVocals:
		return "no_vocals.mp3"
	case ArtifactDemucsZip:
		return "demucs.zip"
	case ArtifactResultZip:
		return "result.zip"
	default:
		return string(key)
	}
}

// Artifact is a named output file produced by a stage. Ready is
// authoritative only after reconciliation against the filesystem.
type Artifact struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Ready bool   `json:"ready"`
	Bytes *int64 `json:"bytes,omitempty"`
}

// VADParams holds optional voice-activity-detection tuning, shared by
// jobs and batches.
type VADParams struct {
	MaxSingleSegmentMs *int `json:"vadMaxSingleSegmentMs,omitempty"`
	MaxEndSilenceMs    *int `json:"vadMaxEndSilenceMs,omitempty"`
}

// Job is the persisted record for a single-item pipeline run.
type Job struct {
	ID   string  `json:"id"`
	Type JobType `json:"type"`

	State JobState `json:"state"`
	Phase JobPhase `json:"phase"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`

	OutDir string `json:"outDir"`

	Source               InputSource `json:"source"`
	AudioPath            string      `json:"audioPath"`
	CleanupAudioOnFinish bool        `json:"cleanupAudioOnFinish"`

	VAD VADParams `json:"vad"`

	Artifacts map[ArtifactKey]*Artifact `json:"artifacts"`

	Error *JobError `json:"error,omitempty"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.State == JobSucceeded || j.State == JobFailed
}

// NormalizeJobType maps the known aliases onto the three canonical
// job types, per spec.md §8 boundary behaviors. An empty string or an
// unrecognized alias resolves to asr-demucs / an error respectively.
func NormalizeJobType(raw string) (JobType, bool) {
	switch raw {
	case "", "asr-demucs", "demucs-asr", "demucsasr", "asr+demucs":
		return JobTypeASRDemucs, true
	case "asr":
		return JobTypeASR, true
	case "demucs":
		return JobTypeDemucs, true
	default:
		return "", false
	}
}

// StagesFor returns the ordered artifact-producing stage tags for a job
// type's pipeline, used by the job engine to drive phase transitions.
func StagesFor(t JobType) []JobPhase {
	switch t {
	case JobTypeASR:
		return []JobPhase{PhaseASRConvert, PhaseASR}
	case JobTypeDemucs:
		return []JobPhase{PhaseDemucs, PhaseZipDemucs}
	case JobTypeASRDemucs:
		return []JobPhase{PhaseASRConvert, PhaseASR, PhaseDemucs, PhaseZipDemucs, PhaseZipResult}
	default:
		return nil
	}
}
