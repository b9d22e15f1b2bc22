package models

import "time"

// BatchState mirrors JobState with an extra canceled terminal state.
type BatchState string

const (
	BatchQueued    BatchState = "queued"
	BatchRunning   BatchState = "running"
	BatchSucceeded BatchState = "succeeded"
	BatchFailed    BatchState = "failed"
	BatchCanceled  BatchState = "canceled"
)

// BatchPhase is the stage-first scheduler's coarse progress marker.
type BatchPhase string

const (
	BatchPhaseValidate BatchPhase = "validate"
	BatchPhaseASR      BatchPhase = "asr"
	BatchPhaseDemucs   BatchPhase = "demucs"
	BatchPhaseDone     BatchPhase = "done"
	BatchPhaseError    BatchPhase = "error"
)

// BatchTasks selects which stages the batch runs; at least one must be true.
type BatchTasks struct {
	ASR    bool `json:"asr"`
	Demucs bool `json:"demucs"`
}

// BatchOptions carries the batch-wide policy and tuning.
type BatchOptions struct {
	Policy string     `json:"policy"`
	Tasks  BatchTasks `json:"tasks"`
	VAD    VADParams  `json:"-"`
}

// ItemState is a batch item's per-item lifecycle state; unlike JobState
// it includes canceled, since items (not jobs) can be stopped mid-batch.
type ItemState string

const (
	ItemQueued    ItemState = "queued"
	ItemRunning   ItemState = "running"
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
	ItemCanceled  ItemState = "canceled"
)

// InputDescriptor names how a batch item's audio should be materialized.
type InputDescriptor struct {
	Kind      InputSource `json:"kind"`
	AudioPath string      `json:"audioPath,omitempty"`
	AudioURL  string      `json:"audioUrl,omitempty"`
	// UploadToken references a spooled multipart upload handed in by the
	// boundary's transport-facing caller; opaque to the core.
	UploadToken string `json:"uploadToken,omitempty"`
}

// BatchItem is one of a batch's 1..10 independently processed inputs.
type BatchItem struct {
	Idx   int         `json:"idx"`
	Input InputDescriptor `json:"input"`

	Source    InputSource `json:"source"`
	AudioPath string      `json:"audioPath"`
	OwnedInput bool       `json:"ownedInput"`

	State ItemState `json:"state"`
	Phase JobPhase  `json:"phase"`

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	Artifacts map[ArtifactKey]*Artifact `json:"artifacts"`

	Error *JobError `json:"error,omitempty"`
}

// IsTerminal reports whether the item has reached a final per-item state.
func (it *BatchItem) IsTerminal() bool {
	switch it.State {
	case ItemSucceeded, ItemFailed, ItemCanceled:
		return true
	default:
		return false
	}
}

// Batch is the persisted record for a stage-first multi-item run.
type Batch struct {
	ID    string     `json:"id"`
	State BatchState `json:"state"`
	Phase BatchPhase `json:"phase"`

	Options BatchOptions `json:"options"`
	Items   []*BatchItem `json:"items"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`

	OutDir string `json:"outDir"`

	CancelRequested bool `json:"cancelRequested"`
}

// IsTerminal reports whether the batch has reached a final state.
func (b *Batch) IsTerminal() bool {
	switch b.State {
	case BatchSucceeded, BatchFailed, BatchCanceled:
		return true
	default:
		return false
	}
}

// Counts summarizes item outcomes for status responses.
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// CountItems tallies terminal item outcomes.
func (b *Batch) CountItems() Counts {
	c := Counts{Total: len(b.Items)}
	for _, it := range b.Items {
		switch it.State {
		case ItemSucceeded:
			c.Succeeded++
		case ItemFailed:
			c.Failed++
		case ItemCanceled:
			c.Canceled++
		}
	}
	return c
}
