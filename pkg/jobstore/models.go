package jobstore

import (
	"time"

	"github.com/heyjunin/vodforge/pkg/hls"
)

// Status is the job lifecycle state. Playable is entered the moment the
// first variant completes and playback becomes possible; done, partial and
// failed are terminal. Failed and partial jobs may be requeued externally,
// which moves them back to queued while keeping their variant state.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusPlayable Status = "playable"
	StatusDone     Status = "done"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
)

// Terminal reports whether a status ends the job's processing.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusPartial || s == StatusFailed
}

// VariantStatus tracks one planned variant across restarts. A variant is
// only ever marked done after its playlist and every segment are fully
// uploaded; done variants are never re-encoded.
type VariantStatus string

const (
	VariantPending    VariantStatus = "pending"
	VariantInProgress VariantStatus = "in_progress"
	VariantDone       VariantStatus = "done"
)

// Probe holds the source metadata captured once at the start of a job.
type Probe struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration_seconds"`
}

// Job is the durable record for one asset's pipeline run. It is the only
// state that survives a worker crash: a fresh run re-derives everything else
// from it.
type Job struct {
	AssetID  string
	InputRef string
	Status   Status

	// Probed and Plan are populated once, before any variant work, and
	// never recomputed afterwards. Recomputing the plan mid-job would
	// desynchronize the checkpoint skip logic.
	Probed *Probe
	Plan   []hls.Variant

	// VariantState maps resolution labels to their checkpoint state.
	VariantState map[string]VariantStatus

	// MasterKey is set when the first variant completes and the master
	// playlist is first uploaded.
	MasterKey    string
	ThumbnailKey string

	// GlobalProgress is the last persisted 0-100 value, written through the
	// storage throttle rather than on every sample.
	GlobalProgress float64

	// ErrorType carries the structured error taxonomy name of the failure
	// that ended the run; empty while healthy.
	ErrorType    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CompletedVariants counts checkpointed variants in plan order.
func (j *Job) CompletedVariants() int {
	n := 0
	for _, st := range j.VariantState {
		if st == VariantDone {
			n++
		}
	}
	return n
}

// DoneVariants returns the plan entries already checkpointed done, in plan
// order. This is exactly the set the master playlist should reference.
func (j *Job) DoneVariants() []hls.Variant {
	var done []hls.Variant
	for _, v := range j.Plan {
		if j.VariantState[v.Label] == VariantDone {
			done = append(done, v)
		}
	}
	return done
}
