package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssetStatus tracks the lifecycle of one derived artifact. A job leaves
// Preparing only through a completion report; once terminal it stays terminal
// until a forced resubmission resets it.
type AssetStatus string

const (
	StatusPreparing AssetStatus = "preparing"
	StatusReady     AssetStatus = "ready"
	StatusErrored   AssetStatus = "errored"
)

// Job is the persisted record of one artifact-generation request per source
// asset. The primary track covers the reconstruction model; the audio track
// is only present when audio analysis was requested at submission time.
type Job struct {
	AssetID   uuid.UUID
	Status    AssetStatus
	OutputKey string

	// Audio track. AudioStatus is nil when the job has no audio analysis.
	AudioStatus    *AssetStatus
	AudioOutputKey *string

	ErrorMessage      *string
	AudioErrorMessage *string

	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// HasAudioTrack reports whether audio analysis was requested for this job.
func (j *Job) HasAudioTrack() bool { return j.AudioStatus != nil }
