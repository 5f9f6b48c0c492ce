package domain

import "errors"

// Sentinel errors for the artifact subsystem. Handlers translate these to
// HTTP status codes exactly once, at the boundary.
var (
	// ErrNotFound covers a missing job, a missing association, and a caller
	// without visibility. The three cases are deliberately indistinguishable.
	ErrNotFound = errors.New("asset not found")

	// ErrNotReady means the job is still Preparing. Retryable by the client.
	ErrNotReady = errors.New("artifact not ready")

	// ErrGenerationFailed means the job reached Errored. Only a forced
	// resubmission clears it.
	ErrGenerationFailed = errors.New("artifact generation failed")

	// ErrBadSignature means a webhook failed its authenticity check.
	ErrBadSignature = errors.New("invalid webhook signature")
)
