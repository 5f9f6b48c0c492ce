package webhook

import (
	"context"
	"encoding/json"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types the provider sends. The set is closed on purpose: anything
// else is acknowledged and ignored so new provider events cannot mutate
// state they were never meant to touch.
const (
	EventAssetReady   = "video.asset.ready"
	EventAssetErrored = "video.asset.errored"
	EventAssetDeleted = "video.asset.deleted"
)

// Event is the provider's envelope. Metadata echoes back what we supplied
// when the upstream asset was created, which is how completions correlate to
// jobs.
type Event struct {
	Type string `json:"type"`
	Data struct {
		ErrorMessage string `json:"errorMessage,omitempty"`
	} `json:"data"`
	Metadata struct {
		JobID string `json:"jobId"`
	} `json:"metadata"`
}

// Jobs is the slice of the artifact service the webhook path needs.
type Jobs interface {
	RecordGenerationSuccess(ctx context.Context, assetID uuid.UUID) error
	RecordGenerationError(ctx context.Context, assetID uuid.UUID, message string) error
	CleanupArtifact(ctx context.Context, assetID uuid.UUID) error
}

type Processor struct {
	verifier *Verifier
	jobs     Jobs
	log      *zap.Logger
}

func NewProcessor(verifier *Verifier, jobs Jobs, log *zap.Logger) *Processor {
	return &Processor{verifier: verifier, jobs: jobs, log: log.Named("webhook")}
}

// Receive verifies and processes one callback. The only error it returns is
// a signature failure; a signed-but-broken payload is our bug, and bouncing
// it back to the provider would just cause a retry storm.
func (p *Processor) Receive(ctx context.Context, rawBody []byte, signatureHeader string) error {
	if err := p.verifier.Verify(rawBody, signatureHeader); err != nil {
		return err
	}
	p.process(ctx, rawBody)
	return nil
}

func (p *Processor) process(ctx context.Context, rawBody []byte) {
	var event Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		p.log.Warn("unparseable webhook payload", zap.Error(err))
		sentry.CaptureException(err)
		return
	}

	if event.Metadata.JobID == "" {
		p.log.Warn("webhook event without job id", zap.String("type", event.Type))
		return
	}
	assetID, err := uuid.Parse(event.Metadata.JobID)
	if err != nil {
		p.log.Warn("webhook event with bad job id",
			zap.String("type", event.Type), zap.String("jobId", event.Metadata.JobID))
		return
	}

	switch event.Type {
	case EventAssetReady:
		err = p.jobs.RecordGenerationSuccess(ctx, assetID)
	case EventAssetErrored:
		err = p.jobs.RecordGenerationError(ctx, assetID, event.Data.ErrorMessage)
	case EventAssetDeleted:
		err = p.jobs.CleanupArtifact(ctx, assetID)
	default:
		p.log.Debug("ignoring webhook event", zap.String("type", event.Type))
		return
	}

	if err != nil {
		p.log.Error("apply webhook event",
			zap.String("type", event.Type), zap.String("assetId", assetID.String()), zap.Error(err))
		sentry.CaptureException(err)
	}
}
