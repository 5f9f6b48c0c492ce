// Package service holds the artifact use cases: submitting generation
// requests to the worker fleet, applying completion reports, and reading
// finished artifacts back to clients.
package service

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fieldscope/mediaworks/internal/domain"
	"github.com/fieldscope/mediaworks/internal/queue"
	"github.com/fieldscope/mediaworks/internal/storage"
)

// Derived artifacts live next to the source video under deterministic keys,
// so output locations never need to be looked up from a worker's reply.
const (
	modelFileExt    = ".sog"
	audioFileSuffix = "_audio.json"
)

type JobStore interface {
	Submit(ctx context.Context, p storage.CreateJobParams, force bool) (bool, error)
	MarkReady(ctx context.Context, assetID uuid.UUID) error
	MarkErrored(ctx context.Context, assetID uuid.UUID, message string) error
	MarkAudioReady(ctx context.Context, assetID uuid.UUID) error
	MarkAudioErrored(ctx context.Context, assetID uuid.UUID, message string) error
	Fetch(ctx context.Context, assetID uuid.UUID) (*domain.Job, error)
	ListByObservation(ctx context.Context, observationID uuid.UUID) ([]domain.Job, error)
	MediaFileKey(ctx context.Context, assetID uuid.UUID) (string, error)
	AssociationExists(ctx context.Context, observationID, assetID uuid.UUID) (bool, error)
}

type Publisher interface {
	PublishRequest(ctx context.Context, req queue.GenerationRequest) error
}

type ObjectStore interface {
	Bucket() string
	Open(ctx context.Context, key string) (io.ReadCloser, string, int64, error)
	Delete(ctx context.Context, key string) error
}

// AccessGate is the capability check consulted before any read or state
// change. The permission engine behind it is not this subsystem's concern.
type AccessGate interface {
	CanReadObservation(ctx context.Context, userID, observationID uuid.UUID) (bool, error)
}

type Service struct {
	jobs           JobStore
	publisher      Publisher
	files          ObjectStore
	gate           AccessGate
	responseStream string
	log            *zap.Logger
}

func New(jobs JobStore, publisher Publisher, files ObjectStore, gate AccessGate, responseStream string, log *zap.Logger) *Service {
	return &Service{
		jobs:           jobs,
		publisher:      publisher,
		files:          files,
		gate:           gate,
		responseStream: responseStream,
		log:            log.Named("artifacts"),
	}
}

type GenerationOptions struct {
	Force            bool
	RunAudioAnalysis bool
	ProcessArgs      []string
}

// RequestGeneration creates or force-resets the job row and, when the write
// committed a new or reset row, publishes a request to the worker fleet. An
// unforced request for an asset that already has a job is a silent success.
func (s *Service) RequestGeneration(ctx context.Context, userID, observationID, assetID uuid.UUID, opts GenerationOptions) error {
	if err := s.ensureObservationAsset(ctx, userID, observationID, assetID); err != nil {
		return err
	}

	sourceKey, err := s.jobs.MediaFileKey(ctx, assetID)
	if err != nil {
		return err
	}

	outputKey := derivedKey(sourceKey, modelFileExt)
	var audioOutputKey *string
	if opts.RunAudioAnalysis {
		k := derivedKey(sourceKey, audioFileSuffix)
		audioOutputKey = &k
	}

	send, err := s.jobs.Submit(ctx, storage.CreateJobParams{
		AssetID:        assetID,
		OutputKey:      outputKey,
		AudioOutputKey: audioOutputKey,
		CreatedBy:      userID,
	}, opts.Force)
	if err != nil {
		return err
	}
	if !send {
		s.log.Info("job already exists; ignoring additional generation request",
			zap.String("assetId", assetID.String()))
		return nil
	}

	req := queue.GenerationRequest{
		JobID:          assetID.String(),
		Input:          queue.FileLocation{Bucket: s.files.Bucket(), Key: sourceKey},
		Output:         queue.FileLocation{Bucket: s.files.Bucket(), Key: outputKey},
		ResponseStream: s.responseStream,
		Args:           opts.ProcessArgs,
	}
	if audioOutputKey != nil {
		req.AudioOutput = &queue.FileLocation{Bucket: s.files.Bucket(), Key: *audioOutputKey}
	}
	if err := s.publisher.PublishRequest(ctx, req); err != nil {
		return errors.Wrap(err, "publish generation request")
	}

	s.log.Info("requested artifact generation",
		zap.String("assetId", assetID.String()),
		zap.Bool("force", opts.Force),
		zap.Bool("audio", opts.RunAudioAnalysis))
	return nil
}

// Artifact is a finished artifact opened for streaming. The caller owns Body.
type Artifact struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ReadArtifact maps the job's current state to a client-visible outcome:
// content when Ready, ErrNotReady when Preparing, ErrGenerationFailed when
// Errored, ErrNotFound when the job or association is missing.
func (s *Service) ReadArtifact(ctx context.Context, userID, observationID, assetID uuid.UUID) (*Artifact, error) {
	if err := s.ensureObservationAsset(ctx, userID, observationID, assetID); err != nil {
		return nil, err
	}

	job, err := s.jobs.Fetch(ctx, assetID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.StatusErrored:
		return nil, domain.ErrGenerationFailed
	case domain.StatusPreparing:
		return nil, domain.ErrNotReady
	}

	body, contentType, size, err := s.files.Open(ctx, job.OutputKey)
	if err != nil {
		return nil, errors.Wrap(err, "open artifact")
	}
	return &Artifact{Body: body, ContentType: contentType, Size: size}, nil
}

// ListArtifacts returns the jobs for every media file of an observation.
func (s *Service) ListArtifacts(ctx context.Context, userID, observationID uuid.UUID) ([]domain.Job, error) {
	ok, err := s.gate.CanReadObservation(ctx, userID, observationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.jobs.ListByObservation(ctx, observationID)
}

// RecordGenerationSuccess and friends implement queue.Recorder and are also
// reached from the webhook path.

func (s *Service) RecordGenerationSuccess(ctx context.Context, assetID uuid.UUID) error {
	s.log.Info("artifact generation completed", zap.String("assetId", assetID.String()))
	return s.jobs.MarkReady(ctx, assetID)
}

func (s *Service) RecordGenerationError(ctx context.Context, assetID uuid.UUID, message string) error {
	s.log.Error("artifact generation failed",
		zap.String("assetId", assetID.String()), zap.String("message", message))
	return s.jobs.MarkErrored(ctx, assetID, message)
}

func (s *Service) RecordAudioSuccess(ctx context.Context, assetID uuid.UUID) error {
	s.log.Info("audio analysis completed", zap.String("assetId", assetID.String()))
	return s.jobs.MarkAudioReady(ctx, assetID)
}

func (s *Service) RecordAudioError(ctx context.Context, assetID uuid.UUID, message string) error {
	s.log.Error("audio analysis failed",
		zap.String("assetId", assetID.String()), zap.String("message", message))
	return s.jobs.MarkAudioErrored(ctx, assetID, message)
}

// CleanupArtifact removes the derived object after the provider reports the
// upstream asset deleted. It does not touch the job's state machine.
func (s *Service) CleanupArtifact(ctx context.Context, assetID uuid.UUID) error {
	job, err := s.jobs.Fetch(ctx, assetID)
	if err != nil {
		return err
	}
	return s.files.Delete(ctx, job.OutputKey)
}

// ensureObservationAsset runs the capability check and confirms the asset is
// reachable from the observation. Both failures surface as ErrNotFound so a
// caller cannot distinguish "forbidden" from "does not exist".
func (s *Service) ensureObservationAsset(ctx context.Context, userID, observationID, assetID uuid.UUID) error {
	ok, err := s.gate.CanReadObservation(ctx, userID, observationID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}

	exists, err := s.jobs.AssociationExists(ctx, observationID, assetID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

func derivedKey(sourceKey, suffix string) string {
	base := sourceKey
	if i := strings.LastIndex(sourceKey, "."); i > 0 {
		base = sourceKey[:i]
	}
	return base + suffix
}
