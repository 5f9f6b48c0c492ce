package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fieldscope/mediaworks/internal/domain"
	"github.com/fieldscope/mediaworks/internal/service"
)

// Webhook bodies are tiny event envelopes; anything bigger is not ours.
const maxWebhookBody = 1 << 20

type ArtifactService interface {
	RequestGeneration(ctx context.Context, userID, observationID, assetID uuid.UUID, opts service.GenerationOptions) error
	ReadArtifact(ctx context.Context, userID, observationID, assetID uuid.UUID) (*service.Artifact, error)
	ListArtifacts(ctx context.Context, userID, observationID uuid.UUID) ([]domain.Job, error)
}

type WebhookProcessor interface {
	Receive(ctx context.Context, rawBody []byte, signatureHeader string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	artifacts ArtifactService
	webhooks  WebhookProcessor
	db        Pinger
	validator *validator.Validate
	log       *zap.Logger
}

func New(artifacts ArtifactService, webhooks WebhookProcessor, db Pinger, log *zap.Logger) *Handler {
	return &Handler{
		artifacts: artifacts,
		webhooks:  webhooks,
		db:        db,
		validator: validator.New(),
		log:       log.Named("http"),
	}
}

// SubmitArtifact requests generation of the derived artifacts for a video.
// A repeat request without force is a success that changes nothing.
func (h *Handler) SubmitArtifact(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeJSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	observationID, err := pathUUID(r, "observationID")
	if err != nil {
		writeJSONError(w, "observation not found", http.StatusNotFound)
		return
	}

	var req GenerateArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(validationErrorsToMap(err))
		return
	}
	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		writeJSONError(w, "assetId must be a UUID", http.StatusBadRequest)
		return
	}

	err = h.artifacts.RequestGeneration(r.Context(), userID, observationID, assetID, service.GenerationOptions{
		Force:            req.Force,
		RunAudioAnalysis: req.RunAudioAnalysis,
		ProcessArgs:      req.ProcessArgs,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SimpleSuccessResponse{Status: "ok"})
}

// GetArtifact streams the finished artifact, or reports why it cannot:
// 202 while the workers are still at it, 422 after a terminal failure.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeJSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	observationID, err := pathUUID(r, "observationID")
	if err != nil {
		writeJSONError(w, "observation not found", http.StatusNotFound)
		return
	}
	assetID, err := pathUUID(r, "assetID")
	if err != nil {
		writeJSONError(w, "asset not found", http.StatusNotFound)
		return
	}

	artifact, err := h.artifacts.ReadArtifact(r.Context(), userID, observationID, assetID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer artifact.Body.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	// Artifacts are immutable once Ready; only a forced regeneration replaces
	// them, and that goes through a fresh Preparing cycle anyway.
	w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, artifact.Body); err != nil {
		h.log.Warn("stream artifact", zap.String("assetId", assetID.String()), zap.Error(err))
	}
}

func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeJSONError(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	observationID, err := pathUUID(r, "observationID")
	if err != nil {
		writeJSONError(w, "observation not found", http.StatusNotFound)
		return
	}

	jobs, err := h.artifacts.ListArtifacts(r.Context(), userID, observationID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	payloads := make([]ArtifactPayload, 0, len(jobs))
	for _, job := range jobs {
		payloads = append(payloads, artifactPayloadOf(job))
	}
	writeJSON(w, http.StatusOK, ListArtifactsResponse{Artifacts: payloads})
}

// VideoWebhook is the provider-facing callback endpoint. Responses are 400
// only for signature failures; everything else is acknowledged with 200 so
// the provider never retry-storms us over an internal bug.
func (h *Handler) VideoWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSONError(w, "unreadable request body", http.StatusBadRequest)
		return
	}

	if err := h.webhooks.Receive(r.Context(), body, r.Header.Get("Signature")); err != nil {
		writeJSONError(w, "invalid signature", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSONError(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, SimpleSuccessResponse{Status: "ok"})
}

// writeServiceError is the single place service errors become status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, "asset not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrNotReady):
		writeJSONError(w, "artifact is not ready yet", http.StatusAccepted)
	case errors.Is(err, domain.ErrGenerationFailed):
		writeJSONError(w, "artifact generation failed", http.StatusUnprocessableEntity)
	default:
		h.log.Error("internal error", zap.Error(err))
		writeJSONError(w, "internal error", http.StatusInternalServerError)
	}
}
