package handler

import (
	"time"

	"github.com/fieldscope/mediaworks/internal/domain"
)

type GenerateArtifactRequest struct {
	AssetID          string   `json:"assetId" validate:"required"`
	Force            bool     `json:"force"`
	RunAudioAnalysis bool     `json:"runAudioAnalysis"`
	ProcessArgs      []string `json:"processArgs" validate:"omitempty,max=32,dive,max=256"`
}

type ArtifactPayload struct {
	AssetID           string              `json:"assetId"`
	Status            domain.AssetStatus  `json:"status"`
	AudioStatus       *domain.AssetStatus `json:"audioStatus,omitempty"`
	ErrorMessage      *string             `json:"errorMessage,omitempty"`
	AudioErrorMessage *string             `json:"audioErrorMessage,omitempty"`
	CreatedTime       time.Time           `json:"createdTime"`
	CompletedTime     *time.Time          `json:"completedTime,omitempty"`
}

func artifactPayloadOf(job domain.Job) ArtifactPayload {
	return ArtifactPayload{
		AssetID:           job.AssetID.String(),
		Status:            job.Status,
		AudioStatus:       job.AudioStatus,
		ErrorMessage:      job.ErrorMessage,
		AudioErrorMessage: job.AudioErrorMessage,
		CreatedTime:       job.CreatedAt,
		CompletedTime:     job.CompletedAt,
	}
}

type ListArtifactsResponse struct {
	Artifacts []ArtifactPayload `json:"artifacts"`
}

type SimpleSuccessResponse struct {
	Status string `json:"status"`
}
