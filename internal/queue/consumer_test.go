package queue_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/mediaworks/internal/queue"
)

type recorded struct {
	method  string
	assetID uuid.UUID
	message string
}

type fakeRecorder struct {
	calls []recorded
}

func (f *fakeRecorder) RecordGenerationSuccess(_ context.Context, assetID uuid.UUID) error {
	f.calls = append(f.calls, recorded{method: "success", assetID: assetID})
	return nil
}

func (f *fakeRecorder) RecordGenerationError(_ context.Context, assetID uuid.UUID, message string) error {
	f.calls = append(f.calls, recorded{method: "error", assetID: assetID, message: message})
	return nil
}

func (f *fakeRecorder) RecordAudioSuccess(_ context.Context, assetID uuid.UUID) error {
	f.calls = append(f.calls, recorded{method: "audioSuccess", assetID: assetID})
	return nil
}

func (f *fakeRecorder) RecordAudioError(_ context.Context, assetID uuid.UUID, message string) error {
	f.calls = append(f.calls, recorded{method: "audioError", assetID: assetID, message: message})
	return nil
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestApplyCompletionSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	assetID := uuid.New()

	err := queue.ApplyCompletion(context.Background(), rec, queue.CompletionMessage{
		JobID:   assetID.String(),
		Success: true,
	})

	require.NoError(t, err)
	require.Equal(t, []recorded{{method: "success", assetID: assetID}}, rec.calls)
}

func TestApplyCompletionFailureWithoutMessageStoresPlaceholder(t *testing.T) {
	rec := &fakeRecorder{}
	assetID := uuid.New()

	err := queue.ApplyCompletion(context.Background(), rec, queue.CompletionMessage{
		JobID:   assetID.String(),
		Success: false,
	})

	require.NoError(t, err)
	require.Equal(t,
		[]recorded{{method: "error", assetID: assetID, message: "No error message received"}},
		rec.calls)
}

func TestApplyCompletionBranchesAreIndependent(t *testing.T) {
	rec := &fakeRecorder{}
	assetID := uuid.New()

	err := queue.ApplyCompletion(context.Background(), rec, queue.CompletionMessage{
		JobID:        assetID.String(),
		Success:      false,
		ErrorMessage: strPtr("reconstruction diverged"),
		AudioSuccess: boolPtr(true),
	})

	require.NoError(t, err)
	require.Equal(t, []recorded{
		{method: "error", assetID: assetID, message: "reconstruction diverged"},
		{method: "audioSuccess", assetID: assetID},
	}, rec.calls)
}

func TestApplyCompletionAudioFailureFallsBackToPlaceholder(t *testing.T) {
	rec := &fakeRecorder{}
	assetID := uuid.New()

	err := queue.ApplyCompletion(context.Background(), rec, queue.CompletionMessage{
		JobID:        assetID.String(),
		Success:      true,
		AudioSuccess: boolPtr(false),
	})

	require.NoError(t, err)
	require.Equal(t, []recorded{
		{method: "success", assetID: assetID},
		{method: "audioError", assetID: assetID, message: "No error message received"},
	}, rec.calls)
}

func TestApplyCompletionAbsentAudioOutcomeIsNotFailure(t *testing.T) {
	rec := &fakeRecorder{}
	assetID := uuid.New()

	err := queue.ApplyCompletion(context.Background(), rec, queue.CompletionMessage{
		JobID:   assetID.String(),
		Success: true,
	})

	require.NoError(t, err)
	for _, call := range rec.calls {
		require.NotContains(t, call.method, "audio")
	}
}

func TestApplyCompletionRejectsBadJobID(t *testing.T) {
	rec := &fakeRecorder{}

	err := queue.ApplyCompletion(context.Background(), rec, queue.CompletionMessage{
		JobID:   "not-a-uuid",
		Success: true,
	})

	require.Error(t, err)
	require.Empty(t, rec.calls)
}
