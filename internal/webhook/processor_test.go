package webhook_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldscope/mediaworks/internal/domain"
	"github.com/fieldscope/mediaworks/internal/webhook"
)

type jobCall struct {
	method  string
	assetID uuid.UUID
	message string
}

type fakeJobs struct {
	calls []jobCall
	err   error
}

func (f *fakeJobs) RecordGenerationSuccess(_ context.Context, assetID uuid.UUID) error {
	f.calls = append(f.calls, jobCall{method: "success", assetID: assetID})
	return f.err
}

func (f *fakeJobs) RecordGenerationError(_ context.Context, assetID uuid.UUID, message string) error {
	f.calls = append(f.calls, jobCall{method: "error", assetID: assetID, message: message})
	return f.err
}

func (f *fakeJobs) CleanupArtifact(_ context.Context, assetID uuid.UUID) error {
	f.calls = append(f.calls, jobCall{method: "cleanup", assetID: assetID})
	return f.err
}

func newProcessor(jobs *fakeJobs) *webhook.Processor {
	return webhook.NewProcessor(webhook.NewVerifier(testSecret), jobs, zap.NewNop())
}

func signedHeader(t *testing.T, body []byte) string {
	return header("1700000000", sign(t, testSecret, "1700000000", body))
}

func TestReceiveRejectsBadSignatureWithoutProcessing(t *testing.T) {
	jobs := &fakeJobs{}
	p := newProcessor(jobs)

	body := []byte(fmt.Sprintf(`{"type":"video.asset.ready","metadata":{"jobId":%q}}`, uuid.NewString()))
	err := p.Receive(context.Background(), body, "t=1700000000,v1=deadbeef")

	require.ErrorIs(t, err, domain.ErrBadSignature)
	require.Empty(t, jobs.calls)
}

func TestReceiveDispatchesAssetReady(t *testing.T) {
	jobs := &fakeJobs{}
	p := newProcessor(jobs)
	assetID := uuid.New()

	body := []byte(fmt.Sprintf(`{"type":"video.asset.ready","metadata":{"jobId":%q}}`, assetID))
	require.NoError(t, p.Receive(context.Background(), body, signedHeader(t, body)))

	require.Equal(t, []jobCall{{method: "success", assetID: assetID}}, jobs.calls)
}

func TestReceiveDispatchesAssetErrored(t *testing.T) {
	jobs := &fakeJobs{}
	p := newProcessor(jobs)
	assetID := uuid.New()

	body := []byte(fmt.Sprintf(
		`{"type":"video.asset.errored","data":{"errorMessage":"transcode failed"},"metadata":{"jobId":%q}}`, assetID))
	require.NoError(t, p.Receive(context.Background(), body, signedHeader(t, body)))

	require.Equal(t, []jobCall{{method: "error", assetID: assetID, message: "transcode failed"}}, jobs.calls)
}

func TestReceiveDispatchesAssetDeleted(t *testing.T) {
	jobs := &fakeJobs{}
	p := newProcessor(jobs)
	assetID := uuid.New()

	body := []byte(fmt.Sprintf(`{"type":"video.asset.deleted","metadata":{"jobId":%q}}`, assetID))
	require.NoError(t, p.Receive(context.Background(), body, signedHeader(t, body)))

	require.Equal(t, []jobCall{{method: "cleanup", assetID: assetID}}, jobs.calls)
}

func TestReceiveIgnoresUnknownEventType(t *testing.T) {
	jobs := &fakeJobs{}
	p := newProcessor(jobs)

	body := []byte(fmt.Sprintf(`{"type":"video.asset.created","metadata":{"jobId":%q}}`, uuid.NewString()))
	require.NoError(t, p.Receive(context.Background(), body, signedHeader(t, body)))
	require.Empty(t, jobs.calls)
}

func TestReceiveAcknowledgesMalformedSignedPayload(t *testing.T) {
	jobs := &fakeJobs{}
	p := newProcessor(jobs)

	body := []byte(`{"type":`)
	require.NoError(t, p.Receive(context.Background(), body, signedHeader(t, body)))
	require.Empty(t, jobs.calls)
}

func TestReceiveAcknowledgesMissingJobID(t *testing.T) {
	jobs := &fakeJobs{}
	p := newProcessor(jobs)

	body := []byte(`{"type":"video.asset.ready","metadata":{}}`)
	require.NoError(t, p.Receive(context.Background(), body, signedHeader(t, body)))
	require.Empty(t, jobs.calls)
}

func TestReceiveAcknowledgesJobStoreFailure(t *testing.T) {
	jobs := &fakeJobs{err: fmt.Errorf("db down")}
	p := newProcessor(jobs)

	body := []byte(fmt.Sprintf(`{"type":"video.asset.ready","metadata":{"jobId":%q}}`, uuid.NewString()))
	require.NoError(t, p.Receive(context.Background(), body, signedHeader(t, body)))
	require.Len(t, jobs.calls, 1)
}
