package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldscope/mediaworks/internal/config"
)

// stubStreams serves queued claim batches and records acknowledgements.
type stubStreams struct {
	claims [][]redis.XMessage
	acked  []string
}

func (s *stubStreams) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (s *stubStreams) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (s *stubStreams) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	s.acked = append(s.acked, ids...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (s *stubStreams) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	cmd := redis.NewXAutoClaimCmd(ctx, nil)
	if len(s.claims) == 0 {
		cmd.SetVal(nil, "0-0")
		return cmd
	}
	batch := s.claims[0]
	s.claims = s.claims[1:]
	next := "0-0"
	if len(s.claims) > 0 {
		next = fmt.Sprintf("%d-0", len(s.claims))
	}
	cmd.SetVal(batch, next)
	return cmd
}

type transitionLog struct {
	success []uuid.UUID
	errored []uuid.UUID
}

func (l *transitionLog) RecordGenerationSuccess(_ context.Context, assetID uuid.UUID) error {
	l.success = append(l.success, assetID)
	return nil
}

func (l *transitionLog) RecordGenerationError(_ context.Context, assetID uuid.UUID, _ string) error {
	l.errored = append(l.errored, assetID)
	return nil
}

func (l *transitionLog) RecordAudioSuccess(context.Context, uuid.UUID) error { return nil }

func (l *transitionLog) RecordAudioError(context.Context, uuid.UUID, string) error { return nil }

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		ResponseStream: "mediaworks:responses",
		Group:          "mediaworks",
		Consumer:       "mediaworks-api",
		Workers:        1,
		BlockTimeout:   time.Second,
	}
}

func claimedMessage(t *testing.T, id string, msg CompletionMessage) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]interface{}{"payload": string(payload)}}
}

func TestAutoClaimAppliesAdoptedCompletions(t *testing.T) {
	assetID := uuid.New()
	stub := &stubStreams{claims: [][]redis.XMessage{{
		claimedMessage(t, "7-0", CompletionMessage{JobID: assetID.String(), Success: true}),
	}}}
	rec := &transitionLog{}
	c := NewConsumer(stub, workerConfig(), rec, zap.NewNop())

	c.autoClaim(context.Background())

	require.Equal(t, []uuid.UUID{assetID}, rec.success)
	require.Equal(t, []string{"7-0"}, stub.acked)
}

func TestAutoClaimDrainsAllPendingBatches(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	stub := &stubStreams{claims: [][]redis.XMessage{
		{claimedMessage(t, "7-0", CompletionMessage{JobID: first.String(), Success: true})},
		{claimedMessage(t, "9-0", CompletionMessage{JobID: second.String(), Success: false})},
	}}
	rec := &transitionLog{}
	c := NewConsumer(stub, workerConfig(), rec, zap.NewNop())

	c.autoClaim(context.Background())

	require.Equal(t, []uuid.UUID{first}, rec.success)
	require.Equal(t, []uuid.UUID{second}, rec.errored)
	require.Equal(t, []string{"7-0", "9-0"}, stub.acked)
}

func TestAutoClaimAcknowledgesUnparseableAdoptedMessage(t *testing.T) {
	stub := &stubStreams{claims: [][]redis.XMessage{{
		{ID: "3-0", Values: map[string]interface{}{"payload": "{broken"}},
	}}}
	rec := &transitionLog{}
	c := NewConsumer(stub, workerConfig(), rec, zap.NewNop())

	c.autoClaim(context.Background())

	require.Empty(t, rec.success)
	require.Empty(t, rec.errored)
	require.Equal(t, []string{"3-0"}, stub.acked)
}
