package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fieldscope/mediaworks/internal/config"
)

const noErrorMessage = "No error message received"

// Recorder applies completion outcomes to the job store. Implemented by the
// artifact service; every method is safe to call more than once for the same
// terminal outcome.
type Recorder interface {
	RecordGenerationSuccess(ctx context.Context, assetID uuid.UUID) error
	RecordGenerationError(ctx context.Context, assetID uuid.UUID, message string) error
	RecordAudioSuccess(ctx context.Context, assetID uuid.UUID) error
	RecordAudioError(ctx context.Context, assetID uuid.UUID, message string) error
}

// streamClient is the subset of redis.UniversalClient the consumer uses.
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
}

// Consumer reads worker completion reports from the response stream through
// a consumer group. Redelivery is expected; the Recorder's idempotent
// transitions make repeats harmless.
type Consumer struct {
	rc   streamClient
	cfg  config.WorkerConfig
	jobs Recorder
	log  *zap.Logger
}

func NewConsumer(rc streamClient, cfg config.WorkerConfig, jobs Recorder, log *zap.Logger) *Consumer {
	return &Consumer{rc: rc, cfg: cfg, jobs: jobs, log: log.Named("response-consumer")}
}

func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rc.XGroupCreateMkStream(ctx, c.cfg.ResponseStream, c.cfg.Group, "0").Err()
	// BUSYGROUP just means the group already exists.
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrap(err, "create consumer group")
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.log.Info("starting completion consumer",
		zap.String("stream", c.cfg.ResponseStream),
		zap.String("group", c.cfg.Group),
		zap.Int("workers", c.cfg.Workers),
	)

	c.autoClaim(ctx)

	errCh := make(chan error, c.cfg.Workers)
	for i := 0; i < c.cfg.Workers; i++ {
		go func() { errCh <- c.loop(ctx) }()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// autoClaim adopts messages left pending by consumers that died before
// acknowledging and applies them, so completions survive restarts. Claimed
// entries never come back from XReadGroup with ">", so they must be handled
// here or they are lost.
func (c *Consumer) autoClaim(ctx context.Context) {
	next := "0-0"

	minIdle := 30 * time.Second
	if t := c.cfg.BlockTimeout * 6; t > minIdle {
		minIdle = t
	}

	for {
		msgs, start, err := c.rc.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.ResponseStream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  minIdle,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil {
			return
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
		// A "0-0" cursor means the scan of the pending list is complete.
		if len(msgs) == 0 || start == "0-0" {
			return
		}
		next = start
	}
}

func (c *Consumer) loop(ctx context.Context) error {
	for {
		streams, err := c.rc.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.ResponseStream, ">"},
			Count:    1,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		for _, s := range streams {
			for _, m := range s.Messages {
				c.handle(ctx, m)
			}
		}
	}
}

// handle always acknowledges: a completion that cannot be applied because of
// a payload bug would otherwise be redelivered forever. Store failures are
// reported, not retried; the worker fleet redelivers on its own schedule.
func (c *Consumer) handle(ctx context.Context, m redis.XMessage) {
	defer c.rc.XAck(ctx, c.cfg.ResponseStream, c.cfg.Group, m.ID)

	raw, ok := m.Values["payload"].(string)
	if !ok {
		c.log.Warn("completion message without payload field", zap.String("id", m.ID))
		sentry.CaptureMessage("completion message without payload field")
		return
	}

	var msg CompletionMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		c.log.Warn("unparseable completion message", zap.String("id", m.ID), zap.Error(err))
		sentry.CaptureException(err)
		return
	}

	if err := ApplyCompletion(ctx, c.jobs, msg); err != nil {
		c.log.Error("apply completion", zap.String("jobId", msg.JobID), zap.Error(err))
		sentry.CaptureException(err)
	}
}

// ApplyCompletion maps one completion report onto the job store. The primary
// and audio branches are independent: a message may report primary failure
// and audio success, and both updates land.
func ApplyCompletion(ctx context.Context, jobs Recorder, msg CompletionMessage) error {
	assetID, err := uuid.Parse(msg.JobID)
	if err != nil {
		return errors.Wrapf(err, "completion with bad job id %q", msg.JobID)
	}

	var result error
	if msg.Success {
		result = multierr.Append(result, jobs.RecordGenerationSuccess(ctx, assetID))
	} else {
		result = multierr.Append(result, jobs.RecordGenerationError(ctx, assetID, messageOrDefault(msg.ErrorMessage)))
	}

	// An absent audio outcome means the job has no audio track, not failure.
	if msg.AudioSuccess != nil {
		if *msg.AudioSuccess {
			result = multierr.Append(result, jobs.RecordAudioSuccess(ctx, assetID))
		} else {
			result = multierr.Append(result, jobs.RecordAudioError(ctx, assetID, messageOrDefault(msg.AudioErrorMessage)))
		}
	}
	return result
}

func messageOrDefault(msg *string) string {
	if msg == nil || *msg == "" {
		return noErrorMessage
	}
	return *msg
}
