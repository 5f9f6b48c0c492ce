package queue

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Producer appends generation requests to the request stream. Workers
// consume them out of process.
type Producer struct {
	r      redis.UniversalClient
	stream string
	maxLen int64
}

func NewProducer(r redis.UniversalClient, stream string, maxLen int64) *Producer {
	return &Producer{r: r, stream: stream, maxLen: maxLen}
}

func (p *Producer) PublishRequest(ctx context.Context, req GenerationRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal generation request")
	}
	err = p.r.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"payload": string(raw)},
	}).Err()
	return errors.Wrap(err, "publish generation request")
}
