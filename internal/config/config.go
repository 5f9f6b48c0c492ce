package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	APIAddr string `env:"API_ADDR" envDefault:":8080"`

	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	Worker WorkerConfig
	S3     S3Config

	// Shared secret for the video provider's webhook signatures. Validated at
	// startup so a missing secret fails fast instead of on the first callback.
	WebhookSecret string `env:"VIDEO_WEBHOOK_SECRET,notEmpty"`

	SentryDSN string `env:"SENTRY_DSN"`
}

// WorkerConfig describes the Redis Streams used to talk to the external
// worker fleet.
type WorkerConfig struct {
	RequestStream  string        `env:"REQUEST_STREAM" envDefault:"mediaworks:requests"`
	ResponseStream string        `env:"RESPONSE_STREAM" envDefault:"mediaworks:responses"`
	Group          string        `env:"RESPONSE_GROUP" envDefault:"mediaworks"`
	Consumer       string        `env:"RESPONSE_CONSUMER" envDefault:"mediaworks-api"`
	Workers        int           `env:"RESPONSE_WORKERS" envDefault:"2"`
	MaxLen         int64         `env:"REQUEST_STREAM_MAXLEN" envDefault:"10000"`
	BlockTimeout   time.Duration `env:"RESPONSE_BLOCK_TIMEOUT" envDefault:"5s"`
}

type S3Config struct {
	Bucket      string `env:"S3_BUCKET,notEmpty"`
	Region      string `env:"S3_REGION" envDefault:"auto"`
	Endpoint    string `env:"S3_ENDPOINT"`
	AccessKeyID string `env:"S3_ACCESS_KEY_ID"`
	SecretKey   string `env:"S3_SECRET_ACCESS_KEY"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate catches misconfigurations env tags cannot express.
func (c Config) Validate() error {
	if c.Worker.RequestStream == c.Worker.ResponseStream {
		return fmt.Errorf("config: request and response streams must differ (both %q)", c.Worker.RequestStream)
	}
	if c.Worker.Workers < 1 {
		return fmt.Errorf("config: RESPONSE_WORKERS must be at least 1, got %d", c.Worker.Workers)
	}
	return nil
}
