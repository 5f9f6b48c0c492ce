package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldscope/mediaworks/cmd/migrate"
	"github.com/fieldscope/mediaworks/internal/access"
	"github.com/fieldscope/mediaworks/internal/config"
	"github.com/fieldscope/mediaworks/internal/filestore"
	"github.com/fieldscope/mediaworks/internal/queue"
	"github.com/fieldscope/mediaworks/internal/service"
	"github.com/fieldscope/mediaworks/internal/storage"
	"github.com/fieldscope/mediaworks/internal/transport/handler"
	"github.com/fieldscope/mediaworks/internal/transport/router"
	"github.com/fieldscope/mediaworks/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			logger.Fatal("sentry init", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Run(cfg.PostgresDSN); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}

	files, err := filestore.New(ctx, cfg.S3)
	if err != nil {
		logger.Fatal("init file store", zap.Error(err))
	}

	store := storage.New(pool)
	gate := access.New(pool)
	producer := queue.NewProducer(rdb, cfg.Worker.RequestStream, cfg.Worker.MaxLen)

	artifacts := service.New(store, producer, files, gate, cfg.Worker.ResponseStream, logger)
	consumer := queue.NewConsumer(rdb, cfg.Worker, artifacts, logger)

	verifier := webhook.NewVerifier(cfg.WebhookSecret)
	webhooks := webhook.NewProcessor(verifier, artifacts, logger)

	h := handler.New(artifacts, webhooks, store, logger)
	srv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: router.New(h, logger),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := consumer.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
