package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tradeguard/backend-quotes/internal/common"
	"github.com/tradeguard/backend-quotes/internal/config"
	"github.com/tradeguard/backend-quotes/internal/obs"
	"github.com/tradeguard/backend-quotes/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "quotes")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	concurrency := envInt("WORKER_CONCURRENCY", 10)
	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: concurrency,
		Logger:      asynqZerolog{logger},
	})

	deliverer := &relay.Handler{
		Client:        relay.HTTPClient(int(cfg.RelayTimeout/time.Millisecond), false),
		DefaultURL:    cfg.MakeWebhookURL,
		APIKey:        cfg.MakeAPIKey,
		SigningSecret: cfg.MakeSigningSecret,
		Log:           logger,
	}

	mux := asynq.NewServeMux()
	mux.Handle(relay.TypeDeliver, deliverer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info().Int("concurrency", concurrency).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

// asynqZerolog adapts zerolog to the asynq logging interface.
type asynqZerolog struct {
	log zerolog.Logger
}

func (l asynqZerolog) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqZerolog) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqZerolog) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqZerolog) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqZerolog) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	return common.AtoiDefault(strings.TrimSpace(os.Getenv(key)), fallback)
}
