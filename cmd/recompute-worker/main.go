package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"newshub-backend/internal/adapters/repo"
	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/config"
	"newshub-backend/internal/infra/db"
	infralog "newshub-backend/internal/infra/log"
	"newshub-backend/internal/infra/metrics"
	"newshub-backend/internal/infra/queue"
	"newshub-backend/internal/usecase/analytics"
)

func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv, "recompute-worker")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("recompute-worker: нет подключения к БД")
	}
	defer pool.Close()

	var jobs domain.RecomputeQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitRecomputeQueue(cfg.AMQPURL, cfg.Queues.Recompute)
		if err != nil {
			log.Fatal().Err(err).Msg("recompute-worker: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		jobs = queue.NewRedisRecomputeQueue(redisClient, cfg.Queues.Recompute)
	}

	store := repo.NewPostgres(pool)
	aggregator := analytics.NewAggregator(store, store, store, logger.With().Str("component", "popularity").Logger())

	go metrics.StartServer(ctx, logger, ":"+strconv.Itoa(cfg.Port))

	logger.Info().Str("queue", cfg.Queues.Recompute).Msg("recompute-worker запущен")
	for {
		job, ack, err := jobs.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("recompute-worker: остановка по сигналу")
				return
			}
			logger.Error().Err(err).Msg("recompute-worker: ошибка чтения очереди")
			continue
		}

		windowDays := job.WindowDays
		if windowDays <= 0 {
			windowDays = cfg.Batch.WindowDays
		}

		summary, err := aggregator.Recompute(ctx, windowDays)
		if err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("recompute-worker: пересчёт не удался")
			if ackErr := ack(false); ackErr != nil {
				logger.Error().Err(ackErr).Str("job_id", job.ID).Msg("recompute-worker: не удалось вернуть задачу")
			}
			continue
		}

		logger.Info().
			Str("job_id", job.ID).
			Str("cause", string(job.Cause)).
			Int("updated", summary.Updated).
			Int("failed", summary.Failed).
			Msg("пересчёт по задаче завершён")
		if ackErr := ack(true); ackErr != nil {
			logger.Error().Err(ackErr).Str("job_id", job.ID).Msg("recompute-worker: не удалось подтвердить задачу")
		}
	}
}
