package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"newshub-backend/internal/adapters/repo"
	"newshub-backend/internal/infra/cache"
	"newshub-backend/internal/infra/config"
	"newshub-backend/internal/infra/db"
	infralog "newshub-backend/internal/infra/log"
	"newshub-backend/internal/infra/metrics"
	"newshub-backend/internal/usecase/analytics"
)

// runLockTTL защищает от наложения батчей при нескольких репликах.
const runLockTTL = 10 * time.Minute

func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv, "aggregator")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("aggregator: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	runLock := cache.NewRedis(redisClient)

	store := repo.NewPostgres(pool)
	aggregator := analytics.NewAggregator(store, store, store, logger.With().Str("component", "popularity").Logger())
	extractor := analytics.NewExtractor(store)

	go metrics.StartServer(ctx, logger, ":"+strconv.Itoa(cfg.Port))

	runBatch := func() {
		err := runLock.Once(ctx, "aggregator:batch", runLockTTL, func() error {
			summary, err := aggregator.Recompute(ctx, cfg.Batch.WindowDays)
			if err != nil {
				return err
			}
			logger.Info().
				Int("updated", summary.Updated).
				Int("failed", summary.Failed).
				Msg("пересчёт популярности завершён")

			topics, err := extractor.ExtractTrending(ctx, cfg.Batch.WindowDays, cfg.Batch.TrendingTopN)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(topics)
			if err != nil {
				return err
			}
			cacheKey := "trending:" + strconv.Itoa(cfg.Batch.WindowDays) + ":" + strconv.Itoa(cfg.Batch.TrendingTopN)
			ttl := time.Duration(cfg.Batch.TrendingTTLSec) * time.Second
			return runLock.Set(ctx, cacheKey, payload, ttl)
		})
		if err != nil {
			logger.Error().Err(err).Msg("aggregator: батч завершился с ошибкой")
		}
	}

	runBatch()

	ticker := time.NewTicker(time.Duration(cfg.Batch.IntervalMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("aggregator: остановка по сигналу")
			return
		case <-ticker.C:
			runBatch()
		}
	}
}
