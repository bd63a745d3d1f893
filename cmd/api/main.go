package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"newshub-backend/internal/adapters/repo"
	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/cache"
	"newshub-backend/internal/infra/config"
	"newshub-backend/internal/infra/db"
	httpinfra "newshub-backend/internal/infra/http"
	infralog "newshub-backend/internal/infra/log"
	"newshub-backend/internal/infra/metrics"
	"newshub-backend/internal/infra/queue"
	"newshub-backend/internal/usecase/access"
	"newshub-backend/internal/usecase/analytics"
	"newshub-backend/internal/usecase/engagement"
	"newshub-backend/internal/usecase/orgs"
	"newshub-backend/internal/usecase/recommend"
	"newshub-backend/internal/usecase/related"
)

func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	store := repo.NewPostgres(pool)
	policy := access.NewPolicy()

	var recomputeQueue domain.RecomputeQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitRecomputeQueue(cfg.AMQPURL, cfg.Queues.Recompute)
		if err != nil {
			log.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		recomputeQueue = rabbit
	} else {
		recomputeQueue = queue.NewRedisRecomputeQueue(redisClient, cfg.Queues.Recompute)
	}

	handlers := &apiHandlers{
		cfg:       cfg,
		policy:    policy,
		content:   store,
		engage:    engagement.NewService(store, store, policy, store, logger.With().Str("component", "engagement").Logger()),
		orgs:      orgs.NewService(store, store, logger.With().Str("component", "orgs").Logger()),
		recommend: recommend.NewService(store, store, policy, logger.With().Str("component", "recommend").Logger()),
		linker:    related.NewLinker(store, store, logger.With().Str("component", "related").Logger()),
		trending:  analytics.NewExtractor(store),
		cache:     cache.NewRedis(redisClient),
		queue:     recomputeQueue,
		log:       logger,
	}

	server := httpinfra.NewServer(logger)
	server.Router.Group(func(r chi.Router) {
		r.Use(httpinfra.PrincipalMiddleware())
		handlers.mount(r)
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: ошибка остановки сервера")
		}
	}()

	if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
		logger.Info().Err(err).Msg("api: сервер остановлен")
	}
}
