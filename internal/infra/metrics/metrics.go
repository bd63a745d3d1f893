package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	EngagementEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_events_total",
		Help: "Количество записанных взаимодействий по типам",
	}, []string{"kind"})

	AccessChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_checks_total",
		Help: "Количество проверок доступа по результату",
	}, []string{"result"})

	RecommendationRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recommendation_requests_total",
		Help: "Общее количество запросов рекомендаций",
	})

	RecommendationBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recommendation_build_seconds",
		Help:    "Время сборки списка рекомендаций",
		Buckets: prometheus.DefBuckets,
	})

	PopularityRecomputeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "popularity_recompute_seconds",
		Help:    "Время полного пересчёта популярности",
		Buckets: prometheus.DefBuckets,
	})

	PopularityRecomputeItemErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "popularity_recompute_item_errors_total",
		Help: "Ошибки пересчёта по отдельным материалам",
	})

	TrendingBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trending_build_seconds",
		Help:    "Время выделения трендовых тем",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		EngagementEventsTotal,
		AccessChecksTotal,
		RecommendationRequestsTotal,
		RecommendationBuildSeconds,
		PopularityRecomputeSeconds,
		PopularityRecomputeItemErrors,
		TrendingBuildSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncEngagementEvent увеличивает счётчик взаимодействий данного типа.
func IncEngagementEvent(kind string) {
	EngagementEventsTotal.WithLabelValues(kind).Inc()
}

// IncAccessCheck увеличивает счётчик проверок доступа с данным результатом.
func IncAccessCheck(result string) {
	AccessChecksTotal.WithLabelValues(result).Inc()
}
