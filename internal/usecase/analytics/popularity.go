package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/metrics"
)

// scanPageSize ограничивает размер страницы при обходе каталога в батчах.
const scanPageSize = 100

// RecomputeSummary — итог пересчёта популярности.
type RecomputeSummary struct {
	Updated int
	Failed  int
}

// Aggregator выполняет полный пересчёт популярности по журналу взаимодействий.
type Aggregator struct {
	content   domain.ContentStore
	events    domain.EngagementStore
	analytics domain.AnalyticsEventRepo
	log       zerolog.Logger
	now       func() time.Time
}

// NewAggregator создаёт агрегатор популярности.
func NewAggregator(content domain.ContentStore, events domain.EngagementStore, analytics domain.AnalyticsEventRepo, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		content:   content,
		events:    events,
		analytics: analytics,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Recompute пересчитывает рейтинг каждого материала с нуля по формуле
// views + 2*saves + reactions за скользящее окно. Запись — абсолютная
// перезапись, повторный запуск по тому же журналу даёт те же значения.
// Ошибка по отдельному материалу логируется и не прерывает проход.
func (a *Aggregator) Recompute(ctx context.Context, windowDays int) (RecomputeSummary, error) {
	start := a.now()
	defer func() {
		metrics.PopularityRecomputeSeconds.Observe(time.Since(start).Seconds())
	}()

	windowStart := start.Add(-time.Duration(windowDays) * 24 * time.Hour)
	aggregates, err := a.events.AggregateByContent(ctx, windowStart)
	if err != nil {
		return RecomputeSummary{}, fmt.Errorf("агрегация взаимодействий: %w", err)
	}
	scores := make(map[string]int64, len(aggregates))
	for _, agg := range aggregates {
		scores[agg.ContentID] = agg.PopularityScore()
	}

	var summary RecomputeSummary
	for skip := 0; ; skip += scanPageSize {
		page, err := a.content.FindByFilter(ctx, domain.ContentFilter{
			Sort:  domain.ContentSortPublishedDesc,
			Skip:  skip,
			Limit: scanPageSize,
		})
		if err != nil {
			return summary, fmt.Errorf("обход каталога: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			score := scores[item.ID]
			if err := a.content.UpdateScore(ctx, item.ID, score); err != nil {
				summary.Failed++
				metrics.PopularityRecomputeItemErrors.Inc()
				a.log.Warn().Err(err).Str("content_id", item.ID).Msg("recompute: материал пропущен")
				continue
			}
			summary.Updated++
		}
		if len(page) < scanPageSize {
			break
		}
	}

	if a.analytics != nil {
		if err := a.analytics.RecordAnalyticsEvent(ctx, domain.AnalyticsEvent{
			Event: domain.AnalyticsEventRecomputeCompleted,
			Metadata: map[string]any{
				"window_days": windowDays,
				"updated":     summary.Updated,
				"failed":      summary.Failed,
			},
			OccurredAt: a.now(),
		}); err != nil {
			a.log.Warn().Err(err).Msg("recompute: событие аналитики не записано")
		}
	}
	return summary, nil
}
