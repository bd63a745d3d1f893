package related

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
)

// Linker связывает новый материал с тематически близкими существующими.
// Запускается один раз при инжесте; ссылки старых материалов задним числом
// не пересматриваются — осознанный компромисс в пользу дешёвого инжеста.
type Linker struct {
	content   domain.ContentStore
	analytics domain.AnalyticsEventRepo
	log       zerolog.Logger
	cap       int
}

// NewLinker создаёт линковщик с лимитом связей по умолчанию.
func NewLinker(content domain.ContentStore, analytics domain.AnalyticsEventRepo, logger zerolog.Logger) *Linker {
	return &Linker{content: content, analytics: analytics, log: logger, cap: domain.MaxRelatedItems}
}

// Ingest сохраняет новый материал и сразу проставляет ему связи.
func (l *Linker) Ingest(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.PublishedAt.IsZero() {
		item.PublishedAt = time.Now().UTC()
	}
	item.RelatedIDs = nil
	item.PopularityScore = 0

	stored, err := l.content.Insert(ctx, item)
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("сохранение материала: %w", err)
	}

	relatedIDs, err := l.LinkRelated(ctx, stored)
	if err != nil {
		return domain.ContentItem{}, err
	}
	stored.RelatedIDs = relatedIDs

	if l.analytics != nil {
		contentID := stored.ID
		if err := l.analytics.RecordAnalyticsEvent(ctx, domain.AnalyticsEvent{
			Event:     domain.AnalyticsEventContentIngested,
			ContentID: &contentID,
			Metadata:  map[string]any{"related_count": len(relatedIDs)},
		}); err != nil {
			l.log.Warn().Err(err).Str("content_id", stored.ID).Msg("related: событие аналитики не записано")
		}
	}
	return stored, nil
}

// LinkRelated подбирает до cap материалов, делящих с новым хотя бы одну
// категорию или тему, свежие первыми, и записывает связи.
func (l *Linker) LinkRelated(ctx context.Context, item domain.ContentItem) ([]string, error) {
	if len(item.Categories) == 0 && len(item.Topics) == 0 {
		return nil, l.content.UpdateRelated(ctx, item.ID, nil)
	}

	candidates, err := l.content.FindByFilter(ctx, domain.ContentFilter{
		CategoryIn: item.Categories,
		TopicIn:    item.Topics,
		Sort:       domain.ContentSortPublishedDesc,
		Limit:      l.cap + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("подбор кандидатов: %w", err)
	}

	relatedIDs := SelectRelated(item, candidates, l.cap)
	if err := l.content.UpdateRelated(ctx, item.ID, relatedIDs); err != nil {
		return nil, fmt.Errorf("запись связей: %w", err)
	}
	return relatedIDs, nil
}

// SelectRelated выбирает идентификаторы связанных материалов: исключает сам
// материал, сортирует кандидатов по дате публикации по убыванию и обрезает
// до лимита. Чистая функция.
func SelectRelated(item domain.ContentItem, candidates []domain.ContentItem, limit int) []string {
	filtered := make([]domain.ContentItem, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == item.ID {
			continue
		}
		filtered = append(filtered, candidate)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].PublishedAt.After(filtered[j].PublishedAt)
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	ids := make([]string, 0, len(filtered))
	for _, candidate := range filtered {
		ids = append(ids, candidate.ID)
	}
	return ids
}
