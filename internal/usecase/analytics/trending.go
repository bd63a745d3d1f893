package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/metrics"
)

// Extractor выделяет трендовые темы из свежих материалов.
type Extractor struct {
	content domain.ContentStore
	now     func() time.Time
}

// NewExtractor создаёт экстрактор трендов.
func NewExtractor(content domain.ContentStore) *Extractor {
	return &Extractor{
		content: content,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ExtractTrending разворачивает темы материалов, опубликованных в окне,
// и возвращает topN тем по суммарной популярности. Порядок детерминирован:
// суммарная популярность по убыванию, затем количество материалов по
// убыванию, затем имя темы по возрастанию.
func (e *Extractor) ExtractTrending(ctx context.Context, windowDays, topN int) ([]domain.TrendingTopic, error) {
	start := e.now()
	defer func() {
		metrics.TrendingBuildSeconds.Observe(time.Since(start).Seconds())
	}()

	publishedAfter := start.Add(-time.Duration(windowDays) * 24 * time.Hour)
	byTopic := make(map[string]*domain.TrendingTopic)
	for skip := 0; ; skip += scanPageSize {
		page, err := e.content.FindByFilter(ctx, domain.ContentFilter{
			PublishedAfter: &publishedAfter,
			Sort:           domain.ContentSortPublishedDesc,
			Skip:           skip,
			Limit:          scanPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("выборка свежих материалов: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			seen := make(map[string]struct{}, len(item.Topics))
			for _, topic := range item.Topics {
				if _, dup := seen[topic]; dup {
					continue
				}
				seen[topic] = struct{}{}
				entry, ok := byTopic[topic]
				if !ok {
					entry = &domain.TrendingTopic{Topic: topic}
					byTopic[topic] = entry
				}
				entry.Count++
				entry.TotalPopularity += item.PopularityScore
			}
		}
		if len(page) < scanPageSize {
			break
		}
	}

	topics := make([]domain.TrendingTopic, 0, len(byTopic))
	for _, entry := range byTopic {
		topics = append(topics, *entry)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].TotalPopularity != topics[j].TotalPopularity {
			return topics[i].TotalPopularity > topics[j].TotalPopularity
		}
		if topics[i].Count != topics[j].Count {
			return topics[i].Count > topics[j].Count
		}
		return topics[i].Topic < topics[j].Topic
	})
	if topN > 0 && len(topics) > topN {
		topics = topics[:topN]
	}
	return topics, nil
}
