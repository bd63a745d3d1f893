package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/metrics"
	"newshub-backend/internal/usecase/access"
)

const (
	minLimit = 1
	maxLimit = 100
	// maxScan ограничивает размер выборки кандидатов на каждый шаг.
	maxScan = 100
)

// Service собирает персональные ленты рекомендаций.
type Service struct {
	content domain.ContentStore
	events  domain.EngagementStore
	policy  *access.Policy
	log     zerolog.Logger
}

// NewService создаёт композитор рекомендаций.
func NewService(content domain.ContentStore, events domain.EngagementStore, policy *access.Policy, logger zerolog.Logger) *Service {
	return &Service{content: content, events: events, policy: policy, log: logger}
}

// Compose строит ленту: OR-фильтр по граням интересов, пересечённый с
// тарифным фильтром, без уже прочитанных материалов, свежие первыми;
// недобор дополняется по популярности. Пустой профиль интересов даёт
// «избранное» — тарифную выборку без граней. Результат детерминирован
// для фиксированного снимка каталога, истории и рейтингов.
func (s *Service) Compose(ctx context.Context, principal domain.Principal, limit int) ([]domain.ContentItem, error) {
	start := time.Now()
	metrics.RecommendationRequestsTotal.Inc()
	defer func() {
		metrics.RecommendationBuildSeconds.Observe(time.Since(start).Seconds())
	}()

	if limit < minLimit {
		limit = minLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	seen, err := s.historySet(ctx, principal)
	if err != nil {
		return nil, err
	}

	tiers := s.policy.AllowedContentTiers(principal.Tier)

	primaryFilter := domain.ContentFilter{
		TierIn: tiers,
		Sort:   domain.ContentSortPublishedDesc,
		Limit:  maxScan,
	}
	if !principal.Interests.IsEmpty() {
		primaryFilter.CategoryIn = principal.Interests.Categories
		primaryFilter.RegionIn = principal.Interests.Regions
		primaryFilter.TopicIn = principal.Interests.Topics
		primaryFilter.SourceIn = principal.Interests.Sources
		primaryFilter.AuthorIn = principal.Interests.FollowedAuthors
	}
	primary, err := s.content.FindByFilter(ctx, primaryFilter)
	if err != nil {
		return nil, fmt.Errorf("выборка по интересам: %w", err)
	}

	result := make([]domain.ContentItem, 0, limit)
	chosen := make(map[string]struct{}, limit)
	appendCandidates(&result, chosen, seen, primary, limit)

	if len(result) < limit {
		backfill, err := s.content.FindByFilter(ctx, domain.ContentFilter{
			TierIn: tiers,
			Sort:   domain.ContentSortPopularityDesc,
			Limit:  maxScan,
		})
		if err != nil {
			return nil, fmt.Errorf("добор по популярности: %w", err)
		}
		appendCandidates(&result, chosen, seen, backfill, limit)
	}

	return result, nil
}

func (s *Service) historySet(ctx context.Context, principal domain.Principal) (map[string]struct{}, error) {
	if principal.ID == "" {
		return nil, nil
	}
	history, err := s.events.FindByPrincipal(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("история взаимодействий: %w", err)
	}
	seen := make(map[string]struct{}, len(history))
	for _, row := range history {
		seen[row.ContentID] = struct{}{}
	}
	return seen, nil
}

func appendCandidates(result *[]domain.ContentItem, chosen map[string]struct{}, seen map[string]struct{}, candidates []domain.ContentItem, limit int) {
	for _, item := range candidates {
		if len(*result) >= limit {
			return
		}
		if _, ok := chosen[item.ID]; ok {
			continue
		}
		if _, ok := seen[item.ID]; ok {
			continue
		}
		chosen[item.ID] = struct{}{}
		*result = append(*result, item)
	}
}
