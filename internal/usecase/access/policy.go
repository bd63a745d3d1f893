package access

import (
	"newshub-backend/internal/domain"
)

// Policy решает, открыт ли материал для подписчика.
// Чистая функция поверх авторитетной таблицы, безопасна для конкурентных вызовов.
type Policy struct{}

// NewPolicy создаёт движок проверки доступа.
func NewPolicy() *Policy {
	return &Policy{}
}

// CheckAccess возвращает nil, если тариф открывает уровень материала.
// Для анонима (nil-тариф) платный материал даёт ErrUnauthenticated,
// недостаточный тариф — ErrAccessDenied.
func (p *Policy) CheckAccess(subscriber *domain.SubscriberTier, content domain.ContentTier) error {
	if subscriber == nil {
		if content == domain.ContentTierFree {
			return nil
		}
		return domain.ErrUnauthenticated
	}
	if domain.TierGrantsAccess(*subscriber, content) {
		return nil
	}
	return domain.ErrAccessDenied
}

// AllowedContentTiers возвращает уровни материалов, открытые для тарифа.
// Порядок стабилен: free, premium, organization.
func (p *Policy) AllowedContentTiers(subscriber *domain.SubscriberTier) []domain.ContentTier {
	all := []domain.ContentTier{
		domain.ContentTierFree,
		domain.ContentTierPremium,
		domain.ContentTierOrganization,
	}
	allowed := make([]domain.ContentTier, 0, len(all))
	for _, tier := range all {
		if p.CheckAccess(subscriber, tier) == nil {
			allowed = append(allowed, tier)
		}
	}
	return allowed
}
