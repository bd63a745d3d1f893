package domain

import (
	"context"
	"time"
)

// ContentSort задаёт порядок выдачи каталога.
type ContentSort string

const (
	// ContentSortPublishedDesc — свежие материалы первыми (вторичный ключ id).
	ContentSortPublishedDesc ContentSort = "published_desc"
	// ContentSortPopularityDesc — популярные материалы первыми (вторичный ключ id).
	ContentSortPopularityDesc ContentSort = "popularity_desc"
)

// ContentFilter описывает выборку каталога. Грани интересов
// (CategoryIn, RegionIn, TopicIn, SourceIn, AuthorIn) объединяются через OR
// между собой и через AND с TierIn и PublishedAfter.
type ContentFilter struct {
	TierIn         []ContentTier
	CategoryIn     []string
	RegionIn       []string
	TopicIn        []string
	SourceIn       []string
	AuthorIn       []string
	PublishedAfter *time.Time
	Sort           ContentSort
	Skip           int
	Limit          int
}

// HasInterestFacets сообщает, задана ли хотя бы одна грань интересов.
func (f ContentFilter) HasInterestFacets() bool {
	return len(f.CategoryIn) > 0 || len(f.RegionIn) > 0 || len(f.TopicIn) > 0 ||
		len(f.SourceIn) > 0 || len(f.AuthorIn) > 0
}

// ContentStore управляет каталогом материалов.
type ContentStore interface {
	FindByFilter(ctx context.Context, filter ContentFilter) ([]ContentItem, error)
	GetByID(ctx context.Context, id string) (ContentItem, error)
	Insert(ctx context.Context, item ContentItem) (ContentItem, error)
	UpdateScore(ctx context.Context, id string, score int64) error
	UpdateRelated(ctx context.Context, id string, relatedIDs []string) error
}

// EngagementStore управляет строками взаимодействий.
type EngagementStore interface {
	// Upsert атомарно сливает дельту в строку пары (principal, content).
	// Повторный вызов с той же дельтой не меняет наблюдаемое состояние.
	Upsert(ctx context.Context, principalID, contentID string, update EngagementUpdate) (EngagementEvent, error)
	FindByPrincipal(ctx context.Context, principalID string) ([]EngagementEvent, error)
	// AggregateByContent считает просмотры, сохранения и реакции по материалам,
	// учитывая только строки с read_at не раньше windowStart.
	AggregateByContent(ctx context.Context, windowStart time.Time) ([]ContentAggregate, error)
}

// MembershipStore управляет членствами в организациях.
type MembershipStore interface {
	CountAdmins(ctx context.Context, organizationID string) (int, error)
	FindRole(ctx context.Context, organizationID, principalID string) (OrgRole, error)
	AddMember(ctx context.Context, membership OrganizationMembership) error
	ListMembers(ctx context.Context, organizationID string, limit, offset int) ([]OrganizationMembership, error)
	// RemoveMemberGuarded удаляет участника в одной транзакции с проверкой
	// последнего админа. Возвращает ErrLastAdminViolation, если удаление
	// оставило бы организацию без админов.
	RemoveMemberGuarded(ctx context.Context, organizationID, principalID string) error
	// ChangeRoleGuarded меняет роль участника под той же транзакционной защитой.
	ChangeRoleGuarded(ctx context.Context, organizationID, principalID string, role OrgRole) error
}

// Cache используется для простых TTL-хранилищ и run-lock батчей.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
