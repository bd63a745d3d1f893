package recommend

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/usecase/access"
)

type fakeContentStore struct {
	items []domain.ContentItem
}

func containsTier(tiers []domain.ContentTier, tier domain.ContentTier) bool {
	for _, t := range tiers {
		if t == tier {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func matchesInterests(item domain.ContentItem, filter domain.ContentFilter) bool {
	if !filter.HasInterestFacets() {
		return true
	}
	return overlaps(item.Categories, filter.CategoryIn) ||
		overlaps(item.Regions, filter.RegionIn) ||
		overlaps(item.Topics, filter.TopicIn) ||
		(item.Source != "" && overlaps([]string{item.Source}, filter.SourceIn)) ||
		(item.Author != "" && overlaps([]string{item.Author}, filter.AuthorIn))
}

func (f *fakeContentStore) FindByFilter(_ context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error) {
	var out []domain.ContentItem
	for _, item := range f.items {
		if len(filter.TierIn) > 0 && !containsTier(filter.TierIn, item.AccessTier) {
			continue
		}
		if !matchesInterests(item, filter) {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if filter.Sort == domain.ContentSortPopularityDesc {
			return out[i].PopularityScore > out[j].PopularityScore
		}
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeContentStore) GetByID(_ context.Context, id string) (domain.ContentItem, error) {
	for _, item := range f.items {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.ContentItem{}, domain.ErrNotFound
}

func (f *fakeContentStore) Insert(_ context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	return item, nil
}
func (f *fakeContentStore) UpdateScore(context.Context, string, int64) error      { return nil }
func (f *fakeContentStore) UpdateRelated(context.Context, string, []string) error { return nil }

type fakeEngagementStore struct {
	history map[string][]string
}

func (f *fakeEngagementStore) Upsert(context.Context, string, string, domain.EngagementUpdate) (domain.EngagementEvent, error) {
	return domain.EngagementEvent{}, nil
}

func (f *fakeEngagementStore) FindByPrincipal(_ context.Context, principalID string) ([]domain.EngagementEvent, error) {
	var out []domain.EngagementEvent
	for _, contentID := range f.history[principalID] {
		out = append(out, domain.EngagementEvent{PrincipalID: principalID, ContentID: contentID})
	}
	return out, nil
}

func (f *fakeEngagementStore) AggregateByContent(context.Context, time.Time) ([]domain.ContentAggregate, error) {
	return nil, nil
}

func tierPtr(t domain.SubscriberTier) *domain.SubscriberTier { return &t }

func newTestService(content *fakeContentStore, events *fakeEngagementStore) *Service {
	if events == nil {
		events = &fakeEngagementStore{}
	}
	return NewService(content, events, access.NewPolicy(), zerolog.Nop())
}

func catalogFreeTechScenario(now time.Time) *fakeContentStore {
	return &fakeContentStore{items: []domain.ContentItem{
		{ID: "tech-1", AccessTier: domain.ContentTierFree, Categories: []string{"tech"}, PublishedAt: now.Add(-1 * time.Hour)},
		{ID: "tech-2", AccessTier: domain.ContentTierFree, Categories: []string{"tech"}, PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "tech-3", AccessTier: domain.ContentTierFree, Categories: []string{"tech"}, PublishedAt: now.Add(-3 * time.Hour)},
		{ID: "premium-1", AccessTier: domain.ContentTierPremium, Categories: []string{"tech"}, PublishedAt: now},
		{ID: "premium-2", AccessTier: domain.ContentTierPremium, Categories: []string{"tech"}, PublishedAt: now},
		{ID: "filler-1", AccessTier: domain.ContentTierFree, Categories: []string{"sports"}, PopularityScore: 30, PublishedAt: now.Add(-5 * time.Hour)},
		{ID: "filler-2", AccessTier: domain.ContentTierFree, Categories: []string{"travel"}, PopularityScore: 20, PublishedAt: now.Add(-6 * time.Hour)},
		{ID: "filler-3", AccessTier: domain.ContentTierFree, Categories: []string{"food"}, PopularityScore: 10, PublishedAt: now.Add(-7 * time.Hour)},
	}}
}

func TestComposeFreeTechScenario(t *testing.T) {
	now := time.Now().UTC()
	service := newTestService(catalogFreeTechScenario(now), nil)

	principal := domain.Principal{
		ID:        "p1",
		Tier:      tierPtr(domain.SubscriberTierFree),
		Interests: domain.InterestProfile{Categories: []string{"tech"}},
	}
	result, err := service.Compose(context.Background(), principal, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result) != 5 {
		t.Fatalf("ожидали 5 материалов, получили %d", len(result))
	}
	// Первыми идут все free-tech по свежести, затем добор по популярности.
	expected := []string{"tech-1", "tech-2", "tech-3", "filler-1", "filler-2"}
	for i, id := range expected {
		if result[i].ID != id {
			t.Fatalf("позиция %d: ожидали %s, получили %s", i, id, result[i].ID)
		}
	}
	for _, item := range result {
		if item.AccessTier != domain.ContentTierFree {
			t.Fatalf("premium-материал просочился в ленту free-подписчика: %s", item.ID)
		}
	}
}

func TestComposeExcludesHistoryAndDuplicates(t *testing.T) {
	now := time.Now().UTC()
	content := catalogFreeTechScenario(now)
	events := &fakeEngagementStore{history: map[string][]string{
		"p1": {"tech-1", "filler-1"},
	}}
	service := newTestService(content, events)

	principal := domain.Principal{
		ID:        "p1",
		Tier:      tierPtr(domain.SubscriberTierFree),
		Interests: domain.InterestProfile{Categories: []string{"tech"}},
	}
	result, err := service.Compose(context.Background(), principal, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	seen := make(map[string]struct{})
	for _, item := range result {
		if item.ID == "tech-1" || item.ID == "filler-1" {
			t.Fatalf("материал из истории попал в ленту: %s", item.ID)
		}
		if _, dup := seen[item.ID]; dup {
			t.Fatalf("дубликат в ленте: %s", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
}

func TestComposeEmptyProfileGivesFeatured(t *testing.T) {
	now := time.Now().UTC()
	service := newTestService(catalogFreeTechScenario(now), nil)

	principal := domain.Principal{ID: "p1", Tier: tierPtr(domain.SubscriberTierFree)}
	result, err := service.Compose(context.Background(), principal, 3)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("ожидали 3 материала, получили %d", len(result))
	}
	// Без профиля — просто свежие материалы, доступные тарифу.
	if result[0].ID != "tech-1" {
		t.Fatalf("ожидали свежайший доступный материал первым, получили %s", result[0].ID)
	}
}

func TestComposeAnonymousSeesOnlyFree(t *testing.T) {
	now := time.Now().UTC()
	service := newTestService(catalogFreeTechScenario(now), nil)

	result, err := service.Compose(context.Background(), domain.Principal{}, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result) == 0 {
		t.Fatalf("аноним должен получать free-материалы")
	}
	for _, item := range result {
		if item.AccessTier != domain.ContentTierFree {
			t.Fatalf("анониму доступен только free, получили %s", item.AccessTier)
		}
	}
}

func TestComposeOrganizationSeesAllTiers(t *testing.T) {
	now := time.Now().UTC()
	content := &fakeContentStore{items: []domain.ContentItem{
		{ID: "org-1", AccessTier: domain.ContentTierOrganization, PublishedAt: now},
		{ID: "premium-1", AccessTier: domain.ContentTierPremium, PublishedAt: now.Add(-time.Hour)},
		{ID: "free-1", AccessTier: domain.ContentTierFree, PublishedAt: now.Add(-2 * time.Hour)},
	}}
	service := newTestService(content, nil)

	principal := domain.Principal{ID: "p1", Tier: tierPtr(domain.SubscriberTierOrganization)}
	result, err := service.Compose(context.Background(), principal, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("organization-тариф видит все уровни, получили %d", len(result))
	}
}

func TestComposeDeterministic(t *testing.T) {
	now := time.Now().UTC()
	service := newTestService(catalogFreeTechScenario(now), nil)
	principal := domain.Principal{
		ID:        "p1",
		Tier:      tierPtr(domain.SubscriberTierFree),
		Interests: domain.InterestProfile{Categories: []string{"tech"}},
	}

	first, err := service.Compose(context.Background(), principal, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := service.Compose(context.Background(), principal, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("повторный вызов дал другой размер")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("повторный вызов дал другой порядок на позиции %d", i)
		}
	}
}
