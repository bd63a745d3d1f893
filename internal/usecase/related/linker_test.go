package related

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
)

type fakeContentStore struct {
	items   []domain.ContentItem
	related map[string][]string
}

func newFakeContentStore(items ...domain.ContentItem) *fakeContentStore {
	return &fakeContentStore{items: items, related: make(map[string][]string)}
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

func (f *fakeContentStore) FindByFilter(_ context.Context, filter domain.ContentFilter) ([]domain.ContentItem, error) {
	var out []domain.ContentItem
	for _, item := range f.items {
		if filter.HasInterestFacets() &&
			!overlaps(item.Categories, filter.CategoryIn) && !overlaps(item.Topics, filter.TopicIn) {
			continue
		}
		out = append(out, item)
	}
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
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeContentStore) UpdateScore(context.Context, string, int64) error { return nil }

func (f *fakeContentStore) UpdateRelated(_ context.Context, id string, relatedIDs []string) error {
	f.related[id] = relatedIDs
	return nil
}

func TestSelectRelatedCapAndOrder(t *testing.T) {
	now := time.Now().UTC()
	item := domain.ContentItem{ID: "new", Categories: []string{"tech"}}
	candidates := []domain.ContentItem{
		{ID: "old", PublishedAt: now.Add(-72 * time.Hour)},
		{ID: "new", PublishedAt: now},
		{ID: "fresh", PublishedAt: now.Add(-time.Hour)},
		{ID: "mid", PublishedAt: now.Add(-24 * time.Hour)},
		{ID: "older", PublishedAt: now.Add(-96 * time.Hour)},
	}

	ids := SelectRelated(item, candidates, domain.MaxRelatedItems)
	if len(ids) != 3 {
		t.Fatalf("ожидали 3 связи, получили %d", len(ids))
	}
	if ids[0] != "fresh" || ids[1] != "mid" || ids[2] != "old" {
		t.Fatalf("ожидали порядок по убыванию даты, получили %v", ids)
	}
}

func TestIngestLinksBySharedCategoryOrTopic(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeContentStore(
		domain.ContentItem{ID: "tech-1", Categories: []string{"tech"}, PublishedAt: now.Add(-time.Hour)},
		domain.ContentItem{ID: "ai-1", Topics: []string{"AI"}, PublishedAt: now.Add(-2 * time.Hour)},
		domain.ContentItem{ID: "sports-1", Categories: []string{"sports"}, PublishedAt: now},
	)
	linker := NewLinker(store, nil, zerolog.Nop())

	stored, err := linker.Ingest(context.Background(), domain.ContentItem{
		Title:      "обзор",
		Categories: []string{"tech"},
		Topics:     []string{"AI"},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stored.ID == "" {
		t.Fatalf("ожидали сгенерированный идентификатор")
	}
	if len(stored.RelatedIDs) != 2 {
		t.Fatalf("ожидали 2 связи (tech-1, ai-1), получили %v", stored.RelatedIDs)
	}
	for _, id := range stored.RelatedIDs {
		if id == "sports-1" {
			t.Fatalf("sports-1 не делит ни категории, ни темы")
		}
	}
	if got := store.related[stored.ID]; len(got) != 2 {
		t.Fatalf("связи должны быть записаны в стор, получили %v", got)
	}
}

func TestIngestWithoutFacetsLeavesNoLinks(t *testing.T) {
	store := newFakeContentStore(
		domain.ContentItem{ID: "tech-1", Categories: []string{"tech"}},
	)
	linker := NewLinker(store, nil, zerolog.Nop())

	stored, err := linker.Ingest(context.Background(), domain.ContentItem{Title: "без тегов"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(stored.RelatedIDs) != 0 {
		t.Fatalf("материал без категорий и тем не должен получать связи")
	}
}
