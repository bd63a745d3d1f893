package engagement

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/usecase/access"
)

type stubContentStore struct {
	items map[string]domain.ContentItem
}

func (s *stubContentStore) FindByFilter(context.Context, domain.ContentFilter) ([]domain.ContentItem, error) {
	return nil, nil
}

func (s *stubContentStore) GetByID(_ context.Context, id string) (domain.ContentItem, error) {
	item, ok := s.items[id]
	if !ok {
		return domain.ContentItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (s *stubContentStore) Insert(_ context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	return item, nil
}
func (s *stubContentStore) UpdateScore(context.Context, string, int64) error     { return nil }
func (s *stubContentStore) UpdateRelated(context.Context, string, []string) error { return nil }

// fakeEngagementStore повторяет merge-семантику SQL-апсерта в памяти.
type fakeEngagementStore struct {
	rows map[string]domain.EngagementEvent
}

func newFakeEngagementStore() *fakeEngagementStore {
	return &fakeEngagementStore{rows: make(map[string]domain.EngagementEvent)}
}

func (f *fakeEngagementStore) Upsert(_ context.Context, principalID, contentID string, update domain.EngagementUpdate) (domain.EngagementEvent, error) {
	key := principalID + "|" + contentID
	row, ok := f.rows[key]
	if !ok {
		row = domain.EngagementEvent{PrincipalID: principalID, ContentID: contentID}
	}
	if update.ReadAt != nil && row.ReadAt == nil {
		ts := *update.ReadAt
		row.ReadAt = &ts
	}
	if update.TimeSpentSeconds > row.TimeSpentSeconds {
		row.TimeSpentSeconds = update.TimeSpentSeconds
	}
	if update.Completed != nil && *update.Completed {
		row.Completed = true
	}
	if len(update.AddReactions) > 0 {
		seen := make(map[string]struct{}, len(row.Reactions)+len(update.AddReactions))
		for _, r := range row.Reactions {
			seen[r] = struct{}{}
		}
		for _, r := range update.AddReactions {
			seen[r] = struct{}{}
		}
		merged := make([]string, 0, len(seen))
		for r := range seen {
			merged = append(merged, r)
		}
		sort.Strings(merged)
		row.Reactions = merged
	}
	if update.Saved != nil {
		row.Saved = *update.Saved
	}
	f.rows[key] = row
	return row, nil
}

func (f *fakeEngagementStore) FindByPrincipal(_ context.Context, principalID string) ([]domain.EngagementEvent, error) {
	var out []domain.EngagementEvent
	for _, row := range f.rows {
		if row.PrincipalID == principalID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeEngagementStore) AggregateByContent(context.Context, time.Time) ([]domain.ContentAggregate, error) {
	return nil, nil
}

func newTestService(events *fakeEngagementStore) *Service {
	content := &stubContentStore{items: map[string]domain.ContentItem{
		"free-1":    {ID: "free-1", AccessTier: domain.ContentTierFree},
		"premium-1": {ID: "premium-1", AccessTier: domain.ContentTierPremium},
	}}
	return NewService(content, events, access.NewPolicy(), nil, zerolog.Nop())
}

func subscriber(tier domain.SubscriberTier) domain.Principal {
	return domain.Principal{ID: "p1", Tier: &tier}
}

func TestRecordViewIdempotent(t *testing.T) {
	events := newFakeEngagementStore()
	service := newTestService(events)

	principal := subscriber(domain.SubscriberTierFree)
	params := RecordParams{Kind: domain.EngagementKindView, TimeSpentSeconds: 30}
	first, err := service.Record(context.Background(), principal, "free-1", params)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if first.ReadAt == nil {
		t.Fatalf("ожидали проставленный read_at")
	}
	if first.TimeSpentSeconds != 30 {
		t.Fatalf("ожидали time_spent 30, получили %d", first.TimeSpentSeconds)
	}

	second, err := service.Record(context.Background(), principal, "free-1", params)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(events.rows) != 1 {
		t.Fatalf("ожидали одну строку, получили %d", len(events.rows))
	}
	if !second.ReadAt.Equal(*first.ReadAt) {
		t.Fatalf("повторный VIEW не должен перезаписывать более ранний read_at")
	}
	if second.TimeSpentSeconds != first.TimeSpentSeconds {
		t.Fatalf("повторный идентичный VIEW изменил строку: time_spent %d -> %d",
			first.TimeSpentSeconds, second.TimeSpentSeconds)
	}
}

func TestRecordReactSetSemantics(t *testing.T) {
	events := newFakeEngagementStore()
	service := newTestService(events)

	principal := subscriber(domain.SubscriberTierFree)
	params := RecordParams{Kind: domain.EngagementKindReact, ReactionType: "like"}
	if _, err := service.Record(context.Background(), principal, "free-1", params); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	row, err := service.Record(context.Background(), principal, "free-1", params)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(row.Reactions) != 1 || row.Reactions[0] != "like" {
		t.Fatalf("ожидали множество {like}, получили %v", row.Reactions)
	}

	row, err = service.Record(context.Background(), principal, "free-1", RecordParams{Kind: domain.EngagementKindReact, ReactionType: "fire"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(row.Reactions) != 2 {
		t.Fatalf("ожидали две реакции, получили %v", row.Reactions)
	}
}

func TestRecordSaveAndUnsave(t *testing.T) {
	events := newFakeEngagementStore()
	service := newTestService(events)

	principal := subscriber(domain.SubscriberTierFree)
	row, err := service.Record(context.Background(), principal, "free-1", RecordParams{Kind: domain.EngagementKindSave})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !row.Saved {
		t.Fatalf("ожидали saved=true")
	}

	unsave := false
	row, err = service.Record(context.Background(), principal, "free-1", RecordParams{Kind: domain.EngagementKindSave, Saved: &unsave})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if row.Saved {
		t.Fatalf("ожидали saved=false после отмены")
	}
}

func TestRecordDeniedByTier(t *testing.T) {
	events := newFakeEngagementStore()
	service := newTestService(events)

	_, err := service.Record(context.Background(), subscriber(domain.SubscriberTierFree), "premium-1", RecordParams{Kind: domain.EngagementKindView})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("ожидали ErrAccessDenied, получили %v", err)
	}

	_, err = service.Record(context.Background(), domain.Principal{}, "free-1", RecordParams{Kind: domain.EngagementKindView})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("ожидали ErrUnauthenticated для анонима, получили %v", err)
	}
}

func TestRecordUnknownContent(t *testing.T) {
	service := newTestService(newFakeEngagementStore())

	_, err := service.Record(context.Background(), subscriber(domain.SubscriberTierFree), "missing", RecordParams{Kind: domain.EngagementKindView})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestRecordValidation(t *testing.T) {
	service := newTestService(newFakeEngagementStore())
	principal := subscriber(domain.SubscriberTierFree)

	if _, err := service.Record(context.Background(), principal, "free-1", RecordParams{Kind: domain.EngagementKindReact}); !errors.Is(err, ErrReactionRequired) {
		t.Fatalf("ожидали ErrReactionRequired, получили %v", err)
	}
	if _, err := service.Record(context.Background(), principal, "free-1", RecordParams{Kind: "share"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("ожидали ErrUnknownKind, получили %v", err)
	}
}
