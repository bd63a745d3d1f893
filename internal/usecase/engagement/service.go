package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/metrics"
	"newshub-backend/internal/usecase/access"
)

var (
	// ErrReactionRequired возвращается для REACT без типа реакции.
	ErrReactionRequired = errors.New("не указан тип реакции")
	// ErrUnknownKind возвращается для неизвестного типа взаимодействия.
	ErrUnknownKind = errors.New("неизвестный тип взаимодействия")
)

// RecordParams описывает входные данные взаимодействия.
type RecordParams struct {
	Kind             domain.EngagementKind
	ReactionType     string
	TimeSpentSeconds int
	Completed        bool
	// Saved задаётся только для SAVE: nil трактуется как сохранение,
	// явный false — как отмену сохранения.
	Saved *bool
}

// Service записывает взаимодействия подписчиков с материалами.
type Service struct {
	content   domain.ContentStore
	events    domain.EngagementStore
	policy    *access.Policy
	analytics domain.AnalyticsEventRepo
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт рекордер взаимодействий.
func NewService(content domain.ContentStore, events domain.EngagementStore, policy *access.Policy, analytics domain.AnalyticsEventRepo, logger zerolog.Logger) *Service {
	return &Service{
		content:   content,
		events:    events,
		policy:    policy,
		analytics: analytics,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record сливает взаимодействие в строку пары (подписчик, материал).
// Повторный VIEW с теми же данными не меняет наблюдаемое состояние строки,
// повторный REACT с тем же типом — no-op (семантика множества).
func (s *Service) Record(ctx context.Context, principal domain.Principal, contentID string, params RecordParams) (domain.EngagementEvent, error) {
	if principal.ID == "" {
		return domain.EngagementEvent{}, domain.ErrUnauthenticated
	}

	item, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return domain.EngagementEvent{}, fmt.Errorf("получение материала: %w", err)
	}
	if err := s.policy.CheckAccess(principal.Tier, item.AccessTier); err != nil {
		return domain.EngagementEvent{}, err
	}

	update, err := s.buildUpdate(params)
	if err != nil {
		return domain.EngagementEvent{}, err
	}

	event, err := s.events.Upsert(ctx, principal.ID, contentID, update)
	if err != nil {
		return domain.EngagementEvent{}, fmt.Errorf("запись взаимодействия: %w", err)
	}

	metrics.IncEngagementEvent(string(params.Kind))
	if s.analytics != nil {
		principalID := principal.ID
		itemID := contentID
		if err := s.analytics.RecordAnalyticsEvent(ctx, domain.AnalyticsEvent{
			Event:       domain.AnalyticsEventEngagementRecorded,
			PrincipalID: &principalID,
			ContentID:   &itemID,
			Metadata:    map[string]any{"kind": string(params.Kind)},
			OccurredAt:  s.now(),
		}); err != nil {
			s.log.Warn().Err(err).Str("content_id", contentID).Msg("engagement: событие аналитики не записано")
		}
	}
	return event, nil
}

func (s *Service) buildUpdate(params RecordParams) (domain.EngagementUpdate, error) {
	switch params.Kind {
	case domain.EngagementKindView:
		readAt := s.now()
		update := domain.EngagementUpdate{
			ReadAt:           &readAt,
			TimeSpentSeconds: params.TimeSpentSeconds,
		}
		if params.Completed {
			completed := true
			update.Completed = &completed
		}
		return update, nil
	case domain.EngagementKindSave:
		saved := true
		if params.Saved != nil {
			saved = *params.Saved
		}
		return domain.EngagementUpdate{Saved: &saved}, nil
	case domain.EngagementKindReact:
		if params.ReactionType == "" {
			return domain.EngagementUpdate{}, ErrReactionRequired
		}
		return domain.EngagementUpdate{AddReactions: []string{params.ReactionType}}, nil
	}
	return domain.EngagementUpdate{}, ErrUnknownKind
}
