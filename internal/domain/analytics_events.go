package domain

import (
	"context"
	"time"
)

// AnalyticsEvent описывает бизнесовое событие, которое сохраняется для последующего анализа.
type AnalyticsEvent struct {
	Event       string
	PrincipalID *string
	ContentID   *string
	Metadata    map[string]any
	OccurredAt  time.Time
}

const (
	// AnalyticsEventEngagementRecorded фиксирует записанное взаимодействие.
	AnalyticsEventEngagementRecorded = "engagement_recorded"
	// AnalyticsEventContentIngested фиксирует приём нового материала.
	AnalyticsEventContentIngested = "content_ingested"
	// AnalyticsEventRecomputeCompleted фиксирует завершение пересчёта популярности.
	AnalyticsEventRecomputeCompleted = "recompute_completed"
	// AnalyticsEventMemberRemoved фиксирует удаление участника организации.
	AnalyticsEventMemberRemoved = "member_removed"
)

// AnalyticsEventRepo сохраняет бизнесовые события.
type AnalyticsEventRepo interface {
	RecordAnalyticsEvent(ctx context.Context, event AnalyticsEvent) error
}
