package domain

import (
	"context"
	"time"
)

// RecomputeJobCause описывает источник запроса на пересчёт.
type RecomputeJobCause string

const (
	// RecomputeCauseManual — пересчёт запрошен через админский эндпоинт.
	RecomputeCauseManual RecomputeJobCause = "manual"
	// RecomputeCauseScheduled — пересчёт запланирован по расписанию.
	RecomputeCauseScheduled RecomputeJobCause = "scheduled"
)

// RecomputeJob содержит информацию о задаче пересчёта популярности.
type RecomputeJob struct {
	ID          string            `json:"job_id,omitempty"`
	WindowDays  int               `json:"window_days"`
	RequestedAt time.Time         `json:"requested_at"`
	Cause       RecomputeJobCause `json:"cause"`
}

// RecomputeQueue описывает очередь задач на пересчёт популярности.
type RecomputeQueue interface {
	Enqueue(ctx context.Context, job RecomputeJob) error
	Receive(ctx context.Context) (RecomputeJob, RecomputeAckFunc, error)
}

// RecomputeAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type RecomputeAckFunc func(success bool) error
