package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newshub-backend/internal/domain"
)

// RedisRecomputeQueue реализует очередь задач на базе Redis lists.
// Используется как запасной транспорт, когда AMQP не сконфигурирован.
type RedisRecomputeQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRecomputeQueue создаёт очередь по указанному ключу.
func NewRedisRecomputeQueue(client *redis.Client, key string) *RedisRecomputeQueue {
	return &RedisRecomputeQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisRecomputeQueue) Enqueue(ctx context.Context, job domain.RecomputeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Ack при success=false
// возвращает задачу обратно в очередь.
func (q *RedisRecomputeQueue) Receive(ctx context.Context) (domain.RecomputeJob, domain.RecomputeAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RecomputeJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RecomputeJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RecomputeJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.RecomputeJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.RecomputeJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.RecomputeJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.Enqueue(context.Background(), job)
		}
		return job, ack, nil
	}
}
