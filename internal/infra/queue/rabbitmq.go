package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"newshub-backend/internal/domain"
	"newshub-backend/internal/infra/metrics"
)

// RabbitRecomputeQueue реализует очередь задач пересчёта через AMQP.
type RabbitRecomputeQueue struct {
	conn  *amqp.Connection
	queue string

	mu         sync.Mutex
	pubChannel *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewRabbitRecomputeQueue подключается к RabbitMQ и объявляет долговечную очередь.
func NewRabbitRecomputeQueue(amqpURL, queue string) (*RabbitRecomputeQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("объявление очереди: %w", err)
	}
	return &RabbitRecomputeQueue{conn: conn, queue: queue, pubChannel: ch}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitRecomputeQueue) Enqueue(ctx context.Context, job domain.RecomputeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	start := time.Now()
	err = q.pubChannel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Подтверждение выполняется через ack-функцию:
// success=false возвращает задачу в очередь повторной доставкой.
func (q *RabbitRecomputeQueue) Receive(ctx context.Context) (domain.RecomputeJob, domain.RecomputeAckFunc, error) {
	deliveries, err := q.consumeChannel()
	if err != nil {
		return domain.RecomputeJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.RecomputeJob{}, nil, ctx.Err()
	case delivery, ok := <-deliveries:
		if !ok {
			return domain.RecomputeJob{}, nil, errors.New("rabbitmq: канал доставки закрыт")
		}
		var job domain.RecomputeJob
		if err := json.Unmarshal(delivery.Body, &job); err != nil {
			_ = delivery.Nack(false, false)
			return domain.RecomputeJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		return job, ack, nil
	}
}

func (q *RabbitRecomputeQueue) consumeChannel() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает соединение с брокером.
func (q *RabbitRecomputeQueue) Close() error {
	return q.conn.Close()
}
