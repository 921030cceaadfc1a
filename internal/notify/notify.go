// Package notify hands committed orders to out-of-process mail and SMS
// senders. Delivery is fire-and-forget: callers log failures and move on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultQueue is the Redis list committed-order events are pushed onto
const DefaultQueue = "storefront:notifications:orders"

// OrderEvent describes a committed order for a confirmation message
type OrderEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	ReferenceCode string          `json:"reference_code"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	Description   string          `json:"description"`
	Total         decimal.Decimal `json:"total"`
	CommittedAt   time.Time       `json:"committed_at"`
}

// Dispatcher delivers order notifications
type Dispatcher interface {
	OrderCommitted(ctx context.Context, event OrderEvent) error
}

// RedisDispatcher pushes events as JSON onto a Redis list
type RedisDispatcher struct {
	client *redis.Client
	queue  string
}

// NewRedisDispatcher creates a dispatcher writing to queue, or DefaultQueue
// when queue is empty.
func NewRedisDispatcher(client *redis.Client, queue string) *RedisDispatcher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisDispatcher{client: client, queue: queue}
}

func (d *RedisDispatcher) OrderCommitted(ctx context.Context, event OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}
	if err := d.client.LPush(ctx, d.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue order event: %w", err)
	}
	return nil
}

// LogDispatcher only logs events. It is used when no Redis is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) OrderCommitted(ctx context.Context, event OrderEvent) error {
	d.logger.Info("Order committed",
		zap.String("order_id", event.OrderID.String()),
		zap.String("reference_code", event.ReferenceCode),
		zap.String("email", event.Email),
		zap.String("total", event.Total.StringFixed(2)),
	)
	return nil
}
