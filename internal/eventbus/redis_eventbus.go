package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const consumerGroup = "kledo-sync-workers"

// RedisEventBus is a Redis-streams bus with consumer-group delivery: a
// message stays in the pending entries list until the handler succeeds and
// it is acked.
type RedisEventBus struct {
	client *redis.Client
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

var _ EventBus = (*RedisEventBus)(nil)

func NewRedisEventBus(client *redis.Client, logger *zap.Logger) (*RedisEventBus, error) {
	ctx, cancel := context.WithCancel(context.Background())

	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisEventBus{
		client: client,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (r *RedisEventBus) Publish(ctx context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{"payload": data},
	}).Err()
}

// Subscribe starts a consumer goroutine for the topic. It returns once the
// consumer group exists; delivery continues until the bus is closed or the
// passed context is cancelled.
func (r *RedisEventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) error {
	// Idempotent; BUSYGROUP means the group already exists.
	_ = r.client.XGroupCreateMkStream(ctx, topic, consumerGroup, "0").Err()

	consumerName := "worker-" + uuid.New().String()

	r.logger.Info("Started stream consumer",
		zap.String("topic", topic),
		zap.String("group", consumerGroup))

	go r.consume(ctx, topic, consumerName, handler)

	return nil
}

func (r *RedisEventBus) consume(ctx context.Context, topic, consumer string, handler EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		default:
			streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    consumerGroup,
				Consumer: consumer,
				Streams:  []string{topic, ">"},
				Count:    10,
				Block:    2 * time.Second,
			}).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					r.logger.Error("Failed to read stream", zap.Error(err))
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					if err := r.handleMessage(ctx, topic, msg, handler); err != nil {
						// Not acked: the message stays pending for later
						// recovery.
						r.logger.Error("Failed to process message",
							zap.String("msg_id", msg.ID),
							zap.Error(err))
					} else {
						r.client.XAck(ctx, topic, consumerGroup, msg.ID)
					}
				}
			}
		}
	}
}

func (r *RedisEventBus) handleMessage(ctx context.Context, topic string, msg redis.XMessage, handler EventHandler) error {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return fmt.Errorf("invalid payload format on %s", topic)
	}
	return handler(ctx, []byte(payload))
}

func (r *RedisEventBus) Close() error {
	r.cancel()
	return r.client.Close()
}
