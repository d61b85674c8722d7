package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testBus(t *testing.T) *RedisEventBus {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	bus, err := NewRedisEventBus(client, zap.NewNop())
	if err != nil {
		t.Skip("Redis not available, skipping test")
	}
	return bus
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus := testBus(t)
	defer bus.Close()

	ctx := context.Background()
	topic := "kledo.test." + time.Now().Format("150405.000000000")

	received := make(chan []byte, 1)
	require.NoError(t, bus.Subscribe(ctx, topic, func(ctx context.Context, payload []byte) error {
		received <- payload
		return nil
	}))

	event := map[string]interface{}{"order_id": 1042}
	require.NoError(t, bus.Publish(ctx, topic, event))

	select {
	case payload := <-received:
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, float64(1042), decoded["order_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishWithoutSubscriber(t *testing.T) {
	bus := testBus(t)
	defer bus.Close()

	topic := "kledo.test.orphan." + time.Now().Format("150405.000000000")
	err := bus.Publish(context.Background(), topic, map[string]string{"k": "v"})
	assert.NoError(t, err)
}
