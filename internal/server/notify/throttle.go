package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisThrottle lets one notification through per key and window.
type RedisThrottle struct {
	client redis.Cmdable
	window time.Duration
}

func NewRedisThrottle(client redis.Cmdable, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, window: window}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func throttleKey(recipientID, chatID string) string {
	return fmt.Sprintf("notify:unread:%s:%s", recipientID, chatID)
}

// Allow reports whether no notification for (recipientID, chatID) went out
// within the window, and claims the window when it did not.
func (t *RedisThrottle) Allow(ctx context.Context, recipientID, chatID string) (bool, error) {
	return t.client.SetNX(ctx, throttleKey(recipientID, chatID), time.Now().Unix(), t.window).Result()
}
