package notify

import (
	"context"
	"fmt"

	"dorm-engine/internal/domain"
	rediscommon "dorm-engine/internal/redis"

	"github.com/go-redis/redis/v8"
)

// StreamPublisher 通过 XADD 将通知 JSON 写入 Redis Stream
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher maxLen > 0 时 stream 近似裁剪到该长度
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Name() string { return "redis-stream:" + p.stream }

func (p *StreamPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	if _, err := rediscommon.PublishJSON(ctx, p.client, p.stream, n, p.maxLen); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}
