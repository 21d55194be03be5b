package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dorm-engine/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisLedger Redis 持久化的 ledger
// <key>:items  hash   id -> notification JSON
// <key>:index  zset   id，score = timestamp（微秒）
type RedisLedger struct {
	client *redis.Client
	key    string
	opts   options
	logger *zap.Logger
}

func NewRedisLedger(client *redis.Client, key string, logger *zap.Logger, opts ...Option) *RedisLedger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisLedger{client: client, key: key, opts: o, logger: logger}
}

var _ Ledger = (*RedisLedger)(nil)

// 并发写导致 WATCH 事务失败时的重试次数
const maxWatchRetries = 3

func (l *RedisLedger) itemsKey() string { return l.key + ":items" }
func (l *RedisLedger) indexKey() string { return l.key + ":index" }

func (l *RedisLedger) Add(ctx context.Context, d domain.NotificationDraft) (*domain.Notification, error) {
	n := l.opts.build(d)
	if err := l.save(ctx, n); err != nil {
		return nil, err
	}
	if l.opts.maxEntries > 0 {
		l.trim(ctx)
	}
	return n, nil
}

func (l *RedisLedger) save(ctx context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	_, err = l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, l.itemsKey(), n.ID, data)
		p.ZAdd(ctx, l.indexKey(), &redis.Z{Score: float64(n.Timestamp.UnixMicro()), Member: n.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save notification %s: %w", n.ID, err)
	}
	return nil
}

// markRead 在 WATCH 下读改写；记录已被删除时返回 NotFound，不会写回
func (l *RedisLedger) markRead(ctx context.Context, id string) (bool, error) {
	var flipped bool
	txf := func(tx *redis.Tx) error {
		flipped = false
		s, err := tx.HGet(ctx, l.itemsKey(), id).Result()
		if err == redis.Nil {
			return domain.NotFound("notification", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get notification: %w", err)
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			return fmt.Errorf("failed to decode notification %s: %w", id, err)
		}
		if n.Read {
			return nil
		}
		n.Read = true
		data, err := json.Marshal(&n)
		if err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, l.itemsKey(), id, data)
			return nil
		})
		if err == nil {
			flipped = true
		}
		return err
	}
	for i := 0; i < maxWatchRetries; i++ {
		err := l.client.Watch(ctx, txf, l.itemsKey())
		if err == redis.TxFailedErr {
			continue
		}
		return flipped, err
	}
	return false, fmt.Errorf("failed to mark notification %s read: %w", id, redis.TxFailedErr)
}

// trim 删除超出 maxEntries 的最旧记录；失败只记日志
func (l *RedisLedger) trim(ctx context.Context) {
	stale, err := l.client.ZRange(ctx, l.indexKey(), 0, int64(-l.opts.maxEntries-1)).Result()
	if err != nil || len(stale) == 0 {
		if err != nil {
			l.logger.Warn("Failed to read ledger index for trimming", zap.Error(err))
		}
		return
	}
	if err := l.delete(ctx, stale...); err != nil {
		l.logger.Warn("Failed to trim ledger", zap.Int("stale", len(stale)), zap.Error(err))
	}
}

func (l *RedisLedger) delete(ctx context.Context, ids ...string) error {
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, l.itemsKey(), ids...)
		p.ZRem(ctx, l.indexKey(), members...)
		return nil
	})
	return err
}

// all 按 most-recent-first 读取全部记录
func (l *RedisLedger) all(ctx context.Context) ([]*domain.Notification, error) {
	ids, err := l.client.ZRevRange(ctx, l.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger index: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Notification{}, nil
	}
	vals, err := l.client.HMGet(ctx, l.itemsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger items: %w", err)
	}

	out := make([]*domain.Notification, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index 与 hash 不一致（并发删除），跳过
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			l.logger.Warn("Skipping malformed notification", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}

func (l *RedisLedger) List(ctx context.Context, q Query) ([]*domain.Notification, error) {
	all, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	out := []*domain.Notification{}
	for _, n := range all {
		if !q.match(n) {
			continue
		}
		out = append(out, n)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (l *RedisLedger) Get(ctx context.Context, id string) (*domain.Notification, error) {
	s, err := l.client.HGet(ctx, l.itemsKey(), id).Result()
	if err == redis.Nil {
		return nil, domain.NotFound("notification", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	var n domain.Notification
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification %s: %w", id, err)
	}
	return &n, nil
}

func (l *RedisLedger) MarkRead(ctx context.Context, id string) error {
	_, err := l.markRead(ctx, id)
	return err
}

func (l *RedisLedger) MarkAllRead(ctx context.Context, userID string) (int, error) {
	all, err := l.all(ctx)
	if err != nil {
		return 0, err
	}
	flipped := 0
	for _, n := range all {
		if n.Read || (userID != "" && !n.VisibleTo(userID)) {
			continue
		}
		ok, err := l.markRead(ctx, n.ID)
		if errors.Is(err, domain.ErrNotFound) {
			// 读取之后被删除
			continue
		}
		if err != nil {
			return flipped, err
		}
		if ok {
			flipped++
		}
	}
	return flipped, nil
}

func (l *RedisLedger) Remove(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.HDel(ctx, l.itemsKey(), id)
		p.ZRem(ctx, l.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove notification %s: %w", id, err)
	}
	if removed.Val() == 0 {
		return domain.NotFound("notification", id)
	}
	return nil
}

func (l *RedisLedger) Clear(ctx context.Context, userID string) (int, error) {
	all, err := l.all(ctx)
	if err != nil {
		return 0, err
	}
	if userID == "" {
		if err := l.client.Del(ctx, l.itemsKey(), l.indexKey()).Err(); err != nil {
			return 0, fmt.Errorf("failed to clear ledger: %w", err)
		}
		return len(all), nil
	}
	var ids []string
	for _, n := range all {
		if n.UserID == userID {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := l.delete(ctx, ids...); err != nil {
		return 0, fmt.Errorf("failed to clear notifications for %s: %w", userID, err)
	}
	return len(ids), nil
}

func (l *RedisLedger) UnreadCount(ctx context.Context, userID string) (int, error) {
	list, err := l.List(ctx, Query{UserID: userID, UnreadOnly: true})
	if err != nil {
		return 0, err
	}
	return len(list), nil
}
