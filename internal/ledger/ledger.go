// Package ledger 通知记录（append-only 读/未读日志）
// 工作流只调用 Add；ledger 不会阻塞任何工作流操作
package ledger

import (
	"context"
	"time"

	"dorm-engine/internal/domain"

	"github.com/google/uuid"
)

// Query 通知查询条件
type Query struct {
	// UserID 非空时只返回该用户的通知与广播
	UserID     string
	UnreadOnly bool
	// Limit <= 0 表示不限制
	Limit int
}

func (q Query) match(n *domain.Notification) bool {
	if q.UserID != "" && !n.VisibleTo(q.UserID) {
		return false
	}
	return !q.UnreadOnly || !n.Read
}

// Ledger 通知记录存储
// List 按 most-recent-first 返回
type Ledger interface {
	Add(ctx context.Context, d domain.NotificationDraft) (*domain.Notification, error)
	List(ctx context.Context, q Query) ([]*domain.Notification, error)
	Get(ctx context.Context, id string) (*domain.Notification, error)
	// MarkRead: read 只能 false -> true，重复调用无副作用
	MarkRead(ctx context.Context, id string) error
	// MarkAllRead 标记 userID 可见的全部通知（userID 为空表示全部），返回本次翻转的数量
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Remove(ctx context.Context, id string) error
	// Clear 删除发给 userID 的通知（不含广播）；userID 为空时清空全部
	Clear(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Option 配置 ledger
type Option func(*options)

type options struct {
	now        func() time.Time
	newID      func() string
	maxEntries int
}

func defaultOptions() options {
	return options{now: time.Now, newID: uuid.NewString}
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator 替换 id 生成器
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithMaxEntries 超过 n 条时丢弃最旧的记录；0 表示不限制
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

func (o options) build(d domain.NotificationDraft) *domain.Notification {
	typ := d.Type
	if typ == "" {
		typ = domain.NotificationInfo
	}
	return &domain.Notification{
		ID:        o.newID(),
		UserID:    d.UserID,
		Type:      typ,
		Title:     d.Title,
		Message:   d.Message,
		Timestamp: o.now(),
	}
}
