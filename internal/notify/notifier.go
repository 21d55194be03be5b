// Package notify 通知分发：写入 ledger 后扇出到外部通道（Redis Stream / MQTT / Webhook）
package notify

import (
	"context"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/ledger"

	"go.uber.org/zap"
)

// Publisher 外部通知通道
type Publisher interface {
	Name() string
	Publish(ctx context.Context, n *domain.Notification) error
}

// Notifier 工作流的通知出口
// 失败只记录日志，不回传给工作流
type Notifier struct {
	ledger     ledger.Ledger
	publishers []Publisher
	logger     *zap.Logger
}

func NewNotifier(l ledger.Ledger, logger *zap.Logger, publishers ...Publisher) *Notifier {
	return &Notifier{ledger: l, publishers: publishers, logger: logger}
}

// Ledger 返回底层 ledger（查询/标记已读使用）
func (n *Notifier) Ledger() ledger.Ledger {
	return n.ledger
}

// Notify 追加通知并扇出；ledger 写入失败时返回 nil
func (n *Notifier) Notify(ctx context.Context, d domain.NotificationDraft) *domain.Notification {
	rec, err := n.ledger.Add(ctx, d)
	if err != nil {
		n.logger.Error("Failed to append notification",
			zap.String("user_id", d.UserID),
			zap.String("title", d.Title),
			zap.Error(err),
		)
		return nil
	}

	for _, p := range n.publishers {
		if err := p.Publish(ctx, rec); err != nil {
			n.logger.Error("Failed to publish notification",
				zap.String("publisher", p.Name()),
				zap.String("notification_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		n.logger.Debug("Notification published",
			zap.String("publisher", p.Name()),
			zap.String("notification_id", rec.ID),
		)
	}
	return rec
}
