package service

import (
	"context"
	"errors"
	"strings"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/ledger"
	"dorm-engine/internal/permission"

	"go.uber.org/zap"
)

var errNoLedger = errors.New("notification ledger is not configured")

// NotificationService 通知查询与手动发布
// 所有查询都限定为 actor 自己的通知 + 广播
type NotificationService struct {
	*base
}

func (s *NotificationService) ledger() (ledger.Ledger, error) {
	if s.notifier == nil {
		return nil, errNoLedger
	}
	return s.notifier.Ledger(), nil
}

// DeployRequest 手动发布通知；UserID 为空表示广播
type DeployRequest struct {
	UserID  string                  `json:"user_id,omitempty"`
	Type    domain.NotificationType `json:"type,omitempty"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
}

func (s *NotificationService) Deploy(ctx context.Context, actor domain.Actor, req DeployRequest) (*domain.Notification, error) {
	const op = "deployNotification"
	if err := s.guard(op, actor, permission.DeployNotification); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "title is required"))
	}
	switch req.Type {
	case "", domain.NotificationInfo, domain.NotificationSuccess, domain.NotificationWarning, domain.NotificationError:
	default:
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "invalid notification type %q", req.Type))
	}
	if s.notifier == nil {
		return nil, s.finish(op, actor, errNoLedger)
	}

	n := s.notifier.Notify(ctx, domain.NotificationDraft{
		UserID:  strings.TrimSpace(req.UserID),
		Type:    req.Type,
		Title:   strings.TrimSpace(req.Title),
		Message: req.Message,
	})
	if n == nil {
		return nil, s.finish(op, actor, errors.New("failed to append notification"))
	}
	s.accepted(op, actor, zap.String("notification_id", n.ID), zap.String("target", n.UserID))
	return n, nil
}

// List actor 可见的通知，最新在前
func (s *NotificationService) List(ctx context.Context, actor domain.Actor, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	const op = "listNotifications"
	if err := s.requireIdentity(op, actor); err != nil {
		return nil, err
	}
	l, err := s.ledger()
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	out, err := l.List(ctx, ledger.Query{UserID: actor.UserID, UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	return out, nil
}

// visible 取出通知并检查 actor 可见
func (s *NotificationService) visible(ctx context.Context, l ledger.Ledger, actor domain.Actor, id string) (*domain.Notification, error) {
	n, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.VisibleTo(actor.UserID) {
		return nil, domain.NotFound("notification", id)
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	const op = "markNotificationRead"
	if err := s.requireIdentity(op, actor); err != nil {
		return err
	}
	l, err := s.ledger()
	if err != nil {
		return s.finish(op, actor, err)
	}
	if _, err := s.visible(ctx, l, actor, id); err != nil {
		return s.finish(op, actor, err)
	}
	return s.finish(op, actor, l.MarkRead(ctx, id))
}

// MarkAllRead 返回本次新标记的数量
func (s *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) (int, error) {
	const op = "markAllNotificationsRead"
	if err := s.requireIdentity(op, actor); err != nil {
		return 0, err
	}
	l, err := s.ledger()
	if err != nil {
		return 0, s.finish(op, actor, err)
	}
	n, err := l.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, s.finish(op, actor, err)
	}
	return n, nil
}

// Remove 删除自己的通知；广播只有可发布通知的角色能删除
func (s *NotificationService) Remove(ctx context.Context, actor domain.Actor, id string) error {
	const op = "removeNotification"
	if err := s.requireIdentity(op, actor); err != nil {
		return err
	}
	l, err := s.ledger()
	if err != nil {
		return s.finish(op, actor, err)
	}
	n, err := s.visible(ctx, l, actor, id)
	if err != nil {
		return s.finish(op, actor, err)
	}
	if n.UserID == "" {
		if err := s.guard(op, actor, permission.DeployNotification); err != nil {
			return err
		}
	}
	if err := l.Remove(ctx, id); err != nil {
		return s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("notification_id", id))
	return nil
}

// Clear 删除发给自己的全部通知（广播保留）
func (s *NotificationService) Clear(ctx context.Context, actor domain.Actor) (int, error) {
	const op = "clearNotifications"
	if err := s.requireIdentity(op, actor); err != nil {
		return 0, err
	}
	l, err := s.ledger()
	if err != nil {
		return 0, s.finish(op, actor, err)
	}
	n, err := l.Clear(ctx, actor.UserID)
	if err != nil {
		return 0, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.Int("removed", n))
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor domain.Actor) (int, error) {
	const op = "unreadCount"
	if err := s.requireIdentity(op, actor); err != nil {
		return 0, err
	}
	l, err := s.ledger()
	if err != nil {
		return 0, s.finish(op, actor, err)
	}
	n, err := l.UnreadCount(ctx, actor.UserID)
	if err != nil {
		return 0, s.finish(op, actor, err)
	}
	return n, nil
}
