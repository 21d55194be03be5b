// Package service 宿舍工作流引擎
// 每个命令：权限检查 -> 单事务内 读取/校验/写入 -> 提交后发送通知
package service

import (
	"context"
	"fmt"
	"time"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/notify"
	"dorm-engine/internal/permission"
	"dorm-engine/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option 引擎选项
type Option func(*base)

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithIDGenerator 替换实体 id 生成器
func WithIDGenerator(fn func() string) Option {
	return func(b *base) { b.newID = fn }
}

// WithDefaultMaxPasses 新住户默认外出配额
func WithDefaultMaxPasses(n int) Option {
	return func(b *base) { b.defaultMaxPasses = n }
}

// base 各服务共享的依赖
type base struct {
	store    repository.Store
	notifier *notify.Notifier
	logger   *zap.Logger

	now              func() time.Time
	newID            func() string
	defaultMaxPasses int
}

// guard 权限检查，拒绝时记录 Warn
func (b *base) guard(op string, actor domain.Actor, action permission.Action) error {
	if err := permission.Require(actor, action, op); err != nil {
		b.logger.Warn("Command denied",
			zap.String("op", op),
			zap.String("user_id", actor.UserID),
			zap.String("role", string(actor.Role)),
		)
		return err
	}
	return nil
}

// finish 统一处理命令结果：业务错误补充 op 并记 Warn，基础设施错误记 Error
func (b *base) finish(op string, actor domain.Actor, err error) error {
	if err == nil {
		return nil
	}
	if kind := domain.KindOf(err); kind != "" {
		b.logger.Warn("Command rejected",
			zap.String("op", op),
			zap.String("user_id", actor.UserID),
			zap.String("role", string(actor.Role)),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return domain.WithOp(err, op)
	}
	b.logger.Error("Command failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (b *base) accepted(op string, actor domain.Actor, fields ...zap.Field) {
	b.logger.Info("Command accepted", append([]zap.Field{
		zap.String("op", op),
		zap.String("user_id", actor.UserID),
		zap.String("role", string(actor.Role)),
	}, fields...)...)
}

func (b *base) notify(ctx context.Context, d domain.NotificationDraft) {
	if b.notifier != nil {
		b.notifier.Notify(ctx, d)
	}
}

// requireIdentity 按 user id 过滤的操作必须带 user id；过滤器里空串表示不限定
func (b *base) requireIdentity(op string, actor domain.Actor) error {
	if actor.UserID != "" {
		return nil
	}
	b.logger.Warn("Command denied",
		zap.String("op", op),
		zap.String("role", string(actor.Role)),
		zap.String("reason", "missing user id"),
	)
	return domain.Errorf(domain.KindPermissionDenied, op, "actor has no user id")
}

// scope 返回查询应限定的 user id；ScopeAll 时返回空串
func (b *base) scope(op string, actor domain.Actor, res permission.Resource) (string, error) {
	if permission.ViewScope(actor, res) == permission.ScopeAll {
		return "", nil
	}
	if err := b.requireIdentity(op, actor); err != nil {
		return "", err
	}
	return actor.UserID, nil
}

// requireSelf 住户只能为自己提交申请
func requireSelf(op string, actor domain.Actor, userID string) error {
	if userID == "" {
		return domain.Errorf(domain.KindValidation, op, "user_id is required")
	}
	if actor.UserID != userID {
		return domain.Errorf(domain.KindPermissionDenied, op, "%s may only submit requests for themselves", actor.UserID)
	}
	return nil
}

func timeRef(t time.Time) *time.Time { return &t }

// Engine 对外暴露的工作流集合
type Engine struct {
	GatePasses    *GatePassService
	Leaves        *LeaveService
	Medical       *MedicalService
	Residence     *ResidenceService
	Residents     *ResidentService
	Notifications *NotificationService
	Dashboard     *DashboardService
}

// NewEngine 组装全部服务；notifier 可以为 nil（不发送通知）
func NewEngine(store repository.Store, notifier *notify.Notifier, logger *zap.Logger, opts ...Option) *Engine {
	b := &base{
		store:            store,
		notifier:         notifier,
		logger:           logger,
		now:              time.Now,
		newID:            uuid.NewString,
		defaultMaxPasses: 5,
	}
	for _, opt := range opts {
		opt(b)
	}
	return &Engine{
		GatePasses:    &GatePassService{base: b},
		Leaves:        &LeaveService{base: b},
		Medical:       &MedicalService{base: b},
		Residence:     &ResidenceService{base: b},
		Residents:     &ResidentService{base: b},
		Notifications: &NotificationService{base: b},
		Dashboard:     &DashboardService{base: b},
	}
}
