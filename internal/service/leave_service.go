package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/permission"
	"dorm-engine/internal/repository"

	"go.uber.org/zap"
)

// LeaveService 请假工作流
type LeaveService struct {
	*base
}

// RequestLeaveRequest 请假申请
type RequestLeaveRequest struct {
	UserID    string           `json:"user_id"`
	Type      domain.LeaveType `json:"type"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	Reason    string           `json:"reason"`
}

// RequestLeave 住户为自己请假；与已有 pending/approved 请假重叠时拒绝
func (s *LeaveService) RequestLeave(ctx context.Context, actor domain.Actor, req RequestLeaveRequest) (*domain.Leave, error) {
	const op = "requestLeave"
	if err := s.guard(op, actor, permission.RequestLeave); err != nil {
		return nil, err
	}
	if err := requireSelf(op, actor, req.UserID); err != nil {
		return nil, s.finish(op, actor, err)
	}
	if !req.Type.Valid() {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "invalid leave type %q", req.Type))
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "start_date and end_date are required"))
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "end_date must not be before start_date"))
	}

	var leave *domain.Leave
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetResident(ctx, req.UserID); err != nil {
			return err
		}
		existing, err := tx.ListLeaves(ctx, repository.LeaveFilter{UserID: req.UserID})
		if err != nil {
			return err
		}
		for _, l := range existing {
			if l.Status == domain.StatusRejected {
				continue
			}
			if !req.StartDate.After(l.EndDate) && !req.EndDate.Before(l.StartDate) {
				return domain.Errorf(domain.KindValidation, op, "overlaps %s leave %s (%s to %s)", l.Status, l.ID,
					l.StartDate.Format("2006-01-02"), l.EndDate.Format("2006-01-02"))
			}
		}
		leave = &domain.Leave{
			ID:        s.newID(),
			UserID:    req.UserID,
			Type:      req.Type,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Reason:    strings.TrimSpace(req.Reason),
			Status:    domain.StatusPending,
			CreatedAt: s.now(),
		}
		return tx.PutLeave(ctx, leave)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("leave_id", leave.ID), zap.String("type", string(leave.Type)))
	return leave, nil
}

// DecideLeaveRequest 请假审批
type DecideLeaveRequest struct {
	LeaveID  string          `json:"leave_id"`
	Decision domain.Decision `json:"decision"`
	Comments string          `json:"comments,omitempty"`
}

// DecideLeave pending -> approved/rejected（终态）
func (s *LeaveService) DecideLeave(ctx context.Context, actor domain.Actor, req DecideLeaveRequest) (*domain.Leave, error) {
	const op = "decideLeave"
	if err := s.guard(op, actor, permission.ManageLeaves); err != nil {
		return nil, err
	}
	if req.Decision != domain.DecisionApprove && req.Decision != domain.DecisionReject {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "unknown decision %q", req.Decision))
	}

	now := s.now()
	var leave *domain.Leave
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		leave, err = tx.GetLeave(ctx, req.LeaveID)
		if err != nil {
			return err
		}
		if leave.Status != domain.StatusPending {
			return domain.Errorf(domain.KindInvalidStateTransition, op, "leave %s is already %s", leave.ID, leave.Status)
		}
		leave.Comments = strings.TrimSpace(req.Comments)
		leave.ApprovedBy = actor.UserID
		if req.Decision == domain.DecisionApprove {
			leave.Status = domain.StatusApproved
			leave.ApprovedAt = timeRef(now)
		} else {
			leave.Status = domain.StatusRejected
		}
		return tx.PutLeave(ctx, leave)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("leave_id", leave.ID), zap.String("status", string(leave.Status)))
	draft := domain.NotificationDraft{
		UserID:  leave.UserID,
		Type:    domain.NotificationSuccess,
		Title:   "Leave approved",
		Message: fmt.Sprintf("Your %s leave from %s to %s has been approved.", leave.Type,
			leave.StartDate.Format("2006-01-02"), leave.EndDate.Format("2006-01-02")),
	}
	if leave.Status == domain.StatusRejected {
		draft.Type = domain.NotificationError
		draft.Title = "Leave rejected"
		draft.Message = fmt.Sprintf("Your %s leave request was rejected.", leave.Type)
		if leave.Comments != "" {
			draft.Message += " " + leave.Comments
		}
	}
	s.notify(ctx, draft)
	return leave, nil
}

// ListLeaves 按条件查询，开始日期倒序
func (s *LeaveService) ListLeaves(ctx context.Context, actor domain.Actor, f repository.LeaveFilter) ([]*domain.Leave, error) {
	const op = "listLeaves"
	uid, err := s.scope(op, actor, permission.ResourceLeaves)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		f.UserID = uid
	}
	var out []*domain.Leave
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListLeaves(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

// ActiveLeaves 当前生效的请假（approved 且 now 在区间内）
func (s *LeaveService) ActiveLeaves(ctx context.Context, actor domain.Actor) ([]*domain.Leave, error) {
	approved, err := s.ListLeaves(ctx, actor, repository.LeaveFilter{Status: domain.StatusApproved})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*domain.Leave, 0, len(approved))
	for _, l := range approved {
		if domain.IsActive(l, now) {
			out = append(out, l)
		}
	}
	return out, nil
}
