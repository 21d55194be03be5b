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

// GatePassService 外出通行证工作流
// pending --approve--> approved --confirmUsage(true/false)--> approved(isUsed)
// pending --reject--> rejected
type GatePassService struct {
	*base
}

// RequestGatePassRequest 申请通行证请求
type RequestGatePassRequest struct {
	UserID        string    `json:"user_id"`
	Destination   string    `json:"destination"`
	Reason        string    `json:"reason"`
	DepartureDate time.Time `json:"departure_date"`
	ReturnDate    time.Time `json:"return_date"`
}

// RequestGatePass 住户为自己申请外出；配额在申请时检查，批准时才消耗
func (s *GatePassService) RequestGatePass(ctx context.Context, actor domain.Actor, req RequestGatePassRequest) (*domain.GatePass, error) {
	const op = "requestGatePass"
	if err := s.guard(op, actor, permission.RequestGatePass); err != nil {
		return nil, err
	}
	if err := requireSelf(op, actor, req.UserID); err != nil {
		return nil, s.finish(op, actor, err)
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "destination is required"))
	}
	if req.DepartureDate.IsZero() || req.ReturnDate.IsZero() {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "departure_date and return_date are required"))
	}
	if req.ReturnDate.Before(req.DepartureDate) {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "return_date must not be before departure_date"))
	}

	now := s.now()
	var pass *domain.GatePass
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		resident, err := tx.GetResident(ctx, req.UserID)
		if err != nil {
			return err
		}
		if resident.PassesUsed >= resident.MaxPasses {
			return domain.Errorf(domain.KindQuotaExceeded, op, "resident %s has used %d of %d passes",
				resident.UserID, resident.PassesUsed, resident.MaxPasses)
		}
		pass = &domain.GatePass{
			ID:            s.newID(),
			UserID:        req.UserID,
			Destination:   strings.TrimSpace(req.Destination),
			Reason:        strings.TrimSpace(req.Reason),
			RequestDate:   now,
			RequestTime:   now.Format("15:04"),
			DepartureDate: req.DepartureDate,
			ReturnDate:    req.ReturnDate,
			Status:        domain.StatusPending,
		}
		return tx.PutGatePass(ctx, pass)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("pass_id", pass.ID))
	return pass, nil
}

// DecideGatePassRequest 审批请求
type DecideGatePassRequest struct {
	PassID          string          `json:"pass_id"`
	Decision        domain.Decision `json:"decision"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}

// DecideGatePass 审批通行证；批准时消耗一次配额，审批后状态终态
func (s *GatePassService) DecideGatePass(ctx context.Context, actor domain.Actor, req DecideGatePassRequest) (*domain.GatePass, error) {
	const op = "decideGatePass"
	if err := s.guard(op, actor, permission.ApproveGatePass); err != nil {
		return nil, err
	}
	switch req.Decision {
	case domain.DecisionApprove:
	case domain.DecisionReject:
		if strings.TrimSpace(req.RejectionReason) == "" {
			return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "rejection_reason is required"))
		}
	default:
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "unknown decision %q", req.Decision))
	}

	now := s.now()
	var pass *domain.GatePass
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		pass, err = tx.GetGatePass(ctx, req.PassID)
		if err != nil {
			return err
		}
		if pass.Status != domain.StatusPending {
			return domain.Errorf(domain.KindInvalidStateTransition, op, "gate pass %s is already %s", pass.ID, pass.Status)
		}

		if req.Decision == domain.DecisionReject {
			pass.Status = domain.StatusRejected
			pass.RejectionReason = strings.TrimSpace(req.RejectionReason)
			return tx.PutGatePass(ctx, pass)
		}

		resident, err := tx.GetResident(ctx, pass.UserID)
		if err != nil {
			return err
		}
		if resident.PassesUsed >= resident.MaxPasses {
			return domain.Errorf(domain.KindQuotaExceeded, op, "resident %s has no passes left", resident.UserID)
		}
		resident.PassesUsed++
		pass.Status = domain.StatusApproved
		pass.ApprovedBy = actor.UserID
		pass.ApprovedAt = timeRef(now)
		if err := tx.PutResident(ctx, resident); err != nil {
			return err
		}
		return tx.PutGatePass(ctx, pass)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("pass_id", pass.ID), zap.String("status", string(pass.Status)))
	s.notify(ctx, gatePassDecisionDraft(pass))
	return pass, nil
}

func gatePassDecisionDraft(p *domain.GatePass) domain.NotificationDraft {
	when := p.DepartureDate.Format("2006-01-02")
	if p.Status == domain.StatusApproved {
		return domain.NotificationDraft{
			UserID:  p.UserID,
			Type:    domain.NotificationSuccess,
			Title:   "Gate pass approved",
			Message: fmt.Sprintf("Your gate pass to %s on %s has been approved.", p.Destination, when),
		}
	}
	return domain.NotificationDraft{
		UserID:  p.UserID,
		Type:    domain.NotificationError,
		Title:   "Gate pass rejected",
		Message: fmt.Sprintf("Your gate pass to %s on %s was rejected: %s", p.Destination, when, p.RejectionReason),
	}
}

// ConfirmUsageRequest Security 确认通行证使用
type ConfirmUsageRequest struct {
	PassID string `json:"pass_id"`
	IsUsed bool   `json:"is_used"`
}

// ConfirmUsage 设置 isUsed；置为 true 时住户离校。置回 false 不恢复 on_campus
func (s *GatePassService) ConfirmUsage(ctx context.Context, actor domain.Actor, req ConfirmUsageRequest) (*domain.GatePass, error) {
	const op = "confirmUsage"
	if err := s.guard(op, actor, permission.VerifyGatePassUsage); err != nil {
		return nil, err
	}

	now := s.now()
	var pass *domain.GatePass
	changed := false
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		pass, err = tx.GetGatePass(ctx, req.PassID)
		if err != nil {
			return err
		}
		if pass.Status != domain.StatusApproved {
			return domain.Errorf(domain.KindInvalidStateTransition, op, "gate pass %s is %s, not approved", pass.ID, pass.Status)
		}
		if pass.IsUsed == req.IsUsed {
			return nil
		}
		changed = true
		pass.IsUsed = req.IsUsed
		pass.ConfirmedBy = actor.UserID
		if !req.IsUsed {
			pass.UsedAt = nil
			return tx.PutGatePass(ctx, pass)
		}

		pass.UsedAt = timeRef(now)
		resident, err := tx.GetResident(ctx, pass.UserID)
		if err != nil {
			return err
		}
		resident.CampusStatus = domain.OffCampus
		if err := tx.PutResident(ctx, resident); err != nil {
			return err
		}
		return tx.PutGatePass(ctx, pass)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	if changed {
		s.accepted(op, actor, zap.String("pass_id", pass.ID), zap.Bool("is_used", pass.IsUsed))
	}
	return pass, nil
}

// GetGatePass 查询单个通行证（受查询范围限制）
func (s *GatePassService) GetGatePass(ctx context.Context, actor domain.Actor, passID string) (*domain.GatePass, error) {
	const op = "getGatePass"
	uid, err := s.scope(op, actor, permission.ResourceGatePasses)
	if err != nil {
		return nil, err
	}
	var pass *domain.GatePass
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		pass, err = tx.GetGatePass(ctx, passID)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	if uid != "" && pass.UserID != uid {
		return nil, s.finish(op, actor, domain.NotFound("gate pass", passID))
	}
	return pass, nil
}

// ListGatePasses 按条件查询，最新申请在前；无全量查看权限时只返回自己的
func (s *GatePassService) ListGatePasses(ctx context.Context, actor domain.Actor, f repository.GatePassFilter) ([]*domain.GatePass, error) {
	const op = "listGatePasses"
	uid, err := s.scope(op, actor, permission.ResourceGatePasses)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		f.UserID = uid
	}
	var out []*domain.GatePass
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListGatePasses(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestDate.After(out[j].RequestDate) })
	return out, nil
}

// ActiveGatePasses 已批准且未使用的通行证
func (s *GatePassService) ActiveGatePasses(ctx context.Context, actor domain.Actor) ([]*domain.GatePass, error) {
	unused := false
	return s.ListGatePasses(ctx, actor, repository.GatePassFilter{Status: domain.StatusApproved, IsUsed: &unused})
}
