package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/permission"
	"dorm-engine/internal/repository"

	"go.uber.org/zap"
)

// MedicalService 护士转诊与就诊工作流
type MedicalService struct {
	*base
}

// CreateReferralRequest 转诊请求
type CreateReferralRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// CreateReferral 宿舍主管为住户发起护士转诊
func (s *MedicalService) CreateReferral(ctx context.Context, actor domain.Actor, req CreateReferralRequest) (*domain.NurseReferral, error) {
	const op = "createReferral"
	if err := s.guard(op, actor, permission.CreateReferral); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "reason is required"))
	}

	var ref *domain.NurseReferral
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetResident(ctx, req.UserID); err != nil {
			return err
		}
		ref = &domain.NurseReferral{
			ID:         s.newID(),
			UserID:     req.UserID,
			ReferredBy: actor.UserID,
			Reason:     strings.TrimSpace(req.Reason),
			Status:     domain.ReferralPending,
			ReferredAt: s.now(),
		}
		return tx.PutReferral(ctx, ref)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("referral_id", ref.ID), zap.String("resident", ref.UserID))
	s.notify(ctx, domain.NotificationDraft{
		UserID:  ref.UserID,
		Type:    domain.NotificationInfo,
		Title:   "Nurse referral",
		Message: "You have been referred to the nurse: " + ref.Reason,
	})
	return ref, nil
}

// requireNurse: 只有 Nurse 角色且具备 complete-referral 能力
func (s *MedicalService) requireNurse(op string, actor domain.Actor) error {
	if actor.Role != domain.RoleNurse {
		s.logger.Warn("Command denied", zap.String("op", op), zap.String("user_id", actor.UserID),
			zap.String("role", string(actor.Role)))
		return domain.Errorf(domain.KindPermissionDenied, op, "only a nurse may close referrals")
	}
	return s.guard(op, actor, permission.CompleteReferral)
}

// CompleteReferralRequest 完成转诊
type CompleteReferralRequest struct {
	ReferralID  string `json:"referral_id"`
	NurseReport string `json:"nurse_report"`
	DoctorNotes string `json:"doctor_notes,omitempty"`
}

// CompleteReferral pending -> completed，completedAt = now
func (s *MedicalService) CompleteReferral(ctx context.Context, actor domain.Actor, req CompleteReferralRequest) (*domain.NurseReferral, error) {
	const op = "completeReferral"
	if err := s.requireNurse(op, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.NurseReport) == "" {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "nurse_report is required"))
	}

	ref, err := s.closeReferral(ctx, op, req.ReferralID, func(r *domain.NurseReferral) {
		r.Status = domain.ReferralCompleted
		r.CompletedAt = timeRef(s.now())
		r.NurseReport = strings.TrimSpace(req.NurseReport)
		r.DoctorNotes = strings.TrimSpace(req.DoctorNotes)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("referral_id", ref.ID))
	if ref.ReferredBy != "" {
		s.notify(ctx, domain.NotificationDraft{
			UserID:  ref.ReferredBy,
			Type:    domain.NotificationSuccess,
			Title:   "Referral completed",
			Message: fmt.Sprintf("The nurse completed the referral for %s.", ref.UserID),
		})
	}
	return ref, nil
}

// AbortReferral pending -> aborted
func (s *MedicalService) AbortReferral(ctx context.Context, actor domain.Actor, referralID string) (*domain.NurseReferral, error) {
	const op = "abortReferral"
	if err := s.requireNurse(op, actor); err != nil {
		return nil, err
	}
	ref, err := s.closeReferral(ctx, op, referralID, func(r *domain.NurseReferral) {
		r.Status = domain.ReferralAborted
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("referral_id", ref.ID))
	return ref, nil
}

func (s *MedicalService) closeReferral(ctx context.Context, op, id string, apply func(*domain.NurseReferral)) (*domain.NurseReferral, error) {
	var ref *domain.NurseReferral
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		ref, err = tx.GetReferral(ctx, id)
		if err != nil {
			return err
		}
		if ref.Status != domain.ReferralPending {
			return domain.Errorf(domain.KindInvalidStateTransition, op, "referral %s is already %s", ref.ID, ref.Status)
		}
		apply(ref)
		return tx.PutReferral(ctx, ref)
	})
	return ref, err
}

// ScheduleVisitRequest 就诊登记
type ScheduleVisitRequest struct {
	UserID     string           `json:"user_id"`
	VisitType  domain.VisitType `json:"visit_type"`
	ReferralID string           `json:"referral_id,omitempty"`
	Symptoms   string           `json:"symptoms"`
	VisitDate  time.Time        `json:"visit_date"`
}

// ScheduleVisit 创建 in_progress 就诊；referral 类型必须关联同一住户未中止的转诊
func (s *MedicalService) ScheduleVisit(ctx context.Context, actor domain.Actor, req ScheduleVisitRequest) (*domain.NurseVisit, error) {
	const op = "scheduleVisit"
	if err := s.guard(op, actor, permission.ManageVisits); err != nil {
		return nil, err
	}
	if !req.VisitType.Valid() {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "invalid visit type %q", req.VisitType))
	}
	if req.VisitType == domain.VisitReferral && req.ReferralID == "" {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "referral_id is required for referral visits"))
	}
	if req.VisitType != domain.VisitReferral && req.ReferralID != "" {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "referral_id is only allowed for referral visits"))
	}

	visitDate := req.VisitDate
	if visitDate.IsZero() {
		visitDate = s.now()
	}

	var visit *domain.NurseVisit
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetResident(ctx, req.UserID); err != nil {
			return err
		}
		if req.VisitType == domain.VisitReferral {
			ref, err := tx.GetReferral(ctx, req.ReferralID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Errorf(domain.KindValidation, op, "referral %s does not exist", req.ReferralID)
			}
			if err != nil {
				return err
			}
			if ref.UserID != req.UserID {
				return domain.Errorf(domain.KindValidation, op, "referral %s belongs to another resident", ref.ID)
			}
			if ref.Status == domain.ReferralAborted {
				return domain.Errorf(domain.KindValidation, op, "referral %s was aborted", ref.ID)
			}
		}
		visit = &domain.NurseVisit{
			ID:         s.newID(),
			UserID:     req.UserID,
			NurseID:    actor.UserID,
			VisitType:  req.VisitType,
			ReferralID: req.ReferralID,
			Symptoms:   strings.TrimSpace(req.Symptoms),
			VisitDate:  visitDate,
			Status:     domain.VisitInProgress,
		}
		return tx.PutVisit(ctx, visit)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("visit_id", visit.ID), zap.String("visit_type", string(visit.VisitType)))
	return visit, nil
}

// CloseVisitRequest 结束就诊
type CloseVisitRequest struct {
	VisitID         string             `json:"visit_id"`
	Outcome         domain.VisitStatus `json:"outcome"` // completed | cancelled
	Diagnosis       string             `json:"diagnosis,omitempty"`
	Treatment       string             `json:"treatment,omitempty"`
	Recommendations string             `json:"recommendations,omitempty"`
	FollowUpNeeded  bool               `json:"follow_up_needed"`
	FollowUpDate    *time.Time         `json:"follow_up_date,omitempty"`
}

// CloseVisit in_progress -> completed / cancelled（终态）
func (s *MedicalService) CloseVisit(ctx context.Context, actor domain.Actor, req CloseVisitRequest) (*domain.NurseVisit, error) {
	const op = "closeVisit"
	if err := s.guard(op, actor, permission.ManageVisits); err != nil {
		return nil, err
	}
	if req.Outcome != domain.VisitCompleted && req.Outcome != domain.VisitCancelled {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "outcome must be completed or cancelled"))
	}
	if req.FollowUpDate != nil && !req.FollowUpNeeded {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "follow_up_date requires follow_up_needed"))
	}

	var visit *domain.NurseVisit
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		visit, err = tx.GetVisit(ctx, req.VisitID)
		if err != nil {
			return err
		}
		if visit.Status != domain.VisitInProgress {
			return domain.Errorf(domain.KindInvalidStateTransition, op, "visit %s is already %s", visit.ID, visit.Status)
		}
		visit.Status = req.Outcome
		if req.Outcome == domain.VisitCompleted {
			visit.Diagnosis = strings.TrimSpace(req.Diagnosis)
			visit.Treatment = strings.TrimSpace(req.Treatment)
			visit.Recommendations = strings.TrimSpace(req.Recommendations)
			visit.FollowUpNeeded = req.FollowUpNeeded
			if req.FollowUpDate != nil {
				visit.FollowUpDate = timeRef(*req.FollowUpDate)
			}
		}
		return tx.PutVisit(ctx, visit)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	s.accepted(op, actor, zap.String("visit_id", visit.ID), zap.String("status", string(visit.Status)))
	if visit.FollowUpNeeded && visit.FollowUpDate != nil {
		s.notify(ctx, domain.NotificationDraft{
			UserID:  visit.UserID,
			Type:    domain.NotificationWarning,
			Title:   "Nurse follow-up",
			Message: "Please return to the nurse on " + visit.FollowUpDate.Format("2006-01-02") + ".",
		})
	}
	return visit, nil
}

// ListReferrals 转诊列表，最新在前
func (s *MedicalService) ListReferrals(ctx context.Context, actor domain.Actor, f repository.ReferralFilter) ([]*domain.NurseReferral, error) {
	const op = "listReferrals"
	uid, err := s.scope(op, actor, permission.ResourceReferrals)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		f.UserID = uid
	}
	var out []*domain.NurseReferral
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListReferrals(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReferredAt.After(out[j].ReferredAt) })
	return out, nil
}

// ListVisits 就诊列表，最新在前
func (s *MedicalService) ListVisits(ctx context.Context, actor domain.Actor, f repository.VisitFilter) ([]*domain.NurseVisit, error) {
	const op = "listVisits"
	uid, err := s.scope(op, actor, permission.ResourceVisits)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		f.UserID = uid
	}
	var out []*domain.NurseVisit
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListVisits(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VisitDate.After(out[j].VisitDate) })
	return out, nil
}

// ReferralStats 各状态的转诊数量
type ReferralStats struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Aborted   int `json:"aborted"`
}

func (s *MedicalService) ReferralStats(ctx context.Context, actor domain.Actor) (*ReferralStats, error) {
	refs, err := s.ListReferrals(ctx, actor, repository.ReferralFilter{})
	if err != nil {
		return nil, err
	}
	stats := &ReferralStats{}
	for _, r := range refs {
		switch r.Status {
		case domain.ReferralPending:
			stats.Pending++
		case domain.ReferralCompleted:
			stats.Completed++
		case domain.ReferralAborted:
			stats.Aborted++
		}
	}
	return stats, nil
}
