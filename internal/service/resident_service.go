package service

import (
	"context"
	"strings"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/permission"
	"dorm-engine/internal/repository"

	"go.uber.org/zap"
)

// ResidentService 住户档案
type ResidentService struct {
	*base
}

// RegisterResidentRequest 登记住户
type RegisterResidentRequest struct {
	UserID            string                   `json:"user_id"`
	FirstName         string                   `json:"first_name"`
	LastName          string                   `json:"last_name"`
	Gender            domain.Gender            `json:"gender"`
	ResidentialStatus domain.ResidentialStatus `json:"residential_status"`
	MaxPasses         *int                     `json:"max_passes,omitempty"` // nil 使用默认配额
}

func (s *ResidentService) RegisterResident(ctx context.Context, actor domain.Actor, req RegisterResidentRequest) (*domain.Resident, error) {
	const op = "registerResident"
	if err := s.guard(op, actor, permission.ManageUsers); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "user_id is required"))
	}
	if !req.Gender.Valid() {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "invalid gender %q", req.Gender))
	}

	maxPasses := s.defaultMaxPasses
	if req.MaxPasses != nil {
		maxPasses = *req.MaxPasses
	}
	status := req.ResidentialStatus
	if status == "" {
		status = domain.Residential
	}
	resident := &domain.Resident{
		UserID:            strings.TrimSpace(req.UserID),
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Gender:            req.Gender,
		ResidentialStatus: status,
		MaxPasses:         maxPasses,
		CampusStatus:      domain.OnCampus,
	}
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetResident(ctx, resident.UserID); err == nil {
			return domain.Errorf(domain.KindValidation, op, "resident %s already registered", resident.UserID)
		} else if domain.KindOf(err) != domain.KindNotFound {
			return err
		}
		return tx.PutResident(ctx, resident)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("resident", resident.UserID), zap.Int("max_passes", maxPasses))
	return resident, nil
}

// SetMaxPasses 调整外出配额，不能低于已用次数
func (s *ResidentService) SetMaxPasses(ctx context.Context, actor domain.Actor, residentID string, maxPasses int) (*domain.Resident, error) {
	const op = "setMaxPasses"
	if err := s.guard(op, actor, permission.ManageUsers); err != nil {
		return nil, err
	}
	var resident *domain.Resident
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		resident, err = tx.GetResident(ctx, residentID)
		if err != nil {
			return err
		}
		if maxPasses < resident.PassesUsed {
			return domain.Errorf(domain.KindValidation, op, "max_passes %d is below passes_used %d", maxPasses, resident.PassesUsed)
		}
		resident.MaxPasses = maxPasses
		return tx.PutResident(ctx, resident)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("resident", residentID), zap.Int("max_passes", maxPasses))
	return resident, nil
}

// SetCampusStatus Security 手动修改在校状态
func (s *ResidentService) SetCampusStatus(ctx context.Context, actor domain.Actor, residentID string, status domain.CampusStatus) (*domain.Resident, error) {
	const op = "setCampusStatus"
	if err := s.guard(op, actor, permission.OverrideCampusStatus); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "invalid campus status %q", status))
	}
	var resident *domain.Resident
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		resident, err = tx.GetResident(ctx, residentID)
		if err != nil {
			return err
		}
		if resident.CampusStatus == status {
			return nil
		}
		resident.CampusStatus = status
		return tx.PutResident(ctx, resident)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("resident", residentID), zap.String("campus_status", string(status)))
	return resident, nil
}

// GetResident 住户只能查看自己
func (s *ResidentService) GetResident(ctx context.Context, actor domain.Actor, residentID string) (*domain.Resident, error) {
	const op = "getResident"
	uid, err := s.scope(op, actor, permission.ResourceResidents)
	if err != nil {
		return nil, err
	}
	if uid != "" && uid != residentID {
		return nil, s.finish(op, actor, domain.NotFound("resident", residentID))
	}
	var resident *domain.Resident
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		resident, err = tx.GetResident(ctx, residentID)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	return resident, nil
}

func (s *ResidentService) ListResidents(ctx context.Context, actor domain.Actor, f repository.ResidentFilter) ([]*domain.Resident, error) {
	const op = "listResidents"
	uid, err := s.scope(op, actor, permission.ResourceResidents)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		f.UserID = uid
	}
	var out []*domain.Resident
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListResidents(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	return out, nil
}
