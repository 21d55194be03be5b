package service

import (
	"context"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/permission"
	"dorm-engine/internal/repository"

	"go.uber.org/zap"
)

// occupancyCriticalPct 占用率超过该值时告警
const occupancyCriticalPct = 90.0

// DashboardService 首页统计
type DashboardService struct {
	*base
}

// DashboardStats 首页统计数据（按 actor 的查询范围计算）
type DashboardStats struct {
	TotalResidents int `json:"total_residents"`
	Male           int `json:"male"`
	Female         int `json:"female"`
	Other          int `json:"other"`
	OnCampus       int `json:"on_campus"`
	OffCampus      int `json:"off_campus"`

	ActiveGatePasses  int `json:"active_gate_passes"`
	PendingGatePasses int `json:"pending_gate_passes"`

	ActiveSickLeaves int `json:"active_sick_leaves"`
	ActiveVacations  int `json:"active_vacations"`
	PendingLeaves    int `json:"pending_leaves"`

	PendingReferrals int `json:"pending_referrals"`

	RoomOccupancy     float64 `json:"room_occupancy_pct"`
	LockerOccupancy   float64 `json:"locker_occupancy_pct"`
	OccupancyCritical bool    `json:"occupancy_critical"`

	// 仅 Trainee
	RemainingPasses *int `json:"remaining_passes,omitempty"`

	UnreadNotifications int `json:"unread_notifications"`
}

// Stats 在一个只读事务内汇总
func (s *DashboardService) Stats(ctx context.Context, actor domain.Actor) (*DashboardStats, error) {
	const op = "dashboardStats"
	if err := s.guard(op, actor, permission.ViewDashboard); err != nil {
		return nil, err
	}
	// 未读数与自身范围都按 user id 统计
	if err := s.requireIdentity(op, actor); err != nil {
		return nil, err
	}
	scoped := func(res permission.Resource) string {
		if permission.ViewScope(actor, res) == permission.ScopeAll {
			return ""
		}
		return actor.UserID
	}

	now := s.now()
	st := &DashboardStats{}
	err := s.store.View(ctx, func(tx repository.Tx) error {
		residents, err := tx.ListResidents(ctx, repository.ResidentFilter{UserID: scoped(permission.ResourceResidents)})
		if err != nil {
			return err
		}
		st.TotalResidents = len(residents)
		for _, r := range residents {
			switch r.Gender {
			case domain.GenderMale:
				st.Male++
			case domain.GenderFemale:
				st.Female++
			case domain.GenderOther:
				st.Other++
			}
			if r.CampusStatus == domain.OffCampus {
				st.OffCampus++
			} else {
				st.OnCampus++
			}
		}

		passes, err := tx.ListGatePasses(ctx, repository.GatePassFilter{UserID: scoped(permission.ResourceGatePasses)})
		if err != nil {
			return err
		}
		for _, p := range passes {
			switch {
			case domain.IsGatePassActive(p):
				st.ActiveGatePasses++
			case p.Status == domain.StatusPending:
				st.PendingGatePasses++
			}
		}

		leaves, err := tx.ListLeaves(ctx, repository.LeaveFilter{UserID: scoped(permission.ResourceLeaves)})
		if err != nil {
			return err
		}
		for _, l := range leaves {
			if l.Status == domain.StatusPending {
				st.PendingLeaves++
				continue
			}
			if !domain.IsActive(l, now) {
				continue
			}
			switch l.Type {
			case domain.LeaveSick:
				st.ActiveSickLeaves++
			case domain.LeaveVacation:
				st.ActiveVacations++
			}
		}

		refs, err := tx.ListReferrals(ctx, repository.ReferralFilter{
			UserID: scoped(permission.ResourceReferrals),
			Status: domain.ReferralPending,
		})
		if err != nil {
			return err
		}
		st.PendingReferrals = len(refs)

		rooms, err := tx.ListRooms(ctx, repository.RoomFilter{OccupantID: scoped(permission.ResourceRooms)})
		if err != nil {
			return err
		}
		lockers, err := tx.ListLockers(ctx, repository.LockerFilter{AssignedUserID: scoped(permission.ResourceLockers)})
		if err != nil {
			return err
		}
		occ := occupancyOf(rooms, lockers)
		st.RoomOccupancy = occ.RoomOccupancy
		st.LockerOccupancy = occ.LockerOccupancy
		st.OccupancyCritical = occ.RoomOccupancy > occupancyCriticalPct || occ.LockerOccupancy > occupancyCriticalPct

		if actor.Role == domain.RoleTrainee {
			self, err := tx.GetResident(ctx, actor.UserID)
			switch {
			case err == nil:
				remaining := self.RemainingPasses()
				st.RemainingPasses = &remaining
			case domain.KindOf(err) != domain.KindNotFound:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	if s.notifier != nil {
		n, err := s.notifier.Ledger().UnreadCount(ctx, actor.UserID)
		if err != nil {
			// 统计不因通知存储故障失败
			s.logger.Warn("Failed to count unread notifications", zap.String("user_id", actor.UserID), zap.Error(err))
		} else {
			st.UnreadNotifications = n
		}
	}
	return st, nil
}
