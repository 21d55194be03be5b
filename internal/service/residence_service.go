package service

import (
	"context"
	"fmt"
	"strings"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/permission"
	"dorm-engine/internal/repository"

	"go.uber.org/zap"
)

// ResidenceService 房间与储物柜分配
type ResidenceService struct {
	*base
}

// RoomAssignment 分配结果
type RoomAssignment struct {
	Resident *domain.Resident `json:"resident"`
	Room     *domain.Room     `json:"room"`
}

// AssignRoom 把住户分配到房间；已在其他房间时原子地迁出
func (s *ResidenceService) AssignRoom(ctx context.Context, actor domain.Actor, residentID, roomID string) (*RoomAssignment, error) {
	const op = "assignRoom"
	if err := s.guard(op, actor, permission.ManageRooms); err != nil {
		return nil, err
	}

	var out RoomAssignment
	moved := false
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		resident, err := tx.GetResident(ctx, residentID)
		if err != nil {
			return err
		}
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		out = RoomAssignment{Resident: resident, Room: room}

		// 重复分配视为无操作
		if resident.RoomID == roomID && room.HasOccupant(residentID) {
			return nil
		}
		if resident.Gender != room.Gender {
			return domain.Errorf(domain.KindGenderMismatch, op, "resident %s (%s) cannot be placed in %s room %s",
				resident.UserID, resident.Gender, room.Gender, room.ID)
		}
		if !room.HasVacancy() {
			return domain.Errorf(domain.KindCapacityExceeded, op, "room %s is full (%d/%d)",
				room.ID, room.CurrentOccupancy, room.MaxOccupancy)
		}

		if resident.RoomID != "" && resident.RoomID != roomID {
			prev, err := tx.GetRoom(ctx, resident.RoomID)
			if err != nil && domain.KindOf(err) != domain.KindNotFound {
				return err
			}
			if prev != nil {
				prev.RemoveOccupant(residentID)
				if err := tx.PutRoom(ctx, prev); err != nil {
					return err
				}
			}
		}
		room.AddOccupant(residentID)
		resident.RoomID = roomID
		moved = true
		if err := tx.PutRoom(ctx, room); err != nil {
			return err
		}
		return tx.PutResident(ctx, resident)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	if moved {
		s.accepted(op, actor, zap.String("resident", residentID), zap.String("room_id", roomID))
		s.notify(ctx, domain.NotificationDraft{
			UserID:  residentID,
			Type:    domain.NotificationInfo,
			Title:   "Room assigned",
			Message: fmt.Sprintf("You have been assigned to room %s.", roomLabel(out.Room)),
		})
	}
	return &out, nil
}

func roomLabel(r *domain.Room) string {
	if r.RoomNumber == "" {
		return r.ID
	}
	if r.Building != "" {
		return r.Building + " " + r.RoomNumber
	}
	return r.RoomNumber
}

// VacateRoom 住户退房；未分配房间时无操作
func (s *ResidenceService) VacateRoom(ctx context.Context, actor domain.Actor, residentID string) (*domain.Resident, error) {
	const op = "vacateRoom"
	if err := s.guard(op, actor, permission.ManageRooms); err != nil {
		return nil, err
	}

	var resident *domain.Resident
	var roomID string
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		resident, err = tx.GetResident(ctx, residentID)
		if err != nil {
			return err
		}
		roomID = resident.RoomID
		if roomID == "" {
			return nil
		}
		room, err := tx.GetRoom(ctx, roomID)
		switch {
		case err == nil:
			room.RemoveOccupant(residentID)
			if err := tx.PutRoom(ctx, room); err != nil {
				return err
			}
		case domain.KindOf(err) != domain.KindNotFound:
			return err
		}
		resident.RoomID = ""
		return tx.PutResident(ctx, resident)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	if roomID != "" {
		s.accepted(op, actor, zap.String("resident", residentID), zap.String("room_id", roomID))
	}
	return resident, nil
}

// LockerAssignment 储物柜分配结果
type LockerAssignment struct {
	Resident *domain.Resident `json:"resident"`
	Locker   *domain.Locker   `json:"locker"`
}

// AssignLocker 分配储物柜；住户原有储物柜先释放
func (s *ResidenceService) AssignLocker(ctx context.Context, actor domain.Actor, residentID, lockerID string) (*LockerAssignment, error) {
	const op = "assignLocker"
	if err := s.guard(op, actor, permission.ManageLockers); err != nil {
		return nil, err
	}

	var out LockerAssignment
	changed := false
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		resident, err := tx.GetResident(ctx, residentID)
		if err != nil {
			return err
		}
		locker, err := tx.GetLocker(ctx, lockerID)
		if err != nil {
			return err
		}
		out = LockerAssignment{Resident: resident, Locker: locker}

		if locker.Status == domain.LockerAssigned && locker.AssignedUserID == residentID {
			return nil
		}
		if locker.Status != domain.LockerAvailable {
			return domain.Errorf(domain.KindCapacityExceeded, op, "locker %s not available (%s)", locker.ID, locker.Status)
		}

		if resident.LockerID != "" && resident.LockerID != lockerID {
			prev, err := tx.GetLocker(ctx, resident.LockerID)
			if err != nil && domain.KindOf(err) != domain.KindNotFound {
				return err
			}
			if prev != nil && prev.AssignedUserID == residentID {
				prev.Status = domain.LockerAvailable
				prev.AssignedUserID = ""
				if err := tx.PutLocker(ctx, prev); err != nil {
					return err
				}
			}
		}
		locker.Status = domain.LockerAssigned
		locker.AssignedUserID = residentID
		resident.LockerID = lockerID
		changed = true
		if err := tx.PutLocker(ctx, locker); err != nil {
			return err
		}
		return tx.PutResident(ctx, resident)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}

	if changed {
		s.accepted(op, actor, zap.String("resident", residentID), zap.String("locker_id", lockerID))
		label := out.Locker.LockerNumber
		if label == "" {
			label = out.Locker.ID
		}
		s.notify(ctx, domain.NotificationDraft{
			UserID:  residentID,
			Type:    domain.NotificationInfo,
			Title:   "Locker assigned",
			Message: "You have been assigned locker " + label + ".",
		})
	}
	return &out, nil
}

// UnassignLocker 释放储物柜；lockerID 为空时释放住户当前的储物柜
func (s *ResidenceService) UnassignLocker(ctx context.Context, actor domain.Actor, residentID, lockerID string) (*LockerAssignment, error) {
	const op = "unassignLocker"
	if err := s.guard(op, actor, permission.ManageLockers); err != nil {
		return nil, err
	}

	var out LockerAssignment
	changed := false
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		resident, err := tx.GetResident(ctx, residentID)
		if err != nil {
			return err
		}
		out.Resident = resident
		if lockerID == "" {
			lockerID = resident.LockerID
		}
		if lockerID == "" {
			return nil
		}
		locker, err := tx.GetLocker(ctx, lockerID)
		if err != nil {
			return err
		}
		out.Locker = locker
		if locker.AssignedUserID != "" && locker.AssignedUserID != residentID {
			return domain.Errorf(domain.KindValidation, op, "locker %s is held by another resident", locker.ID)
		}
		if locker.AssignedUserID == residentID {
			locker.Status = domain.LockerAvailable
			locker.AssignedUserID = ""
			changed = true
			if err := tx.PutLocker(ctx, locker); err != nil {
				return err
			}
		}
		if resident.LockerID == lockerID {
			resident.LockerID = ""
			changed = true
			return tx.PutResident(ctx, resident)
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	if changed {
		s.accepted(op, actor, zap.String("resident", residentID), zap.String("locker_id", lockerID))
	}
	return &out, nil
}

// CreateRoomRequest 新建房间
type CreateRoomRequest struct {
	ID           string        `json:"id"`
	RoomNumber   string        `json:"room_number"`
	Building     string        `json:"building"`
	Floor        string        `json:"floor"`
	Gender       domain.Gender `json:"gender"`
	MaxOccupancy int           `json:"max_occupancy"`
}

func (s *ResidenceService) CreateRoom(ctx context.Context, actor domain.Actor, req CreateRoomRequest) (*domain.Room, error) {
	const op = "createRoom"
	if err := s.guard(op, actor, permission.ManageRooms); err != nil {
		return nil, err
	}
	if req.MaxOccupancy <= 0 {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "max_occupancy must be positive"))
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = s.newID()
	}

	room := &domain.Room{
		ID:           id,
		RoomNumber:   strings.TrimSpace(req.RoomNumber),
		Building:     strings.TrimSpace(req.Building),
		Floor:        strings.TrimSpace(req.Floor),
		Gender:       req.Gender,
		MaxOccupancy: req.MaxOccupancy,
		OccupantIDs:  []string{},
	}
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetRoom(ctx, id); err == nil {
			return domain.Errorf(domain.KindValidation, op, "room %s already exists", id)
		} else if domain.KindOf(err) != domain.KindNotFound {
			return err
		}
		return tx.PutRoom(ctx, room)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("room_id", room.ID), zap.String("gender", string(room.Gender)))
	return room, nil
}

// UpdateRoomCapacity 修改房间容量，不能低于当前入住人数
func (s *ResidenceService) UpdateRoomCapacity(ctx context.Context, actor domain.Actor, roomID string, maxOccupancy int) (*domain.Room, error) {
	const op = "updateRoomCapacity"
	if err := s.guard(op, actor, permission.ManageRooms); err != nil {
		return nil, err
	}
	if maxOccupancy <= 0 {
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op, "max_occupancy must be positive"))
	}
	var room *domain.Room
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		room, err = tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if maxOccupancy < room.CurrentOccupancy {
			return domain.Errorf(domain.KindCapacityExceeded, op, "room %s has %d occupants", room.ID, room.CurrentOccupancy)
		}
		room.MaxOccupancy = maxOccupancy
		return tx.PutRoom(ctx, room)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("room_id", roomID), zap.Int("max_occupancy", maxOccupancy))
	return room, nil
}

// CreateLockerRequest 新建储物柜
type CreateLockerRequest struct {
	ID           string `json:"id"`
	LockerNumber string `json:"locker_number"`
	Location     string `json:"location"`
	Size         string `json:"size"`
}

func (s *ResidenceService) CreateLocker(ctx context.Context, actor domain.Actor, req CreateLockerRequest) (*domain.Locker, error) {
	const op = "createLocker"
	if err := s.guard(op, actor, permission.ManageLockers); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = s.newID()
	}
	locker := &domain.Locker{
		ID:           id,
		LockerNumber: strings.TrimSpace(req.LockerNumber),
		Location:     strings.TrimSpace(req.Location),
		Size:         strings.TrimSpace(req.Size),
		Status:       domain.LockerAvailable,
	}
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetLocker(ctx, id); err == nil {
			return domain.Errorf(domain.KindValidation, op, "locker %s already exists", id)
		} else if domain.KindOf(err) != domain.KindNotFound {
			return err
		}
		return tx.PutLocker(ctx, locker)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("locker_id", locker.ID))
	return locker, nil
}

// SetLockerStatus 维护/预留/恢复可用；已分配的储物柜需先释放
func (s *ResidenceService) SetLockerStatus(ctx context.Context, actor domain.Actor, lockerID string, status domain.LockerStatus) (*domain.Locker, error) {
	const op = "setLockerStatus"
	if err := s.guard(op, actor, permission.ManageLockers); err != nil {
		return nil, err
	}
	switch status {
	case domain.LockerAvailable, domain.LockerMaintenance, domain.LockerReserved:
	default:
		return nil, s.finish(op, actor, domain.Errorf(domain.KindValidation, op,
			"status must be available, maintenance or reserved, got %q", status))
	}
	var locker *domain.Locker
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		var err error
		locker, err = tx.GetLocker(ctx, lockerID)
		if err != nil {
			return err
		}
		if locker.Status == domain.LockerAssigned {
			return domain.Errorf(domain.KindInvalidStateTransition, op, "locker %s is assigned to %s", locker.ID, locker.AssignedUserID)
		}
		locker.Status = status
		return tx.PutLocker(ctx, locker)
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	s.accepted(op, actor, zap.String("locker_id", lockerID), zap.String("status", string(status)))
	return locker, nil
}

// ListRooms 住户只能看到自己的房间
func (s *ResidenceService) ListRooms(ctx context.Context, actor domain.Actor, f repository.RoomFilter) ([]*domain.Room, error) {
	const op = "listRooms"
	uid, err := s.scope(op, actor, permission.ResourceRooms)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		f.OccupantID = uid
	}
	var out []*domain.Room
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListRooms(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	return out, nil
}

func (s *ResidenceService) ListLockers(ctx context.Context, actor domain.Actor, f repository.LockerFilter) ([]*domain.Locker, error) {
	const op = "listLockers"
	uid, err := s.scope(op, actor, permission.ResourceLockers)
	if err != nil {
		return nil, err
	}
	if uid != "" {
		f.AssignedUserID = uid
	}
	var out []*domain.Locker
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListLockers(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.finish(op, actor, err)
	}
	return out, nil
}

// OccupancyStats 房间/储物柜占用统计
type OccupancyStats struct {
	Rooms           int     `json:"rooms"`
	Beds            int     `json:"beds"`
	OccupiedBeds    int     `json:"occupied_beds"`
	RoomOccupancy   float64 `json:"room_occupancy_pct"`
	Lockers         int     `json:"lockers"`
	AssignedLockers int     `json:"assigned_lockers"`
	LockerOccupancy float64 `json:"locker_occupancy_pct"`
}

// OccupancyStats 汇总占用率（百分比，0 容量时为 0）
func (s *ResidenceService) OccupancyStats(ctx context.Context, actor domain.Actor) (*OccupancyStats, error) {
	rooms, err := s.ListRooms(ctx, actor, repository.RoomFilter{})
	if err != nil {
		return nil, err
	}
	lockers, err := s.ListLockers(ctx, actor, repository.LockerFilter{})
	if err != nil {
		return nil, err
	}
	return occupancyOf(rooms, lockers), nil
}

func occupancyOf(rooms []*domain.Room, lockers []*domain.Locker) *OccupancyStats {
	st := &OccupancyStats{Rooms: len(rooms), Lockers: len(lockers)}
	for _, r := range rooms {
		st.Beds += r.MaxOccupancy
		st.OccupiedBeds += r.CurrentOccupancy
	}
	for _, l := range lockers {
		if l.Status == domain.LockerAssigned {
			st.AssignedLockers++
		}
	}
	st.RoomOccupancy = percent(st.OccupiedBeds, st.Beds)
	st.LockerOccupancy = percent(st.AssignedLockers, st.Lockers)
	return st
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
