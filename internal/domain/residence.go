package domain

// Room 宿舍房间
// 不变量：CurrentOccupancy == len(OccupantIDs) <= MaxOccupancy
type Room struct {
	ID               string   `json:"id" yaml:"id"`
	RoomNumber       string   `json:"room_number,omitempty" yaml:"room_number"`
	Building         string   `json:"building,omitempty" yaml:"building"`
	Floor            string   `json:"floor,omitempty" yaml:"floor"`
	Gender           Gender   `json:"gender" yaml:"gender"`
	MaxOccupancy     int      `json:"max_occupancy" yaml:"max_occupancy"`
	CurrentOccupancy int      `json:"current_occupancy" yaml:"current_occupancy"`
	OccupantIDs      []string `json:"occupant_ids" yaml:"occupant_ids"`
}

// HasVacancy 是否还有空位
func (r *Room) HasVacancy() bool {
	return r.CurrentOccupancy < r.MaxOccupancy
}

// HasOccupant reports whether userID is listed in the room.
func (r *Room) HasOccupant(userID string) bool {
	for _, id := range r.OccupantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddOccupant appends userID and keeps CurrentOccupancy in sync.
func (r *Room) AddOccupant(userID string) {
	if r.HasOccupant(userID) {
		return
	}
	r.OccupantIDs = append(r.OccupantIDs, userID)
	r.CurrentOccupancy = len(r.OccupantIDs)
}

// RemoveOccupant drops userID and keeps CurrentOccupancy in sync.
func (r *Room) RemoveOccupant(userID string) {
	out := r.OccupantIDs[:0]
	for _, id := range r.OccupantIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	r.OccupantIDs = out
	r.CurrentOccupancy = len(r.OccupantIDs)
}

func (r *Room) Clone() *Room {
	cp := *r
	cp.OccupantIDs = append([]string(nil), r.OccupantIDs...)
	return &cp
}

func (r *Room) Validate() error {
	if r.ID == "" {
		return Errorf(KindValidation, "room", "id is required")
	}
	if !r.Gender.Valid() {
		return Errorf(KindValidation, "room", "invalid gender %q", r.Gender)
	}
	if r.MaxOccupancy < 0 {
		return Errorf(KindValidation, "room", "max_occupancy must be non-negative")
	}
	if r.CurrentOccupancy != len(r.OccupantIDs) {
		return Errorf(KindValidation, "room", "current_occupancy %d does not match %d occupants",
			r.CurrentOccupancy, len(r.OccupantIDs))
	}
	if r.CurrentOccupancy > r.MaxOccupancy {
		return Errorf(KindCapacityExceeded, "room", "occupancy %d exceeds max %d", r.CurrentOccupancy, r.MaxOccupancy)
	}
	seen := make(map[string]struct{}, len(r.OccupantIDs))
	for _, id := range r.OccupantIDs {
		if _, dup := seen[id]; dup {
			return Errorf(KindValidation, "room", "occupant %s listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// CanAssignRoom: 性别一致且仍有空位
func CanAssignRoom(resident *Resident, room *Room) bool {
	return resident.Gender == room.Gender && room.CurrentOccupancy < room.MaxOccupancy
}

// LockerStatus 储物柜状态
type LockerStatus string

const (
	LockerAvailable   LockerStatus = "available"
	LockerAssigned    LockerStatus = "assigned"
	LockerMaintenance LockerStatus = "maintenance"
	LockerReserved    LockerStatus = "reserved"
)

func (s LockerStatus) Valid() bool {
	switch s {
	case LockerAvailable, LockerAssigned, LockerMaintenance, LockerReserved:
		return true
	}
	return false
}

// Locker 储物柜
// 不变量：AssignedUserID 非空 当且仅当 Status == assigned
type Locker struct {
	ID             string       `json:"id" yaml:"id"`
	LockerNumber   string       `json:"locker_number,omitempty" yaml:"locker_number"`
	Location       string       `json:"location,omitempty" yaml:"location"`
	Size           string       `json:"size,omitempty" yaml:"size"`
	Status         LockerStatus `json:"status" yaml:"status"`
	AssignedUserID string       `json:"assigned_user_id,omitempty" yaml:"assigned_user_id"`
}

func (l *Locker) Validate() error {
	if l.ID == "" {
		return Errorf(KindValidation, "locker", "id is required")
	}
	if !l.Status.Valid() {
		return Errorf(KindValidation, "locker", "invalid status %q", l.Status)
	}
	if (l.Status == LockerAssigned) != (l.AssignedUserID != "") {
		return Errorf(KindValidation, "locker", "assigned_user_id must be set exactly when status is assigned")
	}
	return nil
}
