package domain

import (
	"math"
	"time"
)

// LeaveType 请假类型
type LeaveType string

const (
	LeaveSick      LeaveType = "sick"
	LeaveVacation  LeaveType = "vacation"
	LeaveEmergency LeaveType = "emergency"
	LeaveOther     LeaveType = "other"
)

func (t LeaveType) Valid() bool {
	switch t {
	case LeaveSick, LeaveVacation, LeaveEmergency, LeaveOther:
		return true
	}
	return false
}

// Leave 请假记录
type Leave struct {
	ID         string     `json:"id" yaml:"id"`
	UserID     string     `json:"user_id" yaml:"user_id"`
	Type       LeaveType  `json:"type" yaml:"type"`
	StartDate  time.Time  `json:"start_date" yaml:"start_date"`
	EndDate    time.Time  `json:"end_date" yaml:"end_date"`
	Reason     string     `json:"reason,omitempty" yaml:"reason"`
	Status     Status     `json:"status" yaml:"status"`
	ApprovedBy string     `json:"approved_by,omitempty" yaml:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" yaml:"approved_at"`
	Comments   string     `json:"comments,omitempty" yaml:"comments"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
}

func (l *Leave) Validate() error {
	if l.ID == "" || l.UserID == "" {
		return Errorf(KindValidation, "leave", "id and user_id are required")
	}
	if !l.Type.Valid() {
		return Errorf(KindValidation, "leave", "invalid leave type %q", l.Type)
	}
	if !l.Status.Valid() {
		return Errorf(KindValidation, "leave", "invalid status %q", l.Status)
	}
	if l.EndDate.Before(l.StartDate) {
		return Errorf(KindValidation, "leave", "end_date must not be before start_date")
	}
	return nil
}

// IsActive: status == approved 且 startDate <= now <= endDate
func IsActive(l *Leave, now time.Time) bool {
	return l.Status == StatusApproved && !now.Before(l.StartDate) && !now.After(l.EndDate)
}

// RemainingDays 剩余请假天数（向上取整），非 active 时为 0
func RemainingDays(l *Leave, now time.Time) int {
	if !IsActive(l, now) {
		return 0
	}
	return int(math.Ceil(l.EndDate.Sub(now).Hours() / 24))
}
