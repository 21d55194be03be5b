package domain

import (
	"math"
	"time"
)

// ReferralStatus 护士转诊状态
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
	ReferralAborted   ReferralStatus = "aborted"
)

func (s ReferralStatus) Valid() bool {
	switch s {
	case ReferralPending, ReferralCompleted, ReferralAborted:
		return true
	}
	return false
}

// NurseReferral 宿舍主管发起的护士转诊
type NurseReferral struct {
	ID          string         `json:"id" yaml:"id"`
	UserID      string         `json:"user_id" yaml:"user_id"`
	ReferredBy  string         `json:"referred_by" yaml:"referred_by"`
	Reason      string         `json:"reason" yaml:"reason"`
	Status      ReferralStatus `json:"status" yaml:"status"`
	ReferredAt  time.Time      `json:"referred_at" yaml:"referred_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at"`
	DoctorNotes string         `json:"doctor_notes,omitempty" yaml:"doctor_notes"`
	NurseReport string         `json:"nurse_report,omitempty" yaml:"nurse_report"`
}

func (r *NurseReferral) Validate() error {
	if r.ID == "" || r.UserID == "" {
		return Errorf(KindValidation, "referral", "id and user_id are required")
	}
	if !r.Status.Valid() {
		return Errorf(KindValidation, "referral", "invalid status %q", r.Status)
	}
	// completedAt 当且仅当 completed
	if (r.Status == ReferralCompleted) != (r.CompletedAt != nil) {
		return Errorf(KindValidation, "referral", "completed_at must be set exactly when completed")
	}
	return nil
}

// DaysSinceReferral 转诊至今的天数（向上取整）
func DaysSinceReferral(r *NurseReferral, now time.Time) int {
	d := now.Sub(r.ReferredAt)
	if d < 0 {
		d = -d
	}
	return int(math.Ceil(d.Hours() / 24))
}

// VisitType 就诊类型
type VisitType string

const (
	VisitReferral  VisitType = "referral"
	VisitWalkIn    VisitType = "walk_in"
	VisitScheduled VisitType = "scheduled"
	VisitEmergency VisitType = "emergency"
)

func (t VisitType) Valid() bool {
	switch t {
	case VisitReferral, VisitWalkIn, VisitScheduled, VisitEmergency:
		return true
	}
	return false
}

// VisitStatus 就诊状态
type VisitStatus string

const (
	VisitInProgress VisitStatus = "in_progress"
	VisitCompleted  VisitStatus = "completed"
	VisitCancelled  VisitStatus = "cancelled"
)

func (s VisitStatus) Valid() bool {
	switch s {
	case VisitInProgress, VisitCompleted, VisitCancelled:
		return true
	}
	return false
}

// NurseVisit 护士就诊记录
type NurseVisit struct {
	ID         string      `json:"id" yaml:"id"`
	UserID     string      `json:"user_id" yaml:"user_id"`
	NurseID    string      `json:"nurse_id" yaml:"nurse_id"`
	VisitType  VisitType   `json:"visit_type" yaml:"visit_type"`
	ReferralID string      `json:"referral_id,omitempty" yaml:"referral_id"` // 仅 referral 类型
	Symptoms   string      `json:"symptoms" yaml:"symptoms"`
	VisitDate  time.Time   `json:"visit_date" yaml:"visit_date"`
	Status     VisitStatus `json:"status" yaml:"status"`

	Diagnosis       string `json:"diagnosis,omitempty" yaml:"diagnosis"`
	Treatment       string `json:"treatment,omitempty" yaml:"treatment"`
	Recommendations string `json:"recommendations,omitempty" yaml:"recommendations"`

	FollowUpNeeded bool       `json:"follow_up_needed" yaml:"follow_up_needed"`
	FollowUpDate   *time.Time `json:"follow_up_date,omitempty" yaml:"follow_up_date"`
}

func (v *NurseVisit) Validate() error {
	if v.ID == "" || v.UserID == "" {
		return Errorf(KindValidation, "visit", "id and user_id are required")
	}
	if !v.VisitType.Valid() {
		return Errorf(KindValidation, "visit", "invalid visit type %q", v.VisitType)
	}
	if !v.Status.Valid() {
		return Errorf(KindValidation, "visit", "invalid status %q", v.Status)
	}
	if (v.VisitType == VisitReferral) != (v.ReferralID != "") {
		return Errorf(KindValidation, "visit", "referral_id is required iff visit_type is referral")
	}
	if v.FollowUpDate != nil && !v.FollowUpNeeded {
		return Errorf(KindValidation, "visit", "follow_up_date set without follow_up_needed")
	}
	return nil
}
