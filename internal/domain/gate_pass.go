package domain

import (
	"strings"
	"time"
)

// Status 审批状态（gate pass 与 leave 共用）
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal: approved / rejected 之后状态不再变化
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision 审批决定
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts "approve"/"approved" and "reject"/"rejected".
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return DecisionApprove, true
	case "reject", "rejected":
		return DecisionReject, true
	}
	return "", false
}

// GatePass 外出通行证
type GatePass struct {
	ID            string    `json:"id" yaml:"id"`
	UserID        string    `json:"user_id" yaml:"user_id"`
	Destination   string    `json:"destination" yaml:"destination"`
	Reason        string    `json:"reason" yaml:"reason"`
	RequestDate   time.Time `json:"request_date" yaml:"request_date"`
	RequestTime   string    `json:"request_time" yaml:"request_time"` // HH:MM（申请时刻）
	DepartureDate time.Time `json:"departure_date" yaml:"departure_date"`
	ReturnDate    time.Time `json:"return_date" yaml:"return_date"`
	Status        Status    `json:"status" yaml:"status"`
	IsUsed        bool      `json:"is_used" yaml:"is_used"`

	ApprovedBy      string     `json:"approved_by,omitempty" yaml:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" yaml:"approved_at"`
	RejectionReason string     `json:"rejection_reason,omitempty" yaml:"rejection_reason"`

	// Security 使用确认
	ConfirmedBy string     `json:"confirmed_by,omitempty" yaml:"confirmed_by"`
	UsedAt      *time.Time `json:"used_at,omitempty" yaml:"used_at"`
}

// IsGatePassActive: approved 且尚未使用
func IsGatePassActive(p *GatePass) bool {
	return p.Status == StatusApproved && !p.IsUsed
}

func (p *GatePass) Validate() error {
	if p.ID == "" || p.UserID == "" {
		return Errorf(KindValidation, "gatePass", "id and user_id are required")
	}
	if !p.Status.Valid() {
		return Errorf(KindValidation, "gatePass", "invalid status %q", p.Status)
	}
	if p.ReturnDate.Before(p.DepartureDate) {
		return Errorf(KindValidation, "gatePass", "return_date must not be before departure_date")
	}
	if p.IsUsed && p.Status != StatusApproved {
		return Errorf(KindInvalidStateTransition, "gatePass", "only an approved pass can be used")
	}
	if p.Status != StatusRejected && p.RejectionReason != "" {
		return Errorf(KindValidation, "gatePass", "rejection_reason set on a non-rejected pass")
	}
	return nil
}
