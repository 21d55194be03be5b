package domain

import "fmt"

// ResidentialStatus 住宿状态
type ResidentialStatus string

const (
	Residential    ResidentialStatus = "residential"
	NonResidential ResidentialStatus = "non_residential"
)

// CampusStatus 在校/离校状态
// 只能通过 gate pass 使用确认或 Security 显式修改
type CampusStatus string

const (
	OnCampus  CampusStatus = "on_campus"
	OffCampus CampusStatus = "off_campus"
)

func (c CampusStatus) Valid() bool {
	return c == OnCampus || c == OffCampus
}

// Resident 住户（学员）
type Resident struct {
	UserID            string            `json:"user_id" yaml:"user_id"`
	FirstName         string            `json:"first_name,omitempty" yaml:"first_name"`
	LastName          string            `json:"last_name,omitempty" yaml:"last_name"`
	Gender            Gender            `json:"gender" yaml:"gender"`
	ResidentialStatus ResidentialStatus `json:"residential_status" yaml:"residential_status"`

	// 位置绑定（空字符串表示未分配）
	RoomID   string `json:"room_id,omitempty" yaml:"room_id"`
	LockerID string `json:"locker_id,omitempty" yaml:"locker_id"`

	// 外出配额：0 <= PassesUsed <= MaxPasses
	PassesUsed int `json:"passes_used" yaml:"passes_used"`
	MaxPasses  int `json:"max_passes" yaml:"max_passes"`

	CampusStatus CampusStatus `json:"campus_status" yaml:"campus_status"`
}

// DisplayName 展示名（无姓名时退回 user id）
func (r *Resident) DisplayName() string {
	name := r.FirstName
	if r.LastName != "" {
		if name != "" {
			name += " "
		}
		name += r.LastName
	}
	if name == "" {
		return r.UserID
	}
	return name
}

// RemainingPasses 剩余可批准的外出次数
func (r *Resident) RemainingPasses() int {
	if r.MaxPasses <= r.PassesUsed {
		return 0
	}
	return r.MaxPasses - r.PassesUsed
}

// Validate 写入前校验不变量
func (r *Resident) Validate() error {
	if r.UserID == "" {
		return Errorf(KindValidation, "resident", "user_id is required")
	}
	if r.Gender != "" && !r.Gender.Valid() {
		return Errorf(KindValidation, "resident", "invalid gender %q", r.Gender)
	}
	switch r.ResidentialStatus {
	case Residential, NonResidential:
	default:
		return Errorf(KindValidation, "resident", "invalid residential_status %q", r.ResidentialStatus)
	}
	if !r.CampusStatus.Valid() {
		return Errorf(KindValidation, "resident", "invalid campus_status %q", r.CampusStatus)
	}
	if r.MaxPasses < 0 || r.PassesUsed < 0 {
		return Errorf(KindValidation, "resident", "pass counters must be non-negative")
	}
	if r.PassesUsed > r.MaxPasses {
		return &Error{Kind: KindQuotaExceeded, Op: "resident",
			Msg: fmt.Sprintf("passes_used %d exceeds max_passes %d", r.PassesUsed, r.MaxPasses)}
	}
	return nil
}
