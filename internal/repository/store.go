package repository

import (
	"context"

	"dorm-engine/internal/domain"
)

// Store 事务性存储
// 所有状态变更必须在 RunInTx 内完成：读取 -> 校验 -> 写入 作为一个原子事务
type Store interface {
	// RunInTx 执行读写事务；fn 返回错误时全部回滚
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	// View 执行只读事务
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx 事务内的实体访问
// Get 在实体不存在时返回 domain.KindNotFound 错误
// Put 写入前校验实体不变量，违反时拒绝写入
type Tx interface {
	GetResident(ctx context.Context, userID string) (*domain.Resident, error)
	PutResident(ctx context.Context, r *domain.Resident) error
	ListResidents(ctx context.Context, f ResidentFilter) ([]*domain.Resident, error)

	GetGatePass(ctx context.Context, id string) (*domain.GatePass, error)
	PutGatePass(ctx context.Context, p *domain.GatePass) error
	ListGatePasses(ctx context.Context, f GatePassFilter) ([]*domain.GatePass, error)

	GetLeave(ctx context.Context, id string) (*domain.Leave, error)
	PutLeave(ctx context.Context, l *domain.Leave) error
	ListLeaves(ctx context.Context, f LeaveFilter) ([]*domain.Leave, error)

	GetReferral(ctx context.Context, id string) (*domain.NurseReferral, error)
	PutReferral(ctx context.Context, r *domain.NurseReferral) error
	ListReferrals(ctx context.Context, f ReferralFilter) ([]*domain.NurseReferral, error)

	GetVisit(ctx context.Context, id string) (*domain.NurseVisit, error)
	PutVisit(ctx context.Context, v *domain.NurseVisit) error
	ListVisits(ctx context.Context, f VisitFilter) ([]*domain.NurseVisit, error)

	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	PutRoom(ctx context.Context, r *domain.Room) error
	ListRooms(ctx context.Context, f RoomFilter) ([]*domain.Room, error)

	GetLocker(ctx context.Context, id string) (*domain.Locker, error)
	PutLocker(ctx context.Context, l *domain.Locker) error
	ListLockers(ctx context.Context, f LockerFilter) ([]*domain.Locker, error)
}

// ResidentFilter 住户查询过滤器（空值表示不过滤）
type ResidentFilter struct {
	UserID            string
	Gender            domain.Gender
	ResidentialStatus domain.ResidentialStatus
	CampusStatus      domain.CampusStatus
	RoomID            string
}

func (f ResidentFilter) Match(r *domain.Resident) bool {
	return (f.UserID == "" || r.UserID == f.UserID) &&
		(f.Gender == "" || r.Gender == f.Gender) &&
		(f.ResidentialStatus == "" || r.ResidentialStatus == f.ResidentialStatus) &&
		(f.CampusStatus == "" || r.CampusStatus == f.CampusStatus) &&
		(f.RoomID == "" || r.RoomID == f.RoomID)
}

// GatePassFilter 通行证查询过滤器
type GatePassFilter struct {
	UserID string
	Status domain.Status
	IsUsed *bool
}

func (f GatePassFilter) Match(p *domain.GatePass) bool {
	return (f.UserID == "" || p.UserID == f.UserID) &&
		(f.Status == "" || p.Status == f.Status) &&
		(f.IsUsed == nil || p.IsUsed == *f.IsUsed)
}

// LeaveFilter 请假查询过滤器
type LeaveFilter struct {
	UserID string
	Status domain.Status
	Type   domain.LeaveType
}

func (f LeaveFilter) Match(l *domain.Leave) bool {
	return (f.UserID == "" || l.UserID == f.UserID) &&
		(f.Status == "" || l.Status == f.Status) &&
		(f.Type == "" || l.Type == f.Type)
}

// ReferralFilter 转诊查询过滤器
type ReferralFilter struct {
	UserID     string
	ReferredBy string
	Status     domain.ReferralStatus
}

func (f ReferralFilter) Match(r *domain.NurseReferral) bool {
	return (f.UserID == "" || r.UserID == f.UserID) &&
		(f.ReferredBy == "" || r.ReferredBy == f.ReferredBy) &&
		(f.Status == "" || r.Status == f.Status)
}

// VisitFilter 就诊查询过滤器
type VisitFilter struct {
	UserID  string
	NurseID string
	Status  domain.VisitStatus
	Type    domain.VisitType
}

func (f VisitFilter) Match(v *domain.NurseVisit) bool {
	return (f.UserID == "" || v.UserID == f.UserID) &&
		(f.NurseID == "" || v.NurseID == f.NurseID) &&
		(f.Status == "" || v.Status == f.Status) &&
		(f.Type == "" || v.VisitType == f.Type)
}

// RoomFilter 房间查询过滤器
type RoomFilter struct {
	Gender     domain.Gender
	HasVacancy *bool
	OccupantID string
}

func (f RoomFilter) Match(r *domain.Room) bool {
	return (f.Gender == "" || r.Gender == f.Gender) &&
		(f.HasVacancy == nil || r.HasVacancy() == *f.HasVacancy) &&
		(f.OccupantID == "" || r.HasOccupant(f.OccupantID))
}

// LockerFilter 储物柜查询过滤器
type LockerFilter struct {
	Status         domain.LockerStatus
	AssignedUserID string
}

func (f LockerFilter) Match(l *domain.Locker) bool {
	return (f.Status == "" || l.Status == f.Status) &&
		(f.AssignedUserID == "" || l.AssignedUserID == f.AssignedUserID)
}
