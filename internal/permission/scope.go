package permission

import "dorm-engine/internal/domain"

// Resource 查询资源类型
type Resource string

const (
	ResourceGatePasses    Resource = "gate_passes"
	ResourceLeaves        Resource = "leaves"
	ResourceReferrals     Resource = "referrals"
	ResourceVisits        Resource = "visits"
	ResourceResidents     Resource = "residents"
	ResourceRooms         Resource = "rooms"
	ResourceLockers       Resource = "lockers"
	ResourceNotifications Resource = "notifications"
)

// Scope 查询范围
type Scope int

const (
	// ScopeSelf 只能看到与自己相关的记录
	ScopeSelf Scope = iota
	// ScopeAll 可以看到全部记录
	ScopeAll
)

// fullView 拥有任一 action 即可查看该资源全部记录
var fullView = map[Resource][]Action{
	ResourceGatePasses: {ApproveGatePass, VerifyGatePassUsage, ViewResidents},
	ResourceLeaves:     {ManageLeaves, ViewMedical},
	ResourceReferrals:  {CompleteReferral, CreateReferral, ViewMedical},
	ResourceVisits:     {ManageVisits, ViewMedical},
	ResourceResidents:  {ViewResidents, ManageUsers},
	ResourceRooms:      {ManageRooms, ViewResidents},
	ResourceLockers:    {ManageLockers, ViewResidents},
}

// ViewScope decides whether actor sees every record of resource or only its own.
// Notifications are always self-scoped (own + broadcast).
func ViewScope(actor domain.Actor, resource Resource) Scope {
	for _, a := range fullView[resource] {
		if Can(actor, a) {
			return ScopeAll
		}
	}
	return ScopeSelf
}
