// Package permission 角色权限矩阵
// 静态表 role -> action；未列出的组合一律拒绝（deny-by-default）
package permission

import (
	"sort"

	"dorm-engine/internal/domain"
)

// Action 资源操作
type Action string

const (
	ViewDashboard        Action = "view-dashboard"
	RequestGatePass      Action = "request-gate-pass"
	ApproveGatePass      Action = "approve-gate-pass"
	VerifyGatePassUsage  Action = "verify-gate-pass-usage"
	ViewResidents        Action = "view-residents"
	ManageRooms          Action = "manage-rooms"
	ManageLockers        Action = "manage-lockers"
	ManageUsers          Action = "manage-users"
	ViewSecurity         Action = "view-security"
	CompleteReferral     Action = "complete-referral"
	DeployNotification   Action = "deploy-notification"
	ManageLeaves         Action = "manage-leaves"
	RequestLeave         Action = "request-leave"
	CreateReferral       Action = "create-referral"
	ManageVisits         Action = "manage-visits"
	OverrideCampusStatus Action = "override-campus-status"
	ViewMedical          Action = "view-medical"
)

var (
	everyone = []domain.Role{
		domain.RoleTrainee, domain.RoleDormSupervisor, domain.RoleNurse, domain.RoleManagement,
		domain.RoleManager, domain.RoleProgramCoordinator, domain.RoleSecurity,
	}
	admins       = []domain.Role{domain.RoleManagement, domain.RoleManager, domain.RoleProgramCoordinator}
	dormStaff    = join([]domain.Role{domain.RoleDormSupervisor}, admins)
	medicalStaff = join([]domain.Role{domain.RoleNurse, domain.RoleDormSupervisor}, admins)
)

func join(groups ...[]domain.Role) []domain.Role {
	var out []domain.Role
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// grants action -> 允许的角色
var grants = map[Action][]domain.Role{
	ViewDashboard:        everyone,
	RequestGatePass:      {domain.RoleTrainee},
	ApproveGatePass:      dormStaff,
	VerifyGatePassUsage:  {domain.RoleSecurity},
	ViewResidents:        join(dormStaff, []domain.Role{domain.RoleSecurity}),
	ManageRooms:          dormStaff,
	ManageLockers:        dormStaff,
	ManageUsers:          admins,
	ViewSecurity:         {domain.RoleSecurity, domain.RoleManagement},
	CompleteReferral:     {domain.RoleNurse},
	DeployNotification:   join(dormStaff, []domain.Role{domain.RoleNurse}),
	ManageLeaves:         dormStaff,
	RequestLeave:         {domain.RoleTrainee},
	CreateReferral:       {domain.RoleDormSupervisor},
	ManageVisits:         {domain.RoleNurse},
	OverrideCampusStatus: {domain.RoleSecurity},
	ViewMedical:          medicalStaff,
}

// table role -> action -> allowed（由 grants 展开，初始化后只读）
var table = buildTable()

func buildTable() map[domain.Role]map[Action]bool {
	t := make(map[domain.Role]map[Action]bool)
	for action, roles := range grants {
		for _, role := range roles {
			if t[role] == nil {
				t[role] = make(map[Action]bool)
			}
			t[role][action] = true
		}
	}
	return t
}

// Can 纯函数：actor 的角色是否允许执行 action
func Can(actor domain.Actor, action Action) bool {
	return table[actor.Role][action]
}

// Allowed lists the actions granted to role, sorted.
func Allowed(role domain.Role) []Action {
	out := make([]Action, 0, len(table[role]))
	for a := range table[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actions returns every action in the table, sorted.
func Actions() []Action {
	out := make([]Action, 0, len(grants))
	for a := range grants {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Roles 矩阵覆盖的角色
func Roles() []domain.Role {
	return domain.AllRoles()
}

// Require returns a PermissionDenied error when the actor lacks action.
func Require(actor domain.Actor, action Action, op string) error {
	if Can(actor, action) {
		return nil
	}
	return domain.Errorf(domain.KindPermissionDenied, op, "role %q may not %s", actor.Role, action)
}
