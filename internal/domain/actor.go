package domain

import "strings"

// Role 用户角色（运行期不变）
type Role string

const (
	RoleTrainee            Role = "trainee"
	RoleDormSupervisor     Role = "dorm_supervisor"
	RoleNurse              Role = "nurse"
	RoleManagement         Role = "management"
	RoleManager            Role = "manager"
	RoleProgramCoordinator Role = "program_coordinator"
	RoleSecurity           Role = "security"
)

var allRoles = []Role{
	RoleTrainee,
	RoleDormSupervisor,
	RoleNurse,
	RoleManagement,
	RoleManager,
	RoleProgramCoordinator,
	RoleSecurity,
}

// AllRoles returns every known role in a stable order.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRole 解析角色字符串（大小写、连字符不敏感）
func ParseRole(s string) (Role, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.ReplaceAll(norm, " ", "_")
	for _, r := range allRoles {
		if string(r) == norm {
			return r, true
		}
	}
	return "", false
}

// Actor 已认证的调用者（每次调用传入，引擎不保存）
type Actor struct {
	UserID string `json:"user_id" yaml:"user_id"`
	Role   Role   `json:"role" yaml:"role"`
}

// Gender 性别
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}
