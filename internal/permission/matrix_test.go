package permission

import (
	"testing"

	"dorm-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actor(role domain.Role) domain.Actor {
	return domain.Actor{UserID: "u-" + string(role), Role: role}
}

func TestCan_GateFlowRoles(t *testing.T) {
	assert.True(t, Can(actor(domain.RoleTrainee), RequestGatePass))
	assert.False(t, Can(actor(domain.RoleDormSupervisor), RequestGatePass))

	assert.True(t, Can(actor(domain.RoleDormSupervisor), ApproveGatePass))
	assert.True(t, Can(actor(domain.RoleManager), ApproveGatePass))
	assert.False(t, Can(actor(domain.RoleTrainee), ApproveGatePass))
	assert.False(t, Can(actor(domain.RoleSecurity), ApproveGatePass))

	assert.True(t, Can(actor(domain.RoleSecurity), VerifyGatePassUsage))
	assert.False(t, Can(actor(domain.RoleDormSupervisor), VerifyGatePassUsage))
}

func TestCan_MedicalRoles(t *testing.T) {
	assert.True(t, Can(actor(domain.RoleNurse), CompleteReferral))
	assert.False(t, Can(actor(domain.RoleDormSupervisor), CompleteReferral))
	assert.True(t, Can(actor(domain.RoleDormSupervisor), CreateReferral))
	assert.False(t, Can(actor(domain.RoleNurse), CreateReferral))
	assert.True(t, Can(actor(domain.RoleNurse), ManageVisits))
}

func TestCan_DenyByDefault(t *testing.T) {
	assert.False(t, Can(domain.Actor{UserID: "x", Role: "janitor"}, ViewDashboard))
	assert.False(t, Can(actor(domain.RoleManagement), Action("launch-rockets")))
	assert.False(t, Can(domain.Actor{}, ViewDashboard))
}

func TestCan_EveryRoleSeesDashboard(t *testing.T) {
	for _, r := range domain.AllRoles() {
		assert.True(t, Can(actor(r), ViewDashboard), "role %s", r)
	}
}

func TestAllowed_Sorted(t *testing.T) {
	got := Allowed(domain.RoleSecurity)
	require.Equal(t, []Action{OverrideCampusStatus, VerifyGatePassUsage, ViewDashboard, ViewResidents, ViewSecurity}, got)
	assert.Empty(t, Allowed("nobody"))
}

func TestActions_CoversTable(t *testing.T) {
	acts := Actions()
	assert.Len(t, acts, 17)
	for i := 1; i < len(acts); i++ {
		assert.Less(t, string(acts[i-1]), string(acts[i]))
	}
}

func TestRequire(t *testing.T) {
	require.NoError(t, Require(actor(domain.RoleNurse), CompleteReferral, "completeReferral"))

	err := Require(actor(domain.RoleTrainee), ManageRooms, "assignRoom")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "assignRoom")
}

func TestViewScope(t *testing.T) {
	assert.Equal(t, ScopeSelf, ViewScope(actor(domain.RoleTrainee), ResourceGatePasses))
	assert.Equal(t, ScopeAll, ViewScope(actor(domain.RoleSecurity), ResourceGatePasses))
	assert.Equal(t, ScopeAll, ViewScope(actor(domain.RoleNurse), ResourceReferrals))
	assert.Equal(t, ScopeSelf, ViewScope(actor(domain.RoleSecurity), ResourceReferrals))
	assert.Equal(t, ScopeSelf, ViewScope(actor(domain.RoleManagement), ResourceNotifications))
}
