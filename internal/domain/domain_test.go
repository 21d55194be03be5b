package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestError_KindMatching(t *testing.T) {
	err := Errorf(KindQuotaExceeded, "requestGatePass", "used %d of %d", 5, 5)
	assert.Equal(t, "requestGatePass: quota_exceeded: used 5 of 5", err.Error())
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrValidation)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindQuotaExceeded, KindOf(wrapped))
	assert.Empty(t, KindOf(errors.New("connection refused")))
}

func TestWithOp(t *testing.T) {
	nf := WithOp(NotFound("resident", "u1"), "assignRoom")
	assert.Equal(t, "assignRoom: not_found: resident u1 not found", nf.Error())

	// 已有 op 的错误保持原样
	orig := Errorf(KindValidation, "room", "bad")
	assert.Equal(t, orig, WithOp(orig, "createRoom"))

	plain := errors.New("io")
	assert.Equal(t, plain, WithOp(plain, "x"))
}

func TestParseRoleAndDecision(t *testing.T) {
	r, ok := ParseRole("Dorm-Supervisor")
	require.True(t, ok)
	assert.Equal(t, RoleDormSupervisor, r)

	r, ok = ParseRole("program coordinator")
	require.True(t, ok)
	assert.Equal(t, RoleProgramCoordinator, r)

	_, ok = ParseRole("janitor")
	assert.False(t, ok)
	assert.Len(t, AllRoles(), 7)

	d, ok := ParseDecision("Approved")
	require.True(t, ok)
	assert.Equal(t, DecisionApprove, d)
	d, ok = ParseDecision("reject")
	require.True(t, ok)
	assert.Equal(t, DecisionReject, d)
	_, ok = ParseDecision("maybe")
	assert.False(t, ok)
}

func TestLeave_IsActiveAndRemainingDays(t *testing.T) {
	l := &Leave{
		ID: "l1", UserID: "u1", Type: LeaveSick, Status: StatusApproved,
		StartDate: now.Add(-24 * time.Hour), EndDate: now.Add(36 * time.Hour),
	}
	assert.True(t, IsActive(l, now))
	assert.Equal(t, 2, RemainingDays(l, now))

	// 边界包含
	assert.True(t, IsActive(l, l.StartDate))
	assert.True(t, IsActive(l, l.EndDate))
	assert.False(t, IsActive(l, l.EndDate.Add(time.Second)))
	assert.Equal(t, 0, RemainingDays(l, l.EndDate.Add(time.Hour)))

	l.Status = StatusPending
	assert.False(t, IsActive(l, now))
	assert.Equal(t, 0, RemainingDays(l, now))
}

func TestDaysSinceReferral(t *testing.T) {
	r := &NurseReferral{ReferredAt: now.Add(-30 * time.Hour)}
	assert.Equal(t, 2, DaysSinceReferral(r, now))
	r.ReferredAt = now
	assert.Equal(t, 0, DaysSinceReferral(r, now))
}

func TestCanAssignRoom(t *testing.T) {
	room := &Room{ID: "R1", Gender: GenderFemale, MaxOccupancy: 2, CurrentOccupancy: 1, OccupantIDs: []string{"f1"}}
	assert.True(t, CanAssignRoom(&Resident{UserID: "f2", Gender: GenderFemale}, room))
	assert.False(t, CanAssignRoom(&Resident{UserID: "m1", Gender: GenderMale}, room))

	room.AddOccupant("f2")
	assert.Equal(t, 2, room.CurrentOccupancy)
	assert.False(t, CanAssignRoom(&Resident{UserID: "f3", Gender: GenderFemale}, room))

	room.AddOccupant("f2")
	assert.Equal(t, 2, room.CurrentOccupancy, "adding twice is a no-op")

	room.RemoveOccupant("f1")
	assert.Equal(t, []string{"f2"}, room.OccupantIDs)
	assert.True(t, room.HasVacancy())
}

func TestRoom_CloneIsDeep(t *testing.T) {
	room := &Room{ID: "R1", Gender: GenderMale, MaxOccupancy: 2, CurrentOccupancy: 1, OccupantIDs: []string{"a"}}
	cp := room.Clone()
	cp.OccupantIDs[0] = "b"
	assert.Equal(t, "a", room.OccupantIDs[0])
}

func TestValidate(t *testing.T) {
	approvedAt := now
	tests := []struct {
		name string
		v    interface{ Validate() error }
		want error
	}{
		{"resident ok", &Resident{UserID: "u1", Gender: GenderMale, ResidentialStatus: Residential, MaxPasses: 5, CampusStatus: OnCampus}, nil},
		{"resident over quota", &Resident{UserID: "u1", ResidentialStatus: Residential, PassesUsed: 6, MaxPasses: 5, CampusStatus: OnCampus}, ErrQuotaExceeded},
		{"resident negative", &Resident{UserID: "u1", ResidentialStatus: Residential, PassesUsed: -1, CampusStatus: OnCampus}, ErrValidation},
		{"resident bad campus", &Resident{UserID: "u1", ResidentialStatus: Residential, CampusStatus: "moon"}, ErrValidation},
		{"pass dates", &GatePass{ID: "g", UserID: "u", Status: StatusPending, DepartureDate: now, ReturnDate: now.Add(-time.Hour)}, ErrValidation},
		{"pending pass used", &GatePass{ID: "g", UserID: "u", Status: StatusPending, IsUsed: true}, ErrInvalidStateTransition},
		{"approved pass used", &GatePass{ID: "g", UserID: "u", Status: StatusApproved, IsUsed: true, ApprovedAt: &approvedAt}, nil},
		{"leave dates", &Leave{ID: "l", UserID: "u", Type: LeaveSick, Status: StatusPending, StartDate: now, EndDate: now.Add(-time.Hour)}, ErrValidation},
		{"completed referral without time", &NurseReferral{ID: "r", UserID: "u", Status: ReferralCompleted}, ErrValidation},
		{"walk-in with referral", &NurseVisit{ID: "v", UserID: "u", VisitType: VisitWalkIn, ReferralID: "r", Status: VisitInProgress}, ErrValidation},
		{"referral visit without id", &NurseVisit{ID: "v", UserID: "u", VisitType: VisitReferral, Status: VisitInProgress}, ErrValidation},
		{"room over capacity", &Room{ID: "R", Gender: GenderMale, MaxOccupancy: 1, CurrentOccupancy: 2, OccupantIDs: []string{"a", "b"}}, ErrCapacityExceeded},
		{"room count drift", &Room{ID: "R", Gender: GenderMale, MaxOccupancy: 2, CurrentOccupancy: 2, OccupantIDs: []string{"a"}}, ErrValidation},
		{"room duplicate occupant", &Room{ID: "R", Gender: GenderMale, MaxOccupancy: 2, CurrentOccupancy: 2, OccupantIDs: []string{"a", "a"}}, ErrValidation},
		{"locker assigned without user", &Locker{ID: "L", Status: LockerAssigned}, ErrValidation},
		{"locker available with user", &Locker{ID: "L", Status: LockerAvailable, AssignedUserID: "u"}, ErrValidation},
		{"locker ok", &Locker{ID: "L", Status: LockerAssigned, AssignedUserID: "u"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResident_Helpers(t *testing.T) {
	r := &Resident{UserID: "u1", PassesUsed: 2, MaxPasses: 5}
	assert.Equal(t, 3, r.RemainingPasses())
	assert.Equal(t, "u1", r.DisplayName())
	r.LastName = "Okafor"
	assert.Equal(t, "Okafor", r.DisplayName())
	r.PassesUsed = 7
	assert.Equal(t, 0, r.RemainingPasses())
}

func TestNotification_VisibleTo(t *testing.T) {
	assert.True(t, (&Notification{}).VisibleTo("anyone"))
	assert.True(t, (&Notification{UserID: "u1"}).VisibleTo("u1"))
	assert.False(t, (&Notification{UserID: "u1"}).VisibleTo("u2"))
}
