package service

import (
	"testing"

	"dorm-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDashboard(f *fixture) {
	off := resident("u2", domain.GenderFemale, 1, 5)
	off.CampusStatus = domain.OffCampus
	approvedAt := baseTime
	f.seed(
		resident("u1", domain.GenderMale, 2, 5),
		off,
		resident("u3", domain.GenderFemale, 0, 5),
		room("R1", domain.GenderFemale, 2, "u2", "u3"),
		room("R2", domain.GenderMale, 2, "u1"),
		&domain.Locker{ID: "L1", Status: domain.LockerAssigned, AssignedUserID: "u1"},
		&domain.Locker{ID: "L2", Status: domain.LockerAvailable},
		&domain.GatePass{ID: "g1", UserID: "u1", Destination: "Town", Status: domain.StatusApproved,
			ApprovedBy: "s1", ApprovedAt: &approvedAt, DepartureDate: day(1), ReturnDate: day(1)},
		&domain.GatePass{ID: "g2", UserID: "u2", Destination: "Home", Status: domain.StatusPending,
			DepartureDate: day(2), ReturnDate: day(3)},
		&domain.Leave{ID: "l1", UserID: "u2", Type: domain.LeaveSick, StartDate: day(-1), EndDate: day(1), Status: domain.StatusApproved},
		&domain.Leave{ID: "l2", UserID: "u3", Type: domain.LeaveVacation, StartDate: day(0), EndDate: day(5), Status: domain.StatusApproved},
		&domain.Leave{ID: "l3", UserID: "u1", Type: domain.LeaveVacation, StartDate: day(8), EndDate: day(9), Status: domain.StatusPending},
		&domain.NurseReferral{ID: "ref1", UserID: "u3", ReferredBy: "s1", Status: domain.ReferralPending, ReferredAt: baseTime},
	)
}

func TestDashboard_StaffStats(t *testing.T) {
	f := newFixture(t)
	seedDashboard(f)
	_, err := f.engine.Notifications.Deploy(f.ctx, supervisor, DeployRequest{Title: "Welcome"})
	require.NoError(t, err)

	st, err := f.engine.Dashboard.Stats(f.ctx, supervisor)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalResidents)
	assert.Equal(t, 1, st.Male)
	assert.Equal(t, 2, st.Female)
	assert.Equal(t, 2, st.OnCampus)
	assert.Equal(t, 1, st.OffCampus)
	assert.Equal(t, 1, st.ActiveGatePasses)
	assert.Equal(t, 1, st.PendingGatePasses)
	assert.Equal(t, 1, st.ActiveSickLeaves)
	assert.Equal(t, 1, st.ActiveVacations)
	assert.Equal(t, 1, st.PendingLeaves)
	assert.Equal(t, 1, st.PendingReferrals)
	assert.InDelta(t, 75.0, st.RoomOccupancy, 0.001)
	assert.InDelta(t, 50.0, st.LockerOccupancy, 0.001)
	assert.False(t, st.OccupancyCritical)
	assert.Nil(t, st.RemainingPasses)
	assert.Equal(t, 1, st.UnreadNotifications)
}

func TestDashboard_TraineeSeesOwnRecords(t *testing.T) {
	f := newFixture(t)
	seedDashboard(f)

	st, err := f.engine.Dashboard.Stats(f.ctx, trainee1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalResidents)
	assert.Equal(t, 1, st.ActiveGatePasses)
	assert.Equal(t, 0, st.PendingGatePasses)
	assert.Equal(t, 1, st.PendingLeaves)
	assert.Equal(t, 0, st.ActiveSickLeaves)
	assert.Equal(t, 0, st.PendingReferrals)
	require.NotNil(t, st.RemainingPasses)
	assert.Equal(t, 3, *st.RemainingPasses)
	// 只统计自己的房间（1/2）和储物柜（1/1）
	assert.InDelta(t, 50.0, st.RoomOccupancy, 0.001)
	assert.InDelta(t, 100.0, st.LockerOccupancy, 0.001)
	assert.True(t, st.OccupancyCritical)
}

func TestDashboard_OccupancyCritical(t *testing.T) {
	f := newFixture(t)
	f.seed(room("R1", domain.GenderFemale, 10, "a", "b", "c", "d", "e", "f", "g", "h", "i", "j"))

	st, err := f.engine.Dashboard.Stats(f.ctx, management)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, st.RoomOccupancy, 0.001)
	assert.True(t, st.OccupancyCritical)
	assert.Zero(t, st.LockerOccupancy)
}

func TestDashboard_GenderSplitIncludesOther(t *testing.T) {
	f := newFixture(t)
	f.seed(
		resident("u1", domain.GenderMale, 0, 5),
		resident("u2", domain.GenderFemale, 0, 5),
		resident("u4", domain.GenderOther, 0, 5),
	)

	st, err := f.engine.Dashboard.Stats(f.ctx, supervisor)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalResidents)
	assert.Equal(t, 1, st.Male)
	assert.Equal(t, 1, st.Female)
	assert.Equal(t, 1, st.Other)
	assert.Equal(t, st.TotalResidents, st.Male+st.Female+st.Other)
}
