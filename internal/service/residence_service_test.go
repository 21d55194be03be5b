package service

import (
	"testing"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func room(id string, gender domain.Gender, capacity int, occupants ...string) *domain.Room {
	return &domain.Room{
		ID:               id,
		RoomNumber:       id,
		Gender:           gender,
		MaxOccupancy:     capacity,
		CurrentOccupancy: len(occupants),
		OccupantIDs:      append([]string{}, occupants...),
	}
}

func TestAssignRoom_Constraints(t *testing.T) {
	f := newFixture(t)
	f.seed(
		resident("u1", domain.GenderMale, 0, 5),
		resident("u2", domain.GenderFemale, 0, 5),
		resident("f1", domain.GenderFemale, 0, 5),
		resident("f2", domain.GenderFemale, 0, 5),
		room("R1", domain.GenderFemale, 2, "f1", "f2"),
		room("R2", domain.GenderFemale, 2),
	)

	_, err := f.engine.Residence.AssignRoom(f.ctx, supervisor, "u2", "R1")
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)

	_, err = f.engine.Residence.AssignRoom(f.ctx, supervisor, "u1", "R2")
	require.ErrorIs(t, err, domain.ErrGenderMismatch)

	// 性别优先于容量检查
	_, err = f.engine.Residence.AssignRoom(f.ctx, supervisor, "u1", "R1")
	require.ErrorIs(t, err, domain.ErrGenderMismatch)

	_, err = f.engine.Residence.AssignRoom(f.ctx, trainee2, "u2", "R2")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	assert.Equal(t, 2, f.room("R1").CurrentOccupancy)
	assert.Equal(t, 0, f.room("R2").CurrentOccupancy)
	assert.Empty(t, f.resident("u1").RoomID)
}

func TestAssignRoom_TwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seed(resident("u2", domain.GenderFemale, 0, 5), room("R2", domain.GenderFemale, 2))

	first, err := f.engine.Residence.AssignRoom(f.ctx, supervisor, "u2", "R2")
	require.NoError(t, err)
	assert.Equal(t, "R2", first.Resident.RoomID)
	assert.Equal(t, []string{"u2"}, first.Room.OccupantIDs)

	second, err := f.engine.Residence.AssignRoom(f.ctx, supervisor, "u2", "R2")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Room.CurrentOccupancy)
	assert.Equal(t, 1, f.room("R2").CurrentOccupancy)
	assert.Len(t, f.inbox("u2"), 1, "no-op assignment does not notify")
}

func TestAssignRoom_MovesAtomically(t *testing.T) {
	f := newFixture(t)
	f.seed(
		resident("u2", domain.GenderFemale, 0, 5),
		room("R1", domain.GenderFemale, 2),
		room("R3", domain.GenderFemale, 1),
	)
	_, err := f.engine.Residence.AssignRoom(f.ctx, supervisor, "u2", "R1")
	require.NoError(t, err)

	moved, err := f.engine.Residence.AssignRoom(f.ctx, management, "u2", "R3")
	require.NoError(t, err)
	assert.Equal(t, "R3", moved.Resident.RoomID)

	assert.Empty(t, f.room("R1").OccupantIDs)
	assert.Equal(t, 0, f.room("R1").CurrentOccupancy)
	assert.Equal(t, []string{"u2"}, f.room("R3").OccupantIDs)

	vacated, err := f.engine.Residence.VacateRoom(f.ctx, supervisor, "u2")
	require.NoError(t, err)
	assert.Empty(t, vacated.RoomID)
	assert.Equal(t, 0, f.room("R3").CurrentOccupancy)

	// 幂等
	_, err = f.engine.Residence.VacateRoom(f.ctx, supervisor, "u2")
	require.NoError(t, err)
}

func TestLocker_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(
		resident("u1", domain.GenderMale, 0, 5),
		resident("u2", domain.GenderFemale, 0, 5),
		&domain.Locker{ID: "L1", LockerNumber: "A-01", Status: domain.LockerAvailable},
		&domain.Locker{ID: "L2", LockerNumber: "A-02", Status: domain.LockerAvailable},
		&domain.Locker{ID: "L3", LockerNumber: "A-03", Status: domain.LockerMaintenance},
	)

	got, err := f.engine.Residence.AssignLocker(f.ctx, supervisor, "u1", "L1")
	require.NoError(t, err)
	assert.Equal(t, domain.LockerAssigned, got.Locker.Status)
	assert.Equal(t, "u1", got.Locker.AssignedUserID)
	assert.Equal(t, "L1", got.Resident.LockerID)

	_, err = f.engine.Residence.AssignLocker(f.ctx, supervisor, "u1", "L1")
	require.NoError(t, err, "re-assigning to the holder is a no-op")

	_, err = f.engine.Residence.AssignLocker(f.ctx, supervisor, "u2", "L1")
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	_, err = f.engine.Residence.AssignLocker(f.ctx, supervisor, "u2", "L3")
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)

	// 换柜：原储物柜先释放
	_, err = f.engine.Residence.AssignLocker(f.ctx, supervisor, "u1", "L2")
	require.NoError(t, err)
	assert.Equal(t, domain.LockerAvailable, f.locker("L1").Status)
	assert.Empty(t, f.locker("L1").AssignedUserID)
	assert.Equal(t, "L2", f.resident("u1").LockerID)

	_, err = f.engine.Residence.UnassignLocker(f.ctx, supervisor, "u2", "L2")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.Residence.UnassignLocker(f.ctx, supervisor, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.LockerAvailable, f.locker("L2").Status)
	assert.Empty(t, f.resident("u1").LockerID)

	_, err = f.engine.Residence.UnassignLocker(f.ctx, supervisor, "u1", "L2")
	require.NoError(t, err, "unassign is idempotent")
}

func TestRoomAndLockerAdmin(t *testing.T) {
	f := newFixture(t)
	f.seed(resident("u1", domain.GenderMale, 0, 5))

	r, err := f.engine.Residence.CreateRoom(f.ctx, supervisor, CreateRoomRequest{ID: "B-101", Gender: domain.GenderMale, MaxOccupancy: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, r.CurrentOccupancy)

	_, err = f.engine.Residence.CreateRoom(f.ctx, supervisor, CreateRoomRequest{ID: "B-101", Gender: domain.GenderMale, MaxOccupancy: 2})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.engine.Residence.CreateRoom(f.ctx, supervisor, CreateRoomRequest{ID: "B-102", Gender: "robot", MaxOccupancy: 2})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.Residence.AssignRoom(f.ctx, supervisor, "u1", "B-101")
	require.NoError(t, err)
	_, err = f.engine.Residence.UpdateRoomCapacity(f.ctx, supervisor, "B-101", 0)
	require.ErrorIs(t, err, domain.ErrValidation)
	updated, err := f.engine.Residence.UpdateRoomCapacity(f.ctx, supervisor, "B-101", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MaxOccupancy)

	l, err := f.engine.Residence.CreateLocker(f.ctx, supervisor, CreateLockerRequest{LockerNumber: "C-09"})
	require.NoError(t, err)
	assert.Equal(t, domain.LockerAvailable, l.Status)

	_, err = f.engine.Residence.SetLockerStatus(f.ctx, supervisor, l.ID, domain.LockerAssigned)
	require.ErrorIs(t, err, domain.ErrValidation)
	m, err := f.engine.Residence.SetLockerStatus(f.ctx, supervisor, l.ID, domain.LockerMaintenance)
	require.NoError(t, err)
	assert.Equal(t, domain.LockerMaintenance, m.Status)

	_, err = f.engine.Residence.SetLockerStatus(f.ctx, supervisor, l.ID, domain.LockerAvailable)
	require.NoError(t, err)
	_, err = f.engine.Residence.AssignLocker(f.ctx, supervisor, "u1", l.ID)
	require.NoError(t, err)
	_, err = f.engine.Residence.SetLockerStatus(f.ctx, supervisor, l.ID, domain.LockerReserved)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestUpdateRoomCapacity_BelowOccupancy(t *testing.T) {
	f := newFixture(t)
	f.seed(room("R1", domain.GenderFemale, 3, "f1", "f2"))

	_, err := f.engine.Residence.UpdateRoomCapacity(f.ctx, supervisor, "R1", 1)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, 3, f.room("R1").MaxOccupancy)
}

func TestResidence_ScopeAndStats(t *testing.T) {
	f := newFixture(t)
	f.seed(
		room("R1", domain.GenderFemale, 2, "u2", "f1"),
		room("R2", domain.GenderMale, 2, "u1"),
		&domain.Locker{ID: "L1", Status: domain.LockerAssigned, AssignedUserID: "u2"},
		&domain.Locker{ID: "L2", Status: domain.LockerAvailable},
	)

	rooms, err := f.engine.Residence.ListRooms(f.ctx, trainee2, repository.RoomFilter{})
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "R1", rooms[0].ID)

	lockers, err := f.engine.Residence.ListLockers(f.ctx, trainee1, repository.LockerFilter{})
	require.NoError(t, err)
	assert.Empty(t, lockers)

	vacant := true
	rooms, err = f.engine.Residence.ListRooms(f.ctx, security, repository.RoomFilter{HasVacancy: &vacant})
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "R2", rooms[0].ID)

	stats, err := f.engine.Residence.OccupancyStats(f.ctx, supervisor)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Beds)
	assert.Equal(t, 3, stats.OccupiedBeds)
	assert.InDelta(t, 75.0, stats.RoomOccupancy, 0.001)
	assert.InDelta(t, 50.0, stats.LockerOccupancy, 0.001)
}
