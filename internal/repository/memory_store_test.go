package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dorm-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResident(id string, gender domain.Gender) *domain.Resident {
	return &domain.Resident{
		UserID:            id,
		Gender:            gender,
		ResidentialStatus: domain.Residential,
		MaxPasses:         5,
		CampusStatus:      domain.OnCampus,
	}
}

func TestMemoryStore_PutGetReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		return tx.PutRoom(ctx, &domain.Room{ID: "r1", Gender: domain.GenderFemale, MaxOccupancy: 2, OccupantIDs: []string{}})
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		room, err := tx.GetRoom(ctx, "r1")
		require.NoError(t, err)
		room.OccupantIDs = append(room.OccupantIDs, "intruder")
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		room, err := tx.GetRoom(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, room.OccupantIDs)
		return nil
	}))
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.PutResident(ctx, newResident("u1", domain.GenderMale)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(tx Tx) error {
		_, err := tx.GetResident(ctx, "u1")
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_ReadYourWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.PutResident(ctx, newResident("u1", domain.GenderMale)))
		r, err := tx.GetResident(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", r.UserID)

		list, err := tx.ListResidents(ctx, ResidentFilter{Gender: domain.GenderMale})
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	}))
}

func TestMemoryStore_PutRejectsInvariantViolations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx Tx) error {
		r := newResident("u1", domain.GenderMale)
		r.PassesUsed = 6
		return tx.PutResident(ctx, r)
	})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	err = s.RunInTx(ctx, func(tx Tx) error {
		return tx.PutRoom(ctx, &domain.Room{ID: "r1", Gender: domain.GenderMale, MaxOccupancy: 1,
			CurrentOccupancy: 2, OccupantIDs: []string{"a", "b"}})
	})
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)

	err = s.RunInTx(ctx, func(tx Tx) error {
		return tx.PutLocker(ctx, &domain.Locker{ID: "l1", Status: domain.LockerAvailable, AssignedUserID: "u1"})
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.View(ctx, func(tx Tx) error {
		return tx.PutResident(ctx, newResident("u1", domain.GenderMale))
	})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestMemoryStore_ListFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		for _, p := range []*domain.GatePass{
			{ID: "p1", UserID: "u1", Status: domain.StatusPending, DepartureDate: day, ReturnDate: day},
			{ID: "p2", UserID: "u1", Status: domain.StatusApproved, IsUsed: true, DepartureDate: day, ReturnDate: day},
			{ID: "p3", UserID: "u2", Status: domain.StatusApproved, DepartureDate: day, ReturnDate: day},
		} {
			if err := tx.PutGatePass(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))

	used := false
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		all, err := tx.ListGatePasses(ctx, GatePassFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "p1", all[0].ID)

		mine, err := tx.ListGatePasses(ctx, GatePassFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		active, err := tx.ListGatePasses(ctx, GatePassFilter{Status: domain.StatusApproved, IsUsed: &used})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "p3", active[0].ID)
		return nil
	}))
}

func TestMemoryStore_ConcurrentTransactionsSerialize(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		return tx.PutResident(ctx, newResident("u1", domain.GenderMale))
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunInTx(ctx, func(tx Tx) error {
				r, err := tx.GetResident(ctx, "u1")
				if err != nil {
					return err
				}
				r.PassesUsed++
				return tx.PutResident(ctx, r)
			})
		}()
	}
	wg.Wait()

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		r, err := tx.GetResident(ctx, "u1")
		require.NoError(t, err)
		// 超过配额的事务被 Validate 拒绝，其余全部生效
		assert.Equal(t, 5, r.PassesUsed)
		return nil
	}))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
