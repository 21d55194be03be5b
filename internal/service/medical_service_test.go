package service

import (
	"testing"
	"time"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferral_CreateAndComplete(t *testing.T) {
	f := newFixture(t)
	f.seed(resident("u1", domain.GenderFemale, 0, 5))

	_, err := f.engine.Medical.CreateReferral(f.ctx, nurse, CreateReferralRequest{UserID: "u1", Reason: "fever"})
	require.ErrorIs(t, err, domain.ErrPermissionDenied, "only dorm supervisors refer")

	ref, err := f.engine.Medical.CreateReferral(f.ctx, supervisor, CreateReferralRequest{UserID: "u1", Reason: "fever"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralPending, ref.Status)
	assert.Equal(t, "s1", ref.ReferredBy)
	assert.Equal(t, baseTime, ref.ReferredAt)

	_, err = f.engine.Medical.CompleteReferral(f.ctx, supervisor, CompleteReferralRequest{ReferralID: ref.ID, NurseReport: "ok"})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.engine.Medical.CompleteReferral(f.ctx, nurse, CompleteReferralRequest{ReferralID: ref.ID})
	require.ErrorIs(t, err, domain.ErrValidation, "nurse report is required")

	f.now = baseTime.Add(2 * time.Hour)
	done, err := f.engine.Medical.CompleteReferral(f.ctx, nurse, CompleteReferralRequest{
		ReferralID: ref.ID, NurseReport: "rested, fever down", DoctorNotes: "paracetamol",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, f.now, *done.CompletedAt)

	_, err = f.engine.Medical.AbortReferral(f.ctx, nurse, ref.ID)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	// resident 收到转诊通知，supervisor 收到完成通知
	assert.Len(t, f.inbox("u1"), 1)
	sup := f.inbox("s1")
	require.Len(t, sup, 1)
	assert.Equal(t, "Referral completed", sup[0].Title)
}

func TestReferral_AbortThenCompleteFails(t *testing.T) {
	f := newFixture(t)
	f.seed(resident("u1", domain.GenderFemale, 0, 5))
	ref, err := f.engine.Medical.CreateReferral(f.ctx, supervisor, CreateReferralRequest{UserID: "u1", Reason: "headache"})
	require.NoError(t, err)

	aborted, err := f.engine.Medical.AbortReferral(f.ctx, nurse, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReferralAborted, aborted.Status)
	assert.Nil(t, aborted.CompletedAt)

	_, err = f.engine.Medical.CompleteReferral(f.ctx, nurse, CompleteReferralRequest{ReferralID: ref.ID, NurseReport: "late"})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	stats, err := f.engine.Medical.ReferralStats(f.ctx, nurse)
	require.NoError(t, err)
	assert.Equal(t, ReferralStats{Aborted: 1}, *stats)
}

func TestReferral_CreateForUnknownResident(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Medical.CreateReferral(f.ctx, supervisor, CreateReferralRequest{UserID: "ghost", Reason: "x"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVisit_ScheduleLinksReferral(t *testing.T) {
	f := newFixture(t)
	f.seed(
		resident("u1", domain.GenderFemale, 0, 5),
		resident("u2", domain.GenderMale, 0, 5),
		&domain.NurseReferral{ID: "ref-u1", UserID: "u1", ReferredBy: "s1", Status: domain.ReferralPending, ReferredAt: baseTime},
		&domain.NurseReferral{ID: "ref-aborted", UserID: "u1", ReferredBy: "s1", Status: domain.ReferralAborted, ReferredAt: baseTime},
	)

	tests := []struct {
		name string
		req  ScheduleVisitRequest
		want error
	}{
		{"referral id missing", ScheduleVisitRequest{UserID: "u1", VisitType: domain.VisitReferral}, domain.ErrValidation},
		{"referral does not exist", ScheduleVisitRequest{UserID: "u1", VisitType: domain.VisitReferral, ReferralID: "nope"}, domain.ErrValidation},
		{"referral of another resident", ScheduleVisitRequest{UserID: "u2", VisitType: domain.VisitReferral, ReferralID: "ref-u1"}, domain.ErrValidation},
		{"aborted referral", ScheduleVisitRequest{UserID: "u1", VisitType: domain.VisitReferral, ReferralID: "ref-aborted"}, domain.ErrValidation},
		{"walk-in with referral id", ScheduleVisitRequest{UserID: "u1", VisitType: domain.VisitWalkIn, ReferralID: "ref-u1"}, domain.ErrValidation},
		{"unknown visit type", ScheduleVisitRequest{UserID: "u1", VisitType: "house_call"}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Medical.ScheduleVisit(f.ctx, nurse, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.engine.Medical.ScheduleVisit(f.ctx, supervisor, ScheduleVisitRequest{UserID: "u1", VisitType: domain.VisitWalkIn})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	visit, err := f.engine.Medical.ScheduleVisit(f.ctx, nurse, ScheduleVisitRequest{
		UserID: "u1", VisitType: domain.VisitReferral, ReferralID: "ref-u1", Symptoms: "fever",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VisitInProgress, visit.Status)
	assert.Equal(t, "n1", visit.NurseID)
	assert.Equal(t, baseTime, visit.VisitDate, "visit date defaults to now")
}

func TestVisit_Close(t *testing.T) {
	f := newFixture(t)
	f.seed(resident("u1", domain.GenderFemale, 0, 5))
	visit, err := f.engine.Medical.ScheduleVisit(f.ctx, nurse, ScheduleVisitRequest{UserID: "u1", VisitType: domain.VisitWalkIn})
	require.NoError(t, err)

	_, err = f.engine.Medical.CloseVisit(f.ctx, nurse, CloseVisitRequest{VisitID: visit.ID, Outcome: domain.VisitInProgress})
	require.ErrorIs(t, err, domain.ErrValidation)

	followUp := day(7)
	closed, err := f.engine.Medical.CloseVisit(f.ctx, nurse, CloseVisitRequest{
		VisitID:         visit.ID,
		Outcome:         domain.VisitCompleted,
		Diagnosis:       "common cold",
		Treatment:       "fluids",
		Recommendations: "rest",
		FollowUpNeeded:  true,
		FollowUpDate:    &followUp,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VisitCompleted, closed.Status)
	assert.Equal(t, "common cold", closed.Diagnosis)
	assert.True(t, closed.FollowUpNeeded)

	// 调用方之后改写请求里的日期，不影响已结束的就诊记录
	followUp = day(30)
	require.NotNil(t, closed.FollowUpDate)
	assert.Equal(t, day(7), *closed.FollowUpDate)

	_, err = f.engine.Medical.CloseVisit(f.ctx, nurse, CloseVisitRequest{VisitID: visit.ID, Outcome: domain.VisitCancelled})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	inbox := f.inbox("u1")
	require.Len(t, inbox, 1)
	assert.Contains(t, inbox[0].Message, "2025-03-17")

	visits, err := f.engine.Medical.ListVisits(f.ctx, trainee1, repository.VisitFilter{})
	require.NoError(t, err)
	require.Len(t, visits, 1)
	require.NotNil(t, visits[0].FollowUpDate)
	assert.Equal(t, day(7), *visits[0].FollowUpDate)
	visits, err = f.engine.Medical.ListVisits(f.ctx, trainee2, repository.VisitFilter{})
	require.NoError(t, err)
	assert.Empty(t, visits)
}
