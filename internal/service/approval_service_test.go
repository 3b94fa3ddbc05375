package service

import (
	"context"
	"testing"

	"villaops/internal/database"
	"villaops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestApprovalService_RecordDecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	maria := h.addStaff(t, "Maria", models.RoleManager, 9000)
	h.sender.On("SendMessage", mock.Anything, int64(9000), mock.Anything).Return(nil)

	t.Run("ConfidentApprove", func(t *testing.T) {
		b := newStay(1, "Lena", "2026-07-01", "2026-07-05")
		require.NoError(t, h.bookings.Create(ctx, b))

		e, err := h.approvals.RecordDecision(ctx, &models.AILogEntry{
			BookingID: b.ID, Decision: models.DecisionApprove, Confidence: 0.95, Model: "screening-v2",
		})
		require.NoError(t, err)
		assert.False(t, e.Escalated)
		assert.Equal(t, models.DecisionApprove, e.Resolution)

		stored, err := h.bookings.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, stored.Status)

		_, err = h.approvals.RecordDecision(ctx, &models.AILogEntry{
			BookingID: b.ID, Decision: models.DecisionReject, Confidence: 0.9,
		})
		assert.ErrorIs(t, err, database.ErrInvalidTransition)
	})

	t.Run("LowConfidenceEscalates", func(t *testing.T) {
		b := newStay(2, "Marc", "2026-07-01", "2026-07-03")
		require.NoError(t, h.bookings.Create(ctx, b))

		e, err := h.approvals.RecordDecision(ctx, &models.AILogEntry{
			BookingID: b.ID, Decision: models.DecisionReject, Confidence: 0.4,
		})
		require.NoError(t, err)
		assert.True(t, e.Escalated)
		assert.Contains(t, e.EscalationReason, "confidence 0.40 below 0.80")

		stored, err := h.bookings.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, stored.Status)

		notes, err := h.notifications.List(ctx, maria.ID, true, 0)
		require.NoError(t, err)
		require.NotEmpty(t, notes)
		assert.Contains(t, notes[0].Title, "needs review")

		resolved, err := h.approvals.ResolveEscalation(ctx, e.ID, maria.ID, true)
		require.NoError(t, err)
		assert.Equal(t, models.DecisionApprove, resolved.Resolution)
		require.NotNil(t, resolved.ReviewedBy)
		assert.Equal(t, maria.ID, *resolved.ReviewedBy)

		stored, err = h.bookings.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, stored.Status)

		_, err = h.approvals.ResolveEscalation(ctx, e.ID, maria.ID, false)
		assert.ErrorIs(t, err, database.ErrAlreadyResolved)
	})

	t.Run("ConflictAndCapacityEscalate", func(t *testing.T) {
		imported := newStay(1, "Group", "2026-07-04", "2026-07-08")
		imported.Source = models.SourceAirbnb
		imported.Guests = 8
		_, _, err := h.bookings.Import(ctx, imported)
		require.NoError(t, err)
		require.True(t, imported.Conflict)

		e, err := h.approvals.RecordDecision(ctx, &models.AILogEntry{
			BookingID: imported.ID, Decision: models.DecisionApprove, Confidence: 0.99,
		})
		require.NoError(t, err)
		assert.True(t, e.Escalated)
		assert.Contains(t, e.EscalationReason, "booking has conflicts")
		assert.Contains(t, e.EscalationReason, "8 guests exceed capacity 6")

		pending, err := h.approvals.ListEscalations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, e.ID, pending[0].ID)

		_, err = h.approvals.ResolveEscalation(ctx, e.ID, maria.ID, true)
		assert.ErrorIs(t, err, database.ErrNotAvailable)

		resolved, err := h.approvals.ResolveEscalation(ctx, e.ID, maria.ID, false)
		require.NoError(t, err)
		assert.Equal(t, models.DecisionReject, resolved.Resolution)
	})

	t.Run("ReviewDecision", func(t *testing.T) {
		b := newStay(2, "Ines", "2026-07-10", "2026-07-12")
		require.NoError(t, h.bookings.Create(ctx, b))

		e, err := h.approvals.RecordDecision(ctx, &models.AILogEntry{
			BookingID: b.ID, Decision: models.DecisionReview, Confidence: 0.9,
		})
		require.NoError(t, err)
		assert.True(t, e.Escalated)
		assert.Equal(t, "review requested", e.EscalationReason)

		decisions, err := h.approvals.ListDecisions(ctx, b.ID)
		require.NoError(t, err)
		assert.Len(t, decisions, 1)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := h.approvals.RecordDecision(ctx, &models.AILogEntry{BookingID: 1, Decision: "maybe", Confidence: 0.5})
		assert.ErrorIs(t, err, database.ErrValidation)
		_, err = h.approvals.RecordDecision(ctx, &models.AILogEntry{BookingID: 1, Decision: models.DecisionApprove, Confidence: 1.5})
		assert.ErrorIs(t, err, database.ErrValidation)
		_, err = h.approvals.RecordDecision(ctx, &models.AILogEntry{BookingID: 999, Decision: models.DecisionApprove, Confidence: 0.9})
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestApprovalService_ReviewerMustBeManager(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ana := h.addStaff(t, "Ana", models.RoleCleaner, 0)
	h.sender.On("SendMessage", mock.Anything, int64(9000), mock.Anything).Return(nil)
	b := newStay(1, "Lena", "2026-07-01", "2026-07-05")
	require.NoError(t, h.bookings.Create(ctx, b))

	e, err := h.approvals.RecordDecision(ctx, &models.AILogEntry{
		BookingID: b.ID, Decision: models.DecisionApprove, Confidence: 0.1,
	})
	require.NoError(t, err)
	require.True(t, e.Escalated)

	_, err = h.approvals.ResolveEscalation(ctx, e.ID, ana.ID, true)
	assert.ErrorIs(t, err, database.ErrValidation)
}
