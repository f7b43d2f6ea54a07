package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/models"
)

// overdueFines checks out one video per entry and returns them so that each
// comes back daysLate days past due; daysLate must be ascending
func (f *fixture) overdueFines(patronID int64, daysLate ...int) []models.Fine {
	f.t.Helper()
	copies := make([]models.ItemCopy, len(daysLate))
	for i := range daysLate {
		copies[i] = f.copyOf(f.item(models.CategoryVideo, false).ID)
		f.checkout(copies[i].ID, patronID)
	}

	fines := make([]models.Fine, 0, len(daysLate))
	elapsed := 0
	for i, late := range daysLate {
		f.clock.Advance(time.Duration(7+late-elapsed) * 24 * time.Hour)
		elapsed = 7 + late
		result := f.checkin(copies[i].ID)
		require.NotNil(f.t, result.Fine)
		fines = append(fines, *result.Fine)
	}
	return fines
}

func TestFineService_Pay(t *testing.T) {
	f := newFixture(t)
	patron := f.patron("Ada")
	fine := f.overdueFines(patron.ID, 4)[0]
	assert.Equal(t, "2.00", f.getPatron(patron.ID).Balance.StringFixed(2))

	result, err := f.fines.Pay(f.ctx, fine.ID)
	require.NoError(t, err)
	require.Len(t, result.Fines, 1)
	assert.True(t, result.Fines[0].IsPaid)
	assert.NotNil(t, result.Fines[0].PaidDate)
	assert.Equal(t, "2.00", result.Settled.StringFixed(2))
	assert.True(t, result.Balance.IsZero())
	f.requireInvariants()

	_, err = f.fines.Pay(f.ctx, fine.ID)
	requireCode(t, err, circerrors.CodeInvalidState)

	_, err = f.fines.Pay(f.ctx, 999)
	requireCode(t, err, circerrors.CodeNotFound)
}

func TestFineService_Waive(t *testing.T) {
	f := newFixture(t)
	patron := f.patron("Ada")
	fine := f.overdueFines(patron.ID, 2)[0]

	_, err := f.fines.Waive(f.ctx, fine.ID, "  ")
	requireCode(t, err, circerrors.CodeValidation)

	result, err := f.fines.Waive(f.ctx, fine.ID, "first offence")
	require.NoError(t, err)
	assert.True(t, result.Fines[0].Waived)
	assert.False(t, result.Fines[0].IsPaid)
	assert.Equal(t, "first offence", result.Fines[0].WaiveReason)
	assert.True(t, result.Balance.IsZero())

	unpaid, err := f.fines.List(f.ctx, patron.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unpaid)
	f.requireInvariants()

	_, err = f.fines.Pay(f.ctx, fine.ID)
	requireCode(t, err, circerrors.CodeInvalidState)
}

func TestFineService_SettleBalance(t *testing.T) {
	f := newFixture(t)
	patron := f.patron("Ada")
	fines := f.overdueFines(patron.ID, 1, 3, 5)
	assert.Equal(t, "4.50", f.getPatron(patron.ID).Balance.StringFixed(2))
	_, err := f.fines.Waive(f.ctx, fines[0].ID, "staff error")
	require.NoError(t, err)

	result, err := f.fines.SettleBalance(f.ctx, patron.ID)
	require.NoError(t, err)
	assert.Len(t, result.Fines, 2)
	assert.Equal(t, "4.00", result.Settled.StringFixed(2))
	assert.True(t, result.Balance.IsZero())

	all, err := f.fines.List(f.ctx, patron.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	f.requireInvariants()

	// Nothing left to pay
	result, err = f.fines.SettleBalance(f.ctx, patron.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Fines)
	assert.True(t, result.Settled.IsZero())

	_, err = f.fines.SettleBalance(f.ctx, 999)
	requireCode(t, err, circerrors.CodeNotFound)
}

func TestFineService_PaidBalanceUnblocksCheckout(t *testing.T) {
	f := newFixture(t)
	patron := f.patron("Ada")
	fine := f.overdueFines(patron.ID, 1)[0]
	c := f.copyOf(f.item(models.CategoryBook, false).ID)

	_, err := f.circulation.Checkout(f.ctx, models.CheckoutRequest{CopyID: c.ID, PatronID: patron.ID})
	assert.Equal(t, models.ReasonOutstandingBalance, blockReason(t, err))

	_, err = f.fines.Pay(f.ctx, fine.ID)
	require.NoError(t, err)
	f.checkout(c.ID, patron.ID)
}
