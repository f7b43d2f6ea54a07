package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t            *testing.T
	ctx          context.Context
	store        *store.MemoryStore
	clock        *testClock
	policy       *LoanPolicy
	circulation  *CirculationService
	reservations *ReservationService
	fines        *FineService
	catalog      *CatalogService
	patrons      *PatronService
	auditor      *Auditor
	branch       models.Branch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: day0}
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	locker := lock.NewLocalLocker()
	policy := DefaultLoanPolicy()
	eligibility := NewEligibilityChecker(DefaultMaxActiveCheckouts)
	opts := []Option{WithClock(clock.Now), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}

	f := &fixture{
		t:            t,
		ctx:          context.Background(),
		store:        st,
		clock:        clock,
		policy:       policy,
		circulation:  NewCirculationService(st, locker, policy, eligibility, opts...),
		reservations: NewReservationService(st, locker, policy, opts...),
		fines:        NewFineService(st, locker, opts...),
		catalog:      NewCatalogService(st, locker, opts...),
		patrons:      NewPatronService(st, locker, eligibility, opts...),
		auditor:      NewAuditor(st, opts...),
	}

	branch, err := f.catalog.CreateBranch(f.ctx, models.CreateBranchRequest{Name: "Main"})
	require.NoError(t, err)
	f.branch = *branch
	return f
}

func (f *fixture) item(category models.ItemCategory, newRelease bool) models.LibraryItem {
	f.t.Helper()
	item, err := f.catalog.CreateItem(f.ctx, models.CreateItemRequest{
		Title:        "Item " + string(category),
		Category:     category,
		IsNewRelease: newRelease,
	})
	require.NoError(f.t, err)
	return *item
}

func (f *fixture) copyOf(itemID int64) models.ItemCopy {
	f.t.Helper()
	c, err := f.catalog.CreateCopy(f.ctx, models.CreateCopyRequest{LibraryItemID: itemID, OwningBranchID: f.branch.ID})
	require.NoError(f.t, err)
	return *c
}

func (f *fixture) patron(first string) models.Patron {
	f.t.Helper()
	p, err := f.patrons.Register(f.ctx, models.CreatePatronRequest{
		FirstName:          first,
		LastName:           "Reader",
		CardExpirationDate: day0.AddDate(1, 0, 0),
	})
	require.NoError(f.t, err)
	return *p
}

func (f *fixture) checkout(copyID, patronID int64) *models.CheckoutReceipt {
	f.t.Helper()
	receipt, err := f.circulation.Checkout(f.ctx, models.CheckoutRequest{CopyID: copyID, PatronID: patronID})
	require.NoError(f.t, err)
	return receipt
}

func (f *fixture) checkin(copyID int64) *models.CheckinResult {
	f.t.Helper()
	result, err := f.circulation.Checkin(f.ctx, models.CheckinRequest{CopyID: copyID})
	require.NoError(f.t, err)
	return result
}

func (f *fixture) reserve(itemID, patronID int64) models.Reservation {
	f.t.Helper()
	r, err := f.reservations.Reserve(f.ctx, models.ReserveRequest{LibraryItemID: itemID, PatronID: patronID})
	require.NoError(f.t, err)
	return *r
}

func (f *fixture) getCopy(id int64) models.ItemCopy {
	f.t.Helper()
	c, err := f.store.GetCopy(f.ctx, id)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) getPatron(id int64) models.Patron {
	f.t.Helper()
	p, err := f.store.GetPatron(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) setBalance(patronID int64, amount decimal.Decimal) {
	f.t.Helper()
	p := f.getPatron(patronID)
	p.Balance = amount
	require.NoError(f.t, f.store.UpdatePatron(f.ctx, p))
}

func (f *fixture) queuePositions(itemID int64) map[int64]int {
	f.t.Helper()
	queue, err := f.reservations.Queue(f.ctx, itemID)
	require.NoError(f.t, err)
	positions := make(map[int64]int, len(queue))
	for _, r := range queue {
		positions[r.ID] = r.QueuePosition
	}
	return positions
}

// requireInvariants fails the test if the auditor finds any broken invariant
func (f *fixture) requireInvariants() {
	f.t.Helper()
	report, err := f.auditor.Run(f.ctx)
	require.NoError(f.t, err)
	require.Empty(f.t, report.Violations)
}

func requireCode(t *testing.T, err error, code circerrors.Code) *circerrors.Error {
	t.Helper()
	require.Error(t, err)
	var domainErr *circerrors.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, code, domainErr.Code, "error: %v", err)
	return domainErr
}

func blockReason(t *testing.T, err error) models.EligibilityReason {
	t.Helper()
	domainErr := requireCode(t, err, circerrors.CodeEligibilityBlocked)
	details, ok := domainErr.Details.(map[string]any)
	require.True(t, ok)
	reason, ok := details["reason"].(string)
	require.True(t, ok)
	return models.EligibilityReason(reason)
}
