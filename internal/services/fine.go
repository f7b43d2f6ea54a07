package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

// FineService settles overdue fines. Every change to a fine moves the patron
// balance by the same amount in the same transaction.
type FineService struct {
	store  store.Store
	locker lock.Locker
	now    Clock
	logger *slog.Logger
}

// NewFineService creates a fine service
func NewFineService(st store.Store, locker lock.Locker, opts ...Option) *FineService {
	o := buildOptions(opts)
	return &FineService{store: st, locker: locker, now: o.now, logger: o.logger}
}

// SettlementResult reports the fines closed by a payment or waiver
type SettlementResult struct {
	Fines   []models.Fine   `json:"fines"`
	Settled decimal.Decimal `json:"settled"`
	Balance decimal.Decimal `json:"balance"`
}

// Pay marks one fine paid
func (s *FineService) Pay(ctx context.Context, fineID int64) (*SettlementResult, error) {
	return s.settleOne(ctx, fineID, func(f *models.Fine) {
		f.IsPaid = true
		f.PaidDate = ptr(s.now())
	})
}

// Waive forgives one fine
func (s *FineService) Waive(ctx context.Context, fineID int64, reason string) (*SettlementResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, circerrors.ValidationWithDetails("validation failed", map[string]string{"reason": "is required"})
	}
	return s.settleOne(ctx, fineID, func(f *models.Fine) {
		f.Waived = true
		f.WaiveReason = reason
	})
}

// SettleBalance pays every outstanding fine of a patron
func (s *FineService) SettleBalance(ctx context.Context, patronID int64) (*SettlementResult, error) {
	if _, err := s.store.GetPatron(ctx, patronID); err != nil {
		return nil, notFound(err, "patron", patronID)
	}

	result := &SettlementResult{Fines: []models.Fine{}, Settled: decimal.Zero}
	err := runLocked(ctx, s.store, s.locker, []string{lock.PatronKey(patronID)}, func(q store.Querier) error {
		fines, err := q.ListFines(ctx, store.FineFilter{PatronID: &patronID, UnpaidOnly: true})
		if err != nil {
			return fmt.Errorf("failed to list fines: %w", err)
		}

		now := s.now()
		for _, f := range fines {
			f.IsPaid = true
			f.PaidDate = ptr(now)
			if err := q.UpdateFine(ctx, f); err != nil {
				return fmt.Errorf("failed to pay fine %d: %w", f.ID, err)
			}
			result.Fines = append(result.Fines, f)
			result.Settled = result.Settled.Add(f.Amount)
		}

		if err := adjustBalance(ctx, q, patronID, result.Settled.Neg()); err != nil {
			return err
		}
		patron, err := q.GetPatron(ctx, patronID)
		if err != nil {
			return notFound(err, "patron", patronID)
		}
		result.Balance = patron.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("balance settled", "patron_id", patronID, "fines", len(result.Fines), "amount", result.Settled.StringFixed(2))
	return result, nil
}

// List returns a patron's fines, optionally only the outstanding ones
func (s *FineService) List(ctx context.Context, patronID int64, unpaidOnly bool) ([]models.Fine, error) {
	if _, err := s.store.GetPatron(ctx, patronID); err != nil {
		return nil, notFound(err, "patron", patronID)
	}
	fines, err := s.store.ListFines(ctx, store.FineFilter{PatronID: &patronID, UnpaidOnly: unpaidOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to list fines: %w", err)
	}
	return fines, nil
}

func (s *FineService) settleOne(ctx context.Context, fineID int64, apply func(*models.Fine)) (*SettlementResult, error) {
	existing, err := s.store.GetFine(ctx, fineID)
	if err != nil {
		return nil, notFound(err, "fine", fineID)
	}

	var result SettlementResult
	err = runLocked(ctx, s.store, s.locker, []string{lock.PatronKey(existing.PatronID)}, func(q store.Querier) error {
		f, err := q.GetFine(ctx, fineID)
		if err != nil {
			return notFound(err, "fine", fineID)
		}
		if !f.Outstanding() {
			return circerrors.InvalidState("fine %d is already settled", f.ID)
		}

		apply(&f)
		if err := q.UpdateFine(ctx, f); err != nil {
			return fmt.Errorf("failed to update fine: %w", err)
		}
		if err := adjustBalance(ctx, q, f.PatronID, f.Amount.Neg()); err != nil {
			return err
		}

		patron, err := q.GetPatron(ctx, f.PatronID)
		if err != nil {
			return notFound(err, "patron", f.PatronID)
		}
		result = SettlementResult{Fines: []models.Fine{f}, Settled: f.Amount, Balance: patron.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f := result.Fines[0]
	s.logger.Info("fine settled",
		"fine_id", f.ID,
		"patron_id", f.PatronID,
		"amount", f.Amount.StringFixed(2),
		"waived", f.Waived,
	)
	return &result, nil
}
