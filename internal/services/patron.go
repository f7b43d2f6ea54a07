package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
	"github.com/ngenohkevin/circulation/internal/validation"
)

// PatronService handles patron registration and account lookups
type PatronService struct {
	store       store.Store
	locker      lock.Locker
	eligibility *EligibilityChecker
	validator   *validation.Validator
	now         Clock
	logger      *slog.Logger
}

// NewPatronService creates a new patron service
func NewPatronService(st store.Store, locker lock.Locker, eligibility *EligibilityChecker, opts ...Option) *PatronService {
	o := buildOptions(opts)
	return &PatronService{
		store:       st,
		locker:      locker,
		eligibility: eligibility,
		validator:   validation.New(),
		now:         o.now,
		logger:      o.logger,
	}
}

// Register creates an active patron with a zero balance
func (s *PatronService) Register(ctx context.Context, req models.CreatePatronRequest) (*models.Patron, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	patron, err := s.store.CreatePatron(ctx, models.Patron{
		FirstName:          strings.TrimSpace(req.FirstName),
		LastName:           strings.TrimSpace(req.LastName),
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		Balance:            decimal.Zero,
		CardExpirationDate: req.CardExpirationDate.UTC(),
		IsActive:           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create patron: %w", err)
	}

	s.logger.Info("patron registered", "patron_id", patron.ID)
	return &patron, nil
}

// Get returns one patron
func (s *PatronService) Get(ctx context.Context, id int64) (*models.Patron, error) {
	p, err := s.store.GetPatron(ctx, id)
	if err != nil {
		return nil, notFound(err, "patron", id)
	}
	return &p, nil
}

// List returns all patrons
func (s *PatronService) List(ctx context.Context) ([]models.Patron, error) {
	patrons, err := s.store.ListPatrons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patrons: %w", err)
	}
	return patrons, nil
}

// Update applies a partial update. The balance is only changed by fines.
func (s *PatronService) Update(ctx context.Context, id int64, req models.UpdatePatronRequest) (*models.Patron, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var updated models.Patron
	err := runLocked(ctx, s.store, s.locker, []string{lock.PatronKey(id)}, func(q store.Querier) error {
		p, err := lockAndLoadPatron(ctx, q, id)
		if err != nil {
			return err
		}

		if req.FirstName != nil {
			p.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			p.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.Email != nil {
			p.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
		if req.CardExpirationDate != nil {
			p.CardExpirationDate = req.CardExpirationDate.UTC()
		}
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}

		if err := q.UpdatePatron(ctx, p); err != nil {
			return fmt.Errorf("failed to update patron: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Deactivate closes a patron account for new checkouts
func (s *PatronService) Deactivate(ctx context.Context, id int64) (*models.Patron, error) {
	inactive := false
	p, err := s.Update(ctx, id, models.UpdatePatronRequest{IsActive: &inactive})
	if err != nil {
		return nil, err
	}
	s.logger.Info("patron deactivated", "patron_id", id)
	return p, nil
}

// Eligibility reports whether the patron may check out right now
func (s *PatronService) Eligibility(ctx context.Context, id int64) (*models.EligibilityResult, error) {
	result, err := s.eligibility.Check(ctx, s.store, id, s.now())
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Transactions returns a patron's circulation history
func (s *PatronService) Transactions(ctx context.Context, id int64, activeOnly bool) ([]models.Transaction, error) {
	if _, err := s.store.GetPatron(ctx, id); err != nil {
		return nil, notFound(err, "patron", id)
	}

	filter := store.TransactionFilter{PatronID: &id}
	if activeOnly {
		active := models.TransactionStatusActive
		filter.Status = &active
	}
	txns, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	return txns, nil
}
