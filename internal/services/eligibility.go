package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

// DefaultMaxActiveCheckouts is the hard ceiling on simultaneous loans per patron
const DefaultMaxActiveCheckouts = 20

// EligibilityChecker decides whether a patron may borrow
type EligibilityChecker struct {
	maxActiveCheckouts int
}

// NewEligibilityChecker creates a checker; a non-positive limit selects the default
func NewEligibilityChecker(maxActiveCheckouts int) *EligibilityChecker {
	if maxActiveCheckouts <= 0 {
		maxActiveCheckouts = DefaultMaxActiveCheckouts
	}
	return &EligibilityChecker{maxActiveCheckouts: maxActiveCheckouts}
}

// Evaluate applies the rules in precedence order and reports the first that fails.
// The checkout limit takes precedence over every other reason. skipCardExpiry is
// the staff override.
func (c *EligibilityChecker) Evaluate(patron models.Patron, activeCheckouts int, now time.Time, skipCardExpiry bool) models.EligibilityResult {
	result := models.EligibilityResult{
		PatronID:        patron.ID,
		Eligible:        true,
		ActiveCheckouts: activeCheckouts,
		Balance:         patron.Balance,
	}

	switch {
	case activeCheckouts >= c.maxActiveCheckouts:
		result.Reason = models.ReasonTooManyCheckouts
	case patron.Balance.IsPositive():
		result.Reason = models.ReasonOutstandingBalance
	case !skipCardExpiry && CardExpired(patron, now):
		result.Reason = models.ReasonCardExpired
	case !patron.IsActive:
		result.Reason = models.ReasonAccountInactive
	}
	result.Eligible = result.Reason == ""
	return result
}

// Check loads the patron and active checkout count through q and evaluates them
func (c *EligibilityChecker) Check(ctx context.Context, q store.Querier, patronID int64, now time.Time) (models.EligibilityResult, error) {
	patron, err := q.GetPatron(ctx, patronID)
	if err != nil {
		return models.EligibilityResult{}, notFound(err, "patron", patronID)
	}

	active, err := q.CountActiveTransactionsByPatron(ctx, patronID)
	if err != nil {
		return models.EligibilityResult{}, fmt.Errorf("failed to count active checkouts: %w", err)
	}

	return c.Evaluate(patron, active, now, false), nil
}

// MaxActiveCheckouts returns the configured limit
func (c *EligibilityChecker) MaxActiveCheckouts() int {
	return c.maxActiveCheckouts
}

// CardExpired reports whether the card lapsed before the start of now's day
func CardExpired(patron models.Patron, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return patron.CardExpirationDate.Before(today)
}
