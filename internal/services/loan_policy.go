package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ngenohkevin/circulation/internal/config"
	"github.com/ngenohkevin/circulation/internal/models"
)

const day = 24 * time.Hour

// LoanPolicy computes due dates, renewal extensions and overdue fines
type LoanPolicy struct {
	loanDays        map[models.ItemCategory]int
	defaultLoanDays int
	newReleaseDays  int
	renewalDays     int
	reservationDays int
	holdDays        int
	finePerDay      decimal.Decimal
}

// DefaultLoanPolicy returns the standard lending rules
func DefaultLoanPolicy() *LoanPolicy {
	return &LoanPolicy{
		loanDays: map[models.ItemCategory]int{
			models.CategoryBook:      28,
			models.CategoryVideo:     7,
			models.CategoryAudiobook: 7,
		},
		defaultLoanDays: 14, // everything without a category rule
		newReleaseDays:  3,  // overrides the category period
		renewalDays:     14,
		reservationDays: 7,
		holdDays:        7, // pickup window for a fulfilled reservation
		finePerDay:      decimal.NewFromFloat(0.50), // $0.50 per day overdue
	}
}

// NewLoanPolicy builds a policy from configuration, falling back to the
// standard rules for anything left unset
func NewLoanPolicy(cfg config.CirculationConfig) (*LoanPolicy, error) {
	p := DefaultLoanPolicy()

	if cfg.FinePerDay != "" {
		fine, err := decimal.NewFromString(cfg.FinePerDay)
		if err != nil {
			return nil, fmt.Errorf("invalid fine_per_day %q: %w", cfg.FinePerDay, err)
		}
		if fine.IsNegative() {
			return nil, fmt.Errorf("fine_per_day must not be negative, got %s", fine)
		}
		p.finePerDay = fine
	}
	if cfg.DefaultLoanDays > 0 {
		p.defaultLoanDays = cfg.DefaultLoanDays
	}
	if cfg.NewReleaseDays > 0 {
		p.newReleaseDays = cfg.NewReleaseDays
	}
	if cfg.RenewalDays > 0 {
		p.renewalDays = cfg.RenewalDays
	}
	if cfg.ReservationDays > 0 {
		p.reservationDays = cfg.ReservationDays
	}
	if cfg.HoldDays > 0 {
		p.holdDays = cfg.HoldDays
	}

	// viper lower-cases map keys, so match categories without case
	for key, days := range cfg.LoanDays {
		category, ok := categoryByName(key)
		if !ok {
			return nil, fmt.Errorf("unknown category %q in loan_days", key)
		}
		if days <= 0 {
			return nil, fmt.Errorf("loan_days for %s must be positive", category)
		}
		p.loanDays[category] = days
	}

	return p, nil
}

func categoryByName(name string) (models.ItemCategory, bool) {
	for _, c := range []models.ItemCategory{
		models.CategoryBook, models.CategoryVideo, models.CategoryAudiobook,
		models.CategoryMagazine, models.CategoryCD, models.CategoryVinyl, models.CategoryPeriodical,
	} {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

// LoanDays returns the loan period in days for an item
func (p *LoanPolicy) LoanDays(category models.ItemCategory, isNewRelease bool) int {
	if isNewRelease {
		return p.newReleaseDays
	}
	if days, ok := p.loanDays[category]; ok {
		return days
	}
	return p.defaultLoanDays
}

// DueDate returns when an item checked out at checkoutDate is due back
func (p *LoanPolicy) DueDate(category models.ItemCategory, isNewRelease bool, checkoutDate time.Time) time.Time {
	return checkoutDate.AddDate(0, 0, p.LoanDays(category, isNewRelease))
}

// Renew returns the due date after one renewal
func (p *LoanPolicy) Renew(dueDate time.Time) time.Time {
	return dueDate.AddDate(0, 0, p.renewalDays)
}

// ReservationExpiry returns when a reservation placed at now lapses
func (p *LoanPolicy) ReservationExpiry(now time.Time) time.Time {
	return now.AddDate(0, 0, p.reservationDays)
}

// HoldExpiry returns when a copy held at fulfilledAt goes back on the shelf if uncollected
func (p *LoanPolicy) HoldExpiry(fulfilledAt time.Time) time.Time {
	return fulfilledAt.AddDate(0, 0, p.holdDays)
}

// DaysOverdue counts started days past the due date; a partial day counts as a whole one
func (p *LoanPolicy) DaysOverdue(dueDate, at time.Time) int {
	late := at.Sub(dueDate)
	if late <= 0 {
		return 0
	}
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// Fine returns the overdue charge for returning at returnDate
func (p *LoanPolicy) Fine(dueDate, returnDate time.Time) decimal.Decimal {
	days := p.DaysOverdue(dueDate, returnDate)
	if days == 0 {
		return decimal.Zero
	}
	return p.finePerDay.Mul(decimal.NewFromInt(int64(days)))
}

// FinePerDay returns the daily overdue rate
func (p *LoanPolicy) FinePerDay() decimal.Decimal {
	return p.finePerDay
}
