package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

// Audit rule names reported in violations
const (
	RuleCheckoutFields   = "copy_checkout_fields"
	RuleSingleCheckout   = "copy_single_active_checkout"
	RuleBalanceMatches   = "patron_balance_matches_fines"
	RuleDenseQueue       = "item_queue_dense"
	RuleSingleMainBranch = "single_main_branch"
)

// Auditor verifies cross-record invariants over the whole store
type Auditor struct {
	store  store.Store
	now    Clock
	logger *slog.Logger
}

// NewAuditor creates an auditor
func NewAuditor(st store.Store, opts ...Option) *Auditor {
	o := buildOptions(opts)
	return &Auditor{store: st, now: o.now, logger: o.logger}
}

// Run reads a consistent snapshot and reports every violated invariant
func (a *Auditor) Run(ctx context.Context) (*models.AuditReport, error) {
	report := &models.AuditReport{CheckedAt: a.now(), Violations: []models.AuditViolation{}}

	err := a.store.InTx(ctx, func(q store.Querier) error {
		copies, err := q.ListCopies(ctx)
		if err != nil {
			return fmt.Errorf("failed to list copies: %w", err)
		}
		patrons, err := q.ListPatrons(ctx)
		if err != nil {
			return fmt.Errorf("failed to list patrons: %w", err)
		}
		items, err := q.ListItems(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		branches, err := q.ListBranches(ctx)
		if err != nil {
			return fmt.Errorf("failed to list branches: %w", err)
		}
		active := models.TransactionStatusActive
		checkout := models.TransactionTypeCheckout
		open, err := q.ListTransactions(ctx, store.TransactionFilter{Status: &active, Type: &checkout})
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
		fines, err := q.ListFines(ctx, store.FineFilter{UnpaidOnly: true})
		if err != nil {
			return fmt.Errorf("failed to list fines: %w", err)
		}
		pending := models.ReservationStatusPending
		queued, err := q.ListReservations(ctx, store.ReservationFilter{Status: &pending})
		if err != nil {
			return fmt.Errorf("failed to list reservations: %w", err)
		}

		report.Copies = len(copies)
		report.Patrons = len(patrons)
		report.Items = len(items)
		report.Violations = append(report.Violations, auditCopies(copies, open)...)
		report.Violations = append(report.Violations, auditBalances(patrons, fines)...)
		report.Violations = append(report.Violations, auditQueues(queued)...)
		report.Violations = append(report.Violations, auditBranches(branches)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.OK() {
		a.logger.Info("audit passed", "copies", report.Copies, "patrons", report.Patrons, "items", report.Items)
	} else {
		a.logger.Warn("audit found violations", "violations", len(report.Violations))
	}
	return report, nil
}

func auditCopies(copies []models.ItemCopy, open []models.Transaction) []models.AuditViolation {
	var violations []models.AuditViolation

	openByCopy := make(map[int64]int, len(open))
	for _, t := range open {
		openByCopy[t.CopyID]++
	}

	for _, c := range copies {
		if !c.CheckoutFieldsConsistent() {
			violations = append(violations, models.AuditViolation{
				Rule:     RuleCheckoutFields,
				EntityID: c.ID,
				Message:  fmt.Sprintf("copy %d is %s but checkout fields do not match", c.ID, c.Status),
			})
		}

		want := 0
		if c.Status == models.CopyStatusCheckedOut {
			want = 1
		}
		if got := openByCopy[c.ID]; got != want {
			violations = append(violations, models.AuditViolation{
				Rule:     RuleSingleCheckout,
				EntityID: c.ID,
				Message:  fmt.Sprintf("copy %d is %s with %d active checkouts", c.ID, c.Status, got),
			})
		}
	}
	return violations
}

func auditBalances(patrons []models.Patron, unpaid []models.Fine) []models.AuditViolation {
	var violations []models.AuditViolation

	owed := make(map[int64]decimal.Decimal, len(patrons))
	for _, f := range unpaid {
		owed[f.PatronID] = owed[f.PatronID].Add(f.Amount)
	}

	for _, p := range patrons {
		sum := owed[p.ID]
		if p.Balance.IsNegative() || !p.Balance.Equal(sum) {
			violations = append(violations, models.AuditViolation{
				Rule:     RuleBalanceMatches,
				EntityID: p.ID,
				Message:  fmt.Sprintf("patron %d balance %s, unpaid fines %s", p.ID, p.Balance.StringFixed(2), sum.StringFixed(2)),
			})
		}
	}
	return violations
}

func auditQueues(pending []models.Reservation) []models.AuditViolation {
	var violations []models.AuditViolation

	positions := make(map[int64][]int)
	var order []int64
	for _, r := range pending {
		if _, seen := positions[r.LibraryItemID]; !seen {
			order = append(order, r.LibraryItemID)
		}
		positions[r.LibraryItemID] = append(positions[r.LibraryItemID], r.QueuePosition)
	}

	// pending arrives sorted by position, so a dense queue reads 1..N in order
	for _, itemID := range order {
		for i, pos := range positions[itemID] {
			if pos != i+1 {
				violations = append(violations, models.AuditViolation{
					Rule:     RuleDenseQueue,
					EntityID: itemID,
					Message:  fmt.Sprintf("item %d queue positions %v are not 1..%d", itemID, positions[itemID], len(positions[itemID])),
				})
				break
			}
		}
	}
	return violations
}

func auditBranches(branches []models.Branch) []models.AuditViolation {
	if len(branches) == 0 {
		return nil
	}
	mains := 0
	for _, b := range branches {
		if b.IsMain {
			mains++
		}
	}
	if mains == 1 {
		return nil
	}
	return []models.AuditViolation{{
		Rule:    RuleSingleMainBranch,
		Message: fmt.Sprintf("%d branches are marked main", mains),
	}}
}
