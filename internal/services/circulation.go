package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
	"github.com/ngenohkevin/circulation/internal/validation"
)

// CirculationService runs checkout, check-in, renewal and reshelving of copies.
//
// Every operation takes the item queue, copy and patron locks it needs in a
// fixed order and then does all of its reads and writes inside one store
// transaction.
type CirculationService struct {
	store       store.Store
	locker      lock.Locker
	policy      *LoanPolicy
	eligibility *EligibilityChecker
	validator   *validation.Validator
	now         Clock
	logger      *slog.Logger
}

// NewCirculationService creates the circulation engine
func NewCirculationService(st store.Store, locker lock.Locker, policy *LoanPolicy, eligibility *EligibilityChecker, opts ...Option) *CirculationService {
	o := buildOptions(opts)
	return &CirculationService{
		store:       st,
		locker:      locker,
		policy:      policy,
		eligibility: eligibility,
		validator:   validation.New(),
		now:         o.now,
		logger:      o.logger,
	}
}

// Checkout lends a copy to a patron
func (s *CirculationService) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutReceipt, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	// The item id never changes, so it is safe to read before locking
	existing, err := s.store.GetCopy(ctx, req.CopyID)
	if err != nil {
		return nil, notFound(err, "copy", req.CopyID)
	}
	keys := []string{
		lock.ItemQueueKey(existing.LibraryItemID),
		lock.CopyKey(req.CopyID),
		lock.PatronKey(req.PatronID),
	}

	var (
		receipt models.CheckoutReceipt
		from    models.CopyStatus
	)
	err = runLocked(ctx, s.store, s.locker, keys, func(q store.Querier) error {
		itemCopy, err := lockAndLoadCopy(ctx, q, existing.LibraryItemID, req.CopyID)
		if err != nil {
			return err
		}
		from = itemCopy.Status

		// Check eligibility
		patron, err := lockAndLoadPatron(ctx, q, req.PatronID)
		if err != nil {
			return err
		}
		active, err := q.CountActiveTransactionsByPatron(ctx, patron.ID)
		if err != nil {
			return fmt.Errorf("failed to count active checkouts: %w", err)
		}
		now := s.now()
		eligibility := s.eligibility.Evaluate(patron, active, now, req.OverrideCardExpiry)
		if !eligibility.Eligible {
			return circerrors.EligibilityBlocked(string(eligibility.Reason), eligibility.Reason.Overridable())
		}
		receipt.CardExpiryOverridden = req.OverrideCardExpiry && CardExpired(patron, now)

		// Check the copy can be lent to this patron
		var fulfilled *models.Reservation
		switch itemCopy.Status {
		case models.CopyStatusReserved:
			if itemCopy.HeldForPatronID != nil {
				if *itemCopy.HeldForPatronID != patron.ID {
					return circerrors.ReservedForAnotherPatron(itemCopy.ID)
				}
				receipt.FulfilledReservation = itemCopy.HeldForReservationID
				break
			}
			// A reserved copy without a recorded hold goes to the patron's own reservation
			fulfilled, err = patronPendingReservation(ctx, q, itemCopy.LibraryItemID, patron.ID)
			if err != nil {
				return err
			}
			if fulfilled == nil {
				return circerrors.ReservedForAnotherPatron(itemCopy.ID)
			}
		case models.CopyStatusAvailable:
			fulfilled, err = patronPendingReservation(ctx, q, itemCopy.LibraryItemID, patron.ID)
			if err != nil {
				return err
			}
		default:
			return circerrors.InvalidState("copy %d is %s and cannot be checked out", itemCopy.ID, itemCopy.Status).
				WithDetails(map[string]any{"copy_id": itemCopy.ID, "status": itemCopy.Status})
		}

		item, err := q.GetItem(ctx, itemCopy.LibraryItemID)
		if err != nil {
			return notFound(err, "item", itemCopy.LibraryItemID)
		}

		// Calculate due date
		dueDate := s.policy.DueDate(item.Category, item.IsNewRelease, now)
		if req.DueDate != nil {
			if !req.DueDate.After(now) {
				return circerrors.Validation("due_date must be in the future")
			}
			dueDate = req.DueDate.UTC()
		}

		txn, err := q.CreateTransaction(ctx, models.Transaction{
			CopyID:       itemCopy.ID,
			PatronID:     patron.ID,
			Type:         models.TransactionTypeCheckout,
			CheckoutDate: now,
			DueDate:      dueDate,
			FineAmount:   decimal.Zero,
			Status:       models.TransactionStatusActive,
			Notes:        req.Notes,
		})
		if err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		if err := transition(&itemCopy, models.CopyStatusCheckedOut); err != nil {
			return err
		}
		itemCopy.CheckedOutBy = ptr(patron.ID)
		itemCopy.DueDate = ptr(dueDate)
		if err := q.UpdateCopy(ctx, itemCopy); err != nil {
			return fmt.Errorf("failed to update copy: %w", err)
		}

		if fulfilled != nil {
			if err := markFulfilled(ctx, q, fulfilled, itemCopy.ID, now); err != nil {
				return err
			}
			if err := renumberQueue(ctx, q, itemCopy.LibraryItemID); err != nil {
				return err
			}
			receipt.FulfilledReservation = ptr(fulfilled.ID)
		}

		branch, err := q.GetBranch(ctx, itemCopy.CurrentBranchID)
		if err != nil {
			return notFound(err, "branch", itemCopy.CurrentBranchID)
		}

		receipt.Transaction = txn
		receipt.Copy = itemCopy
		receipt.Item = item
		receipt.Branch = branch
		receipt.Patron = models.PatronSummary{
			ID:              patron.ID,
			Name:            patron.FullName(),
			ActiveCheckouts: active + 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if receipt.CardExpiryOverridden {
		s.logger.Warn("card expiry overridden at checkout",
			"patron_id", receipt.Patron.ID,
			"copy_id", receipt.Copy.ID,
			"transaction_id", receipt.Transaction.ID,
		)
	}
	s.logger.Info("copy checked out",
		"copy_id", receipt.Copy.ID,
		"patron_id", receipt.Patron.ID,
		"transaction_id", receipt.Transaction.ID,
		"from", from,
		"to", receipt.Copy.Status,
		"due_date", receipt.Transaction.DueDate,
	)
	return &receipt, nil
}

// Checkin takes a copy back, assessing any overdue fine
func (s *CirculationService) Checkin(ctx context.Context, req models.CheckinRequest) (*models.CheckinResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.Condition != nil && !req.Condition.IsValid() {
		return nil, circerrors.ValidationWithDetails("validation failed", map[string]string{"condition": "must be one of New Excellent Good Fair Poor"})
	}

	existing, err := s.store.GetCopy(ctx, req.CopyID)
	if err != nil {
		return nil, notFound(err, "copy", req.CopyID)
	}
	open, err := s.store.GetActiveTransactionByCopy(ctx, req.CopyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, circerrors.NoActiveTransaction(req.CopyID)
		}
		return nil, fmt.Errorf("failed to get active transaction: %w", err)
	}
	keys := []string{
		lock.ItemQueueKey(existing.LibraryItemID),
		lock.CopyKey(req.CopyID),
		lock.PatronKey(open.PatronID),
	}

	var result models.CheckinResult
	err = runLocked(ctx, s.store, s.locker, keys, func(q store.Querier) error {
		itemCopy, err := lockAndLoadCopy(ctx, q, existing.LibraryItemID, req.CopyID)
		if err != nil {
			return err
		}

		txn, err := q.GetActiveTransactionByCopy(ctx, itemCopy.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return circerrors.NoActiveTransaction(itemCopy.ID)
			}
			return fmt.Errorf("failed to get active transaction: %w", err)
		}
		if txn.PatronID != open.PatronID {
			return circerrors.QueueConflict(fmt.Sprintf("copy %d changed hands during check-in", itemCopy.ID))
		}

		// Work out where the copy is and where it should go
		returnBranch := itemCopy.CurrentBranchID
		if req.ReturnBranchID != nil {
			if _, err := q.GetBranch(ctx, *req.ReturnBranchID); err != nil {
				return notFound(err, "branch", *req.ReturnBranchID)
			}
			returnBranch = *req.ReturnBranchID
		}
		target := itemCopy.OwningBranchID
		if req.NewLocationID != nil {
			if _, err := q.GetBranch(ctx, *req.NewLocationID); err != nil {
				return notFound(err, "branch", *req.NewLocationID)
			}
			target = *req.NewLocationID
		}

		now := s.now()
		fine := decimal.Zero
		to := models.CopyStatusReturned
		if req.Damaged {
			to = models.CopyStatusDamaged
		} else {
			fine = s.policy.Fine(txn.DueDate, now)
		}

		txn.Status = models.TransactionStatusCompleted
		txn.ReturnDate = ptr(now)
		txn.FineAmount = fine
		txn.Notes = joinNotes(txn.Notes, req.Notes)
		if err := q.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("failed to complete transaction: %w", err)
		}

		if fine.IsPositive() {
			created, err := q.CreateFine(ctx, models.Fine{
				TransactionID: txn.ID,
				PatronID:      txn.PatronID,
				Amount:        fine,
			})
			if err != nil {
				return fmt.Errorf("failed to create fine: %w", err)
			}
			if err := adjustBalance(ctx, q, txn.PatronID, fine); err != nil {
				return err
			}
			result.Fine = &created
		}

		if _, err := q.CreateTransaction(ctx, models.Transaction{
			CopyID:       txn.CopyID,
			PatronID:     txn.PatronID,
			Type:         models.TransactionTypeCheckin,
			CheckoutDate: txn.CheckoutDate,
			DueDate:      txn.DueDate,
			ReturnDate:   ptr(now),
			FineAmount:   fine,
			Status:       models.TransactionStatusCompleted,
			ParentID:     ptr(txn.ID),
			Notes:        req.Notes,
		}); err != nil {
			return fmt.Errorf("failed to record check-in: %w", err)
		}

		if err := transition(&itemCopy, to); err != nil {
			return err
		}
		itemCopy.CurrentBranchID = returnBranch
		switch {
		case req.Damaged:
			itemCopy.Condition = models.ConditionPoor
		case req.Condition != nil:
			itemCopy.Condition = *req.Condition
		}
		if err := q.UpdateCopy(ctx, itemCopy); err != nil {
			return fmt.Errorf("failed to update copy: %w", err)
		}

		result.Transaction = txn
		result.Copy = itemCopy
		result.Damaged = req.Damaged
		result.ReturnBranchID = returnBranch
		result.TargetBranchID = target
		result.NeedsTransfer = target != returnBranch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("copy checked in",
		"copy_id", result.Copy.ID,
		"patron_id", result.Transaction.PatronID,
		"transaction_id", result.Transaction.ID,
		"from", models.CopyStatusCheckedOut,
		"to", result.Copy.Status,
		"fine", result.Transaction.FineAmount.StringFixed(2),
		"needs_transfer", result.NeedsTransfer,
	)
	return &result, nil
}

// Renew extends an active checkout when nobody is waiting for the item
func (s *CirculationService) Renew(ctx context.Context, transactionID int64) (*models.RenewalResult, error) {
	existing, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, notFound(err, "transaction", transactionID)
	}
	itemCopy, err := s.store.GetCopy(ctx, existing.CopyID)
	if err != nil {
		return nil, notFound(err, "copy", existing.CopyID)
	}
	keys := []string{
		lock.ItemQueueKey(itemCopy.LibraryItemID),
		lock.CopyKey(itemCopy.ID),
		lock.PatronKey(existing.PatronID),
	}

	var result models.RenewalResult
	err = runLocked(ctx, s.store, s.locker, keys, func(q store.Querier) error {
		itemCopy, err := lockAndLoadCopy(ctx, q, itemCopy.LibraryItemID, itemCopy.ID)
		if err != nil {
			return err
		}

		txn, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return notFound(err, "transaction", transactionID)
		}
		if txn.Type != models.TransactionTypeCheckout || !txn.IsActive() {
			return circerrors.InvalidState("transaction %d is not an active checkout", txn.ID)
		}
		if itemCopy.Status != models.CopyStatusCheckedOut {
			return circerrors.InvalidState("copy %d is %s, not CheckedOut", itemCopy.ID, itemCopy.Status)
		}

		queue, err := pendingQueue(ctx, q, itemCopy.LibraryItemID)
		if err != nil {
			return err
		}
		if len(queue) > 0 {
			return circerrors.InvalidState("item %d has %d pending reservations", itemCopy.LibraryItemID, len(queue)).
				WithDetails(map[string]any{"item_id": itemCopy.LibraryItemID, "pending_reservations": len(queue)})
		}

		now := s.now()
		txn.DueDate = s.policy.Renew(txn.DueDate)
		txn.RenewalCount++
		if err := q.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("failed to extend transaction: %w", err)
		}

		itemCopy.DueDate = ptr(txn.DueDate)
		if err := q.UpdateCopy(ctx, itemCopy); err != nil {
			return fmt.Errorf("failed to extend copy: %w", err)
		}

		renewal, err := q.CreateTransaction(ctx, models.Transaction{
			CopyID:       txn.CopyID,
			PatronID:     txn.PatronID,
			Type:         models.TransactionTypeRenewal,
			CheckoutDate: now,
			DueDate:      txn.DueDate,
			FineAmount:   decimal.Zero,
			Status:       models.TransactionStatusCompleted,
			RenewalCount: txn.RenewalCount,
			ParentID:     ptr(txn.ID),
			Notes:        fmt.Sprintf("Renewal of transaction #%d", txn.ID),
		})
		if err != nil {
			return fmt.Errorf("failed to record renewal: %w", err)
		}

		result = models.RenewalResult{Transaction: txn, Renewal: renewal, Copy: itemCopy}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkout renewed",
		"copy_id", result.Copy.ID,
		"patron_id", result.Transaction.PatronID,
		"transaction_id", result.Transaction.ID,
		"due_date", result.Transaction.DueDate,
		"renewal_count", result.Transaction.RenewalCount,
	)
	return &result, nil
}

// Reshelve puts a returned, or repaired, copy back on the shelf
func (s *CirculationService) Reshelve(ctx context.Context, copyID int64, req models.ReshelveRequest) (*models.ReshelveResult, error) {
	if req.Condition != nil && !req.Condition.IsValid() {
		return nil, circerrors.ValidationWithDetails("validation failed", map[string]string{"condition": "must be one of New Excellent Good Fair Poor"})
	}

	existing, err := s.store.GetCopy(ctx, copyID)
	if err != nil {
		return nil, notFound(err, "copy", copyID)
	}
	keys := []string{lock.ItemQueueKey(existing.LibraryItemID), lock.CopyKey(copyID)}

	var (
		result models.ReshelveResult
		from   models.CopyStatus
	)
	err = runLocked(ctx, s.store, s.locker, keys, func(q store.Querier) error {
		itemCopy, err := lockAndLoadCopy(ctx, q, existing.LibraryItemID, copyID)
		if err != nil {
			return err
		}
		from = itemCopy.Status

		switch itemCopy.Status {
		case models.CopyStatusReturned:
		case models.CopyStatusDamaged:
			if !req.Repaired {
				return circerrors.InvalidState("copy %d is damaged and must be repaired before reshelving", itemCopy.ID)
			}
		default:
			return circerrors.InvalidState("copy %d is %s; only Returned or repaired Damaged copies can be reshelved", itemCopy.ID, itemCopy.Status)
		}

		branch := itemCopy.OwningBranchID
		if req.BranchID != nil {
			if _, err := q.GetBranch(ctx, *req.BranchID); err != nil {
				return notFound(err, "branch", *req.BranchID)
			}
			branch = *req.BranchID
		}

		if err := transition(&itemCopy, models.CopyStatusAvailable); err != nil {
			return err
		}
		itemCopy.CurrentBranchID = branch
		switch {
		case req.Condition != nil:
			itemCopy.Condition = *req.Condition
		case from == models.CopyStatusDamaged:
			itemCopy.Condition = models.ConditionFair
		}
		if err := q.UpdateCopy(ctx, itemCopy); err != nil {
			return fmt.Errorf("failed to update copy: %w", err)
		}

		queue, err := pendingQueue(ctx, q, itemCopy.LibraryItemID)
		if err != nil {
			return err
		}

		result = models.ReshelveResult{
			Copy:                itemCopy,
			NeedsTransfer:       itemCopy.NeedsTransfer(),
			PendingReservations: len(queue),
		}
		if len(queue) > 0 {
			result.NextReservationID = ptr(queue[0].ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("copy reshelved",
		"copy_id", result.Copy.ID,
		"from", from,
		"to", result.Copy.Status,
		"branch_id", result.Copy.CurrentBranchID,
		"needs_transfer", result.NeedsTransfer,
	)
	return &result, nil
}

// MarkLost writes a copy off. An open checkout is closed without a fine.
func (s *CirculationService) MarkLost(ctx context.Context, copyID int64) (*models.LostResult, error) {
	existing, err := s.store.GetCopy(ctx, copyID)
	if err != nil {
		return nil, notFound(err, "copy", copyID)
	}
	keys := []string{lock.ItemQueueKey(existing.LibraryItemID), lock.CopyKey(copyID)}
	if existing.CheckedOutBy != nil {
		keys = append(keys, lock.PatronKey(*existing.CheckedOutBy))
	}

	var result models.LostResult
	err = runLocked(ctx, s.store, s.locker, keys, func(q store.Querier) error {
		itemCopy, err := lockAndLoadCopy(ctx, q, existing.LibraryItemID, copyID)
		if err != nil {
			return err
		}
		result.PreviousStatus = itemCopy.Status

		txn, err := q.GetActiveTransactionByCopy(ctx, itemCopy.ID)
		switch {
		case err == nil:
			txn.Status = models.TransactionStatusCompleted
			txn.Notes = joinNotes(txn.Notes, "copy marked lost")
			if err := q.UpdateTransaction(ctx, txn); err != nil {
				return fmt.Errorf("failed to close transaction: %w", err)
			}
			result.ClosedTransaction = &txn
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("failed to get active transaction: %w", err)
		}

		if err := transition(&itemCopy, models.CopyStatusLost); err != nil {
			return err
		}
		if err := q.UpdateCopy(ctx, itemCopy); err != nil {
			return fmt.Errorf("failed to update copy: %w", err)
		}
		result.Copy = itemCopy
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("copy marked lost",
		"copy_id", result.Copy.ID,
		"from", result.PreviousStatus,
		"to", result.Copy.Status,
	)
	return &result, nil
}

// ListOverdue returns active checkouts past their due date with the fine accrued so far
func (s *CirculationService) ListOverdue(ctx context.Context) ([]models.OverdueEntry, error) {
	now := s.now()
	active := models.TransactionStatusActive
	checkout := models.TransactionTypeCheckout
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{Status: &active, Type: &checkout, DueBefore: &now})
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue transactions: %w", err)
	}

	entries := make([]models.OverdueEntry, 0, len(txns))
	for _, t := range txns {
		entries = append(entries, models.OverdueEntry{
			Transaction: t,
			DaysOverdue: s.policy.DaysOverdue(t.DueDate, now),
			AccruedFine: s.policy.Fine(t.DueDate, now),
		})
	}
	return entries, nil
}

// GetTransaction returns one transaction
func (s *CirculationService) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return &t, nil
}

func lockAndLoadCopy(ctx context.Context, q store.Querier, itemID, copyID int64) (models.ItemCopy, error) {
	if err := q.LockItemQueue(ctx, itemID); err != nil {
		return models.ItemCopy{}, fmt.Errorf("failed to lock queue: %w", err)
	}
	if err := q.LockCopy(ctx, copyID); err != nil {
		return models.ItemCopy{}, fmt.Errorf("failed to lock copy: %w", err)
	}
	c, err := q.GetCopy(ctx, copyID)
	if err != nil {
		return models.ItemCopy{}, notFound(err, "copy", copyID)
	}
	return c, nil
}

func lockAndLoadPatron(ctx context.Context, q store.Querier, patronID int64) (models.Patron, error) {
	if err := q.LockPatron(ctx, patronID); err != nil {
		return models.Patron{}, notFound(err, "patron", patronID)
	}
	p, err := q.GetPatron(ctx, patronID)
	if err != nil {
		return models.Patron{}, notFound(err, "patron", patronID)
	}
	return p, nil
}

func patronPendingReservation(ctx context.Context, q store.Querier, itemID, patronID int64) (*models.Reservation, error) {
	queue, err := pendingQueue(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	for i := range queue {
		if queue[i].PatronID == patronID {
			return &queue[i], nil
		}
	}
	return nil, nil
}

// adjustBalance adds delta to a patron balance; the result may not go negative
func adjustBalance(ctx context.Context, q store.Querier, patronID int64, delta decimal.Decimal) error {
	patron, err := lockAndLoadPatron(ctx, q, patronID)
	if err != nil {
		return err
	}
	balance := patron.Balance.Add(delta)
	if balance.IsNegative() {
		return circerrors.InvalidState("balance of patron %d would drop below zero", patronID)
	}
	patron.Balance = balance
	if err := q.UpdatePatron(ctx, patron); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func joinNotes(existing, extra string) string {
	extra = strings.TrimSpace(extra)
	switch {
	case extra == "":
		return existing
	case existing == "":
		return extra
	}
	return existing + "\n" + extra
}
