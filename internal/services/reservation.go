package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
	"github.com/ngenohkevin/circulation/internal/validation"
)

// ReservationService manages the per-item queue of patrons waiting for a copy
type ReservationService struct {
	store     store.Store
	locker    lock.Locker
	policy    *LoanPolicy
	validator *validation.Validator
	now       Clock
	logger    *slog.Logger
}

// NewReservationService creates a reservation service
func NewReservationService(st store.Store, locker lock.Locker, policy *LoanPolicy, opts ...Option) *ReservationService {
	o := buildOptions(opts)
	return &ReservationService{
		store:     st,
		locker:    locker,
		policy:    policy,
		validator: validation.New(),
		now:       o.now,
		logger:    o.logger,
	}
}

// Reserve queues a patron for an item that has no copy on the shelf
func (s *ReservationService) Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var created models.Reservation
	err := runLocked(ctx, s.store, s.locker, []string{lock.ItemQueueKey(req.LibraryItemID)}, func(q store.Querier) error {
		if err := q.LockItemQueue(ctx, req.LibraryItemID); err != nil {
			return fmt.Errorf("failed to lock queue: %w", err)
		}

		if _, err := q.GetItem(ctx, req.LibraryItemID); err != nil {
			return notFound(err, "item", req.LibraryItemID)
		}
		if _, err := q.GetPatron(ctx, req.PatronID); err != nil {
			return notFound(err, "patron", req.PatronID)
		}

		// A copy on the shelf can simply be checked out
		copies, err := q.ListCopiesByItem(ctx, req.LibraryItemID)
		if err != nil {
			return fmt.Errorf("failed to list copies: %w", err)
		}
		for _, c := range copies {
			if c.Status == models.CopyStatusAvailable {
				return circerrors.InvalidState("item %d has an available copy; check it out instead", req.LibraryItemID).
					WithDetails(map[string]any{"item_id": req.LibraryItemID, "copy_id": c.ID})
			}
		}

		queue, err := pendingQueue(ctx, q, req.LibraryItemID)
		if err != nil {
			return err
		}

		maxPosition := 0
		for _, r := range queue {
			if r.PatronID == req.PatronID {
				return circerrors.AlreadyReserved(fmt.Sprintf("patron %d already has reservation %d for item %d", req.PatronID, r.ID, req.LibraryItemID)).
					WithDetails(map[string]any{"reservation_id": r.ID, "queue_position": r.QueuePosition})
			}
			if r.QueuePosition > maxPosition {
				maxPosition = r.QueuePosition
			}
		}

		now := s.now()
		created, err = q.CreateReservation(ctx, models.Reservation{
			LibraryItemID: req.LibraryItemID,
			PatronID:      req.PatronID,
			Status:        models.ReservationStatusPending,
			QueuePosition: maxPosition + 1,
			ExpiryDate:    s.policy.ReservationExpiry(now),
		})
		if err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation created",
		"reservation_id", created.ID,
		"item_id", created.LibraryItemID,
		"patron_id", created.PatronID,
		"queue_position", created.QueuePosition,
	)
	return &created, nil
}

// Fulfill holds an Available copy for a Pending reservation and closes the reservation
func (s *ReservationService) Fulfill(ctx context.Context, reservationID int64) (*models.FulfillResult, error) {
	existing, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, notFound(err, "reservation", reservationID)
	}

	var result models.FulfillResult
	err = runLocked(ctx, s.store, s.locker, []string{lock.ItemQueueKey(existing.LibraryItemID)}, func(q store.Querier) error {
		if err := q.LockItemQueue(ctx, existing.LibraryItemID); err != nil {
			return fmt.Errorf("failed to lock queue: %w", err)
		}

		r, err := q.GetReservation(ctx, reservationID)
		if err != nil {
			return notFound(err, "reservation", reservationID)
		}
		if !r.IsPending() {
			return circerrors.InvalidState("reservation %d is %s, not Pending", r.ID, r.Status)
		}

		copies, err := q.ListCopiesByItem(ctx, r.LibraryItemID)
		if err != nil {
			return fmt.Errorf("failed to list copies: %w", err)
		}
		var held *models.ItemCopy
		for i := range copies {
			if copies[i].Status == models.CopyStatusAvailable {
				held = &copies[i]
				break
			}
		}
		if held == nil {
			return circerrors.QueueConflict(fmt.Sprintf("no available copy of item %d to fulfill reservation %d", r.LibraryItemID, r.ID))
		}
		if err := q.LockCopy(ctx, held.ID); err != nil {
			return fmt.Errorf("failed to lock copy: %w", err)
		}

		if err := transition(held, models.CopyStatusReserved); err != nil {
			return err
		}
		held.HeldForReservationID = ptr(r.ID)
		held.HeldForPatronID = ptr(r.PatronID)
		if err := q.UpdateCopy(ctx, *held); err != nil {
			return fmt.Errorf("failed to hold copy: %w", err)
		}

		if err := markFulfilled(ctx, q, &r, held.ID, s.now()); err != nil {
			return err
		}
		if err := renumberQueue(ctx, q, r.LibraryItemID); err != nil {
			return err
		}

		result = models.FulfillResult{Reservation: r, Copy: *held}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation fulfilled",
		"reservation_id", result.Reservation.ID,
		"patron_id", result.Reservation.PatronID,
		"copy_id", result.Copy.ID,
		"from", models.CopyStatusAvailable,
		"to", models.CopyStatusReserved,
	)
	return &result, nil
}

// Cancel withdraws a Pending reservation and closes the gap it leaves in the queue
func (s *ReservationService) Cancel(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	existing, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, notFound(err, "reservation", reservationID)
	}

	var cancelled models.Reservation
	err = runLocked(ctx, s.store, s.locker, []string{lock.ItemQueueKey(existing.LibraryItemID)}, func(q store.Querier) error {
		if err := q.LockItemQueue(ctx, existing.LibraryItemID); err != nil {
			return fmt.Errorf("failed to lock queue: %w", err)
		}

		r, err := q.GetReservation(ctx, reservationID)
		if err != nil {
			return notFound(err, "reservation", reservationID)
		}
		if !r.IsPending() {
			return circerrors.InvalidState("reservation %d is %s, only Pending reservations can be cancelled", r.ID, r.Status)
		}

		r.Status = models.ReservationStatusCancelled
		if err := q.UpdateReservation(ctx, r); err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}
		if err := renumberQueue(ctx, q, r.LibraryItemID); err != nil {
			return err
		}
		cancelled = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation cancelled", "reservation_id", cancelled.ID, "item_id", cancelled.LibraryItemID)
	return &cancelled, nil
}

// ExpireOverdue moves every Pending reservation past its expiry date to Expired
// and renumbers each affected queue, then returns uncollected held copies to
// Available. It runs only when called.
func (s *ReservationService) ExpireOverdue(ctx context.Context) (*models.ExpireResult, error) {
	now := s.now()
	pending := models.ReservationStatusPending
	candidates, err := s.store.ListReservations(ctx, store.ReservationFilter{Status: &pending, ExpiredBefore: &now})
	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	byItem := make(map[int64][]int64)
	for _, r := range candidates {
		byItem[r.LibraryItemID] = append(byItem[r.LibraryItemID], r.ID)
	}
	itemIDs := make([]int64, 0, len(byItem))
	for id := range byItem {
		itemIDs = append(itemIDs, id)
	}
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })

	result := &models.ExpireResult{Expired: []models.Reservation{}, ReleasedHolds: []models.ItemCopy{}}
	for _, itemID := range itemIDs {
		var expired []models.Reservation
		err := runLocked(ctx, s.store, s.locker, []string{lock.ItemQueueKey(itemID)}, func(q store.Querier) error {
			expired = nil
			if err := q.LockItemQueue(ctx, itemID); err != nil {
				return fmt.Errorf("failed to lock queue: %w", err)
			}
			for _, id := range byItem[itemID] {
				r, err := q.GetReservation(ctx, id)
				if err != nil {
					return notFound(err, "reservation", id)
				}
				// Skip anything fulfilled or cancelled since the scan
				if !r.IsPending() || !r.ExpiryDate.Before(now) {
					continue
				}
				r.Status = models.ReservationStatusExpired
				if err := q.UpdateReservation(ctx, r); err != nil {
					return fmt.Errorf("failed to expire reservation %d: %w", r.ID, err)
				}
				expired = append(expired, r)
			}
			return renumberQueue(ctx, q, itemID)
		})
		if err != nil {
			return result, err
		}
		if len(expired) > 0 {
			result.Expired = append(result.Expired, expired...)
			result.ItemsTouched++
		}
	}

	if err := s.releaseLapsedHolds(ctx, now, result); err != nil {
		return result, err
	}

	s.logger.Info("reservation sweep complete",
		"expired", len(result.Expired),
		"items", result.ItemsTouched,
		"released_holds", len(result.ReleasedHolds),
	)
	return result, nil
}

// releaseLapsedHolds puts back on the shelf every copy still held for a
// reservation fulfilled longer ago than the pickup window. The reservation
// stays Fulfilled.
func (s *ReservationService) releaseLapsedHolds(ctx context.Context, now time.Time, result *models.ExpireResult) error {
	fulfilled := models.ReservationStatusFulfilled
	reservations, err := s.store.ListReservations(ctx, store.ReservationFilter{Status: &fulfilled})
	if err != nil {
		return fmt.Errorf("failed to list fulfilled reservations: %w", err)
	}

	var lapsed []models.Reservation
	for _, r := range reservations {
		if r.CopyID != nil && r.FulfilledAt != nil && !s.policy.HoldExpiry(*r.FulfilledAt).After(now) {
			lapsed = append(lapsed, r)
		}
	}
	sort.Slice(lapsed, func(i, j int) bool { return lapsed[i].ID < lapsed[j].ID })

	for _, r := range lapsed {
		copyID := *r.CopyID
		var released *models.ItemCopy
		keys := []string{lock.ItemQueueKey(r.LibraryItemID), lock.CopyKey(copyID)}
		err := runLocked(ctx, s.store, s.locker, keys, func(q store.Querier) error {
			released = nil
			c, err := lockAndLoadCopy(ctx, q, r.LibraryItemID, copyID)
			if err != nil {
				return err
			}
			// Collected, lost, or already released since the scan
			if c.Status != models.CopyStatusReserved || c.HeldForReservationID == nil || *c.HeldForReservationID != r.ID {
				return nil
			}
			if err := transition(&c, models.CopyStatusAvailable); err != nil {
				return err
			}
			if err := q.UpdateCopy(ctx, c); err != nil {
				return fmt.Errorf("failed to release copy %d: %w", c.ID, err)
			}
			released = &c
			return nil
		})
		if err != nil {
			return err
		}
		if released != nil {
			s.logger.Info("uncollected hold released",
				"reservation_id", r.ID,
				"patron_id", r.PatronID,
				"copy_id", released.ID,
				"from", models.CopyStatusReserved,
				"to", models.CopyStatusAvailable,
			)
			result.ReleasedHolds = append(result.ReleasedHolds, *released)
		}
	}
	return nil
}

// Queue returns the Pending reservations for an item in queue order
func (s *ReservationService) Queue(ctx context.Context, itemID int64) ([]models.Reservation, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, notFound(err, "item", itemID)
	}
	return pendingQueue(ctx, s.store, itemID)
}

// Get returns one reservation
func (s *ReservationService) Get(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, notFound(err, "reservation", reservationID)
	}
	return &r, nil
}

// ListByPatron returns every reservation a patron has placed
func (s *ReservationService) ListByPatron(ctx context.Context, patronID int64) ([]models.Reservation, error) {
	if _, err := s.store.GetPatron(ctx, patronID); err != nil {
		return nil, notFound(err, "patron", patronID)
	}
	reservations, err := s.store.ListReservations(ctx, store.ReservationFilter{PatronID: &patronID})
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

func pendingQueue(ctx context.Context, q store.Querier, itemID int64) ([]models.Reservation, error) {
	pending := models.ReservationStatusPending
	queue, err := q.ListReservations(ctx, store.ReservationFilter{LibraryItemID: &itemID, Status: &pending})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue for item %d: %w", itemID, err)
	}
	return queue, nil
}

// renumberQueue rewrites Pending positions for an item as the dense ranks 1..N
// of (queue_position, created_at, id). The caller holds the item queue lock.
func renumberQueue(ctx context.Context, q store.Querier, itemID int64) error {
	queue, err := pendingQueue(ctx, q, itemID)
	if err != nil {
		return err
	}
	for i, r := range queue {
		if r.QueuePosition == i+1 {
			continue
		}
		r.QueuePosition = i + 1
		if err := q.UpdateReservation(ctx, r); err != nil {
			return fmt.Errorf("failed to renumber reservation %d: %w", r.ID, err)
		}
	}
	return nil
}

// markFulfilled closes a Pending reservation against the copy that satisfied it
func markFulfilled(ctx context.Context, q store.Querier, r *models.Reservation, copyID int64, now time.Time) error {
	if !models.IsValidReservationTransition(r.Status, models.ReservationStatusFulfilled) {
		return circerrors.QueueConflict(fmt.Sprintf("reservation %d is %s and cannot be fulfilled", r.ID, r.Status))
	}
	r.Status = models.ReservationStatusFulfilled
	r.CopyID = ptr(copyID)
	r.FulfilledAt = ptr(now)
	if err := q.UpdateReservation(ctx, *r); err != nil {
		return fmt.Errorf("failed to fulfill reservation %d: %w", r.ID, err)
	}
	return nil
}
