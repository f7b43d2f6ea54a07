package models

import (
	"time"
)

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "Pending"
	ReservationStatusFulfilled ReservationStatus = "Fulfilled"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
	ReservationStatusExpired   ReservationStatus = "Expired"
)

// Reservation represents a reservation in the library system
type Reservation struct {
	ID            int64             `json:"id"`
	LibraryItemID int64             `json:"library_item_id"`
	PatronID      int64             `json:"patron_id"`
	Status        ReservationStatus `json:"status"`
	QueuePosition int               `json:"queue_position"`
	ExpiryDate    time.Time         `json:"expiry_date"`
	// CopyID is the copy held for pickup once fulfilled
	CopyID      *int64     `json:"copy_id,omitempty"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsPending reports whether the reservation is still queued
func (r Reservation) IsPending() bool {
	return r.Status == ReservationStatusPending
}

// ReserveRequest represents a request to reserve a catalog item
type ReserveRequest struct {
	LibraryItemID int64 `json:"library_item_id" binding:"required,min=1" validate:"required,min=1"`
	PatronID      int64 `json:"patron_id" binding:"required,min=1" validate:"required,min=1"`
}

// IsValidReservationTransition checks if a status transition is valid
func IsValidReservationTransition(from, to ReservationStatus) bool {
	validTransitions := map[ReservationStatus][]ReservationStatus{
		ReservationStatusPending:   {ReservationStatusFulfilled, ReservationStatusCancelled, ReservationStatusExpired},
		ReservationStatusFulfilled: {},
		ReservationStatusCancelled: {},
		ReservationStatusExpired:   {},
	}

	for _, allowedTo := range validTransitions[from] {
		if allowedTo == to {
			return true
		}
	}
	return false
}
