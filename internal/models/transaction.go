package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a circulation transaction
type TransactionType string

const (
	TransactionTypeCheckout TransactionType = "Checkout"
	TransactionTypeCheckin  TransactionType = "Checkin"
	TransactionTypeRenewal  TransactionType = "Renewal"
)

// TransactionStatus is Active until the checkout is closed by a check-in
type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "Active"
	TransactionStatusCompleted TransactionStatus = "Completed"
)

// Transaction represents a transaction in the library system
type Transaction struct {
	ID           int64             `json:"id"`
	CopyID       int64             `json:"copy_id"`
	PatronID     int64             `json:"patron_id"`
	Type         TransactionType   `json:"type"`
	CheckoutDate time.Time         `json:"checkout_date"`
	DueDate      time.Time         `json:"due_date"`
	ReturnDate   *time.Time        `json:"return_date,omitempty"`
	FineAmount   decimal.Decimal   `json:"fine_amount"`
	Status       TransactionStatus `json:"status"`
	RenewalCount int               `json:"renewal_count"`
	// ParentID points a Renewal record at the checkout it extended
	ParentID  *int64    `json:"parent_id,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the transaction is an open checkout
func (t Transaction) IsActive() bool {
	return t.Status == TransactionStatusActive
}

// IsOverdue reports whether an open checkout is past due at now
func (t Transaction) IsOverdue(now time.Time) bool {
	return t.IsActive() && now.After(t.DueDate)
}

// CheckoutRequest represents a request to check out a copy
type CheckoutRequest struct {
	CopyID   int64      `json:"copy_id" binding:"required,min=1" validate:"required,min=1"`
	PatronID int64      `json:"patron_id" binding:"required,min=1" validate:"required,min=1"`
	DueDate  *time.Time `json:"due_date"`
	// OverrideCardExpiry lets staff lend to a patron whose card has expired
	OverrideCardExpiry bool   `json:"override_card_expiry"`
	Notes              string `json:"notes" validate:"max=1000"`
}

// CheckinRequest represents a request to check a copy back in
type CheckinRequest struct {
	CopyID    int64          `json:"copy_id" binding:"required,min=1" validate:"required,min=1"`
	Condition *CopyCondition `json:"condition"`
	Damaged   bool           `json:"damaged"`
	Notes     string         `json:"notes" validate:"max=1000"`
	// ReturnBranchID is the branch performing the return; defaults to the copy's current branch
	ReturnBranchID *int64 `json:"return_branch_id"`
	// NewLocationID overrides the routing target; defaults to the owning branch
	NewLocationID *int64 `json:"new_location_id"`
}

// ReshelveRequest represents a request to make a copy available again
type ReshelveRequest struct {
	BranchID  *int64         `json:"branch_id"`
	Repaired  bool           `json:"repaired"`
	Condition *CopyCondition `json:"condition"`
}
