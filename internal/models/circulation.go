package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EligibilityReason explains why a patron may not check out
type EligibilityReason string

const (
	ReasonTooManyCheckouts   EligibilityReason = "TooManyCheckouts"
	ReasonOutstandingBalance EligibilityReason = "OutstandingBalance"
	ReasonCardExpired        EligibilityReason = "CardExpired"
	ReasonAccountInactive    EligibilityReason = "AccountInactive"
)

// Overridable reports whether staff may bypass this reason at checkout
func (r EligibilityReason) Overridable() bool {
	return r == ReasonCardExpired
}

// Resolvable reports whether the patron can clear this reason and retry
func (r EligibilityReason) Resolvable() bool {
	return r == ReasonOutstandingBalance || r == ReasonCardExpired
}

// EligibilityResult is the outcome of an eligibility check
type EligibilityResult struct {
	PatronID        int64             `json:"patron_id"`
	Eligible        bool              `json:"eligible"`
	Reason          EligibilityReason `json:"reason,omitempty"`
	ActiveCheckouts int               `json:"active_checkouts"`
	Balance         decimal.Decimal   `json:"balance"`
}

// PatronSummary is the patron portion of a receipt
type PatronSummary struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	ActiveCheckouts int    `json:"active_checkouts"`
}

// CheckoutReceipt is a read-only projection shown after a checkout
type CheckoutReceipt struct {
	Transaction          Transaction   `json:"transaction"`
	Copy                 ItemCopy      `json:"copy"`
	Item                 LibraryItem   `json:"item"`
	Patron               PatronSummary `json:"patron"`
	Branch               Branch        `json:"branch"`
	FulfilledReservation *int64        `json:"fulfilled_reservation_id,omitempty"`
	CardExpiryOverridden bool          `json:"card_expiry_overridden"`
}

// CheckinResult describes what happened at check-in and where the copy should go
type CheckinResult struct {
	Transaction    Transaction `json:"transaction"`
	Copy           ItemCopy    `json:"copy"`
	Fine           *Fine       `json:"fine,omitempty"`
	Damaged        bool        `json:"damaged"`
	ReturnBranchID int64       `json:"return_branch_id"`
	TargetBranchID int64       `json:"target_branch_id"`
	NeedsTransfer  bool        `json:"needs_transfer"`
}

// ReshelveResult describes a copy returned to the shelf
type ReshelveResult struct {
	Copy          ItemCopy `json:"copy"`
	NeedsTransfer bool     `json:"needs_transfer"`
	// PendingReservations hints that the operator should fulfill the queue head
	PendingReservations int    `json:"pending_reservations"`
	NextReservationID   *int64 `json:"next_reservation_id,omitempty"`
}

// RenewalResult describes an extended checkout
type RenewalResult struct {
	Transaction Transaction `json:"transaction"`
	Renewal     Transaction `json:"renewal"`
	Copy        ItemCopy    `json:"copy"`
}

// FulfillResult is a reservation moved to Fulfilled and the copy held for it
type FulfillResult struct {
	Reservation Reservation `json:"reservation"`
	Copy        ItemCopy    `json:"copy"`
}

// ExpireResult lists reservations expired by a sweep and held copies put back on the shelf
type ExpireResult struct {
	Expired       []Reservation `json:"expired"`
	ItemsTouched  int           `json:"items_touched"`
	ReleasedHolds []ItemCopy    `json:"released_holds"`
}

// LostResult describes a copy written off as lost
type LostResult struct {
	Copy              ItemCopy     `json:"copy"`
	PreviousStatus    CopyStatus   `json:"previous_status"`
	ClosedTransaction *Transaction `json:"closed_transaction,omitempty"`
}

// OverdueEntry is an active checkout past its due date
type OverdueEntry struct {
	Transaction Transaction     `json:"transaction"`
	DaysOverdue int             `json:"days_overdue"`
	AccruedFine decimal.Decimal `json:"accrued_fine"`
}

// AuditViolation is one broken cross-record invariant
type AuditViolation struct {
	Rule     string `json:"rule"`
	EntityID int64  `json:"entity_id"`
	Message  string `json:"message"`
}

// AuditReport is the outcome of an invariant audit
type AuditReport struct {
	CheckedAt  time.Time        `json:"checked_at"`
	Copies     int              `json:"copies"`
	Patrons    int              `json:"patrons"`
	Items      int              `json:"items"`
	Violations []AuditViolation `json:"violations"`
}

// OK reports whether the audit found no violations
func (r AuditReport) OK() bool {
	return len(r.Violations) == 0
}
