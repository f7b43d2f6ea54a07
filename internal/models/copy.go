package models

import "time"

// CopyStatus is the lifecycle state of a single physical copy.
// Stored values use this exact casing; nothing else is accepted.
type CopyStatus string

const (
	CopyStatusAvailable  CopyStatus = "Available"
	CopyStatusCheckedOut CopyStatus = "CheckedOut"
	CopyStatusReserved   CopyStatus = "Reserved"
	CopyStatusReturned   CopyStatus = "Returned"
	CopyStatusDamaged    CopyStatus = "Damaged"
	CopyStatusLost       CopyStatus = "Lost"
)

var validCopyStatuses = map[CopyStatus]bool{
	CopyStatusAvailable:  true,
	CopyStatusCheckedOut: true,
	CopyStatusReserved:   true,
	CopyStatusReturned:   true,
	CopyStatusDamaged:    true,
	CopyStatusLost:       true,
}

// IsValid reports whether s is a known copy status
func (s CopyStatus) IsValid() bool {
	return validCopyStatuses[s]
}

// CopyCondition describes the physical condition of a copy
type CopyCondition string

const (
	ConditionNew       CopyCondition = "New"
	ConditionExcellent CopyCondition = "Excellent"
	ConditionGood      CopyCondition = "Good"
	ConditionFair      CopyCondition = "Fair"
	ConditionPoor      CopyCondition = "Poor"
)

var validConditions = map[CopyCondition]bool{
	ConditionNew:       true,
	ConditionExcellent: true,
	ConditionGood:      true,
	ConditionFair:      true,
	ConditionPoor:      true,
}

// IsValid reports whether c is a known condition
func (c CopyCondition) IsValid() bool {
	return validConditions[c]
}

// ItemCopy is one holdable instance of a LibraryItem
type ItemCopy struct {
	ID              int64         `json:"id"`
	LibraryItemID   int64         `json:"library_item_id"`
	OwningBranchID  int64         `json:"owning_branch_id"`
	CurrentBranchID int64         `json:"current_branch_id"`
	Status          CopyStatus    `json:"status"`
	Condition       CopyCondition `json:"condition"`
	CheckedOutBy    *int64        `json:"checked_out_by,omitempty"`
	DueDate         *time.Time    `json:"due_date,omitempty"`
	// HeldForReservationID links a Reserved copy to the fulfilled reservation it is held for
	HeldForReservationID *int64    `json:"held_for_reservation_id,omitempty"`
	HeldForPatronID      *int64    `json:"held_for_patron_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ClearCheckout drops the checkout fields
func (c *ItemCopy) ClearCheckout() {
	c.CheckedOutBy = nil
	c.DueDate = nil
}

// ClearHold drops the pickup hold fields
func (c *ItemCopy) ClearHold() {
	c.HeldForReservationID = nil
	c.HeldForPatronID = nil
}

// CheckoutFieldsConsistent reports whether checked_out_by and due_date are
// both set exactly when the copy is CheckedOut
func (c ItemCopy) CheckoutFieldsConsistent() bool {
	set := c.CheckedOutBy != nil && c.DueDate != nil
	cleared := c.CheckedOutBy == nil && c.DueDate == nil
	if c.Status == CopyStatusCheckedOut {
		return set
	}
	return cleared
}

// NeedsTransfer reports whether the copy sits away from its owning branch
func (c ItemCopy) NeedsTransfer() bool {
	return c.CurrentBranchID != c.OwningBranchID
}

// CreateCopyRequest represents a request to add a copy of a catalog item
type CreateCopyRequest struct {
	LibraryItemID  int64         `json:"library_item_id" binding:"required,min=1" validate:"required,min=1"`
	OwningBranchID int64         `json:"owning_branch_id" binding:"required,min=1" validate:"required,min=1"`
	Condition      CopyCondition `json:"condition"`
}
