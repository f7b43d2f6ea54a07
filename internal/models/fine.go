package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fine is an overdue charge raised at check-in. Unpaid fines sum to the patron balance.
type Fine struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	PatronID      int64           `json:"patron_id"`
	Amount        decimal.Decimal `json:"amount"`
	IsPaid        bool            `json:"is_paid"`
	PaidDate      *time.Time      `json:"paid_date,omitempty"`
	Waived        bool            `json:"waived"`
	WaiveReason   string          `json:"waive_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Outstanding reports whether the fine still counts toward the patron balance
func (f Fine) Outstanding() bool {
	return !f.IsPaid && !f.Waived
}

// WaiveFineRequest represents a staff waiver of a fine
type WaiveFineRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" validate:"required,min=1,max=500"`
}
