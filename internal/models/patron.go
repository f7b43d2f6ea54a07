package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Patron is a registered library card holder
type Patron struct {
	ID                 int64           `json:"id"`
	FirstName          string          `json:"first_name"`
	LastName           string          `json:"last_name"`
	Email              string          `json:"email,omitempty"`
	Balance            decimal.Decimal `json:"balance"`
	CardExpirationDate time.Time       `json:"card_expiration_date"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// FullName returns the patron's display name
func (p Patron) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// CreatePatronRequest represents a patron registration
type CreatePatronRequest struct {
	FirstName          string    `json:"first_name" binding:"required,min=1,max=100" validate:"required,min=1,max=100"`
	LastName           string    `json:"last_name" binding:"required,min=1,max=100" validate:"required,min=1,max=100"`
	Email              string    `json:"email" validate:"omitempty,email"`
	CardExpirationDate time.Time `json:"card_expiration_date" binding:"required" validate:"required"`
}

// UpdatePatronRequest represents a partial patron update
type UpdatePatronRequest struct {
	FirstName          *string    `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName           *string    `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email              *string    `json:"email" validate:"omitempty,email"`
	CardExpirationDate *time.Time `json:"card_expiration_date"`
	IsActive           *bool      `json:"is_active"`
}
