package models

import "time"

// Branch is a physical library location that owns and holds copies
type Branch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsMain    bool      `json:"is_main"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateBranchRequest represents a request to create a branch
type CreateBranchRequest struct {
	Name   string `json:"name" binding:"required,min=1,max=255" validate:"required,min=1,max=255"`
	IsMain bool   `json:"is_main"`
}
