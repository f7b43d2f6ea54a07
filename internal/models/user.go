package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleLibrarian UserRole = "librarian"
	RoleStaff     UserRole = "staff"
)

// CanOverride reports whether the role may bypass overridable eligibility blocks
func (r UserRole) CanOverride() bool {
	return r == RoleAdmin || r == RoleLibrarian
}

// StaffUser is a configured staff account
type StaffUser struct {
	ID           int      `json:"id" mapstructure:"id"`
	Username     string   `json:"username" mapstructure:"username"`
	PasswordHash string   `json:"-" mapstructure:"password_hash"`
	Role         UserRole `json:"role" mapstructure:"role"`
	IsActive     bool     `json:"is_active" mapstructure:"is_active"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User        *StaffUser `json:"user,omitempty"`
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
}

type JWTClaims struct {
	UserID   int      `json:"user_id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}
