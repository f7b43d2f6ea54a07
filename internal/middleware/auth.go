package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/models"
)

// Context keys set by RequireAuth
const (
	userIDKey   = "user_id"
	usernameKey = "username"
	userRoleKey = "user_role"
	claimsKey   = "claims"
)

// TokenValidator verifies a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// staff identity on the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortWithError(c, err)
			return
		}

		claims, verr := m.validator.ValidateToken(c.Request.Context(), token)
		if verr != nil {
			abortWithError(c, circerrors.Unauthorized("Invalid or expired token"))
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(usernameKey, claims.Username)
		c.Set(userRoleKey, claims.Role)
		c.Set(claimsKey, claims)

		c.Next()
	}
}

func bearerToken(header string) (string, *circerrors.Error) {
	if header == "" {
		return "", circerrors.Unauthorized("Authorization header is required")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" || strings.Contains(token, " ") {
		return "", circerrors.Unauthorized("Authorization header must be in format 'Bearer <token>'")
	}
	return token, nil
}

// RequireRole admits only the listed roles. It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(allowedRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(userRoleKey)
		if !exists {
			abortWithError(c, circerrors.Unauthorized("User role not found in context"))
			return
		}

		role, ok := value.(models.UserRole)
		if !ok {
			abortWithError(c, circerrors.Internal("Invalid role type in context", nil))
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}

		abortWithError(c, circerrors.Forbidden("Insufficient permissions to access this resource").
			WithDetails(map[string]any{"role": role}))
	}
}

// RequireStaff admits every staff role
func (m *AuthMiddleware) RequireStaff() gin.HandlerFunc {
	return m.RequireRole(models.RoleAdmin, models.RoleLibrarian, models.RoleStaff)
}

func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return m.RequireRole(models.RoleAdmin)
}

func (m *AuthMiddleware) RequireLibrarianOrAdmin() gin.HandlerFunc {
	return m.RequireRole(models.RoleAdmin, models.RoleLibrarian)
}

// abortWithError writes the standard error envelope and stops the chain
func abortWithError(c *gin.Context, err *circerrors.Error) {
	body := gin.H{"code": string(err.Code), "message": err.Message}
	if err.Details != nil {
		body["details"] = err.Details
	}
	c.AbortWithStatusJSON(err.HTTPStatus(), gin.H{"success": false, "error": body})
}

func contextValue[T any](c *gin.Context, key string) T {
	var zero T
	value, exists := c.Get(key)
	if !exists {
		return zero
	}
	if v, ok := value.(T); ok {
		return v
	}
	return zero
}

func GetUserID(c *gin.Context) int {
	return contextValue[int](c, userIDKey)
}

func GetUsername(c *gin.Context) string {
	return contextValue[string](c, usernameKey)
}

func GetUserRole(c *gin.Context) models.UserRole {
	return contextValue[models.UserRole](c, userRoleKey)
}
