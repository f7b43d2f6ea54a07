package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/circulation/internal/models"
)

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func newTestAuthService(t *testing.T, staff ...models.StaffUser) *AuthService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authService, err := NewAuthService(testPrivateKeyPEM(t), time.Hour, staff, logger, nil)
	require.NoError(t, err)
	return authService
}

func TestAuthService_HashPassword(t *testing.T) {
	authService := newTestAuthService(t)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid password", password: "password123"},
		{name: "minimum length password", password: "12345678"},
		{name: "too short password", password: "123", wantErr: true},
		{name: "empty password", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := authService.HashPassword(tt.password)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPassword)
				assert.Empty(t, hash)
			} else {
				assert.NoError(t, err)
				assert.Contains(t, hash, "$argon2id$")
			}
		})
	}
}

func TestAuthService_VerifyPassword(t *testing.T) {
	authService := newTestAuthService(t)

	hash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	valid, err := authService.VerifyPassword(hash, "password123")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = authService.VerifyPassword(hash, "wrongpassword")
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = authService.VerifyPassword("not-a-hash", "password123")
	assert.Error(t, err)
}

func TestAuthService_Login(t *testing.T) {
	hasher := newTestAuthService(t)
	hash, err := hasher.HashPassword("correct-horse")
	require.NoError(t, err)

	authService := newTestAuthService(t,
		models.StaffUser{ID: 1, Username: "Marian", PasswordHash: hash, Role: models.RoleLibrarian, IsActive: true},
		models.StaffUser{ID: 2, Username: "retired", PasswordHash: hash, Role: models.RoleStaff, IsActive: false},
	)
	ctx := context.Background()

	resp, err := authService.Login(ctx, models.LoginRequest{Username: "marian", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, models.RoleLibrarian, resp.User.Role)

	claims, err := authService.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	assert.Equal(t, "Marian", claims.Username)
	assert.True(t, claims.Role.CanOverride())

	_, err = authService.Login(ctx, models.LoginRequest{Username: "marian", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = authService.Login(ctx, models.LoginRequest{Username: "nobody", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = authService.Login(ctx, models.LoginRequest{Username: "retired", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestAuthService_ValidateToken(t *testing.T) {
	authService := newTestAuthService(t)
	other := newTestAuthService(t)
	ctx := context.Background()

	user := &models.StaffUser{ID: 7, Username: "desk", Role: models.RoleStaff, IsActive: true}
	token, err := other.GenerateToken(user)
	require.NoError(t, err)

	// Signed with a different key
	_, err = authService.ValidateToken(ctx, token)
	assert.Error(t, err)

	_, err = authService.ValidateToken(ctx, "garbage")
	assert.Error(t, err)

	assert.Error(t, authService.BlacklistToken(ctx, token))
}

func TestNewAuthService_BadKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewAuthService("-----BEGIN NOTHING-----", time.Hour, nil, logger, nil)
	assert.Error(t, err)
}
