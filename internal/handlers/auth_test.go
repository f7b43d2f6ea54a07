package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/services"
)

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		result     *models.LoginResponse
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			body:       models.LoginRequest{Username: "marian", Password: "correct horse"},
			result:     &models.LoginResponse{AccessToken: "token", TokenType: "Bearer", ExpiresIn: 3600},
			wantStatus: http.StatusOK,
			wantBody:   `"access_token":"token"`,
		},
		{
			name:       "bad credentials",
			body:       models.LoginRequest{Username: "marian", Password: "wrong"},
			err:        services.ErrInvalidCredentials,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "INVALID_CREDENTIALS",
		},
		{
			name:       "inactive account",
			body:       models.LoginRequest{Username: "marian", Password: "correct horse"},
			err:        services.ErrUserInactive,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "ACCOUNT_INACTIVE",
		},
		{
			name:       "signing failure",
			body:       models.LoginRequest{Username: "marian", Password: "correct horse"},
			err:        errors.New("failed to sign token"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "INTERNAL",
		},
		{
			name:       "missing password",
			body:       map[string]string{"username": "marian"},
			wantStatus: http.StatusBadRequest,
			wantBody:   "VALIDATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockAuthService{}
			handler := NewAuthHandler(mockService)
			router := newTestRouter("")
			router.POST("/auth/login", handler.Login)

			if tt.result != nil || tt.err != nil {
				mockService.On("Login", mock.Anything, tt.body).Return(tt.result, tt.err)
			}

			w := doJSON(t, router, http.MethodPost, "/auth/login", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAuthHandler_LogoutAndProfile(t *testing.T) {
	mockService := &MockAuthService{}
	handler := NewAuthHandler(mockService)
	router := newTestRouter(models.RoleLibrarian)
	router.POST("/auth/logout", handler.Logout)
	router.GET("/profile", handler.GetProfile)

	mockService.On("BlacklistToken", mock.Anything, "good").Return(nil)
	mockService.On("BlacklistToken", mock.Anything, "nocache").Return(errors.New("redis client not configured"))

	logout := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, logout("good"))
	assert.Equal(t, http.StatusServiceUnavailable, logout("nocache"))

	w := doJSON(t, router, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"librarian"`)
	assert.Contains(t, w.Body.String(), `"username":"tester"`)

	mockService.AssertExpectations(t)
}
