package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/models"
)

func newCirculationRouter(role models.UserRole) (*MockCirculationService, *gin.Engine) {
	mockService := &MockCirculationService{}
	handler := NewCirculationHandler(mockService)

	router := newTestRouter(role)
	router.POST("/circulation/checkout", handler.Checkout)
	router.POST("/circulation/checkin", handler.Checkin)
	router.POST("/circulation/transactions/:id/renew", handler.Renew)
	router.GET("/circulation/transactions/:id", handler.GetTransaction)
	router.POST("/circulation/copies/:id/reshelve", handler.Reshelve)
	router.POST("/circulation/copies/:id/lost", handler.MarkLost)
	router.GET("/circulation/overdue", handler.ListOverdue)
	return mockService, router
}

func TestCirculationHandler_Checkout_Success(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)

	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	req := models.CheckoutRequest{CopyID: 5, PatronID: 9}
	receipt := &models.CheckoutReceipt{
		Transaction: models.Transaction{ID: 1, CopyID: 5, PatronID: 9, DueDate: due, Status: models.TransactionStatusActive},
		Copy:        models.ItemCopy{ID: 5, Status: models.CopyStatusCheckedOut},
		Patron:      models.PatronSummary{ID: 9, Name: "Ada Lovelace", ActiveCheckouts: 1},
	}
	mockService.On("Checkout", mock.Anything, req).Return(receipt, nil)

	w := doJSON(t, router, http.MethodPost, "/circulation/checkout", req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response struct {
		Success bool                   `json:"success"`
		Data    models.CheckoutReceipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, models.CopyStatusCheckedOut, response.Data.Copy.Status)
	assert.Equal(t, due, response.Data.Transaction.DueDate)
	mockService.AssertExpectations(t)
}

func TestCirculationHandler_Checkout_ValidationError(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)

	w := doJSON(t, router, http.MethodPost, "/circulation/checkout", map[string]interface{}{"copy_id": 0})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, w).Error.Code)
	mockService.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything)
}

func TestCirculationHandler_Checkout_OverrideRequiresRole(t *testing.T) {
	tests := []struct {
		name       string
		role       models.UserRole
		wantStatus int
	}{
		{"staff cannot override", models.RoleStaff, http.StatusForbidden},
		{"librarian may override", models.RoleLibrarian, http.StatusCreated},
		{"admin may override", models.RoleAdmin, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := newCirculationRouter(tt.role)
			req := models.CheckoutRequest{CopyID: 5, PatronID: 9, OverrideCardExpiry: true}
			mockService.On("Checkout", mock.Anything, req).
				Return(&models.CheckoutReceipt{CardExpiryOverridden: true}, nil).Maybe()

			w := doJSON(t, router, http.MethodPost, "/circulation/checkout", req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", decodeError(t, w).Error.Code)
				mockService.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestCirculationHandler_Checkout_DomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"eligibility", circerrors.EligibilityBlocked(string(models.ReasonOutstandingBalance), false), http.StatusForbidden, "ELIGIBILITY_BLOCKED"},
		{"held for another", circerrors.ReservedForAnotherPatron(5), http.StatusConflict, "RESERVED_FOR_ANOTHER_PATRON"},
		{"copy missing", circerrors.NotFound("copy", 5), http.StatusNotFound, "NOT_FOUND"},
		{"copy busy", circerrors.Busy("copy 5", errors.New("timeout")), http.StatusServiceUnavailable, "RESOURCE_BUSY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService, router := newCirculationRouter(models.RoleStaff)
			mockService.On("Checkout", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := doJSON(t, router, http.MethodPost, "/circulation/checkout", models.CheckoutRequest{CopyID: 5, PatronID: 9})

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Error.Code)
		})
	}
}

func TestCirculationHandler_Checkout_EligibilityDetails(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)
	mockService.On("Checkout", mock.Anything, mock.Anything).
		Return(nil, circerrors.EligibilityBlocked(string(models.ReasonCardExpired), true))

	w := doJSON(t, router, http.MethodPost, "/circulation/checkout", models.CheckoutRequest{CopyID: 5, PatronID: 9})

	details, ok := decodeError(t, w).Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "CardExpired", details["reason"])
	assert.Equal(t, true, details["overridable"])
}

func TestCirculationHandler_Checkin(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)

	req := models.CheckinRequest{CopyID: 5}
	fine := &models.Fine{ID: 1, Amount: decimal.RequireFromString("3.50")}
	mockService.On("Checkin", mock.Anything, req).Return(&models.CheckinResult{
		Copy:          models.ItemCopy{ID: 5, Status: models.CopyStatusReturned},
		Fine:          fine,
		NeedsTransfer: true,
	}, nil)

	w := doJSON(t, router, http.MethodPost, "/circulation/checkin", req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response.Message, "transfer")
	assert.Contains(t, w.Body.String(), `"amount":"3.5"`)
}

func TestCirculationHandler_Checkin_NoActiveTransaction(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)
	mockService.On("Checkin", mock.Anything, mock.Anything).Return(nil, circerrors.NoActiveTransaction(5))

	w := doJSON(t, router, http.MethodPost, "/circulation/checkin", models.CheckinRequest{CopyID: 5})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_ACTIVE_TRANSACTION", decodeError(t, w).Error.Code)
}

func TestCirculationHandler_Renew(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)
	mockService.On("Renew", mock.Anything, int64(12)).Return(&models.RenewalResult{}, nil)
	mockService.On("Renew", mock.Anything, int64(13)).Return(nil, circerrors.QueueConflict("item has pending reservations"))

	w := doJSON(t, router, http.MethodPost, "/circulation/transactions/12/renew", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/circulation/transactions/13/renew", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "QUEUE_CONFLICT", decodeError(t, w).Error.Code)

	w = doJSON(t, router, http.MethodPost, "/circulation/transactions/abc/renew", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNumberOfCalls(t, "Renew", 2)
}

func TestCirculationHandler_Reshelve(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)

	branchID := int64(2)
	mockService.On("Reshelve", mock.Anything, int64(5), models.ReshelveRequest{}).
		Return(&models.ReshelveResult{Copy: models.ItemCopy{ID: 5, Status: models.CopyStatusAvailable}}, nil)
	mockService.On("Reshelve", mock.Anything, int64(6), models.ReshelveRequest{BranchID: &branchID, Repaired: true}).
		Return(&models.ReshelveResult{Copy: models.ItemCopy{ID: 6, Status: models.CopyStatusAvailable}}, nil)

	// Body is optional
	w := doJSON(t, router, http.MethodPost, "/circulation/copies/5/reshelve", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/circulation/copies/6/reshelve", models.ReshelveRequest{BranchID: &branchID, Repaired: true})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/circulation/copies/6/reshelve", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

func TestCirculationHandler_MarkLostAndOverdue(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleLibrarian)
	mockService.On("MarkLost", mock.Anything, int64(5)).Return(nil, circerrors.InvalidState("copy 5 is Available"))
	mockService.On("ListOverdue", mock.Anything).Return([]models.OverdueEntry(nil), nil)

	w := doJSON(t, router, http.MethodPost, "/circulation/copies/5/lost", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decodeError(t, w).Error.Code)

	w = doJSON(t, router, http.MethodGet, "/circulation/overdue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[],"meta":{"count":0}}`, w.Body.String())
}

func TestCirculationHandler_UnexpectedErrorIsHidden(t *testing.T) {
	mockService, router := newCirculationRouter(models.RoleStaff)
	mockService.On("GetTransaction", mock.Anything, int64(1)).Return(nil, errors.New("pq: connection reset by peer"))

	w := doJSON(t, router, http.MethodGet, "/circulation/transactions/1", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	response := decodeError(t, w)
	assert.Equal(t, "INTERNAL", response.Error.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}
