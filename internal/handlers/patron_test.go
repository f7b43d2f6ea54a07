package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/services"
)

func newPatronRouter() (*MockPatronService, *MockFineService, *PatronHandler) {
	patrons := &MockPatronService{}
	fines := &MockFineService{}
	return patrons, fines, NewPatronHandler(patrons, fines)
}

func TestPatronHandler_CreatePatron(t *testing.T) {
	patrons, _, handler := newPatronRouter()
	router := newTestRouter(models.RoleStaff)
	router.POST("/patrons", handler.CreatePatron)

	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	req := models.CreatePatronRequest{FirstName: "Ada", LastName: "Lovelace", CardExpirationDate: expiry}
	patrons.On("Register", mock.Anything, mock.MatchedBy(func(r models.CreatePatronRequest) bool {
		return r.FirstName == "Ada" && r.CardExpirationDate.Equal(expiry)
	})).Return(&models.Patron{ID: 1, FirstName: "Ada", LastName: "Lovelace", IsActive: true}, nil)

	w := doJSON(t, router, http.MethodPost, "/patrons", req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/patrons", map[string]interface{}{"first_name": "Ada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	patrons.AssertNumberOfCalls(t, "Register", 1)
}

func TestPatronHandler_Accounts(t *testing.T) {
	patrons, _, handler := newPatronRouter()
	router := newTestRouter(models.RoleLibrarian)
	router.GET("/patrons", handler.ListPatrons)
	router.GET("/patrons/:id", handler.GetPatron)
	router.PUT("/patrons/:id", handler.UpdatePatron)
	router.POST("/patrons/:id/deactivate", handler.DeactivatePatron)
	router.GET("/patrons/:id/transactions", handler.GetTransactions)

	name := "Augusta"
	patrons.On("List", mock.Anything).Return([]models.Patron{{ID: 1}}, nil)
	patrons.On("Get", mock.Anything, int64(99)).Return(nil, circerrors.NotFound("patron", 99))
	patrons.On("Update", mock.Anything, int64(1), models.UpdatePatronRequest{FirstName: &name}).Return(&models.Patron{ID: 1, FirstName: name}, nil)
	patrons.On("Deactivate", mock.Anything, int64(1)).Return(&models.Patron{ID: 1, IsActive: false}, nil)
	patrons.On("Transactions", mock.Anything, int64(1), true).Return([]models.Transaction{{ID: 3}}, nil)
	patrons.On("Transactions", mock.Anything, int64(1), false).Return([]models.Transaction{{ID: 3}, {ID: 4}}, nil)

	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodGet, "/patrons", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/patrons/99", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPut, "/patrons/1", models.UpdatePatronRequest{FirstName: &name}).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/patrons/1/deactivate", nil).Code)

	w := doJSON(t, router, http.MethodGet, "/patrons/1/transactions?active=true", nil)
	assert.Contains(t, w.Body.String(), `"count":1`)
	w = doJSON(t, router, http.MethodGet, "/patrons/1/transactions", nil)
	assert.Contains(t, w.Body.String(), `"count":2`)

	patrons.AssertExpectations(t)
}

func TestPatronHandler_GetEligibility(t *testing.T) {
	patrons, _, handler := newPatronRouter()
	router := newTestRouter(models.RoleStaff)
	router.GET("/patrons/:id/eligibility", handler.GetEligibility)

	patrons.On("Eligibility", mock.Anything, int64(1)).Return(&models.EligibilityResult{
		PatronID:        1,
		Eligible:        false,
		Reason:          models.ReasonOutstandingBalance,
		ActiveCheckouts: 2,
		Balance:         decimal.RequireFromString("1.50"),
	}, nil)

	w := doJSON(t, router, http.MethodGet, "/patrons/1/eligibility", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"eligible":false`)
	assert.Contains(t, w.Body.String(), `"reason":"OutstandingBalance"`)
}

func TestPatronHandler_Fines(t *testing.T) {
	_, fines, handler := newPatronRouter()
	router := newTestRouter(models.RoleLibrarian)
	router.GET("/patrons/:id/fines", handler.GetFines)
	router.POST("/patrons/:id/fines/settle", handler.SettleBalance)
	router.POST("/fines/:id/pay", handler.PayFine)
	router.POST("/fines/:id/waive", handler.WaiveFine)

	settled := &services.SettlementResult{Settled: decimal.RequireFromString("4.00"), Balance: decimal.Zero}
	fines.On("List", mock.Anything, int64(1), true).Return([]models.Fine{{ID: 1}}, nil)
	fines.On("SettleBalance", mock.Anything, int64(1)).Return(settled, nil)
	fines.On("Pay", mock.Anything, int64(5)).Return(nil, circerrors.InvalidState("fine 5 is already settled"))
	fines.On("Waive", mock.Anything, int64(6), "lost in the mail").Return(settled, nil)

	w := doJSON(t, router, http.MethodGet, "/patrons/1/fines?unpaid=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/patrons/1/fines/settle", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"settled":"4"`)

	w = doJSON(t, router, http.MethodPost, "/fines/5/pay", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/fines/6/waive", models.WaiveFineRequest{Reason: "lost in the mail"})
	assert.Equal(t, http.StatusOK, w.Code)

	// A waiver needs a reason
	w = doJSON(t, router, http.MethodPost, "/fines/6/waive", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fines.AssertExpectations(t)
	fines.AssertNumberOfCalls(t, "Waive", 1)
}
