package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/middleware"
	"github.com/ngenohkevin/circulation/internal/models"
)

// CirculationServiceInterface defines the circulation operations exposed over HTTP
type CirculationServiceInterface interface {
	Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutReceipt, error)
	Checkin(ctx context.Context, req models.CheckinRequest) (*models.CheckinResult, error)
	Renew(ctx context.Context, transactionID int64) (*models.RenewalResult, error)
	Reshelve(ctx context.Context, copyID int64, req models.ReshelveRequest) (*models.ReshelveResult, error)
	MarkLost(ctx context.Context, copyID int64) (*models.LostResult, error)
	ListOverdue(ctx context.Context) ([]models.OverdueEntry, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
}

// CirculationHandler handles checkout, check-in and copy lifecycle requests
type CirculationHandler struct {
	circulationService CirculationServiceInterface
}

// NewCirculationHandler creates a new circulation handler
func NewCirculationHandler(circulationService CirculationServiceInterface) *CirculationHandler {
	return &CirculationHandler{
		circulationService: circulationService,
	}
}

// Checkout handles checkout requests
// @Summary Check out a copy
// @Description Lend a copy to a patron. override_card_expiry requires the admin or librarian role.
// @Tags circulation
// @Accept json
// @Produce json
// @Param request body models.CheckoutRequest true "Checkout request"
// @Success 201 {object} SuccessResponse{data=models.CheckoutReceipt}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/circulation/checkout [post]
func (h *CirculationHandler) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.OverrideCardExpiry && !middleware.GetUserRole(c).CanOverride() {
		respondError(c, circerrors.Forbidden("card expiry override requires the admin or librarian role"))
		return
	}

	receipt, err := h.circulationService.Checkout(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, receipt, "Copy checked out successfully")
}

// Checkin handles check-in requests
// @Summary Check in a copy
// @Tags circulation
// @Accept json
// @Produce json
// @Param request body models.CheckinRequest true "Checkin request"
// @Success 200 {object} SuccessResponse{data=models.CheckinResult}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/circulation/checkin [post]
func (h *CirculationHandler) Checkin(c *gin.Context) {
	var req models.CheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.circulationService.Checkin(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Copy checked in successfully"
	if result.NeedsTransfer {
		message = "Copy checked in, transfer to its target branch required"
	}
	respondSuccess(c, http.StatusOK, result, message)
}

// Renew handles renewal of an active checkout
// @Router /api/v1/circulation/transactions/{id}/renew [post]
func (h *CirculationHandler) Renew(c *gin.Context) {
	transactionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.circulationService.Renew(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Checkout renewed successfully")
}

// GetTransaction returns one transaction record
func (h *CirculationHandler) GetTransaction(c *gin.Context) {
	transactionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	transaction, err := h.circulationService.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, transaction, "")
}

// Reshelve handles returning a copy to the shelf
// @Router /api/v1/circulation/copies/{id}/reshelve [post]
func (h *CirculationHandler) Reshelve(c *gin.Context) {
	copyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	// The body is optional
	var req models.ReshelveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	result, err := h.circulationService.Reshelve(c.Request.Context(), copyID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Copy reshelved successfully")
}

func (h *CirculationHandler) MarkLost(c *gin.Context) {
	copyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.circulationService.MarkLost(c.Request.Context(), copyID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Copy marked as lost")
}

// ListOverdue lists active checkouts past their due date
// @Router /api/v1/circulation/overdue [get]
func (h *CirculationHandler) ListOverdue(c *gin.Context) {
	entries, err := h.circulationService.ListOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, entries)
}
