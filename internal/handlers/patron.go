package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/services"
)

// PatronServiceInterface defines the patron account operations
type PatronServiceInterface interface {
	Register(ctx context.Context, req models.CreatePatronRequest) (*models.Patron, error)
	Get(ctx context.Context, id int64) (*models.Patron, error)
	List(ctx context.Context) ([]models.Patron, error)
	Update(ctx context.Context, id int64, req models.UpdatePatronRequest) (*models.Patron, error)
	Deactivate(ctx context.Context, id int64) (*models.Patron, error)
	Eligibility(ctx context.Context, id int64) (*models.EligibilityResult, error)
	Transactions(ctx context.Context, id int64, activeOnly bool) ([]models.Transaction, error)
}

// FineServiceInterface defines fine settlement operations
type FineServiceInterface interface {
	Pay(ctx context.Context, fineID int64) (*services.SettlementResult, error)
	Waive(ctx context.Context, fineID int64, reason string) (*services.SettlementResult, error)
	SettleBalance(ctx context.Context, patronID int64) (*services.SettlementResult, error)
	List(ctx context.Context, patronID int64, unpaidOnly bool) ([]models.Fine, error)
}

// PatronHandler handles patron accounts and their fines
type PatronHandler struct {
	patronService PatronServiceInterface
	fineService   FineServiceInterface
}

func NewPatronHandler(patronService PatronServiceInterface, fineService FineServiceInterface) *PatronHandler {
	return &PatronHandler{
		patronService: patronService,
		fineService:   fineService,
	}
}

// CreatePatron registers a patron
// @Summary Register a patron
// @Tags patrons
// @Accept json
// @Produce json
// @Param request body models.CreatePatronRequest true "Patron"
// @Success 201 {object} SuccessResponse{data=models.Patron}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/patrons [post]
func (h *PatronHandler) CreatePatron(c *gin.Context) {
	var req models.CreatePatronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	patron, err := h.patronService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, patron, "Patron registered successfully")
}

func (h *PatronHandler) GetPatron(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	patron, err := h.patronService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, patron, "")
}

func (h *PatronHandler) ListPatrons(c *gin.Context) {
	patrons, err := h.patronService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, patrons)
}

// UpdatePatron applies a partial update. The balance is never updatable here.
// @Router /api/v1/patrons/{id} [put]
func (h *PatronHandler) UpdatePatron(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.UpdatePatronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	patron, err := h.patronService.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, patron, "Patron updated successfully")
}

func (h *PatronHandler) DeactivatePatron(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	patron, err := h.patronService.Deactivate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, patron, "Patron deactivated")
}

// GetEligibility reports whether the patron may check out right now
// @Router /api/v1/patrons/{id}/eligibility [get]
func (h *PatronHandler) GetEligibility(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.patronService.Eligibility(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "")
}

// GetTransactions lists the patron's transactions; ?active=true keeps open checkouts only
func (h *PatronHandler) GetTransactions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	transactions, err := h.patronService.Transactions(c.Request.Context(), id, c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, transactions)
}

// GetFines lists the patron's fines; ?unpaid=true keeps outstanding ones only
func (h *PatronHandler) GetFines(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	fines, err := h.fineService.List(c.Request.Context(), id, c.Query("unpaid") == "true")
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, fines)
}

// SettleBalance pays every outstanding fine of the patron
// @Router /api/v1/patrons/{id}/fines/settle [post]
func (h *PatronHandler) SettleBalance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.fineService.SettleBalance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Balance settled")
}

// PayFine marks one fine paid
// @Router /api/v1/fines/{id}/pay [post]
func (h *PatronHandler) PayFine(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.fineService.Pay(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Fine paid")
}

// WaiveFine forgives one fine with a recorded reason
// @Router /api/v1/fines/{id}/waive [post]
func (h *PatronHandler) WaiveFine(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.WaiveFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.fineService.Waive(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Fine waived")
}
