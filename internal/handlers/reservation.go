package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/circulation/internal/models"
)

// ReservationServiceInterface defines the interface for reservation service operations
type ReservationServiceInterface interface {
	Reserve(ctx context.Context, req models.ReserveRequest) (*models.Reservation, error)
	Get(ctx context.Context, reservationID int64) (*models.Reservation, error)
	Fulfill(ctx context.Context, reservationID int64) (*models.FulfillResult, error)
	Cancel(ctx context.Context, reservationID int64) (*models.Reservation, error)
	ExpireOverdue(ctx context.Context) (*models.ExpireResult, error)
	Queue(ctx context.Context, itemID int64) ([]models.Reservation, error)
	ListByPatron(ctx context.Context, patronID int64) ([]models.Reservation, error)
}

// ReservationHandler handles reservation-related HTTP requests
type ReservationHandler struct {
	reservationService ReservationServiceInterface
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservationService ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{
		reservationService: reservationService,
	}
}

// Reserve handles reservation requests
// @Summary Reserve a catalog item
// @Description Queue a patron for an item that has no available copy
// @Tags reservations
// @Accept json
// @Produce json
// @Param request body models.ReserveRequest true "Reserve request"
// @Success 201 {object} SuccessResponse{data=models.Reservation}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/reservations [post]
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	reservation, err := h.reservationService.Reserve(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, reservation, "Item reserved successfully")
}

// GetReservation handles getting a specific reservation
// @Summary Get a reservation
// @Tags reservations
// @Produce json
// @Param id path int true "Reservation ID"
// @Success 200 {object} SuccessResponse{data=models.Reservation}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/reservations/{id} [get]
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	reservationID, ok := parseID(c, "id")
	if !ok {
		return
	}

	reservation, err := h.reservationService.Get(c.Request.Context(), reservationID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, reservation, "Reservation retrieved successfully")
}

// FulfillReservation holds an available copy for the reservation
// @Router /api/v1/reservations/{id}/fulfill [post]
func (h *ReservationHandler) FulfillReservation(c *gin.Context) {
	reservationID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.reservationService.Fulfill(c.Request.Context(), reservationID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Reservation fulfilled successfully")
}

// CancelReservation handles reservation cancellation
// @Router /api/v1/reservations/{id}/cancel [post]
func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	reservationID, ok := parseID(c, "id")
	if !ok {
		return
	}

	reservation, err := h.reservationService.Cancel(c.Request.Context(), reservationID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, reservation, "Reservation cancelled successfully")
}

// ExpireReservations expires pending reservations past their expiry date
// @Router /api/v1/reservations/expire [post]
func (h *ReservationHandler) ExpireReservations(c *gin.Context) {
	result, err := h.reservationService.ExpireOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, result, "Expired reservations processed")
}

func (h *ReservationHandler) GetItemQueue(c *gin.Context) {
	itemID, ok := parseID(c, "id")
	if !ok {
		return
	}

	queue, err := h.reservationService.Queue(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, queue)
}

func (h *ReservationHandler) GetPatronReservations(c *gin.Context) {
	patronID, ok := parseID(c, "id")
	if !ok {
		return
	}

	reservations, err := h.reservationService.ListByPatron(c.Request.Context(), patronID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondList(c, reservations)
}
