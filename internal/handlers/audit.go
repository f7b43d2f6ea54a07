package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/circulation/internal/models"
)

// AuditorInterface runs the cross-record invariant audit
type AuditorInterface interface {
	Run(ctx context.Context) (*models.AuditReport, error)
}

type AuditHandler struct {
	auditor AuditorInterface
}

func NewAuditHandler(auditor AuditorInterface) *AuditHandler {
	return &AuditHandler{auditor: auditor}
}

// RunAudit returns 200 when the store is consistent and 409 with the violations otherwise
// @Router /api/v1/admin/audit [get]
func (h *AuditHandler) RunAudit(c *gin.Context) {
	report, err := h.auditor.Run(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if !report.OK() {
		c.JSON(http.StatusConflict, SuccessResponse{
			Success: false,
			Data:    report,
			Message: "Invariant violations found",
		})
		return
	}

	respondSuccess(c, http.StatusOK, report, "No violations found")
}
