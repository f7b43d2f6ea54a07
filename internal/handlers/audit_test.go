package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ngenohkevin/circulation/internal/models"
)

func TestAuditHandler_RunAudit(t *testing.T) {
	tests := []struct {
		name       string
		report     *models.AuditReport
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "clean",
			report:     &models.AuditReport{Copies: 3, Patrons: 2, Items: 1},
			wantStatus: http.StatusOK,
			wantBody:   "No violations found",
		},
		{
			name: "violations",
			report: &models.AuditReport{Violations: []models.AuditViolation{
				{Rule: "patron_balance_matches_fines", EntityID: 4, Message: "balance 2.00, unpaid fines 1.50"},
			}},
			wantStatus: http.StatusConflict,
			wantBody:   "patron_balance_matches_fines",
		},
		{
			name:       "store failure",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := &MockAuditor{}
			handler := NewAuditHandler(auditor)
			router := newTestRouter(models.RoleAdmin)
			router.GET("/admin/audit", handler.RunAudit)

			auditor.On("Run", mock.Anything).Return(tt.report, tt.err)

			w := doJSON(t, router, http.MethodGet, "/admin/audit", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
