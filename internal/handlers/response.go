package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ListResponse represents a list response
type ListResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ListMeta carries the size of a list response
type ListMeta struct {
	Count int `json:"count"`
}

func respondSuccess(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

func respondList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, ListResponse{
		Success: true,
		Data:    items,
		Meta:    ListMeta{Count: len(items)},
	})
}

// respondError writes err using its domain code. Anything that is not a
// domain error is logged and reported as INTERNAL without its message.
func respondError(c *gin.Context, err error) {
	var domainErr *circerrors.Error
	if !circerrors.As(err, &domainErr) {
		slog.Error("Unhandled error",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Success: false,
			Error: ErrorDetail{
				Code:    string(circerrors.CodeInternal),
				Message: "Internal server error",
			},
		})
		return
	}

	if domainErr.Code == circerrors.CodeInternal {
		slog.Error("Internal error", slog.String("path", c.Request.URL.Path), slog.Any("error", err))
	}

	c.JSON(domainErr.HTTPStatus(), ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		},
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    string(circerrors.CodeValidation),
			Message: "Invalid request data",
			Details: err.Error(),
		},
	})
}

// parseID reads a positive int64 path parameter, writing a VALIDATION
// response when it is malformed
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error: ErrorDetail{
				Code:    string(circerrors.CodeValidation),
				Message: "Invalid " + name,
				Details: name + " must be a positive integer",
			},
		})
		return 0, false
	}
	return id, true
}
