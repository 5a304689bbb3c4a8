package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostwall/collabd/pkg/store"
)

// Error codes visible at the boundary.
const (
	CodeInvalid  = "Invalid"
	CodeNotFound = "NotFound"
	CodeInternal = "Internal"
)

// ErrorResponse is the JSON shape of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeStoreError maps store-layer errors to HTTP error responses.
func writeStoreError(c *gin.Context, err error) {
	var validErr *store.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   CodeInvalid,
			Message: validErr.Error(),
		})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   CodeNotFound,
			Message: "resource not found",
		})
		return
	}

	slog.Error("unexpected store error", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   CodeInternal,
		Message: "internal server error",
	})
}

// writeInvalid responds 400 for malformed input that never reached the
// store (bad JSON, non-integer id).
func writeInvalid(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeInvalid,
		Message: message,
	})
}
