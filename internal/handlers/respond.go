package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ops-management-api/internal/apperr"
)

// writeError maps a pipeline error onto the HTTP response. Typed errors
// carry their own status and safe message; anything else is a plain 500.
func writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body := gin.H{"error": appErr.Message, "code": appErr.Code}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		c.JSON(apperr.HTTPStatus(appErr), body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
