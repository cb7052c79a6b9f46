package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/services"
)

type AuditHandler struct {
	exec *pipeline.Executor
}

func NewAuditHandler(exec *pipeline.Executor) *AuditHandler {
	return &AuditHandler{exec: exec}
}

func (h *AuditHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	principal := auth.PrincipalFromContext(c.Request.Context())
	result, err := h.exec.Dispatch(c.Request.Context(), principal, services.GetAuditTrailQuery{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
