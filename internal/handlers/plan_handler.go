package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/services"
)

type PlanHandler struct {
	exec *pipeline.Executor
}

func NewPlanHandler(exec *pipeline.Executor) *PlanHandler {
	return &PlanHandler{exec: exec}
}

func (h *PlanHandler) List(c *gin.Context) {
	principal := auth.PrincipalFromContext(c.Request.Context())
	result, err := h.exec.Dispatch(c.Request.Context(), principal, services.GetPlansQuery{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PlanHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	result, err := h.exec.Dispatch(c.Request.Context(), principal, services.GetPlanQuery{PlanID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PlanHandler) Create(c *gin.Context) {
	var cmd services.CreatePlanCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	result, err := h.exec.Dispatch(c.Request.Context(), principal, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
