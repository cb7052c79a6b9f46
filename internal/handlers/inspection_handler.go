package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/services"
)

// InspectionHandler is a thin transport layer: it binds input, builds the
// request, and dispatches it through the pipeline.
type InspectionHandler struct {
	exec *pipeline.Executor
}

func NewInspectionHandler(exec *pipeline.Executor) *InspectionHandler {
	return &InspectionHandler{exec: exec}
}

type createInspectionBody struct {
	Title        string     `json:"title" binding:"required"`
	Location     string     `json:"location"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

func (h *InspectionHandler) Create(c *gin.Context) {
	var body createInspectionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	cmd := services.NewCreateInspectionCommand(body.Title, body.Location, body.ScheduledFor)

	result, err := h.exec.Dispatch(c.Request.Context(), principal, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type updateInspectionBody struct {
	Title        *string                  `json:"title"`
	Location     *string                  `json:"location"`
	Status       *models.InspectionStatus `json:"status"`
	ScheduledFor *time.Time               `json:"scheduled_for"`
}

func (h *InspectionHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inspection id"})
		return
	}

	var body updateInspectionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	cmd := services.UpdateInspectionCommand{
		InspectionID: id,
		Title:        body.Title,
		Location:     body.Location,
		Status:       body.Status,
		ScheduledFor: body.ScheduledFor,
	}

	result, err := h.exec.Dispatch(c.Request.Context(), principal, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *InspectionHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inspection id"})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	if _, err := h.exec.Dispatch(c.Request.Context(), principal, services.DeleteInspectionCommand{InspectionID: id}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InspectionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inspection id"})
		return
	}

	principal := auth.PrincipalFromContext(c.Request.Context())
	query := services.GetInspectionQuery{
		InspectionID:   id,
		IncludeDeleted: c.Query("include_deleted") == "true",
	}

	result, err := h.exec.Dispatch(c.Request.Context(), principal, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *InspectionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	principal := auth.PrincipalFromContext(c.Request.Context())
	query := services.ListInspectionsQuery{
		IncludeDeleted: c.Query("include_deleted") == "true",
		Limit:          limit,
		Offset:         offset,
	}

	result, err := h.exec.Dispatch(c.Request.Context(), principal, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
