package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/services"
)

type SubscriptionHandler struct {
	exec *pipeline.Executor
}

func NewSubscriptionHandler(exec *pipeline.Executor) *SubscriptionHandler {
	return &SubscriptionHandler{exec: exec}
}

func (h *SubscriptionHandler) dispatch(c *gin.Context, req pipeline.Request, status int) {
	principal := auth.PrincipalFromContext(c.Request.Context())
	result, err := h.exec.Dispatch(c.Request.Context(), principal, req)
	if err != nil {
		writeError(c, err)
		return
	}
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(status, result)
}

type subscribeBody struct {
	PlanID           uuid.UUID           `json:"plan_id" binding:"required"`
	BillingCycle     models.BillingCycle `json:"billing_cycle" binding:"required"`
	PaymentReference string              `json:"payment_reference"`
}

func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var body subscribeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, services.SubscribeTenantCommand{
		PlanID:           body.PlanID,
		BillingCycle:     body.BillingCycle,
		PaymentReference: body.PaymentReference,
	}, http.StatusCreated)
}

type paymentBody struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

func (h *SubscriptionHandler) Activate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, services.ActivateSubscriptionCommand{
		SubscriptionID:   id,
		PaymentReference: body.PaymentReference,
	}, http.StatusOK)
}

func (h *SubscriptionHandler) Renew(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, services.RenewSubscriptionCommand{
		SubscriptionID:   id,
		PaymentReference: body.PaymentReference,
	}, http.StatusOK)
}

type reasonBody struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *SubscriptionHandler) Suspend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, services.SuspendSubscriptionCommand{SubscriptionID: id, Reason: body.Reason}, http.StatusOK)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, services.CancelSubscriptionCommand{SubscriptionID: id, Reason: body.Reason}, http.StatusOK)
}

type changePlanBody struct {
	PlanID uuid.UUID `json:"plan_id" binding:"required"`
}

func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}
	var body changePlanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dispatch(c, services.ChangePlanCommand{SubscriptionID: id, PlanID: body.PlanID}, http.StatusOK)
}

func (h *SubscriptionHandler) Current(c *gin.Context) {
	h.dispatch(c, services.GetSubscriptionQuery{}, http.StatusOK)
}

func (h *SubscriptionHandler) Usage(c *gin.Context) {
	h.dispatch(c, services.GetUsageQuery{}, http.StatusOK)
}
