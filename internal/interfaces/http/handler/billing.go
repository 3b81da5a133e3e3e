package handler

import (
	"github.com/cozmiclearning/backend/internal/application/billing"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/cozmiclearning/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BillingHandler receives events from the billing provider
type BillingHandler struct {
	BaseHandler
	service *billing.TierChangeService
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(service *billing.TierChangeService) *BillingHandler {
	return &BillingHandler{service: service}
}

// ApplyEvent handles POST /api/v1/billing/events. The endpoint is internal;
// the caller is trusted and authenticated at the network edge.
func (h *BillingHandler) ApplyEvent(c *gin.Context) {
	var cmd billing.TierChangeCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.Error(c, dto.ErrCodeInvalidJSON, "Request body must be a billing event")
		return
	}

	result, err := h.service.Apply(c.Request.Context(), middleware.GetSession(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
