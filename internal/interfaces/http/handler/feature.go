package handler

import (
	"errors"
	"io"
	"time"

	"github.com/cozmiclearning/backend/internal/application/activity"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/cozmiclearning/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FeatureHandler runs gated feature invocations
type FeatureHandler struct {
	BaseHandler
	service *activity.Service
}

// NewFeatureHandler creates a new feature handler
func NewFeatureHandler(service *activity.Service) *FeatureHandler {
	return &FeatureHandler{service: service}
}

// Invoke handles POST /api/v1/features/:feature/invocations. The admission
// middleware has already consumed a slot for the principal.
func (h *FeatureHandler) Invoke(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		h.Unauthorized(c)
		return
	}

	var req dto.InvokeFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Error(c, dto.ErrCodeInvalidJSON, "Request body must be a JSON object")
		return
	}

	a, err := h.service.Invoke(c.Request.Context(), middleware.GetSession(c), activity.Invocation{
		Principal: p,
		Feature:   admission.Feature(c.Param("feature")),
		RequestID: middleware.GetRequestID(c),
		Input:     req.Input,
	})
	if err != nil {
		var execErr *activity.ExecutionError
		if errors.As(err, &execErr) {
			logger.GetGinLogger(c).Warn("Feature executor failed",
				zap.String("feature", execErr.Feature.String()),
				zap.Error(execErr.Err),
			)
			h.Error(c, dto.ErrCodeUpstream, dto.MessageUpstream)
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.ActivityResponse{
		ID:        a.ID.String(),
		Feature:   a.Feature.String(),
		Result:    a.Result,
		RequestID: a.RequestID,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	})
}
