package handler

import (
	"math"
	"time"

	appadmission "github.com/cozmiclearning/backend/internal/application/admission"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/cozmiclearning/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// UsageHandler reports quota usage
type UsageHandler struct {
	BaseHandler
	controller *appadmission.Controller
	now        func() time.Time
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(controller *appadmission.Controller) *UsageHandler {
	return &UsageHandler{controller: controller, now: time.Now}
}

// GetUsage handles GET /api/v1/usage
func (h *UsageHandler) GetUsage(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		h.Unauthorized(c)
		return
	}

	now := h.now()
	usage, err := h.controller.Usage(c.Request.Context(), p, now)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := dto.UsageResponse{
		Tier:          p.EffectiveTier(now).String(),
		WindowSeconds: int(h.controller.Policy().Window().Seconds()),
		Features:      make([]dto.FeatureUsageResponse, 0, len(usage)),
	}
	for _, u := range usage {
		resp.Features = append(resp.Features, dto.FeatureUsageResponse{
			Feature:        u.Feature.String(),
			Limit:          u.Limit,
			Used:           u.Used,
			Remaining:      u.Remaining,
			ResetInSeconds: int(math.Ceil(u.ResetIn.Seconds())),
		})
	}
	h.Success(c, resp)
}
