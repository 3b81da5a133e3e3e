package middleware

import (
	"errors"
	"strconv"
	"time"

	appadmission "github.com/cozmiclearning/backend/internal/application/admission"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Admission gates the route behind the quota for feature. It must run after
// Principal.
func Admission(controller *appadmission.Controller, feature admission.Feature) gin.HandlerFunc {
	return admit(controller, func(*gin.Context) admission.Feature { return feature })
}

// AdmissionFromParam gates the route behind the quota for the feature named
// by the path parameter param.
func AdmissionFromParam(controller *appadmission.Controller, param string) gin.HandlerFunc {
	return admit(controller, func(c *gin.Context) admission.Feature {
		return admission.Feature(c.Param(param))
	})
}

func admit(controller *appadmission.Controller, featureOf func(*gin.Context) admission.Feature) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		d, err := controller.Admit(c.Request.Context(), p, featureOf(c), time.Now())
		if err != nil {
			var denied *admission.DeniedError
			switch {
			case errors.As(err, &denied):
				setQuotaHeaders(c, d)
				writeDenied(c, denied.RetryAfter)
			case errors.Is(err, shared.ErrUnknownFeature):
				abortWithError(c, dto.ErrCodeUnknownFeature, shared.ErrUnknownFeature.Message)
			default:
				// Store failures fail closed through the boundary.
				_ = c.Error(err)
				c.Abort()
			}
			return
		}

		setQuotaHeaders(c, d)
		c.Set(DecisionKey, d)
		c.Next()
	}
}

func setQuotaHeaders(c *gin.Context, d admission.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}
