// Package middleware provides the HTTP middleware chain: request identity,
// database session, principal resolution, admission and the failure boundary.
package middleware

import (
	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Gin context keys set by this package.
const (
	RequestIDKey = "request_id"
	SessionKey   = "db_session"
	PrincipalKey = "principal"
	DecisionKey  = "admission_decision"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// GetRequestID returns the request id set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// GetSession returns the request-scoped database session, or nil outside
// Session.
func GetSession(c *gin.Context) *persistence.Session {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok := v.(*persistence.Session); ok {
			return s
		}
	}
	return nil
}

// GetPrincipal returns the authenticated principal.
func GetPrincipal(c *gin.Context) (account.Principal, bool) {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(account.Principal); ok {
			return p, true
		}
	}
	return account.Principal{}, false
}

// GetDecision returns the admission decision that let the request through.
func GetDecision(c *gin.Context) (admission.Decision, bool) {
	if v, ok := c.Get(DecisionKey); ok {
		if d, ok := v.(admission.Decision); ok {
			return d, true
		}
	}
	return admission.Decision{}, false
}

func abortWithError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
