package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing returns otelgin middleware followed by a handler that tags the
// server span with the request id, the principal and the admission outcome
// once the rest of the chain has run. Server errors mark the span as failed.
func Tracing(cfg TracingConfig) []gin.HandlerFunc {
	if !cfg.Enabled {
		return []gin.HandlerFunc{func(c *gin.Context) { c.Next() }}
	}
	return []gin.HandlerFunc{otelgin.Middleware(cfg.ServiceName), spanEnricher}
}

// spanEnricher runs inside the otelgin span, which ends only after it returns.
func spanEnricher(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	enrichSpan(c, span)
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := GetRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if p, ok := GetPrincipal(c); ok {
		span.SetAttributes(attribute.String("principal_id", p.ID.String()))
	}
	if d, ok := GetDecision(c); ok {
		span.SetAttributes(attribute.Int("admission.remaining", d.Remaining))
	}
	if status := c.Writer.Status(); status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
