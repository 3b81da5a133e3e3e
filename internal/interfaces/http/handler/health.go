package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Checker reports the health of one dependency.
type Checker interface {
	Ping() error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func() error

// Ping calls f
func (f CheckerFunc) Ping() error { return f() }

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	checks  map[string]Checker
	timeout time.Duration
}

// NewHealthHandler creates a new health handler over the named checks
func NewHealthHandler(checks map[string]Checker) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// Health handles GET /health. It answers 503 when any dependency is down.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		errCh := make(chan error, 1)
		go func() { errCh <- check.Ping() }()

		select {
		case err := <-errCh:
			if err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = "down"
				continue
			}
			resp.Checks[name] = "up"
		case <-ctx.Done():
			resp.Status = "degraded"
			resp.Checks[name] = "timeout"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
