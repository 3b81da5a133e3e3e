package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/telemetry"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FailureBoundaryConfig holds configuration for FailureBoundary.
type FailureBoundaryConfig struct {
	// Sink receives one record per unhandled or exhausted request. Required.
	Sink logger.FailureSink
	// Metrics is optional.
	Metrics *telemetry.ResilienceMetrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// FailureBoundary is the outermost middleware. It catches panics and the
// errors handlers push with c.Error.
//
// For a panic, an unclassified error or an exhausted commit it rolls back the
// request session, emits exactly one FailureRecord and answers with a uniform
// body that never contains error text. Denials and permanent errors are mapped
// to their normal responses without a record. A response that was already
// written is left as is.
func FailureBoundary(cfg FailureBoundaryConfig) gin.HandlerFunc {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				fail(c, cfg, shared.FaultUnhandled, panicError(r), string(debug.Stack()))
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		switch kind := shared.KindOf(err); kind {
		case shared.FaultDenied:
			respondDenied(c, err)
		case shared.FaultPermanent:
			respondPermanent(c, err)
		case shared.FaultExhausted:
			fail(c, cfg, kind, err, "")
		default:
			// A transient error here escaped the commit layer; it is as
			// unexpected as an unclassified one.
			fail(c, cfg, shared.FaultUnhandled, err, "")
		}
	}
}

func fail(c *gin.Context, cfg FailureBoundaryConfig, kind shared.FaultKind, err error, stack string) {
	ctx := c.Request.Context()
	log := logger.GetGinLogger(c)

	if s := GetSession(c); s != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			log.Error("Rollback in failure boundary failed", zap.Error(rbErr))
		}
	}

	record := logger.FailureRecord{
		Time:           cfg.Now(),
		RequestID:      GetRequestID(c),
		Method:         c.Request.Method,
		Path:           c.Request.URL.Path,
		Classification: kind.String(),
		Error:          err.Error(),
		Stack:          stack,
	}
	if p, ok := GetPrincipal(c); ok {
		record.PrincipalID = p.ID.String()
	}
	if cfg.Sink != nil {
		cfg.Sink.Record(ctx, record)
	}
	cfg.Metrics.RecordFailure(ctx, kind.String(), routeOf(c))

	if c.Writer.Written() {
		c.Abort()
		return
	}
	if kind == shared.FaultExhausted {
		abortWithError(c, dto.ErrCodeServiceBusy, dto.MessageServiceBusy)
		return
	}
	abortWithError(c, dto.ErrCodeInternal, dto.MessageInternal)
}

func respondDenied(c *gin.Context, err error) {
	if c.Writer.Written() {
		return
	}
	var denied *admission.DeniedError
	if !errors.As(err, &denied) {
		abortWithError(c, dto.ErrCodeRateLimited, dto.MessageRateLimited)
		return
	}
	writeDenied(c, denied.RetryAfter)
}

func respondPermanent(c *gin.Context, err error) {
	if c.Writer.Written() {
		return
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		message := domainErr.Message
		if code == dto.ErrCodeInternal {
			message = dto.MessageInternal
		}
		abortWithError(c, code, message)
		return
	}
	logger.GetGinLogger(c).Warn("Permanent error reached failure boundary", zap.Error(err))
	abortWithError(c, dto.ErrCodeInternal, dto.MessageInternal)
}

// writeDenied answers a quota denial. Retry-After is whole seconds, rounded up.
func writeDenied(c *gin.Context, retryAfter time.Duration) {
	seconds := retryAfterSeconds(retryAfter)
	if seconds > 0 {
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewRateLimitedResponse(GetRequestID(c), seconds))
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
