package middleware

import (
	"errors"
	"strings"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/auth"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authorization header parts
const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// PrincipalConfig holds configuration for the principal middleware
type PrincipalConfig struct {
	Tokens   TokenValidator
	Accounts account.Repository
	// SkipPaths are exact paths that don't require authentication
	SkipPaths []string
}

// Principal authenticates the bearer token and loads the caller's account on
// every request, so tier changes apply from the next request on.
func Principal(cfg PrincipalConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		log := logger.GetGinLogger(c)

		header := c.GetHeader(AuthHeaderKey)
		if !strings.HasPrefix(header, BearerPrefix) || strings.TrimPrefix(header, BearerPrefix) == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		claims, err := cfg.Tokens.ValidateToken(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			log.Warn("Token validation failed", zap.Error(err))
			if errors.Is(err, auth.ErrExpiredToken) {
				abortWithError(c, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		accountID, err := claims.AccountUUID()
		if err != nil {
			abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		principal, err := cfg.Accounts.FindByID(c.Request.Context(), accountID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				log.Warn("Token refers to unknown account", zap.String("account_id", accountID.String()))
				abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
				return
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(PrincipalKey, *principal)
		ctx := logger.WithUserID(c.Request.Context(), principal.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(logger.GinLoggerKey, log.With(zap.String("principal_id", principal.ID.String())))

		c.Next()
	}
}
