package middleware

import (
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Session attaches a request-scoped persistence session. A transaction still
// open when the handler returns, normally or by panic, is rolled back so the
// connection goes back to the pool clean.
func Session(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := persistence.NewSession(db)
		c.Set(SessionKey, s)

		defer func() {
			if !s.InTransaction() {
				return
			}
			log := logger.GetGinLogger(c)
			log.Warn("Rolling back transaction left open by handler")
			if err := s.Rollback(); err != nil {
				log.Error("Rollback of abandoned transaction failed", zap.Error(err))
			}
		}()

		c.Next()
	}
}
