package cache

import (
	"context"
	"fmt"

	"github.com/cozmiclearning/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewWindowStore builds the usage window store selected by admission.store.
// The memory store's sweep is already running on return.
func NewWindowStore(ctx context.Context, admissionCfg config.AdmissionConfig, redisCfg config.RedisConfig, logger *zap.Logger) (WindowStore, error) {
	switch admissionCfg.Store {
	case "", "memory":
		store := NewMemoryWindowStore(
			WithSweepInterval(admissionCfg.SweepInterval),
			WithStoreLogger(logger.Named("window_store")),
		)
		store.Start()
		logger.Info("Using in-memory admission window store",
			zap.Duration("sweep_interval", admissionCfg.SweepInterval))
		return store, nil

	case "redis":
		store, err := NewRedisWindowStore(ctx, &redis.Options{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}, admissionCfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Redis admission window store", zap.String("addr", redisCfg.Addr()))
		return store, nil

	default:
		return nil, fmt.Errorf("unknown admission store %q", admissionCfg.Store)
	}
}
