package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/pkg/config"
)

// NewRedis connects to redis when redis.addr is set. It returns a nil client
// otherwise, and consumers treat redis as optional.
func NewRedis(lc fx.Lifecycle, cfg *config.Config, l *zap.SugaredLogger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	l.Infow("connected to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	lc.Append(fx.StopHook(func() error {
		l.Infow("closing redis client")
		return rdb.Close()
	}))
	return rdb, nil
}

var Module = fx.Options(
	fx.Provide(NewRedis),
)
