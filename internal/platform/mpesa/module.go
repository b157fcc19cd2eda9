package mpesa

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/pkg/config"
)

const (
	TokenCacheMemory = "memory"
	TokenCacheRedis  = "redis"
	TokenCacheNone   = "none"
)

func newClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return NewClient(cfg.Mpesa, log)
}

type tokenProviderParams struct {
	fx.In

	Cfg    *config.Config
	Client *Client
	Redis  *redis.Client `optional:"true"`
	Log    *zap.SugaredLogger
}

// NewTokenProvider selects the token cache configured by mpesa.token_cache.
func NewTokenProvider(p tokenProviderParams) (TokenProvider, error) {
	switch p.Cfg.Mpesa.TokenCache {
	case TokenCacheNone:
		return p.Client, nil
	case TokenCacheRedis:
		if p.Redis == nil {
			return nil, fmt.Errorf("%w: mpesa.token_cache=redis requires redis.addr", ErrConfiguration)
		}
		return NewCachingTokenProvider(p.Client, NewRedisTokenCache(p.Redis, p.Cfg.Mpesa.Shortcode), p.Log), nil
	default:
		return NewCachingTokenProvider(p.Client, &MemoryTokenCache{}, p.Log), nil
	}
}

var Module = fx.Options(
	fx.Provide(newClient, NewTokenProvider),
)
