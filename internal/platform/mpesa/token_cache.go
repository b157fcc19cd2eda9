package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sereniyou/payments/pkg/logctx"
	"github.com/sereniyou/payments/pkg/metrics"
)

const defaultTokenSkew = 60 * time.Second

// TokenCache stores the current token. Get returns nil without error on a miss.
type TokenCache interface {
	Get(ctx context.Context) (*Token, error)
	Set(ctx context.Context, tok *Token) error
}

// CachingTokenProvider returns the cached token until it is within skew of
// expiry. Concurrent misses share a single upstream fetch.
type CachingTokenProvider struct {
	fetcher TokenFetcher
	cache   TokenCache
	group   singleflight.Group
	skew    time.Duration
	now     func() time.Time
	log     *zap.SugaredLogger
}

func NewCachingTokenProvider(fetcher TokenFetcher, cache TokenCache, log *zap.SugaredLogger) *CachingTokenProvider {
	return &CachingTokenProvider{
		fetcher: fetcher,
		cache:   cache,
		skew:    defaultTokenSkew,
		now:     time.Now,
		log:     log,
	}
}

func (p *CachingTokenProvider) fresh(tok *Token) bool {
	return tok != nil && tok.AccessToken != "" && p.now().Before(tok.ExpiresAt.Add(-p.skew))
}

func (p *CachingTokenProvider) cached(ctx context.Context) *Token {
	tok, err := p.cache.Get(ctx)
	if err != nil {
		logctx.FromCtx(ctx, p.log).Warnw("mpesa_token_cache_get_failed", "err", err)
		return nil
	}
	if !p.fresh(tok) {
		return nil
	}
	return tok
}

func (p *CachingTokenProvider) AccessToken(ctx context.Context) (string, error) {
	if tok := p.cached(ctx); tok != nil {
		metrics.IncMpesaTokenFetch("cache")
		return tok.AccessToken, nil
	}

	v, err, _ := p.group.Do("token", func() (any, error) {
		// The fetch outlives the first caller's cancellation; the HTTP client timeout bounds it.
		fctx := context.WithoutCancel(ctx)
		if tok := p.cached(fctx); tok != nil {
			return tok, nil
		}
		tok, err := p.fetcher.FetchToken(fctx)
		if err != nil {
			return nil, err
		}
		metrics.IncMpesaTokenFetch("upstream")
		if err := p.cache.Set(fctx, tok); err != nil {
			logctx.FromCtx(ctx, p.log).Warnw("mpesa_token_cache_set_failed", "err", err)
		}
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*Token).AccessToken, nil
}

// MemoryTokenCache keeps the token in process memory.
type MemoryTokenCache struct {
	tok atomic.Pointer[Token]
}

func (m *MemoryTokenCache) Get(context.Context) (*Token, error) {
	return m.tok.Load(), nil
}

func (m *MemoryTokenCache) Set(_ context.Context, tok *Token) error {
	m.tok.Store(tok)
	return nil
}

// RedisTokenCache shares the token between replicas.
type RedisTokenCache struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func NewRedisTokenCache(rdb *redis.Client, shortcode string) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb, key: "mpesa:access_token:" + shortcode, now: time.Now}
}

func (r *RedisTokenCache) Get(ctx context.Context) (*Token, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &tok, nil
}

func (r *RedisTokenCache) Set(ctx context.Context, tok *Token) error {
	ttl := tok.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}
