package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// TokenCache stores OAuth tokens so several processes share one token.
type TokenCache interface {
	Get(ctx context.Context, key string) (*oauth2.Token, error)
	Set(ctx context.Context, key string, tok *oauth2.Token) error
}

// RedisTokenCache keeps tokens in Redis until shortly before they expire.
type RedisTokenCache struct {
	rdb    *redis.Client
	maxTTL time.Duration
}

func NewRedisTokenCache(rdb *redis.Client, maxTTL time.Duration) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb, maxTTL: maxTTL}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (*oauth2.Token, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, key string, tok *oauth2.Token) error {
	ttl := cacheTTL(tok, c.maxTTL)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// cacheTTL expires cached tokens 30s before the token itself.
func cacheTTL(tok *oauth2.Token, maxTTL time.Duration) time.Duration {
	ttl := maxTTL
	if !tok.Expiry.IsZero() {
		until := time.Until(tok.Expiry) - 30*time.Second
		if ttl <= 0 || until < ttl {
			ttl = until
		}
	}
	return ttl
}

// cachedTokenSource consults the cache before asking base for a new token.
// Cache failures fall through to base.
type cachedTokenSource struct {
	ctx   context.Context
	cache TokenCache
	key   string
	base  oauth2.TokenSource
}

func (s *cachedTokenSource) Token() (*oauth2.Token, error) {
	if tok, err := s.cache.Get(s.ctx, s.key); err == nil && tok != nil && tok.Valid() {
		return tok, nil
	}
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(s.ctx, s.key, tok)
	return tok, nil
}
