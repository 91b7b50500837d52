package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxCacheTTL = 10 * time.Minute

// TokenCache keeps resolved access tokens in Redis with a TTL bounded
// by both a fixed cap and the token's own expiry, so a cached token is
// never served past its lifetime.
type TokenCache struct {
	rdb *redis.Client
}

func NewTokenCache(rdb *redis.Client) *TokenCache {
	return &TokenCache{rdb: rdb}
}

func cacheKey(userID, provider string) string {
	return fmt.Sprintf("cortexagent:token:%s:%s", provider, userID)
}

// Get returns the cached access token, or "" on miss. Redis errors are
// indistinguishable from misses by design; the caller falls back to
// the store either way.
func (c *TokenCache) Get(ctx context.Context, userID, provider string) string {
	if c == nil || c.rdb == nil {
		return ""
	}
	val, err := c.rdb.Get(ctx, cacheKey(userID, provider)).Result()
	if err != nil {
		return ""
	}
	return val
}

// Put caches the token until shortly before it expires.
func (c *TokenCache) Put(ctx context.Context, userID, provider, token string, expiresAt time.Time) {
	if c == nil || c.rdb == nil || token == "" {
		return
	}
	ttl := maxCacheTTL
	if !expiresAt.IsZero() {
		if remaining := time.Until(expiresAt) - 30*time.Second; remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}
	c.rdb.Set(ctx, cacheKey(userID, provider), token, ttl)
}

// Drop evicts the cached token, used on disconnect and refresh failure.
func (c *TokenCache) Drop(ctx context.Context, userID, provider string) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, cacheKey(userID, provider))
}

// Credentials is a resolved bearer credential for one provider.
type Credentials struct {
	AccessToken    string
	TokenRefreshed bool
}

// Resolver resolves a user's provider credential: cache first, then
// the store, refreshing through OAuth when the stored token is expired.
type Resolver struct {
	store  *Store
	oauth  *GoogleOAuth
	cache  *TokenCache
	expiry time.Duration
}

func NewResolver(store *Store, oauth *GoogleOAuth, cache *TokenCache) *Resolver {
	return &Resolver{store: store, oauth: oauth, cache: cache, expiry: 2 * time.Minute}
}

// Resolve returns a usable access token for the user and provider,
// plus a flag for whether it was refreshed on this call.
func (r *Resolver) Resolve(ctx context.Context, userID, provider string) (Credentials, error) {
	if token := r.cache.Get(ctx, userID, provider); token != "" {
		return Credentials{AccessToken: token}, nil
	}

	account, err := r.store.GetActive(userID, provider)
	if err != nil {
		return Credentials{}, err
	}

	if !account.Expired(r.expiry) && account.AccessToken != "" {
		r.cache.Put(ctx, userID, provider, account.AccessToken, account.ExpiresAt)
		return Credentials{AccessToken: account.AccessToken}, nil
	}

	if account.RefreshToken == "" || r.oauth == nil || !r.oauth.Configured() {
		if account.AccessToken != "" {
			// Possibly stale but the best we have; the adapter will
			// surface a not-connected failure if the provider rejects it.
			return Credentials{AccessToken: account.AccessToken}, nil
		}
		return Credentials{}, ErrNotFound
	}

	exchange, err := r.oauth.Refresh(ctx, account.RefreshToken)
	if err != nil {
		r.cache.Drop(ctx, userID, provider)
		return Credentials{}, fmt.Errorf("accounts: refresh for user %s: %w", userID, err)
	}
	if err := r.store.UpdateTokens(account.ID, exchange.AccessToken, exchange.RefreshToken, exchange.ExpiresAt()); err != nil {
		return Credentials{}, err
	}
	r.cache.Put(ctx, userID, provider, exchange.AccessToken, exchange.ExpiresAt())
	return Credentials{AccessToken: exchange.AccessToken, TokenRefreshed: true}, nil
}

// IsNotConnected reports whether the error means the user has no
// usable account for the provider.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotFound)
}
