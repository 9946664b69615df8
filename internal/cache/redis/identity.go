package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mention-lab/internal/marketdata"
	"mention-lab/internal/observability"
)

// DefaultTTL bounds how long a cached lookup is served.
const DefaultTTL = 6 * time.Hour

// CachedIdentity implements marketdata.IdentitySource on top of another
// source, serving hits from Redis. Only resolved keys are cached; misses go
// upstream every time. A Redis failure never fails a lookup.
type CachedIdentity struct {
	rdb      *redis.Client
	upstream marketdata.IdentitySource
	ttl      time.Duration
	logger   *zap.Logger
}

var _ marketdata.IdentitySource = (*CachedIdentity)(nil)

// NewCachedIdentity wraps upstream. ttl <= 0 uses DefaultTTL.
func NewCachedIdentity(c *Client, upstream marketdata.IdentitySource, ttl time.Duration, logger *zap.Logger) *CachedIdentity {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedIdentity{rdb: c.Underlying(), upstream: upstream, ttl: ttl, logger: logger}
}

// LookupTickers serves cached ticker matches and fetches the rest.
func (c *CachedIdentity) LookupTickers(ctx context.Context, tickers []string) (map[string]marketdata.TokenMatch, error) {
	return cachedLookup(ctx, c, "ticker", tickers, c.upstream.LookupTickers)
}

// LookupNames serves cached name matches and fetches the rest.
func (c *CachedIdentity) LookupNames(ctx context.Context, names []string) (map[string]marketdata.TokenMatch, error) {
	return cachedLookup(ctx, c, "name", names, c.upstream.LookupNames)
}

// LookupTokens serves cached token metadata and fetches the rest.
func (c *CachedIdentity) LookupTokens(ctx context.Context, mints []string) (map[string]marketdata.TokenInfo, error) {
	return cachedLookup(ctx, c, "token", mints, c.upstream.LookupTokens)
}

// LookupPairs serves cached pairs and fetches the rest.
func (c *CachedIdentity) LookupPairs(ctx context.Context, addresses []string) (map[string]marketdata.Pair, error) {
	return cachedLookup(ctx, c, "pair", addresses, c.upstream.LookupPairs)
}

func identityKey(kind, value string) string {
	return "identity:" + kind + ":" + value
}

func cachedLookup[V any](
	ctx context.Context,
	c *CachedIdentity,
	kind string,
	keys []string,
	fetch func(context.Context, []string) (map[string]V, error),
) (map[string]V, error) {
	out := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = identityKey(kind, k)
	}

	missing := keys
	vals, err := c.rdb.MGet(ctx, redisKeys...).Result()
	if err != nil {
		c.logger.Warn("identity cache read failed", zap.String("kind", kind), zap.Error(err))
	} else {
		missing = nil
		for i, raw := range vals {
			s, ok := raw.(string)
			if ok {
				var v V
				if err := json.Unmarshal([]byte(s), &v); err == nil {
					out[keys[i]] = v
					observability.RecordCacheLookup("identity", true)
					continue
				}
			}
			observability.RecordCacheLookup("identity", false)
			missing = append(missing, keys[i])
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	// A *marketdata.LookupError still carries usable matches for the keys
	// that succeeded; failed keys are never cached.
	fetched, fetchErr := fetch(ctx, missing)
	var partial *marketdata.LookupError
	if fetchErr != nil && !errors.As(fetchErr, &partial) {
		return nil, fetchErr
	}

	pipe := c.rdb.Pipeline()
	for k, v := range fetched {
		out[k] = v
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		pipe.Set(ctx, identityKey(kind, k), data, c.ttl)
	}
	if len(fetched) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("identity cache write failed", zap.String("kind", kind), zap.Error(err))
		}
	}
	return out, fetchErr
}
