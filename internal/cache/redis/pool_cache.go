package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mention-lab/internal/domain"
	"mention-lab/internal/pricing"
)

// PoolCache implements pricing.PoolCache with one JSON value per mint at
// key "pools:{mint}".
type PoolCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ pricing.PoolCache = (*PoolCache)(nil)

// NewPoolCache creates a PoolCache. ttl <= 0 uses DefaultTTL.
func NewPoolCache(c *Client, ttl time.Duration, logger *zap.Logger) *PoolCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolCache{rdb: c.Underlying(), ttl: ttl, logger: logger}
}

func poolsKey(mint string) string {
	return "pools:" + mint
}

// GetPools returns the cached pool list for mint. Read failures count as misses.
func (pc *PoolCache) GetPools(ctx context.Context, mint string) ([]domain.Pool, bool) {
	raw, err := pc.rdb.Get(ctx, poolsKey(mint)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			pc.logger.Warn("pool cache read failed", zap.String("mint", mint), zap.Error(err))
		}
		return nil, false
	}
	var pools []domain.Pool
	if err := json.Unmarshal(raw, &pools); err != nil {
		pc.logger.Warn("pool cache entry corrupt", zap.String("mint", mint), zap.Error(err))
		return nil, false
	}
	return pools, true
}

// SetPools stores the pool list for mint. An empty list is cached too.
func (pc *PoolCache) SetPools(ctx context.Context, mint string, pools []domain.Pool) {
	if pools == nil {
		pools = []domain.Pool{}
	}
	data, err := json.Marshal(pools)
	if err != nil {
		return
	}
	if err := pc.rdb.Set(ctx, poolsKey(mint), data, pc.ttl).Err(); err != nil {
		pc.logger.Warn("pool cache write failed", zap.String("mint", mint), zap.Error(err))
	}
}
