package memory

import (
	"context"
	"sort"
	"sync"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

type candleKey struct {
	pool      string
	timeframe domain.Timeframe
	timestamp int64
}

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu      sync.RWMutex
	candles map[candleKey]domain.PriceCandle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		candles: make(map[candleKey]domain.PriceCandle),
	}
}

// InsertBulk stores candles, replacing existing ones with the same key.
func (s *CandleStore) InsertBulk(_ context.Context, candles []domain.PriceCandle) error {
	for _, c := range candles {
		if c.Pool == "" || c.Timeframe == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		s.candles[candleKey{c.Pool, c.Timeframe, c.Timestamp}] = c
	}
	return nil
}

// GetRange retrieves candles within [start, end] (inclusive), ordered by timestamp ASC.
func (s *CandleStore) GetRange(_ context.Context, pool string, tf domain.Timeframe, start, end int64) ([]domain.PriceCandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceCandle
	for k, c := range s.candles {
		if k.pool == pool && k.timeframe == tf && k.timestamp >= start && k.timestamp <= end {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
