package clickhouse

import (
	"context"
	"fmt"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
// price_candles is a ReplacingMergeTree, so re-inserting a key replaces it.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk stores candles in one batch.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []domain.PriceCandle) error {
	if len(candles) == 0 {
		return nil
	}
	for _, c := range candles {
		if c.Pool == "" || c.Timeframe == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_candles (
			pool, timeframe, timestamp, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.Pool, string(c.Timeframe), c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange retrieves candles within [start, end] (inclusive), ordered by timestamp ASC.
func (s *CandleStore) GetRange(ctx context.Context, pool string, tf domain.Timeframe, start, end int64) ([]domain.PriceCandle, error) {
	query := `
		SELECT pool, timeframe, timestamp, open, high, low, close, volume
		FROM price_candles FINAL
		WHERE pool = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, pool, string(tf), start, end)
	if err != nil {
		return nil, fmt.Errorf("query candle range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]domain.PriceCandle, error) {
	var candles []domain.PriceCandle

	for rows.Next() {
		var c domain.PriceCandle
		var tf string

		err := rows.Scan(
			&c.Pool, &tf, &c.Timestamp,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.Timeframe = domain.Timeframe(tf)
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
