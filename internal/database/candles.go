package database

import (
	"database/sql"
	"fmt"
	"time"

	"cryptomonitor/internal/models"
)

// Table names come from the closed Timeframe enum, never from user input.

// UpsertCandle inserts an OHLCV bucket, replacing values on conflict so a
// re-scrape of the same bucket is idempotent
func (db *DB) UpsertCandle(tf models.Timeframe, c *models.Candle) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, bucket_time, open, high, low, close, volume, quote_volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, bucket_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			quote_volume = EXCLUDED.quote_volume
		RETURNING id
	`, tf.Table())

	err := db.conn.QueryRow(query,
		c.Symbol, c.BucketTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.QuoteVolume, time.Now(),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert %s candle for %s: %w", tf, c.Symbol, err)
	}
	return nil
}

// UpsertCandleBatch upserts a scraped series in one transaction
func (db *DB) UpsertCandleBatch(tf models.Timeframe, candles []*models.Candle) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, bucket_time, open, high, low, close, volume, quote_volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, bucket_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			quote_volume = EXCLUDED.quote_volume
	`, tf.Table()))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.BucketTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.QuoteVolume, now)
		if err != nil {
			return fmt.Errorf("failed to upsert candle for %s: %w", c.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CandlesBySymbol returns the most recent candles for a symbol in ascending
// bucket order, capped at limit
func (db *DB) CandlesBySymbol(symbol string, tf models.Timeframe, limit int) ([]*models.Candle, error) {
	query := fmt.Sprintf(`
		SELECT id, symbol, bucket_time, open, high, low, close, volume, quote_volume, created_at
		FROM (
			SELECT id, symbol, bucket_time, open, high, low, close, volume, quote_volume, created_at
			FROM %s
			WHERE symbol = $1
			ORDER BY bucket_time DESC
			LIMIT $2
		) recent
		ORDER BY bucket_time ASC
	`, tf.Table())

	rows, err := db.conn.Query(query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s candles: %w", tf, err)
	}
	defer rows.Close()

	var candles []*models.Candle
	for rows.Next() {
		var c models.Candle
		err := rows.Scan(
			&c.ID, &c.Symbol, &c.BucketTime, &c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.QuoteVolume, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, &c)
	}
	return candles, rows.Err()
}

// LatestBucketTime returns the newest bucket timestamp stored for a symbol,
// used by the freshness monitor
func (db *DB) LatestBucketTime(symbol string, tf models.Timeframe) (time.Time, error) {
	query := fmt.Sprintf(`SELECT MAX(bucket_time) FROM %s WHERE symbol = $1`, tf.Table())

	var t sql.NullTime
	if err := db.conn.QueryRow(query, symbol).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest bucket time: %w", err)
	}
	if !t.Valid {
		return time.Time{}, fmt.Errorf("no %s candles stored for %s", tf, symbol)
	}
	return t.Time, nil
}

// DeleteCandlesBefore removes candles bucketed before the cutoff
func (db *DB) DeleteCandlesBefore(tf models.Timeframe, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE bucket_time < $1`, tf.Table())
	result, err := db.conn.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old %s candles: %w", tf, err)
	}
	return result.RowsAffected()
}
