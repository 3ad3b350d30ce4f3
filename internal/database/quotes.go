package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptomonitor/internal/models"
)

// InsertQuote appends an observed price. Quotes are immutable once recorded;
// "latest" is resolved by timestamp at read time.
func (db *DB) InsertQuote(q *models.Quote) error {
	query := `
		INSERT INTO quotes (symbol, price, change_24h, observed_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query, q.Symbol, q.Price, q.Change24h, q.Timestamp, now).Scan(&q.ID)
	if err != nil {
		return fmt.Errorf("failed to insert quote for %s: %w", q.Symbol, err)
	}
	q.CreatedAt = now
	return nil
}

// LatestQuotes returns the most recent quote per symbol, joined to the asset
// name, newest first
func (db *DB) LatestQuotes() ([]*models.Quote, error) {
	query := `
		SELECT q.id, a.name, q.symbol, q.price, q.change_24h, q.observed_at, q.created_at
		FROM quotes q
		JOIN assets a ON q.symbol = a.symbol
		WHERE q.id IN (
			SELECT MAX(id) FROM quotes GROUP BY symbol
		)
		ORDER BY q.observed_at DESC
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*models.Quote
	for rows.Next() {
		var q models.Quote
		err := rows.Scan(&q.ID, &q.Name, &q.Symbol, &q.Price, &q.Change24h, &q.Timestamp, &q.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, &q)
	}
	return quotes, rows.Err()
}

// LatestQuote returns the most recent quote for one symbol
func (db *DB) LatestQuote(symbol string) (*models.Quote, error) {
	query := `
		SELECT q.id, a.name, q.symbol, q.price, q.change_24h, q.observed_at, q.created_at
		FROM quotes q
		JOIN assets a ON q.symbol = a.symbol
		WHERE q.symbol = $1
		ORDER BY q.observed_at DESC
		LIMIT 1
	`
	var q models.Quote
	err := db.conn.QueryRow(query, symbol).Scan(
		&q.ID, &q.Name, &q.Symbol, &q.Price, &q.Change24h, &q.Timestamp, &q.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no quote found for %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest quote: %w", err)
	}
	return &q, nil
}

// ClosePriceAt returns the most recent hourly close at or before t for a
// symbol. Used to recompute 24h change from our own history instead of
// trusting the upstream figure.
func (db *DB) ClosePriceAt(symbol string, t time.Time) (decimal.Decimal, error) {
	query := `
		SELECT close
		FROM candles_hour
		WHERE symbol = $1 AND bucket_time <= $2
		ORDER BY bucket_time DESC
		LIMIT 1
	`
	var price decimal.Decimal
	err := db.conn.QueryRow(query, symbol, t).Scan(&price)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("no close price for %s at %s", symbol, t.Format(time.RFC3339))
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get close price: %w", err)
	}
	return price, nil
}

// DeleteQuotesBefore removes quotes observed before the cutoff, returning the
// number deleted
func (db *DB) DeleteQuotesBefore(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM quotes WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old quotes: %w", err)
	}
	return result.RowsAffected()
}
