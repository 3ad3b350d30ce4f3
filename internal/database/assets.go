package database

import (
	"fmt"
	"time"

	"cryptomonitor/internal/models"
)

// UpsertAsset registers a tracked currency, updating the display name on
// conflict
func (db *DB) UpsertAsset(a *models.Asset) error {
	query := `
		INSERT INTO assets (symbol, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	now := time.Now()
	if err := db.conn.QueryRow(query, a.Symbol, a.Name, now).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", a.Symbol, err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// GetAssets returns all tracked currencies ordered by symbol
func (db *DB) GetAssets() ([]*models.Asset, error) {
	query := `
		SELECT id, symbol, name, created_at, updated_at
		FROM assets
		ORDER BY symbol ASC
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}
