package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("all tables exist", func(t *testing.T) {
		expectedTables := []string{
			"assets",
			"quotes",
			"candles_minute",
			"candles_hour",
			"candles_day",
		}

		for _, tableName := range expectedTables {
			var exists bool
			err := testDB.GetRawConn().QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.tables
					WHERE table_schema = 'public'
					AND table_name = $1
				)
			`, tableName).Scan(&exists)

			require.NoError(t, err, "failed to check table existence for %s", tableName)
			assert.True(t, exists, "table %s should exist", tableName)
		}
	})

	t.Run("candle tables have unique symbol and bucket constraint", func(t *testing.T) {
		for _, table := range []string{"candles_minute", "candles_hour", "candles_day"} {
			var count int
			err := testDB.GetRawConn().QueryRow(`
				SELECT COUNT(*)
				FROM information_schema.table_constraints
				WHERE table_name = $1 AND constraint_type = 'UNIQUE'
			`, table).Scan(&count)

			require.NoError(t, err)
			assert.GreaterOrEqual(t, count, 1, "table %s should have a unique constraint", table)
		}
	})
}
