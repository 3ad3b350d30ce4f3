package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptomonitor/internal/models"
)

func TestAssetRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("UpsertAsset updates name on conflict", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := &models.Asset{Symbol: "BTC", Name: "Bitcoin"}
		require.NoError(t, testDB.UpsertAsset(a))
		assert.NotZero(t, a.ID)

		renamed := &models.Asset{Symbol: "BTC", Name: "Bitcoin Core"}
		require.NoError(t, testDB.UpsertAsset(renamed))

		assets, err := testDB.GetAssets()
		require.NoError(t, err)
		require.Len(t, assets, 1)
		assert.Equal(t, "Bitcoin Core", assets[0].Name)
	})

	t.Run("GetAssets orders by symbol", func(t *testing.T) {
		testDB.TruncateAll(t)
		testDB.SeedAssets(t)

		assets, err := testDB.GetAssets()
		require.NoError(t, err)
		require.Len(t, assets, 2)
		assert.Equal(t, "BTC", assets[0].Symbol)
		assert.Equal(t, "ETH", assets[1].Symbol)
	})
}
