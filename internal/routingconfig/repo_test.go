package routingconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/pkg/enums"
)

func setupConfigTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS routing_configs (
  id INTEGER PRIMARY KEY,
  mode TEXT NOT NULL DEFAULT 'manual',
  auto_routing_enabled INTEGER NOT NULL DEFAULT 0,
  interval_minutes INTEGER NOT NULL DEFAULT 15,
  max_drops_per_route INTEGER NOT NULL DEFAULT 10,
  max_route_distance_km REAL NOT NULL DEFAULT 50,
  auto_assign_drivers INTEGER NOT NULL DEFAULT 0,
  require_approval INTEGER NOT NULL DEFAULT 1,
  min_drops_for_auto_route INTEGER NOT NULL DEFAULT 2,
  updated_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func TestGetSeedsDefaultsWhenMissing(t *testing.T) {
	db := setupConfigTestDB(t)
	repo := NewRepository(db)

	cfg, err := repo.Get(context.Background())
	require.NoError(t, err)

	require.Equal(t, enums.RoutingModeManual, cfg.Mode)
	require.False(t, cfg.AutoRoutingEnabled)
	require.Equal(t, 15, cfg.IntervalMinutes)
	require.Equal(t, 10, cfg.MaxDropsPerRoute)
	require.InDelta(t, 50, cfg.MaxRouteDistanceKm, 0.001)
	require.True(t, cfg.RequireApproval)
	require.Equal(t, 2, cfg.MinDropsForAutoRoute)
}

func TestGetReturnsExistingRow(t *testing.T) {
	db := setupConfigTestDB(t)
	repo := NewRepository(db)

	first, err := repo.Get(context.Background())
	require.NoError(t, err)

	first.Mode = enums.RoutingModeAuto
	first.AutoRoutingEnabled = true
	require.NoError(t, repo.Save(context.Background(), first))

	second, err := repo.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, enums.RoutingModeAuto, second.Mode)
	require.True(t, second.AutoRoutingEnabled)
}
