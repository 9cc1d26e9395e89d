package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/database"
)

func TestStatsRepository_GetStats(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("Skipping integration test; set INTEGRATION_TEST=1 to run")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, dbURL)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO transfer_tasks (owner_id, source_channel, title, config, status, total_transferred)
		VALUES (1, 'stats_channel', 'stats', '{}', 'completed', 7)
	`)
	require.NoError(t, err)
	defer db.Pool.Exec(ctx, `DELETE FROM transfer_tasks WHERE source_channel = 'stats_channel'`)

	stats, err := NewStatsRepository(db.Pool).GetStats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.CompletedTasks, 1)
	assert.GreaterOrEqual(t, stats.TransferredTotal, 7)
}
