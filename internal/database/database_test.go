package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
)

func TestIsSQLite(t *testing.T) {
	assert.True(t, IsSQLite("sqlite://./data/relay.db"))
	assert.True(t, IsSQLite("file::memory:?cache=shared"))
	assert.True(t, IsSQLite(":memory:"))
	assert.False(t, IsSQLite("postgres://localhost/relay"))
}

func TestNew_SQLiteMemory(t *testing.T) {
	ctx := context.Background()
	db, err := New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.Nil(t, db.Pool)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Ping(ctx))

	for _, m := range models.All() {
		assert.True(t, db.GORM.Migrator().HasTable(m), "table for %T", m)
	}
}

func TestNew_Postgres_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("Skipping integration test; set INTEGRATION_TEST=1 to run")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, dbURL)
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, db.Pool)
	require.NoError(t, db.Migrate(ctx))
	assert.True(t, db.GORM.Migrator().HasTable(&models.TransferTask{}))
}
