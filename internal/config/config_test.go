package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ADMIN_IDS", "")
	t.Setenv("TASK_RETENTION_DAYS", "")
	t.Setenv("COLLECTOR_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.TaskRetentionDays)
	assert.Equal(t, 40*time.Minute, cfg.CollectorTimeout)
	assert.Equal(t, "standard", cfg.TransferProfile)
	assert.Empty(t, cfg.AdminIDs)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ADMIN_IDS", "10, 20,,30")
	t.Setenv("BOT_USERNAME", "@relay_bot")
	t.Setenv("TRANSFER_AUTO_RESUME", "true")
	t.Setenv("COLLECTOR_TIMEOUT", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 20, 30}, cfg.AdminIDs)
	assert.Equal(t, "relay_bot", cfg.BotUsername)
	assert.True(t, cfg.TransferAutoResume)
	assert.Equal(t, 5*time.Minute, cfg.CollectorTimeout)
}

func TestLoad_InvalidAdminIDs(t *testing.T) {
	t.Setenv("ADMIN_IDS", "10,abc")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("reports all missing fields", func(t *testing.T) {
		cfg := &Config{TaskRetentionDays: 30}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TG_API_ID")
		assert.Contains(t, err.Error(), "BOT_TOKEN")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := &Config{TGApiID: 1, TGApiHash: "h", BotToken: "t", BotUsername: "b", TaskRetentionDays: 30}
		assert.NoError(t, cfg.Validate())
	})
}

func TestAdminStore_Refresh(t *testing.T) {
	ids := []int64{1, 2}
	store := NewAdminStore(func() ([]int64, error) { return ids, nil }, []int64{1, 2})

	assert.True(t, store.IsAdmin(1))
	assert.False(t, store.IsAdmin(3))
	assert.Equal(t, 1, store.Snapshot().Version)

	t.Run("unchanged set keeps version", func(t *testing.T) {
		snap, err := store.Refresh()
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Version)
	})

	t.Run("changed set bumps version and is visible to readers", func(t *testing.T) {
		ids = []int64{3}
		snap, err := store.Refresh()
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Version)
		assert.True(t, store.IsAdmin(3))
		assert.False(t, store.IsAdmin(1))
		assert.Equal(t, []int64{3}, store.Snapshot().IDs())
	})

	t.Run("source error keeps previous snapshot", func(t *testing.T) {
		broken := NewAdminStore(func() ([]int64, error) { return nil, errors.New("boom") }, []int64{7})
		snap, err := broken.Refresh()
		assert.Error(t, err)
		assert.True(t, snap.Contains(7))
	})
}

func TestEnvAdminSource(t *testing.T) {
	t.Setenv("ADMIN_IDS", "5,6")
	store := NewAdminStore(EnvAdminSource, nil)
	_, err := store.Refresh()
	require.NoError(t, err)
	assert.True(t, store.IsAdmin(5))
	assert.Equal(t, []int64{5, 6}, store.Snapshot().IDs())
}
