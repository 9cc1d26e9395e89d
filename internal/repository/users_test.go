package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
)

func TestUsersRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUsersRepository(newTestDB(t))

	none, err := repo.GetByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, none)

	u, err := repo.Touch(ctx, 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionNormal, u.Level)

	require.NoError(t, repo.SetLevel(ctx, 42, models.PermissionPaid))

	u, err = repo.Touch(ctx, 42, "alice_new")
	require.NoError(t, err)
	assert.Equal(t, "alice_new", u.Username)
	assert.Equal(t, models.PermissionPaid, u.Level, "touch never downgrades")

	assert.ErrorIs(t, repo.SetLevel(ctx, 7, models.PermissionVIP), ErrNotFound)
}
