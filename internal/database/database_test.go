package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/logger"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	bunDB, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, logger.Nop())
	require.NoError(t, err)
	defer bunDB.Close()

	assert.Equal(t, 1, bunDB.DB.Stats().MaxOpenConnections)
	require.NoError(t, migrations.CreateSchema(ctx, bunDB))

	count, err := bunDB.NewSelect().Table("attendees").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql"}, logger.Nop())
	assert.ErrorContains(t, err, "unsupported database driver")
}
