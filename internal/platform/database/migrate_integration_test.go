//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/platform/database"
	"certledger/migrations"
	"certledger/pkg/testutil/containers"
)

func TestMigrateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	assert.Equal(t, []string{"000001_credentials", "000002_outbox"}, pg.Applied)

	again, err := database.Migrate(ctx, pg.DB, migrations.FS)
	require.NoError(t, err)
	assert.Empty(t, again)

	var appName string
	require.NoError(t, pg.DB.QueryRowContext(ctx, `SHOW application_name`).Scan(&appName))
	assert.Equal(t, "certledger-test", appName)
	require.NoError(t, pg.Pool.Health(ctx))
}
