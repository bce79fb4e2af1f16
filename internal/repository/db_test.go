package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "jobs.db"), slog.Default())
	require.NoError(t, err)
	defer Close(db, nil, slog.Default())

	require.NoError(t, HealthCheck(ctx, db, time.Second))
	_, err = db.ExecContext(ctx, "CREATE TABLE sample (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
}
