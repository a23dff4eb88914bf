package repositories_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ueckoken/kagi/configs"
	"github.com/ueckoken/kagi/internal/core/domain/audit"
	"github.com/ueckoken/kagi/internal/infrastructure/db"
	"github.com/ueckoken/kagi/internal/infrastructure/repositories"
)

func openTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.NewDatabase(&configs.AuditConfig{
		Driver: db.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Migrate())
	// migrating twice is a no-op
	require.NoError(t, database.Migrate())
	return database
}

func TestAccessEventRepository_CreateListCount(t *testing.T) {
	repo := repositories.NewAccessEventRepository(openTestDB(t), nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, granted := range []bool{true, false, true} {
		ev := &audit.AccessEvent{
			TraceID:     "trace",
			CardHash:    "hash-a",
			Status:      "verified",
			Source:      "authority",
			Granted:     granted,
			StateBefore: "locked",
			StateAfter:  "unlocked",
			OccurredAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if !granted {
			ev.Status, ev.CardHash, ev.StateAfter = "denied", "hash-b", "locked"
		}
		require.NoError(t, repo.Create(ctx, ev))
		require.NotEmpty(t, ev.ID)
	}

	all, err := repo.List(ctx, &audit.AccessEventFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].OccurredAt.Equal(base.Add(2*time.Minute)), "newest first")

	granted := true
	onlyGranted, err := repo.List(ctx, &audit.AccessEventFilter{Granted: &granted})
	require.NoError(t, err)
	require.Len(t, onlyGranted, 2)

	n, err := repo.Count(ctx, &audit.AccessEventFilter{Granted: &granted})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	hash := "hash-b"
	n, err = repo.Count(ctx, &audit.AccessEventFilter{CardHash: &hash})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	page, err := repo.List(ctx, &audit.AccessEventFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "hash-b", page[0].CardHash)

	skipped, err := repo.List(ctx, &audit.AccessEventFilter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, skipped, 1)
}

func TestAccessEventRepository_TimeRange(t *testing.T) {
	repo := repositories.NewAccessEventRepository(openTestDB(t), nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Create(ctx, &audit.AccessEvent{
			TraceID: "t", CardHash: "h", Status: "verified", Source: "cache", Granted: true,
			StateBefore: "locked", StateAfter: "unlocked", OccurredAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	start, end := base.Add(time.Hour), base.Add(2*time.Hour)
	n, err := repo.Count(ctx, &audit.AccessEventFilter{StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
