package storage

import (
	"context"
	"testing"
	"time"

	"github.com/chicagopizza/pizzeria-backend/pkg/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLiteRepository(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.StorageEntry{}))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewRepository(conn), conn
}

func TestRepositoryUpsertAndDelete(t *testing.T) {
	repo, conn := newSQLiteRepository(t)
	ctx := context.Background()

	_, found, err := repo.Load(ctx, "client-1", "cart")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Save(ctx, "client-1", "cart", `{"v":1,"data":[]}`))
	require.NoError(t, repo.Save(ctx, "client-1", "cart", `{"v":1,"data":[{"id":"x"}]}`))

	value, found, err := repo.Load(ctx, "client-1", "cart")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"v":1,"data":[{"id":"x"}]}`, value)

	var count int64
	require.NoError(t, conn.Model(&models.StorageEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, repo.Delete(ctx, "client-1", "cart"))
	_, found, err = repo.Load(ctx, "client-1", "cart")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Delete(ctx, "client-1", "cart"))
}

func TestRepositoryDeleteStale(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	require.NoError(t, repo.Save(ctx, "old-client", "cart", "{}"))
	require.NoError(t, repo.Save(ctx, "old-client", "customer_profile", "{}"))

	repo.now = func() time.Time { return base.Add(20 * 24 * time.Hour) }
	require.NoError(t, repo.Save(ctx, "new-client", "cart", "{}"))

	removed, err := repo.DeleteStale(ctx, "cart", base.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, found, err := repo.Load(ctx, "old-client", "customer_profile")
	require.NoError(t, err)
	assert.True(t, found, "other keys must not be touched")

	_, found, err = repo.Load(ctx, "new-client", "cart")
	require.NoError(t, err)
	assert.True(t, found)
}
