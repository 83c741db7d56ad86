package waitlist

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/loppilove/waitlist-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.ModelRegistry...))
	return db
}

func entry(email string) *models.WaitlistEntry {
	return &models.WaitlistEntry{
		Email:      email,
		Source:     "hero",
		Brand:      "loppi-love",
		Subscribed: true,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRepository_CreateIfAbsentIsFirstWriteWins(t *testing.T) {
	repo := NewWaitlistRepository(newSQLiteDB(t))
	ctx := context.Background()

	created, err := repo.CreateIfAbsent(ctx, entry("ada@example.com"))
	require.NoError(t, err)
	assert.True(t, created)

	second := entry("ada@example.com")
	second.Source = "footer"
	created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	entries, err := repo.ListEntries(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hero", entries[0].Source, "the stored entry is never overwritten")
}

func TestRepository_ExistsByEmail(t *testing.T) {
	repo := NewWaitlistRepository(newSQLiteDB(t))
	ctx := context.Background()

	exists, err := repo.ExistsByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.CreateIfAbsent(ctx, entry("ada@example.com"))
	require.NoError(t, err)

	exists, err = repo.ExistsByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRepository_ConcurrentInsertsStoreOnce(t *testing.T) {
	repo := NewWaitlistRepository(newSQLiteDB(t))

	const writers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CreateIfAbsent(context.Background(), entry("race@example.com"))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	count, err := repo.CountEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepository_ListEntriesPagesByEmail(t *testing.T) {
	repo := NewWaitlistRepository(newSQLiteDB(t))
	ctx := context.Background()

	for _, i := range []int{3, 1, 4, 0, 2} {
		_, err := repo.CreateIfAbsent(ctx, entry(fmt.Sprintf("user%d@example.com", i)))
		require.NoError(t, err)
	}

	first, err := repo.ListEntries(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "user0@example.com", first[0].Email)
	assert.Equal(t, "user1@example.com", first[1].Email)

	rest, err := repo.ListEntries(ctx, first[1].Email, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, "user2@example.com", rest[0].Email)
	assert.Equal(t, "user4@example.com", rest[2].Email)

	count, err := repo.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestRepository_Ping(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewWaitlistRepository(db)

	assert.NoError(t, repo.Ping(context.Background()))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	assert.Error(t, repo.Ping(context.Background()))
}
