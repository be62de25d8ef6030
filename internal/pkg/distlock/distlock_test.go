package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisLock_ExclusiveUntilReleased(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "sweep", time.Minute)
	b := NewRedisLock(client, "sweep", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok, "release by a non-owner must not free the lock")

	require.NoError(t, a.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:1", 10*time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, _ = NewRedisLock(client, "campaign:1", 10*time.Second).Acquire(ctx)
	assert.True(t, ok)
}

func TestDo_ReturnsErrNotAcquired(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewLocker(client, nil)
	ctx := context.Background()

	held := locker.Lock("sweep", time.Minute)
	ok, _ := held.Acquire(ctx)
	require.True(t, ok)

	ran := false
	err := Do(ctx, locker.Lock("sweep", time.Minute), func(context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.False(t, ran)
}

func TestDo_ReleasesAfterRun(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewLocker(client, nil)
	ctx := context.Background()

	require.NoError(t, Do(ctx, locker.Lock("k", time.Minute), func(context.Context) error { return nil }))

	ok, err := locker.Lock("k", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := NewPGAdvisoryLock(db, "sweep")
	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoopLockerWithoutBackends(t *testing.T) {
	ok, err := NewLocker(nil, nil).Lock("x", time.Second).Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
