package synclock

import (
	"context"
	"testing"
	"time"

	"github.com/anoteng/regnskap/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	locker := NewLocalLocker(fake)

	token, ok, err := locker.TryLock(ctx, "banksync:connection:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "banksync:connection:1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = locker.TryLock(ctx, "banksync:connection:2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, "banksync:connection:1", "not-the-token"))
	_, ok, _ = locker.TryLock(ctx, "banksync:connection:1", time.Minute)
	require.False(t, ok)

	require.NoError(t, locker.Release(ctx, "banksync:connection:1", token))
	_, ok, _ = locker.TryLock(ctx, "banksync:connection:1", time.Minute)
	require.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	locker := NewLocalLocker(fake)

	_, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	fake.Advance(2 * time.Minute)
	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockValidation(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker(nil)

	_, _, err := locker.TryLock(ctx, "", time.Minute)
	require.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = locker.TryLock(ctx, "job", 0)
	require.ErrorIs(t, err, ErrInvalidTTL)

	var redisLocker *RedisLocker
	_, _, err = redisLocker.TryLock(ctx, "job", time.Minute)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.NoError(t, redisLocker.Release(ctx, "job", "token"))
}
