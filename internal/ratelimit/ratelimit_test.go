package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/anoteng/regnskap/internal/clock"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBucketExhaustsAndRefills(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	b := NewLocalBucket(clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := b.Allow(ctx, "k", 1, 2)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := b.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, time.Second, res.RetryAfter)

	clk.Advance(time.Second)
	res, err = b.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLocalBucketKeysAreIndependent(t *testing.T) {
	b := NewLocalBucket(clock.NewFakeClock(time.Now()))
	ctx := context.Background()

	res, err := b.Allow(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = b.Allow(ctx, "b", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLocalBucketRejectsBadArguments(t *testing.T) {
	b := NewLocalBucket(nil)
	ctx := context.Background()

	_, err := b.Allow(ctx, " ", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = b.Allow(ctx, "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = b.Allow(ctx, "k", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidBurst)
}

func TestSyncLimiterPerConnection(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewSyncLimiter(NewLocalBucket(clk), 2, 2*time.Second)
	require.NotNil(t, l)
	ctx := context.Background()
	ledger := snowflake.ID(1)

	for i := 0; i < 2; i++ {
		res, err := l.AllowManualSync(ctx, ledger, snowflake.ID(10))
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.AllowManualSync(ctx, ledger, snowflake.ID(10))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	res, err = l.AllowManualSync(ctx, ledger, snowflake.ID(11))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	clk.Advance(time.Second)
	res, err = l.AllowManualSync(ctx, ledger, snowflake.ID(10))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSyncLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewSyncLimiter(NewLocalBucket(nil), 0, time.Hour))
	assert.Nil(t, NewSyncLimiter(nil, 2, time.Hour))

	var l *SyncLimiter
	res, err := l.AllowManualSync(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
