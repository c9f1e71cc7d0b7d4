package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidKey   = errors.New("invalid_rate_limit_key")
	ErrInvalidRate  = errors.New("invalid_rate_limit_rate")
	ErrInvalidBurst = errors.New("invalid_rate_limit_burst")
)

// Bucket is a token bucket keyed by an arbitrary string. rate is tokens per
// second and burst the bucket capacity.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func newResult(allowed bool, tokens, rate float64, burst int) Result {
	res := Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(tokens),
	}
	if !allowed {
		res.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
	}
	return res
}

func validate(key string, rate float64, burst int) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if rate <= 0 {
		return ErrInvalidRate
	}
	if burst <= 0 {
		return ErrInvalidBurst
	}
	return nil
}

const keyManualSync = "banksync:manual:%s:%s"

// SyncLimiter caps user-triggered syncs per bank connection. burst syncs are
// allowed at once and the bucket refills fully over window.
type SyncLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

func NewSyncLimiter(b Bucket, burst int, window time.Duration) *SyncLimiter {
	if b == nil || burst <= 0 || window <= 0 {
		return nil
	}
	return &SyncLimiter{
		bucket: b,
		rate:   float64(burst) / window.Seconds(),
		burst:  burst,
	}
}

// AllowManualSync always allows when the limiter is disabled.
func (l *SyncLimiter) AllowManualSync(ctx context.Context, ledgerID, connectionID snowflake.ID) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyManualSync, ledgerID.String(), connectionID.String())
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
