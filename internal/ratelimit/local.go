package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/anoteng/regnskap/internal/clock"
)

type bucket struct {
	tokens float64
	ts     time.Time
}

// LocalBucket keeps buckets in memory for single-process deployments.
type LocalBucket struct {
	mu      sync.Mutex
	clock   clock.Clock
	buckets map[string]*bucket
}

func NewLocalBucket(c clock.Clock) *LocalBucket {
	if c == nil {
		c = clock.New()
	}
	return &LocalBucket{
		clock:   c,
		buckets: make(map[string]*bucket),
	}
}

func (l *LocalBucket) Allow(_ context.Context, key string, rate float64, burst int) (Result, error) {
	if err := validate(key, rate, burst); err != nil {
		return Result{}, err
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(burst), ts: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.ts).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		b.tokens = math.Min(float64(burst), b.tokens+elapsed*rate)
		b.ts = now
	}

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	return newResult(allowed, b.tokens, rate, burst), nil
}
