package synclock

import (
	"context"
	"sync"
	"time"

	"github.com/anoteng/regnskap/internal/clock"
	"github.com/google/uuid"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// LocalLocker is the single-process variant used when redis is not
// configured.
type LocalLocker struct {
	mu     sync.Mutex
	clock  clock.Clock
	leases map[string]lease
}

func NewLocalLocker(c clock.Clock) *LocalLocker {
	if c == nil {
		c = clock.New()
	}
	return &LocalLocker{
		clock:  c,
		leases: make(map[string]lease),
	}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if current, ok := l.leases[key]; ok && current.expiresAt.After(now) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.leases[key]; ok && current.token == token {
		delete(l.leases, key)
	}
	return nil
}
