package synclock

import (
	"context"
	"strings"
	"time"

	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Locker grants a key to one holder until it is released or the ttl lapses.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

var Module = fx.Module("sync.lock",
	fx.Provide(Provide),
)

// Provide returns a redis locker when redis is configured and a local one
// otherwise.
func Provide(lc fx.Lifecycle, cfg config.Config, c clock.Clock, log *zap.Logger) Locker {
	if !cfg.Redis.Enabled() {
		log.Info("redis not configured, using in-process sync locks")
		return NewLocalLocker(c)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLocker(client)
}
