package ratelimit

import (
	"context"
	"strings"

	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(ProvideBucket),
	fx.Provide(ProvideSyncLimiter),
)

func ProvideBucket(lc fx.Lifecycle, cfg config.Config, c clock.Clock, log *zap.Logger) Bucket {
	if !cfg.Redis.Enabled() {
		return NewLocalBucket(c)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("rate limits backed by redis", zap.String("addr", cfg.Redis.Addr))
	return NewRedisBucket(client)
}

func ProvideSyncLimiter(cfg config.Config, b Bucket) *SyncLimiter {
	return NewSyncLimiter(b, cfg.BankSync.ManualSyncBurst, cfg.BankSync.ManualSyncWindow)
}
