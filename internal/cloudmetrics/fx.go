package cloudmetrics

import (
	"context"
	"time"

	"github.com/anoteng/regnskap/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pushInterval = time.Minute

var Module = fx.Module("cloud.metrics",
	fx.Provide(NewPusher),
	fx.Invoke(RegisterCollector),
	fx.Invoke(StartPushLoop),
)

// RegisterCollector exposes the connection gauges on the default registry,
// which backs both /metrics and the push loop.
func RegisterCollector(db *gorm.DB, logger *zap.Logger) error {
	err := prometheus.DefaultRegisterer.Register(NewConnectionCollector(db, logger))
	if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
		return nil
	}
	return err
}

func StartPushLoop(lc fx.Lifecycle, cfg config.Config, pusher Pusher, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cloudmetrics")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting metrics push worker", zap.String("exporter", cfg.Metrics.Exporter))
			go func() {
				defer close(done)
				ticker := time.NewTicker(pushInterval)
				defer ticker.Stop()

				for {
					select {
					case <-ticker.C:
						if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil {
							logger.Warn("metrics push failed", zap.Error(err))
						}
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			<-done
			// Flush once more on shutdown.
			if err := pusher.Push(stopCtx, prometheus.DefaultGatherer); err != nil {
				logger.Warn("final metrics push failed", zap.Error(err))
			}
			return nil
		},
	})
}
