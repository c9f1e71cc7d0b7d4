package logger

import (
	"context"
	"strings"

	zapbuild "github.com/anoteng/regnskap/internal/logger"
	obscontext "github.com/anoteng/regnskap/internal/observability/context"
	"github.com/anoteng/regnskap/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the service logger. Every line carries service, env and
// version, and the logger is flushed when the app stops.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	base, err := zapbuild.Build(zapbuild.Options{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Caller:       cfg.IncludeCaller,
		StackOnError: cfg.IncludeStackOnError,
		Sample:       !cfg.Debug,
	})
	if err != nil {
		return nil, err
	}

	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "regnskap"
	}
	log := base.With(
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
	}
	return log, nil
}

// WithContext adds request, ledger, actor, correlation and trace fields found
// on ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	var fields []zap.Field
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if ledgerID := obscontext.LedgerLabelFromContext(ctx); ledgerID != "" {
		fields = append(fields, zap.String("ledger_id", ledgerID))
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorID != "" {
		fields = append(fields,
			zap.String("actor_type", actorType),
			zap.String("actor_id", actorID),
		)
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
