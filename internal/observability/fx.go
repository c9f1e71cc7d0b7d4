package observability

import (
	"github.com/anoteng/regnskap/internal/observability/logger"
	"github.com/anoteng/regnskap/internal/observability/metrics"
	"github.com/anoteng/regnskap/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, tracing and both metric pipelines from the
// application config.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.GormLogger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// the tracer provider registers itself globally, nothing else asks for it
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
