package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	postings     metric.Int64Counter
	postFailures metric.Int64Counter
	importRows   metric.Int64Counter
	syncRows     metric.Int64Counter
	syncRuns     metric.Int64Counter
	chains       metric.Int64Counter
	reversals    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the ledger counters on the service meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "regnskap"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.postings, "regnskap_transactions_posted_total", "Transactions moved from DRAFT to POSTED."},
		{&m.postFailures, "regnskap_transaction_post_failures_total", "Post attempts refused by a posting rule."},
		{&m.importRows, "regnskap_csv_import_rows_total", "CSV rows processed by outcome."},
		{&m.syncRows, "regnskap_bank_sync_rows_total", "Bank rows staged by outcome."},
		{&m.syncRuns, "regnskap_bank_sync_runs_total", "Finished bank sync runs."},
		{&m.chains, "regnskap_transactions_chained_total", "Transfer pairs merged into one transaction."},
		{&m.reversals, "regnskap_transactions_reversed_total", "Reversal transactions created."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by the noop provider. Used by tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordPosted counts a DRAFT to POSTED transition.
func (m *Metrics) RecordPosted(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.postings.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPostFailure counts a refused post by rule.
func (m *Metrics) RecordPostFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.postFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordImportRows counts CSV rows by outcome.
func (m *Metrics) RecordImportRows(ctx context.Context, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.importRows.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordSyncRows counts staged bank rows by outcome.
func (m *Metrics) RecordSyncRows(ctx context.Context, provider, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.syncRows.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordSyncRun counts finished sync runs by type and status.
func (m *Metrics) RecordSyncRun(ctx context.Context, provider, syncType, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("sync_type", strings.TrimSpace(syncType)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.syncRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordChain counts merged transfer pairs.
func (m *Metrics) RecordChain(ctx context.Context, confidence string, autoPost bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("confidence", strings.TrimSpace(confidence)),
		attribute.Bool("auto_post", autoPost),
	)
	m.chains.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReversal counts reversal transactions.
func (m *Metrics) RecordReversal(ctx context.Context) {
	if m == nil {
		return
	}
	m.reversals.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":      {},
	"reason":      {},
	"outcome":     {},
	"provider":    {},
	"sync_type":   {},
	"status":      {},
	"confidence":  {},
	"auto_post":   {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
