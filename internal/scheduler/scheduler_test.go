package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/clock"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

type fakeBankSync struct {
	banksyncdomain.Service

	mu     sync.Mutex
	calls  []time.Time
	result banksyncdomain.SyncDueResult
	err    error
	block  bool
}

func (f *fakeBankSync) SyncDue(ctx context.Context, now time.Time) (banksyncdomain.SyncDueResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, now)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return banksyncdomain.SyncDueResult{}, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeBankSync) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var fixedNow = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, bank *fakeBankSync, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	s, err := New(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(fixedNow),
		BankSync: bank,
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetRunnerMetricsForTest()
	obsmetrics.RunnerWithConfig(obsmetrics.Config{ServiceName: "regnskap", Environment: "test"})
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetRunnerMetricsForTest()
	})
	return registry
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunOnceSyncsDueConnections(t *testing.T) {
	registry := useTestRegistry(t)
	bank := &fakeBankSync{result: banksyncdomain.SyncDueResult{Due: 4, Succeeded: 2, Failed: 1, Skipped: 1}}
	s := newTestScheduler(t, bank, Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if bank.callCount() != 1 {
		t.Fatalf("expected one SyncDue call, got %d", bank.callCount())
	}
	if !bank.calls[0].Equal(fixedNow) {
		t.Fatalf("expected SyncDue at %v, got %v", fixedNow, bank.calls[0])
	}

	labels := map[string]string{"service": "regnskap", "env": "test", "job": JobBankSyncDue, "resource": "connections"}
	if got := getCounterValue(t, registry, "regnskap_runner_batch_processed_total", labels); got != 3 {
		t.Fatalf("expected 3 processed connections, got %v", got)
	}
	runLabels := map[string]string{"service": "regnskap", "env": "test", "job": JobBankSyncDue}
	if got := getCounterValue(t, registry, "regnskap_runner_job_runs_total", runLabels); got != 1 {
		t.Fatalf("expected one job run, got %v", got)
	}
}

func TestRunOnceReturnsJobError(t *testing.T) {
	useTestRegistry(t)
	boom := errors.New("boom")
	s := newTestScheduler(t, &fakeBankSync{err: boom}, Config{})

	err := s.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	registry := useTestRegistry(t)
	s := newTestScheduler(t, &fakeBankSync{block: true}, Config{JobTimeout: 5 * time.Millisecond})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{"service": "regnskap", "env": "test", "job": JobBankSyncDue}
	if got := getCounterValue(t, registry, "regnskap_runner_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}
	errorLabels := map[string]string{
		"service":    "regnskap",
		"env":        "test",
		"job":        JobBankSyncDue,
		"error_type": obsmetrics.RunnerErrorTypeDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "regnskap_runner_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestDisabledJobIsSkipped(t *testing.T) {
	useTestRegistry(t)
	bank := &fakeBankSync{}
	s := newTestScheduler(t, bank, Config{EnabledJobs: []string{"something_else"}})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if bank.callCount() != 0 {
		t.Fatalf("expected no SyncDue call, got %d", bank.callCount())
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	useTestRegistry(t)
	bank := &fakeBankSync{}
	s := newTestScheduler(t, bank, Config{RunInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for bank.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("runner never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RunInterval != 15*time.Minute || cfg.JobTimeout != 10*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if got := (Config{}).withDefaults(); got.RunInterval != cfg.RunInterval {
		t.Fatalf("expected default interval, got %v", got.RunInterval)
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
