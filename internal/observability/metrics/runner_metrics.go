package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	RunnerErrorTypeDeadlineExceeded = "deadline_exceeded"
	RunnerErrorTypeDB               = "db"
	RunnerErrorTypeBusinessRule     = "business_rule"
	RunnerErrorTypeUnknown          = "unknown"
)

const (
	RunnerJobReasonDeadlineExceeded     = "deadline_exceeded"
	RunnerJobReasonDBLockTimeout        = "db_lock_timeout"
	RunnerJobReasonSerializationFailure = "serialization_failure"
	RunnerJobReasonUniqueViolation      = "unique_violation"
	RunnerJobReasonLockHeld             = "lock_held"
	RunnerJobReasonUnknown              = "unknown"
)

// ErrLockHeld is reported by jobs that skipped work another runner owns.
var ErrLockHeld = errors.New("lock_held")

// RunnerMetrics captures auto-sync runner health.
type RunnerMetrics struct {
	registry       prometheus.Registerer
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Observer
}

var (
	runnerMetricsOnce sync.Once
	runnerMetrics     *RunnerMetrics
)

// Runner returns the singleton runner metrics registered on the default registry.
func Runner() *RunnerMetrics {
	return RunnerWithConfig(Config{})
}

// RunnerWithConfig returns the singleton runner metrics using config labels.
func RunnerWithConfig(cfg Config) *RunnerMetrics {
	runnerMetricsOnce.Do(func() {
		runnerMetrics = NewRunnerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return runnerMetrics
}

// ResetRunnerMetricsForTest resets the runner metrics singleton for tests.
func ResetRunnerMetricsForTest() {
	runnerMetricsOnce = sync.Once{}
	runnerMetrics = nil
}

// NewRunnerMetrics registers runner collectors on registerer.
func NewRunnerMetrics(registerer prometheus.Registerer, cfg Config) *RunnerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "regnskap"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "regnskap_runner_job_runs_total",
		Help:        "Runner job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "regnskap_runner_job_duration_seconds",
		Help:        "Runner job latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "regnskap_runner_job_timeouts_total",
		Help:        "Runner jobs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "regnskap_runner_job_errors_total",
		Help:        "Runner job errors by type.",
		ConstLabels: constLabels,
	}, []string{"job", "error_type"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "regnskap_runner_batch_processed_total",
		Help:        "Items processed by runner jobs.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "regnskap_runner_runloop_lag_seconds",
		Help:        "Delay between the planned and the actual start of a runner tick.",
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})

	jobRuns = registerCollector(registerer, jobRuns)
	jobDuration = registerCollector(registerer, jobDuration)
	jobTimeouts = registerCollector(registerer, jobTimeouts)
	jobErrors = registerCollector(registerer, jobErrors)
	batchProcessed = registerCollector(registerer, batchProcessed)
	runLoopLag = registerCollector(registerer, runLoopLag)

	return &RunnerMetrics{
		registry:       registerer,
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		batchProcessed: batchProcessed,
		runLoopLag:     runLoopLag,
	}
}

func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}

func (m *RunnerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *RunnerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *RunnerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *RunnerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyRunnerErrorType(err)).Inc()
}

func (m *RunnerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *RunnerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ClassifyRunnerErrorType returns a low-cardinality error type for logging.
func ClassifyRunnerErrorType(err error) string {
	if err == nil {
		return RunnerErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RunnerErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return RunnerErrorTypeDB
	}
	return RunnerErrorTypeBusinessRule
}

// IsRunnerErrorRetryable reports whether the job should be retried on the next tick.
func IsRunnerErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

// ClassifyRunnerJobReason maps job errors to low-cardinality reasons.
func ClassifyRunnerJobReason(err error) string {
	if err == nil {
		return RunnerJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RunnerJobReasonDeadlineExceeded
	}
	if errors.Is(err, ErrLockHeld) {
		return RunnerJobReasonLockHeld
	}
	if hasPGCode(err, "55P03") {
		return RunnerJobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return RunnerJobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return RunnerJobReasonUniqueViolation
	}
	return RunnerJobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
