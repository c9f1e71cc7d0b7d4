package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/clock"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobBankSyncDue = "bank_sync_due"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	BankSync banksyncdomain.Service
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	bankSync banksyncdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.BankSync == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		bankSync: p.BankSync,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	runnerMetrics := obsmetrics.Runner()
	runnerMetrics.IncJobRun(name)

	err := fn(ctx)
	runnerMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	runnerMetrics.IncJobError(name, err)
	// A deadline is a soft failure; the next tick picks up where this one stopped.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		runnerMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobBankSyncDue, s.BankSyncDueJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()
	runnerMetrics := obsmetrics.Runner()

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			runnerMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// BankSyncDueJob syncs every connection whose auto-sync frequency has
// elapsed. Failures of single connections are recorded on their sync logs and
// counted here, they do not fail the job.
func (s *Scheduler) BankSyncDueJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobBankSyncDue)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.bankSync.SyncDue(ctx, s.clock.Now())
	if err != nil {
		s.logJobError(ctx, run, "scheduler.bank_sync_due.failed", err)
		return err
	}

	runnerMetrics := obsmetrics.Runner()
	runnerMetrics.AddBatchProcessed(JobBankSyncDue, "connections", result.Succeeded+result.Failed)
	runnerMetrics.AddBatchProcessed(JobBankSyncDue, "skipped", result.Skipped)
	run.AddProcessed(result.Succeeded + result.Failed)
	for i := 0; i < result.Failed; i++ {
		run.IncError()
	}

	s.logger(ctx).Info("scheduler.bank_sync_due.done",
		zap.Int("due", result.Due),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return nil
}
