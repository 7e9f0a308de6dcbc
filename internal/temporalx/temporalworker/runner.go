package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/lineflow-backend/internal/platform/envutil"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
	"github.com/yungbote/lineflow-backend/internal/temporalx"
	"github.com/yungbote/lineflow-backend/internal/temporalx/sweep"
)

// Runner hosts the due-sweep workflow and activity on the configured task
// queue and keeps the sweep schedule in place.
type Runner struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	cfg       temporalx.Config
	scheduler services.Scheduler
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, scheduler services.Scheduler) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("temporal worker missing scheduler")
	}
	return &Runner{
		log:       log.With("component", "TemporalWorker"),
		tc:        tc,
		cfg:       cfg,
		scheduler: scheduler,
	}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	cfg := r.cfg
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	maxWait := envutil.Duration("TEMPORAL_WORKER_START_MAX_WAIT", 60*time.Second)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			r.ensureSchedule(ctx)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		missingNamespace := errors.As(startErr, &nfe)
		if missingNamespace && cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, cfg, r.log); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", cfg.Namespace, "error", err)
			}
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			if missingNamespace {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		time.Sleep(backoff(cfg.DialBackoff, cfg.DialBackoffMax, attempt))
	}
}

func (r *Runner) ensureSchedule(ctx context.Context) {
	err := sweep.EnsureSchedule(ctx, r.tc, sweep.ScheduleOptions{
		ID:        r.cfg.SweepScheduleID,
		Cron:      r.cfg.SweepCron,
		TaskQueue: r.cfg.TaskQueue,
	}, r.log)
	if err != nil {
		// The worker still serves manually started sweeps.
		r.log.Error("Due sweep schedule not installed", "schedule_id", r.cfg.SweepScheduleID, "error", err)
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &sweep.Activities{Log: r.log, Scheduler: r.scheduler}
	w.RegisterWorkflowWithOptions(sweep.Workflow, workflow.RegisterOptions{Name: sweep.WorkflowName})
	w.RegisterActivityWithOptions(acts.RunDueSweep, activity.RegisterOptions{Name: sweep.ActivityRunDueSweep})
	return w
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	d := base << min(attempt-1, 16)
	if max > 0 && d > max {
		return max
	}
	return d
}
